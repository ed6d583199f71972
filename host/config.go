package host

import "go.uber.org/zap"

// Config holds configuration for runtime creation
type Config struct {
	// Logger receives console posts and diagnostics. nil means Logger().
	Logger *zap.Logger

	// HeapPages is the initial size of host memory in 64KiB pages.
	HeapPages uint32

	// MaxHeapPages caps host memory growth. 0 means HeapPages.
	MaxHeapPages uint32
}

// DefaultConfig returns a configuration with one initial page and room to
// grow to 64MiB.
func DefaultConfig() Config {
	return Config{
		HeapPages:    1,
		MaxHeapPages: 1024,
	}
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return Logger()
}
