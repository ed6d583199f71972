package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/extern-runtime/examples/simp"
	"github.com/wippyai/extern-runtime/host"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to TOML config file")
		scriptFile  = flag.String("script", "", "Script to run (default: stdin when not a terminal)")
		realtime    = flag.Duration("run", 0, "After the script, drive host time from the wall clock for this long")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// With no script and a terminal on stdin there is nothing to read, so
	// fall back to the TUI.
	stdinTTY := term.IsTerminal(int(os.Stdin.Fd()))
	if *scriptFile == "" && stdinTTY {
		*interactive = true
	}

	if err := run(cfg, *scriptFile, *interactive, *realtime); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config, scriptFile string, interactive bool, realtime time.Duration) error {
	ctx := context.Background()

	var console *consoleBuffer
	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if interactive {
		console = &consoleBuffer{}
		sink = console
	}
	cfg.Host.Logger = newLogger(cfg.LogLevel, sink)
	defer cfg.Host.Logger.Sync()

	rt, err := host.New(ctx, cfg.Host)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	if _, err := simp.Register(rt); err != nil {
		return fmt.Errorf("register %s: %w", simp.ClassName, err)
	}

	sess := newSession(rt, os.Stdout)

	var script io.Reader
	switch {
	case scriptFile != "":
		f, err := os.Open(scriptFile)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		script = f
	case !interactive:
		script = os.Stdin
	}

	if script != nil {
		if err := sess.run(script); err != nil {
			return err
		}
	}

	if interactive {
		return runInteractive(sess, console, cfg.Tick)
	}

	if realtime > 0 {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, realtime)
		defer cancel()
		err := rt.Run(ctx, cfg.Tick)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Fprintf(os.Stdout, "now %gms\n", rt.Now())
	}
	return nil
}

func newLogger(level zapcore.Level, w zapcore.WriteSyncer) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(enc), w, level))
}
