package clock

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/extern-runtime/errors"
	"github.com/wippyai/extern-runtime/host"
)

func newRuntime(t *testing.T) (*host.Runtime, host.Record, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := host.DefaultConfig()
	cfg.Logger = zap.New(core)
	r, err := host.New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	if _, err := r.RegisterClass(host.ClassDescriptor{Name: "owner", RecordSize: host.HeaderSize}); err != nil {
		t.Fatal(err)
	}
	rec, err := r.NewInstance("owner")
	if err != nil {
		t.Fatal(err)
	}
	return r, rec, logs
}

func TestHandle_DelayFires(t *testing.T) {
	r, rec, _ := newRuntime(t)
	var fired atomic.Int32
	h, err := New(r, rec, func() { fired.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if h.Armed() {
		t.Error("new clock should be disarmed")
	}
	if err := h.Delay(10); err != nil {
		t.Fatal(err)
	}
	if !h.Armed() {
		t.Error("clock should be armed after Delay")
	}
	r.Advance(10)
	if fired.Load() != 1 {
		t.Errorf("fired = %d, want 1", fired.Load())
	}
}

func TestHandle_IdempotentReplace(t *testing.T) {
	r, rec, _ := newRuntime(t)
	var fired atomic.Int32
	h, _ := New(r, rec, func() { fired.Add(1) })
	defer h.Close()

	for range 5 {
		if err := h.Delay(10); err != nil {
			t.Fatal(err)
		}
		r.Advance(5)
	}
	if fired.Load() != 0 {
		t.Fatalf("fired = %d while being pushed back", fired.Load())
	}
	r.Advance(5)
	if fired.Load() != 1 {
		t.Errorf("fired = %d, want exactly 1", fired.Load())
	}
}

func TestHandle_Unset(t *testing.T) {
	r, rec, _ := newRuntime(t)
	var fired atomic.Int32
	h, _ := New(r, rec, func() { fired.Add(1) })
	defer h.Close()

	_ = h.Delay(10)
	if err := h.Unset(); err != nil {
		t.Fatal(err)
	}
	r.Advance(20)
	if fired.Load() != 0 {
		t.Error("unset clock fired")
	}
}

func TestHandle_Close(t *testing.T) {
	r, rec, logs := newRuntime(t)
	var fired atomic.Int32
	h, _ := New(r, rec, func() { fired.Add(1) })

	_ = h.Delay(10)
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	r.Advance(20)

	if fired.Load() != 0 {
		t.Error("closed clock fired")
	}
	if h.Armed() {
		t.Error("closed clock reports armed")
	}
	if err := h.Delay(1); err == nil {
		t.Error("Delay after Close should fail")
	}
	if logs.FilterField(zap.Bool("fatal", true)).Len() != 0 {
		t.Error("no race expected for a clean close")
	}

	// the owner can now be freed without a race
	if err := r.Free(rec); err != nil {
		t.Errorf("Free = %v", err)
	}
}

func TestHandle_NilCallback(t *testing.T) {
	r, rec, _ := newRuntime(t)
	if _, err := New(r, rec, nil); err == nil {
		t.Error("expected error for nil callback")
	}
}

// lateTimer delivers a firing after the clock was freed, like a host that
// lost the race between dequeueing a firing and releasing the clock.
type lateTimer struct {
	fn       func()
	reported []error
}

func (l *lateTimer) ClockNew(_ host.Record, fn func()) (host.ClockID, error) {
	l.fn = fn
	return 1, nil
}
func (l *lateTimer) ClockDelay(host.ClockID, float64) error { return nil }
func (l *lateTimer) ClockUnset(host.ClockID) error { return nil }
func (l *lateTimer) ClockFree(host.ClockID) error { return nil }
func (l *lateTimer) ClockArmed(host.ClockID) bool { return false }
func (l *lateTimer) Report(_ host.Record, err error) { l.reported = append(l.reported, err) }

func TestHandle_FiringAfterCloseIsRace(t *testing.T) {
	lt := &lateTimer{}
	var fired atomic.Int32
	h, err := New(lt, host.Record(64), func() { fired.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	_ = h.Close()

	lt.fn()

	if fired.Load() != 0 {
		t.Error("callback ran after Close")
	}
	if len(lt.reported) != 1 || !stderrors.Is(lt.reported[0], errors.ErrCancellationRace) {
		t.Errorf("reported = %v, want one cancellation race", lt.reported)
	}
}

func TestHandle_CloseWaitsForRunningFiring(t *testing.T) {
	r, rec, logs := newRuntime(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	h, err := New(r, rec, func() {
		close(started)
		<-release
		finished.Store(true)
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = h.Delay(1)

	advanced := make(chan struct{})
	go func() {
		r.Advance(1)
		close(advanced)
	}()
	<-started

	closed := make(chan error, 1)
	go func() { closed <- h.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while the callback was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if err := <-closed; err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !finished.Load() {
		t.Error("Close returned before the callback finished")
	}
	<-advanced

	if logs.FilterField(zap.Bool("fatal", true)).Len() != 0 {
		t.Error("closing around a running firing is not a race")
	}
}
