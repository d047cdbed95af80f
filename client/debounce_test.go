package client

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	var fired atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 10; i++ {
		i := i
		d.Schedule("doc-1", func() {
			fired.Add(1)
			last.Store(int32(i))
		})
	}

	time.Sleep(200 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("expected exactly 1 fire for a burst, got %d", got)
	}
	if got := last.Load(); got != 10 {
		t.Errorf("expected the last scheduled action to fire, got %d", got)
	}
}

func TestDebouncerRestartsQuietInterval(t *testing.T) {
	d := NewDebouncer(80 * time.Millisecond)
	defer d.Stop()

	var fired atomic.Int32
	d.Schedule("doc-1", func() { fired.Add(1) })

	// Keep rescheduling inside the quiet window; nothing may fire.
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		if got := fired.Load(); got != 0 {
			t.Fatalf("fired %d times before the quiet window elapsed", got)
		}
		d.Schedule("doc-1", func() { fired.Add(1) })
	}

	time.Sleep(200 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected 1 fire after going quiet, got %d", got)
	}
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var a, b atomic.Int32
	d.Schedule("doc-a", func() { a.Add(1) })
	d.Schedule("doc-b", func() { b.Add(1) })

	time.Sleep(150 * time.Millisecond)
	if a.Load() != 1 || b.Load() != 1 {
		t.Errorf("expected both keys to fire once, got a=%d b=%d", a.Load(), b.Load())
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var fired atomic.Int32
	d.Schedule("doc-1", func() { fired.Add(1) })
	d.Cancel("doc-1")

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("expected no fire after cancel, got %d", got)
	}
	if d.Pending("doc-1") {
		t.Error("expected no pending action after cancel")
	}
}

func TestDebouncerFlush(t *testing.T) {
	d := NewDebouncer(time.Hour)
	defer d.Stop()

	var fired atomic.Int32
	d.Schedule("doc-1", func() { fired.Add(1) })
	d.Flush("doc-1")

	if got := fired.Load(); got != 1 {
		t.Errorf("expected flush to fire immediately, got %d", got)
	}
	if d.Pending("doc-1") {
		t.Error("expected no pending action after flush")
	}

	// Flushing again is a no-op.
	d.Flush("doc-1")
	if got := fired.Load(); got != 1 {
		t.Errorf("expected repeat flush to be a no-op, got %d fires", got)
	}
}
