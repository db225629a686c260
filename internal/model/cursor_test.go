package model

import "testing"

func TestVirtualCursorMoveByClamps(t *testing.T) {
	vc := &VirtualCursor{X: 0, Y: 10, ActiveRemoteBounds: Rect{W: 1920, H: 1080}}
	vc.MoveBy(-5, 0)
	if vc.X != 0 || vc.Y != 10 {
		t.Fatalf("expected clamp to (0,10), got (%d,%d)", vc.X, vc.Y)
	}
}

func TestVirtualCursorMoveByWithinBounds(t *testing.T) {
	vc := &VirtualCursor{X: 100, Y: 100, ActiveRemoteBounds: Rect{W: 1920, H: 1080}}
	vc.MoveBy(3, -1)
	if vc.X != 103 || vc.Y != 99 {
		t.Fatalf("expected (103,99), got (%d,%d)", vc.X, vc.Y)
	}
}

func TestRectContains(t *testing.T) {
	r := Rect{X: 0, Y: 0, W: 10, H: 10}
	if !r.Contains(9, 9) {
		t.Fatal("expected (9,9) inside rect")
	}
	if r.Contains(10, 0) {
		t.Fatal("expected (10,0) outside rect")
	}
}

func TestReconnectStateNextDelay(t *testing.T) {
	r := &ReconnectState{}
	if got := r.NextDelay(); got.Milliseconds() != 3000 {
		t.Fatalf("abrupt default: expected 3000ms, got %v", got)
	}

	r.ExpectingReconnect = true
	if got := r.NextDelay(); got.Milliseconds() != 1000 {
		t.Fatalf("graceful no delay: expected 1000ms, got %v", got)
	}

	r.ExpectedDelayMS = 2000
	if got := r.NextDelay(); got.Milliseconds() != 2500 {
		t.Fatalf("graceful with delay: expected 2500ms, got %v", got)
	}
}

func TestReconnectStateReset(t *testing.T) {
	r := &ReconnectState{Attempts: 5, ExpectingReconnect: true, ExpectedDelayMS: 900}
	r.Reset()
	if r.Attempts != 0 || r.ExpectingReconnect || r.ExpectedDelayMS != 0 {
		t.Fatalf("expected zeroed state, got %+v", r)
	}
}

func TestLogRingEvictsOldest(t *testing.T) {
	ring := NewLogRing(3)
	for i := 0; i < 5; i++ {
		ring.Add(LogEntry{Message: string(rune('a' + i))})
	}
	got := ring.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	want := []string{"c", "d", "e"}
	for i, e := range got {
		if e.Message != want[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, want[i], e.Message)
		}
	}
}
