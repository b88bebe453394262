package warnings

import "testing"

func TestQueue_DrainEmpties(t *testing.T) {
	q := NewQueue()
	q.Warn("first")
	q.Warn("second")

	if q.Len() != 2 {
		t.Fatalf("expected 2 pending, got %d", q.Len())
	}

	got := q.Drain()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("unexpected drain order: %v", got)
	}
	if q.Len() != 0 {
		t.Errorf("queue should be empty after drain, got %d", q.Len())
	}
	if again := q.Drain(); len(again) != 0 {
		t.Errorf("second drain should be empty, got %v", again)
	}
}

func TestFunc_ForwardsMessage(t *testing.T) {
	var seen string
	var sink Sink = Func(func(msg string) { seen = msg })
	sink.Warn("hello")
	if seen != "hello" {
		t.Errorf("expected forwarded message, got %q", seen)
	}
}
