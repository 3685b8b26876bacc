package clock

import (
	"testing"
	"time"
)

func TestFake_AdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)
	if !f.Now().Equal(start) {
		t.Fatalf("Now = %v, want %v", f.Now(), start)
	}
	f.Advance(90 * time.Second)
	if got := f.Now().Sub(start); got != 90*time.Second {
		t.Errorf("advanced by %v, want 90s", got)
	}
	f.Set(start)
	if NowMillis(f) != start.UnixMilli() {
		t.Errorf("NowMillis = %d, want %d", NowMillis(f), start.UnixMilli())
	}
}

func TestReal_Moves(t *testing.T) {
	c := Real()
	a := c.Now()
	if time.Since(a) < 0 {
		t.Error("real clock went backwards")
	}
}
