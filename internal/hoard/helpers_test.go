package hoard

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/cdot/Squirrel-sub002/internal/clock"
)

var epoch = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func testHoard(t *testing.T) (*Hoard, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(epoch)
	return New(fake), fake
}

func ms(d time.Duration) int64 { return epoch.Add(d).UnixMilli() }

// treeOpts compares trees structurally, ignoring modification times.
var treeOpts = cmp.Options{
	cmp.AllowUnexported(Node{}),
	cmpopts.IgnoreFields(Node{}, "Time"),
}

func mustPlay(t *testing.T, h *Hoard, a Action) {
	t.Helper()
	if res := h.PlayAction(a); !res.OK() {
		t.Fatalf("play %s: %s", a, res.Conflict)
	}
}
