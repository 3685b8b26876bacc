package hoard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckAlarms_CatchUp(t *testing.T) {
	h, fake := testHoard(t)
	mustPlay(t, h, MustAction(ActionNew, Path{"pw"}, ms(0), "v"))
	mustPlay(t, h, MustAction(ActionAlarm, Path{"pw"}, ms(0), Alarm{Due: ms(0), Repeat: Day}))
	fake.Advance(60 * time.Hour)

	var rung []string
	ring := func(_ context.Context, p Path, due time.Time) error {
		rung = append(rung, p.String())
		if !due.Equal(epoch) {
			t.Errorf("due = %v, want %v", due, epoch)
		}
		return nil
	}
	if err := h.CheckAlarms(context.Background(), ring); err != nil {
		t.Fatalf("CheckAlarms: %v", err)
	}
	if len(rung) != 1 {
		t.Fatalf("rung %v, want once", rung)
	}
	if al := h.Node(Path{"pw"}).Alarm; al == nil || al.Due != ms(72*time.Hour) {
		t.Errorf("alarm = %+v, want due at +72h", al)
	}

	rung = nil
	if err := h.CheckAlarms(context.Background(), ring); err != nil {
		t.Fatalf("second CheckAlarms: %v", err)
	}
	if len(rung) != 0 {
		t.Errorf("rang again before next due: %v", rung)
	}
}

func TestCheckAlarms_OneShotCleared(t *testing.T) {
	h, fake := testHoard(t)
	mustPlay(t, h, MustAction(ActionNew, Path{"pw"}, ms(0), "v"))
	mustPlay(t, h, MustAction(ActionAlarm, Path{"pw"}, ms(0), Alarm{Due: ms(time.Minute)}))
	fake.Advance(time.Hour)

	if err := h.CheckAlarms(context.Background(), func(context.Context, Path, time.Time) error { return nil }); err != nil {
		t.Fatalf("CheckAlarms: %v", err)
	}
	if al := h.Node(Path{"pw"}).Alarm; al != nil {
		t.Errorf("alarm = %+v, want cleared", al)
	}
	actions := h.Actions()
	if last := actions[len(actions)-1]; last.Type != ActionCancel || last.Time != ms(time.Hour) {
		t.Errorf("last action = %s", last)
	}
}

func TestCheckAlarms_RingErrorKeepsAlarm(t *testing.T) {
	h, fake := testHoard(t)
	for _, k := range []string{"a", "b"} {
		mustPlay(t, h, MustAction(ActionNew, Path{k}, ms(0), "v"))
		mustPlay(t, h, MustAction(ActionAlarm, Path{k}, ms(0), Alarm{Due: ms(time.Minute)}))
	}
	fake.Advance(time.Hour)

	boom := errors.New("boom")
	var rung []string
	err := h.CheckAlarms(context.Background(), func(_ context.Context, p Path, _ time.Time) error {
		rung = append(rung, p.String())
		if p.Key() == "a" {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(rung) != 2 {
		t.Errorf("rung %v, want both", rung)
	}
	if h.Node(Path{"a"}).Alarm == nil {
		t.Error("failed alarm was cleared")
	}
	if h.Node(Path{"b"}).Alarm != nil {
		t.Error("rung alarm was kept")
	}
}

func TestNextDue(t *testing.T) {
	cases := []struct {
		al   Alarm
		now  int64
		want int64
	}{
		{Alarm{Due: 100, Repeat: 10}, 99, 100},
		{Alarm{Due: 100, Repeat: 10}, 100, 110},
		{Alarm{Due: 100, Repeat: 10}, 125, 130},
		{Alarm{Due: 100}, 500, 100},
	}
	for _, tc := range cases {
		if got := NextDue(tc.al, tc.now); got != tc.want {
			t.Errorf("NextDue(%+v, %d) = %d, want %d", tc.al, tc.now, got, tc.want)
		}
	}
}
