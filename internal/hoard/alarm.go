package hoard

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RingFunc is offered every due alarm. Returning an error leaves the alarm
// due so it rings again on the next scan.
type RingFunc func(ctx context.Context, path Path, due time.Time) error

// CheckAlarms offers each alarm due at or before now to ring, depth first.
// After a successful ring a repeating alarm is advanced by whole periods
// until it lies in the future and a one-shot alarm is cleared; both are
// recorded as actions so they reconcile like any other edit. A failing
// ring does not stop the scan; all ring errors are returned joined.
func (h *Hoard) CheckAlarms(ctx context.Context, ring RingFunc) error {
	now := h.Now()

	type due struct {
		path  Path
		alarm Alarm
	}
	var pending []due
	_ = h.tree.Walk(Path{}, func(p Path, n *Node) error {
		if len(p) > 0 && n.Alarm != nil && n.Alarm.Due <= now {
			pending = append(pending, due{path: p, alarm: *n.Alarm})
		}
		return nil
	})

	var errs []error
	for _, d := range pending {
		if err := ring(ctx, d.path, time.UnixMilli(d.alarm.Due)); err != nil {
			errs = append(errs, fmt.Errorf("hoard: ring %s: %w", d.path, err))
			continue
		}
		next := Action{Type: ActionCancel, Path: d.path, Time: now}
		if d.alarm.Repeat > 0 {
			next.Type = ActionAlarm
			next.Data = Alarm{Due: NextDue(d.alarm, now), Repeat: d.alarm.Repeat}
		}
		if res := h.PlayAction(next); !res.OK() {
			errs = append(errs, errors.New(res.Conflict))
		}
	}
	return errors.Join(errs...)
}

// NextDue returns the smallest al.Due + k*al.Repeat strictly after now.
// A non-repeating alarm is returned unchanged.
func NextDue(al Alarm, now int64) int64 {
	if al.Repeat <= 0 || al.Due > now {
		return al.Due
	}
	k := (now-al.Due)/al.Repeat + 1
	return al.Due + k*al.Repeat
}
