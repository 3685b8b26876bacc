package vault

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cdot/Squirrel-sub002/internal/hoard"
	"github.com/cdot/Squirrel-sub002/internal/sse"
)

// Ring is one alarm offered during a scan.
type Ring struct {
	Path string    `json:"path"`
	Due  time.Time `json:"due"`
}

// CheckAlarms rings every due alarm and persists the advanced or cleared
// alarms. Rings that failed are returned joined; their alarms stay due.
// When the write fails the advanced alarms are kept in memory so they do
// not ring again before the next successful write.
func (s *Service) CheckAlarms(ctx context.Context) ([]Ring, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return nil, err
	}

	before := len(s.hoard.Actions())
	rung := []Ring{}
	scanErr := s.hoard.CheckAlarms(ctx, func(ctx context.Context, p hoard.Path, due time.Time) error {
		if s.ringer != nil {
			if err := s.ringer(ctx, p, due); err != nil {
				return err
			}
		}
		r := Ring{Path: p.String(), Due: due.UTC()}
		rung = append(rung, r)
		s.logger.Info("vault: alarm",
			slog.String("path", r.Path),
			slog.Time("due", r.Due))
		s.publish(sse.TypeAlarmRing, r)
		return nil
	})
	if scanErr != nil {
		s.logger.Warn("vault: alarm scan", slog.String("error", scanErr.Error()))
	}

	if len(s.hoard.Actions()) != before {
		if err := s.persistLocked(ctx); err != nil {
			return rung, errors.Join(scanErr, err)
		}
		s.publishTree(sse.TypeAlarmsUpdated, map[string]int{"rung": len(rung)})
	}
	return rung, scanErr
}
