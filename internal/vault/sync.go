package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
	"github.com/cdot/Squirrel-sub002/internal/checksum"
	"github.com/cdot/Squirrel-sub002/internal/hoard"
	"github.com/cdot/Squirrel-sub002/internal/sse"
	"github.com/cdot/Squirrel-sub002/internal/storage"
)

const maxSyncAttempts = 3

// SyncReport summarises one reconciliation.
type SyncReport struct {
	Seeded      bool     `json:"seeded"`
	Merged      int      `json:"merged"`
	PlayedLocal int      `json:"played_local"`
	PlayedCloud int      `json:"played_cloud"`
	Corrections int      `json:"corrections"`
	Conflicts   []string `json:"conflicts"`
	LastSync    int64    `json:"last_sync"`
}

type syncRound struct {
	report    SyncReport
	local     *hoard.Hoard
	cloudData []byte
	cloudSum  string // digest of the cloud document read, "" if absent
}

// Sync reconciles the local hoard with the cloud copy. Both logs are
// merged; each side replays the merged actions it has not applied itself,
// refusing value edits older than the leaf they target; the local tree
// then absorbs whatever remaining differences the cloud tree holds. Both logs are cleared and both sync markers advanced.
//
// The cloud document is written before the local one. When the cloud
// store supports conditional writes and the document changed while
// reconciling, the round is retried.
func (s *Service) Sync(ctx context.Context) (SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return SyncReport{}, err
	}
	if s.cloud == nil {
		return SyncReport{}, ErrNoCloud
	}

	for attempt := 1; ; attempt++ {
		round, err := s.reconcile(ctx)
		if err != nil {
			return SyncReport{}, err
		}
		err = s.writeCloud(ctx, round)
		if errors.Is(err, apperr.ErrConflict) && attempt < maxSyncAttempts {
			s.logger.Warn("vault: cloud changed during sync, retrying",
				slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return SyncReport{}, fmt.Errorf("vault: sync: %w", err)
		}

		if err := s.store(ctx, round.local); err != nil {
			return round.report, err
		}
		s.hoard = round.local
		s.logger.Info("vault: sync completed",
			slog.Int("merged", round.report.Merged),
			slog.Int("played_local", round.report.PlayedLocal),
			slog.Int("played_cloud", round.report.PlayedCloud),
			slog.Int("conflicts", len(round.report.Conflicts)))
		s.publishTree(sse.TypeSyncCompleted, round.report)
		return round.report, nil
	}
}

func (s *Service) writeCloud(ctx context.Context, round syncRound) error {
	if c, ok := s.cloud.(storage.Conditional); ok {
		return c.WriteIf(ctx, s.cloudName, round.cloudData, round.cloudSum)
	}
	return s.cloud.Write(ctx, s.cloudName, round.cloudData)
}

// reconcile works on copies so a failed write leaves the service as it was.
func (s *Service) reconcile(ctx context.Context) (syncRound, error) {
	var round syncRound

	doc, sum, err := s.readCloud(ctx)
	if err != nil {
		return round, err
	}
	round.cloudSum = sum

	local := s.hoard.Clone()
	cloud := hoard.FromDocument(doc, s.clock)
	localLog := local.Actions()
	cloudLog := cloud.Actions()

	localApplied := identities(localLog)
	cloudApplied := map[string]struct{}{}
	if doc.Tree != nil {
		cloudApplied = identities(cloudLog)
	} else {
		// A never-synced cloud starts as a copy of the local tree. Local
		// actions are already reflected in it.
		cloud.ClearActions()
		local.ActionsFromTree(func(a hoard.Action) {
			if res := cloud.PlayAction(a); !res.OK() {
				round.report.Conflicts = append(round.report.Conflicts, "cloud: "+res.Conflict)
			}
		})
		for id := range localApplied {
			cloudApplied[id] = struct{}{}
		}
		round.report.Seeded = true
	}

	merged := hoard.MergeActions(localLog, cloudLog)
	round.report.Merged = len(merged)

	var toCloud, toLocal []hoard.Action
	for _, a := range merged {
		id := a.Identity()
		if _, ok := cloudApplied[id]; !ok {
			toCloud = append(toCloud, a)
		}
		if _, ok := localApplied[id]; !ok {
			toLocal = append(toLocal, a)
		}
	}

	report := func(side string, played *int) hoard.PlayOption {
		return hoard.WithReporter(func(r hoard.Result) {
			if r.OK() {
				*played++
				return
			}
			s.logger.Debug("vault: sync conflict",
				slog.String("side", side),
				slog.String("action", r.Action.String()),
				slog.String("conflict", r.Conflict))
			round.report.Conflicts = append(round.report.Conflicts, side+": "+r.Conflict)
		})
	}
	// Logs are cleared on every sync, so a newer edit may survive only as
	// the target leaf's time; a stale edit must not overwrite it.
	lww := hoard.WithLastWriterWins()
	cloud.PlayActions(toCloud, lww, report("cloud", &round.report.PlayedCloud))
	local.PlayActions(toLocal, lww, report("local", &round.report.PlayedLocal))

	// The cloud log only holds actions not yet reconciled by anyone, so
	// changes another replica already merged are visible only in the tree.
	var fixes []hoard.Action
	local.Node(hoard.Path{}).Diff(hoard.Path{}, cloud.Node(hoard.Path{}), func(a hoard.Action, _, _ *hoard.Node) {
		fixes = append(fixes, a)
	})
	var corrected int
	local.PlayActions(fixes, report("local", &corrected))
	round.report.Corrections = corrected

	last := max(local.LastSync(), cloud.LastSync())
	if n := len(merged); n > 0 {
		last = max(last, merged[n-1].Time)
	}
	for _, h := range []*hoard.Hoard{local, cloud} {
		h.ClearActions()
		h.SetLastSync(last)
	}
	round.report.LastSync = last
	if round.report.Conflicts == nil {
		round.report.Conflicts = []string{}
	}

	if round.cloudData, err = cloud.MarshalDocument(); err != nil {
		return round, fmt.Errorf("vault: encode cloud: %w", err)
	}
	round.local = local
	return round, nil
}

// readCloud returns the cloud document and its digest. A missing document
// is a never-synced hoard.
func (s *Service) readCloud(ctx context.Context) (hoard.Document, string, error) {
	data, err := s.cloud.Read(ctx, s.cloudName)
	if errors.Is(err, apperr.ErrNotFound) {
		return hoard.Document{Version: hoard.DocumentVersion}, "", nil
	}
	if err != nil {
		return hoard.Document{}, "", fmt.Errorf("vault: read cloud: %w", err)
	}
	doc, err := hoard.ParseDocument(data)
	if err != nil {
		return hoard.Document{}, "", fmt.Errorf("vault: read cloud: %w", err)
	}
	return doc, checksum.Sum(data), nil
}

func identities(actions []hoard.Action) map[string]struct{} {
	out := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		out[a.Identity()] = struct{}{}
	}
	return out
}
