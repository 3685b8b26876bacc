// Package vault owns the local hoard of a running squirrel: it persists
// the hoard through a storage provider, serialises action submission,
// reconciles with the cloud copy and runs the alarm scan.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
	"github.com/cdot/Squirrel-sub002/internal/checksum"
	"github.com/cdot/Squirrel-sub002/internal/clock"
	"github.com/cdot/Squirrel-sub002/internal/hoard"
	"github.com/cdot/Squirrel-sub002/internal/importer"
	"github.com/cdot/Squirrel-sub002/internal/sse"
	"github.com/cdot/Squirrel-sub002/internal/storage"
)

// ErrNoCloud is returned by Sync when no cloud store is configured.
var ErrNoCloud = errors.New("vault: no cloud store configured")

// DefaultDocument is the blob name used when none is configured.
const DefaultDocument = "squirrel.json"

// Events receives vault activity. *sse.Broker implements it.
type Events interface {
	Publish(event sse.Event)
	PublishTreeEvent(eventType string, data any)
}

// Service coordinates the local hoard with its stores.
type Service struct {
	mu sync.Mutex

	local     storage.Provider
	localName string
	cloud     storage.Provider
	cloudName string

	hoard   *hoard.Hoard
	lastSum string // checksum of the local document last read or written
	opened  bool

	clock  clock.Clock
	events Events
	ringer hoard.RingFunc
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCloud sets the store reconciled against by Sync. An empty name
// means DefaultDocument.
func WithCloud(p storage.Provider, name string) Option {
	return func(s *Service) {
		s.cloud = p
		if name != "" {
			s.cloudName = name
		}
	}
}

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithEvents publishes activity to e.
func WithEvents(e Events) Option {
	return func(s *Service) { s.events = e }
}

// WithRinger is called for every due alarm in addition to the alarm.ring
// event. A returned error leaves the alarm due.
func WithRinger(fn hoard.RingFunc) Option {
	return func(s *Service) { s.ringer = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a service whose hoard lives in local under name. Call Open
// before use.
func New(local storage.Provider, name string, opts ...Option) *Service {
	if name == "" {
		name = DefaultDocument
	}
	s := &Service{
		local:     local,
		localName: name,
		cloudName: DefaultDocument,
		clock:     clock.Real(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock's current time in epoch ms.
func (s *Service) Now() int64 { return clock.NowMillis(s.clock) }

// HasCloud reports whether Sync has a store to reconcile with.
func (s *Service) HasCloud() bool { return s.cloud != nil }

// Open reads the local document. A missing document starts a fresh hoard.
func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.local.Read(ctx, s.localName)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		s.hoard = hoard.New(s.clock)
		s.lastSum = ""
		s.logger.Info("vault: starting empty hoard", slog.String("document", s.localName))
	case err != nil:
		return fmt.Errorf("vault: open: %w", err)
	default:
		h, err := hoard.Load(data, s.clock)
		if err != nil {
			return fmt.Errorf("vault: open %s: %w", s.localName, err)
		}
		s.hoard = h
		s.lastSum = checksum.Sum(data)
		s.logger.Info("vault: loaded hoard",
			slog.String("document", s.localName),
			slog.Int("pending", len(h.Actions())))
	}
	s.opened = true
	return nil
}

// Ready reports whether the hoard has been opened.
func (s *Service) Ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return errors.New("vault: not opened")
	}
	return nil
}

// Play applies a and persists the hoard when it succeeds. A conflict is
// reported in the result, not as an error. When the write fails the
// in-memory hoard is left as it was.
func (s *Service) Play(ctx context.Context, a hoard.Action) (hoard.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return hoard.Result{}, err
	}

	next := s.hoard.Clone()
	res := next.PlayAction(a)
	if !res.OK() {
		s.logger.Debug("vault: conflict",
			slog.String("action", a.String()),
			slog.String("conflict", res.Conflict))
		s.publish(sse.TypeActionConflict, resultEvent(res))
		return res, nil
	}
	if err := s.store(ctx, next); err != nil {
		return res, err
	}
	s.hoard = next
	s.publishTree(sse.TypeActionPlayed, resultEvent(res))
	return res, nil
}

// Node returns a copy of the node at path.
func (s *Service) Node(path hoard.Path) (*hoard.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	n := s.hoard.Node(path)
	if n == nil {
		return nil, fmt.Errorf("vault: node %q: %w", path.String(), apperr.ErrNotFound)
	}
	return n, nil
}

// TreeJSON renders the whole tree.
func (s *Service) TreeJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	return s.hoard.TreeJSON()
}

// Pending returns the actions not yet reconciled with the cloud.
func (s *Service) Pending() []hoard.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hoard == nil {
		return nil
	}
	return s.hoard.Actions()
}

// LastSync returns the time of the last merged action.
func (s *Service) LastSync() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hoard == nil {
		return 0
	}
	return s.hoard.LastSync()
}

// Import grafts the document data under parent as name.
func (s *Service) Import(ctx context.Context, parent hoard.Path, name string, data []byte, format importer.Format) (hoard.Result, error) {
	now := clock.NowMillis(s.clock)
	sub, err := importer.Parse(data, format, now)
	if err != nil {
		return hoard.Result{}, err
	}
	if len(parent) == 0 {
		// The root cannot be addressed, so a top level import is a create
		// followed by inserts of each child.
		return s.importTopLevel(ctx, name, sub, now)
	}
	a, err := hoard.NewAction(hoard.ActionInsert, parent, now, hoard.Subtree{Name: name, Node: sub})
	if err != nil {
		return hoard.Result{}, err
	}
	return s.Play(ctx, a)
}

func (s *Service) importTopLevel(ctx context.Context, name string, sub *hoard.Node, now int64) (hoard.Result, error) {
	if sub.IsLeaf() {
		a, err := hoard.NewAction(hoard.ActionNew, hoard.Path{name}, now, sub.Value())
		if err != nil {
			return hoard.Result{}, err
		}
		return s.Play(ctx, a)
	}
	a, err := hoard.NewAction(hoard.ActionNew, hoard.Path{name}, now, nil)
	if err != nil {
		return hoard.Result{}, err
	}
	res, err := s.Play(ctx, a)
	if err != nil || !res.OK() {
		return res, err
	}
	for _, k := range sub.Keys() {
		ins, err := hoard.NewAction(hoard.ActionInsert, hoard.Path{name}, now, hoard.Subtree{Name: k, Node: sub.Child(k)})
		if err != nil {
			return hoard.Result{}, err
		}
		if r, err := s.Play(ctx, ins); err != nil || !r.OK() {
			return r, err
		}
	}
	return res, nil
}

// Reload re-reads the local document when another process changed it.
// It reports whether the in-memory hoard was replaced.
func (s *Service) Reload(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.local.Read(ctx, s.localName)
	if err != nil {
		return false, fmt.Errorf("vault: reload: %w", err)
	}
	sum := checksum.Sum(data)
	if sum == s.lastSum {
		return false, nil
	}
	h, err := hoard.Load(data, s.clock)
	if err != nil {
		return false, fmt.Errorf("vault: reload %s: %w", s.localName, err)
	}
	s.hoard = h
	s.lastSum = sum
	s.opened = true
	s.logger.Info("vault: reloaded hoard", slog.String("document", s.localName))
	s.publishTree(sse.TypeTreeReloaded, map[string]string{"document": s.localName})
	return true, nil
}

func (s *Service) requireOpen() error {
	if s.hoard == nil {
		return errors.New("vault: not opened")
	}
	return nil
}

func (s *Service) persistLocked(ctx context.Context) error {
	return s.store(ctx, s.hoard)
}

// store writes h as the local document.
func (s *Service) store(ctx context.Context, h *hoard.Hoard) error {
	data, err := h.MarshalDocument()
	if err != nil {
		return fmt.Errorf("vault: encode: %w", err)
	}
	if err := s.local.Write(ctx, s.localName, data); err != nil {
		s.logger.Error("vault: persist failed", slog.String("error", err.Error()))
		return fmt.Errorf("vault: persist: %w", err)
	}
	s.lastSum = checksum.Sum(data)
	return nil
}

func (s *Service) publish(eventType string, data any) {
	if s.events != nil {
		s.events.Publish(sse.Event{Type: eventType, Data: data})
	}
}

func (s *Service) publishTree(eventType string, data any) {
	if s.events != nil {
		s.events.PublishTreeEvent(eventType, data)
	}
}

// resultEvent describes an action without its payload, which may hold a
// secret value.
func resultEvent(r hoard.Result) map[string]any {
	out := map[string]any{
		"type": string(r.Action.Type),
		"path": r.Action.Path.String(),
		"time": r.Action.Time,
	}
	if r.Conflict != "" {
		out["conflict"] = r.Conflict
	}
	return out
}
