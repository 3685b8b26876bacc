// Package hoard implements the event-sourced tree that holds a replica's
// secrets: the Action log, the materialised Node tree it produces, conflict
// reporting replay, the time-ordered merge of two logs and the alarm scan.
//
// A Hoard is not safe for concurrent use; callers serialise access.
package hoard

import (
	"fmt"

	"github.com/cdot/Squirrel-sub002/internal/clock"
)

// Result is the outcome of replaying one action. Conflict is empty when
// the action was applied.
type Result struct {
	Action   Action
	Conflict string
}

// OK reports whether the action was applied.
func (r Result) OK() bool { return r.Conflict == "" }

// Hoard owns one tree and the actions applied to it since the last merge.
type Hoard struct {
	tree     *Node
	actions  []Action
	lastSync int64
	clock    clock.Clock
}

// New returns an empty hoard. A nil clock means the system clock.
func New(clk clock.Clock) *Hoard {
	if clk == nil {
		clk = clock.Real()
	}
	return &Hoard{tree: NewCollection(clock.NowMillis(clk)), clock: clk}
}

// Clone returns an independent copy sharing only the clock.
func (h *Hoard) Clone() *Hoard {
	return &Hoard{
		tree:     h.tree.Clone(),
		actions:  h.Actions(),
		lastSync: h.lastSync,
		clock:    h.clock,
	}
}

// Clock returns the hoard's time source.
func (h *Hoard) Clock() clock.Clock { return h.clock }

// Now returns the current time in epoch ms.
func (h *Hoard) Now() int64 { return clock.NowMillis(h.clock) }

// Node returns a copy of the node at path, or nil. The empty path is the
// root.
func (h *Hoard) Node(path Path) *Node {
	return h.tree.NodeAt(path, 0).Clone()
}

// Actions returns a copy of the pending action log.
func (h *Hoard) Actions() []Action {
	out := make([]Action, len(h.actions))
	copy(out, h.actions)
	return out
}

// PushAction appends a to the log without applying it to the tree.
func (h *Hoard) PushAction(a Action) {
	h.actions = append(h.actions, a)
}

// ClearActions empties the pending log after a successful merge.
func (h *Hoard) ClearActions() {
	h.actions = nil
}

// LastSync returns the time of the last merged action.
func (h *Hoard) LastSync() int64 { return h.lastSync }

// SetLastSync advances the sync marker.
func (h *Hoard) SetLastSync(t int64) { h.lastSync = t }

func conflict(a Action, verb, why string, args ...any) Result {
	return Result{
		Action:   a,
		Conflict: fmt.Sprintf("%s '%s': ", verb, a.Path) + fmt.Sprintf(why, args...),
	}
}

// touch stamps every collection from the root down to path.
func (h *Hoard) touch(path Path, at int64) {
	cur := h.tree
	cur.Time = at
	for _, k := range path {
		if cur = cur.children[k]; cur == nil {
			return
		}
		cur.Time = at
	}
}

// PlayAction applies a to the tree. Data level problems are returned as a
// conflict and leave the tree unchanged; applied actions are appended to
// the log.
func (h *Hoard) PlayAction(a Action) Result {
	res := h.apply(a)
	if res.OK() {
		h.actions = append(h.actions, a)
	}
	return res
}

func (h *Hoard) apply(a Action) Result {
	if len(a.Path) == 0 {
		return conflict(a, verbFor(a.Type), "Zero length path")
	}
	switch a.Type {
	case ActionNew:
		return h.applyNew(a)
	case ActionDelete:
		return h.applyDelete(a)
	case ActionEdit:
		return h.applyEdit(a)
	case ActionRename:
		return h.applyRename(a)
	case ActionAlarm, ActionCancel:
		return h.applyAlarm(a)
	case ActionConstrain:
		return h.applyConstrain(a)
	case ActionInsert:
		return h.applyInsert(a)
	case ActionMove:
		return h.applyMove(a)
	}
	return conflict(a, "Cannot apply", "Unknown action type %q", string(a.Type))
}

func verbFor(t ActionType) string {
	switch t {
	case ActionNew:
		return "Cannot create"
	case ActionDelete:
		return "Cannot delete"
	case ActionEdit:
		return "Cannot change value of"
	case ActionRename:
		return "Cannot rename"
	case ActionAlarm:
		return "Cannot add reminder to"
	case ActionCancel:
		return "Cannot cancel reminder on"
	case ActionConstrain:
		return "Cannot constrain"
	case ActionInsert:
		return "Cannot insert into"
	case ActionMove:
		return "Cannot move"
	}
	return "Cannot apply"
}

func (h *Hoard) applyNew(a Action) Result {
	parent := h.tree.NodeAt(a.Path, 1)
	if parent == nil || !parent.IsCollection() {
		return conflict(a, "Cannot create", "Node not found")
	}
	key := a.Path.Key()
	if parent.Child(key) != nil {
		return conflict(a, "Cannot create", "Already exists")
	}
	var n *Node
	if v, ok := a.Data.(Text); ok {
		n = NewLeaf(string(v), a.Time)
	} else {
		n = NewCollection(a.Time)
	}
	_ = parent.AddChild(key, n)
	h.touch(a.Path.Parent(), a.Time)
	return Result{Action: a}
}

func (h *Hoard) applyDelete(a Action) Result {
	parent := h.tree.NodeAt(a.Path, 1)
	if parent == nil || parent.Child(a.Path.Key()) == nil {
		return conflict(a, "Cannot delete", "Node not found")
	}
	_, _ = parent.RemoveChild(a.Path.Key())
	parent.Time = a.Time
	return Result{Action: a}
}

func (h *Hoard) applyEdit(a Action) Result {
	n := h.tree.NodeAt(a.Path, 0)
	if n == nil || !n.IsLeaf() {
		return conflict(a, "Cannot change value of", "It does not exist")
	}
	v, _ := a.Data.(Text)
	_ = n.setValue(string(v))
	n.Time = a.Time
	return Result{Action: a}
}

func (h *Hoard) applyRename(a Action) Result {
	parent := h.tree.NodeAt(a.Path, 1)
	key := a.Path.Key()
	if parent == nil || parent.Child(key) == nil {
		return conflict(a, "Cannot rename", "It does not exist")
	}
	t, _ := a.Data.(Text)
	newKey := string(t)
	if newKey == "" {
		return conflict(a, "Cannot rename", "No new name")
	}
	if newKey == key {
		return Result{Action: a}
	}
	if parent.Child(newKey) != nil {
		return conflict(a, "Cannot rename", "'%s' already exists", newKey)
	}
	n, _ := parent.RemoveChild(key)
	_ = parent.AddChild(newKey, n)
	n.Time = a.Time
	parent.Time = a.Time
	return Result{Action: a}
}

func (h *Hoard) applyAlarm(a Action) Result {
	n := h.tree.NodeAt(a.Path, 0)
	if n == nil {
		return conflict(a, verbFor(a.Type), "It does not exist")
	}
	if al, ok := a.Data.(Alarm); ok && a.Type == ActionAlarm {
		n.Alarm = &al
	} else {
		n.Alarm = nil
	}
	n.Time = a.Time
	return Result{Action: a}
}

func (h *Hoard) applyConstrain(a Action) Result {
	n := h.tree.NodeAt(a.Path, 0)
	if n == nil {
		return conflict(a, "Cannot constrain", "It does not exist")
	}
	if c, ok := a.Data.(Constraints); ok {
		n.Constraints = &c
	} else {
		n.Constraints = nil
	}
	n.Time = a.Time
	return Result{Action: a}
}

func (h *Hoard) applyInsert(a Action) Result {
	parent := h.tree.NodeAt(a.Path, 0)
	if parent == nil || !parent.IsCollection() {
		return conflict(a, "Cannot insert into", "It does not exist")
	}
	st, ok := a.Data.(Subtree)
	if !ok || st.Node == nil {
		return conflict(a, "Cannot insert into", "No subtree to insert")
	}
	if parent.Child(st.Name) != nil {
		return conflict(a, "Cannot insert into", "'%s' already exists", st.Name)
	}
	_ = parent.AddChild(st.Name, st.Node.Clone())
	h.touch(a.Path, a.Time)
	return Result{Action: a}
}

func (h *Hoard) applyMove(a Action) Result {
	srcParent := h.tree.NodeAt(a.Path, 1)
	key := a.Path.Key()
	if srcParent == nil || srcParent.Child(key) == nil {
		return conflict(a, "Cannot move", "It does not exist")
	}
	d, _ := a.Data.(Destination)
	dest := Path(d)
	if dest.HasPrefix(a.Path) {
		return conflict(a, "Cannot move", "Destination '%s' is inside it", dest)
	}
	target := h.tree.NodeAt(dest, 0)
	if target == nil || !target.IsCollection() {
		return conflict(a, "Cannot move", "Destination '%s' does not exist", dest)
	}
	if target.Child(key) != nil {
		return conflict(a, "Cannot move", "'%s' already exists in '%s'", key, dest)
	}
	n, _ := srcParent.RemoveChild(key)
	srcParent.Time = a.Time
	_ = target.AddChild(key, n)
	h.touch(dest, a.Time)
	return Result{Action: a}
}

type playConfig struct {
	since    int64
	hasSince bool
	lww      bool
	report   func(Result)
}

// PlayOption configures PlayActions.
type PlayOption func(*playConfig)

// WithSince skips actions whose time is at or before t.
func WithSince(t int64) PlayOption {
	return func(c *playConfig) {
		c.since = t
		c.hasSince = true
	}
}

// WithLastWriterWins refuses a value edit older than the last change to
// the leaf it targets, so replaying a stale edit from another replica
// cannot overwrite a newer value. The refused edit is reported as a
// conflict.
func WithLastWriterWins() PlayOption {
	return func(c *playConfig) {
		c.lww = true
	}
}

// WithReporter is called with the result of every action played.
func WithReporter(fn func(Result)) PlayOption {
	return func(c *playConfig) {
		c.report = fn
	}
}

// PlayActions replays actions in order. Conflicts never stop the batch;
// the number of conflicts is returned.
func (h *Hoard) PlayActions(actions []Action, opts ...PlayOption) int {
	var cfg playConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	conflicts := 0
	for _, a := range actions {
		if cfg.hasSince && a.Time <= cfg.since {
			continue
		}
		var res Result
		if cfg.lww && h.superseded(a) {
			res = conflict(a, "Cannot change value of", "Superseded by a later change")
		} else {
			res = h.PlayAction(a)
		}
		if !res.OK() {
			conflicts++
		}
		if cfg.report != nil {
			cfg.report(res)
		}
	}
	return conflicts
}

// superseded reports whether a is a value edit older than its target leaf.
func (h *Hoard) superseded(a Action) bool {
	if a.Type != ActionEdit {
		return false
	}
	n := h.tree.NodeAt(a.Path, 0)
	return n != nil && n.IsLeaf() && n.Time > a.Time
}
