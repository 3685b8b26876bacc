package hoard

import (
	"encoding/json"
	"fmt"

	"github.com/cdot/Squirrel-sub002/internal/clock"
)

// DocumentVersion is the version written to persisted documents.
const DocumentVersion = 1

// Document is the persisted form of a hoard. Tree is nil for a hoard that
// has never been synced.
type Document struct {
	Actions  []Action `json:"actions"`
	Tree     *Node    `json:"tree"`
	Version  int      `json:"version"`
	LastSync int64    `json:"last_sync,omitempty"`
}

// ParseDocument decodes a persisted document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("hoard: parse document: %w", err)
	}
	if doc.Version != 0 && doc.Version != DocumentVersion {
		return Document{}, malformed("hoard: unsupported document version %d", doc.Version)
	}
	if doc.Tree != nil && !doc.Tree.IsCollection() {
		return Document{}, malformed("hoard: document root is not a collection")
	}
	return doc, nil
}

// FromDocument hydrates a hoard. A nil tree starts empty.
func FromDocument(doc Document, clk clock.Clock) *Hoard {
	h := New(clk)
	if doc.Tree != nil {
		h.tree = doc.Tree.Clone()
	}
	h.actions = append([]Action(nil), doc.Actions...)
	h.lastSync = doc.LastSync
	return h
}

// Load parses and hydrates a persisted document.
func Load(data []byte, clk clock.Clock) (*Hoard, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc, clk), nil
}

// Document returns a detached copy of the hoard's persisted form.
func (h *Hoard) Document() Document {
	actions := h.Actions()
	if actions == nil {
		actions = []Action{}
	}
	return Document{
		Actions:  actions,
		Tree:     h.tree.Clone(),
		Version:  DocumentVersion,
		LastSync: h.lastSync,
	}
}

// MarshalDocument serialises the hoard for an opaque byte store.
func (h *Hoard) MarshalDocument() ([]byte, error) {
	return json.Marshal(h.Document())
}

// TreeJSON renders the tree alone, one space per indent level.
func (h *Hoard) TreeJSON() ([]byte, error) {
	return json.MarshalIndent(h.tree, "", " ")
}

// ActionsFromTree emits the actions that rebuild tree from an empty
// hoard: for each node in depth first order an N, then A and X for its
// decorations, parents before children. The root is implicit.
func ActionsFromTree(tree *Node, emit func(Action)) {
	for _, k := range tree.Keys() {
		emitTree(Path{k}, tree.children[k], emit)
	}
}

// ActionsFromTree emits the rebuilding actions for the hoard's own tree.
func (h *Hoard) ActionsFromTree(emit func(Action)) {
	ActionsFromTree(h.tree, emit)
}

func emitTree(path Path, n *Node, emit func(Action)) {
	_ = n.Walk(path, func(p Path, node *Node) error {
		a := Action{Type: ActionNew, Path: p, Time: node.Time}
		if node.IsLeaf() {
			a.Data = Text(node.value)
		}
		emit(a)
		if node.Alarm != nil {
			emit(Action{Type: ActionAlarm, Path: p, Time: node.Time, Data: *node.Alarm})
		}
		if node.Constraints != nil {
			emit(Action{Type: ActionConstrain, Path: p, Time: node.Time, Data: *node.Constraints})
		}
		return nil
	})
}
