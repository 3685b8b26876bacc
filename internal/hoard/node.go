package hoard

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
)

// ErrNotCollection is returned when a child operation targets a leaf.
var ErrNotCollection = errors.New("hoard: not a collection")

// Kind distinguishes the two node variants.
type Kind uint8

const (
	KindCollection Kind = iota
	KindLeaf
)

func (k Kind) String() string {
	switch k {
	case KindCollection:
		return "collection"
	case KindLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// Node is one element of the materialised tree: either a leaf holding a
// value or a collection of uniquely keyed children. Alarm and Constraints
// may decorate either kind.
type Node struct {
	Time        int64 // last modified, epoch ms
	Alarm       *Alarm
	Constraints *Constraints

	kind     Kind
	value    string
	children map[string]*Node
}

// NewLeaf returns a leaf holding value.
func NewLeaf(value string, at int64) *Node {
	return &Node{Time: at, kind: KindLeaf, value: value}
}

// NewCollection returns an empty collection.
func NewCollection(at int64) *Node {
	return &Node{Time: at, kind: KindCollection}
}

func (n *Node) Kind() Kind         { return n.kind }
func (n *Node) IsLeaf() bool       { return n.kind == KindLeaf }
func (n *Node) IsCollection() bool { return n.kind == KindCollection }

// Value returns the leaf value, or "" for a collection.
func (n *Node) Value() string { return n.value }

// setValue overwrites a leaf value.
func (n *Node) setValue(v string) error {
	if n.kind != KindLeaf {
		return fmt.Errorf("hoard: set value on a collection: %w", apperr.ErrMalformed)
	}
	n.value = v
	return nil
}

// Len returns the number of children.
func (n *Node) Len() int { return len(n.children) }

// Keys returns the child keys in sorted order.
func (n *Node) Keys() []string {
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Child returns the child at key, or nil.
func (n *Node) Child(key string) *Node {
	return n.children[key]
}

// AddChild attaches c under key. The key must be free.
func (n *Node) AddChild(key string, c *Node) error {
	if n.kind != KindCollection {
		return ErrNotCollection
	}
	if _, ok := n.children[key]; ok {
		return fmt.Errorf("hoard: add child %q: %w", key, apperr.ErrAlreadyExists)
	}
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	n.children[key] = c
	return nil
}

// RemoveChild detaches and returns the child at key. Removing the last
// child drops the map, so an emptied collection matches a fresh one.
func (n *Node) RemoveChild(key string) (*Node, error) {
	if n.kind != KindCollection {
		return nil, ErrNotCollection
	}
	c, ok := n.children[key]
	if !ok {
		return nil, fmt.Errorf("hoard: remove child %q: %w", key, apperr.ErrNotFound)
	}
	delete(n.children, key)
	if len(n.children) == 0 {
		n.children = nil
	}
	return c, nil
}

// NodeAt walks path, ignoring its last offset keys, and returns the node
// reached or nil as soon as a key does not resolve. NodeAt(p, 1) is the
// parent of p.
func (n *Node) NodeAt(path Path, offset int) *Node {
	end := len(path) - offset
	if end < 0 {
		return nil
	}
	cur := n
	for _, key := range path[:end] {
		if cur.kind != KindCollection {
			return nil
		}
		cur = cur.children[key]
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Time: n.Time, kind: n.kind, value: n.value}
	if n.Alarm != nil {
		a := *n.Alarm
		out.Alarm = &a
	}
	if n.Constraints != nil {
		c := *n.Constraints
		out.Constraints = &c
	}
	if len(n.children) > 0 {
		out.children = make(map[string]*Node, len(n.children))
		for k, c := range n.children {
			out.children[k] = c.Clone()
		}
	}
	return out
}

// Walk visits n and its descendants depth first, parents before children,
// siblings in key order. Returning an error stops the walk.
func (n *Node) Walk(path Path, fn func(path Path, node *Node) error) error {
	if err := fn(path, n); err != nil {
		return err
	}
	for _, k := range n.Keys() {
		if err := n.children[k].Walk(path.Child(k), fn); err != nil {
			return err
		}
	}
	return nil
}

func alarmEqual(a, b *Alarm) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func constraintsEqual(a, b *Constraints) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
