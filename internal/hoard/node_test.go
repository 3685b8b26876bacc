package hoard

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
)

func TestNode_AddRemoveChild(t *testing.T) {
	n := NewCollection(0)
	if err := n.AddChild("a", NewLeaf("x", 0)); err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	if err := n.AddChild("a", NewLeaf("y", 0)); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate AddChild err = %v, want ErrAlreadyExists", err)
	}
	if _, err := n.RemoveChild("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("RemoveChild missing err = %v, want ErrNotFound", err)
	}
	if _, err := n.RemoveChild("a"); err != nil {
		t.Fatalf("RemoveChild: %v", err)
	}
	if n.children != nil {
		t.Error("emptied collection kept its map")
	}
	if err := NewLeaf("v", 0).AddChild("a", NewCollection(0)); !errors.Is(err, ErrNotCollection) {
		t.Errorf("AddChild on leaf err = %v", err)
	}
}

func TestNode_NodeAt(t *testing.T) {
	root := NewCollection(0)
	a := NewCollection(0)
	_ = root.AddChild("a", a)
	_ = a.AddChild("b", NewLeaf("v", 0))

	if got := root.NodeAt(Path{"a", "b"}, 1); got != a {
		t.Errorf("NodeAt offset 1 = %p, want %p", got, a)
	}
	if got := root.NodeAt(Path{"a", "b"}, 0); got == nil || got.Value() != "v" {
		t.Errorf("NodeAt leaf = %+v", got)
	}
	if got := root.NodeAt(Path{"a", "b", "c"}, 0); got != nil {
		t.Errorf("NodeAt through a leaf = %+v, want nil", got)
	}
	if got := root.NodeAt(Path{"a"}, 2); got != nil {
		t.Errorf("NodeAt with offset past the root = %+v, want nil", got)
	}
	if got := root.NodeAt(Path{}, 0); got != root {
		t.Error("empty path is not the root")
	}
}

func TestDiff_ReportOrder(t *testing.T) {
	mine := NewCollection(0)
	a := NewCollection(0)
	_ = mine.AddChild("a", a)
	_ = a.AddChild("x", NewLeaf("1", 0))
	_ = a.AddChild("y", NewLeaf("2", 0))

	theirs := NewCollection(10)
	b := NewCollection(10)
	b.Alarm = &Alarm{Due: 99}
	_ = theirs.AddChild("a", b)
	_ = b.AddChild("x", NewLeaf("2", 10))
	_ = b.AddChild("z", NewLeaf("3", 10))

	var got []string
	mine.Diff(Path{}, theirs, func(act Action, _, _ *Node) {
		got = append(got, string(act.Type)+":"+act.Path.String())
	})
	want := []string{"A:a", "E:a↘x", "D:a↘y", "I:a"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diff actions (-want +got):\n%s", diff)
	}
}

func TestDiff_ReplayConverges(t *testing.T) {
	h, _ := testHoard(t)
	mustPlay(t, h, MustAction(ActionNew, Path{"a"}, ms(0), nil))
	mustPlay(t, h, MustAction(ActionNew, Path{"a", "x"}, ms(0), "1"))
	mustPlay(t, h, MustAction(ActionNew, Path{"gone"}, ms(0), "bye"))

	other, _ := testHoard(t)
	mustPlay(t, other, MustAction(ActionNew, Path{"a"}, ms(0), nil))
	mustPlay(t, other, MustAction(ActionNew, Path{"a", "x"}, ms(0), "2"))
	mustPlay(t, other, MustAction(ActionConstrain, Path{"a", "x"}, ms(0), "8;a-z"))
	mustPlay(t, other, MustAction(ActionNew, Path{"a", "sub"}, ms(0), nil))
	mustPlay(t, other, MustAction(ActionNew, Path{"a", "sub", "leaf"}, ms(0), "deep"))
	mustPlay(t, other, MustAction(ActionNew, Path{"top"}, ms(0), nil))
	mustPlay(t, other, MustAction(ActionNew, Path{"top", "k"}, ms(0), "v"))

	var fixes []Action
	h.Node(Path{}).Diff(Path{}, other.Node(Path{}), func(a Action, _, _ *Node) {
		fixes = append(fixes, a)
	})
	if n := h.PlayActions(fixes); n != 0 {
		t.Fatalf("%d conflicts applying diff", n)
	}
	if diff := cmp.Diff(other.Node(Path{}), h.Node(Path{}), treeOpts); diff != "" {
		t.Errorf("trees differ after applying diff (-want +got):\n%s", diff)
	}
}

func TestDiff_RootLevelInsertUsesNew(t *testing.T) {
	mine := NewCollection(0)
	theirs := NewCollection(0)
	sub := NewCollection(5)
	_ = sub.AddChild("k", NewLeaf("v", 5))
	_ = theirs.AddChild("b", sub)

	var got []string
	mine.Diff(Path{}, theirs, func(a Action, _, _ *Node) {
		got = append(got, string(a.Type)+":"+a.Path.String())
	})
	if diff := cmp.Diff([]string{"N:b", "N:b↘k"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestNodeJSON_CompactForms(t *testing.T) {
	at := ms(0)
	leaf := NewLeaf("1234", at)
	leaf.Alarm = &Alarm{Due: at + 30*Day, Repeat: 30 * Day}
	leaf.Constraints = &Constraints{Size: 4, Chars: "0-9"}

	b, err := json.Marshal(leaf)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"alarm":30`) {
		t.Errorf("alarm not compact: %s", b)
	}
	if !strings.Contains(string(b), `"constraints":"4;0-9"`) {
		t.Errorf("constraints not compact: %s", b)
	}

	var back Node
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(leaf, &back, cmp.AllowUnexported(Node{})); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestNodeJSON_ObjectAlarm(t *testing.T) {
	leaf := NewLeaf("v", ms(0))
	leaf.Alarm = &Alarm{Due: ms(time.Hour)}
	b, err := json.Marshal(leaf)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Node
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Alarm == nil || *back.Alarm != *leaf.Alarm {
		t.Errorf("alarm = %+v, want %+v", back.Alarm, leaf.Alarm)
	}
}

func TestNodeJSON_MissingDataIsCollection(t *testing.T) {
	var n Node
	if err := json.Unmarshal([]byte(`{"time":7}`), &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !n.IsCollection() || n.Len() != 0 || n.Time != 7 {
		t.Errorf("node = %+v", n)
	}
	if err := json.Unmarshal([]byte(`{"time":7,"data":12}`), &n); !errors.Is(err, apperr.ErrMalformed) {
		t.Errorf("numeric data err = %v, want ErrMalformed", err)
	}
}

func TestTreeJSON_Indent(t *testing.T) {
	h, _ := testHoard(t)
	mustPlay(t, h, MustAction(ActionNew, Path{"a"}, ms(0), "v"))
	b, err := h.TreeJSON()
	if err != nil {
		t.Fatalf("TreeJSON: %v", err)
	}
	if !strings.HasPrefix(string(b), "{\n \"time\"") {
		t.Errorf("TreeJSON = %q", b)
	}
}
