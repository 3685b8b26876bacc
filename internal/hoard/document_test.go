package hoard

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
	"github.com/cdot/Squirrel-sub002/internal/clock"
)

func TestDocument_RoundTrip(t *testing.T) {
	h, fake := testHoard(t)
	mustPlay(t, h, MustAction(ActionNew, Path{"Sites"}, ms(0), nil))
	mustPlay(t, h, MustAction(ActionNew, Path{"Sites", "Bank"}, ms(time.Second), "pw"))
	h.SetLastSync(ms(time.Second))

	b, err := h.MarshalDocument()
	if err != nil {
		t.Fatalf("MarshalDocument: %v", err)
	}
	back, err := Load(b, fake)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(h.Node(Path{}), back.Node(Path{}), cmp.AllowUnexported(Node{})); diff != "" {
		t.Errorf("tree (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(actionStrings(h.Actions()), actionStrings(back.Actions())); diff != "" {
		t.Errorf("actions (-want +got):\n%s", diff)
	}
	if back.LastSync() != ms(time.Second) {
		t.Errorf("last sync = %d", back.LastSync())
	}
}

func TestParseDocument_NullTree(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"actions":[],"tree":null,"version":1}`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if doc.Tree != nil {
		t.Errorf("tree = %+v, want nil", doc.Tree)
	}
	h := FromDocument(doc, clock.NewFake(epoch))
	if n := h.Node(Path{}); n == nil || !n.IsCollection() || n.Len() != 0 {
		t.Errorf("root = %+v, want empty collection", n)
	}
}

func TestParseDocument_Rejects(t *testing.T) {
	for name, in := range map[string]string{
		"version":   `{"actions":[],"tree":null,"version":9}`,
		"leaf root": `{"actions":[],"tree":{"time":1,"data":"x"},"version":1}`,
		"bad path":  `{"actions":[{"type":"N","time":1,"path":["a↘b"]}],"version":1}`,
	} {
		if _, err := ParseDocument([]byte(in)); !errors.Is(err, apperr.ErrMalformed) {
			t.Errorf("%s: err = %v, want ErrMalformed", name, err)
		}
	}
}

func TestDocument_IsDetached(t *testing.T) {
	h, _ := testHoard(t)
	mustPlay(t, h, MustAction(ActionNew, Path{"a"}, ms(0), nil))
	doc := h.Document()
	doc.Actions[0].Time = 0
	_ = doc.Tree.AddChild("b", NewLeaf("x", 0))
	if h.Node(Path{"b"}) != nil || h.Actions()[0].Time == 0 {
		t.Error("document aliases hoard state")
	}
}
