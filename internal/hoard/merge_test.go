package hoard

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func actionStrings(as []Action) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.String()
	}
	return out
}

func TestMergeStreams_Order(t *testing.T) {
	a := []Action{
		MustAction(ActionNew, Path{"a"}, 30, nil),
		MustAction(ActionNew, Path{"b"}, 10, nil),
	}
	b := []Action{
		MustAction(ActionNew, Path{"c"}, 20, nil),
	}
	got := MergeStreams(a, b)
	want := []string{"N:b", "N:c", "N:a"}
	var paths []string
	for _, x := range got {
		paths = append(paths, string(x.Type)+":"+x.Path.String())
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if a[0].Path.String() != "a" {
		t.Error("input was reordered")
	}
}

func TestMergeStreams_Idempotent(t *testing.T) {
	a := []Action{
		MustAction(ActionNew, Path{"x"}, 1, nil),
		MustAction(ActionNew, Path{"x", "y"}, 2, "v"),
	}
	got := MergeStreams(a, a)
	if diff := cmp.Diff(actionStrings(a), actionStrings(got)); diff != "" {
		t.Errorf("merge with self (-want +got):\n%s", diff)
	}
}

func TestMergeStreams_Commutative(t *testing.T) {
	a := []Action{
		MustAction(ActionNew, Path{"x"}, 1, nil),
		MustAction(ActionEdit, Path{"p"}, 5, "a"),
	}
	b := []Action{
		MustAction(ActionNew, Path{"x"}, 1, nil),
		MustAction(ActionNew, Path{"y"}, 3, nil),
	}
	ab := actionStrings(MergeStreams(a, b))
	ba := actionStrings(MergeStreams(b, a))
	if diff := cmp.Diff(ab, ba); diff != "" {
		t.Errorf("merge is not commutative (-ab +ba):\n%s", diff)
	}
	if len(ab) != 3 {
		t.Errorf("merged %d actions, want 3", len(ab))
	}
}

func TestMergeStreams_TiesKeepFirstStream(t *testing.T) {
	a := []Action{MustAction(ActionEdit, Path{"p"}, 5, "from a")}
	b := []Action{MustAction(ActionEdit, Path{"p"}, 5, "from b")}
	got := MergeStreams(a, b)
	if len(got) != 2 {
		t.Fatalf("merged %d, want 2 distinct actions", len(got))
	}
	if got[0].Data != Text("from a") || got[1].Data != Text("from b") {
		t.Errorf("tie order = %v", actionStrings(got))
	}
}

func TestMergeStreams_DuplicatesSeparatedInStream(t *testing.T) {
	x := MustAction(ActionNew, Path{"x"}, 4, nil)
	y := MustAction(ActionNew, Path{"y"}, 4, nil)
	got := MergeStreams([]Action{x, y}, []Action{y, x})
	if len(got) != 2 {
		t.Errorf("merged %v, want x and y once each", actionStrings(got))
	}
}

func TestMergeStreams_Empty(t *testing.T) {
	if got := MergeStreams(nil, nil); len(got) != 0 {
		t.Errorf("got %v", got)
	}
}
