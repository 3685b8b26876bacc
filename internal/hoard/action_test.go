package hoard

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
)

func TestNewAction_EmptyPathRejected(t *testing.T) {
	_, err := NewAction(ActionNew, Path{}, 1, nil)
	if !errors.Is(err, apperr.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestNewAction_UnknownType(t *testing.T) {
	_, err := NewAction("Q", Path{"a"}, 1, nil)
	if !errors.Is(err, apperr.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestNewAction_SeparatorInKey(t *testing.T) {
	_, err := NewAction(ActionNew, Path{"a" + Separator + "b"}, 1, nil)
	if !errors.Is(err, apperr.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestNewAction_LegacyAlarmDays(t *testing.T) {
	at := ms(0)
	a := MustAction(ActionAlarm, Path{"bank"}, at, 3)
	want := Alarm{Due: at + 3*Day, Repeat: 3 * Day}
	if a.Data != want {
		t.Errorf("data = %+v, want %+v", a.Data, want)
	}
}

func TestNewAction_LegacyAlarmString(t *testing.T) {
	a := MustAction(ActionAlarm, Path{"bank"}, 10, "1000;86400000")
	want := Alarm{Due: 1000, Repeat: 86400000}
	if a.Data != want {
		t.Errorf("data = %+v, want %+v", a.Data, want)
	}
}

func TestNewAction_AlarmMap(t *testing.T) {
	a := MustAction(ActionAlarm, Path{"bank"}, 10, map[string]any{"due": json.Number("42")})
	if a.Data != (Alarm{Due: 42}) {
		t.Errorf("data = %+v", a.Data)
	}
}

func TestNewAction_UnparsableAlarm(t *testing.T) {
	_, err := NewAction(ActionAlarm, Path{"bank"}, 10, "soon;ish")
	if !errors.Is(err, apperr.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestNewAction_LegacyConstraints(t *testing.T) {
	a := MustAction(ActionConstrain, Path{"pin"}, 10, "12;A-Z;0-9")
	want := Constraints{Size: 12, Chars: "A-Z;0-9"}
	if a.Data != want {
		t.Errorf("data = %+v, want %+v", a.Data, want)
	}
	cleared := MustAction(ActionConstrain, Path{"pin"}, 10, nil)
	if cleared.Data != nil {
		t.Errorf("cleared data = %+v, want nil", cleared.Data)
	}
}

func TestNewAction_DeleteDropsData(t *testing.T) {
	a := MustAction(ActionDelete, Path{"x"}, 1, "junk")
	if a.Data != nil {
		t.Errorf("data = %v, want nil", a.Data)
	}
}

func TestNewAction_RenameNeedsKey(t *testing.T) {
	if _, err := NewAction(ActionRename, Path{"x"}, 1, ""); !errors.Is(err, apperr.ErrMalformed) {
		t.Errorf("empty key: err = %v", err)
	}
	if _, err := NewAction(ActionRename, Path{"x"}, 1, nil); !errors.Is(err, apperr.ErrMalformed) {
		t.Errorf("nil key: err = %v", err)
	}
}

func TestNewAction_DoesNotAliasPath(t *testing.T) {
	p := Path{"a", "b"}
	a := MustAction(ActionNew, p, 1, nil)
	p[0] = "z"
	if a.Path[0] != "a" {
		t.Errorf("action path changed with caller slice: %v", a.Path)
	}
}

func TestAction_String(t *testing.T) {
	a := MustAction(ActionNew, Path{"Junk", "Burger"}, 5, "cheese")
	want := "N:Junk↘Burger 'cheese' @1970-01-01T00:00:00.005Z"
	if got := a.String(); got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
	d := MustAction(ActionDelete, Path{"Junk"}, 0, nil)
	if got := d.String(); got != "D:Junk @1970-01-01T00:00:00.000Z" {
		t.Errorf("String = %q", got)
	}
}

func TestAction_JSONLegacyPathString(t *testing.T) {
	var a Action
	in := `{"type":"N","time":1700000000000,"path":"Sites↘Bank","data":"hunter2"}`
	if err := json.Unmarshal([]byte(in), &a); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !a.Path.Equal(Path{"Sites", "Bank"}) {
		t.Errorf("path = %v", a.Path)
	}
	if a.Data != Text("hunter2") || a.Time != 1700000000000 {
		t.Errorf("decoded = %+v", a)
	}

	out, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), `"path":["Sites","Bank"]`) {
		t.Errorf("path not canonical in %s", out)
	}
}

func TestParseAction_StampsMissingTimeBeforeNormalising(t *testing.T) {
	now := ms(0)
	a, err := ParseAction([]byte(`{"type":"A","path":["pw"],"data":30}`), now)
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	want := Alarm{Due: now + 30*Day, Repeat: 30 * Day}
	if a.Time != now || a.Data != want {
		t.Errorf("decoded = %+v, want time %d data %+v", a, now, want)
	}

	// An explicit time is kept.
	a, err = ParseAction([]byte(`{"type":"A","path":["pw"],"time":1000,"data":1}`), now)
	if err != nil {
		t.Fatal(err)
	}
	if a.Time != 1000 || a.Data != (Alarm{Due: 1000 + Day, Repeat: Day}) {
		t.Errorf("decoded = %+v", a)
	}
}

func TestAction_JSONEmptyPathRejected(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"type":"D","time":1,"path":[]}`), &a)
	if !errors.Is(err, apperr.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestAction_JSONInsertLegacyString(t *testing.T) {
	in := `{"type":"I","time":3,"path":["Sites"],"data":"{\"name\":\"Shop\",\"node\":{\"time\":2,\"data\":{\"user\":{\"time\":2,\"data\":\"bob\"}}}}"}`
	var a Action
	if err := json.Unmarshal([]byte(in), &a); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	st, ok := a.Data.(Subtree)
	if !ok || st.Name != "Shop" {
		t.Fatalf("data = %#v", a.Data)
	}
	if got := st.Node.Child("user").Value(); got != "bob" {
		t.Errorf("user = %q", got)
	}
}

func TestAction_JSONMoveDestination(t *testing.T) {
	a := MustAction(ActionMove, Path{"a", "b"}, 4, Path{"c"})
	out, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	var back Action
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal %s: %v", out, err)
	}
	if !back.Equal(a) {
		t.Errorf("round trip = %v, want %v", back, a)
	}
}

func TestAction_Equal(t *testing.T) {
	a := MustAction(ActionEdit, Path{"a"}, 7, "x")
	if !a.Equal(MustAction(ActionEdit, Path{"a"}, 7, "x")) {
		t.Error("identical actions should be equal")
	}
	if a.Equal(MustAction(ActionEdit, Path{"a"}, 7, "y")) {
		t.Error("different data should not be equal")
	}
	if a.Equal(MustAction(ActionEdit, Path{"a"}, 8, "x")) {
		t.Error("different time should not be equal")
	}
}

func TestAction_Verbose(t *testing.T) {
	a := MustAction(ActionDelete, Path{"Sites", "Bank"}, 0, nil)
	if got := a.Verbose(language.English); got != "Delete 'Sites↘Bank'" {
		t.Errorf("english = %q", got)
	}
	if got := a.Verbose(language.French); got != "Supprimer 'Sites↘Bank'" {
		t.Errorf("french = %q", got)
	}
	n := MustAction(ActionNew, Path{"Sites"}, 0, nil)
	if got := n.Verbose(language.German); got != "Create folder 'Sites'" {
		t.Errorf("fallback = %q", got)
	}
	secret := MustAction(ActionEdit, Path{"pw"}, 0, "hunter2")
	if strings.Contains(secret.Verbose(language.English), "hunter2") {
		t.Error("verbose form leaks the value")
	}
}
