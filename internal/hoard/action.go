package hoard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
)

// Day is one day in milliseconds, the unit of legacy alarm encodings.
const Day int64 = 24 * 60 * 60 * 1000

// ActionType identifies the kind of tree mutation an Action performs.
type ActionType string

const (
	ActionNew       ActionType = "N" // create a leaf or an empty collection
	ActionDelete    ActionType = "D"
	ActionEdit      ActionType = "E" // change a leaf value
	ActionRename    ActionType = "R" // new key inside the same parent
	ActionAlarm     ActionType = "A"
	ActionCancel    ActionType = "C" // clear an alarm
	ActionInsert    ActionType = "I" // graft a subtree under path
	ActionConstrain ActionType = "X"
	ActionMove      ActionType = "M"
)

func (t ActionType) valid() bool {
	switch t {
	case ActionNew, ActionDelete, ActionEdit, ActionRename, ActionAlarm,
		ActionCancel, ActionInsert, ActionConstrain, ActionMove:
		return true
	}
	return false
}

// Payload is the normalised data carried by an Action. Each action type
// accepts exactly one payload kind:
//
//	N  Text or nil    E, R  Text      A  Alarm
//	X  Constraints or nil    I  Subtree    M  Destination
//	D, C  nil
type Payload interface {
	payload()
}

// Text is a leaf value (N, E) or a new key (R).
type Text string

// Alarm is a reminder due at Due (epoch ms), repeating every Repeat ms when
// Repeat is positive.
type Alarm struct {
	Due    int64 `json:"due"`
	Repeat int64 `json:"repeat"`
}

// Constraints restrict generated values of a leaf.
type Constraints struct {
	Size  int    `json:"size"`
	Chars string `json:"chars"`
}

// Subtree is a named node grafted by an I action.
type Subtree struct {
	Name string `json:"name"`
	Node *Node  `json:"node"`
}

// Destination is the collection an M action moves its node into.
type Destination Path

func (Text) payload()        {}
func (Alarm) payload()       {}
func (Constraints) payload() {}
func (Subtree) payload()     {}
func (Destination) payload() {}

// Action is an immutable, timestamped tree mutation.
type Action struct {
	Type ActionType
	Path Path
	Time int64 // epoch ms
	Data Payload
}

// NewAction builds a validated Action. data may be a Payload or any of the
// legacy encodings (strings, numbers, decoded JSON maps and arrays); it is
// normalised to the canonical payload for typ. An empty path, an unknown
// type or an unusable payload yields an error wrapping apperr.ErrMalformed.
func NewAction(typ ActionType, path Path, at int64, data any) (Action, error) {
	if !typ.valid() {
		return Action{}, fmt.Errorf("hoard: unknown action type %q: %w", typ, apperr.ErrMalformed)
	}
	if len(path) == 0 {
		return Action{}, fmt.Errorf("hoard: %s action with zero length path: %w", typ, apperr.ErrMalformed)
	}
	if err := validateKeys(path); err != nil {
		return Action{}, err
	}
	p, err := normalizePayload(typ, at, data)
	if err != nil {
		return Action{}, fmt.Errorf("hoard: %s:%s: %w", typ, path, err)
	}
	return Action{Type: typ, Path: path.clone(), Time: at, Data: p}, nil
}

// MustAction is NewAction for literals known to be valid. It panics on error.
func MustAction(typ ActionType, path Path, at int64, data any) Action {
	a, err := NewAction(typ, path, at, data)
	if err != nil {
		panic(err)
	}
	return a
}

func malformed(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, apperr.ErrMalformed)...)
}

func normalizePayload(typ ActionType, at int64, data any) (Payload, error) {
	switch typ {
	case ActionDelete, ActionCancel:
		return nil, nil

	case ActionNew:
		if data == nil {
			return nil, nil
		}
		return toText(data)

	case ActionEdit:
		if data == nil {
			return nil, malformed("missing value")
		}
		return toText(data)

	case ActionRename:
		t, err := toText(data)
		if err != nil {
			return nil, err
		}
		if t == "" || strings.Contains(string(t), Separator) {
			return nil, malformed("invalid new key %q", string(t))
		}
		return t, nil

	case ActionAlarm:
		return toAlarm(at, data)

	case ActionConstrain:
		if data == nil {
			return nil, nil
		}
		c, err := toConstraints(data)
		if err != nil {
			return nil, err
		}
		return c, nil

	case ActionInsert:
		return toSubtree(data)

	case ActionMove:
		return toDestination(data)
	}
	return nil, malformed("unknown action type %q", typ)
}

func toText(data any) (Text, error) {
	switch v := data.(type) {
	case Text:
		return v, nil
	case string:
		return Text(v), nil
	}
	return "", malformed("expected a string, got %T", data)
}

// toInt64 accepts the numeric shapes produced by Go literals and JSON decoding.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// alarmFromDays is the legacy numeric alarm: ring n days after at, then
// every n days.
func alarmFromDays(at, days int64) Alarm {
	return Alarm{Due: at + days*Day, Repeat: days * Day}
}

func toAlarm(at int64, data any) (Alarm, error) {
	switch v := data.(type) {
	case Alarm:
		return v, nil
	case *Alarm:
		if v != nil {
			return *v, nil
		}
	case string:
		return parseAlarmString(at, v)
	case map[string]any:
		due, ok := toInt64(v["due"])
		if !ok {
			return Alarm{}, malformed("alarm without a due time")
		}
		var repeat int64
		if r, present := v["repeat"]; present && r != nil {
			if repeat, ok = toInt64(r); !ok {
				return Alarm{}, malformed("unparsable alarm repeat %v", r)
			}
		}
		return Alarm{Due: due, Repeat: repeat}, nil
	default:
		if days, ok := toInt64(data); ok {
			return alarmFromDays(at, days), nil
		}
	}
	return Alarm{}, malformed("unparsable alarm %v", data)
}

// parseAlarmString decodes "due;repeat", or a bare day count.
func parseAlarmString(at int64, s string) (Alarm, error) {
	due, repeat, found := strings.Cut(s, ";")
	if !found {
		days, ok := toInt64(s)
		if !ok {
			return Alarm{}, malformed("unparsable alarm %q", s)
		}
		return alarmFromDays(at, days), nil
	}
	d, ok1 := toInt64(due)
	r, ok2 := toInt64(repeat)
	if !ok1 || !ok2 {
		return Alarm{}, malformed("unparsable alarm %q", s)
	}
	return Alarm{Due: d, Repeat: r}, nil
}

func toConstraints(data any) (Constraints, error) {
	switch v := data.(type) {
	case Constraints:
		return v, nil
	case *Constraints:
		if v != nil {
			return *v, nil
		}
	case string:
		return parseConstraintsString(v)
	case map[string]any:
		size, ok := toInt64(v["size"])
		if !ok {
			return Constraints{}, malformed("constraints without a size")
		}
		chars, _ := v["chars"].(string)
		return Constraints{Size: int(size), Chars: chars}, nil
	}
	return Constraints{}, malformed("unparsable constraints %v", data)
}

// parseConstraintsString decodes "size;chars". chars may itself contain ';'.
func parseConstraintsString(s string) (Constraints, error) {
	size, chars, _ := strings.Cut(s, ";")
	n, ok := toInt64(size)
	if !ok {
		return Constraints{}, malformed("unparsable constraints %q", s)
	}
	return Constraints{Size: int(n), Chars: chars}, nil
}

func toSubtree(data any) (Subtree, error) {
	var st Subtree
	switch v := data.(type) {
	case Subtree:
		st = v
	case *Subtree:
		if v == nil {
			return Subtree{}, malformed("missing subtree")
		}
		st = *v
	case string:
		if err := json.Unmarshal([]byte(v), &st); err != nil {
			return Subtree{}, malformed("unparsable subtree: %v", err)
		}
	case json.RawMessage:
		if err := unmarshalSubtree(v, &st); err != nil {
			return Subtree{}, err
		}
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return Subtree{}, malformed("unencodable subtree: %v", err)
		}
		if err := json.Unmarshal(raw, &st); err != nil {
			return Subtree{}, malformed("unparsable subtree: %v", err)
		}
	default:
		return Subtree{}, malformed("unparsable subtree %T", data)
	}
	if st.Name == "" || strings.Contains(st.Name, Separator) {
		return Subtree{}, malformed("invalid subtree name %q", st.Name)
	}
	if st.Node == nil {
		return Subtree{}, malformed("subtree %q has no node", st.Name)
	}
	return st, nil
}

// unmarshalSubtree accepts an object or the legacy JSON-in-a-string form.
func unmarshalSubtree(raw json.RawMessage, st *Subtree) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return malformed("unparsable subtree: %v", err)
		}
		raw = []byte(s)
	}
	if err := json.Unmarshal(raw, st); err != nil {
		return malformed("unparsable subtree: %v", err)
	}
	return nil
}

func toDestination(data any) (Destination, error) {
	var p Path
	switch v := data.(type) {
	case Destination:
		p = Path(v)
	case Path:
		p = v
	case []string:
		p = Path(v)
	case string:
		p = ParsePath(v)
	case []any:
		p = make(Path, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, malformed("destination key %v is not a string", e)
			}
			p = append(p, s)
		}
	default:
		return nil, malformed("unparsable destination %T", data)
	}
	if err := validateKeys(p); err != nil {
		return nil, err
	}
	return Destination(p.clone()), nil
}

// String renders the terse form TYPE:path 'data' @time used in logs.
func (a Action) String() string {
	var b strings.Builder
	b.WriteString(string(a.Type))
	b.WriteByte(':')
	b.WriteString(a.Path.String())
	if a.Data != nil {
		b.WriteString(" '")
		b.WriteString(payloadString(a.Data))
		b.WriteByte('\'')
	}
	b.WriteString(" @")
	b.WriteString(FormatTime(a.Time))
	return b.String()
}

// FormatTime renders epoch ms as a UTC ISO-8601 timestamp.
func FormatTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

func payloadString(p Payload) string {
	switch v := p.(type) {
	case Text:
		return string(v)
	case Alarm:
		return fmt.Sprintf("%d;%d", v.Due, v.Repeat)
	case Constraints:
		return fmt.Sprintf("%d;%s", v.Size, v.Chars)
	case Subtree:
		return v.Name
	case Destination:
		return Path(v).String()
	}
	return ""
}

// Equal reports whether a and o are the same action: same time, type,
// path and data.
func (a Action) Equal(o Action) bool {
	if a.Time != o.Time || a.Type != o.Type || !a.Path.Equal(o.Path) {
		return false
	}
	return dataKey(a.Data) == dataKey(o.Data)
}

// Identity is a comparable key equal for exactly the actions Equal matches.
func (a Action) Identity() string {
	return strconv.FormatInt(a.Time, 10) + "\x00" + string(a.Type) + "\x00" +
		a.Path.String() + "\x00" + dataKey(a.Data)
}

func dataKey(p Payload) string {
	if p == nil {
		return ""
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return payloadString(p)
	}
	return string(raw)
}

type actionJSON struct {
	Type ActionType      `json:"type"`
	Time json.Number     `json:"time"`
	Path json.RawMessage `json:"path"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON emits {type, time, path: [...], data?}.
func (a Action) MarshalJSON() ([]byte, error) {
	path, err := json.Marshal([]string(a.Path))
	if err != nil {
		return nil, err
	}
	out := actionJSON{
		Type: a.Type,
		Time: json.Number(strconv.FormatInt(a.Time, 10)),
		Path: path,
	}
	if a.Data != nil {
		var data any = a.Data
		if d, ok := a.Data.(Destination); ok {
			data = []string(d)
		}
		if out.Data, err = json.Marshal(data); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and normalises an action, accepting legacy path
// strings and legacy payload encodings.
func (a *Action) UnmarshalJSON(b []byte) error {
	parsed, err := ParseAction(b, 0)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAction decodes an action like UnmarshalJSON. An action with no time
// (or time 0) is stamped with now before its payload is normalised, so
// payloads relative to the action time, such as a legacy alarm in days,
// are anchored to now.
func ParseAction(b []byte, now int64) (Action, error) {
	var in actionJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return Action{}, malformed("hoard: decode action: %v", err)
	}
	at, ok := toInt64(in.Time)
	if !ok && in.Time != "" {
		return Action{}, malformed("hoard: action time %q", in.Time)
	}
	if at == 0 {
		at = now
	}

	var path Path
	raw := bytes.TrimSpace(in.Path)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Action{}, malformed("hoard: action path: %v", err)
		}
		path = ParsePath(s)
	default:
		if err := json.Unmarshal(raw, &path); err != nil {
			return Action{}, malformed("hoard: action path: %v", err)
		}
	}

	var data any
	if d := bytes.TrimSpace(in.Data); len(d) > 0 && !bytes.Equal(d, []byte("null")) {
		if in.Type == ActionInsert {
			data = json.RawMessage(d)
		} else {
			dec := json.NewDecoder(bytes.NewReader(d))
			dec.UseNumber()
			if err := dec.Decode(&data); err != nil {
				return Action{}, malformed("hoard: action data: %v", err)
			}
		}
	}

	return NewAction(in.Type, path, at, data)
}
