package hoard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type nodeJSON struct {
	Time        int64           `json:"time"`
	Data        json.RawMessage `json:"data"`
	Alarm       json.RawMessage `json:"alarm,omitempty"`
	Constraints json.RawMessage `json:"constraints,omitempty"`
}

// MarshalJSON renders a leaf value or the children map under "data". An
// alarm that is exactly "every n days since the last change" is written as
// the bare day count n; constraints are written as "size;chars".
func (n *Node) MarshalJSON() ([]byte, error) {
	var out nodeJSON
	out.Time = n.Time

	var err error
	if n.kind == KindLeaf {
		out.Data, err = json.Marshal(n.value)
	} else if len(n.children) == 0 {
		out.Data = json.RawMessage("{}")
	} else {
		out.Data, err = json.Marshal(n.children)
	}
	if err != nil {
		return nil, err
	}

	if al := n.Alarm; al != nil {
		if al.Repeat > 0 && al.Repeat%Day == 0 && al.Due == n.Time+al.Repeat {
			out.Alarm = json.RawMessage(strconv.FormatInt(al.Repeat/Day, 10))
		} else if out.Alarm, err = json.Marshal(al); err != nil {
			return nil, err
		}
	}
	if c := n.Constraints; c != nil {
		if out.Constraints, err = json.Marshal(fmt.Sprintf("%d;%s", c.Size, c.Chars)); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts both the compact and the object forms of alarms and
// constraints. A node without data is an empty collection.
func (n *Node) UnmarshalJSON(b []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return malformed("hoard: decode node: %v", err)
	}
	*n = Node{Time: in.Time, kind: KindCollection}

	data := bytes.TrimSpace(in.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '"':
		n.kind = KindLeaf
		if err := json.Unmarshal(data, &n.value); err != nil {
			return malformed("hoard: decode leaf: %v", err)
		}
	case data[0] == '{':
		var children map[string]*Node
		if err := json.Unmarshal(data, &children); err != nil {
			return err
		}
		for k, c := range children {
			if c == nil {
				return malformed("hoard: child %q is null", k)
			}
		}
		if len(children) > 0 {
			n.children = children
		}
	default:
		return malformed("hoard: node data must be a string or an object")
	}

	if raw := decodeAny(in.Alarm); raw != nil {
		al, err := toAlarm(n.Time, raw)
		if err != nil {
			return err
		}
		n.Alarm = &al
	}
	if raw := decodeAny(in.Constraints); raw != nil {
		c, err := toConstraints(raw)
		if err != nil {
			return err
		}
		n.Constraints = &c
	}
	return nil
}

func decodeAny(raw json.RawMessage) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}
