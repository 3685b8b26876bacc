// Package importer converts JSON and YAML documents into hoard subtrees
// that can be grafted with an insert action.
package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
	"github.com/cdot/Squirrel-sub002/internal/hoard"
)

// Format names an input encoding.
type Format string

const (
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "auto":
		return FormatAuto, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("importer: unknown format %q: %w", s, apperr.ErrMalformed)
}

// Parse builds a subtree from data. Objects become collections, scalars
// become leaves holding their text form and sequences become collections
// keyed by index. A JSON document already in node form
// ({"time":..,"data":..}) is decoded as is. Every created node is stamped
// with at.
func Parse(data []byte, format Format, at int64) (*hoard.Node, error) {
	if format == FormatAuto {
		format = sniff(data)
	}

	var doc any
	switch format {
	case FormatJSON:
		if n, ok := asNode(data); ok {
			return n, nil
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("importer: decode json: %v: %w", err, apperr.ErrMalformed)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("importer: decode yaml: %v: %w", err, apperr.ErrMalformed)
		}
	default:
		return nil, fmt.Errorf("importer: unknown format %q: %w", format, apperr.ErrMalformed)
	}
	return build(doc, at)
}

func sniff(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// asNode recognises the hoard's own node encoding: an object with exactly
// time and data keys (plus optional decorations).
func asNode(data []byte) (*hoard.Node, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false
	}
	if _, ok := probe["time"]; !ok {
		return nil, false
	}
	if _, ok := probe["data"]; !ok {
		return nil, false
	}
	for k := range probe {
		switch k {
		case "time", "data", "alarm", "constraints":
		default:
			return nil, false
		}
	}
	var n hoard.Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, false
	}
	return &n, true
}

func build(v any, at int64) (*hoard.Node, error) {
	switch t := v.(type) {
	case nil:
		return hoard.NewCollection(at), nil
	case map[string]any:
		return buildMap(t, at)
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = e
		}
		return buildMap(m, at)
	case []any:
		n := hoard.NewCollection(at)
		for i, e := range t {
			c, err := build(e, at)
			if err != nil {
				return nil, err
			}
			_ = n.AddChild(strconv.Itoa(i), c)
		}
		return n, nil
	default:
		return hoard.NewLeaf(scalar(t), at), nil
	}
}

func buildMap(m map[string]any, at int64) (*hoard.Node, error) {
	n := hoard.NewCollection(at)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "" || strings.Contains(k, hoard.Separator) {
			return nil, fmt.Errorf("importer: invalid key %q: %w", k, apperr.ErrMalformed)
		}
		c, err := build(m[k], at)
		if err != nil {
			return nil, err
		}
		_ = n.AddChild(k, c)
	}
	return n, nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
