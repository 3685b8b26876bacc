package hoard

import (
	"fmt"
	"strings"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
)

// Separator joins path keys in the string form of a Path. It is reserved
// and may not appear inside a key.
const Separator = "↘"

// Path addresses a node by the keys leading to it from the root. The root
// itself is the empty path.
type Path []string

// ParsePath splits the string form of a path. The empty string is the root.
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	return Path(strings.Split(s, Separator))
}

func (p Path) String() string {
	return strings.Join(p, Separator)
}

// Parent returns the path of the containing collection. The parent of the
// root is the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return p[:len(p)-1:len(p)-1]
}

// Key returns the last key, or "" for the root.
func (p Path) Key() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Child returns a new path with key appended. p is not modified.
func (p Path) Child(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, key)
}

// Equal reports whether both paths hold the same keys.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p lies at or under prefix.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

func (p Path) clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

func validateKeys(p Path) error {
	for _, k := range p {
		if strings.Contains(k, Separator) {
			return fmt.Errorf("hoard: key %q contains the path separator: %w", k, apperr.ErrMalformed)
		}
	}
	return nil
}
