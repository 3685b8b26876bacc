// Package checksum computes content digests and the entity tags derived
// from them for optimistic concurrency on stored documents.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns the strong entity tag for data, quoted as in an HTTP header.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}

// Unquote strips the quotes and any weak prefix from an entity tag.
func Unquote(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	return strings.Trim(tag, `"`)
}

// Match reports whether an If-Match header value accepts the current
// digest. "*" matches any existing object; a list of tags matches if any
// element does.
func Match(header, current string) bool {
	header = strings.TrimSpace(header)
	if header == "*" {
		return current != ""
	}
	for _, tag := range strings.Split(header, ",") {
		if Unquote(tag) == current {
			return true
		}
	}
	return false
}
