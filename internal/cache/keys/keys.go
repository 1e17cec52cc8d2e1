// Package keys builds the Redis key layout of a published adjacency graph.
//
//	adj:latest                        digest of the last published graph
//	adj:{digest}:regions              JSON array of every region in the input
//	adj:{digest}:n:{region}           JSON array of the region's neighbors
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
)

const (
	Namespace = "adj"
	LatestKey = Namespace + ":latest"
)

// Digest fingerprints an input document as 16 lowercase hex digits.
func Digest(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

func RegionsKey(digest string) string {
	return fmt.Sprintf("%s:%s:regions", Namespace, digest)
}

func NeighborsKey(digest string, id model.RegionID) string {
	return fmt.Sprintf("%s:%s:n:%s", Namespace, digest, regionSegment(string(id)))
}

// Prefix matches every key of one published graph.
func Prefix(digest string) string {
	return fmt.Sprintf("%s:%s:", Namespace, digest)
}

// regionSegment passes key-safe identifiers through unchanged. Anything else
// is sanitized and suffixed with a hash of the raw identifier so distinct ids
// never share a key.
func regionSegment(id string) string {
	if isKeySafe(id) {
		return id
	}
	const maxLen = 96
	safe := sanitizeForKey(id)
	if len(safe) > maxLen {
		safe = safe[:maxLen]
	}
	return fmt.Sprintf("%s:h=%016x", safe, xxhash.Sum64String(id))
}

func isKeySafe(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isAlphaNum(r) && r != '_' && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

func sanitizeForKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// Any other rune (including non-ASCII and ':') becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
