// Package regionid resolves a region identifier from a feature's properties.
package regionid

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
)

// KnownKeys are checked in order; the first one holding a string wins even if
// a later key disagrees or the string is empty.
var KnownKeys = []string{"GEOID10", "GEOID20"}

// Prefix marks identifier-like keys for the fallback scan. Case sensitive.
const Prefix = "GEOID"

type matcher struct {
	name  string
	slow  bool
	match func(props map[string]any) (key, value string, ok bool)
}

// exact looks the keys up in order.
func exact(keys ...string) matcher {
	return matcher{
		name: "known",
		match: func(props map[string]any) (string, string, bool) {
			for _, k := range keys {
				if v, ok := stringValue(props[k]); ok {
					return k, v, true
				}
			}
			return "", "", false
		},
	}
}

// prefix scans keys in ascending byte order so duplicate matches resolve the
// same way on every run.
func prefix(p string) matcher {
	return matcher{
		name: "prefix",
		slow: true,
		match: func(props map[string]any) (string, string, bool) {
			for _, k := range sortedKeys(props) {
				if !strings.HasPrefix(k, p) {
					continue
				}
				if v, ok := stringValue(props[k]); ok {
					return k, v, true
				}
			}
			return "", "", false
		},
	}
}

type Resolver struct {
	log      *slog.Logger
	matchers []matcher
}

// New returns a Resolver using KnownKeys, then the Prefix scan.
func New(log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		log:      log,
		matchers: []matcher{exact(KnownKeys...), prefix(Prefix)},
	}
}

// Resolve returns the identifier of a feature, or model.ErrMissingIdentifier.
func (r *Resolver) Resolve(props map[string]any) (model.RegionID, error) {
	for _, m := range r.matchers {
		key, value, ok := m.match(props)
		if !ok {
			continue
		}
		if m.slow {
			r.log.Warn("identifier found by property scan; consider adding the key to the known list",
				"key", key, "strategy", m.name)
		}
		return model.RegionID(value), nil
	}
	r.log.Warn("no identifier-like property found", "properties", sortedKeys(props))
	return "", model.ErrMissingIdentifier
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func sortedKeys(props map[string]any) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
