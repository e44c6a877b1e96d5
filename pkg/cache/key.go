package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Key identifies a cached upstream response. Two keys are equal iff
// endpoint, language, the parameter set (by value, independent of
// insertion order) and the detail shaping are equal.
type Key struct {
	// Endpoint is the logical endpoint identifier (e.g. "class/search").
	Endpoint string

	// Language is the request language code (e.g. "EN", "de-DE").
	Language string

	// Params are the operation parameters, already rendered to strings.
	Params map[string]string

	// DetailMode is the requested detail mode ("", "none", "count",
	// "summary", "full"). Differently shaped responses for the same
	// entity must not collide.
	DetailMode string

	// Page and PerPage identify a pagination window (0 when absent).
	Page    int
	PerPage int
}

// String generates a deterministic cache key. Parameters are sorted by
// name so insertion order never affects the key, and the joined
// canonical form is hashed to keep keys bounded in length.
//
// Format: etim:<endpoint>:<sha256 of canonical form>
func (k Key) String() string {
	parts := []string{k.Endpoint, k.Language}

	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
	}

	if k.DetailMode != "" {
		parts = append(parts, "mode="+k.DetailMode)
	}
	if k.Page > 0 {
		parts = append(parts, fmt.Sprintf("page=%d", k.Page))
		parts = append(parts, fmt.Sprintf("per=%d", k.PerPage))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("etim:%s:%x", k.Endpoint, sum[:16])
}
