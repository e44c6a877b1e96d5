package client

import (
	"github.com/ziouzitsou/etim-mcp-server/pkg/cache"
	"github.com/ziouzitsou/etim-mcp-server/pkg/governor"
)

// Operation is a logical upstream request. Two operations are
// equivalent, and share a cache entry, iff endpoint, language and the
// parameter set (by value, independent of insertion order) are equal.
type Operation struct {
	// EndpointID is the logical endpoint identifier (e.g.
	// "class/search"). Fixed mapping to path, method and TTL class.
	EndpointID string

	// Method is the HTTP method (GET or POST).
	Method string

	// Path is the upstream path (e.g. "/api/v2/Class/Search").
	Path string

	// Language is the request language code.
	Language string

	// Params is the operation's identity: every parameter that
	// distinguishes this request from another, rendered to strings.
	Params map[string]string

	// Body is the JSON body for POST operations. Derived from the same
	// inputs as Params; it never carries identity of its own.
	Body map[string]any

	// TTLClass selects the cache duration tier for the result.
	TTLClass cache.TTLClass
}

// cacheKey derives the deterministic cache key for this operation
// combined with the requested detail shaping.
func (op Operation) cacheKey(detail governor.DetailRequest) string {
	return cache.Key{
		Endpoint:   op.EndpointID,
		Language:   op.Language,
		Params:     op.Params,
		DetailMode: string(detail.EffectiveMode()),
		Page:       detail.Page,
		PerPage:    detail.PerPage,
	}.String()
}
