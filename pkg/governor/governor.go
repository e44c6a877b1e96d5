// Package governor bounds the size of upstream payloads by selectively
// trimming or paginating their one large nested collection. The
// transform is pure: same input bytes and request, same output bytes.
package governor

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var governorTruncationsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "etim_governor_truncations_total",
	Help: "Responses degraded from full to summary by the size ceiling",
})

// DefaultCollectionField is the nested collection the governor
// operates on: the features of an ETIM class.
const DefaultCollectionField = "features"

// DefaultMaxCollectionBytes is the default ceiling on the serialized
// size of a full-mode collection.
const DefaultMaxCollectionBytes = 64 * 1024

// Envelope is what the governor returns and what gets cached. Caching
// the post-governance result keeps cache entries bounded in size.
type Envelope struct {
	// Payload is the shaped response body.
	Payload json.RawMessage `json:"payload"`

	// WasTruncated is set when the size ceiling degraded a full-mode
	// response to summary.
	WasTruncated bool `json:"wasTruncated"`

	// TruncationReason explains the degradation and how to get the
	// full data instead.
	TruncationReason string `json:"truncationReason,omitempty"`
}

// SizeExceededError is returned only when a caller requests full mode
// with automatic degradation disabled and the collection exceeds the
// ceiling. The default policy degrades instead of erroring.
type SizeExceededError struct {
	Field string
	Size  int
	Limit int
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("collection %q is %d bytes, exceeds the %d byte ceiling",
		e.Field, e.Size, e.Limit)
}

// Governor shapes fetched results according to a detail request.
type Governor struct {
	// CollectionField names the nested collection to govern.
	// Defaults to DefaultCollectionField.
	CollectionField string

	// MaxCollectionBytes is the full-mode ceiling on the serialized
	// collection. Defaults to DefaultMaxCollectionBytes.
	MaxCollectionBytes int

	// DisableDegradation turns the automatic full->summary fallback
	// into a SizeExceededError.
	DisableDegradation bool
}

// New returns a governor with default field and ceiling.
func New() *Governor {
	return &Governor{
		CollectionField:    DefaultCollectionField,
		MaxCollectionBytes: DefaultMaxCollectionBytes,
	}
}

func (g *Governor) field() string {
	if g.CollectionField == "" {
		return DefaultCollectionField
	}
	return g.CollectionField
}

func (g *Governor) ceiling() int {
	if g.MaxCollectionBytes <= 0 {
		return DefaultMaxCollectionBytes
	}
	return g.MaxCollectionBytes
}

// Apply shapes raw according to req. Results without the designated
// collection (or that are not JSON objects at all, such as the static
// metadata arrays) pass through untouched.
func (g *Governor) Apply(raw []byte, req DetailRequest) (*Envelope, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	doc, items, ok := g.split(raw)
	if !ok {
		return &Envelope{Payload: append(json.RawMessage(nil), raw...)}, nil
	}

	if req.Paginated() {
		return g.paginate(doc, items, req.Page, req.PerPage)
	}

	field := g.field()
	switch req.EffectiveMode() {
	case ModeNone:
		delete(doc, field)

	case ModeCount:
		delete(doc, field)
		doc["itemCount"] = len(items)

	case ModeSummary:
		doc[field] = summarize(items)

	case ModeFull:
		serialized, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("marshal collection: %w", err)
		}
		if len(serialized) > g.ceiling() {
			if g.DisableDegradation {
				return nil, &SizeExceededError{
					Field: field,
					Size:  len(serialized),
					Limit: g.ceiling(),
				}
			}
			governorTruncationsTotal.Inc()
			doc[field] = summarize(items)
			return seal(doc, true, fmt.Sprintf(
				"%s collection (%d bytes) exceeds the %d byte ceiling; degraded to summary. Request paginated access for full entries.",
				field, len(serialized), g.ceiling()))
		}
		// Collection stays as fetched.
	}

	return seal(doc, false, "")
}

// split parses raw and extracts the designated collection. ok is false
// when raw is not an object or carries no such collection.
func (g *Governor) split(raw []byte) (map[string]any, []any, bool) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, false
	}
	items, ok := doc[g.field()].([]any)
	if !ok {
		return nil, nil, false
	}
	return doc, items, true
}

// paginate replaces the collection with the [(page-1)*perPage,
// page*perPage) window of the already-fetched full collection. A page
// beyond the last yields an empty item list, not an error.
func (g *Governor) paginate(doc map[string]any, items []any, page, perPage int) (*Envelope, error) {
	total := len(items)
	totalPages := (total + perPage - 1) / perPage

	start := (page - 1) * perPage
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	doc[g.field()] = items[start:end]
	doc["page"] = page
	doc["perPage"] = perPage
	doc["totalItems"] = total
	doc["totalPages"] = totalPages
	doc["hasNextPage"] = page < totalPages

	return seal(doc, false, "")
}

// summarize reduces each collection item to its identifying code and
// short description, dropping all other sub-fields.
func summarize(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		reduced := make(map[string]any, 2)
		if code, ok := entry["code"]; ok {
			reduced["code"] = code
		}
		if desc, ok := entry["description"]; ok {
			reduced["description"] = desc
		}
		out = append(out, reduced)
	}
	return out
}

// seal re-serializes the shaped document. Go maps marshal with sorted
// keys, so equal documents always serialize to identical bytes.
func seal(doc map[string]any, truncated bool, reason string) (*Envelope, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Envelope{
		Payload:          payload,
		WasTruncated:     truncated,
		TruncationReason: reason,
	}, nil
}
