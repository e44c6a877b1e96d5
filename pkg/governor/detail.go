package governor

import "fmt"

// Mode controls how much of the designated nested collection is
// included in a response.
type Mode string

const (
	// ModeNone omits the collection entirely.
	ModeNone Mode = "none"

	// ModeCount replaces the collection with its cardinality.
	ModeCount Mode = "count"

	// ModeSummary reduces each item to its code and description.
	ModeSummary Mode = "summary"

	// ModeFull passes the collection through, subject to the byte
	// ceiling.
	ModeFull Mode = "full"
)

// MaxPerPage is the upper bound on page size for the pagination
// accessor.
const MaxPerPage = 100

// DetailRequest selects the shaping applied to a fetched result. The
// zero value means full detail without pagination.
type DetailRequest struct {
	// Mode is the detail mode; empty defaults to ModeFull.
	Mode Mode

	// Page and PerPage select a pagination window over the collection.
	// Both are zero for a plain detail fetch.
	Page    int
	PerPage int
}

// NewDetailRequest builds a validated detail request.
func NewDetailRequest(mode Mode, page, perPage int) (DetailRequest, error) {
	req := DetailRequest{Mode: mode, Page: page, PerPage: perPage}
	if err := req.Validate(); err != nil {
		return DetailRequest{}, err
	}
	return req, nil
}

// Paginated reports whether the request selects a pagination window.
func (d DetailRequest) Paginated() bool {
	return d.Page > 0 || d.PerPage > 0
}

// EffectiveMode resolves the empty mode to ModeFull. A paginated
// request always draws from the full collection.
func (d DetailRequest) EffectiveMode() Mode {
	if d.Paginated() || d.Mode == "" {
		return ModeFull
	}
	return d.Mode
}

// Validate enforces the request invariants: a known mode, and for
// pagination page >= 1 with 1 <= perPage <= MaxPerPage.
func (d DetailRequest) Validate() error {
	switch d.Mode {
	case "", ModeNone, ModeCount, ModeSummary, ModeFull:
	default:
		return fmt.Errorf("unknown detail mode %q", d.Mode)
	}

	if !d.Paginated() {
		return nil
	}
	if d.Page < 1 {
		return fmt.Errorf("page must be >= 1 (got %d)", d.Page)
	}
	if d.PerPage < 1 || d.PerPage > MaxPerPage {
		return fmt.Errorf("perPage must be in [1, %d] (got %d)", MaxPerPage, d.PerPage)
	}
	return nil
}
