// Package etim maps the typed ETIM classification operations onto the
// request pipeline. Every method here is a thin parameter-mapping
// shim; caching, authentication and response governance all live in
// the pipeline.
package etim

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ziouzitsou/etim-mcp-server/pkg/client"
	"github.com/ziouzitsou/etim-mcp-server/pkg/governor"
)

// MaxCompareClasses bounds a side-by-side class comparison.
const MaxCompareClasses = 5

// Service is the typed operation surface over the pipeline.
type Service struct {
	pipeline *client.Client
	language string
}

// NewService creates a service with a default language code.
func NewService(pipeline *client.Client, defaultLanguage string) *Service {
	if defaultLanguage == "" {
		defaultLanguage = "EN"
	}
	return &Service{pipeline: pipeline, language: defaultLanguage}
}

// SearchQuery holds the common search parameters.
type SearchQuery struct {
	Text     string
	Language string
	From     int
	Size     int

	// Deprecated includes deprecated entries (values and units only).
	Deprecated bool

	// Modelling restricts class search to modelling classes when set.
	Modelling *bool

	// Filters restricts class search by Release/Group/Class/Feature/
	// Value codes.
	Filters []Filter
}

// Filter restricts a class search by a code dimension.
type Filter struct {
	Code   string
	Values []string
}

// Filter rendering for cache identity: dimensions sorted by code,
// values sorted within each, so two equal filter sets always render
// identically.
func canonicalFilters(filters []Filter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		values := append([]string(nil), f.Values...)
		sort.Strings(values)
		parts = append(parts, f.Code+"="+strings.Join(values, ","))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func (s *Service) lang(override string) string {
	if override != "" {
		return override
	}
	return s.language
}

// searchOp builds the shared search operation shape.
func (s *Service) searchOp(ep endpoint, q SearchQuery) client.Operation {
	lang := s.lang(q.Language)
	if q.Size <= 0 {
		q.Size = 10
	}

	params := map[string]string{
		"searchString": q.Text,
		"from":         strconv.Itoa(q.From),
		"size":         strconv.Itoa(q.Size),
	}
	body := map[string]any{
		"languagecode": lang,
		"searchString": q.Text,
		"from":         q.From,
		"size":         q.Size,
	}

	if q.Deprecated {
		params["deprecated"] = "true"
		body["deprecated"] = true
	}
	if q.Modelling != nil {
		params["modelling"] = strconv.FormatBool(*q.Modelling)
		body["modelling"] = *q.Modelling
	}
	if len(q.Filters) > 0 {
		params["filters"] = canonicalFilters(q.Filters)
		filters := make([]map[string]any, 0, len(q.Filters))
		for _, f := range q.Filters {
			filters = append(filters, map[string]any{"code": f.Code, "values": f.Values})
		}
		body["filters"] = filters
	}

	return client.Operation{
		EndpointID: ep.id,
		Method:     ep.method,
		Path:       ep.path,
		Language:   lang,
		Params:     params,
		Body:       body,
		TTLClass:   ep.ttl,
	}
}

// detailsOp builds the shared single-entity details operation shape.
func (s *Service) detailsOp(ep endpoint, code, language string, body map[string]any) client.Operation {
	lang := s.lang(language)
	body["languagecode"] = lang
	body["code"] = code

	return client.Operation{
		EndpointID: ep.id,
		Method:     ep.method,
		Path:       ep.path,
		Language:   lang,
		Params:     map[string]string{"code": code},
		Body:       body,
		TTLClass:   ep.ttl,
	}
}

// staticOp builds a GET operation for static metadata.
func staticOp(ep endpoint) client.Operation {
	return client.Operation{
		EndpointID: ep.id,
		Method:     ep.method,
		Path:       ep.path,
		TTLClass:   ep.ttl,
	}
}

// includeBody returns the standard include block: descriptions and
// translations always, features and related fields on demand.
func includeBody(features bool, extraFields ...string) map[string]any {
	include := map[string]any{
		"descriptions": true,
		"translations": true,
	}
	fields := append([]string(nil), extraFields...)
	if features {
		fields = append([]string{"Features"}, fields...)
	}
	if len(fields) > 0 {
		include["fields"] = fields
	}
	return map[string]any{"include": include}
}

// SearchClasses searches product classes by keyword, optionally
// restricted by modelling flag and release/group filters.
func (s *Service) SearchClasses(ctx context.Context, q SearchQuery) (*governor.Envelope, error) {
	return s.pipeline.Execute(ctx, s.searchOp(epClassSearch, q), governor.DetailRequest{})
}

// SearchFeatures searches features by keyword.
func (s *Service) SearchFeatures(ctx context.Context, q SearchQuery) (*governor.Envelope, error) {
	return s.pipeline.Execute(ctx, s.searchOp(epFeatureSearch, q), governor.DetailRequest{})
}

// SearchGroups searches product groups by keyword.
func (s *Service) SearchGroups(ctx context.Context, q SearchQuery) (*governor.Envelope, error) {
	return s.pipeline.Execute(ctx, s.searchOp(epGroupSearch, q), governor.DetailRequest{})
}

// SearchValues searches feature values by keyword.
func (s *Service) SearchValues(ctx context.Context, q SearchQuery) (*governor.Envelope, error) {
	return s.pipeline.Execute(ctx, s.searchOp(epValueSearch, q), governor.DetailRequest{})
}

// SearchUnits searches measurement units by keyword.
func (s *Service) SearchUnits(ctx context.Context, q SearchQuery) (*governor.Envelope, error) {
	return s.pipeline.Execute(ctx, s.searchOp(epUnitSearch, q), governor.DetailRequest{})
}

// SearchFeatureGroups searches feature groups by keyword.
func (s *Service) SearchFeatureGroups(ctx context.Context, q SearchQuery) (*governor.Envelope, error) {
	return s.pipeline.Execute(ctx, s.searchOp(epFeatureGroupSearch, q), governor.DetailRequest{})
}

// ClassDetails fetches a product class, shaped by the detail request.
// Version 0 means latest.
func (s *Service) ClassDetails(ctx context.Context, code string, version int, language string, detail governor.DetailRequest) (*governor.Envelope, error) {
	body := includeBody(detail.EffectiveMode() != governor.ModeNone, "Group")
	op := s.detailsOp(epClassDetails, code, language, body)
	if version > 0 {
		op.Params["version"] = strconv.Itoa(version)
		op.Body["version"] = version
	}
	return s.pipeline.Execute(ctx, op, detail)
}

// ClassFeaturesPage is the companion pagination accessor: a window of
// the class's full feature collection, with page metadata attached.
func (s *Service) ClassFeaturesPage(ctx context.Context, code string, language string, page, perPage int) (*governor.Envelope, error) {
	detail, err := governor.NewDetailRequest(governor.ModeFull, page, perPage)
	if err != nil {
		return nil, err
	}
	return s.ClassDetails(ctx, code, 0, language, detail)
}

// ClassForRelease fetches a class pinned to a specific ETIM release.
func (s *Service) ClassForRelease(ctx context.Context, code, release, language string, detail governor.DetailRequest) (*governor.Envelope, error) {
	body := includeBody(detail.EffectiveMode() != governor.ModeNone, "Group", "Releases")
	op := s.detailsOp(epClassForRelease, code, language, body)
	op.Params["release"] = release
	op.Body["release"] = release
	return s.pipeline.Execute(ctx, op, detail)
}

// ClassVersions fetches all versions of a class.
func (s *Service) ClassVersions(ctx context.Context, code, language string, detail governor.DetailRequest) (*governor.Envelope, error) {
	body := includeBody(detail.EffectiveMode() != governor.ModeNone, "Group", "Releases")
	op := s.detailsOp(epClassVersions, code, language, body)
	return s.pipeline.Execute(ctx, op, detail)
}

// ClassDiff fetches a class version with changes against its previous
// version.
func (s *Service) ClassDiff(ctx context.Context, code string, version int, language string) (*governor.Envelope, error) {
	if version < 2 {
		return nil, fmt.Errorf("class diff needs version >= 2 (got %d)", version)
	}
	body := includeBody(true, "Group", "Releases")
	op := s.detailsOp(epClassDiff, code, language, body)
	op.Params["version"] = strconv.Itoa(version)
	op.Body["version"] = version
	return s.pipeline.Execute(ctx, op, governor.DetailRequest{})
}

// ClassRef identifies a class for a batch details fetch.
type ClassRef struct {
	Code    string
	Version int // 0 for latest
}

// ClassDetailsMany fetches several classes in one upstream request.
func (s *Service) ClassDetailsMany(ctx context.Context, refs []ClassRef, language string, detail governor.DetailRequest) (*governor.Envelope, error) {
	lang := s.lang(language)

	keys := make([]string, 0, len(refs))
	classes := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		entry := map[string]any{"code": ref.Code}
		version := "latest"
		if ref.Version > 0 {
			entry["version"] = ref.Version
			version = strconv.Itoa(ref.Version)
		}
		classes = append(classes, entry)
		keys = append(keys, ref.Code+":"+version)
	}
	sort.Strings(keys)

	body := includeBody(detail.EffectiveMode() != governor.ModeNone, "Group", "Releases")
	body["languagecode"] = lang
	body["classes"] = classes

	op := client.Operation{
		EndpointID: epClassDetailsMany.id,
		Method:     epClassDetailsMany.method,
		Path:       epClassDetailsMany.path,
		Language:   lang,
		Params:     map[string]string{"classes": strings.Join(keys, "|")},
		Body:       body,
		TTLClass:   epClassDetailsMany.ttl,
	}
	return s.pipeline.Execute(ctx, op, detail)
}

// FeatureDetails fetches a feature.
func (s *Service) FeatureDetails(ctx context.Context, code, language string) (*governor.Envelope, error) {
	body := map[string]any{"include": map[string]any{"descriptions": true}}
	return s.pipeline.Execute(ctx, s.detailsOp(epFeatureDetails, code, language, body), governor.DetailRequest{})
}

// GroupDetails fetches a product group.
func (s *Service) GroupDetails(ctx context.Context, code, language string) (*governor.Envelope, error) {
	body := includeBody(false, "Releases")
	return s.pipeline.Execute(ctx, s.detailsOp(epGroupDetails, code, language, body), governor.DetailRequest{})
}

// ValueDetails fetches a feature value.
func (s *Service) ValueDetails(ctx context.Context, code, language string) (*governor.Envelope, error) {
	body := includeBody(false)
	return s.pipeline.Execute(ctx, s.detailsOp(epValueDetails, code, language, body), governor.DetailRequest{})
}

// UnitDetails fetches a measurement unit.
func (s *Service) UnitDetails(ctx context.Context, code, language string) (*governor.Envelope, error) {
	body := includeBody(false)
	return s.pipeline.Execute(ctx, s.detailsOp(epUnitDetails, code, language, body), governor.DetailRequest{})
}

// FeatureGroupDetails fetches a feature group.
func (s *Service) FeatureGroupDetails(ctx context.Context, code, language string) (*governor.Envelope, error) {
	body := includeBody(false)
	return s.pipeline.Execute(ctx, s.detailsOp(epFeatureGroupDetail, code, language, body), governor.DetailRequest{})
}

// LanguagesAllowed fetches the languages enabled for this account.
func (s *Service) LanguagesAllowed(ctx context.Context) (*governor.Envelope, error) {
	return s.pipeline.Execute(ctx, staticOp(epLanguagesAllowed), governor.DetailRequest{})
}

// AllLanguages fetches every ETIM language.
func (s *Service) AllLanguages(ctx context.Context) (*governor.Envelope, error) {
	return s.pipeline.Execute(ctx, staticOp(epLanguages), governor.DetailRequest{})
}

// Releases fetches the ETIM release list.
func (s *Service) Releases(ctx context.Context) (*governor.Envelope, error) {
	return s.pipeline.Execute(ctx, staticOp(epReleases), governor.DetailRequest{})
}

// ComparedClass is one side of a class comparison.
type ComparedClass struct {
	Code     string             `json:"code"`
	Envelope *governor.Envelope `json:"result,omitempty"`
	Err      string             `json:"error,omitempty"`
}

// CompareClasses fetches up to MaxCompareClasses class details
// concurrently and returns them side by side, in input order. A
// failing class carries its error instead of failing the comparison.
func (s *Service) CompareClasses(ctx context.Context, codes []string, language string, detail governor.DetailRequest) ([]ComparedClass, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("at least one class code is required")
	}
	if len(codes) > MaxCompareClasses {
		codes = codes[:MaxCompareClasses]
	}

	results := make([]ComparedClass, len(codes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxCompareClasses)
	for i, code := range codes {
		g.Go(func() error {
			env, err := s.ClassDetails(gctx, code, 0, language, detail)
			if err != nil {
				results[i] = ComparedClass{Code: code, Err: err.Error()}
				return nil
			}
			results[i] = ComparedClass{Code: code, Envelope: env}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// TestConnection probes the upstream with the cheapest authenticated
// call.
func (s *Service) TestConnection(ctx context.Context) bool {
	_, err := s.LanguagesAllowed(ctx)
	return err == nil
}
