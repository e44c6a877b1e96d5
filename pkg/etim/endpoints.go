package etim

import (
	"net/http"

	"github.com/ziouzitsou/etim-mcp-server/pkg/cache"
)

// endpoint binds a logical endpoint id to its upstream path, method
// and TTL class. The TTL class is fixed per endpoint.
type endpoint struct {
	id     string
	method string
	path   string
	ttl    cache.TTLClass
}

var (
	epClassSearch        = endpoint{"class/search", http.MethodPost, "/api/v2/Class/Search", cache.TTLSearch}
	epClassDetails       = endpoint{"class/details", http.MethodPost, "/api/v2/Class/Details", cache.TTLDetail}
	epClassDetailsMany   = endpoint{"class/details-many", http.MethodPost, "/api/v2/Class/DetailsMany", cache.TTLDetail}
	epClassVersions      = endpoint{"class/versions", http.MethodPost, "/api/v2/Class/DetailsManyByCode", cache.TTLDetail}
	epClassForRelease    = endpoint{"class/for-release", http.MethodPost, "/api/v2/Class/DetailsForRelease", cache.TTLDetail}
	epClassDiff          = endpoint{"class/diff", http.MethodPost, "/api/v2/Class/DetailsDiff", cache.TTLDetail}
	epFeatureSearch      = endpoint{"feature/search", http.MethodPost, "/api/v2/Feature/Search", cache.TTLSearch}
	epFeatureDetails     = endpoint{"feature/details", http.MethodPost, "/api/v2/Feature/Details", cache.TTLDetail}
	epGroupSearch        = endpoint{"group/search", http.MethodPost, "/api/v2/Group/Search", cache.TTLSearch}
	epGroupDetails       = endpoint{"group/details", http.MethodPost, "/api/v2/Group/Details", cache.TTLDetail}
	epValueSearch        = endpoint{"value/search", http.MethodPost, "/api/v2/Value/Search", cache.TTLSearch}
	epValueDetails       = endpoint{"value/details", http.MethodPost, "/api/v2/Value/Details", cache.TTLDetail}
	epUnitSearch         = endpoint{"unit/search", http.MethodPost, "/api/v2/Unit/Search", cache.TTLSearch}
	epUnitDetails        = endpoint{"unit/details", http.MethodPost, "/api/v2/Unit/Details", cache.TTLDetail}
	epFeatureGroupSearch = endpoint{"featuregroup/search", http.MethodPost, "/api/v2/FeatureGroup/Search", cache.TTLSearch}
	epFeatureGroupDetail = endpoint{"featuregroup/details", http.MethodPost, "/api/v2/FeatureGroup/Details", cache.TTLDetail}
	epLanguagesAllowed   = endpoint{"misc/languages-allowed", http.MethodGet, "/api/v2/Misc/LanguagesAllowed", cache.TTLStatic}
	epLanguages          = endpoint{"misc/languages", http.MethodGet, "/api/v2/Misc/Languages", cache.TTLStatic}
	epReleases           = endpoint{"misc/releases", http.MethodGet, "/api/v2/Misc/Releases", cache.TTLStatic}
)
