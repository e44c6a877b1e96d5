// Package auth manages the OAuth2 client-credentials token for the
// ETIM API: one shared credential, refreshed before expiry or on
// demand, with at most one in-flight exchange regardless of how many
// callers need it.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/ziouzitsou/etim-mcp-server/pkg/cache"
)

// Prometheus metrics for token lifecycle operations.
var (
	authRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etim_auth_refreshes_total",
		Help: "Total credential exchanges by trigger (expiry, forced)",
	}, []string{"trigger"})

	authRefreshFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "etim_auth_refresh_failures_total",
		Help: "Total failed credential exchanges",
	})
)

const (
	// credentialKey is where the shared credential lives in the store.
	credentialKey = "etim:auth:token"

	// refreshSlot is the singleflight key collapsing concurrent
	// refreshes into one exchange.
	refreshSlot = "refresh"

	// DefaultRefreshSkew is how long before hard expiry a credential
	// stops being handed out.
	DefaultRefreshSkew = 5 * time.Minute
)

// Config holds the token manager configuration.
type Config struct {
	// AuthURL is the base URL of the credential exchange server.
	AuthURL string

	// ClientID and ClientSecret are the client-credentials grant
	// parameters. Opaque to the manager.
	ClientID     string
	ClientSecret string

	// Scope requested during the exchange.
	Scope string

	// Store persists the credential across restarts. Required.
	Store cache.Store

	// RefreshSkew overrides DefaultRefreshSkew when positive.
	RefreshSkew time.Duration

	// HTTPClient overrides the exchange HTTP client (for testing).
	HTTPClient *http.Client
}

// Manager owns the shared ETIM credential. Construct one instance and
// pass it by reference into every pipeline that needs it.
type Manager struct {
	cfg        Config
	store      cache.Store
	httpClient *http.Client
	skew       time.Duration
	group      singleflight.Group
	logger     zerolog.Logger

	// now is replaceable for expiry tests.
	now func() time.Time
}

// NewManager creates a token manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("auth URL is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client credentials are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	skew := cfg.RefreshSkew
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}

	return &Manager{
		cfg:        cfg,
		store:      cfg.Store,
		httpClient: httpClient,
		skew:       skew,
		logger:     log.With().Str("component", "token-manager").Logger(),
		now:        time.Now,
	}, nil
}

// Token returns a usable credential token. A cached credential outside
// the refresh skew window is returned without any network call;
// otherwise callers collapse into a single upstream exchange.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if cred, ok := m.cached(ctx); ok {
		return cred.Token, nil
	}
	cred, err := m.refresh(ctx, false)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

// ForceRefresh discards any cached credential and performs (or joins)
// a refresh. Used after the upstream rejects a credential that was
// cached as usable.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	cred, err := m.refresh(ctx, true)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

// cached loads the credential from the store and checks usability.
// Store errors degrade to a miss; the exchange is the fallback.
func (m *Manager) cached(ctx context.Context) (Credential, bool) {
	data, err := m.store.Get(ctx, credentialKey)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			m.logger.Warn().Err(err).Msg("Credential store unreachable, treating as miss")
		}
		return Credential{}, false
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		m.logger.Warn().Err(err).Msg("Stored credential corrupt, discarding")
		_ = m.store.Delete(ctx, credentialKey)
		return Credential{}, false
	}

	if !cred.Usable(m.now(), m.skew) {
		return Credential{}, false
	}
	return cred, true
}

// refresh performs the mutually exclusive refresh section. All
// concurrent callers needing a refresh share a single exchange; the
// slot is released as soon as the exchange completes, so steady-state
// Token calls never serialize on it.
//
// The refresh is detached from the caller's context: a caller that
// times out must not cancel an exchange other waiters depend on.
func (m *Manager) refresh(ctx context.Context, force bool) (Credential, error) {
	result, err, shared := m.group.Do(refreshSlot, func() (interface{}, error) {
		// A waiter that lost the race to a refresh that just finished
		// should reuse its result rather than exchange again. Forced
		// refreshes bypass this check.
		if !force {
			if cred, ok := m.cached(ctx); ok {
				return cred, nil
			}
		}

		trigger := "expiry"
		if force {
			trigger = "forced"
		}
		authRefreshesTotal.WithLabelValues(trigger).Inc()

		cred, err := m.exchange(context.WithoutCancel(ctx))
		if err != nil {
			authRefreshFailuresTotal.Inc()
			return Credential{}, err
		}

		m.persist(ctx, cred)
		return cred, nil
	})
	if err != nil {
		return Credential{}, err
	}

	cred := result.(Credential)
	if shared {
		m.logger.Debug().Msg("Joined in-flight credential refresh")
	}
	return cred, nil
}

// exchange performs the client-credentials grant.
func (m *Manager) exchange(ctx context.Context) (Credential, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
		"scope":         {m.cfg.Scope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.cfg.AuthURL+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, &Error{Reason: "credential exchange", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Error().Err(err).Msg("Credential exchange request failed")
		return Credential{}, &Error{Reason: "credential exchange", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, &Error{Reason: "credential exchange", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		m.logger.Error().
			Int("status", resp.StatusCode).
			Msg("Credential exchange rejected")
		return Credential{}, &Error{
			Reason:     "credential exchange rejected",
			StatusCode: resp.StatusCode,
		}
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &grant); err != nil {
		return Credential{}, &Error{Reason: "credential exchange response", Err: err}
	}
	if grant.AccessToken == "" {
		return Credential{}, &Error{Reason: "credential exchange returned empty token"}
	}

	now := m.now()
	cred := Credential{
		Token:      grant.AccessToken,
		ObtainedAt: now,
		ExpiresAt:  now.Add(time.Duration(grant.ExpiresIn) * time.Second),
	}

	m.logger.Info().
		Dur("expires_in", time.Duration(grant.ExpiresIn)*time.Second).
		Msg("New access token obtained")

	return cred, nil
}

// persist stores the credential with a TTL that runs out at the skew
// boundary, so the store never hands back a token the manager would
// refuse anyway. Store failures are absorbed; the in-flight result is
// still returned to all waiters.
func (m *Manager) persist(ctx context.Context, cred Credential) {
	ttl := cred.ExpiresAt.Add(-m.skew).Sub(m.now())
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(cred)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to marshal credential")
		return
	}
	if err := m.store.Set(ctx, credentialKey, data, ttl); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to persist credential")
	}
}

// SetClock overrides the manager's time source (for testing).
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}
