package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ziouzitsou/etim-mcp-server/internal/testutil"
	"github.com/ziouzitsou/etim-mcp-server/pkg/cache"
)

func newTestManager(t *testing.T, mock *testutil.MockETIM, store cache.Store) *Manager {
	t.Helper()

	if store == nil {
		store = cache.NewMemoryStore()
	}

	manager, err := NewManager(Config{
		AuthURL:      mock.URL(),
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Scope:        "EtimApi",
		Store:        store,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return manager
}

func TestNewManager_Validation(t *testing.T) {
	store := cache.NewMemoryStore()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing store", Config{AuthURL: "http://auth", ClientID: "id", ClientSecret: "secret"}},
		{"missing auth URL", Config{Store: store, ClientID: "id", ClientSecret: "secret"}},
		{"missing client id", Config{Store: store, AuthURL: "http://auth", ClientSecret: "secret"}},
		{"missing client secret", Config{Store: store, AuthURL: "http://auth", ClientID: "id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewManager(tt.cfg); err == nil {
				t.Error("Expected error but got nil")
			}
		})
	}
}

func TestManager_TokenCachedAcrossCalls(t *testing.T) {
	mock := testutil.NewMockETIM("token-1")
	defer mock.Close()

	manager := newTestManager(t, mock, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		token, err := manager.Token(ctx)
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if token != "token-1" {
			t.Errorf("Token = %q, want %q", token, "token-1")
		}
	}

	if got := mock.GetExchangeCount(); got != 1 {
		t.Errorf("Exchange count = %d, want 1", got)
	}
}

// N concurrent callers with no usable credential must collapse into a
// single upstream exchange, all receiving the same token.
func TestManager_Singleflight(t *testing.T) {
	mock := testutil.NewMockETIM("token-1")
	defer mock.Close()

	manager := newTestManager(t, mock, nil)
	ctx := context.Background()

	const callers = 25
	tokens := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = manager.Token(ctx)
		}()
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: Token failed: %v", i, errs[i])
		}
		if tokens[i] != "token-1" {
			t.Errorf("caller %d: Token = %q, want %q", i, tokens[i], "token-1")
		}
	}

	if got := mock.GetExchangeCount(); got != 1 {
		t.Errorf("Exchange count = %d, want exactly 1", got)
	}
}

// A credential obtained at t0 with expiresIn=3600 must be refreshed at
// t0+3596, inside the 300s skew window.
func TestManager_RefreshSkew(t *testing.T) {
	mock := testutil.NewMockETIM("token-1", "token-2")
	defer mock.Close()

	manager := newTestManager(t, mock, nil)
	ctx := context.Background()

	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	manager.SetClock(func() time.Time { return now })

	token, err := manager.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "token-1" {
		t.Errorf("Token = %q, want %q", token, "token-1")
	}

	// Still comfortably outside the skew window: no refresh.
	now = t0.Add(3000 * time.Second)
	if token, _ = manager.Token(ctx); token != "token-1" {
		t.Errorf("Token = %q, want cached %q", token, "token-1")
	}
	if got := mock.GetExchangeCount(); got != 1 {
		t.Fatalf("Exchange count = %d, want 1 before skew window", got)
	}

	// 4 seconds before hard expiry: inside the skew window.
	now = t0.Add(3596 * time.Second)
	token, err = manager.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "token-2" {
		t.Errorf("Token = %q, want refreshed %q", token, "token-2")
	}
	if got := mock.GetExchangeCount(); got != 2 {
		t.Errorf("Exchange count = %d, want 2 after skew refresh", got)
	}
}

func TestManager_ForceRefreshReplacesCredential(t *testing.T) {
	mock := testutil.NewMockETIM("token-1", "token-2")
	defer mock.Close()

	manager := newTestManager(t, mock, nil)
	ctx := context.Background()

	if token, _ := manager.Token(ctx); token != "token-1" {
		t.Fatalf("Token = %q, want %q", token, "token-1")
	}

	token, err := manager.ForceRefresh(ctx)
	if err != nil {
		t.Fatalf("ForceRefresh failed: %v", err)
	}
	if token != "token-2" {
		t.Errorf("ForceRefresh = %q, want %q", token, "token-2")
	}

	// The stale credential must no longer be returned.
	if token, _ := manager.Token(ctx); token != "token-2" {
		t.Errorf("Token after force refresh = %q, want %q", token, "token-2")
	}
	if got := mock.GetExchangeCount(); got != 2 {
		t.Errorf("Exchange count = %d, want 2", got)
	}
}

// A failed exchange fails for all waiters as a fatal auth error, with
// no silent retry loop.
func TestManager_ExchangeFailure(t *testing.T) {
	mock := testutil.NewMockETIM("token-1")
	mock.FailExchanges = 1
	defer mock.Close()

	manager := newTestManager(t, mock, nil)
	ctx := context.Background()

	const callers = 8
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = manager.Token(ctx)
		}()
	}
	wg.Wait()

	var authErr *Error
	failures := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			failures++
			if !errors.As(errs[i], &authErr) {
				t.Errorf("caller %d: expected *auth.Error, got %T", i, errs[i])
			}
		}
	}
	if failures == 0 {
		t.Error("Expected at least one caller to see the exchange failure")
	}

	// A later call succeeds once the exchange recovers.
	token, err := manager.Token(ctx)
	if err != nil {
		t.Fatalf("Token after recovery failed: %v", err)
	}
	if token != "token-1" {
		t.Errorf("Token = %q, want %q", token, "token-1")
	}
}

func TestManager_StoreUnreachableFallsBackToExchange(t *testing.T) {
	mock := testutil.NewMockETIM("token-1")
	defer mock.Close()

	manager := newTestManager(t, mock, failingStore{})
	ctx := context.Background()

	token, err := manager.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "token-1" {
		t.Errorf("Token = %q, want %q", token, "token-1")
	}
}

func TestCredential_Usable(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	skew := 5 * time.Minute

	tests := []struct {
		name string
		cred Credential
		want bool
	}{
		{"fresh", Credential{Token: "t", ExpiresAt: now.Add(time.Hour)}, true},
		{"inside skew", Credential{Token: "t", ExpiresAt: now.Add(4 * time.Minute)}, false},
		{"at skew boundary", Credential{Token: "t", ExpiresAt: now.Add(skew)}, false},
		{"expired", Credential{Token: "t", ExpiresAt: now.Add(-time.Minute)}, false},
		{"empty token", Credential{ExpiresAt: now.Add(time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.Usable(now, skew); got != tt.want {
				t.Errorf("Usable = %v, want %v", got, tt.want)
			}
		})
	}
}

// failingStore simulates an unreachable credential store.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("store unreachable")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store unreachable")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("store unreachable")
}
