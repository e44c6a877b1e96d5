// Package testutil provides testing utilities for the ETIM gateway.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockResponse defines the behavior for a mock ETIM endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockETIM is a configurable mock ETIM API server: a token endpoint
// plus per-path data handlers, with request and exchange counters.
type MockETIM struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tokens are handed out by the token endpoint in order; the last
	// one repeats once the sequence is exhausted.
	Tokens []string

	// RejectBearers are tokens the data endpoints answer with 401.
	RejectBearers map[string]bool

	// FailExchanges makes the token endpoint return 400 that many
	// times before succeeding again.
	FailExchanges int

	// Tracking
	ExchangeCount int
	RequestCount  int
	LastBearer    string
}

// NewMockETIM creates a mock ETIM API serving the given token sequence.
func NewMockETIM(tokens ...string) *MockETIM {
	if len(tokens) == 0 {
		tokens = []string{"token-1"}
	}

	mock := &MockETIM{
		handlers:      make(map[string]func(w http.ResponseWriter, r *http.Request)),
		Tokens:        tokens,
		RejectBearers: make(map[string]bool),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/connect/token" {
			mock.handleToken(w, r)
			return
		}
		mock.handleData(w, r)
	}))

	return mock
}

func (m *MockETIM) handleToken(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.ExchangeCount++
	count := m.ExchangeCount

	if m.FailExchanges > 0 {
		m.FailExchanges--
		m.mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_client"}`))
		return
	}

	idx := count - 1
	if idx >= len(m.Tokens) {
		idx = len(m.Tokens) - 1
	}
	token := m.Tokens[idx]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"expires_in":   3600,
		"token_type":   "Bearer",
	})
}

func (m *MockETIM) handleData(w http.ResponseWriter, r *http.Request) {
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	m.mu.Lock()
	m.RequestCount++
	m.LastBearer = bearer
	rejected := m.RejectBearers[bearer]
	handler := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if bearer == "" || rejected {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "invalid_token"}`))
		return
	}

	if handler != nil {
		handler(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status": "ok"}`))
}

// URL returns the mock server URL.
func (m *MockETIM) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockETIM) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockETIM) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockETIM) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// RejectBearer makes data endpoints answer 401 for the given token,
// simulating out-of-band revocation.
func (m *MockETIM) RejectBearer(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RejectBearers[token] = true
}

// GetExchangeCount returns the number of credential exchanges served.
func (m *MockETIM) GetExchangeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExchangeCount
}

// GetRequestCount returns the number of data requests served.
func (m *MockETIM) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// ClassBody builds a class details payload with n generated features.
func ClassBody(code string, n int) string {
	features := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		features = append(features, map[string]any{
			"code":        fmt.Sprintf("EF%06d", i+1),
			"description": "Feature description",
			"type":        "A",
			"unit":        map[string]any{"code": "EU570448"},
			"values":      []string{"EV000397", "EV000402"},
		})
	}
	body, _ := json.Marshal(map[string]any{
		"code":        code,
		"version":     10,
		"description": "Test class",
		"features":    features,
	})
	return string(body)
}
