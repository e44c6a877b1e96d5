package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ziouzitsou/etim-mcp-server/internal/testutil"
	"github.com/ziouzitsou/etim-mcp-server/pkg/auth"
	"github.com/ziouzitsou/etim-mcp-server/pkg/cache"
	"github.com/ziouzitsou/etim-mcp-server/pkg/client"
	"github.com/ziouzitsou/etim-mcp-server/pkg/etim"
)

func newHandlerService(t *testing.T, mock *testutil.MockETIM) *etim.Service {
	t.Helper()

	store := cache.NewMemoryStore()
	tokens, err := auth.NewManager(auth.Config{
		AuthURL:      mock.URL(),
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Scope:        "EtimApi",
		Store:        store,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	pipeline, err := client.New(client.Config{
		BaseURL: mock.URL(),
		Store:   store,
		Tokens:  tokens,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return etim.NewService(pipeline, "EN")
}

func TestSearchHandler(t *testing.T) {
	mock := testutil.NewMockETIM("token-1")
	mock.SetResponse("/api/v2/Class/Search", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"total": 1, "classes": [{"code": "EC001744"}]}`,
	})
	defer mock.Close()

	handler := searchHandler(newHandlerService(t, mock))

	req := httptest.NewRequest("GET", "/api/classes/search?q=downlight&size=5", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	if got := int(doc["total"].(float64)); got != 1 {
		t.Errorf("total = %d, want 1", got)
	}
}

func TestClassHandler_DetailModes(t *testing.T) {
	mock := testutil.NewMockETIM("token-1")
	mock.SetResponse("/api/v2/Class/Details", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       testutil.ClassBody("EC001744", 6),
	})
	defer mock.Close()

	handler := classHandler(newHandlerService(t, mock))

	req := httptest.NewRequest("GET", "/api/classes/EC001744?mode=count", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	if n, ok := doc["itemCount"].(float64); !ok || int(n) != 6 {
		t.Errorf("itemCount = %v, want 6", doc["itemCount"])
	}
}

func TestClassHandler_InvalidWindow(t *testing.T) {
	mock := testutil.NewMockETIM("token-1")
	defer mock.Close()

	handler := classHandler(newHandlerService(t, mock))

	req := httptest.NewRequest("GET", "/api/classes/EC001744?page=1&perPage=500", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Result().StatusCode)
	}
	if got := mock.GetRequestCount(); got != 0 {
		t.Errorf("Request count = %d, want 0", got)
	}
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth error", &auth.Error{Reason: "rejected"}, http.StatusBadGateway},
		{"upstream error", &client.UpstreamError{Endpoint: "class/search", StatusCode: 500}, http.StatusBadGateway},
		{"generic error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)
			if got := w.Result().StatusCode; got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}
