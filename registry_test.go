package whisperwall_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	ww "github.com/whisperwall/whisperwall"
)

// stubStrategy records the path it was invoked with.
type stubStrategy struct {
	name     string
	lastPath string
}

func (s *stubStrategy) Provider() string { return s.name }

func (s *stubStrategy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.lastPath = r.URL.Path
	w.WriteHeader(http.StatusOK)
}

func TestRegistryAddGet(t *testing.T) {
	reg := ww.NewRegistry()
	google := &stubStrategy{name: "google"}
	facebook := &stubStrategy{name: "facebook"}

	reg.Add(google).Add(facebook)

	if reg.Get("google") != ww.Strategy(google) {
		t.Error("Expected google strategy back")
	}
	if reg.Get("twitter") != nil {
		t.Error("Expected nil for unregistered provider")
	}

	providers := reg.Providers()
	if len(providers) != 2 || providers[0] != "google" || providers[1] != "facebook" {
		t.Errorf("Expected registration order, got %v", providers)
	}
}

func TestRegistryHandlerRouting(t *testing.T) {
	reg := ww.NewRegistry()
	google := &stubStrategy{name: "google"}
	reg.Add(google)

	handler := reg.Handler("/auth")

	tests := []struct {
		name         string
		path         string
		expectStatus int
		expectPath   string
	}{
		{"begin route", "/auth/google", http.StatusOK, "/"},
		{"begin route with slash", "/auth/google/", http.StatusOK, "/"},
		{"callback route", "/auth/google/secrets", http.StatusOK, "/secrets"},
		{"unknown provider", "/auth/myspace", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			google.lastPath = ""
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectStatus {
				t.Errorf("Expected status %d, got %d", tt.expectStatus, rr.Code)
			}
			if tt.expectPath != "" && google.lastPath != tt.expectPath {
				t.Errorf("Expected strategy to see path %q, got %q", tt.expectPath, google.lastPath)
			}
		})
	}
}
