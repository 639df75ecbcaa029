package http_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	flowhttp "github.com/Strob0t/FlowForge/internal/adapter/http"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	flowhttp.SecurityHeaders(okHandler()).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "default-src 'none'") {
		t.Errorf("policy should deny all resource loads, got %q", csp)
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	handler := flowhttp.CORS("https://dashboard.local")(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/swarm", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.local" {
		t.Errorf("allow-origin = %q", got)
	}
	if got := rec.Header().Get("Vary"); got != "Origin" {
		t.Errorf("vary = %q", got)
	}
}

func TestCORS_DisabledWithoutOrigin(t *testing.T) {
	handler := flowhttp.CORS("")(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/swarm", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin should be unset, got %q", got)
	}
}
