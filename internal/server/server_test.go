package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testServer(fa *fakeAdvisor, extra ...func(*ServerConfig)) *Server {
	cfg := ServerConfig{
		Advisor:             fa,
		Logger:              testLogger(),
		Port:                0,
		Version:             "test",
		ProviderName:        "scripted",
		MaxRequestBodyBytes: 1 << 20,
	}
	for _, fn := range extra {
		fn(&cfg)
	}
	return New(cfg)
}

func TestServerRoutesAndMiddleware(t *testing.T) {
	srv := testServer(&fakeAdvisor{})

	r := httptest.NewRequest(http.MethodGet, "/v1/scenarios", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	_, meta := decodeEnvelope(t, w)
	if meta.RequestID != w.Header().Get("X-Request-ID") {
		t.Error("envelope request id differs from the header")
	}
}

func TestServerMethodNotAllowed(t *testing.T) {
	srv := testServer(&fakeAdvisor{})

	r := httptest.NewRequest(http.MethodDelete, "/v1/scenarios", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestServerExtraRoutesAndMiddleware(t *testing.T) {
	srv := testServer(&fakeAdvisor{}, func(cfg *ServerConfig) {
		cfg.ExtraRoutes = []RouteRegistrar{func(mux *http.ServeMux) {
			mux.HandleFunc("GET /custom/ping", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("pong"))
			})
		}}
		cfg.ExtraMiddleware = []Middleware{func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Embedder", "present")
				next.ServeHTTP(w, r)
			})
		}}
	})

	r := httptest.NewRequest(http.MethodGet, "/custom/ping", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pong") {
		t.Fatalf("extra route not served: %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Embedder") != "present" {
		t.Error("extra middleware not applied")
	}
	// Extra routes share the built-in chain.
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("built-in middleware not applied to extra route")
	}
}
