package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/michibiki-ai/michibiki/internal/model"
)

func TestRequestIDMiddlewareGenerates(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	requestIDMiddleware(inner).ServeHTTP(w, r)

	if seen == "" {
		t.Fatal("no request id in context")
	}
	if got := w.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("response header = %q, context = %q", got, seen)
	}
}

func TestRequestIDMiddlewarePassthrough(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromContext(r.Context()); got != "client-supplied-id" {
			t.Errorf("request id = %q, want the client value", got)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-ID", "client-supplied-id")
	w := httptest.NewRecorder()
	requestIDMiddleware(inner).ServeHTTP(w, r)

	if got := w.Header().Get("X-Request-ID"); got != "client-supplied-id" {
		t.Errorf("response header = %q", got)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	securityHeadersMiddleware(inner).ServeHTTP(w, r)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler blew up")
	})

	r := httptest.NewRequest(http.MethodGet, "/v1/analyze", nil)
	w := httptest.NewRecorder()
	recoveryMiddleware(testLogger(), inner).ServeHTTP(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if detail := decodeErrorEnvelope(t, w); detail.Code != model.ErrCodeInternalError {
		t.Errorf("code = %q", detail.Code)
	}
}

func TestStatusWriterUnwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	sw.WriteHeader(http.StatusTeapot)
	if sw.statusCode != http.StatusTeapot {
		t.Errorf("statusCode = %d", sw.statusCode)
	}
	if sw.Unwrap() != rec {
		t.Error("Unwrap did not return the inner writer")
	}

	// ResponseController needs Unwrap to reach Flush on the inner writer.
	rc := http.NewResponseController(sw)
	if err := rc.Flush(); err != nil {
		t.Errorf("Flush through statusWriter: %v", err)
	}
}
