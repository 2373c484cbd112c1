package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientLimiter_Disabled(t *testing.T) {
	if l := NewClientLimiter(0); l != nil {
		t.Fatal("expected nil limiter for zero rate")
	}
	var l *ClientLimiter
	if !l.Allow("anyone") {
		t.Fatal("nil limiter must allow")
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	rec := httptest.NewRecorder()
	l.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestClientLimiter_PerClient(t *testing.T) {
	l := NewClientLimiter(1)
	if !l.Allow("10.0.0.1") {
		t.Fatal("first request should pass")
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("second request within the minute should be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatal("other clients have their own budget")
	}
}

func TestClientLimiter_Middleware(t *testing.T) {
	l := NewClientLimiter(1)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := l.Middleware(next)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.RemoteAddr = "192.0.2.7:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}

	// Same host, different source port.
	req.RemoteAddr = "192.0.2.7:6666"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}
