package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func protectedMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return authMiddleware("secret", mux)
}

func TestAuthMiddleware(t *testing.T) {
	handler := protectedMux()

	cases := []struct {
		name   string
		path   string
		setup  func(r *http.Request)
		status int
	}{
		{"health is public", "/api/health", func(r *http.Request) {}, http.StatusOK},
		{"missing token", "/api/orders", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bearer header", "/api/orders", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer secret")
		}, http.StatusOK},
		{"api key header", "/api/orders", func(r *http.Request) {
			r.Header.Set("X-API-Key", "secret")
		}, http.StatusOK},
		{"query token", "/api/orders?token=secret", func(r *http.Request) {}, http.StatusOK},
		{"wrong token", "/api/orders", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer nope")
		}, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Errorf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestExtractTokenPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/orders?token=query", nil)
	req.Header.Set("Authorization", "Bearer header")
	if got := extractToken(req); got != "header" {
		t.Errorf("extractToken = %q, want Authorization header to win", got)
	}
}
