package api

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestChainMiddlewarePreservesOrder(t *testing.T) {
	sequence := make([]string, 0, 5)
	wrap := func(name string) middlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sequence = append(sequence, "before:"+name)
				next.ServeHTTP(w, r)
				sequence = append(sequence, "after:"+name)
			})
		}
	}

	handler := chainMiddleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sequence = append(sequence, "handler")
			w.WriteHeader(http.StatusNoContent)
		}),
		wrap("outer"),
		wrap("inner"),
	)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	want := []string{
		"before:outer",
		"before:inner",
		"handler",
		"after:inner",
		"after:outer",
	}
	if !reflect.DeepEqual(sequence, want) {
		t.Fatalf("unexpected middleware order: got %v want %v", sequence, want)
	}
}

func TestRoutesResolveToRegisteredPatterns(t *testing.T) {
	server := setupAdminTestServer(t, ServerOptions{})

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/v1/listings", "GET /api/v1/listings"},
		{http.MethodPost, "/api/v1/listings/12/status", "POST /api/v1/listings/{id}/status"},
		{http.MethodGet, "/api/v1/listings/12/photos/photo-1", "GET /api/v1/listings/{id}/photos/{photo}"},
		{http.MethodGet, "/api/v1/conversations/unread", "GET /api/v1/conversations/unread"},
		{http.MethodGet, "/api/v1/conversations/4", "GET /api/v1/conversations/{id}"},
		{http.MethodPut, "/api/v1/user/favorites/12", "PUT /api/v1/user/favorites/{id}"},
		{http.MethodPost, "/api/v1/admin/listings/12/takedown", "POST /api/v1/admin/listings/{id}/takedown"},
		{http.MethodGet, "/api/v1/pages/hakkimizda", "GET /api/v1/pages/{slug}"},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if _, pattern := server.mux.Handler(req); pattern != tc.want {
			t.Fatalf("%s %s matched %q, want %q", tc.method, tc.path, pattern, tc.want)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/categories", nil)
	if _, pattern := server.mux.Handler(req); pattern != "" {
		t.Fatalf("public category tree must not accept POST, matched %q", pattern)
	}
}
