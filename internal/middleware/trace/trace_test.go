package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddleware_RequestID(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		reuse   bool
	}{
		{name: "generated when absent", inbound: "", reuse: false},
		{name: "inbound id reused", inbound: "abc-123", reuse: true},
		{name: "malformed inbound id replaced", inbound: "bad id\n", reuse: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMiddleware()
			var seen string
			h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestID(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.inbound != "" {
				req.Header.Set(HeaderRequestID, tt.inbound)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Header().Get(HeaderRequestID) != seen || seen == "" {
				t.Fatalf("header %q, context %q", rec.Header().Get(HeaderRequestID), seen)
			}
			if tt.reuse && seen != tt.inbound {
				t.Errorf("id = %q, want %q", seen, tt.inbound)
			}
			if !tt.reuse && !strings.HasPrefix(seen, "req_") {
				t.Errorf("id = %q, want generated", seen)
			}
		})
	}
}

func TestMiddleware_Metrics(t *testing.T) {
	m := NewMiddleware()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	for _, p := range []string{"/", "/boom", "/"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	got := m.GetMetrics()
	if got.TotalRequests != 3 || got.ServerErrors != 1 {
		t.Errorf("GetMetrics() = %+v", got)
	}
}
