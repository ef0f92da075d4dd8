package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	cachegate "github.com/eugener/cachegate/internal"
)

func TestIsValidToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"abc-123_x.y", true},
		{"", false},
		{"has space", false},
		{"new\nline", false},
		{strings.Repeat("a", maxRequestIDLen), true},
		{strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tt := range tests {
		if got := isValidToken(tt.in, maxRequestIDLen); got != tt.want {
			t.Errorf("isValidToken(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResponseRecorder(t *testing.T) {
	t.Parallel()

	t.Run("implicit 200", func(t *testing.T) {
		t.Parallel()
		rw := acquireRecorder(httptest.NewRecorder())
		defer releaseRecorder(rw)

		rw.Write([]byte("hello"))
		rw.Write([]byte(" world"))
		if rw.status != http.StatusOK {
			t.Errorf("status = %d, want 200", rw.status)
		}
		if rw.written != 11 {
			t.Errorf("written = %d, want 11", rw.written)
		}
	})

	t.Run("first status wins", func(t *testing.T) {
		t.Parallel()
		under := httptest.NewRecorder()
		rw := acquireRecorder(under)
		defer releaseRecorder(rw)

		rw.WriteHeader(http.StatusBadGateway)
		rw.WriteHeader(http.StatusOK)
		if rw.status != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rw.status)
		}
		if rw.Unwrap() != under {
			t.Error("Unwrap should return the wrapped writer")
		}
	})
}

func TestStatusLabel(t *testing.T) {
	t.Parallel()
	for code, want := range map[int]string{200: "200", 502: "502", 999: "999", -1: "-1"} {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()
	s := &server{}

	var gotID string
	h := s.requestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotID = cachegate.RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name    string
		inbound string
		reuse   bool
	}{
		{"valid inbound reused", "abc-123", true},
		{"none generated", "", false},
		{"invalid replaced", "bad id", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		if tt.inbound != "" {
			req.Header.Set("X-Request-Id", tt.inbound)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if tt.reuse && gotID != tt.inbound {
			t.Errorf("%s: context id = %q, want %q", tt.name, gotID, tt.inbound)
		}
		if !tt.reuse {
			if _, err := uuid.Parse(gotID); err != nil {
				t.Errorf("%s: context id %q is not a UUID: %v", tt.name, gotID, err)
			}
		}
		if got := req.Header.Get("X-Request-Id"); got != tt.inbound {
			t.Errorf("%s: request header = %q, want unchanged %q", tt.name, got, tt.inbound)
		}
		if _, ok := rec.Header()["X-Request-Id"]; ok {
			t.Errorf("%s: response should not carry X-Request-Id", tt.name)
		}
	}
}
