package server

import (
	"log/slog"
	"net/http"
)

// Pre-allocated response bodies; see proxy.go:plainCT.
var (
	okBody       = []byte("ok")
	notReadyBody = []byte("not ready")
)

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, okBody)
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadyCheck != nil {
		if err := s.deps.ReadyCheck(r.Context()); err != nil {
			writeText(w, http.StatusServiceUnavailable, notReadyBody)
			return
		}
	}
	writeText(w, http.StatusOK, okBody)
}

// handlePurge drops all cached responses.
func (s *server) handlePurge(w http.ResponseWriter, r *http.Request) {
	s.deps.Cache.Purge(r.Context())
	slog.LogAttrs(r.Context(), slog.LevelInfo, "cache purged")
	w.WriteHeader(http.StatusNoContent)
}
