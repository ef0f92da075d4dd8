package server

import (
	"errors"
	"log/slog"
	"net/http"

	cachegate "github.com/eugener/cachegate/internal"
	"github.com/eugener/cachegate/internal/app"
)

// plainCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = plainCT) avoids the []string{v} alloc
// that Header.Set creates on every call.
var plainCT = []string{"text/plain; charset=utf-8"}

// handleProxy serves every non-system request through the ProxyService.
func (s *server) handleProxy(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Proxy.Serve(r.Context(), r)
	if err != nil {
		s.writeProxyError(w, r, err)
		return
	}
	cachegate.SetCacheStatus(r.Context(), res.Cache)
	writeResult(w, res)
}

// writeProxyError maps a Serve error to a plain-text response.
func (s *server) writeProxyError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, cachegate.ErrBadRequest) {
		slog.LogAttrs(r.Context(), slog.LevelWarn, "bad request",
			slog.String("error", err.Error()),
		)
		writeText(w, http.StatusBadRequest, []byte("Bad Request: "+err.Error()))
		return
	}

	if ctxErr := r.Context().Err(); ctxErr != nil {
		// Client went away; nobody is left to read a response.
		slog.LogAttrs(r.Context(), slog.LevelDebug, "client canceled",
			slog.String("error", err.Error()),
		)
	} else {
		slog.LogAttrs(r.Context(), slog.LevelError, "upstream error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeText(w, http.StatusBadGateway, []byte("Bad Gateway: "+err.Error()))
}

func writeResult(w http.ResponseWriter, res *app.Result) {
	h := w.Header()
	for key, vals := range res.Header {
		h[key] = vals
	}
	w.WriteHeader(res.Status)
	if _, err := w.Write(res.Body); err != nil {
		slog.Debug("failed to write response body", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, body []byte) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(status)
	w.Write(body)
}
