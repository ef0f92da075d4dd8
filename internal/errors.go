package cachegate

import "errors"

// Sentinel errors for the proxy domain.
var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrBadRequest          = errors.New("bad request")
)
