package cache

import (
	"net/http"
	"strings"

	cachegate "github.com/eugener/cachegate/internal"
)

// Key identifies a cached response. Keys are plain strings so they can be
// compared and used as map keys directly.
type Key string

// credentialSeparator precedes the Authorization value in partitioned keys.
const credentialSeparator = "::auth="

// DeriveKey builds the cache key for a request. The raw query is used
// verbatim: parameter order is significant, so ?a=1&b=2 and ?b=2&a=1 are
// distinct keys. In CredentialInclude mode the credential (empty when
// absent) is appended; in CredentialExclude mode it never affects the key.
func DeriveKey(method, path, rawQuery, credential string, mode cachegate.CredentialMode) Key {
	var b strings.Builder
	n := len(method) + len(path) + len(rawQuery) + 2
	if mode == cachegate.CredentialInclude {
		n += len(credentialSeparator) + len(credential)
	}
	b.Grow(n)
	b.WriteString(method)
	b.WriteByte(':')
	b.WriteString(path)
	b.WriteByte('?')
	b.WriteString(rawQuery)
	if mode == cachegate.CredentialInclude {
		b.WriteString(credentialSeparator)
		b.WriteString(credential)
	}
	return Key(b.String())
}

// KeyForRequest derives the key for r. Only the method, URL path, raw query
// and Authorization header are read. The path is taken in its escaped form,
// as the origin receives it, so /a%2Fb and /a/b are distinct keys.
func KeyForRequest(r *http.Request, mode cachegate.CredentialMode) Key {
	return DeriveKey(r.Method, r.URL.EscapedPath(), r.URL.RawQuery, r.Header.Get("Authorization"), mode)
}
