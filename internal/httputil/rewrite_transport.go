package httputil

import (
	"net/http"
	"net/url"
)

// RewriteTransport sends every request to Target's scheme and host, keeping path and query.
// Used to point a client library with a hard-coded base URL at a local server.
type RewriteTransport struct {
	Base   http.RoundTripper
	Target *url.URL
}

// RoundTrip implements http.RoundTripper.
func (t *RewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Target == nil {
		return base.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	out.URL.Scheme = t.Target.Scheme
	out.URL.Host = t.Target.Host
	out.Host = t.Target.Host
	return base.RoundTrip(out)
}
