package httputil

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxErrorBody bounds how much of a failed response body is kept for the error message.
const maxErrorBody = 512

// StatusError is returned by StatusTransport for any 4xx or 5xx response.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// StatusTransport turns 4xx and 5xx responses into *StatusError so callers see the HTTP status
// rather than whatever the client library makes of the error body.
type StatusTransport struct {
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *StatusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	return nil, &StatusError{
		StatusCode: resp.StatusCode,
		Method:     req.Method,
		URL:        redactedURL(req),
		Body:       strings.TrimSpace(string(body)),
	}
}

// redactedURL drops query parameters that carry credentials.
func redactedURL(req *http.Request) string {
	u := *req.URL
	redactQuery(&u)
	return u.String()
}

// RedactURL masks the credential query parameters of raw. A raw value that does not parse is
// returned without its query.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		before, _, _ := strings.Cut(raw, "?")
		return before
	}
	redactQuery(u)
	return u.String()
}

func redactQuery(u *url.URL) {
	q := u.Query()
	changed := false
	for _, key := range []string{"api_key", "session_id"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
}
