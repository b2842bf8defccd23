package httputil

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestRecord describes one outgoing request as seen by AuditTransport.
type RequestRecord struct {
	ID       string
	Method   string
	URL      string
	Status   int // 0 when the request failed before a response
	Duration time.Duration
	Err      error
}

// AuditTransport tags each request with a request id, logs it, and reports it to OnRequest.
type AuditTransport struct {
	Base http.RoundTripper

	// OnRequest, if set, is called after every RoundTrip. Useful for counting calls in tests.
	OnRequest func(RequestRecord)
}

// RoundTrip implements http.RoundTripper.
func (t *AuditTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	id := req.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, id)
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	record := RequestRecord{
		ID:       id,
		Method:   req.Method,
		URL:      redactedURL(req),
		Duration: time.Since(start),
		Err:      err,
	}
	if resp != nil {
		record.Status = resp.StatusCode
	}

	if err != nil {
		slog.Debug("http request failed",
			"request_id", record.ID,
			"method", record.Method,
			"url", record.URL,
			"duration", record.Duration,
			"error", err,
		)
	} else {
		slog.Debug("http request",
			"request_id", record.ID,
			"method", record.Method,
			"url", record.URL,
			"status", record.Status,
			"duration", record.Duration,
		)
	}
	if t.OnRequest != nil {
		t.OnRequest(record)
	}
	return resp, err
}
