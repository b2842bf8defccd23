package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/drewfead/lovemovie/internal"
	"github.com/drewfead/lovemovie/internal/httputil"
	"github.com/drewfead/lovemovie/internal/netcheck"
)

// Classify maps any failure from the remote client or local store to an *internal.Error.
// It is the only place raw transport errors are inspected.
func Classify(err error) *internal.Error {
	if err == nil {
		return nil
	}
	var (
		classified *internal.Error
		statusErr  *httputil.StatusError
		netErr     net.Error
		opErr      *net.OpError
		urlErr     *url.Error
	)
	switch {
	case errors.As(err, &classified):
		return classified
	case errors.Is(err, netcheck.ErrNoConnectivity):
		return &internal.Error{
			Kind:    internal.ErrorNoConnectivity,
			Message: "No network connection, check your connectivity",
			Cause:   err,
		}
	case errors.As(err, &statusErr):
		return &internal.Error{
			Kind:    internal.ErrorHTTP,
			Code:    statusErr.StatusCode,
			Message: httpMessage(statusErr.StatusCode),
			Cause:   err,
		}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &internal.Error{
			Kind:    internal.ErrorTimeout,
			Message: "Connection timed out, try again later",
			Cause:   err,
		}
	case errors.As(err, &opErr), errors.As(err, &urlErr):
		return &internal.Error{
			Kind:    internal.ErrorNetwork,
			Message: "Network error, check your connection",
			Cause:   err,
		}
	default:
		return &internal.Error{
			Kind:    internal.ErrorUnknown,
			Message: "Unknown error: " + err.Error(),
			Cause:   err,
		}
	}
}

func httpMessage(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "Authentication failed, sign in again"
	case http.StatusNotFound:
		return "Resource not found"
	case http.StatusTooManyRequests:
		return "Too many requests, try again later"
	case http.StatusInternalServerError:
		return "Server error, try again later"
	case http.StatusServiceUnavailable:
		return "Service temporarily unavailable, try again later"
	default:
		return fmt.Sprintf("Request failed (code: %d)", code)
	}
}
