package internal

import "fmt"

type ErrorKind uint8

const (
	ErrorUnknown ErrorKind = iota
	// ErrorNoConnectivity means the pre-flight check failed and no request was sent.
	ErrorNoConnectivity
	ErrorTimeout
	// ErrorHTTP carries the response status in Error.Code.
	ErrorHTTP
	// ErrorNetwork is a transport failure after the pre-flight check passed.
	ErrorNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorUnknown:
		return "unknown"
	case ErrorNoConnectivity:
		return "no_connectivity"
	case ErrorTimeout:
		return "timeout"
	case ErrorHTTP:
		return "http"
	case ErrorNetwork:
		return "network"
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is a classified failure, safe to show to a user via Message.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    int       `json:"code,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
