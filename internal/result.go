package internal

import "fmt"

type ResultKind uint8

const (
	ResultLoading ResultKind = iota
	ResultSuccess
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultLoading:
		return "loading"
	case ResultSuccess:
		return "success"
	case ResultError:
		return "error"
	}
	return fmt.Sprintf("ResultKind(%d)", uint8(k))
}

func (k ResultKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Result is the state every asynchronous read or write resolves to.
// Data is only meaningful for ResultSuccess and Err is only set for ResultError.
type Result[T any] struct {
	Kind ResultKind `json:"kind"`
	Data T          `json:"data,omitempty"`
	Err  *Error     `json:"error,omitempty"`
}

func Loading[T any]() Result[T] {
	return Result[T]{Kind: ResultLoading}
}

func Success[T any](data T) Result[T] {
	return Result[T]{Kind: ResultSuccess, Data: data}
}

func Failure[T any](err *Error) Result[T] {
	return Result[T]{Kind: ResultError, Err: err}
}

func (r Result[T]) IsLoading() bool { return r.Kind == ResultLoading }
func (r Result[T]) IsSuccess() bool { return r.Kind == ResultSuccess }
func (r Result[T]) IsError() bool   { return r.Kind == ResultError }

// Get returns the data and true for a success, the zero value and false otherwise.
func (r Result[T]) Get() (T, bool) {
	if r.Kind != ResultSuccess {
		var zero T
		return zero, false
	}
	return r.Data, true
}
