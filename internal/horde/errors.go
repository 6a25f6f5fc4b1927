package horde

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrConfig means the worker identity is incomplete or unparseable.
	ErrConfig = errors.New("invalid worker configuration")
	// ErrInvalidProxy means a role's proxy URL could not be used.
	ErrInvalidProxy = errors.New("invalid proxy")
	// ErrClientConstruction means an HTTP transport could not be built.
	ErrClientConstruction = errors.New("client construction failed")

	// ErrEmptyQueue is the horde's "no work available" answer to a pop.
	ErrEmptyQueue = errors.New("no job available")
	// ErrTimeout means a generation did not finish within the poll budget.
	ErrTimeout = errors.New("generation timed out")
	// ErrRemoteFault means the horde reported the generation as faulted.
	ErrRemoteFault = errors.New("generation faulted")
)

// RequestError is a transport failure or a non-2xx answer from the horde.
type RequestError struct {
	Op         string // pop, submit, check, status
	StatusCode int    // 0 when no response was received
	Message    string // horde error message, if any
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

// SchemaError means a response body did not have the expected shape.
type SchemaError struct {
	Op  string
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %v", e.Op, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// errReadBody marks a response whose body could not be read in full.
var errReadBody = errors.New("read response body")

// Retryable reports whether err is a transient failure worth another
// attempt of an idempotent call: transport errors (including per-request
// timeouts), truncated bodies, 429 and 5xx. Cancellation is never
// retryable. Callers must check their own context first, since an expired
// caller deadline looks like a transport timeout here.
func Retryable(err error) bool {
	var reqErr *RequestError
	if err == nil || !errors.As(err, &reqErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(reqErr.Err, &netErr) && netErr.Timeout() {
		return true
	}
	if reqErr.StatusCode == 0 || errors.Is(reqErr.Err, errReadBody) {
		return true
	}
	return reqErr.StatusCode == http.StatusTooManyRequests || reqErr.StatusCode >= 500
}
