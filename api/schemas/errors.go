// api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// Status is the outcome of a step: the action ran, nothing ran, or it failed.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusNoop    Status = "NOOP"
	StatusError   Status = "ERROR"
)

// ErrorKind classifies failures so callers can decide between retrying,
// re-prompting the agent, or abandoning the trajectory.
type ErrorKind string

const (
	// KindTransport means no response was received at all.
	KindTransport ErrorKind = "transport"
	// KindServer means the server answered with a non-200 status.
	KindServer ErrorKind = "server"
	// KindProtocol means the response was missing fields the protocol requires.
	KindProtocol ErrorKind = "protocol"
	// KindParse covers unparseable agent actions and markdown build failures.
	KindParse ErrorKind = "parse"
	// KindNotStarted is returned by session operations on a client without a session.
	KindNotStarted ErrorKind = "not_started"
	// KindSessionNotFound means the server no longer knows the session; it cannot be recovered.
	KindSessionNotFound ErrorKind = "session_not_found"
	// KindRetriesExhausted wraps the last failure once every attempt was used.
	KindRetriesExhausted ErrorKind = "retries_exhausted"
)

// EnvError is the single error type crossing component boundaries.
type EnvError struct {
	Kind ErrorKind
	// Op is the operation that failed ("start", "observation", "parse", ...).
	Op  string
	Err error
}

func (e *EnvError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *EnvError) Unwrap() error { return e.Err }

// NewEnvError builds an EnvError.
func NewEnvError(kind ErrorKind, op string, err error) *EnvError {
	return &EnvError{Kind: kind, Op: op, Err: err}
}

// ServerError carries the status and message of a non-200 response.
type ServerError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// KindOf returns the kind of the first EnvError in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var envErr *EnvError
	if errors.As(err, &envErr) {
		return envErr.Kind
	}
	return ""
}

// IsKind reports whether any EnvError in err's chain has the given kind.
// Wrapped chains are walked fully, so a retries_exhausted error wrapping a
// server error matches both kinds.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		var envErr *EnvError
		if !errors.As(err, &envErr) {
			return false
		}
		if envErr.Kind == kind {
			return true
		}
		err = envErr.Err
	}
	return false
}
