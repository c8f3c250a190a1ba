package inference

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure. The retry layer matches on
// this to decide whether a call may be attempted again.
type ErrorKind int

const (
	// Transient kinds: the call is expected to succeed on retry.
	KindRateLimited ErrorKind = iota
	KindConnection
	KindTimeout
	KindServer

	// Fatal kinds: retrying cannot help.
	KindBadRequest
	KindAuth
	KindNotFound
	KindContentPolicy
	KindMalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindServer:
		return "server"
	case KindBadRequest:
		return "bad_request"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindContentPolicy:
		return "content_policy"
	case KindMalformedResponse:
		return "malformed_response"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Transient reports whether a failure of this kind is expected to
// resolve itself on retry.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindRateLimited, KindConnection, KindTimeout, KindServer:
		return true
	}
	return false
}

// ProviderError is a failure reported by (or on the way to) a model
// backend. Lower layers never convert one provider error kind into
// another; they only wrap.
type ProviderError struct {
	Kind   ErrorKind
	Model  string
	Status int // HTTP status, 0 if the request never completed
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Model, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Model, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a provider error the retry layer
// may recover from.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind.Transient()
}

// ErrKind extracts the provider error kind, if err carries one.
func ErrKind(err error) (ErrorKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// ValidationError reports a malformed prompt or out-of-range parameter.
// It is always raised synchronously, before any network activity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ResolutionError reports a model identifier that matches no known
// backend family. It is raised at resolve time, not at call time.
type ResolutionError struct {
	Model string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("model %q does not resolve to any known backend", e.Model)
}
