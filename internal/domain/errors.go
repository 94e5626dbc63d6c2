package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmptyQuery           = errors.New("query is empty")
	ErrUnknownBackend       = errors.New("unknown backend")
	ErrInvalidOptions       = errors.New("invalid research options")
	ErrRoutingAmbiguous     = errors.New("routing ambiguous")
	ErrBackendRateLimited   = errors.New("backend rate limited")
	ErrBackendBlocked       = errors.New("backend blocked the request")
	ErrBackendUnavailable   = errors.New("backend unavailable")
	ErrNoEvidenceFound      = errors.New("no evidence found")
	ErrInsufficientEvidence = errors.New("insufficient evidence")
	ErrSynthesisFailed      = errors.New("synthesis failed")
	ErrInvalidEvidence      = errors.New("invalid evidence item")
	ErrInvalidTransition    = errors.New("invalid invocation status transition")
)

type BackendErrorKind int

const (
	KindUnavailable BackendErrorKind = iota
	KindRateLimited
	KindBlocked
)

func (k BackendErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindBlocked:
		return "blocked"
	default:
		return "unavailable"
	}
}

// BackendError is the failure surface of a backend adapter. Kind drives the
// dispatcher's retry policy.
type BackendError struct {
	Backend    string
	Kind       BackendErrorKind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Backend, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrBackendRateLimited:
		return e.Kind == KindRateLimited
	case ErrBackendBlocked:
		return e.Kind == KindBlocked
	case ErrBackendUnavailable:
		return e.Kind == KindUnavailable
	}
	return false
}

func RateLimited(backend string, retryAfter time.Duration, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: KindRateLimited, StatusCode: 429, RetryAfter: retryAfter, Err: err}
}

func Blocked(backend string, status int, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: KindBlocked, StatusCode: status, Err: err}
}

func Unavailable(backend string, status int, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: KindUnavailable, StatusCode: status, Err: err}
}

// ClassifyBackendError maps any adapter error onto a BackendError. Errors that
// are not already typed are treated as the backend being unavailable.
func ClassifyBackendError(backend string, err error) *BackendError {
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}
	return Unavailable(backend, 0, err)
}

// SynthesisFailedError keeps the verified evidence and the citations that
// would have been used so callers can still present sources.
type SynthesisFailedError struct {
	Evidence  []VerifiedGroup
	Citations []Citation
	Err       error
}

func (e *SynthesisFailedError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisFailedError) Unwrap() error { return e.Err }

func (e *SynthesisFailedError) Is(target error) bool {
	return target == ErrSynthesisFailed
}

// ResearchError wraps a fatal research failure together with the decision
// trace collected up to that point.
type ResearchError struct {
	QueryID     string
	Trace       []TraceEntry
	Invocations []*ToolInvocation
	Err         error
}

func (e *ResearchError) Error() string { return e.Err.Error() }

func (e *ResearchError) Unwrap() error { return e.Err }
