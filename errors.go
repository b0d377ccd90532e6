package ragonometrics

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("ragonometrics: no store configured")
	ErrStoreClosed     = errors.New("ragonometrics: store closed")
	ErrMigrationFailed = errors.New("ragonometrics: migration failed")

	// Not found errors.
	ErrRunNotFound          = errors.New("ragonometrics: run not found")
	ErrStageNotFound        = errors.New("ragonometrics: stage record not found")
	ErrJobNotFound          = errors.New("ragonometrics: job not found")
	ErrDLQNotFound          = errors.New("ragonometrics: dlq entry not found")
	ErrIndexVersionNotFound = errors.New("ragonometrics: index version not found")
	ErrCacheMiss            = errors.New("ragonometrics: cache miss")

	// Conflict errors.
	ErrRunAlreadyExists   = errors.New("ragonometrics: run already exists")
	ErrJobAlreadyExists   = errors.New("ragonometrics: job already exists")
	ErrStageAlreadyExists = errors.New("ragonometrics: stage record already exists")
	ErrCacheExists        = errors.New("ragonometrics: cache entry already exists")

	// State errors.
	ErrInvalidState        = errors.New("ragonometrics: invalid state transition")
	ErrJobNotClaimable     = errors.New("ragonometrics: no claimable job")
	ErrMaxAttemptsExceeded = errors.New("ragonometrics: max attempts exceeded")
)

// Code is a stable machine-readable error classification. Codes — not raw
// error text — are what crosses the core boundary to callers.
type Code string

const (
	// CodeValidation marks bad input. Fatal, never retried.
	CodeValidation Code = "validation"
	// CodeTransient marks network or rate-limit failures. Retried with
	// bounded exponential backoff at the call site.
	CodeTransient Code = "transient"
	// CodeUnavailable marks an unreachable dependency. The dependent stage
	// is skipped rather than failing the run.
	CodeUnavailable Code = "dependency_unavailable"
	// CodeIndexMismatch marks disagreement between a vector artifact and
	// its recorded index version. Blocks retrieval unless overridden.
	CodeIndexMismatch Code = "index_mismatch"
	// CodeFatalStage marks a required stage that failed after exhausting
	// its retry budget. Fails the run.
	CodeFatalStage Code = "fatal_stage"
	// CodeInternal is the fallback classification for unclassified errors.
	CodeInternal Code = "internal"
)

// Error is a classified error carrying a stable code and human-readable
// message. Wrapped causes stay inspectable via errors.Is/As.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// E builds a classified error wrapping cause (cause may be nil).
func E(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the classification of err, or CodeInternal if err carries
// no *Error in its chain. A nil err has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool { return CodeOf(err) == CodeTransient }

// IsUnavailable reports whether err marks an unreachable dependency.
func IsUnavailable(err error) bool { return CodeOf(err) == CodeUnavailable }

// IsIndexMismatch reports whether err is an index/metadata mismatch.
func IsIndexMismatch(err error) bool { return CodeOf(err) == CodeIndexMismatch }
