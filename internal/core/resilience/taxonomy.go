package resilience

import (
	"errors"
	"fmt"
)

// Category classifies a failure along the lines the serving core uses to
// decide propagation: retry locally, degrade a response, or stop.
type Category string

const (
	// CategoryTransientTransport covers RPC/connection loss — retriable
	// with back-off.
	CategoryTransientTransport Category = "transient-transport"

	// CategoryRemoteSemantic covers a server-side descriptive error.
	// Treated as transient unless it originates from config validation,
	// in which case it is surfaced to the operator.
	CategoryRemoteSemantic Category = "remote-semantic"

	// CategoryConfigurationInvalid is a hard stop for the affected
	// configuration generation; the previous generation is retained.
	CategoryConfigurationInvalid Category = "configuration-invalid"

	// CategoryDataCorruption is fatal at node scope (transaction log or
	// on-disk config corruption).
	CategoryDataCorruption Category = "data-corruption"

	// CategoryResourceExhausted covers disk/memory exhaustion: feed
	// writes are blocked with a structured reason, reads continue.
	CategoryResourceExhausted Category = "resource-exhausted"

	// CategoryLogicError is an invariant violation: always fatal, always
	// logged with a stack trace by the caller.
	CategoryLogicError Category = "logic-error"
)

// ClassifiedError wraps an underlying error with its taxonomy category
// so that callers at the executor boundary can decide whether to
// retry, degrade, or terminate without string-matching error
// messages.
type ClassifiedError struct {
	Category Category
	Err      error

	// Serial is the document DB serial number the failure pertains to,
	// when applicable (data corruption, resource exhaustion).
	Serial uint64

	// Path is the file path the failure pertains to, when applicable
	// (transaction log segment, config generation directory).
	Path string
}

func (e *ClassifiedError) Error() string {
	switch {
	case e.Path != "" && e.Serial != 0:
		return fmt.Sprintf("%s: %v (serial=%d path=%s)", e.Category, e.Err, e.Serial, e.Path)
	case e.Path != "":
		return fmt.Sprintf("%s: %v (path=%s)", e.Category, e.Err, e.Path)
	case e.Serial != 0:
		return fmt.Sprintf("%s: %v (serial=%d)", e.Category, e.Err, e.Serial)
	default:
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// NewTransientTransportError wraps err as a retriable transport failure.
func NewTransientTransportError(err error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryTransientTransport, Err: err}
}

// NewRemoteSemanticError wraps err as a server-reported semantic failure.
func NewRemoteSemanticError(err error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryRemoteSemantic, Err: err}
}

// NewConfigurationInvalidError wraps err as a hard stop for one
// configuration generation.
func NewConfigurationInvalidError(err error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryConfigurationInvalid, Err: err}
}

// NewDataCorruptionError wraps err as a node-fatal corruption, recording
// the serial number and file path for diagnosis.
func NewDataCorruptionError(err error, serial uint64, path string) *ClassifiedError {
	return &ClassifiedError{Category: CategoryDataCorruption, Err: err, Serial: serial, Path: path}
}

// NewResourceExhaustedError wraps err as a write-blocking resource
// exhaustion (disk or memory over threshold).
func NewResourceExhaustedError(err error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryResourceExhausted, Err: err}
}

// NewLogicError wraps err as an invariant violation. Callers at the
// executor boundary must treat this as fatal.
func NewLogicError(err error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryLogicError, Err: err}
}

// CategoryOf extracts the taxonomy Category of err, walking the
// unwrap chain. Returns ("", false) for an unclassified error.
func CategoryOf(err error) (Category, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Category, true
	}
	return "", false
}

// IsFatal reports whether err's category is one that must terminate the
// owning process (data corruption or a logic-programming invariant
// violation) rather than degrade or retry.
func IsFatal(err error) bool {
	cat, ok := CategoryOf(err)
	if !ok {
		return false
	}
	return cat == CategoryDataCorruption || cat == CategoryLogicError
}

// IsRetryableCategory reports whether err's category is one the
// DefaultErrorChecker should retry: transient transport failures and
// non-configuration remote-semantic errors.
func IsRetryableCategory(err error) (retryable bool, classified bool) {
	cat, ok := CategoryOf(err)
	if !ok {
		return false, false
	}
	switch cat {
	case CategoryTransientTransport, CategoryRemoteSemantic:
		return true, true
	default:
		return false, true
	}
}
