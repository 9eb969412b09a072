package pool

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed user or project identifier. It is
// raised before any I/O and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// QuotaScope identifies which cap rejected a request.
type QuotaScope string

const (
	// QuotaUser is the per-user sandbox cap.
	QuotaUser QuotaScope = "user"
	// QuotaGlobal is the process-wide sandbox cap.
	QuotaGlobal QuotaScope = "global"
)

// QuotaError reports that provisioning would exceed a sandbox cap. The
// provider is never contacted; the caller must wait or release a sandbox.
type QuotaError struct {
	Scope QuotaScope
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s sandbox quota reached (limit %d)", e.Scope, e.Limit)
}

// ProviderError reports that the sandbox provider could not serve the
// operation after retries were exhausted.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("sandbox provider unavailable during %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsQuotaExceeded reports whether err is a QuotaError.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// IsProviderUnavailable reports whether err is a ProviderError.
func IsProviderUnavailable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
