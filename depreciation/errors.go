/*
errors.go - Error taxonomy of the depreciation engine

ERROR CATEGORIES:
  1. Validation - bad input that blocks the triggering save/submit
  2. Configuration - accounts or settings that cannot be resolved at posting time
  3. Reference - postings pointing at the wrong asset or schedule
  4. State - illegal lifecycle transitions, duplicate postings, missing records

Callers classify with errors.Is against the sentinels below; structured
errors carry detail and unwrap to their sentinel.
*/
package depreciation

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTemplateConfiguration is returned when a template cannot
	// produce a schedule for the given values (e.g. declining balance with
	// gross amount not above salvage value).
	ErrInvalidTemplateConfiguration = errors.New("invalid template configuration")

	// ErrMissingConfiguration is returned when depreciation accounts or
	// other company settings cannot be resolved. Aborts posting for one
	// schedule only.
	ErrMissingConfiguration = errors.New("missing configuration")

	ErrInvalidReference = errors.New("invalid reference")

	ErrPermissionDenied = errors.New("permission denied")

	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for schedule or asset state changes
	// the lifecycle does not allow (e.g. activating a cancelled schedule).
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrDuplicatePosting is returned when a posting with the same
	// idempotency key already exists.
	ErrDuplicatePosting = errors.New("duplicate posting")

	// ErrActiveScheduleExists enforces one Active schedule per
	// (parent, finance book).
	ErrActiveScheduleExists = errors.New("active schedule already exists")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func newValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TemplateError wraps ErrInvalidTemplateConfiguration with the template name.
type TemplateError struct {
	Template string
	Reason   string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
}

func (e *TemplateError) Unwrap() error { return ErrInvalidTemplateConfiguration }

// MissingConfigurationError lists what could not be resolved.
type MissingConfigurationError struct {
	What     string
	Category string
	Company  string
}

func (e *MissingConfigurationError) Error() string {
	if e.Category == "" {
		return fmt.Sprintf("set %s in company %s", e.What, e.Company)
	}
	return fmt.Sprintf("set %s in asset category %s or company %s", e.What, e.Category, e.Company)
}

func (e *MissingConfigurationError) Unwrap() error { return ErrMissingConfiguration }

// ReferenceError describes a posting whose links do not match.
type ReferenceError struct {
	Message string
}

func (e *ReferenceError) Error() string { return e.Message }
func (e *ReferenceError) Unwrap() error { return ErrInvalidReference }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTemplateConfiguration) ||
		errors.Is(err, ErrInvalidReference)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for state conflicts the caller may resolve by
// reloading.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicatePosting) ||
		errors.Is(err, ErrActiveScheduleExists)
}

func IsMissingConfiguration(err error) bool {
	return errors.Is(err, ErrMissingConfiguration)
}
