/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All domain error kinds in one place. A DomainError is a recoverable,
  operator-visible condition (maps to a 4xx at the API boundary); anything
  else bubbling out of the engine is an unexpected failure.

ERROR CATEGORIES:
  1. Domain errors - missing configuration/data the operator can fix
  2. Fetch errors - external feed failures on the primary earnings path
  3. Store errors - persistence failures

USAGE:
  Callers classify with errors.Is:

    if engine.IsClientError(err) {
        respondError(w, http.StatusBadRequest, err)
    }

SEE ALSO:
  - calculator.go: Raises NoDataForPeriod / MissingDataSource
  - engine.go: Raises MissingRoleDetail / UnsupportedRole
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingDataSource is returned when the clinic has no timesheet or
	// commission sheet configured for the requested role.
	ErrMissingDataSource = errors.New("data source not configured")

	// ErrNoDataForPeriod is returned when a user has zero hours/invoices in
	// the period and no rent or revenue-sharing obligation that would justify
	// a zero-value result.
	ErrNoDataForPeriod = errors.New("no data for period")

	// ErrUnsupportedRole is returned when a role has no calculator strategy
	// (e.g. Student requested directly).
	ErrUnsupportedRole = errors.New("role not eligible for payroll generation")

	// ErrMissingRoleDetail is returned when a user has no payment role
	// configured at all.
	ErrMissingRoleDetail = errors.New("no payment role configured")

	// ErrInvalidConfiguration is returned when site settings are absent or
	// incomplete.
	ErrInvalidConfiguration = errors.New("invalid site configuration")

	// ErrFetchFailed is returned when an external feed fails on the primary
	// earnings path for the requested user.
	ErrFetchFailed = errors.New("external data fetch failed")

	// ErrResultNotFound is returned by result stores for missing records.
	ErrResultNotFound = errors.New("payroll result not found")

	// ErrUserNotFound is returned by user-facing stores for unknown users.
	ErrUserNotFound = errors.New("user not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingSourceError names the clinic and the sheet kind that is absent.
type MissingSourceError struct {
	ClinicID ClinicID
	Source   string // "timesheet", "commission", "transactions", "settlements"
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("no %s sheet configured for clinic %s", e.Source, e.ClinicID)
}

func (e *MissingSourceError) Unwrap() error { return ErrMissingDataSource }

// NoDataError names the user and period with nothing to pay.
type NoDataError struct {
	UserID UserID
	Period Period
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no payable data for user %s in %s and no rent or revenue-sharing obligation", e.UserID, e.Period)
}

func (e *NoDataError) Unwrap() error { return ErrNoDataForPeriod }

// UnsupportedRoleError names the role that has no calculator strategy.
type UnsupportedRoleError struct {
	UserID UserID
	Role   RoleType
}

func (e *UnsupportedRoleError) Error() string {
	return fmt.Sprintf("role %q for user %s is not eligible for payroll generation", e.Role, e.UserID)
}

func (e *UnsupportedRoleError) Unwrap() error { return ErrUnsupportedRole }

// ConfigurationError names the incomplete settings field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfiguration }

// FetchError wraps a feed failure with the feed name and range.
type FetchError struct {
	Feed   string
	Period Period
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s for %s: %v", e.Feed, e.Period, e.Err)
}

func (e *FetchError) Unwrap() error { return ErrFetchFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true for domain errors the operator can act on.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingDataSource) ||
		errors.Is(err, ErrNoDataForPeriod) ||
		errors.Is(err, ErrUnsupportedRole) ||
		errors.Is(err, ErrMissingRoleDetail) ||
		errors.Is(err, ErrInvalidConfiguration)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResultNotFound) || errors.Is(err, ErrUserNotFound)
}
