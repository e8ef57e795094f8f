/*
stores.go - Collaborator interfaces consumed by the engine

PURPOSE:
  Defines every external collaborator the computation touches. The engine
  owns none of this data: settings, user state, roles, sharing rules and the
  four sheet-shaped feeds are read through these interfaces, and results are
  written through ResultStore.

SUSPENSION POINTS:
  These calls are the ONLY suspension points in a computation. Feeds are
  fetched once per date range (never per row or per invoice), and
  partial-week look-back fetches are scoped to only the missing dates.

IDEMPOTENCE CONTRACT:
  ResultStore.Upsert MUST be atomic on (user, period start, period end).
  The resolver also memoizes results per request, but the store-level upsert
  is what keeps concurrent requests from creating two records for the same
  key.

IMPLEMENTATIONS:
  - store/sqlite: production persistence and uploaded sheet feeds
  - engine/store: in-memory, for tests and dev mode

SEE ALSO:
  - engine.go: Wires collaborators into the Engine
  - sharing.go: Uses ResultStore memoization during recursion
*/
package engine

import "context"

// =============================================================================
// CONFIGURATION AND USER STATE
// =============================================================================

// SettingsStore supplies the immutable settings snapshot for a computation.
type SettingsStore interface {
	Current(ctx context.Context) (*SiteSettings, error)
}

// UserStateStore reads year-to-date state and applies the finalized delta.
// ApplyFinalized is called by the external caller exactly once per sent
// payroll; the engine itself never calls it.
type UserStateStore interface {
	Get(ctx context.Context, userID UserID) (UserPayState, error)

	// ApplyFinalized adds the earnings/deductions delta and overwrites the
	// contribution counters with their cap-after values.
	ApplyFinalized(ctx context.Context, userID UserID, earningsDelta, deductionsDelta, pensionAfter, insuranceAfter Money) error
}

// =============================================================================
// ROLES AND SHARING RULES
// =============================================================================

// RoleRegistry resolves payment roles and role-adjacent configuration.
type RoleRegistry interface {
	// DetailFor returns the user's payment role detail, or
	// ErrMissingRoleDetail if none is configured.
	DetailFor(ctx context.Context, userID UserID) (PaymentRoleDetail, error)

	// RentFor returns the user's rent role, or nil when the user has none.
	RentFor(ctx context.Context, userID UserID) (*RentRole, error)

	// Students lists all users whose payment role is Student.
	Students(ctx context.Context) ([]UserID, error)
}

// SharingRuleStore resolves the revenue-sharing rule graph.
type SharingRuleStore interface {
	// RulesFor returns rules owned by the user (income flowing IN).
	RulesFor(ctx context.Context, userID UserID) ([]RevenueSharingRule, error)

	// RulesTargeting returns rules whose specific target is the user
	// (deductions flowing OUT).
	RulesTargeting(ctx context.Context, userID UserID) ([]RevenueSharingRule, error)
}

// =============================================================================
// CLINIC SHEET CONFIGURATION
// =============================================================================

// ClinicStore maps a clinic to its configured sheet sources.
type ClinicStore interface {
	SpreadsheetFor(ctx context.Context, clinicID ClinicID) (ClinicSpreadsheet, error)
}

// =============================================================================
// SHEET-SHAPED DATA FEEDS
// =============================================================================

// TimesheetSource returns per-day payable minutes for a user.
type TimesheetSource interface {
	// HoursByDateRange returns minutes per date in [start, end]. Dates with
	// no entries are absent from the map.
	HoursByDateRange(ctx context.Context, sheetID SheetID, userID UserID, start, end Date) (map[Date]int, error)

	// HoursForDates returns minutes for specific dates only. Used for the
	// partial-start-week look-back fetch.
	HoursForDates(ctx context.Context, sheetID SheetID, userID UserID, dates []Date) (map[Date]int, error)
}

// CommissionSource returns invoice rows for a user.
type CommissionSource interface {
	InvoicesByDateRange(ctx context.Context, sheetID SheetID, userID UserID, start, end Date) ([]CommissionRecord, error)
}

// TransactionFeed returns card-processor transaction rows.
type TransactionFeed interface {
	TransactionsByDateRange(ctx context.Context, sheetID SheetID, start, end Date) ([]ProcessorTransaction, error)
}

// SettlementFeed returns payment-gateway settlement rows.
type SettlementFeed interface {
	SettlementsByDateRange(ctx context.Context, sheetID SheetID, start, end Date) ([]GatewaySettlement, error)
}

// =============================================================================
// RESULT PERSISTENCE
// =============================================================================

// ResultStore persists payroll results keyed by (user, period).
type ResultStore interface {
	// GetOrNil returns the result for the key, or nil when none exists.
	GetOrNil(ctx context.Context, userID UserID, period Period) (*PayrollResult, error)

	// Upsert atomically creates or replaces the result for its key and
	// returns the stored value. Atomicity on the key is a correctness
	// requirement for revenue-sharing idempotence, not an optimization.
	Upsert(ctx context.Context, result *PayrollResult) (*PayrollResult, error)

	// ListByUser returns all stored results for a user, newest period first.
	ListByUser(ctx context.Context, userID UserID) ([]*PayrollResult, error)
}

// =============================================================================
// NOTIFICATION - Delivery is external; the engine only hands off
// =============================================================================

// Notifier delivers a finalized payroll to the practitioner. Implementations
// handle transport (email, etc.); failures must not undo the YTD application.
type Notifier interface {
	PayrollSent(ctx context.Context, userID UserID, result *PayrollResult) error
}
