/*
Package sqlite provides the SQLite-backed implementation of the engine's
storage interfaces.

PURPOSE:
  Implements every collaborator interface the payroll engine consumes:
  settings, user state, payment/rent roles, sharing rules, clinic sheet
  configuration, the four uploaded sheet feeds, and result persistence.

KEY TABLES:
  site_settings:          Single-row settings snapshot (JSON config)
  users:                  Practitioner records with normalized names
  user_states:            Year-to-date running totals
  payment_roles:          One payment role per user
  rent_roles:             Flat monthly rent deductions
  sharing_rules:          Revenue-sharing rule graph
  clinics:                Sheet sources configured per clinic
  timesheet_entries:      Uploaded per-day payable minutes
  commission_records:     Uploaded invoice rows
  processor_transactions: Uploaded card-processor rows
  gateway_settlements:    Uploaded gateway settlement rows
  payroll_results:        Computed results, one per (user, period)

IDEMPOTENCE:
  payroll_results carries a UNIQUE index on (user_id, period_start,
  period_end). UpsertResult runs inside a transaction that preserves the
  original payroll number, so recomputing a period never mints a second
  record or renumbers the first.

MONEY ENCODING:
  Monetary columns store the exact decimal string, never floats. Rounding
  happens in the engine, not in storage.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't block
  while sheet uploads or result upserts are in flight.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/stores.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Site settings (single row, JSON snapshot)
	CREATE TABLE IF NOT EXISTS site_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Practitioners
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		normalized_name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_normalized_name
		ON users(normalized_name);

	-- Year-to-date state (one row per user)
	CREATE TABLE IF NOT EXISTS user_states (
		user_id TEXT PRIMARY KEY,
		ytd_pay TEXT NOT NULL,
		ytd_deductions TEXT NOT NULL,
		pension_contributed TEXT NOT NULL,
		insurance_contributed TEXT NOT NULL
	);

	-- Payment roles (one per payroll-eligible user)
	CREATE TABLE IF NOT EXISTS payment_roles (
		user_id TEXT PRIMARY KEY,
		role_type TEXT NOT NULL,
		hourly_wage TEXT NOT NULL,
		commission_rate TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payment_roles_type
		ON payment_roles(role_type);

	-- Rent roles
	CREATE TABLE IF NOT EXISTS rent_roles (
		user_id TEXT PRIMARY KEY,
		monthly_rent TEXT NOT NULL,
		description TEXT
	);

	-- Revenue sharing rules
	CREATE TABLE IF NOT EXISTS sharing_rules (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		rate TEXT NOT NULL,
		target_kind TEXT NOT NULL,
		target_user TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sharing_rules_owner
		ON sharing_rules(owner_id);
	CREATE INDEX IF NOT EXISTS idx_sharing_rules_target
		ON sharing_rules(target_user) WHERE target_user IS NOT NULL;

	-- Clinic sheet configuration
	CREATE TABLE IF NOT EXISTS clinics (
		id TEXT PRIMARY KEY,
		timesheet_sheet TEXT,
		commission_sheet TEXT,
		transaction_sheet TEXT,
		settlement_sheet TEXT,
		processor_keyword TEXT
	);

	-- Uploaded sheet rows
	CREATE TABLE IF NOT EXISTS timesheet_entries (
		sheet_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		minutes INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_timesheet_user_date
		ON timesheet_entries(sheet_id, user_id, date);

	CREATE TABLE IF NOT EXISTS commission_records (
		sheet_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		invoice_date TEXT NOT NULL,
		invoice_number TEXT NOT NULL,
		patient_name TEXT NOT NULL,
		adjusted_total TEXT NOT NULL,
		tax TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commission_user_date
		ON commission_records(sheet_id, user_id, invoice_date);

	CREATE TABLE IF NOT EXISTS processor_transactions (
		sheet_id TEXT NOT NULL,
		date TEXT NOT NULL,
		payer TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		applied_to TEXT NOT NULL,
		amount TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_date
		ON processor_transactions(sheet_id, date);

	CREATE TABLE IF NOT EXISTS gateway_settlements (
		sheet_id TEXT NOT NULL,
		date TEXT NOT NULL,
		customer TEXT NOT NULL,
		customer_charge TEXT NOT NULL,
		fee TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settlements_date
		ON gateway_settlements(sheet_id, date);

	-- Computed payroll results
	CREATE TABLE IF NOT EXISTS payroll_results (
		payroll_number TEXT NOT NULL,
		user_id TEXT NOT NULL,
		clinic_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		role_type TEXT NOT NULL,
		result_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one result per (user, period). Revenue-sharing recursion
	-- relies on this key being unique.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_results_user_period
		ON payroll_results(user_id, period_start, period_end);
	CREATE INDEX IF NOT EXISTS idx_results_user
		ON payroll_results(user_id, period_start DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SETTINGS (engine.SettingsStore interface)
// =============================================================================

// Current returns the settings snapshot used for computations.
func (s *Store) Current(ctx context.Context) (*engine.SiteSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var configJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT config_json FROM site_settings WHERE id = 1",
	).Scan(&configJSON)

	if err == sql.ErrNoRows {
		return nil, &engine.ConfigurationError{Field: "settings", Reason: "not configured"}
	}
	if err != nil {
		return nil, err
	}

	var settings engine.SiteSettings
	if err := json.Unmarshal([]byte(configJSON), &settings); err != nil {
		return nil, &engine.ConfigurationError{Field: "settings", Reason: err.Error()}
	}
	return &settings, nil
}

// SaveSettings replaces the settings snapshot.
func (s *Store) SaveSettings(ctx context.Context, settings *engine.SiteSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO site_settings (id, config_json, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		string(configJSON), time.Now().UTC().Format(time.RFC3339))
	return err
}

// =============================================================================
// USERS
// =============================================================================

// User is a practitioner record.
type User struct {
	ID             engine.UserID
	Name           string
	Email          string
	NormalizedName string
	CreatedAt      time.Time
}

// SaveUser saves a practitioner. The normalized name is recomputed so sheet
// rows with parenthetical qualifiers still resolve to the user.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (id, name, email, normalized_name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			normalized_name = excluded.normalized_name
	`

	_, err := s.db.ExecContext(ctx, query,
		string(u.ID), u.Name, u.Email,
		engine.NormalizePractitionerName(u.Name),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetUser retrieves a practitioner by ID, or nil when none exists.
func (s *Store) GetUser(ctx context.Context, id engine.UserID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u User
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, normalized_name, created_at FROM users WHERE id = ?",
		string(id),
	).Scan(&u.ID, &u.Name, &u.Email, &u.NormalizedName, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

// ListUsers returns all practitioners ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, normalized_name, created_at FROM users ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.NormalizedName, &createdAt); err != nil {
			return nil, err
		}
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// UserIDByName resolves a sheet practitioner name to a user ID by normalized
// comparison ("Ada Li (RMT)" matches the user named "Ada Li").
func (s *Store) UserIDByName(ctx context.Context, name string) (engine.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM users WHERE normalized_name = ? LIMIT 1",
		engine.NormalizePractitionerName(name),
	).Scan(&id)

	if err == sql.ErrNoRows {
		return "", engine.ErrUserNotFound
	}
	if err != nil {
		return "", err
	}
	return engine.UserID(id), nil
}

// =============================================================================
// USER STATE (engine.UserStateStore interface)
// =============================================================================

// Get returns a user's year-to-date state.
func (s *Store) Get(ctx context.Context, userID engine.UserID) (engine.UserPayState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ytdPay, ytdDeductions, pension, insurance string
	err := s.db.QueryRowContext(ctx,
		`SELECT ytd_pay, ytd_deductions, pension_contributed, insurance_contributed
		 FROM user_states WHERE user_id = ?`,
		string(userID),
	).Scan(&ytdPay, &ytdDeductions, &pension, &insurance)

	if err == sql.ErrNoRows {
		return engine.UserPayState{}, engine.ErrUserNotFound
	}
	if err != nil {
		return engine.UserPayState{}, err
	}

	return engine.UserPayState{
		UserID:               userID,
		YTDPay:               parseMoney(ytdPay),
		YTDDeductions:        parseMoney(ytdDeductions),
		PensionContributed:   parseMoney(pension),
		InsuranceContributed: parseMoney(insurance),
	}, nil
}

// SaveState writes a user's year-to-date state directly (admin/seed path).
func (s *Store) SaveState(ctx context.Context, state engine.UserPayState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO user_states (user_id, ytd_pay, ytd_deductions, pension_contributed, insurance_contributed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			ytd_pay = excluded.ytd_pay,
			ytd_deductions = excluded.ytd_deductions,
			pension_contributed = excluded.pension_contributed,
			insurance_contributed = excluded.insurance_contributed
	`

	_, err := s.db.ExecContext(ctx, query,
		string(state.UserID),
		state.YTDPay.Value.String(),
		state.YTDDeductions.Value.String(),
		state.PensionContributed.Value.String(),
		state.InsuranceContributed.Value.String(),
	)
	return err
}

// ApplyFinalized adds the sent payroll's earnings/deductions delta and
// overwrites the contribution counters with their cap-after values. Runs in
// one transaction so a concurrent read never sees a half-applied delta.
func (s *Store) ApplyFinalized(ctx context.Context, userID engine.UserID, earningsDelta, deductionsDelta, pensionAfter, insuranceAfter engine.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ytdPay, ytdDeductions string
	err = tx.QueryRowContext(ctx,
		"SELECT ytd_pay, ytd_deductions FROM user_states WHERE user_id = ?",
		string(userID),
	).Scan(&ytdPay, &ytdDeductions)

	if err == sql.ErrNoRows {
		return engine.ErrUserNotFound
	}
	if err != nil {
		return err
	}

	newPay := parseMoney(ytdPay).Add(earningsDelta)
	newDeductions := parseMoney(ytdDeductions).Add(deductionsDelta)

	_, err = tx.ExecContext(ctx,
		`UPDATE user_states
		 SET ytd_pay = ?, ytd_deductions = ?, pension_contributed = ?, insurance_contributed = ?
		 WHERE user_id = ?`,
		newPay.Value.String(),
		newDeductions.Value.String(),
		pensionAfter.Value.String(),
		insuranceAfter.Value.String(),
		string(userID),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// =============================================================================
// ROLES (engine.RoleRegistry interface)
// =============================================================================

// DetailFor returns the user's payment role detail.
func (s *Store) DetailFor(ctx context.Context, userID engine.UserID) (engine.PaymentRoleDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roleType, wage, rate string
	err := s.db.QueryRowContext(ctx,
		"SELECT role_type, hourly_wage, commission_rate FROM payment_roles WHERE user_id = ?",
		string(userID),
	).Scan(&roleType, &wage, &rate)

	if err == sql.ErrNoRows {
		return engine.PaymentRoleDetail{}, engine.ErrMissingRoleDetail
	}
	if err != nil {
		return engine.PaymentRoleDetail{}, err
	}

	return engine.PaymentRoleDetail{
		Type:           engine.RoleType(roleType),
		HourlyWage:     parseMoney(wage),
		CommissionRate: parseDecimal(rate),
	}, nil
}

// SaveRole saves a user's payment role, replacing any previous one.
func (s *Store) SaveRole(ctx context.Context, userID engine.UserID, detail engine.PaymentRoleDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payment_roles (user_id, role_type, hourly_wage, commission_rate)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			role_type = excluded.role_type,
			hourly_wage = excluded.hourly_wage,
			commission_rate = excluded.commission_rate
	`

	_, err := s.db.ExecContext(ctx, query,
		string(userID), string(detail.Type),
		detail.HourlyWage.Value.String(),
		detail.CommissionRate.String(),
	)
	return err
}

// RentFor returns the user's rent role, or nil when the user has none.
func (s *Store) RentFor(ctx context.Context, userID engine.UserID) (*engine.RentRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rent, description string
	err := s.db.QueryRowContext(ctx,
		"SELECT monthly_rent, description FROM rent_roles WHERE user_id = ?",
		string(userID),
	).Scan(&rent, &description)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &engine.RentRole{
		UserID:      userID,
		MonthlyRent: parseMoney(rent),
		Description: description,
	}, nil
}

// SaveRent saves a user's rent role.
func (s *Store) SaveRent(ctx context.Context, rent engine.RentRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO rent_roles (user_id, monthly_rent, description)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			monthly_rent = excluded.monthly_rent,
			description = excluded.description
	`

	_, err := s.db.ExecContext(ctx, query,
		string(rent.UserID), rent.MonthlyRent.Value.String(), rent.Description)
	return err
}

// DeleteRent removes a user's rent role.
func (s *Store) DeleteRent(ctx context.Context, userID engine.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM rent_roles WHERE user_id = ?", string(userID))
	return err
}

// Students lists all users whose payment role is Student.
func (s *Store) Students(ctx context.Context) ([]engine.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM payment_roles WHERE role_type = ? ORDER BY user_id",
		string(engine.RoleStudent),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []engine.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		students = append(students, engine.UserID(id))
	}
	return students, rows.Err()
}

// =============================================================================
// SHARING RULES (engine.SharingRuleStore interface)
// =============================================================================

// RulesFor returns rules owned by the user (income flowing in).
func (s *Store) RulesFor(ctx context.Context, userID engine.UserID) ([]engine.RevenueSharingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, owner_id, rate, target_kind, target_user
		FROM sharing_rules WHERE owner_id = ? ORDER BY id
	`
	return s.queryRules(ctx, query, string(userID))
}

// RulesTargeting returns rules whose specific target is the user.
func (s *Store) RulesTargeting(ctx context.Context, userID engine.UserID) ([]engine.RevenueSharingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, owner_id, rate, target_kind, target_user
		FROM sharing_rules WHERE target_kind = ? AND target_user = ? ORDER BY id
	`
	return s.queryRules(ctx, query, string(engine.TargetSpecificUser), string(userID))
}

// ListRules returns the whole rule graph (admin view).
func (s *Store) ListRules(ctx context.Context) ([]engine.RevenueSharingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, owner_id, rate, target_kind, target_user
		FROM sharing_rules ORDER BY owner_id, id
	`
	return s.queryRules(ctx, query)
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]engine.RevenueSharingRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []engine.RevenueSharingRule
	for rows.Next() {
		var rule engine.RevenueSharingRule
		var rate string
		var targetUser sql.NullString
		if err := rows.Scan(&rule.ID, &rule.OwnerID, &rate, &rule.TargetKind, &targetUser); err != nil {
			return nil, err
		}
		rule.Rate = parseDecimal(rate)
		rule.TargetUser = engine.UserID(targetUser.String)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SaveRule saves a revenue sharing rule.
func (s *Store) SaveRule(ctx context.Context, rule engine.RevenueSharingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sharing_rules (id, owner_id, rate, target_kind, target_user)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			rate = excluded.rate,
			target_kind = excluded.target_kind,
			target_user = excluded.target_user
	`

	_, err := s.db.ExecContext(ctx, query,
		rule.ID, string(rule.OwnerID), rule.Rate.String(),
		string(rule.TargetKind), nullString(string(rule.TargetUser)),
	)
	return err
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM sharing_rules WHERE id = ?", id)
	return err
}

// =============================================================================
// CLINICS (engine.ClinicStore interface)
// =============================================================================

// SpreadsheetFor returns a clinic's configured sheet sources.
func (s *Store) SpreadsheetFor(ctx context.Context, clinicID engine.ClinicID) (engine.ClinicSpreadsheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sheets engine.ClinicSpreadsheet
	var timesheet, commission, transaction, settlement, keyword sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, timesheet_sheet, commission_sheet, transaction_sheet, settlement_sheet, processor_keyword
		 FROM clinics WHERE id = ?`,
		string(clinicID),
	).Scan(&sheets.ClinicID, &timesheet, &commission, &transaction, &settlement, &keyword)

	if err == sql.ErrNoRows {
		return engine.ClinicSpreadsheet{}, &engine.MissingSourceError{ClinicID: clinicID, Source: "clinic"}
	}
	if err != nil {
		return engine.ClinicSpreadsheet{}, err
	}

	sheets.TimesheetSheet = engine.SheetID(timesheet.String)
	sheets.CommissionSheet = engine.SheetID(commission.String)
	sheets.TransactionSheet = engine.SheetID(transaction.String)
	sheets.SettlementSheet = engine.SheetID(settlement.String)
	sheets.ProcessorKeyword = keyword.String
	return sheets, nil
}

// SaveClinic saves a clinic's sheet configuration.
func (s *Store) SaveClinic(ctx context.Context, sheets engine.ClinicSpreadsheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO clinics (id, timesheet_sheet, commission_sheet, transaction_sheet, settlement_sheet, processor_keyword)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timesheet_sheet = excluded.timesheet_sheet,
			commission_sheet = excluded.commission_sheet,
			transaction_sheet = excluded.transaction_sheet,
			settlement_sheet = excluded.settlement_sheet,
			processor_keyword = excluded.processor_keyword
	`

	_, err := s.db.ExecContext(ctx, query,
		string(sheets.ClinicID),
		string(sheets.TimesheetSheet),
		string(sheets.CommissionSheet),
		string(sheets.TransactionSheet),
		string(sheets.SettlementSheet),
		sheets.ProcessorKeyword,
	)
	return err
}

// ListClinics returns all configured clinics.
func (s *Store) ListClinics(ctx context.Context) ([]engine.ClinicSpreadsheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timesheet_sheet, commission_sheet, transaction_sheet, settlement_sheet, processor_keyword
		 FROM clinics ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clinics []engine.ClinicSpreadsheet
	for rows.Next() {
		var sheets engine.ClinicSpreadsheet
		var timesheet, commission, transaction, settlement, keyword sql.NullString
		if err := rows.Scan(&sheets.ClinicID, &timesheet, &commission, &transaction, &settlement, &keyword); err != nil {
			return nil, err
		}
		sheets.TimesheetSheet = engine.SheetID(timesheet.String)
		sheets.CommissionSheet = engine.SheetID(commission.String)
		sheets.TransactionSheet = engine.SheetID(transaction.String)
		sheets.SettlementSheet = engine.SheetID(settlement.String)
		sheets.ProcessorKeyword = keyword.String
		clinics = append(clinics, sheets)
	}
	return clinics, rows.Err()
}

// =============================================================================
// SHEET FEEDS (engine.TimesheetSource / CommissionSource / feeds)
// =============================================================================

// HoursByDateRange returns per-day payable minutes in [start, end].
func (s *Store) HoursByDateRange(ctx context.Context, sheetID engine.SheetID, userID engine.UserID, start, end engine.Date) (map[engine.Date]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT date, SUM(minutes) FROM timesheet_entries
		 WHERE sheet_id = ? AND user_id = ? AND date >= ? AND date <= ?
		 GROUP BY date`,
		string(sheetID), string(userID), start.String(), end.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDailyMinutes(rows)
}

// HoursForDates returns minutes for specific dates only (look-back fetch).
func (s *Store) HoursForDates(ctx context.Context, sheetID engine.SheetID, userID engine.UserID, dates []engine.Date) (map[engine.Date]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(dates) == 0 {
		return map[engine.Date]int{}, nil
	}

	query := `SELECT date, SUM(minutes) FROM timesheet_entries
		 WHERE sheet_id = ? AND user_id = ? AND date IN (`
	args := []any{string(sheetID), string(userID)}
	for i, d := range dates {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, d.String())
	}
	query += ") GROUP BY date"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDailyMinutes(rows)
}

func scanDailyMinutes(rows *sql.Rows) (map[engine.Date]int, error) {
	minutes := make(map[engine.Date]int)
	for rows.Next() {
		var dateStr string
		var mins int
		if err := rows.Scan(&dateStr, &mins); err != nil {
			return nil, err
		}
		date, err := engine.ParseDate(dateStr)
		if err != nil {
			return nil, err
		}
		minutes[date] = mins
	}
	return minutes, rows.Err()
}

// InvoicesByDateRange returns a user's invoice rows in [start, end].
func (s *Store) InvoicesByDateRange(ctx context.Context, sheetID engine.SheetID, userID engine.UserID, start, end engine.Date) ([]engine.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, invoice_date, invoice_number, patient_name, adjusted_total, tax
		 FROM commission_records
		 WHERE sheet_id = ? AND user_id = ? AND invoice_date >= ? AND invoice_date <= ?
		 ORDER BY invoice_date`,
		string(sheetID), string(userID), start.String(), end.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []engine.CommissionRecord
	for rows.Next() {
		var rec engine.CommissionRecord
		var dateStr, adjusted, tax string
		if err := rows.Scan(&rec.UserID, &dateStr, &rec.InvoiceNumber, &rec.PatientName, &adjusted, &tax); err != nil {
			return nil, err
		}
		if rec.InvoiceDate, err = engine.ParseDate(dateStr); err != nil {
			return nil, err
		}
		rec.AdjustedTotal = parseMoney(adjusted)
		rec.Tax = parseMoney(tax)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TransactionsByDateRange returns processor rows in [start, end].
func (s *Store) TransactionsByDateRange(ctx context.Context, sheetID engine.SheetID, start, end engine.Date) ([]engine.ProcessorTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT date, payer, payment_method, applied_to, amount
		 FROM processor_transactions
		 WHERE sheet_id = ? AND date >= ? AND date <= ?
		 ORDER BY date`,
		string(sheetID), start.String(), end.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []engine.ProcessorTransaction
	for rows.Next() {
		var tx engine.ProcessorTransaction
		var dateStr, amount string
		if err := rows.Scan(&dateStr, &tx.Payer, &tx.PaymentMethod, &tx.AppliedTo, &amount); err != nil {
			return nil, err
		}
		if tx.Date, err = engine.ParseDate(dateStr); err != nil {
			return nil, err
		}
		tx.Amount = parseMoney(amount)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// SettlementsByDateRange returns gateway settlement rows in [start, end].
func (s *Store) SettlementsByDateRange(ctx context.Context, sheetID engine.SheetID, start, end engine.Date) ([]engine.GatewaySettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT date, customer, customer_charge, fee
		 FROM gateway_settlements
		 WHERE sheet_id = ? AND date >= ? AND date <= ?
		 ORDER BY date`,
		string(sheetID), start.String(), end.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settlements []engine.GatewaySettlement
	for rows.Next() {
		var row engine.GatewaySettlement
		var dateStr, charge, fee string
		if err := rows.Scan(&dateStr, &row.Customer, &charge, &fee); err != nil {
			return nil, err
		}
		if row.Date, err = engine.ParseDate(dateStr); err != nil {
			return nil, err
		}
		row.CustomerCharge = parseMoney(charge)
		row.Fee = parseMoney(fee)
		settlements = append(settlements, row)
	}
	return settlements, rows.Err()
}

// =============================================================================
// SHEET UPLOADS - Each upload replaces the sheet's rows atomically
// =============================================================================

// ReplaceTimesheet swaps a timesheet sheet's rows for a new upload.
func (s *Store) ReplaceTimesheet(ctx context.Context, sheetID engine.SheetID, entries []engine.TimesheetEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaceRows(ctx, "timesheet_entries", sheetID, func(tx *sql.Tx) error {
		for _, e := range entries {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO timesheet_entries (sheet_id, user_id, date, minutes) VALUES (?, ?, ?, ?)",
				string(sheetID), string(e.UserID), e.Date.String(), e.Minutes)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceCommissions swaps a commission sheet's rows for a new upload.
func (s *Store) ReplaceCommissions(ctx context.Context, sheetID engine.SheetID, records []engine.CommissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaceRows(ctx, "commission_records", sheetID, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO commission_records
				 (sheet_id, user_id, invoice_date, invoice_number, patient_name, adjusted_total, tax)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				string(sheetID), string(r.UserID), r.InvoiceDate.String(),
				r.InvoiceNumber, r.PatientName,
				r.AdjustedTotal.Value.String(), r.Tax.Value.String())
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceTransactions swaps a processor sheet's rows for a new upload.
func (s *Store) ReplaceTransactions(ctx context.Context, sheetID engine.SheetID, rows []engine.ProcessorTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaceRows(ctx, "processor_transactions", sheetID, func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO processor_transactions
				 (sheet_id, date, payer, payment_method, applied_to, amount)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				string(sheetID), r.Date.String(), r.Payer, r.PaymentMethod,
				r.AppliedTo, r.Amount.Value.String())
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceSettlements swaps a settlement sheet's rows for a new upload.
func (s *Store) ReplaceSettlements(ctx context.Context, sheetID engine.SheetID, rows []engine.GatewaySettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaceRows(ctx, "gateway_settlements", sheetID, func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO gateway_settlements (sheet_id, date, customer, customer_charge, fee)
				 VALUES (?, ?, ?, ?, ?)`,
				string(sheetID), r.Date.String(), r.Customer,
				r.CustomerCharge.Value.String(), r.Fee.Value.String())
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// replaceRows deletes a sheet's rows and inserts the replacement set in one
// transaction. Callers hold the write lock.
func (s *Store) replaceRows(ctx context.Context, table string, sheetID engine.SheetID, insert func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE sheet_id = ?", string(sheetID)); err != nil {
		return err
	}
	if err := insert(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// RESULTS (engine.ResultStore interface)
// =============================================================================

// GetOrNil returns the result for (user, period), or nil when none exists.
func (s *Store) GetOrNil(ctx context.Context, userID engine.UserID, period engine.Period) (*engine.PayrollResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resultJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT result_json FROM payroll_results
		 WHERE user_id = ? AND period_start = ? AND period_end = ?`,
		string(userID), period.Start.String(), period.End.String(),
	).Scan(&resultJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return unmarshalResult(resultJSON)
}

// Upsert atomically creates or replaces the result for its (user, period)
// key. An existing payroll number is preserved across recomputations.
func (s *Store) Upsert(ctx context.Context, result *engine.PayrollResult) (*engine.PayrollResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingNumber string
	err = tx.QueryRowContext(ctx,
		`SELECT payroll_number FROM payroll_results
		 WHERE user_id = ? AND period_start = ? AND period_end = ?`,
		string(result.UserID), result.Period.Start.String(), result.Period.End.String(),
	).Scan(&existingNumber)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if existingNumber != "" {
		result.PayrollNumber = existingNumber
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO payroll_results
		(payroll_number, user_id, clinic_id, period_start, period_end, role_type, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, period_start, period_end) DO UPDATE SET
			payroll_number = excluded.payroll_number,
			clinic_id = excluded.clinic_id,
			role_type = excluded.role_type,
			result_json = excluded.result_json
	`

	_, err = tx.ExecContext(ctx, query,
		result.PayrollNumber,
		string(result.UserID),
		string(result.ClinicID),
		result.Period.Start.String(),
		result.Period.End.String(),
		string(result.RoleType),
		string(resultJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	stored := *result
	return &stored, nil
}

// ListByUser returns all stored results for a user, newest period first.
func (s *Store) ListByUser(ctx context.Context, userID engine.UserID) ([]*engine.PayrollResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT result_json FROM payroll_results
		 WHERE user_id = ? ORDER BY period_start DESC`,
		string(userID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*engine.PayrollResult
	for rows.Next() {
		var resultJSON string
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, err
		}
		result, err := unmarshalResult(resultJSON)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func unmarshalResult(resultJSON string) (*engine.PayrollResult, error) {
	var result engine.PayrollResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return &result, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"payroll_results", "timesheet_entries", "commission_records",
		"processor_transactions", "gateway_settlements",
		"sharing_rules", "rent_roles", "payment_roles",
		"user_states", "users", "clinics", "site_settings",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseMoney(value string) engine.Money {
	return engine.MustParseMoney(value)
}

func parseDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}
