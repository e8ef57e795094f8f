/*
Package engine provides the core payroll computation engine.

PURPOSE:
  This package contains the types and algorithms for computing a fully
  itemized payroll result for one practitioner and one pay period: earnings
  (hourly with overtime/vacation, or commission with POS-fee reconciliation),
  statutory deductions (progressive tax, capped pension and insurance
  contributions), month-end rent, and cross-user revenue sharing.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A monetary quantity backed by decimal.Decimal (never float64)
  - Hours: Worked time, also decimal to keep minute fractions exact
  - PaymentRoleDetail: Closed variant selecting the calculator strategy
  - PayrollResult: The complete, auditable output of one computation

DESIGN PRINCIPLES:
  1. Purity: computation is a function of (role, settings, fetched data, YTD
     state); year-to-date state is never mutated during computation
  2. Precision: decimal arithmetic with cent rounding at fixed points
  3. Auditability: every result carries its full earnings/deduction breakdown
  4. Idempotence: results are keyed by (user, period); recomputation never
     double-creates

SEE ALSO:
  - settings.go: Tax brackets, rates and caps
  - calculator.go: Role calculator strategies
  - sharing.go: Rent and revenue-sharing resolution
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Monetary quantity with cent-level rounding discipline
// =============================================================================

// Money wraps decimal.Decimal so monetary arithmetic reads naturally and
// rounding is always explicit. Rounding uses round-half-up (decimal.Round
// rounds half away from zero, which is half-up for the non-negative
// quantities handled here).
type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money          { return Money{Value: decimal.NewFromFloat(value)} }
func NewMoneyFromInt(value int) Money       { return Money{Value: decimal.NewFromInt(int64(value))} }
func MoneyFromDecimal(d decimal.Decimal) Money { return Money{Value: d} }

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

var ZeroMoney = Money{Value: decimal.Zero}

func (m Money) Add(b Money) Money             { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money             { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Mul(s decimal.Decimal) Money   { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money   { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                    { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool                  { return m.Value.IsZero() }
func (m Money) IsNegative() bool              { return m.Value.IsNegative() }
func (m Money) IsPositive() bool              { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool      { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool         { return m.Value.LessThan(b.Value) }
func (m Money) Min(b Money) Money             { if m.LessThan(b) { return m }; return b }
func (m Money) Max(b Money) Money             { if m.GreaterThan(b) { return m }; return b }
func (m Money) Equal(b Money) bool            { return m.Value.Equal(b.Value) }
func (m Money) Float64() float64              { f, _ := m.Value.Float64(); return f }
func (m Money) String() string                { return m.Value.StringFixed(2) }

// Cents rounds to the cent, half-up. This is the ONLY rounding used by the
// engine, and it is applied at each proration step, not just final totals:
// reproducing identical totals on every run is part of the contract.
func (m Money) Cents() Money { return Money{Value: m.Value.Round(2)} }

// FloorZero clamps negative amounts to zero (exemptions, cap room).
func (m Money) FloorZero() Money {
	if m.IsNegative() {
		return ZeroMoney
	}
	return m
}

// =============================================================================
// HOURS - Worked time quantity
// =============================================================================

type Hours struct {
	Value decimal.Decimal
}

func NewHours(value float64) Hours { return Hours{Value: decimal.NewFromFloat(value)} }

// HoursFromMinutes converts timesheet minutes to hours exactly.
func HoursFromMinutes(minutes int) Hours {
	return Hours{Value: decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60))}
}

var ZeroHours = Hours{Value: decimal.Zero}

func (h Hours) Add(b Hours) Hours        { return Hours{Value: h.Value.Add(b.Value)} }
func (h Hours) Sub(b Hours) Hours        { return Hours{Value: h.Value.Sub(b.Value)} }
func (h Hours) IsZero() bool             { return h.Value.IsZero() }
func (h Hours) IsNegative() bool         { return h.Value.IsNegative() }
func (h Hours) GreaterThan(b Hours) bool { return h.Value.GreaterThan(b.Value) }
func (h Hours) Min(b Hours) Hours        { if h.Value.LessThan(b.Value) { return h }; return b }
func (h Hours) Float64() float64         { f, _ := h.Value.Float64(); return f }

// PayAt converts hours to money at an hourly wage.
func (h Hours) PayAt(wage Money) Money { return Money{Value: h.Value.Mul(wage.Value)} }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type ClinicID string
type SheetID string

// =============================================================================
// PAYMENT ROLE - Closed variant selecting the calculator strategy
// =============================================================================

type RoleType string

const (
	RoleHourlyEmployee       RoleType = "hourly_employee"
	RoleHourlyContractor     RoleType = "hourly_contractor"
	RoleCommissionEmployee   RoleType = "commission_employee"
	RoleCommissionContractor RoleType = "commission_contractor"

	// RoleStudent is ineligible for direct payroll generation but
	// participates in all-students revenue-sharing aggregation.
	RoleStudent RoleType = "student"
)

// PaymentRoleDetail is the per-user payment configuration. Exactly one exists
// per payroll-eligible user; HourlyWage applies to hourly roles and
// CommissionRate (a fraction, 0.70 = 70%) to commission roles.
type PaymentRoleDetail struct {
	Type           RoleType
	HourlyWage     Money
	CommissionRate decimal.Decimal
}

// IsEmployee reports whether the role receives statutory withholding.
func (d PaymentRoleDetail) IsEmployee() bool {
	return d.Type == RoleHourlyEmployee || d.Type == RoleCommissionEmployee
}

// IsCommission reports whether earnings come from invoiced revenue.
func (d PaymentRoleDetail) IsCommission() bool {
	return d.Type == RoleCommissionEmployee || d.Type == RoleCommissionContractor || d.Type == RoleStudent
}

// =============================================================================
// ADDITIONAL ROLES - Rent and revenue sharing
// =============================================================================

// RentRole deducts a flat monthly amount whenever the pay period contains a
// calendar month-end. Never prorated.
type RentRole struct {
	UserID      UserID
	MonthlyRent Money
	Description string
}

type SharingTarget string

const (
	TargetSpecificUser SharingTarget = "specific_user"
	TargetAllStudents  SharingTarget = "all_students"
)

// RevenueSharingRule moves Rate × gross income from the target's pay to the
// owning user's pay. TargetUser is set only for TargetSpecificUser.
type RevenueSharingRule struct {
	ID         string
	OwnerID    UserID
	Rate       decimal.Decimal // fraction in [0, 1]
	TargetKind SharingTarget
	TargetUser UserID
}

// =============================================================================
// SOURCE ROWS - Sheet-shaped external data
// =============================================================================

// TimesheetEntry is one day of payable time for a user.
type TimesheetEntry struct {
	UserID  UserID
	Date    Date
	Minutes int
}

// CommissionRecord is one invoice row from the compensation sheet. Invoice
// numbers are stored with any suffix already stripped ("18269-C01" → "18269").
type CommissionRecord struct {
	UserID        UserID
	InvoiceDate   Date
	InvoiceNumber string
	PatientName   string
	AdjustedTotal Money
	Tax           Money
}

// ProcessorTransaction is one card-processor row.
type ProcessorTransaction struct {
	Date          Date
	Payer         string
	PaymentMethod string
	AppliedTo     string
	Amount        Money
}

// GatewaySettlement is one payment-gateway settlement row carrying the fee.
type GatewaySettlement struct {
	Date           Date
	Customer       string
	CustomerCharge Money
	Fee            Money
}

// ClinicSpreadsheet names the sheet-shaped sources configured for a clinic.
// An empty SheetID means the source is not configured.
type ClinicSpreadsheet struct {
	ClinicID           ClinicID
	TimesheetSheet     SheetID
	CommissionSheet    SheetID
	TransactionSheet   SheetID
	SettlementSheet    SheetID
	ProcessorKeyword   string // payment-method substring identifying the processor
}

// =============================================================================
// USER STATE - Year-to-date figures, read-only during computation
// =============================================================================

// UserPayState carries year-to-date running totals. The engine reads it at
// computation start and reports deltas; the external caller applies the delta
// exactly once after a result is accepted.
type UserPayState struct {
	UserID             UserID
	YTDPay             Money
	YTDDeductions      Money
	PensionContributed Money
	InsuranceContributed Money
}

// =============================================================================
// PAYROLL RESULT - Complete computation output
// =============================================================================

type Earnings struct {
	RegularPay         Money
	OvertimePay        Money
	VacationPay        Money
	AdjustedTotal      Money
	TaxCollected       Money // GST/sales tax collected on invoices
	CommissionEarned   Money
	GrossIncome        Money
	POSFees            Money
	RevenueShareIncome Money
}

type Deductions struct {
	FederalTax            Money
	ProvincialTax         Money
	Pension               Money
	Insurance             Money
	CommissionDeduction   Money // clinic share of gross revenue
	POSFees               Money
	Rent                  Money
	RentDescription       string
	RevenueShareDeduction Money
}

type Totals struct {
	TotalEarnings   Money
	TotalDeductions Money
	NetPayment      Money
}

// YTDProjection is the delta-applied view of the user's year-to-date state.
// The caller persists these once the payroll is sent.
type YTDProjection struct {
	ProjectedEarnings   Money
	ProjectedDeductions Money
	PensionCapAfter     Money
	InsuranceCapAfter   Money
}

type HoursBreakdown struct {
	TotalHours    Hours
	RegularHours  Hours
	OvertimeHours Hours
}

// SharingLine is one per-payee or per-source revenue sharing breakdown line.
type SharingLine struct {
	UserID      UserID
	GrossIncome Money
	Rate        decimal.Decimal
	Amount      Money
}

// StudentShareLine records one student's hypothetical 100%-commission net,
// used as the sharing base for all-students rules.
type StudentShareLine struct {
	UserID      UserID
	GrossIncome Money
	POSFees     Money
	Net         Money
}

type SharingBreakdown struct {
	IncomeFromUsers    []SharingLine
	IncomeFromStudents []StudentShareLine
	DeductionsToUsers  []SharingLine
}

// PayrollResult is constructed fresh per (user, period) computation.
type PayrollResult struct {
	PayrollNumber string
	UserID        UserID
	ClinicID      ClinicID
	Period        Period
	RoleType      RoleType

	Earnings   Earnings
	Deductions Deductions
	Totals     Totals
	YTD        YTDProjection
	Breakdown  HoursBreakdown
	Sharing    SharingBreakdown

	// EmployerPension/EmployerInsurance mirror the employee withholding for
	// employer remittance reporting (insurance at 1.4x for employees).
	EmployerPension   Money
	EmployerInsurance Money

	Notes string
}

// BaseGrossIncome is the figure revenue-sharing rates apply to: invoiced
// gross for commission roles, regular + overtime pay for hourly roles.
func (r *PayrollResult) BaseGrossIncome() Money {
	if r.RoleType == RoleCommissionEmployee || r.RoleType == RoleCommissionContractor || r.RoleType == RoleStudent {
		return r.Earnings.GrossIncome
	}
	return r.Earnings.RegularPay.Add(r.Earnings.OvertimePay)
}
