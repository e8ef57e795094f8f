/*
calculator.go - Role calculator strategies

PURPOSE:
  One computation function per payment role, selected through a dispatch
  table keyed by RoleType. Adding a role means adding a table entry and a
  function; there is no runtime class lookup.

STRATEGIES:
  hourly_employee       timesheet hours → overtime/vacation → withholding
  hourly_contractor     timesheet hours × wage, no withholding
  commission_employee   invoices → fees → split → vacation → withholding
  commission_contractor invoices → fees → split, no withholding
  student               NOT dispatchable directly (UnsupportedRoleError);
                        participates via sharing.go aggregation only

ZERO-DATA RULE:
  A user with no hours/invoices still produces a zero-earnings result when
  they hold a rent role (and the period has a month-end) or any sharing
  rule; otherwise the strategy raises NoDataError.

SEE ALSO:
  - engine.go: Entry point that selects and runs a strategy
  - sharing.go: Rent and revenue-sharing adjustments applied afterwards
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// calcInput carries everything a strategy needs, resolved once by the engine.
type calcInput struct {
	UserID   UserID
	Detail   PaymentRoleDetail
	Sheets   ClinicSpreadsheet
	Period   Period
	Settings *SiteSettings
	State    UserPayState
}

type calculatorFunc func(*Engine, context.Context, calcInput) (*PayrollResult, error)

// calculators is the closed dispatch table. Student is intentionally absent.
var calculators = map[RoleType]calculatorFunc{
	RoleHourlyEmployee:       (*Engine).calculateHourlyEmployee,
	RoleHourlyContractor:     (*Engine).calculateHourlyContractor,
	RoleCommissionEmployee:   (*Engine).calculateCommission,
	RoleCommissionContractor: (*Engine).calculateCommission,
}

func newResult(in calcInput) *PayrollResult {
	return &PayrollResult{
		UserID:   in.UserID,
		ClinicID: in.Sheets.ClinicID,
		Period:   in.Period,
		RoleType: in.Detail.Type,
	}
}

// =============================================================================
// HOURLY EMPLOYEE
// =============================================================================

func (e *Engine) calculateHourlyEmployee(ctx context.Context, in calcInput) (*PayrollResult, error) {
	if in.Sheets.TimesheetSheet == "" {
		return nil, &MissingSourceError{ClinicID: in.Sheets.ClinicID, Source: "timesheet"}
	}

	daily, err := e.Timesheets.HoursByDateRange(ctx, in.Sheets.TimesheetSheet, in.UserID, in.Period.Start, in.Period.End)
	if err != nil {
		return nil, &FetchError{Feed: "timesheet", Period: in.Period, Err: err}
	}

	total := totalHours(daily)
	if total.IsZero() {
		if err := e.requireObligation(ctx, in.UserID, in.Period); err != nil {
			return nil, err
		}
	}

	allocator := &OvertimeAllocator{Timesheets: e.Timesheets}
	hours, err := allocator.Allocate(ctx, in.Sheets.TimesheetSheet, in.UserID, in.Period, daily, in.Detail.HourlyWage, in.Settings)
	if err != nil {
		return nil, err
	}

	earnings := hours.TotalPay()
	deductions := ComputeDeductions(earnings, in.Period.DayCount(), in.State, in.Settings)

	result := newResult(in)
	result.Earnings.RegularPay = hours.RegularPay
	result.Earnings.OvertimePay = hours.OvertimePay
	result.Earnings.VacationPay = hours.VacationPay
	result.Breakdown = HoursBreakdown{
		TotalHours:    total,
		RegularHours:  hours.RegularHours,
		OvertimeHours: hours.OvertimeHours,
	}
	deductions.applyTo(result)
	result.Totals = Totals{
		TotalEarnings:   earnings,
		TotalDeductions: deductions.TotalDeductions,
		NetPayment:      earnings.Sub(deductions.TotalDeductions),
	}
	setEmployerContributions(result)
	return result, nil
}

// =============================================================================
// HOURLY CONTRACTOR
// =============================================================================

func (e *Engine) calculateHourlyContractor(ctx context.Context, in calcInput) (*PayrollResult, error) {
	if in.Sheets.TimesheetSheet == "" {
		return nil, &MissingSourceError{ClinicID: in.Sheets.ClinicID, Source: "timesheet"}
	}

	daily, err := e.Timesheets.HoursByDateRange(ctx, in.Sheets.TimesheetSheet, in.UserID, in.Period.Start, in.Period.End)
	if err != nil {
		return nil, &FetchError{Feed: "timesheet", Period: in.Period, Err: err}
	}

	total := totalHours(daily)
	if total.IsZero() {
		if err := e.requireObligation(ctx, in.UserID, in.Period); err != nil {
			return nil, err
		}
	}

	pay := total.PayAt(in.Detail.HourlyWage)

	result := newResult(in)
	result.Earnings.RegularPay = pay
	result.Breakdown = HoursBreakdown{TotalHours: total, RegularHours: total}
	result.Totals = Totals{
		TotalEarnings:   pay,
		TotalDeductions: ZeroMoney,
		NetPayment:      pay,
	}
	result.YTD = YTDProjection{
		ProjectedEarnings:   in.State.YTDPay.Add(pay),
		ProjectedDeductions: in.State.YTDDeductions,
		PensionCapAfter:     in.State.PensionContributed,
		InsuranceCapAfter:   in.State.InsuranceContributed,
	}
	return result, nil
}

// =============================================================================
// COMMISSION (employee and contractor share the reconciliation front half)
// =============================================================================

func (e *Engine) calculateCommission(ctx context.Context, in calcInput) (*PayrollResult, error) {
	data, fees, err := e.commissionBase(ctx, in.UserID, in.Sheets, in.Period)
	if err != nil {
		return nil, err
	}
	if data.Empty() {
		if err := e.requireObligation(ctx, in.UserID, in.Period); err != nil {
			return nil, err
		}
	}

	split := SplitCommission(data, in.Detail.CommissionRate)

	result := newResult(in)
	result.Earnings.AdjustedTotal = data.AdjustedTotal
	result.Earnings.TaxCollected = data.Tax
	result.Earnings.GrossIncome = split.GrossIncome
	result.Earnings.CommissionEarned = split.PractitionerPay
	result.Earnings.POSFees = fees
	result.Deductions.CommissionDeduction = split.ClinicShare
	result.Deductions.POSFees = fees

	if in.Detail.Type == RoleCommissionEmployee {
		return e.finishCommissionEmployee(result, split, fees, in), nil
	}
	return finishCommissionContractor(result, split, fees, in), nil
}

// finishCommissionEmployee adds vacation pay and withholding. Taxable income
// is practitioner pay + vacation − fees.
func (e *Engine) finishCommissionEmployee(result *PayrollResult, split CommissionSplit, fees Money, in calcInput) *PayrollResult {
	vacation := VacationPayOn(split.PractitionerPay, in.Settings)
	taxable := split.PractitionerPay.Add(vacation).Sub(fees)
	deductions := ComputeDeductions(taxable, in.Period.DayCount(), in.State, in.Settings)

	result.Earnings.VacationPay = vacation
	deductions.applyTo(result)
	result.Totals = Totals{
		TotalEarnings:   split.GrossIncome.Add(vacation),
		TotalDeductions: split.ClinicShare.Add(fees).Add(deductions.TotalDeductions),
		NetPayment:      taxable.Sub(deductions.TotalDeductions),
	}
	setEmployerContributions(result)
	return result
}

// finishCommissionContractor pays practitioner share minus fees, no
// statutory withholding.
func finishCommissionContractor(result *PayrollResult, split CommissionSplit, fees Money, in calcInput) *PayrollResult {
	net := split.PractitionerPay.Sub(fees)
	result.Totals = Totals{
		TotalEarnings:   split.GrossIncome,
		TotalDeductions: split.ClinicShare.Add(fees),
		NetPayment:      net,
	}
	result.YTD = YTDProjection{
		ProjectedEarnings:   in.State.YTDPay.Add(net),
		ProjectedDeductions: in.State.YTDDeductions,
		PensionCapAfter:     in.State.PensionContributed,
		InsuranceCapAfter:   in.State.InsuranceContributed,
	}
	return result
}

// commissionBase fetches a user's invoices and reconciles their POS fees.
func (e *Engine) commissionBase(ctx context.Context, userID UserID, sheets ClinicSpreadsheet, period Period) (CommissionData, Money, error) {
	if sheets.CommissionSheet == "" {
		return CommissionData{}, ZeroMoney, &MissingSourceError{ClinicID: sheets.ClinicID, Source: "commission"}
	}

	invoices, err := e.Commissions.InvoicesByDateRange(ctx, sheets.CommissionSheet, userID, period.Start, period.End)
	if err != nil {
		return CommissionData{}, ZeroMoney, &FetchError{Feed: "commission", Period: period, Err: err}
	}

	data := AggregateCommission(invoices)
	if data.Empty() {
		return data, ZeroMoney, nil
	}

	reconciler := &POSFeeReconciler{Transactions: e.Transactions, Settlements: e.Settlements}
	fees, err := reconciler.Fees(ctx, sheets, invoices)
	if err != nil {
		return CommissionData{}, ZeroMoney, err
	}
	return data, fees, nil
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// requireObligation returns NoDataError unless the user has a sharing rule
// or a rent role that applies to this period.
func (e *Engine) requireObligation(ctx context.Context, userID UserID, period Period) error {
	rules, err := e.SharingRules.RulesFor(ctx, userID)
	if err == nil && len(rules) > 0 {
		return nil
	}

	rent, err := e.Roles.RentFor(ctx, userID)
	if err == nil && rent != nil && period.ContainsMonthEnd() {
		return nil
	}

	return &NoDataError{UserID: userID, Period: period}
}

var employerInsuranceFactor = decimal.NewFromFloat(1.4)

// setEmployerContributions mirrors employee withholding for employer
// remittance: pension matches 1:1, insurance at 1.4x.
func setEmployerContributions(result *PayrollResult) {
	result.EmployerPension = result.Deductions.Pension
	result.EmployerInsurance = result.Deductions.Insurance.Mul(employerInsuranceFactor).Cents()
}
