/*
engine.go - Computation entry point and final adjustment aggregation

PURPOSE:
  Engine wires the collaborator interfaces together and exposes
  ComputePayroll, the single entry point: select the role calculator
  strategy, run it, resolve rent and revenue sharing (possibly recursing
  into other users' payrolls), and merge the adjustments into the final
  result.

FINAL ADJUSTMENTS:
  Employees: nonzero revenue-sharing income changes the taxable base, so the
  deduction pass reruns entirely on (base earnings + share income) and
  REPLACES the statutory deductions. Rent and outgoing share are then
  subtracted from total earnings.
  Contractors: no tax recomputation; rent, outgoing share and incoming share
  adjust net pay directly.

ORDERING:
  Computation is synchronous. Nested computations triggered by sharing rules
  fully complete, including persistence, before their gross income is read.

SEE ALSO:
  - calculator.go: The per-role strategies
  - sharing.go: Rent and sharing resolution
  - stores.go: Collaborator contracts
*/
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Engine computes payroll results. All fields are required except Logger.
type Engine struct {
	Settings     SettingsStore
	UserState    UserStateStore
	Roles        RoleRegistry
	SharingRules SharingRuleStore
	Clinics      ClinicStore
	Timesheets   TimesheetSource
	Commissions  CommissionSource
	Transactions TransactionFeed
	Settlements  SettlementFeed
	Results      ResultStore

	// Notifier is optional; when set, Finalize hands the stored result off
	// after the YTD application. Delivery failure never undoes the send.
	Notifier Notifier

	Logger *logrus.Logger
}

func (e *Engine) log() *logrus.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logrus.StandardLogger()
}

// ComputePayroll computes the full payroll result for one user and period.
// The returned result is NOT persisted; persistence and the one-time YTD
// application happen when the caller finalizes (see Finalize).
func (e *Engine) ComputePayroll(ctx context.Context, userID UserID, period Period, clinicID ClinicID) (*PayrollResult, error) {
	if !period.Valid() {
		return nil, &ConfigurationError{Field: "period", Reason: "end before start or unset"}
	}
	return e.computeForUser(ctx, newResolution(), userID, period, clinicID, false)
}

// computeForUser runs the full pipeline. persist controls whether the result
// is upserted on completion: dependent results created during sharing
// resolution are persisted immediately; the operator's root result is not.
func (e *Engine) computeForUser(ctx context.Context, res *resolution, userID UserID, period Period, clinicID ClinicID, persist bool) (*PayrollResult, error) {
	key := keyFor(userID, period)
	res.visiting[key] = true
	defer delete(res.visiting, key)

	settings, err := e.Settings.Current(ctx)
	if err != nil {
		return nil, &ConfigurationError{Field: "settings", Reason: err.Error()}
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	sheets, err := e.Clinics.SpreadsheetFor(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	detail, err := e.Roles.DetailFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	strategy, ok := calculators[detail.Type]
	if !ok {
		return nil, &UnsupportedRoleError{UserID: userID, Role: detail.Type}
	}

	state, err := e.UserState.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	in := calcInput{
		UserID:   userID,
		Detail:   detail,
		Sheets:   sheets,
		Period:   period,
		Settings: settings,
		State:    state,
	}

	result, err := strategy(e, ctx, in)
	if err != nil {
		return nil, err
	}

	rent, rentDescription, err := e.rentDeduction(ctx, userID, period)
	if err != nil {
		return nil, err
	}

	outgoing, deductionLines, err := e.sharingDeductions(ctx, userID, result.BaseGrossIncome())
	if err != nil {
		return nil, err
	}

	incomeUsers, userLines := e.sharingIncomeFromUsers(ctx, res, userID, clinicID, period)
	incomeStudents, studentLines := e.sharingIncomeFromStudents(ctx, res, userID, clinicID, period)
	incoming := incomeUsers.Add(incomeStudents)

	e.applyFinalAdjustments(result, in, rent, rentDescription, outgoing, incoming)
	result.Sharing = SharingBreakdown{
		IncomeFromUsers:    userLines,
		IncomeFromStudents: studentLines,
		DeductionsToUsers:  deductionLines,
	}

	if persist {
		ensurePayrollNumber(result, "AUTO")
		stored, err := e.Results.Upsert(ctx, result)
		if err != nil {
			return nil, err
		}
		result = stored
	}
	res.computed[key] = result
	return result, nil
}

// applyFinalAdjustments merges rent and revenue sharing into the base result.
func (e *Engine) applyFinalAdjustments(result *PayrollResult, in calcInput, rent Money, rentDescription string, outgoing, incoming Money) {
	result.Deductions.Rent = rent
	result.Deductions.RentDescription = rentDescription
	result.Deductions.RevenueShareDeduction = outgoing

	if in.Detail.IsEmployee() {
		e.adjustEmployee(result, in, rent, outgoing, incoming)
		return
	}
	adjustContractor(result, rent, outgoing, incoming)
}

// adjustEmployee reruns withholding when share income raises the taxable
// base, then applies rent and outgoing share.
func (e *Engine) adjustEmployee(result *PayrollResult, in calcInput, rent, outgoing, incoming Money) {
	if incoming.IsPositive() {
		newTaxable := result.Totals.TotalEarnings.Add(incoming)
		deductions := ComputeDeductions(newTaxable, in.Period.DayCount(), in.State, in.Settings)

		// Replace, never sum: the base statutory deductions are superseded.
		nonStatutory := result.Deductions.CommissionDeduction.Add(result.Deductions.POSFees)
		deductions.applyTo(result)
		result.Earnings.RevenueShareIncome = incoming
		result.Totals.TotalEarnings = newTaxable
		result.Totals.TotalDeductions = nonStatutory.Add(deductions.TotalDeductions)
	}

	result.Totals.TotalDeductions = result.Totals.TotalDeductions.Add(rent).Add(outgoing)
	result.Totals.NetPayment = result.Totals.TotalEarnings.Sub(result.Totals.TotalDeductions)
	setEmployerContributions(result)
}

// adjustContractor applies rent and sharing as direct net adjustments.
func adjustContractor(result *PayrollResult, rent, outgoing, incoming Money) {
	result.Totals.NetPayment = result.Totals.NetPayment.Sub(rent).Sub(outgoing).Add(incoming)
	result.Totals.TotalDeductions = result.Totals.TotalDeductions.Add(rent).Add(outgoing)
	if incoming.IsPositive() {
		result.Totals.TotalEarnings = result.Totals.TotalEarnings.Add(incoming)
		result.Earnings.RevenueShareIncome = incoming
	}
}

// Finalize persists an accepted result and applies the YTD delta exactly
// once, then hands the stored record to the Notifier if one is configured.
func (e *Engine) Finalize(ctx context.Context, result *PayrollResult) (*PayrollResult, error) {
	ensurePayrollNumber(result, "PAY")
	stored, err := e.Results.Upsert(ctx, result)
	if err != nil {
		return nil, err
	}

	err = e.UserState.ApplyFinalized(ctx, stored.UserID,
		stored.Totals.TotalEarnings,
		stored.Totals.TotalDeductions,
		stored.YTD.PensionCapAfter,
		stored.YTD.InsuranceCapAfter,
	)
	if err != nil {
		return nil, err
	}

	if e.Notifier != nil {
		if nerr := e.Notifier.PayrollSent(ctx, stored.UserID, stored); nerr != nil {
			e.log().WithError(nerr).
				WithField("payroll_number", stored.PayrollNumber).
				Warn("payroll notification failed")
		}
	}
	return stored, nil
}

// ensurePayrollNumber mints a record number once; upserts keep the original.
// Prefix distinguishes operator-sent (PAY), auto-generated dependents (AUTO)
// and student sharing-base records (STU).
func ensurePayrollNumber(result *PayrollResult, prefix string) {
	if result.PayrollNumber != "" {
		return
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	result.PayrollNumber = fmt.Sprintf("%s-%s-%s-%s",
		prefix, time.Now().UTC().Format("20060102"), result.UserID, suffix)
}
