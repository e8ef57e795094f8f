/*
sharing.go - Rent and revenue-sharing resolution

PURPOSE:
  Resolves the two cross-cutting adjustments applied after a base result is
  computed:
  1. Rent: a flat monthly deduction that fires only when the pay period
     contains a calendar month-end.
  2. Revenue sharing: a directed rule graph moving rate × gross income from
     target users (or the aggregate of all students) to an owning user.

RECURSION AND IDEMPOTENCE:
  Resolving income from a specific target requires that target's computed
  result for the SAME period. The resolver consults a per-request resolution
  context first, then the result store, and only then computes (and
  persists) a dependent result through the full pipeline. A visiting set
  breaks rule cycles. Re-resolving a (user, period) pair therefore never
  creates a second result or double-sums income.

DEGRADATION:
  A failure computing one dependent result or one student's commission data
  is logged and contributes zero; it never aborts the requesting user's
  payroll run.

SEE ALSO:
  - engine.go: Applies the resolved adjustments to the base result
  - calculator.go: The pipeline the resolver recurses into
*/
package engine

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// errSharingCycle is internal: a rule chain revisited a (user, period)
// already on the resolution stack. The caller degrades to zero income.
var errSharingCycle = errors.New("revenue sharing rule cycle")

// =============================================================================
// RESOLUTION CONTEXT - Per-request memoization
// =============================================================================

type resolutionKey struct {
	User  UserID
	Start string
	End   string
}

func keyFor(userID UserID, period Period) resolutionKey {
	return resolutionKey{User: userID, Start: period.Start.String(), End: period.End.String()}
}

// resolution tracks results already computed in this request. It guarantees
// termination and idempotence without relying on the store's check-then-act
// being race-free.
type resolution struct {
	computed map[resolutionKey]*PayrollResult
	visiting map[resolutionKey]bool
}

func newResolution() *resolution {
	return &resolution{
		computed: make(map[resolutionKey]*PayrollResult),
		visiting: make(map[resolutionKey]bool),
	}
}

// =============================================================================
// RENT
// =============================================================================

// rentDeduction returns the flat monthly rent when the user holds a rent
// role and the period contains a month-end; zero otherwise. Never prorated.
func (e *Engine) rentDeduction(ctx context.Context, userID UserID, period Period) (Money, string, error) {
	rent, err := e.Roles.RentFor(ctx, userID)
	if err != nil {
		return ZeroMoney, "", err
	}
	if rent == nil || !period.ContainsMonthEnd() {
		return ZeroMoney, "", nil
	}
	return rent.MonthlyRent, rent.Description, nil
}

// =============================================================================
// OUTGOING SHARE - Rules targeting the current user
// =============================================================================

// sharingDeductions sums rate × gross for every rule whose specific target
// is the current user, one breakdown line per payee.
func (e *Engine) sharingDeductions(ctx context.Context, userID UserID, baseGross Money) (Money, []SharingLine, error) {
	rules, err := e.SharingRules.RulesTargeting(ctx, userID)
	if err != nil {
		return ZeroMoney, nil, err
	}

	total := ZeroMoney
	var lines []SharingLine
	for _, rule := range rules {
		amount := baseGross.Mul(rule.Rate)
		total = total.Add(amount)
		lines = append(lines, SharingLine{
			UserID:      rule.OwnerID,
			GrossIncome: baseGross,
			Rate:        rule.Rate,
			Amount:      amount,
		})
	}
	return total, lines, nil
}

// =============================================================================
// INCOMING SHARE - Rules owned by the current user
// =============================================================================

// sharingIncomeFromUsers resolves specific-user rules owned by the user.
// Each target's result for the same period is ensured (memoized, then
// store-checked, then computed and persisted) before its gross is read.
func (e *Engine) sharingIncomeFromUsers(ctx context.Context, res *resolution, userID UserID, clinicID ClinicID, period Period) (Money, []SharingLine) {
	rules, err := e.SharingRules.RulesFor(ctx, userID)
	if err != nil {
		e.log().WithError(err).WithField("user", userID).Warn("loading sharing rules failed; contributing zero")
		return ZeroMoney, nil
	}

	total := ZeroMoney
	var lines []SharingLine
	for _, rule := range rules {
		if rule.TargetKind != TargetSpecificUser || rule.TargetUser == "" {
			continue
		}

		target, err := e.ensureResult(ctx, res, rule.TargetUser, period, clinicID)
		if err != nil {
			e.log().WithError(err).WithFields(logrus.Fields{
				"user":   userID,
				"target": rule.TargetUser,
			}).Warn("dependent payroll computation failed; contributing zero")
			continue
		}

		gross := target.BaseGrossIncome()
		amount := gross.Mul(rule.Rate)
		total = total.Add(amount)
		lines = append(lines, SharingLine{
			UserID:      rule.TargetUser,
			GrossIncome: gross,
			Rate:        rule.Rate,
			Amount:      amount,
		})
	}
	return total, lines
}

// ensureResult returns the target's result for the period, computing and
// persisting one if none exists yet. The nested computation fully completes
// (including persistence) before its gross income is read.
func (e *Engine) ensureResult(ctx context.Context, res *resolution, userID UserID, period Period, clinicID ClinicID) (*PayrollResult, error) {
	key := keyFor(userID, period)
	if memo, ok := res.computed[key]; ok {
		return memo, nil
	}
	if res.visiting[key] {
		return nil, errSharingCycle
	}

	existing, err := e.Results.GetOrNil(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		res.computed[key] = existing
		return existing, nil
	}

	result, err := e.computeForUser(ctx, res, userID, period, clinicID, true)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// STUDENT AGGREGATION - all_students rules
// =============================================================================

// sharingIncomeFromStudents computes each student's hypothetical
// 100%-commission net (gross minus fees, no clinic share, no withholding),
// records it, and applies the owning rules' rates to the aggregate net.
func (e *Engine) sharingIncomeFromStudents(ctx context.Context, res *resolution, userID UserID, clinicID ClinicID, period Period) (Money, []StudentShareLine) {
	rules, err := e.SharingRules.RulesFor(ctx, userID)
	if err != nil {
		e.log().WithError(err).WithField("user", userID).Warn("loading sharing rules failed; contributing zero")
		return ZeroMoney, nil
	}

	var studentRules []RevenueSharingRule
	for _, rule := range rules {
		if rule.TargetKind == TargetAllStudents {
			studentRules = append(studentRules, rule)
		}
	}
	if len(studentRules) == 0 {
		return ZeroMoney, nil
	}

	students, err := e.Roles.Students(ctx)
	if err != nil {
		e.log().WithError(err).Warn("listing students failed; contributing zero")
		return ZeroMoney, nil
	}

	sheets, err := e.Clinics.SpreadsheetFor(ctx, clinicID)
	if err != nil {
		e.log().WithError(err).WithField("clinic", clinicID).Warn("clinic sheets unavailable; contributing zero")
		return ZeroMoney, nil
	}

	totalNet := ZeroMoney
	var lines []StudentShareLine
	for _, student := range students {
		line, err := e.studentNet(ctx, res, student, sheets, period)
		if err != nil {
			// One student failing must not abort the requesting user's run.
			e.log().WithError(err).WithField("student", student).Warn("student commission lookup failed; skipping")
			continue
		}
		if line == nil {
			continue // no invoices this period
		}
		totalNet = totalNet.Add(line.Net)
		lines = append(lines, *line)
	}

	totalIncome := ZeroMoney
	for _, rule := range studentRules {
		totalIncome = totalIncome.Add(totalNet.Mul(rule.Rate))
	}
	return totalIncome, lines
}

// studentNet computes and records one student's sharing-base net for the
// period. An existing result for the (student, period) key is reused.
func (e *Engine) studentNet(ctx context.Context, res *resolution, student UserID, sheets ClinicSpreadsheet, period Period) (*StudentShareLine, error) {
	key := keyFor(student, period)
	if memo, ok := res.computed[key]; ok {
		return studentLineFrom(memo), nil
	}

	existing, err := e.Results.GetOrNil(ctx, student, period)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		res.computed[key] = existing
		return studentLineFrom(existing), nil
	}

	data, fees, err := e.commissionBase(ctx, student, sheets, period)
	if err != nil {
		return nil, err
	}
	if data.Empty() {
		return nil, nil
	}

	// 100% commission rate: the student keeps the full gross, less fees.
	split := SplitCommission(data, decimal.NewFromInt(1))
	net := split.GrossIncome.Sub(fees)

	result := &PayrollResult{
		UserID:   student,
		ClinicID: sheets.ClinicID,
		Period:   period,
		RoleType: RoleStudent,
		Earnings: Earnings{
			AdjustedTotal:    data.AdjustedTotal,
			TaxCollected:     data.Tax,
			GrossIncome:      split.GrossIncome,
			CommissionEarned: split.PractitionerPay,
			POSFees:          fees,
		},
		Deductions: Deductions{POSFees: fees},
		Totals: Totals{
			TotalEarnings:   split.GrossIncome,
			TotalDeductions: fees,
			NetPayment:      net,
		},
		Notes: "auto-generated for revenue sharing aggregation",
	}

	ensurePayrollNumber(result, "STU")
	stored, err := e.Results.Upsert(ctx, result)
	if err != nil {
		return nil, err
	}
	res.computed[key] = stored
	return studentLineFrom(stored), nil
}

func studentLineFrom(result *PayrollResult) *StudentShareLine {
	return &StudentShareLine{
		UserID:      result.UserID,
		GrossIncome: result.Earnings.GrossIncome,
		POSFees:     result.Earnings.POSFees,
		Net:         result.Earnings.GrossIncome.Sub(result.Earnings.POSFees),
	}
}
