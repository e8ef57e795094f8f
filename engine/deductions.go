/*
deductions.go - Statutory withholding for one pay period

PURPOSE:
  Combines progressive tax (two jurisdictions), pension and insurance
  contributions into an itemized deduction set, enforcing annual
  contribution caps against the user's year-to-date state.

ANNUALIZATION:
  Taxes are computed on (income / period_days) × 365 and prorated back as
  annual × period_days / 365, rounded half-up to the cent at each proration
  step. The rounding order is a contract: the same inputs must produce the
  same cents every run.

CAP CLAMPING:
  Pension and insurance withholding are each clamped to the remaining room
  under their annual cap, so YTD + withheld never exceeds the cap and is
  never negative.

SEE ALSO:
  - tax.go: The bracket engine used for both jurisdictions
  - settings.go: Rates, exemption and caps
*/
package engine

import (
	"github.com/shopspring/decimal"
)

var daysPerYear = decimal.NewFromInt(365)

// DeductionResult is the itemized output of one withholding pass.
type DeductionResult struct {
	FederalTax    Money
	ProvincialTax Money
	Pension       Money
	Insurance     Money

	TotalDeductions Money

	// Projected YTD figures assuming this result is finalized.
	ProjectedEarnings   Money
	ProjectedDeductions Money
	PensionCapAfter     Money
	InsuranceCapAfter   Money
}

// ComputeDeductions runs the full withholding pass on the period's taxable
// income. periodDays is the inclusive day count of the pay period. The
// user's state is read-only; projected figures report what YTD would become.
func ComputeDeductions(taxableIncome Money, periodDays int, state UserPayState, settings *SiteSettings) DeductionResult {
	days := decimal.NewFromInt(int64(periodDays))

	// Annualize, tax, prorate back. Each proration rounds to the cent.
	annualIncome := taxableIncome.Div(days).Mul(daysPerYear)
	federal := AnnualTax(annualIncome, settings.FederalBrackets).Mul(days).Div(daysPerYear).Cents()
	provincial := AnnualTax(annualIncome, settings.ProvincialBrackets).Mul(days).Div(daysPerYear).Cents()

	// Pension: prorated exemption comes off the top, rate applies to the
	// remainder, result clamped to remaining cap room.
	exemption := settings.PensionExemption.Mul(days).Div(daysPerYear).Cents()
	pensionable := taxableIncome.Sub(exemption).FloorZero()
	pension := pensionable.Mul(settings.PensionRate).Cents()
	pensionRoom := settings.PensionCap.Sub(state.PensionContributed).FloorZero()
	pension = pension.Min(pensionRoom)

	// Insurance: no exemption, own cap.
	insurance := taxableIncome.Mul(settings.InsuranceRate).Cents()
	insuranceRoom := settings.InsuranceCap.Sub(state.InsuranceContributed).FloorZero()
	insurance = insurance.Min(insuranceRoom)

	total := federal.Add(provincial).Add(pension).Add(insurance)

	return DeductionResult{
		FederalTax:          federal,
		ProvincialTax:       provincial,
		Pension:             pension,
		Insurance:           insurance,
		TotalDeductions:     total,
		ProjectedEarnings:   state.YTDPay.Add(taxableIncome),
		ProjectedDeductions: state.YTDDeductions.Add(total),
		PensionCapAfter:     state.PensionContributed.Add(pension),
		InsuranceCapAfter:   state.InsuranceContributed.Add(insurance),
	}
}

// applyTo writes the deduction pass into a result's deduction and YTD fields.
// Replaces, never sums: rerunning the pass on a new taxable base must not
// double-tax the old one.
func (d DeductionResult) applyTo(result *PayrollResult) {
	result.Deductions.FederalTax = d.FederalTax
	result.Deductions.ProvincialTax = d.ProvincialTax
	result.Deductions.Pension = d.Pension
	result.Deductions.Insurance = d.Insurance
	result.YTD.ProjectedEarnings = d.ProjectedEarnings
	result.YTD.ProjectedDeductions = d.ProjectedDeductions
	result.YTD.PensionCapAfter = d.PensionCapAfter
	result.YTD.InsuranceCapAfter = d.InsuranceCapAfter
}
