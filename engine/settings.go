/*
settings.go - Site-wide payroll configuration

PURPOSE:
  SiteSettings bundles every rate, bracket and cap the engine needs. It is
  read once at computation start and treated as immutable for the whole
  computation, including any nested computations triggered by revenue
  sharing. There is no process-wide settings state.

RATE CONVENTION:
  All rates are decimal fractions, not percentages: a 15% bracket is 0.15,
  a 4% vacation rate is 0.04. Caps and exemptions are annual dollar figures.

SEE ALSO:
  - tax.go: Consumes the bracket lists
  - deductions.go: Consumes rates, exemptions and caps
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// TAX BRACKETS
// =============================================================================

// TaxBracket is one progressive bracket: Rate applies only to annualized
// income strictly between MinIncome and MaxIncome.
type TaxBracket struct {
	Rate      decimal.Decimal
	MinIncome Money
	MaxIncome Money
}

// =============================================================================
// SITE SETTINGS
// =============================================================================

type SiteSettings struct {
	// Brackets must be ordered ascending by MinIncome.
	FederalBrackets    []TaxBracket
	ProvincialBrackets []TaxBracket

	// Pension: rate applies to income above a prorated annual exemption,
	// withholding clamped so YTD never exceeds the annual cap.
	PensionRate      decimal.Decimal
	PensionExemption Money // annual
	PensionCap       Money // annual

	// Insurance: rate applies to full taxable income, own annual cap.
	InsuranceRate decimal.Decimal
	InsuranceCap  Money // annual

	// Vacation pay rate on (regular + overtime) pay, or on commission income
	// for commission employees.
	VacationRate decimal.Decimal

	// Overtime pay multiplier (e.g. 1.5).
	OvertimeMultiplier decimal.Decimal
}

// Validate checks the settings are complete enough to compute a payroll.
// Empty bracket lists are allowed (they yield zero tax); zero caps and rates
// are not, because they silently produce wrong withholding.
func (s *SiteSettings) Validate() error {
	if s == nil {
		return &ConfigurationError{Field: "settings", Reason: "site settings not configured"}
	}
	if s.OvertimeMultiplier.IsZero() {
		return &ConfigurationError{Field: "overtime_multiplier", Reason: "must be set"}
	}
	if s.PensionCap.IsZero() || s.InsuranceCap.IsZero() {
		return &ConfigurationError{Field: "contribution_caps", Reason: "annual caps must be set"}
	}
	if err := validateBrackets("federal_brackets", s.FederalBrackets); err != nil {
		return err
	}
	if err := validateBrackets("provincial_brackets", s.ProvincialBrackets); err != nil {
		return err
	}
	return nil
}

func validateBrackets(field string, brackets []TaxBracket) error {
	for i, b := range brackets {
		if b.MaxIncome.LessThan(b.MinIncome) {
			return &ConfigurationError{Field: field, Reason: "bracket max below min"}
		}
		if i > 0 && b.MinIncome.LessThan(brackets[i-1].MinIncome) {
			return &ConfigurationError{Field: field, Reason: "brackets not sorted by min income"}
		}
	}
	return nil
}
