package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/payroll-engine/engine"
)

// statutorySettings mirrors a realistic configuration: two tax jurisdictions,
// a pension exemption and annual contribution caps.
func statutorySettings() *engine.SiteSettings {
	return &engine.SiteSettings{
		FederalBrackets: []engine.TaxBracket{
			bracket(0.15, 0, 50000),
			bracket(0.25, 50000, 150000),
		},
		ProvincialBrackets: []engine.TaxBracket{
			bracket(0.05, 0, 45000),
			bracket(0.10, 45000, 100000000),
		},
		PensionRate:        decimal.NewFromFloat(0.0595),
		PensionExemption:   engine.NewMoney(3500),
		PensionCap:         engine.NewMoney(3867.50),
		InsuranceRate:      decimal.NewFromFloat(0.0166),
		InsuranceCap:       engine.NewMoney(1049.12),
		VacationRate:       decimal.NewFromFloat(0.04),
		OvertimeMultiplier: decimal.NewFromFloat(1.5),
	}
}

func zeroState(id engine.UserID) engine.UserPayState {
	return engine.UserPayState{
		UserID:               id,
		YTDPay:               engine.ZeroMoney,
		YTDDeductions:        engine.ZeroMoney,
		PensionContributed:   engine.ZeroMoney,
		InsuranceContributed: engine.ZeroMoney,
	}
}

// =============================================================================
// ANNUALIZATION AND PRORATION
// =============================================================================

func TestComputeDeductions_SevenDayPeriod(t *testing.T) {
	// GIVEN: 700.00 taxable over a 7-day period, fresh YTD state
	// WHEN: Running the withholding pass
	// THEN: Annualized income is 36500; every line prorates back to the cent

	result := engine.ComputeDeductions(engine.NewMoney(700), 7, zeroState("u1"), statutorySettings())

	// 36500 annual: federal 15% = 5475, provincial 5% = 1825
	assert.Equal(t, "105.00", result.FederalTax.String())
	assert.Equal(t, "35.00", result.ProvincialTax.String())

	// Prorated exemption 3500 x 7/365 = 67.12; (700 - 67.12) x 0.0595 = 37.66
	assert.Equal(t, "37.66", result.Pension.String())

	// 700 x 0.0166, no exemption
	assert.Equal(t, "11.62", result.Insurance.String())

	assert.Equal(t, "189.28", result.TotalDeductions.String())
	assert.Equal(t, "700.00", result.ProjectedEarnings.String())
	assert.Equal(t, "189.28", result.ProjectedDeductions.String())
	assert.Equal(t, "37.66", result.PensionCapAfter.String())
	assert.Equal(t, "11.62", result.InsuranceCapAfter.String())
}

func TestComputeDeductions_CrossesBracketWhenAnnualized(t *testing.T) {
	// GIVEN: 1400.00 over 7 days (annualizes to 73000, into the second brackets)
	// WHEN: Running the withholding pass
	// THEN: The marginal rates apply only above each bracket floor

	result := engine.ComputeDeductions(engine.NewMoney(1400), 7, zeroState("u1"), statutorySettings())

	// Federal: 50000 x 0.15 + 23000 x 0.25 = 13250 annual -> 254.11 prorated
	assert.Equal(t, "254.11", result.FederalTax.String())
	// Provincial: 45000 x 0.05 + 28000 x 0.10 = 5050 annual -> 96.85 prorated
	assert.Equal(t, "96.85", result.ProvincialTax.String())
}

// =============================================================================
// CONTRIBUTION CAPS
// =============================================================================

func TestComputeDeductions_ClampsToRemainingCapRoom(t *testing.T) {
	// GIVEN: YTD pension contributions 10.00 short of the cap, insurance at cap
	// WHEN: Withholding on income that would normally exceed both
	// THEN: Pension withholds exactly the remaining room; insurance withholds zero

	state := zeroState("u1")
	state.PensionContributed = engine.NewMoney(3857.50)
	state.InsuranceContributed = engine.NewMoney(1049.12)

	result := engine.ComputeDeductions(engine.NewMoney(700), 7, state, statutorySettings())

	assert.Equal(t, "10.00", result.Pension.String())
	assert.True(t, result.Insurance.IsZero())
	assert.Equal(t, "3867.50", result.PensionCapAfter.String())
	assert.Equal(t, "1049.12", result.InsuranceCapAfter.String())
}

func TestComputeDeductions_OverContributedNeverGoesNegative(t *testing.T) {
	// Cap room is floored at zero even if YTD somehow exceeds the cap.
	state := zeroState("u1")
	state.PensionContributed = engine.NewMoney(5000)

	result := engine.ComputeDeductions(engine.NewMoney(700), 7, state, statutorySettings())

	assert.True(t, result.Pension.IsZero())
	assert.False(t, result.Pension.IsNegative())
}

func TestComputeDeductions_ExemptionExceedsIncome(t *testing.T) {
	// GIVEN: Period income below the prorated pension exemption
	// WHEN: Running the withholding pass
	// THEN: Pensionable income floors at zero, pension is zero

	result := engine.ComputeDeductions(engine.NewMoney(50), 7, zeroState("u1"), statutorySettings())

	assert.True(t, result.Pension.IsZero())
	// Insurance has no exemption and still applies: 50 x 0.0166 = 0.83
	assert.Equal(t, "0.83", result.Insurance.String())
}

func TestComputeDeductions_Deterministic(t *testing.T) {
	// The same inputs must produce identical cents on every run.
	a := engine.ComputeDeductions(engine.NewMoney(1234.56), 14, zeroState("u1"), statutorySettings())
	b := engine.ComputeDeductions(engine.NewMoney(1234.56), 14, zeroState("u1"), statutorySettings())

	assert.Equal(t, a.TotalDeductions.String(), b.TotalDeductions.String())
	assert.Equal(t, a.FederalTax.String(), b.FederalTax.String())
	assert.Equal(t, a.Pension.String(), b.Pension.String())
}
