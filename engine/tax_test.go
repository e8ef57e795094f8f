package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/payroll-engine/engine"
)

func bracket(rate float64, min, max float64) engine.TaxBracket {
	return engine.TaxBracket{
		Rate:      decimal.NewFromFloat(rate),
		MinIncome: engine.NewMoney(min),
		MaxIncome: engine.NewMoney(max),
	}
}

func TestAnnualTax_SingleBracket(t *testing.T) {
	// GIVEN: One 15% bracket covering all income
	// WHEN: Taxing 36500 annually
	// THEN: Tax is 5475.00

	brackets := []engine.TaxBracket{bracket(0.15, 0, 100000000)}
	tax := engine.AnnualTax(engine.NewMoney(36500), brackets)
	assert.Equal(t, "5475.00", tax.String())
}

func TestAnnualTax_Progressive(t *testing.T) {
	// GIVEN: 15% to 50k, 25% from 50k to 150k
	// WHEN: Taxing 60000
	// THEN: 50000 x 0.15 + 10000 x 0.25 = 10000.00

	brackets := []engine.TaxBracket{
		bracket(0.15, 0, 50000),
		bracket(0.25, 50000, 150000),
	}
	tax := engine.AnnualTax(engine.NewMoney(60000), brackets)
	assert.Equal(t, "10000.00", tax.String())
}

func TestAnnualTax_IncomeBelowBracket(t *testing.T) {
	// GIVEN: A bracket starting at 50k
	// WHEN: Income sits entirely below it
	// THEN: That bracket contributes nothing

	brackets := []engine.TaxBracket{
		bracket(0.15, 0, 50000),
		bracket(0.25, 50000, 150000),
	}
	tax := engine.AnnualTax(engine.NewMoney(40000), brackets)
	assert.Equal(t, "6000.00", tax.String())
}

func TestAnnualTax_EmptyBrackets(t *testing.T) {
	// An empty bracket list yields zero tax, not an error.
	tax := engine.AnnualTax(engine.NewMoney(80000), nil)
	assert.True(t, tax.IsZero())
}

func TestAnnualTax_ZeroIncome(t *testing.T) {
	brackets := []engine.TaxBracket{bracket(0.15, 0, 50000)}
	tax := engine.AnnualTax(engine.ZeroMoney, brackets)
	assert.True(t, tax.IsZero())
}
