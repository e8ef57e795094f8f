/*
tax.go - Progressive tax bracket engine

PURPOSE:
  Computes annual tax owed on an annualized income figure against an ordered
  bracket list. Pure function, no side effects. Invoked twice per deduction
  pass (federal and provincial) and a third time when revenue-sharing income
  changes the taxable base.

ALGORITHM:
  Brackets are evaluated in ascending MinIncome order. Each bracket's rate
  applies only to the slice of income between its min and max. Evaluation
  stops at the first bracket whose min meets or exceeds the income. An empty
  bracket list yields zero tax.

SEE ALSO:
  - deductions.go: Annualizes period income and prorates the result back
*/
package engine

// AnnualTax returns the progressive tax on annualIncome, rounded half-up to
// the cent.
func AnnualTax(annualIncome Money, brackets []TaxBracket) Money {
	total := ZeroMoney
	for _, bracket := range brackets {
		if !annualIncome.GreaterThan(bracket.MinIncome) {
			break
		}
		taxable := annualIncome.Min(bracket.MaxIncome).Sub(bracket.MinIncome)
		if taxable.IsPositive() {
			total = total.Add(taxable.Mul(bracket.Rate))
		}
	}
	return total.Cents()
}
