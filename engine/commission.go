/*
commission.go - Invoice/POS reconciliation and commission split

PURPOSE:
  Two responsibilities:
  1. Reconcile a practitioner's invoices against the card-processor
     transaction feed and the payment-gateway settlement feed to find the
     processing fees attributable to them.
  2. Split invoiced gross revenue (adjusted total + tax) into the
     practitioner share and the clinic share at the commission rate.

FEED DISCIPLINE:
  Both feeds are fetched ONCE for the full date span of all invoices. The
  matching loops run over pre-fetched rows, so the number of external calls
  is two regardless of invoice count.

MATCHING ALGORITHM (per invoice):
  processor transaction matches when: same date, payer contains the patient
  name (case-insensitive), payment method contains the processor keyword
  (case-insensitive), and the applied-to field contains the base invoice
  number. For each matching transaction, a gateway settlement matches when:
  same date, customer contains the patient name (case-insensitive), and the
  customer charge equals the transaction amount to the cent. The fees of all
  settlement matches are summed.

SEE ALSO:
  - calculator.go: Commission strategies consuming these results
  - sharing.go: Student aggregation reuses the 100%-rate split
*/
package engine

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// CommissionData aggregates a user's invoices for the period.
type CommissionData struct {
	AdjustedTotal Money
	Tax           Money
	Invoices      []CommissionRecord
}

// GrossIncome is adjusted total + collected tax: the figure commission
// rates and revenue-sharing rates apply to.
func (c CommissionData) GrossIncome() Money {
	return c.AdjustedTotal.Add(c.Tax)
}

// Empty reports whether the period had no invoices at all.
func (c CommissionData) Empty() bool { return len(c.Invoices) == 0 }

// AggregateCommission folds invoice rows into CommissionData.
func AggregateCommission(invoices []CommissionRecord) CommissionData {
	data := CommissionData{AdjustedTotal: ZeroMoney, Tax: ZeroMoney, Invoices: invoices}
	for _, inv := range invoices {
		data.AdjustedTotal = data.AdjustedTotal.Add(inv.AdjustedTotal)
		data.Tax = data.Tax.Add(inv.Tax)
	}
	return data
}

// ExtractBaseInvoiceNumber strips any suffix after the first dash:
// "18269-C01" → "18269".
func ExtractBaseInvoiceNumber(invoice string) string {
	if invoice == "" {
		return ""
	}
	return strings.SplitN(invoice, "-", 2)[0]
}

// NormalizePractitionerName removes parenthetical qualifiers and collapses
// whitespace: "Ada Li (Registered Massage Therapist)" → "Ada Li".
func NormalizePractitionerName(name string) string {
	var b strings.Builder
	depth := 0
	for _, r := range name {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// =============================================================================
// POS FEE RECONCILER
// =============================================================================

// POSFeeReconciler matches invoices to processor transactions and gateway
// settlements to total the fees charged on a practitioner's revenue.
type POSFeeReconciler struct {
	Transactions TransactionFeed
	Settlements  SettlementFeed
}

// Fees returns the total processing fees attributable to the invoices.
// Returns zero without fetching when there are no dated invoices or the
// clinic lacks either feed (fees are an enrichment, not a hard dependency).
func (r *POSFeeReconciler) Fees(ctx context.Context, sheets ClinicSpreadsheet, invoices []CommissionRecord) (Money, error) {
	span, ok := invoiceSpan(invoices)
	if !ok {
		return ZeroMoney, nil
	}
	if sheets.TransactionSheet == "" || sheets.SettlementSheet == "" {
		return ZeroMoney, nil
	}

	transactions, err := r.Transactions.TransactionsByDateRange(ctx, sheets.TransactionSheet, span.Start, span.End)
	if err != nil {
		return ZeroMoney, &FetchError{Feed: "processor transactions", Period: span, Err: err}
	}
	settlements, err := r.Settlements.SettlementsByDateRange(ctx, sheets.SettlementSheet, span.Start, span.End)
	if err != nil {
		return ZeroMoney, &FetchError{Feed: "gateway settlements", Period: span, Err: err}
	}

	total := ZeroMoney
	for _, invoice := range invoices {
		if invoice.InvoiceDate.IsZero() || invoice.InvoiceNumber == "" || invoice.PatientName == "" {
			continue
		}
		for _, tx := range transactions {
			if !matchesTransaction(tx, invoice, sheets.ProcessorKeyword) {
				continue
			}
			for _, settlement := range settlements {
				if matchesSettlement(settlement, invoice, tx.Amount) {
					total = total.Add(settlement.Fee)
				}
			}
		}
	}
	return total, nil
}

func invoiceSpan(invoices []CommissionRecord) (Period, bool) {
	var span Period
	found := false
	for _, inv := range invoices {
		if inv.InvoiceDate.IsZero() {
			continue
		}
		if !found {
			span = Period{Start: inv.InvoiceDate, End: inv.InvoiceDate}
			found = true
			continue
		}
		if inv.InvoiceDate.Before(span.Start) {
			span.Start = inv.InvoiceDate
		}
		if inv.InvoiceDate.After(span.End) {
			span.End = inv.InvoiceDate
		}
	}
	return span, found
}

func matchesTransaction(tx ProcessorTransaction, invoice CommissionRecord, processorKeyword string) bool {
	return tx.Date.Equal(invoice.InvoiceDate) &&
		containsFold(tx.Payer, invoice.PatientName) &&
		containsFold(tx.PaymentMethod, processorKeyword) &&
		strings.Contains(tx.AppliedTo, invoice.InvoiceNumber)
}

func matchesSettlement(s GatewaySettlement, invoice CommissionRecord, txAmount Money) bool {
	return s.Date.Equal(invoice.InvoiceDate) &&
		containsFold(s.Customer, invoice.PatientName) &&
		s.CustomerCharge.Cents().Equal(txAmount.Cents())
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// =============================================================================
// COMMISSION SPLIT
// =============================================================================

// CommissionSplit is the practitioner/clinic division of invoiced gross.
type CommissionSplit struct {
	GrossIncome     Money
	PractitionerPay Money // gross × rate
	ClinicShare     Money // gross × (1 − rate)
}

// SplitCommission divides gross revenue at the commission rate (a fraction).
func SplitCommission(data CommissionData, rate decimal.Decimal) CommissionSplit {
	gross := data.GrossIncome()
	return CommissionSplit{
		GrossIncome:     gross,
		PractitionerPay: gross.Mul(rate),
		ClinicShare:     gross.Mul(decimal.NewFromInt(1).Sub(rate)),
	}
}
