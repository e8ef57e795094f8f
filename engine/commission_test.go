package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/engine/store"
)

// =============================================================================
// COMMISSION SPLIT
// =============================================================================

func TestSplitCommission_SeventyThirty(t *testing.T) {
	// GIVEN: Invoices totalling 952.38 adjusted + 47.62 tax (gross 1000)
	// WHEN: Splitting at a 70% commission rate
	// THEN: Practitioner keeps 700, clinic keeps 300

	data := engine.AggregateCommission([]engine.CommissionRecord{
		{AdjustedTotal: engine.NewMoney(500), Tax: engine.NewMoney(25)},
		{AdjustedTotal: engine.NewMoney(452.38), Tax: engine.NewMoney(22.62)},
	})
	require.Equal(t, "1000.00", data.GrossIncome().String())

	split := engine.SplitCommission(data, decimal.NewFromFloat(0.70))
	assert.Equal(t, "1000.00", split.GrossIncome.String())
	assert.Equal(t, "700.00", split.PractitionerPay.String())
	assert.Equal(t, "300.00", split.ClinicShare.String())
}

func TestSplitCommission_FullRateKeepsEverything(t *testing.T) {
	// Student aggregation runs the split at rate 1: no clinic share.
	data := engine.AggregateCommission([]engine.CommissionRecord{
		{AdjustedTotal: engine.NewMoney(100), Tax: engine.NewMoney(5)},
	})

	split := engine.SplitCommission(data, decimal.NewFromInt(1))
	assert.Equal(t, "105.00", split.PractitionerPay.String())
	assert.True(t, split.ClinicShare.IsZero())
}

func TestAggregateCommission_Empty(t *testing.T) {
	data := engine.AggregateCommission(nil)
	assert.True(t, data.Empty())
	assert.True(t, data.GrossIncome().IsZero())
}

// =============================================================================
// NORMALIZATION
// =============================================================================

func TestExtractBaseInvoiceNumber(t *testing.T) {
	assert.Equal(t, "18269", engine.ExtractBaseInvoiceNumber("18269-C01"))
	assert.Equal(t, "18269", engine.ExtractBaseInvoiceNumber("18269"))
	assert.Equal(t, "18269", engine.ExtractBaseInvoiceNumber("18269-C01-B"))
	assert.Equal(t, "", engine.ExtractBaseInvoiceNumber(""))
}

func TestNormalizePractitionerName(t *testing.T) {
	assert.Equal(t, "Ada Li", engine.NormalizePractitionerName("Ada Li (Registered Massage Therapist)"))
	assert.Equal(t, "Ada Li", engine.NormalizePractitionerName("  Ada   Li  "))
	assert.Equal(t, "Ada Li", engine.NormalizePractitionerName("Ada (RMT) Li"))
	assert.Equal(t, "Ada Li", engine.NormalizePractitionerName("Ada Li"))
}

// =============================================================================
// POS FEE RECONCILIATION
// =============================================================================

func feeFixture() (*store.Memory, engine.ClinicSpreadsheet, []engine.CommissionRecord) {
	mem := store.NewMemory()
	sheets := engine.ClinicSpreadsheet{
		ClinicID:         "clinic-main",
		TransactionSheet: "sheet-processor",
		SettlementSheet:  "sheet-gateway",
		ProcessorKeyword: "cardpoint",
	}
	day := engine.NewDate(2026, time.August, 28)
	invoices := []engine.CommissionRecord{
		{UserID: "prac-senior", InvoiceDate: day, InvoiceNumber: "18269",
			PatientName: "Riley Moore", AdjustedTotal: engine.NewMoney(200), Tax: engine.NewMoney(10)},
	}
	return mem, sheets, invoices
}

func TestFees_MatchesTransactionAndSettlement(t *testing.T) {
	// GIVEN: A transaction and settlement both matching the invoice
	//        (same date, folded name containment, keyword, amount to the cent)
	// WHEN: Reconciling
	// THEN: The settlement's fee is attributed

	mem, sheets, invoices := feeFixture()
	day := invoices[0].InvoiceDate
	mem.AddTransactions(sheets.TransactionSheet, engine.ProcessorTransaction{
		Date: day, Payer: "RILEY MOORE", PaymentMethod: "CardPoint Visa",
		AppliedTo: "Invoice 18269, 18270", Amount: engine.NewMoney(210),
	})
	mem.AddSettlements(sheets.SettlementSheet, engine.GatewaySettlement{
		Date: day, Customer: "Riley Moore",
		CustomerCharge: engine.NewMoney(210), Fee: engine.NewMoney(6.30),
	})

	reconciler := &engine.POSFeeReconciler{Transactions: mem, Settlements: mem}
	fees, err := reconciler.Fees(context.Background(), sheets, invoices)
	require.NoError(t, err)
	assert.Equal(t, "6.30", fees.String())
}

func TestFees_NoMatchScenarios(t *testing.T) {
	day := engine.NewDate(2026, time.August, 28)

	cases := []struct {
		name       string
		tx         engine.ProcessorTransaction
		settlement engine.GatewaySettlement
	}{
		{
			name: "wrong processor keyword",
			tx: engine.ProcessorTransaction{Date: day, Payer: "Riley Moore",
				PaymentMethod: "Interac Debit", AppliedTo: "Invoice 18269", Amount: engine.NewMoney(210)},
			settlement: engine.GatewaySettlement{Date: day, Customer: "Riley Moore",
				CustomerCharge: engine.NewMoney(210), Fee: engine.NewMoney(6.30)},
		},
		{
			name: "different date",
			tx: engine.ProcessorTransaction{Date: day.AddDays(1), Payer: "Riley Moore",
				PaymentMethod: "CardPoint Visa", AppliedTo: "Invoice 18269", Amount: engine.NewMoney(210)},
			settlement: engine.GatewaySettlement{Date: day.AddDays(1), Customer: "Riley Moore",
				CustomerCharge: engine.NewMoney(210), Fee: engine.NewMoney(6.30)},
		},
		{
			name: "invoice number absent from applied-to",
			tx: engine.ProcessorTransaction{Date: day, Payer: "Riley Moore",
				PaymentMethod: "CardPoint Visa", AppliedTo: "Invoice 99999", Amount: engine.NewMoney(210)},
			settlement: engine.GatewaySettlement{Date: day, Customer: "Riley Moore",
				CustomerCharge: engine.NewMoney(210), Fee: engine.NewMoney(6.30)},
		},
		{
			name: "settlement charge off by a cent",
			tx: engine.ProcessorTransaction{Date: day, Payer: "Riley Moore",
				PaymentMethod: "CardPoint Visa", AppliedTo: "Invoice 18269", Amount: engine.NewMoney(210)},
			settlement: engine.GatewaySettlement{Date: day, Customer: "Riley Moore",
				CustomerCharge: engine.NewMoney(209.99), Fee: engine.NewMoney(6.30)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mem, sheets, invoices := feeFixture()
			mem.AddTransactions(sheets.TransactionSheet, tc.tx)
			mem.AddSettlements(sheets.SettlementSheet, tc.settlement)

			reconciler := &engine.POSFeeReconciler{Transactions: mem, Settlements: mem}
			fees, err := reconciler.Fees(context.Background(), sheets, invoices)
			require.NoError(t, err)
			assert.True(t, fees.IsZero())
		})
	}
}

func TestFees_FeedsNotConfigured(t *testing.T) {
	// Fees are an enrichment: clinics without both feeds reconcile to zero.
	mem, sheets, invoices := feeFixture()
	sheets.SettlementSheet = ""

	reconciler := &engine.POSFeeReconciler{Transactions: mem, Settlements: mem}
	fees, err := reconciler.Fees(context.Background(), sheets, invoices)
	require.NoError(t, err)
	assert.True(t, fees.IsZero())
}
