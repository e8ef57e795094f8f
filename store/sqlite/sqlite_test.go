package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_Roundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Unconfigured settings are a configuration error, not a nil snapshot.
	_, err := store.Current(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInvalidConfiguration)

	settings := &engine.SiteSettings{
		FederalBrackets: []engine.TaxBracket{
			{Rate: decimal.NewFromFloat(0.15), MinIncome: engine.NewMoney(0), MaxIncome: engine.NewMoney(50000)},
		},
		PensionRate:        decimal.NewFromFloat(0.0595),
		PensionExemption:   engine.NewMoney(3500),
		PensionCap:         engine.NewMoney(3867.50),
		InsuranceRate:      decimal.NewFromFloat(0.0166),
		InsuranceCap:       engine.NewMoney(1049.12),
		VacationRate:       decimal.NewFromFloat(0.04),
		OvertimeMultiplier: decimal.NewFromFloat(1.5),
	}
	require.NoError(t, store.SaveSettings(ctx, settings))

	got, err := store.Current(ctx)
	require.NoError(t, err)
	require.Len(t, got.FederalBrackets, 1)
	assert.True(t, got.PensionCap.Equal(engine.NewMoney(3867.50)))
	assert.Equal(t, "0.04", got.VacationRate.String())

	// Saving again replaces the single snapshot row.
	settings.VacationRate = decimal.NewFromFloat(0.06)
	require.NoError(t, store.SaveSettings(ctx, settings))
	got, err = store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.06", got.VacationRate.String())
}

// =============================================================================
// USERS AND NORMALIZED-NAME RESOLUTION
// =============================================================================

func TestUsers_NormalizedNameLookup(t *testing.T) {
	// GIVEN: A stored user named "Ada Li"
	// WHEN: Resolving sheet names carrying parenthetical qualifiers
	// THEN: The lookup normalizes both sides and matches

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveUser(ctx, User{ID: "u1", Name: "Ada Li"}))

	id, err := store.UserIDByName(ctx, "Ada Li (Registered Massage Therapist)")
	require.NoError(t, err)
	assert.Equal(t, engine.UserID("u1"), id)

	id, err = store.UserIDByName(ctx, "  Ada   Li ")
	require.NoError(t, err)
	assert.Equal(t, engine.UserID("u1"), id)

	_, err = store.UserIDByName(ctx, "Nobody Here")
	assert.ErrorIs(t, err, engine.ErrUserNotFound)
}

func TestUsers_SaveIsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveUser(ctx, User{ID: "u1", Name: "Ada Li"}))
	require.NoError(t, store.SaveUser(ctx, User{ID: "u1", Name: "Ada Li-Brown", Email: "ada@clinic.test"}))

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Ada Li-Brown", u.Name)
	assert.Equal(t, "ada@clinic.test", u.Email)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	missing, err := store.GetUser(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// =============================================================================
// USER STATE
// =============================================================================

func TestState_ApplyFinalized(t *testing.T) {
	// GIVEN: A fresh YTD state
	// WHEN: Applying two finalized payrolls
	// THEN: Pay/deductions accumulate; contribution counters are overwritten
	//       with their cap-after values

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveState(ctx, engine.UserPayState{UserID: "u1"}))

	require.NoError(t, store.ApplyFinalized(ctx, "u1",
		engine.NewMoney(1235), engine.NewMoney(259.35),
		engine.NewMoney(61.75), engine.NewMoney(12.35)))
	require.NoError(t, store.ApplyFinalized(ctx, "u1",
		engine.NewMoney(1000), engine.NewMoney(200),
		engine.NewMoney(111.75), engine.NewMoney(22.35)))

	state, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2235.00", state.YTDPay.String())
	assert.Equal(t, "459.35", state.YTDDeductions.String())
	assert.Equal(t, "111.75", state.PensionContributed.String())
	assert.Equal(t, "22.35", state.InsuranceContributed.String())
}

func TestState_UnknownUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "ghost")
	assert.ErrorIs(t, err, engine.ErrUserNotFound)

	err = store.ApplyFinalized(ctx, "ghost",
		engine.NewMoney(1), engine.NewMoney(1), engine.ZeroMoney, engine.ZeroMoney)
	assert.ErrorIs(t, err, engine.ErrUserNotFound)
}

// =============================================================================
// ROLES
// =============================================================================

func TestRoles_RoundtripAndStudents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRole(ctx, "u1", engine.PaymentRoleDetail{
		Type: engine.RoleHourlyEmployee, HourlyWage: engine.NewMoney(25),
	}))
	require.NoError(t, store.SaveRole(ctx, "stu-1", engine.PaymentRoleDetail{
		Type: engine.RoleStudent, CommissionRate: decimal.NewFromInt(1),
	}))
	require.NoError(t, store.SaveRole(ctx, "stu-2", engine.PaymentRoleDetail{
		Type: engine.RoleStudent, CommissionRate: decimal.NewFromInt(1),
	}))

	detail, err := store.DetailFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, engine.RoleHourlyEmployee, detail.Type)
	assert.Equal(t, "25.00", detail.HourlyWage.String())

	_, err = store.DetailFor(ctx, "ghost")
	assert.ErrorIs(t, err, engine.ErrMissingRoleDetail)

	students, err := store.Students(ctx)
	require.NoError(t, err)
	assert.Equal(t, []engine.UserID{"stu-1", "stu-2"}, students)

	// Re-saving replaces, never duplicates.
	require.NoError(t, store.SaveRole(ctx, "u1", engine.PaymentRoleDetail{
		Type: engine.RoleCommissionEmployee, CommissionRate: decimal.NewFromFloat(0.70),
	}))
	detail, err = store.DetailFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, engine.RoleCommissionEmployee, detail.Type)
	assert.Equal(t, "0.7", detail.CommissionRate.String())
}

func TestRent_RoundtripAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rent, err := store.RentFor(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, rent)

	require.NoError(t, store.SaveRent(ctx, engine.RentRole{
		UserID: "u1", MonthlyRent: engine.NewMoney(500), Description: "Room 2 rent",
	}))

	rent, err = store.RentFor(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, rent)
	assert.Equal(t, "500.00", rent.MonthlyRent.String())
	assert.Equal(t, "Room 2 rent", rent.Description)

	require.NoError(t, store.DeleteRent(ctx, "u1"))
	rent, err = store.RentFor(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, rent)
}

// =============================================================================
// SHARING RULES
// =============================================================================

func TestRules_OwnerAndTargetQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRule(ctx, engine.RevenueSharingRule{
		ID: "rule-assoc", OwnerID: "senior", Rate: decimal.NewFromFloat(0.10),
		TargetKind: engine.TargetSpecificUser, TargetUser: "assoc",
	}))
	require.NoError(t, store.SaveRule(ctx, engine.RevenueSharingRule{
		ID: "rule-students", OwnerID: "senior", Rate: decimal.NewFromFloat(0.30),
		TargetKind: engine.TargetAllStudents,
	}))

	owned, err := store.RulesFor(ctx, "senior")
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	targeting, err := store.RulesTargeting(ctx, "assoc")
	require.NoError(t, err)
	require.Len(t, targeting, 1)
	assert.Equal(t, "rule-assoc", targeting[0].ID)
	assert.Equal(t, engine.UserID("senior"), targeting[0].OwnerID)
	assert.Equal(t, "0.1", targeting[0].Rate.String())

	// all_students rules never come back from a specific-target query.
	targeting, err = store.RulesTargeting(ctx, "senior")
	require.NoError(t, err)
	assert.Empty(t, targeting)

	all, err := store.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.DeleteRule(ctx, "rule-assoc"))
	owned, err = store.RulesFor(ctx, "senior")
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

// =============================================================================
// CLINICS
// =============================================================================

func TestClinics_Roundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SpreadsheetFor(ctx, "ghost")
	assert.ErrorIs(t, err, engine.ErrMissingDataSource)

	sheets := engine.ClinicSpreadsheet{
		ClinicID:         "clinic-main",
		CommissionSheet:  "sheet-invoices",
		TransactionSheet: "sheet-processor",
		SettlementSheet:  "sheet-gateway",
		ProcessorKeyword: "cardpoint",
	}
	require.NoError(t, store.SaveClinic(ctx, sheets))

	got, err := store.SpreadsheetFor(ctx, "clinic-main")
	require.NoError(t, err)
	assert.Equal(t, sheets, got)

	clinics, err := store.ListClinics(ctx)
	require.NoError(t, err)
	assert.Len(t, clinics, 1)
}

// =============================================================================
// SHEET FEEDS
// =============================================================================

func TestTimesheet_ReplaceAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sheet := engine.SheetID("sheet-hours")
	monday := engine.NewDate(2026, time.August, 3)

	// Two entries on the same day sum in the daily map.
	require.NoError(t, store.ReplaceTimesheet(ctx, sheet, []engine.TimesheetEntry{
		{UserID: "u1", Date: monday, Minutes: 300},
		{UserID: "u1", Date: monday, Minutes: 240},
		{UserID: "u1", Date: monday.AddDays(1), Minutes: 480},
		{UserID: "u2", Date: monday, Minutes: 60},
	}))

	daily, err := store.HoursByDateRange(ctx, sheet, "u1", monday, monday.AddDays(6))
	require.NoError(t, err)
	assert.Equal(t, 540, daily[monday])
	assert.Equal(t, 480, daily[monday.AddDays(1)])
	assert.Len(t, daily, 2)

	specific, err := store.HoursForDates(ctx, sheet, "u1", []engine.Date{monday})
	require.NoError(t, err)
	assert.Equal(t, map[engine.Date]int{monday: 540}, specific)

	// Re-upload fully replaces: the old rows must not survive.
	require.NoError(t, store.ReplaceTimesheet(ctx, sheet, []engine.TimesheetEntry{
		{UserID: "u1", Date: monday, Minutes: 120},
	}))
	daily, err = store.HoursByDateRange(ctx, sheet, "u1", monday, monday.AddDays(6))
	require.NoError(t, err)
	assert.Equal(t, map[engine.Date]int{monday: 120}, daily)
}

func TestCommissionFeed_RangeQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sheet := engine.SheetID("sheet-invoices")
	day := engine.NewDate(2026, time.August, 28)

	require.NoError(t, store.ReplaceCommissions(ctx, sheet, []engine.CommissionRecord{
		{UserID: "u1", InvoiceDate: day, InvoiceNumber: "18269",
			PatientName: "Riley Moore", AdjustedTotal: engine.NewMoney(200), Tax: engine.NewMoney(10)},
		{UserID: "u1", InvoiceDate: day.AddDays(10), InvoiceNumber: "18300",
			PatientName: "Sasha Lin", AdjustedTotal: engine.NewMoney(90), Tax: engine.NewMoney(4.50)},
		{UserID: "u2", InvoiceDate: day, InvoiceNumber: "18270",
			PatientName: "Avery Cole", AdjustedTotal: engine.NewMoney(150), Tax: engine.NewMoney(7.50)},
	}))

	invoices, err := store.InvoicesByDateRange(ctx, sheet, "u1", day, day.AddDays(6))
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "18269", invoices[0].InvoiceNumber)
	assert.Equal(t, "200.00", invoices[0].AdjustedTotal.String())
	assert.True(t, invoices[0].InvoiceDate.Equal(day))
}

func TestProcessorAndGatewayFeeds_RangeQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := engine.NewDate(2026, time.August, 28)

	require.NoError(t, store.ReplaceTransactions(ctx, "sheet-processor", []engine.ProcessorTransaction{
		{Date: day, Payer: "Riley Moore", PaymentMethod: "CardPoint Visa",
			AppliedTo: "Invoice 18269", Amount: engine.NewMoney(210)},
		{Date: day.AddDays(20), Payer: "Out Of Range", PaymentMethod: "CardPoint Visa",
			AppliedTo: "Invoice 19999", Amount: engine.NewMoney(50)},
	}))
	require.NoError(t, store.ReplaceSettlements(ctx, "sheet-gateway", []engine.GatewaySettlement{
		{Date: day, Customer: "Riley Moore", CustomerCharge: engine.NewMoney(210), Fee: engine.NewMoney(6.30)},
	}))

	txs, err := store.TransactionsByDateRange(ctx, "sheet-processor", day, day.AddDays(6))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "210.00", txs[0].Amount.String())

	settlements, err := store.SettlementsByDateRange(ctx, "sheet-gateway", day, day.AddDays(6))
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, "6.30", settlements[0].Fee.String())
}

// =============================================================================
// RESULTS
// =============================================================================

func sampleResult(user engine.UserID, start engine.Date) *engine.PayrollResult {
	return &engine.PayrollResult{
		PayrollNumber: "",
		UserID:        user,
		ClinicID:      "clinic-main",
		Period:        engine.Period{Start: start, End: start.AddDays(6)},
		RoleType:      engine.RoleHourlyEmployee,
		Totals: engine.Totals{
			TotalEarnings:   engine.NewMoney(1235),
			TotalDeductions: engine.NewMoney(259.35),
			NetPayment:      engine.NewMoney(975.65),
		},
	}
}

func TestResults_UpsertPreservesPayrollNumber(t *testing.T) {
	// GIVEN: A stored result numbered PAY-X
	// WHEN: Recomputation upserts the same (user, period) with a new number
	// THEN: The original number wins and no second row appears

	store := newTestStore(t)
	ctx := context.Background()
	start := engine.NewDate(2026, time.August, 3)

	first := sampleResult("u1", start)
	first.PayrollNumber = "PAY-20260810-u1-ABC123"
	_, err := store.Upsert(ctx, first)
	require.NoError(t, err)

	second := sampleResult("u1", start)
	second.PayrollNumber = "PAY-20260811-u1-ZZZ999"
	second.Totals.NetPayment = engine.NewMoney(900)
	stored, err := store.Upsert(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, "PAY-20260810-u1-ABC123", stored.PayrollNumber)

	got, err := store.GetOrNil(ctx, "u1", engine.Period{Start: start, End: start.AddDays(6)})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "PAY-20260810-u1-ABC123", got.PayrollNumber)
	assert.Equal(t, "900.00", got.Totals.NetPayment.String())

	results, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestResults_GetOrNilMissing(t *testing.T) {
	store := newTestStore(t)
	period := engine.Period{
		Start: engine.NewDate(2026, time.August, 3),
		End:   engine.NewDate(2026, time.August, 9),
	}

	got, err := store.GetOrNil(context.Background(), "ghost", period)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResults_ListByUserNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := sampleResult("u1", engine.NewDate(2026, time.July, 6))
	older.PayrollNumber = "PAY-1"
	newer := sampleResult("u1", engine.NewDate(2026, time.August, 3))
	newer.PayrollNumber = "PAY-2"

	_, err := store.Upsert(ctx, older)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, newer)
	require.NoError(t, err)

	results, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "PAY-2", results[0].PayrollNumber)
	assert.Equal(t, "PAY-1", results[1].PayrollNumber)
}

func TestReset_ClearsEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveUser(ctx, User{ID: "u1", Name: "Ada Li"}))
	require.NoError(t, store.SaveRent(ctx, engine.RentRole{UserID: "u1", MonthlyRent: engine.NewMoney(500)}))
	require.NoError(t, store.Reset(ctx))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	rent, err := store.RentFor(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, rent)
}
