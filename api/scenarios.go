/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates settings, users,
	roles, clinic sheets and sheet rows that demonstrate specific features.

AVAILABLE SCENARIOS:

	hourly-clinic:     Hourly employee with a 45-hour overtime week
	commission-clinic: Commission practitioners with POS fees, revenue
	                   sharing and month-end rent

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save site settings
 3. Create users, roles and YTD states
 4. Configure the clinic's sheets
 5. Load sheet rows (timesheets, invoices, processor/gateway feeds)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "commission-clinic"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ListScenarios, LoadScenario handlers
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "hourly-clinic",
		Name:        "Hourly Clinic",
		Description: "Hourly employee with a 45-hour week (overtime + vacation pay)",
	},
	{
		ID:          "commission-clinic",
		Name:        "Commission Clinic",
		Description: "Commission practitioners with POS fees, revenue sharing and rent",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario resets the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "hourly-clinic":
		err = loadHourlyClinic(ctx, h.Store)
	case "commission-clinic":
		err = loadCommissionClinic(ctx, h.Store)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario_id", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SHARED SEED DATA
// =============================================================================

// demoSettings uses round figures so the demo math is easy to verify by hand.
func demoSettings() *engine.SiteSettings {
	return &engine.SiteSettings{
		FederalBrackets: []engine.TaxBracket{
			{Rate: decimal.NewFromFloat(0.15), MinIncome: engine.NewMoney(0), MaxIncome: engine.NewMoney(50000)},
			{Rate: decimal.NewFromFloat(0.25), MinIncome: engine.NewMoney(50000), MaxIncome: engine.NewMoney(150000)},
			{Rate: decimal.NewFromFloat(0.33), MinIncome: engine.NewMoney(150000), MaxIncome: engine.NewMoney(100000000)},
		},
		ProvincialBrackets: []engine.TaxBracket{
			{Rate: decimal.NewFromFloat(0.05), MinIncome: engine.NewMoney(0), MaxIncome: engine.NewMoney(45000)},
			{Rate: decimal.NewFromFloat(0.10), MinIncome: engine.NewMoney(45000), MaxIncome: engine.NewMoney(100000000)},
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

func seedUser(ctx context.Context, store *sqlite.Store, id, name string, detail engine.PaymentRoleDetail) error {
	if err := store.SaveUser(ctx, sqlite.User{ID: engine.UserID(id), Name: name}); err != nil {
		return err
	}
	if err := store.SaveState(ctx, engine.UserPayState{
		UserID:               engine.UserID(id),
		YTDPay:               engine.ZeroMoney,
		YTDDeductions:        engine.ZeroMoney,
		PensionContributed:   engine.ZeroMoney,
		InsuranceContributed: engine.ZeroMoney,
	}); err != nil {
		return err
	}
	return store.SaveRole(ctx, engine.UserID(id), detail)
}

// =============================================================================
// HOURLY CLINIC
// =============================================================================

// loadHourlyClinic seeds one hourly employee working 45 hours in the first
// week of a two-week period: 40 regular, 5 overtime at 1.5x, 4% vacation.
func loadHourlyClinic(ctx context.Context, store *sqlite.Store) error {
	if err := store.SaveSettings(ctx, demoSettings()); err != nil {
		return err
	}

	if err := seedUser(ctx, store, "emp-dana", "Dana Fox", engine.PaymentRoleDetail{
		Type:       engine.RoleHourlyEmployee,
		HourlyWage: engine.NewMoney(25),
	}); err != nil {
		return err
	}

	clinic := engine.ClinicSpreadsheet{
		ClinicID:       "clinic-main",
		TimesheetSheet: "sheet-hours",
	}
	if err := store.SaveClinic(ctx, clinic); err != nil {
		return err
	}

	// Monday 2026-08-03 through Sunday: 9 hours a day for five days.
	monday := engine.NewDate(2026, time.August, 3)
	var entries []engine.TimesheetEntry
	for day := 0; day < 5; day++ {
		entries = append(entries, engine.TimesheetEntry{
			UserID:  "emp-dana",
			Date:    monday.AddDays(day),
			Minutes: 9 * 60,
		})
	}
	return store.ReplaceTimesheet(ctx, clinic.TimesheetSheet, entries)
}

// =============================================================================
// COMMISSION CLINIC
// =============================================================================

// loadCommissionClinic seeds a senior practitioner who collects 10% of an
// associate's gross and 30% of student revenue, pays month-end rent, and has
// invoices with matching processor/gateway fee rows.
func loadCommissionClinic(ctx context.Context, store *sqlite.Store) error {
	if err := store.SaveSettings(ctx, demoSettings()); err != nil {
		return err
	}

	users := []struct {
		id, name string
		detail   engine.PaymentRoleDetail
	}{
		{"prac-senior", "Morgan Hale", engine.PaymentRoleDetail{
			Type: engine.RoleCommissionContractor, CommissionRate: decimal.NewFromFloat(0.75)}},
		{"prac-assoc", "Jules Ortiz", engine.PaymentRoleDetail{
			Type: engine.RoleCommissionEmployee, CommissionRate: decimal.NewFromFloat(0.70)}},
		{"stu-kim", "Kim Aoki", engine.PaymentRoleDetail{
			Type: engine.RoleStudent, CommissionRate: decimal.NewFromFloat(1)}},
	}
	for _, u := range users {
		if err := seedUser(ctx, store, u.id, u.name, u.detail); err != nil {
			return err
		}
	}

	if err := store.SaveRent(ctx, engine.RentRole{
		UserID:      "prac-senior",
		MonthlyRent: engine.NewMoney(500),
		Description: "Room 2 rent",
	}); err != nil {
		return err
	}

	rules := []engine.RevenueSharingRule{
		{ID: "rule-assoc", OwnerID: "prac-senior", Rate: decimal.NewFromFloat(0.10),
			TargetKind: engine.TargetSpecificUser, TargetUser: "prac-assoc"},
		{ID: "rule-students", OwnerID: "prac-senior", Rate: decimal.NewFromFloat(0.30),
			TargetKind: engine.TargetAllStudents},
	}
	for _, rule := range rules {
		if err := store.SaveRule(ctx, rule); err != nil {
			return err
		}
	}

	clinic := engine.ClinicSpreadsheet{
		ClinicID:         "clinic-main",
		CommissionSheet:  "sheet-invoices",
		TransactionSheet: "sheet-processor",
		SettlementSheet:  "sheet-gateway",
		ProcessorKeyword: "cardpoint",
	}
	if err := store.SaveClinic(ctx, clinic); err != nil {
		return err
	}

	invoiceDay := engine.NewDate(2026, time.August, 28)
	invoices := []engine.CommissionRecord{
		{UserID: "prac-senior", InvoiceDate: invoiceDay, InvoiceNumber: "18269",
			PatientName: "Riley Moore", AdjustedTotal: engine.NewMoney(200), Tax: engine.NewMoney(10)},
		{UserID: "prac-assoc", InvoiceDate: invoiceDay, InvoiceNumber: "18270",
			PatientName: "Sasha Lin", AdjustedTotal: engine.NewMoney(150), Tax: engine.NewMoney(7.50)},
		{UserID: "stu-kim", InvoiceDate: invoiceDay, InvoiceNumber: "18271",
			PatientName: "Avery Cole", AdjustedTotal: engine.NewMoney(100), Tax: engine.NewMoney(5)},
	}
	if err := store.ReplaceCommissions(ctx, clinic.CommissionSheet, invoices); err != nil {
		return err
	}

	transactions := []engine.ProcessorTransaction{
		{Date: invoiceDay, Payer: "Riley Moore", PaymentMethod: "CardPoint Visa",
			AppliedTo: "Invoice 18269", Amount: engine.NewMoney(210)},
	}
	if err := store.ReplaceTransactions(ctx, clinic.TransactionSheet, transactions); err != nil {
		return err
	}

	settlements := []engine.GatewaySettlement{
		{Date: invoiceDay, Customer: "Riley Moore",
			CustomerCharge: engine.NewMoney(210), Fee: engine.NewMoney(6.30)},
	}
	return store.ReplaceSettlements(ctx, clinic.SettlementSheet, settlements)
}
