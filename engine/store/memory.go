// Package store provides an in-memory implementation of every collaborator
// interface the engine consumes, for tests and dev mode.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// MEMORY - One store backing all collaborator interfaces
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	settings *engine.SiteSettings
	states   map[engine.UserID]engine.UserPayState
	details  map[engine.UserID]engine.PaymentRoleDetail
	rents    map[engine.UserID]engine.RentRole
	rules    []engine.RevenueSharingRule
	clinics  map[engine.ClinicID]engine.ClinicSpreadsheet

	timesheet   map[engine.SheetID][]engine.TimesheetEntry
	commissions map[engine.SheetID][]engine.CommissionRecord
	txns        map[engine.SheetID][]engine.ProcessorTransaction
	settlements map[engine.SheetID][]engine.GatewaySettlement

	results map[resultKey]*engine.PayrollResult
}

type resultKey struct {
	User  engine.UserID
	Start string
	End   string
}

func NewMemory() *Memory {
	return &Memory{
		states:      make(map[engine.UserID]engine.UserPayState),
		details:     make(map[engine.UserID]engine.PaymentRoleDetail),
		rents:       make(map[engine.UserID]engine.RentRole),
		clinics:     make(map[engine.ClinicID]engine.ClinicSpreadsheet),
		timesheet:   make(map[engine.SheetID][]engine.TimesheetEntry),
		commissions: make(map[engine.SheetID][]engine.CommissionRecord),
		txns:        make(map[engine.SheetID][]engine.ProcessorTransaction),
		settlements: make(map[engine.SheetID][]engine.GatewaySettlement),
		results:     make(map[resultKey]*engine.PayrollResult),
	}
}

// =============================================================================
// SEEDING - Test/dev setup
// =============================================================================

func (m *Memory) SetSettings(s *engine.SiteSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
}

func (m *Memory) PutUser(id engine.UserID, detail engine.PaymentRoleDetail, state engine.UserPayState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.UserID = id
	m.details[id] = detail
	m.states[id] = state
}

func (m *Memory) PutRent(rent engine.RentRole) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rents[rent.UserID] = rent
}

func (m *Memory) AddRule(rule engine.RevenueSharingRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
}

func (m *Memory) PutClinic(sheets engine.ClinicSpreadsheet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clinics[sheets.ClinicID] = sheets
}

func (m *Memory) AddTimesheet(sheetID engine.SheetID, entries ...engine.TimesheetEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timesheet[sheetID] = append(m.timesheet[sheetID], entries...)
}

func (m *Memory) AddCommissions(sheetID engine.SheetID, records ...engine.CommissionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commissions[sheetID] = append(m.commissions[sheetID], records...)
}

func (m *Memory) AddTransactions(sheetID engine.SheetID, rows ...engine.ProcessorTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[sheetID] = append(m.txns[sheetID], rows...)
}

func (m *Memory) AddSettlements(sheetID engine.SheetID, rows ...engine.GatewaySettlement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[sheetID] = append(m.settlements[sheetID], rows...)
}

// =============================================================================
// SettingsStore / UserStateStore
// =============================================================================

func (m *Memory) Current(_ context.Context) (*engine.SiteSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return nil, &engine.ConfigurationError{Field: "settings", Reason: "not configured"}
	}
	return m.settings, nil
}

func (m *Memory) Get(_ context.Context, userID engine.UserID) (engine.UserPayState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[userID]
	if !ok {
		return engine.UserPayState{}, engine.ErrUserNotFound
	}
	return state, nil
}

func (m *Memory) ApplyFinalized(_ context.Context, userID engine.UserID, earningsDelta, deductionsDelta, pensionAfter, insuranceAfter engine.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[userID]
	if !ok {
		return engine.ErrUserNotFound
	}
	state.YTDPay = state.YTDPay.Add(earningsDelta)
	state.YTDDeductions = state.YTDDeductions.Add(deductionsDelta)
	state.PensionContributed = pensionAfter
	state.InsuranceContributed = insuranceAfter
	m.states[userID] = state
	return nil
}

// =============================================================================
// RoleRegistry / SharingRuleStore / ClinicStore
// =============================================================================

func (m *Memory) DetailFor(_ context.Context, userID engine.UserID) (engine.PaymentRoleDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	detail, ok := m.details[userID]
	if !ok {
		return engine.PaymentRoleDetail{}, engine.ErrMissingRoleDetail
	}
	return detail, nil
}

func (m *Memory) RentFor(_ context.Context, userID engine.UserID) (*engine.RentRole, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rent, ok := m.rents[userID]
	if !ok {
		return nil, nil
	}
	return &rent, nil
}

func (m *Memory) Students(_ context.Context) ([]engine.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var students []engine.UserID
	for id, detail := range m.details {
		if detail.Type == engine.RoleStudent {
			students = append(students, id)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i] < students[j] })
	return students, nil
}

func (m *Memory) RulesFor(_ context.Context, userID engine.UserID) ([]engine.RevenueSharingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var owned []engine.RevenueSharingRule
	for _, rule := range m.rules {
		if rule.OwnerID == userID {
			owned = append(owned, rule)
		}
	}
	return owned, nil
}

func (m *Memory) RulesTargeting(_ context.Context, userID engine.UserID) ([]engine.RevenueSharingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var targeting []engine.RevenueSharingRule
	for _, rule := range m.rules {
		if rule.TargetKind == engine.TargetSpecificUser && rule.TargetUser == userID {
			targeting = append(targeting, rule)
		}
	}
	return targeting, nil
}

func (m *Memory) SpreadsheetFor(_ context.Context, clinicID engine.ClinicID) (engine.ClinicSpreadsheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sheets, ok := m.clinics[clinicID]
	if !ok {
		return engine.ClinicSpreadsheet{}, &engine.MissingSourceError{ClinicID: clinicID, Source: "clinic"}
	}
	return sheets, nil
}

// =============================================================================
// Sheet feeds
// =============================================================================

func (m *Memory) HoursByDateRange(_ context.Context, sheetID engine.SheetID, userID engine.UserID, start, end engine.Date) (map[engine.Date]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	minutes := make(map[engine.Date]int)
	for _, entry := range m.timesheet[sheetID] {
		if entry.UserID == userID && entry.Date.AfterOrEqual(start) && entry.Date.BeforeOrEqual(end) {
			minutes[entry.Date] += entry.Minutes
		}
	}
	return minutes, nil
}

func (m *Memory) HoursForDates(_ context.Context, sheetID engine.SheetID, userID engine.UserID, dates []engine.Date) (map[engine.Date]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[engine.Date]bool, len(dates))
	for _, d := range dates {
		wanted[d] = true
	}
	minutes := make(map[engine.Date]int)
	for _, entry := range m.timesheet[sheetID] {
		if entry.UserID == userID && wanted[entry.Date] {
			minutes[entry.Date] += entry.Minutes
		}
	}
	return minutes, nil
}

func (m *Memory) InvoicesByDateRange(_ context.Context, sheetID engine.SheetID, userID engine.UserID, start, end engine.Date) ([]engine.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []engine.CommissionRecord
	for _, rec := range m.commissions[sheetID] {
		if rec.UserID == userID && rec.InvoiceDate.AfterOrEqual(start) && rec.InvoiceDate.BeforeOrEqual(end) {
			rows = append(rows, rec)
		}
	}
	return rows, nil
}

func (m *Memory) TransactionsByDateRange(_ context.Context, sheetID engine.SheetID, start, end engine.Date) ([]engine.ProcessorTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []engine.ProcessorTransaction
	for _, tx := range m.txns[sheetID] {
		if tx.Date.AfterOrEqual(start) && tx.Date.BeforeOrEqual(end) {
			rows = append(rows, tx)
		}
	}
	return rows, nil
}

func (m *Memory) SettlementsByDateRange(_ context.Context, sheetID engine.SheetID, start, end engine.Date) ([]engine.GatewaySettlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []engine.GatewaySettlement
	for _, s := range m.settlements[sheetID] {
		if s.Date.AfterOrEqual(start) && s.Date.BeforeOrEqual(end) {
			rows = append(rows, s)
		}
	}
	return rows, nil
}

// =============================================================================
// ResultStore
// =============================================================================

func keyOf(userID engine.UserID, period engine.Period) resultKey {
	return resultKey{User: userID, Start: period.Start.String(), End: period.End.String()}
}

func (m *Memory) GetOrNil(_ context.Context, userID engine.UserID, period engine.Period) (*engine.PayrollResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.results[keyOf(userID, period)]
	if !ok {
		return nil, nil
	}
	copied := *result
	return &copied, nil
}

// Upsert replaces any existing result for the key under one lock, matching
// the atomicity the engine requires of production stores.
func (m *Memory) Upsert(_ context.Context, result *engine.PayrollResult) (*engine.PayrollResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := keyOf(result.UserID, result.Period)
	if existing, ok := m.results[key]; ok && result.PayrollNumber == "" {
		result.PayrollNumber = existing.PayrollNumber
	}
	copied := *result
	m.results[key] = &copied
	out := copied
	return &out, nil
}

func (m *Memory) ListByUser(_ context.Context, userID engine.UserID) ([]*engine.PayrollResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []*engine.PayrollResult
	for key, result := range m.results {
		if key.User == userID {
			copied := *result
			results = append(results, &copied)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Period.Start.After(results[j].Period.Start)
	})
	return results, nil
}

// ResultCount reports how many results are stored, for idempotence tests.
func (m *Memory) ResultCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}
