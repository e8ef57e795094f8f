/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine and store.

ENDPOINTS:
  Payroll:
    POST   /api/payrolls/generate       Compute a payroll (not persisted)
    POST   /api/payrolls/send           Recompute, persist and apply YTD
    GET    /api/users/{id}/payrolls     Stored payroll records, newest first

  Users:
    GET    /api/users                   List practitioners
    POST   /api/users                   Create/update practitioner
    GET    /api/users/{id}              Practitioner with role and YTD state
    PUT    /api/users/{id}/role         Set payment role
    PUT    /api/users/{id}/state        Seed year-to-date figures
    PUT    /api/users/{id}/rent         Set monthly rent deduction
    DELETE /api/users/{id}/rent         Remove rent deduction

  Sharing rules:
    GET    /api/rules                   List the rule graph
    POST   /api/rules                   Create/update a rule
    DELETE /api/rules/{id}              Delete a rule

  Admin:
    GET    /api/admin/settings          Current site settings
    PUT    /api/admin/settings          Replace site settings
    GET    /api/clinics                 List clinic sheet configurations
    POST   /api/clinics                 Create/update a clinic
    POST   /api/clinics/{id}/sheets/{kind}  CSV sheet upload (uploads.go)

ERROR HANDLING:
  Domain errors (missing configuration, no data, ineligible role) map to
  400; missing records map to 404; everything else is a 500. The engine's
  IsClientError/IsNotFound helpers do the classification.

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - uploads.go: CSV sheet ingestion
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *engine.Engine
	Logger *logrus.Logger
}

// NewHandler wires the engine to the store and returns a handler.
func NewHandler(store *sqlite.Store, logger *logrus.Logger) *Handler {
	return &Handler{
		Store: store,
		Engine: &engine.Engine{
			Settings:     store,
			UserState:    store,
			Roles:        store,
			SharingRules: store,
			Clinics:      store,
			Timesheets:   store,
			Commissions:  store,
			Transactions: store,
			Settlements:  store,
			Results:      store,
			Notifier:     &engine.LogNotifier{Logger: logger},
			Logger:       logger,
		},
		Logger: logger,
	}
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// GeneratePayroll computes a payroll result for review. Nothing is persisted
// for the requested user; dependent results created by revenue sharing are.
func (h *Handler) GeneratePayroll(w http.ResponseWriter, r *http.Request) {
	var req GeneratePayrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, ok := parsePeriod(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	result, err := h.Engine.ComputePayroll(r.Context(), engine.UserID(req.UserID), period, engine.ClinicID(req.ClinicID))
	if err != nil {
		writeEngineError(w, "Failed to compute payroll", err)
		return
	}

	writeJSON(w, http.StatusOK, resultDTO(result))
}

// SendPayroll recomputes the period, persists the result and applies the
// year-to-date delta exactly once.
func (h *Handler) SendPayroll(w http.ResponseWriter, r *http.Request) {
	var req SendPayrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, ok := parsePeriod(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	ctx := r.Context()
	result, err := h.Engine.ComputePayroll(ctx, engine.UserID(req.UserID), period, engine.ClinicID(req.ClinicID))
	if err != nil {
		writeEngineError(w, "Failed to compute payroll", err)
		return
	}

	stored, err := h.Engine.Finalize(ctx, result)
	if err != nil {
		writeEngineError(w, "Failed to finalize payroll", err)
		return
	}

	writeJSON(w, http.StatusOK, resultDTO(stored))
}

// ListPayrolls returns a user's stored payroll records, newest period first.
func (h *Handler) ListPayrolls(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "id"))

	results, err := h.Store.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payrolls", err)
		return
	}

	dtos := make([]PayrollResultDTO, len(results))
	for i, result := range results {
		dtos[i] = resultDTO(result)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all practitioners.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, UserDTO{ID: string(u.ID), Name: u.Name, Email: u.Email})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser creates a practitioner with an empty year-to-date state.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	ctx := r.Context()
	user := sqlite.User{ID: engine.UserID(req.ID), Name: req.Name, Email: req.Email}
	if err := h.Store.SaveUser(ctx, user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	// New users start the year at zero.
	if _, err := h.Store.Get(ctx, user.ID); err != nil {
		state := engine.UserPayState{
			UserID:               user.ID,
			YTDPay:               engine.ZeroMoney,
			YTDDeductions:        engine.ZeroMoney,
			PensionContributed:   engine.ZeroMoney,
			InsuranceContributed: engine.ZeroMoney,
		}
		if err := h.Store.SaveState(ctx, state); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to initialize user state", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, UserDTO{ID: req.ID, Name: req.Name, Email: req.Email})
}

// GetUser returns a practitioner with payment role and year-to-date figures.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := engine.UserID(chi.URLParam(r, "id"))

	user, err := h.Store.GetUser(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}

	dto := UserDTO{ID: string(user.ID), Name: user.Name, Email: user.Email}

	if detail, err := h.Store.DetailFor(ctx, userID); err == nil {
		dto.RoleType = string(detail.Type)
		dto.HourlyWage = detail.HourlyWage.String()
		dto.CommissionRate = detail.CommissionRate.String()
	}

	state, err := h.Store.Get(ctx, userID)
	if err == nil {
		dto.YTDPay = state.YTDPay.String()
		dto.YTDDeductions = state.YTDDeductions.String()
		dto.PensionContributed = state.PensionContributed.String()
		dto.InsuranceContributed = state.InsuranceContributed.String()
	}

	writeJSON(w, http.StatusOK, dto)
}

// SaveRole sets a user's payment role.
func (h *Handler) SaveRole(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "id"))

	var req SaveRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	detail := engine.PaymentRoleDetail{
		Type:           engine.RoleType(req.RoleType),
		HourlyWage:     engine.NewMoney(req.HourlyWage),
		CommissionRate: decimal.NewFromFloat(req.CommissionRate),
	}
	if !validRoleType(detail.Type) {
		writeError(w, http.StatusBadRequest, "Unknown role_type", nil)
		return
	}

	if err := h.Store.SaveRole(r.Context(), userID, detail); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save role", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SaveState seeds a user's year-to-date figures (admin path).
func (h *Handler) SaveState(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "id"))

	var req SaveStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	state := engine.UserPayState{
		UserID:               userID,
		YTDPay:               engine.NewMoney(req.YTDPay),
		YTDDeductions:        engine.NewMoney(req.YTDDeductions),
		PensionContributed:   engine.NewMoney(req.PensionContributed),
		InsuranceContributed: engine.NewMoney(req.InsuranceContributed),
	}
	if err := h.Store.SaveState(r.Context(), state); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save state", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SaveRent sets a user's monthly rent deduction.
func (h *Handler) SaveRent(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "id"))

	var req RentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rent := engine.RentRole{
		UserID:      userID,
		MonthlyRent: engine.NewMoney(req.MonthlyRent),
		Description: req.Description,
	}
	if err := h.Store.SaveRent(r.Context(), rent); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rent", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteRent removes a user's rent deduction.
func (h *Handler) DeleteRent(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteRent(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete rent", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SHARING RULE HANDLERS
// =============================================================================

// ListRules returns the whole revenue sharing rule graph.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.ListRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}

	dtos := make([]RuleDTO, 0, len(rules))
	for _, rule := range rules {
		dtos = append(dtos, RuleDTO{
			ID:         rule.ID,
			OwnerID:    string(rule.OwnerID),
			Rate:       rule.Rate.String(),
			TargetKind: string(rule.TargetKind),
			TargetUser: string(rule.TargetUser),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRule creates or updates a revenue sharing rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	kind := engine.SharingTarget(req.TargetKind)
	if kind != engine.TargetSpecificUser && kind != engine.TargetAllStudents {
		writeError(w, http.StatusBadRequest, "target_kind must be specific_user or all_students", nil)
		return
	}
	if kind == engine.TargetSpecificUser && req.TargetUser == "" {
		writeError(w, http.StatusBadRequest, "target_user is required for specific_user rules", nil)
		return
	}
	if req.Rate <= 0 || req.Rate > 1 {
		writeError(w, http.StatusBadRequest, "rate must be a fraction in (0, 1]", nil)
		return
	}

	rule := engine.RevenueSharingRule{
		ID:         req.ID,
		OwnerID:    engine.UserID(req.OwnerID),
		Rate:       decimal.NewFromFloat(req.Rate),
		TargetKind: kind,
		TargetUser: engine.UserID(req.TargetUser),
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	if err := h.Store.SaveRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, RuleDTO{
		ID:         rule.ID,
		OwnerID:    string(rule.OwnerID),
		Rate:       rule.Rate.String(),
		TargetKind: string(rule.TargetKind),
		TargetUser: string(rule.TargetUser),
	})
}

// DeleteRule removes a rule.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete rule", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SETTINGS AND CLINIC HANDLERS
// =============================================================================

// GetSettings returns the site settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.Current(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsDTO(settings))
}

// SaveSettings validates and replaces the site settings.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	settings := req.toSettings()
	if err := settings.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings", err)
		return
	}

	if err := h.Store.SaveSettings(r.Context(), settings); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsDTO(settings))
}

// ListClinics returns all clinic sheet configurations.
func (h *Handler) ListClinics(w http.ResponseWriter, r *http.Request) {
	clinics, err := h.Store.ListClinics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clinics", err)
		return
	}

	dtos := make([]ClinicDTO, 0, len(clinics))
	for _, c := range clinics {
		dtos = append(dtos, clinicDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveClinic creates or updates a clinic's sheet configuration.
func (h *Handler) SaveClinic(w http.ResponseWriter, r *http.Request) {
	var req ClinicDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	sheets := engine.ClinicSpreadsheet{
		ClinicID:         engine.ClinicID(req.ID),
		TimesheetSheet:   engine.SheetID(req.TimesheetSheet),
		CommissionSheet:  engine.SheetID(req.CommissionSheet),
		TransactionSheet: engine.SheetID(req.TransactionSheet),
		SettlementSheet:  engine.SheetID(req.SettlementSheet),
		ProcessorKeyword: req.ProcessorKeyword,
	}
	if err := h.Store.SaveClinic(r.Context(), sheets); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save clinic", err)
		return
	}
	writeJSON(w, http.StatusCreated, clinicDTO(sheets))
}

func clinicDTO(c engine.ClinicSpreadsheet) ClinicDTO {
	return ClinicDTO{
		ID:               string(c.ClinicID),
		TimesheetSheet:   string(c.TimesheetSheet),
		CommissionSheet:  string(c.CommissionSheet),
		TransactionSheet: string(c.TransactionSheet),
		SettlementSheet:  string(c.SettlementSheet),
		ProcessorKeyword: c.ProcessorKeyword,
	}
}

// ResetDatabase clears all data (dev/demo only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func validRoleType(t engine.RoleType) bool {
	switch t {
	case engine.RoleHourlyEmployee, engine.RoleHourlyContractor,
		engine.RoleCommissionEmployee, engine.RoleCommissionContractor,
		engine.RoleStudent:
		return true
	}
	return false
}

func parsePeriod(w http.ResponseWriter, start, end string) (engine.Period, bool) {
	startDate, err := engine.ParseDate(start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return engine.Period{}, false
	}
	endDate, err := engine.ParseDate(end)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return engine.Period{}, false
	}

	period := engine.Period{Start: startDate, End: endDate}
	if !period.Valid() {
		writeError(w, http.StatusBadRequest, "end_date must not be before start_date", nil)
		return engine.Period{}, false
	}
	return period, true
}

func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
