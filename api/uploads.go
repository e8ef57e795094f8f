/*
uploads.go - CSV sheet ingestion

PURPOSE:
  Accepts the four sheet-shaped data sources as CSV uploads and replaces the
  stored rows for the clinic's configured sheet of that kind. Each upload is
  a full replacement, matching how a spreadsheet export works: re-uploading
  a corrected export must not leave stale rows behind.

NAME AND NUMBER NORMALIZATION:
  Timesheet and commission rows carry practitioner display names which may
  include parenthetical qualifiers ("Ada Li (RMT)"). Rows are resolved to
  user IDs by normalized-name lookup; rows that resolve to no user are
  skipped and counted, not fatal. Invoice numbers have treatment-plan
  suffixes stripped at ingest ("18269-C01" becomes "18269") so the POS fee
  matcher compares base numbers only.

CSV FORMATS:
  timesheet:    Practitioner, Date, Minutes
  commission:   Practitioner, Invoice Date, Invoice #, Patient, Adjusted Total, Tax
  transactions: Date, Payer, Payment Method, Applied To, Amount
  settlements:  Date, Customer, Customer Charge, Fee

SEE ALSO:
  - handlers.go: Router-facing surface and shared helpers
  - store/sqlite: ReplaceTimesheet and friends
*/
package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// CSV ROW TYPES
// =============================================================================

type timesheetRow struct {
	Practitioner string `csv:"Practitioner"`
	Date         string `csv:"Date"`
	Minutes      int    `csv:"Minutes"`
}

type commissionRow struct {
	Practitioner  string `csv:"Practitioner"`
	InvoiceDate   string `csv:"Invoice Date"`
	InvoiceNumber string `csv:"Invoice #"`
	Patient       string `csv:"Patient"`
	AdjustedTotal string `csv:"Adjusted Total"`
	Tax           string `csv:"Tax"`
}

type transactionRow struct {
	Date          string `csv:"Date"`
	Payer         string `csv:"Payer"`
	PaymentMethod string `csv:"Payment Method"`
	AppliedTo     string `csv:"Applied To"`
	Amount        string `csv:"Amount"`
}

type settlementRow struct {
	Date           string `csv:"Date"`
	Customer       string `csv:"Customer"`
	CustomerCharge string `csv:"Customer Charge"`
	Fee            string `csv:"Fee"`
}

// UploadResponse reports how an upload went.
type UploadResponse struct {
	SheetID string `json:"sheet_id"`
	Rows    int    `json:"rows"`
	Skipped int    `json:"skipped,omitempty"`
}

// =============================================================================
// UPLOAD HANDLER
// =============================================================================

// UploadSheet ingests a CSV body into the clinic's sheet of the given kind.
// POST /api/clinics/{id}/sheets/{kind}
func (h *Handler) UploadSheet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clinicID := engine.ClinicID(chi.URLParam(r, "id"))
	kind := chi.URLParam(r, "kind")

	sheets, err := h.Store.SpreadsheetFor(ctx, clinicID)
	if err != nil {
		writeEngineError(w, "Unknown clinic", err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload body", err)
		return
	}

	switch kind {
	case "timesheet":
		h.ingestTimesheet(w, r, sheets, body)
	case "commission":
		h.ingestCommissions(w, r, sheets, body)
	case "transactions":
		h.ingestTransactions(w, r, sheets, body)
	case "settlements":
		h.ingestSettlements(w, r, sheets, body)
	default:
		writeError(w, http.StatusBadRequest,
			"Unknown sheet kind (use timesheet, commission, transactions or settlements)", nil)
	}
}

func (h *Handler) ingestTimesheet(w http.ResponseWriter, r *http.Request, sheets engine.ClinicSpreadsheet, body []byte) {
	if sheets.TimesheetSheet == "" {
		writeError(w, http.StatusBadRequest, "Clinic has no timesheet sheet configured", nil)
		return
	}

	var rows []*timesheetRow
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid CSV", err)
		return
	}

	ctx := r.Context()
	skipped := 0
	entries := make([]engine.TimesheetEntry, 0, len(rows))
	for _, row := range rows {
		userID, err := h.Store.UserIDByName(ctx, row.Practitioner)
		if err != nil {
			h.Logger.WithField("practitioner", row.Practitioner).Warn("timesheet row has no matching user; skipping")
			skipped++
			continue
		}
		date, err := engine.ParseDate(row.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid date %q", row.Date), err)
			return
		}
		entries = append(entries, engine.TimesheetEntry{
			UserID:  userID,
			Date:    date,
			Minutes: row.Minutes,
		})
	}

	if err := h.Store.ReplaceTimesheet(ctx, sheets.TimesheetSheet, entries); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store timesheet", err)
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{SheetID: string(sheets.TimesheetSheet), Rows: len(entries), Skipped: skipped})
}

func (h *Handler) ingestCommissions(w http.ResponseWriter, r *http.Request, sheets engine.ClinicSpreadsheet, body []byte) {
	if sheets.CommissionSheet == "" {
		writeError(w, http.StatusBadRequest, "Clinic has no commission sheet configured", nil)
		return
	}

	var rows []*commissionRow
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid CSV", err)
		return
	}

	ctx := r.Context()
	skipped := 0
	records := make([]engine.CommissionRecord, 0, len(rows))
	for _, row := range rows {
		userID, err := h.Store.UserIDByName(ctx, row.Practitioner)
		if err != nil {
			h.Logger.WithField("practitioner", row.Practitioner).Warn("commission row has no matching user; skipping")
			skipped++
			continue
		}
		date, err := engine.ParseDate(row.InvoiceDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid invoice date %q", row.InvoiceDate), err)
			return
		}
		adjusted, err := parseAmount(row.AdjustedTotal)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid adjusted total %q", row.AdjustedTotal), err)
			return
		}
		tax, err := parseAmount(row.Tax)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid tax %q", row.Tax), err)
			return
		}
		records = append(records, engine.CommissionRecord{
			UserID:        userID,
			InvoiceDate:   date,
			InvoiceNumber: engine.ExtractBaseInvoiceNumber(row.InvoiceNumber),
			PatientName:   row.Patient,
			AdjustedTotal: adjusted,
			Tax:           tax,
		})
	}

	if err := h.Store.ReplaceCommissions(ctx, sheets.CommissionSheet, records); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store commission records", err)
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{SheetID: string(sheets.CommissionSheet), Rows: len(records), Skipped: skipped})
}

func (h *Handler) ingestTransactions(w http.ResponseWriter, r *http.Request, sheets engine.ClinicSpreadsheet, body []byte) {
	if sheets.TransactionSheet == "" {
		writeError(w, http.StatusBadRequest, "Clinic has no transaction sheet configured", nil)
		return
	}

	var rows []*transactionRow
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid CSV", err)
		return
	}

	txs := make([]engine.ProcessorTransaction, 0, len(rows))
	for _, row := range rows {
		date, err := engine.ParseDate(row.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid date %q", row.Date), err)
			return
		}
		amount, err := parseAmount(row.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid amount %q", row.Amount), err)
			return
		}
		txs = append(txs, engine.ProcessorTransaction{
			Date:          date,
			Payer:         row.Payer,
			PaymentMethod: row.PaymentMethod,
			AppliedTo:     row.AppliedTo,
			Amount:        amount,
		})
	}

	if err := h.Store.ReplaceTransactions(r.Context(), sheets.TransactionSheet, txs); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{SheetID: string(sheets.TransactionSheet), Rows: len(txs)})
}

func (h *Handler) ingestSettlements(w http.ResponseWriter, r *http.Request, sheets engine.ClinicSpreadsheet, body []byte) {
	if sheets.SettlementSheet == "" {
		writeError(w, http.StatusBadRequest, "Clinic has no settlement sheet configured", nil)
		return
	}

	var rows []*settlementRow
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid CSV", err)
		return
	}

	settlements := make([]engine.GatewaySettlement, 0, len(rows))
	for _, row := range rows {
		date, err := engine.ParseDate(row.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid date %q", row.Date), err)
			return
		}
		charge, err := parseAmount(row.CustomerCharge)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid customer charge %q", row.CustomerCharge), err)
			return
		}
		fee, err := parseAmount(row.Fee)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid fee %q", row.Fee), err)
			return
		}
		settlements = append(settlements, engine.GatewaySettlement{
			Date:           date,
			Customer:       row.Customer,
			CustomerCharge: charge,
			Fee:            fee,
		})
	}

	if err := h.Store.ReplaceSettlements(r.Context(), sheets.SettlementSheet, settlements); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store settlements", err)
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{SheetID: string(sheets.SettlementSheet), Rows: len(settlements)})
}

// parseAmount parses a CSV money cell exactly, tolerating a leading $.
func parseAmount(s string) (engine.Money, error) {
	if len(s) > 0 && s[0] == '$' {
		s = s[1:]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return engine.ZeroMoney, err
	}
	return engine.MoneyFromDecimal(d), nil
}
