/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY ENCODING:
  Monetary amounts are rendered as fixed two-decimal strings ("1234.50"),
  never floats: payroll figures must survive a JSON round trip unchanged.
  Rates and caps in admin requests are accepted as numbers and converted
  to decimals on the way in.

SEE ALSO:
  - handlers.go: Uses these types
  - uploads.go: CSV row types for sheet uploads
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// USERS AND ROLES
// =============================================================================

// UserDTO is a practitioner with their payment configuration and YTD state.
type UserDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	RoleType       string `json:"role_type,omitempty"`
	HourlyWage     string `json:"hourly_wage,omitempty"`
	CommissionRate string `json:"commission_rate,omitempty"`

	YTDPay               string `json:"ytd_pay"`
	YTDDeductions        string `json:"ytd_deductions"`
	PensionContributed   string `json:"pension_contributed"`
	InsuranceContributed string `json:"insurance_contributed"`
}

// CreateUserRequest creates or updates a practitioner.
type CreateUserRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SaveRoleRequest sets a user's payment role.
type SaveRoleRequest struct {
	RoleType       string  `json:"role_type"`
	HourlyWage     float64 `json:"hourly_wage"`
	CommissionRate float64 `json:"commission_rate"`
}

// SaveStateRequest seeds a user's year-to-date figures.
type SaveStateRequest struct {
	YTDPay               float64 `json:"ytd_pay"`
	YTDDeductions        float64 `json:"ytd_deductions"`
	PensionContributed   float64 `json:"pension_contributed"`
	InsuranceContributed float64 `json:"insurance_contributed"`
}

// RentRequest sets a user's flat monthly rent deduction.
type RentRequest struct {
	MonthlyRent float64 `json:"monthly_rent"`
	Description string  `json:"description"`
}

// =============================================================================
// SHARING RULES
// =============================================================================

// RuleDTO is a revenue sharing rule.
type RuleDTO struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	Rate       string `json:"rate"`
	TargetKind string `json:"target_kind"`
	TargetUser string `json:"target_user,omitempty"`
}

// CreateRuleRequest creates or updates a rule. Rate is a fraction (0.10 = 10%).
type CreateRuleRequest struct {
	ID         string  `json:"id"`
	OwnerID    string  `json:"owner_id"`
	Rate       float64 `json:"rate"`
	TargetKind string  `json:"target_kind"`
	TargetUser string  `json:"target_user"`
}

// =============================================================================
// CLINICS AND SETTINGS
// =============================================================================

// ClinicDTO names the sheet sources configured for a clinic.
type ClinicDTO struct {
	ID               string `json:"id"`
	TimesheetSheet   string `json:"timesheet_sheet,omitempty"`
	CommissionSheet  string `json:"commission_sheet,omitempty"`
	TransactionSheet string `json:"transaction_sheet,omitempty"`
	SettlementSheet  string `json:"settlement_sheet,omitempty"`
	ProcessorKeyword string `json:"processor_keyword,omitempty"`
}

// BracketDTO is one progressive tax bracket. Rate is a fraction.
type BracketDTO struct {
	Rate      float64 `json:"rate"`
	MinIncome float64 `json:"min_income"`
	MaxIncome float64 `json:"max_income"`
}

// SettingsDTO is the site-wide payroll configuration.
type SettingsDTO struct {
	FederalBrackets    []BracketDTO `json:"federal_brackets"`
	ProvincialBrackets []BracketDTO `json:"provincial_brackets"`
	PensionRate        float64      `json:"pension_rate"`
	PensionExemption   float64      `json:"pension_exemption"`
	PensionCap         float64      `json:"pension_cap"`
	InsuranceRate      float64      `json:"insurance_rate"`
	InsuranceCap       float64      `json:"insurance_cap"`
	VacationRate       float64      `json:"vacation_rate"`
	OvertimeMultiplier float64      `json:"overtime_multiplier"`
}

func (s SettingsDTO) toSettings() *engine.SiteSettings {
	return &engine.SiteSettings{
		FederalBrackets:    toBrackets(s.FederalBrackets),
		ProvincialBrackets: toBrackets(s.ProvincialBrackets),
		PensionRate:        decimal.NewFromFloat(s.PensionRate),
		PensionExemption:   engine.NewMoney(s.PensionExemption),
		PensionCap:         engine.NewMoney(s.PensionCap),
		InsuranceRate:      decimal.NewFromFloat(s.InsuranceRate),
		InsuranceCap:       engine.NewMoney(s.InsuranceCap),
		VacationRate:       decimal.NewFromFloat(s.VacationRate),
		OvertimeMultiplier: decimal.NewFromFloat(s.OvertimeMultiplier),
	}
}

func settingsDTO(s *engine.SiteSettings) SettingsDTO {
	return SettingsDTO{
		FederalBrackets:    fromBrackets(s.FederalBrackets),
		ProvincialBrackets: fromBrackets(s.ProvincialBrackets),
		PensionRate:        decimalFloat(s.PensionRate),
		PensionExemption:   s.PensionExemption.Float64(),
		PensionCap:         s.PensionCap.Float64(),
		InsuranceRate:      decimalFloat(s.InsuranceRate),
		InsuranceCap:       s.InsuranceCap.Float64(),
		VacationRate:       decimalFloat(s.VacationRate),
		OvertimeMultiplier: decimalFloat(s.OvertimeMultiplier),
	}
}

func toBrackets(dtos []BracketDTO) []engine.TaxBracket {
	brackets := make([]engine.TaxBracket, len(dtos))
	for i, b := range dtos {
		brackets[i] = engine.TaxBracket{
			Rate:      decimal.NewFromFloat(b.Rate),
			MinIncome: engine.NewMoney(b.MinIncome),
			MaxIncome: engine.NewMoney(b.MaxIncome),
		}
	}
	return brackets
}

func fromBrackets(brackets []engine.TaxBracket) []BracketDTO {
	dtos := make([]BracketDTO, len(brackets))
	for i, b := range brackets {
		dtos[i] = BracketDTO{
			Rate:      decimalFloat(b.Rate),
			MinIncome: b.MinIncome.Float64(),
			MaxIncome: b.MaxIncome.Float64(),
		}
	}
	return dtos
}

func decimalFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// =============================================================================
// PAYROLL
// =============================================================================

// GeneratePayrollRequest computes a payroll for one user and period.
type GeneratePayrollRequest struct {
	UserID    string `json:"user_id"`
	ClinicID  string `json:"clinic_id"`
	StartDate string `json:"start_date"` // YYYY-MM-DD
	EndDate   string `json:"end_date"`   // YYYY-MM-DD
}

// SendPayrollRequest finalizes a payroll: the period is recomputed server-side
// and the result persisted, so a stale client copy can never be what is sent.
type SendPayrollRequest struct {
	UserID    string `json:"user_id"`
	ClinicID  string `json:"clinic_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// EarningsDTO itemizes the earnings side of a result.
type EarningsDTO struct {
	RegularPay         string `json:"regular_pay"`
	OvertimePay        string `json:"overtime_pay"`
	VacationPay        string `json:"vacation_pay"`
	AdjustedTotal      string `json:"adjusted_total,omitempty"`
	TaxCollected       string `json:"tax_collected,omitempty"`
	CommissionEarned   string `json:"commission_earned,omitempty"`
	GrossIncome        string `json:"gross_income,omitempty"`
	POSFees            string `json:"pos_fees,omitempty"`
	RevenueShareIncome string `json:"revenue_share_income,omitempty"`
}

// DeductionsDTO itemizes the deductions side of a result.
type DeductionsDTO struct {
	FederalTax            string `json:"federal_tax"`
	ProvincialTax         string `json:"provincial_tax"`
	Pension               string `json:"pension"`
	Insurance             string `json:"insurance"`
	CommissionDeduction   string `json:"commission_deduction,omitempty"`
	POSFees               string `json:"pos_fees,omitempty"`
	Rent                  string `json:"rent,omitempty"`
	RentDescription       string `json:"rent_description,omitempty"`
	RevenueShareDeduction string `json:"revenue_share_deduction,omitempty"`
}

// SharingLineDTO is one revenue sharing breakdown line.
type SharingLineDTO struct {
	UserID      string `json:"user_id"`
	GrossIncome string `json:"gross_income"`
	Rate        string `json:"rate"`
	Amount      string `json:"amount"`
}

// StudentShareLineDTO is one student's contribution to an all-students rule.
type StudentShareLineDTO struct {
	UserID      string `json:"user_id"`
	GrossIncome string `json:"gross_income"`
	POSFees     string `json:"pos_fees"`
	Net         string `json:"net"`
}

// SharingDTO is the revenue sharing breakdown of a result.
type SharingDTO struct {
	IncomeFromUsers    []SharingLineDTO      `json:"income_from_users,omitempty"`
	IncomeFromStudents []StudentShareLineDTO `json:"income_from_students,omitempty"`
	DeductionsToUsers  []SharingLineDTO      `json:"deductions_to_users,omitempty"`
}

// PayrollResultDTO is the complete, itemized payroll result.
type PayrollResultDTO struct {
	PayrollNumber string `json:"payroll_number,omitempty"`
	UserID        string `json:"user_id"`
	ClinicID      string `json:"clinic_id"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	RoleType      string `json:"role_type"`

	Earnings   EarningsDTO   `json:"earnings"`
	Deductions DeductionsDTO `json:"deductions"`

	TotalEarnings   string `json:"total_earnings"`
	TotalDeductions string `json:"total_deductions"`
	NetPayment      string `json:"net_payment"`

	TotalHours    float64 `json:"total_hours,omitempty"`
	RegularHours  float64 `json:"regular_hours,omitempty"`
	OvertimeHours float64 `json:"overtime_hours,omitempty"`

	ProjectedEarnings   string `json:"projected_earnings"`
	ProjectedDeductions string `json:"projected_deductions"`
	PensionCapAfter     string `json:"pension_cap_after"`
	InsuranceCapAfter   string `json:"insurance_cap_after"`

	EmployerPension   string `json:"employer_pension,omitempty"`
	EmployerInsurance string `json:"employer_insurance,omitempty"`

	Sharing *SharingDTO `json:"sharing,omitempty"`
	Notes   string      `json:"notes,omitempty"`
}

func resultDTO(result *engine.PayrollResult) PayrollResultDTO {
	dto := PayrollResultDTO{
		PayrollNumber: result.PayrollNumber,
		UserID:        string(result.UserID),
		ClinicID:      string(result.ClinicID),
		StartDate:     result.Period.Start.String(),
		EndDate:       result.Period.End.String(),
		RoleType:      string(result.RoleType),
		Earnings: EarningsDTO{
			RegularPay:         result.Earnings.RegularPay.String(),
			OvertimePay:        result.Earnings.OvertimePay.String(),
			VacationPay:        result.Earnings.VacationPay.String(),
			AdjustedTotal:      moneyOrEmpty(result.Earnings.AdjustedTotal),
			TaxCollected:       moneyOrEmpty(result.Earnings.TaxCollected),
			CommissionEarned:   moneyOrEmpty(result.Earnings.CommissionEarned),
			GrossIncome:        moneyOrEmpty(result.Earnings.GrossIncome),
			POSFees:            moneyOrEmpty(result.Earnings.POSFees),
			RevenueShareIncome: moneyOrEmpty(result.Earnings.RevenueShareIncome),
		},
		Deductions: DeductionsDTO{
			FederalTax:            result.Deductions.FederalTax.String(),
			ProvincialTax:         result.Deductions.ProvincialTax.String(),
			Pension:               result.Deductions.Pension.String(),
			Insurance:             result.Deductions.Insurance.String(),
			CommissionDeduction:   moneyOrEmpty(result.Deductions.CommissionDeduction),
			POSFees:               moneyOrEmpty(result.Deductions.POSFees),
			Rent:                  moneyOrEmpty(result.Deductions.Rent),
			RentDescription:       result.Deductions.RentDescription,
			RevenueShareDeduction: moneyOrEmpty(result.Deductions.RevenueShareDeduction),
		},
		TotalEarnings:       result.Totals.TotalEarnings.String(),
		TotalDeductions:     result.Totals.TotalDeductions.String(),
		NetPayment:          result.Totals.NetPayment.String(),
		TotalHours:          result.Breakdown.TotalHours.Float64(),
		RegularHours:        result.Breakdown.RegularHours.Float64(),
		OvertimeHours:       result.Breakdown.OvertimeHours.Float64(),
		ProjectedEarnings:   result.YTD.ProjectedEarnings.String(),
		ProjectedDeductions: result.YTD.ProjectedDeductions.String(),
		PensionCapAfter:     result.YTD.PensionCapAfter.String(),
		InsuranceCapAfter:   result.YTD.InsuranceCapAfter.String(),
		EmployerPension:     moneyOrEmpty(result.EmployerPension),
		EmployerInsurance:   moneyOrEmpty(result.EmployerInsurance),
		Notes:               result.Notes,
	}

	if sharing := sharingDTO(result.Sharing); sharing != nil {
		dto.Sharing = sharing
	}
	return dto
}

func sharingDTO(s engine.SharingBreakdown) *SharingDTO {
	if len(s.IncomeFromUsers) == 0 && len(s.IncomeFromStudents) == 0 && len(s.DeductionsToUsers) == 0 {
		return nil
	}

	dto := &SharingDTO{}
	for _, line := range s.IncomeFromUsers {
		dto.IncomeFromUsers = append(dto.IncomeFromUsers, sharingLineDTO(line))
	}
	for _, line := range s.IncomeFromStudents {
		dto.IncomeFromStudents = append(dto.IncomeFromStudents, StudentShareLineDTO{
			UserID:      string(line.UserID),
			GrossIncome: line.GrossIncome.String(),
			POSFees:     line.POSFees.String(),
			Net:         line.Net.String(),
		})
	}
	for _, line := range s.DeductionsToUsers {
		dto.DeductionsToUsers = append(dto.DeductionsToUsers, sharingLineDTO(line))
	}
	return dto
}

func sharingLineDTO(line engine.SharingLine) SharingLineDTO {
	return SharingLineDTO{
		UserID:      string(line.UserID),
		GrossIncome: line.GrossIncome.String(),
		Rate:        line.Rate.String(),
		Amount:      line.Amount.String(),
	}
}

// moneyOrEmpty omits zero optional amounts from JSON output.
func moneyOrEmpty(m engine.Money) string {
	if m.IsZero() {
		return ""
	}
	return m.String()
}
