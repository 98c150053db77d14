package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusActive  LoanStatus = "ACTIVE"
	LoanStatusClosed  LoanStatus = "CLOSED"
	LoanStatusPending LoanStatus = "PENDING"
)

type RateType string

const (
	RateTypeFixed    RateType = "FIXED"
	RateTypeFloating RateType = "FLOATING"
)

// PaymentFrequency determines how many calendar months separate installments.
type PaymentFrequency string

const (
	FrequencyMonthly   PaymentFrequency = "MONTHLY"
	FrequencyQuarterly PaymentFrequency = "QUARTERLY"
	FrequencyAnnually  PaymentFrequency = "ANNUALLY"
)

// Months returns the number of calendar months between installments.
func (f PaymentFrequency) Months() int {
	switch f {
	case FrequencyQuarterly:
		return 3
	case FrequencyAnnually:
		return 12
	default:
		return 1
	}
}

type PaymentType string

const (
	PaymentTypeEMI        PaymentType = "EMI"
	PaymentTypePrepayment PaymentType = "PREPAYMENT"
	PaymentTypePartial    PaymentType = "PARTIAL"
	PaymentTypeCharges    PaymentType = "CHARGES"
	PaymentTypePreEMI     PaymentType = "PRE-EMI"
)

type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusMissed  PaymentStatus = "MISSED"
)

type ScenarioType string

const (
	ScenarioTypeBaseline  ScenarioType = "BASELINE"
	ScenarioTypeLumpsum   ScenarioType = "LUMPSUM"
	ScenarioTypeRecurring ScenarioType = "RECURRING_PERCENT"
	ScenarioTypeCustom    ScenarioType = "CUSTOM"
)

type Loan struct {
	ID               uuid.UUID        `json:"id"`
	Name             string           `json:"name"`
	LoanType         string           `json:"loan_type"` // e.g. HOME, PERSONAL, AUTO
	BankName         string           `json:"bank_name"`
	PrincipalAmount  decimal.Decimal  `json:"principal_amount"`
	SanctionedAmount decimal.Decimal  `json:"sanctioned_amount"`
	InterestRate     decimal.Decimal  `json:"interest_rate"` // annual nominal rate, percent
	RateType         RateType         `json:"rate_type"`
	TermMonths       int              `json:"term_months"`
	StartDate        time.Time        `json:"start_date"`
	EMIAmount        decimal.Decimal  `json:"emi_amount"`
	PaymentFrequency PaymentFrequency `json:"payment_frequency"`
	Status           LoanStatus       `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type Payment struct {
	ID                 uuid.UUID       `json:"id"`
	LoanID             uuid.UUID       `json:"loan_id"`
	PaymentDate        time.Time       `json:"payment_date"`
	ScheduledDate      time.Time       `json:"scheduled_date"`
	PrincipalComponent decimal.Decimal `json:"principal_component"`
	InterestComponent  decimal.Decimal `json:"interest_component"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	Type               PaymentType     `json:"type"`
	Method             string          `json:"method"`
	Charges            decimal.Decimal `json:"charges"`
	// BalanceRemaining is the outstanding principal immediately after this
	// payment is applied. It is owned by the balance cascade, never by callers.
	BalanceRemaining decimal.Decimal `json:"balance_remaining"`
	Status           PaymentStatus   `json:"status"`
	Notes            string          `json:"notes"`
	CreatedAt        time.Time       `json:"created_at"`
}

// RateChange records a floating-rate revision. The most recent entry at or
// before a given date is the loan's active rate on that date.
type RateChange struct {
	ID            uuid.UUID       `json:"id"`
	LoanID        uuid.UUID       `json:"loan_id"`
	EffectiveDate time.Time       `json:"effective_date"`
	Rate          decimal.Decimal `json:"rate"`
	Reason        string          `json:"reason"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Disbursement records an incremental tranche for loans funded in parts,
// along with the EMI recalculated as of that disbursement.
type Disbursement struct {
	ID        uuid.UUID       `json:"id"`
	LoanID    uuid.UUID       `json:"loan_id"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	NewEMI    decimal.Decimal `json:"new_emi"`
	CreatedAt time.Time       `json:"created_at"`
}

// ForecastScenario is a saved intent, not a materialized schedule: only the
// defining parameters are persisted and the schedule is regenerated on load
// from the loan's live state.
type ForecastScenario struct {
	ID              uuid.UUID       `json:"id"`
	LoanID          uuid.UUID       `json:"loan_id"`
	Name            string          `json:"name"`
	PrepaymentType  ScenarioType    `json:"prepayment_type"`
	PrepaymentValue decimal.Decimal `json:"prepayment_value"`
	StartMonth      int             `json:"start_month"`
	CreatedAt       time.Time       `json:"created_at"`
}
