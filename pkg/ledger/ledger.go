package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rajanms/emitrack/pkg/fincalc"
	"github.com/rajanms/emitrack/pkg/models"
	"github.com/rajanms/emitrack/pkg/schedule"
	"github.com/rajanms/emitrack/pkg/store"
)

// componentTolerance bounds |principal + interest - total| for installment and
// partial payments.
var componentTolerance = decimal.RequireFromString("0.02")

var (
	ErrInvalidPrincipal    = errors.New("principal must be positive")
	ErrInvalidTerm         = errors.New("term must be positive")
	ErrComponentMismatch   = errors.New("principal and interest components do not sum to the total amount")
	ErrUnexpectedInterest  = errors.New("prepayment must carry no interest component")
	ErrUnexpectedPrincipal = errors.New("pre-EMI payment must carry no principal component")
	ErrChargesOnly         = errors.New("charges-only payment must carry no principal or interest")
)

// Ledger handles the business logic for loans, payments and loan events.
type Ledger struct {
	storage store.Storage
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage) *Ledger {
	return &Ledger{storage: s}
}

// CreateLoan initializes and stores a new loan. The EMI is computed from the
// terms when the caller leaves it zero.
func (l *Ledger) CreateLoan(loan *models.Loan) (*models.Loan, error) {
	if !loan.PrincipalAmount.IsPositive() {
		return nil, ErrInvalidPrincipal
	}
	if loan.TermMonths <= 0 {
		return nil, ErrInvalidTerm
	}

	loan.ID = uuid.New()
	if loan.Status == "" {
		loan.Status = models.LoanStatusActive
	}
	if loan.PaymentFrequency == "" {
		loan.PaymentFrequency = models.FrequencyMonthly
	}
	if loan.RateType == "" {
		loan.RateType = models.RateTypeFixed
	}
	if loan.SanctionedAmount.IsZero() {
		loan.SanctionedAmount = loan.PrincipalAmount
	}
	if loan.EMIAmount.IsZero() {
		loan.EMIAmount = fincalc.EMI(loan.PrincipalAmount, loan.InterestRate, loan.TermMonths)
	}
	loan.CreatedAt = time.Now()
	loan.UpdatedAt = time.Now()

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// UpdateLoan updates an existing loan.
func (l *Ledger) UpdateLoan(loan *models.Loan) error {
	loan.UpdatedAt = time.Now()
	return l.storage.UpdateLoan(loan)
}

// DeleteLoan deletes a loan and, through the store's cascade, its payment and
// event history.
func (l *Ledger) DeleteLoan(id uuid.UUID) error {
	return l.storage.DeleteLoan(id)
}

// validateComponents enforces the per-type component rules.
func validateComponents(p *models.Payment) error {
	switch p.Type {
	case models.PaymentTypeEMI, models.PaymentTypePartial:
		sum := p.PrincipalComponent.Add(p.InterestComponent)
		if sum.Sub(p.TotalAmount).Abs().GreaterThan(componentTolerance) {
			return ErrComponentMismatch
		}
	case models.PaymentTypePrepayment:
		if !p.InterestComponent.IsZero() {
			return ErrUnexpectedInterest
		}
	case models.PaymentTypePreEMI:
		if !p.PrincipalComponent.IsZero() {
			return ErrUnexpectedPrincipal
		}
	case models.PaymentTypeCharges:
		if !p.PrincipalComponent.IsZero() || !p.InterestComponent.IsZero() {
			return ErrChargesOnly
		}
	}
	return nil
}

// RecordPayment validates and stores a payment against a loan. The store runs
// the balance cascade as part of the insert, so the loan's whole balance
// column is consistent when this returns.
func (l *Ledger) RecordPayment(p *models.Payment) (*models.Payment, error) {
	if _, err := l.storage.GetLoan(p.LoanID); err != nil {
		return nil, err
	}

	p.ID = uuid.New()
	if p.Type == "" {
		p.Type = models.PaymentTypeEMI
	}
	if p.Status == "" {
		p.Status = models.PaymentStatusPaid
	}
	if p.ScheduledDate.IsZero() {
		p.ScheduledDate = p.PaymentDate
	}
	p.CreatedAt = time.Now()

	if err := validateComponents(p); err != nil {
		return nil, err
	}

	if err := l.storage.CreatePayment(p); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}
	return p, nil
}

// GetPayment retrieves a payment by its ID.
func (l *Ledger) GetPayment(id uuid.UUID) (*models.Payment, error) {
	return l.storage.GetPayment(id)
}

// GetPaymentsForLoan retrieves a loan's payments, most recent first.
func (l *Ledger) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	return l.storage.GetPaymentsForLoan(loanID)
}

// UpdatePayment validates and rewrites a payment. The store recascades the
// loan's balances in the same unit.
func (l *Ledger) UpdatePayment(p *models.Payment) (int64, error) {
	if err := validateComponents(p); err != nil {
		return 0, err
	}
	return l.storage.UpdatePayment(p)
}

// DeletePayment removes a payment. The store recascades the loan's balances
// in the same unit.
func (l *Ledger) DeletePayment(id uuid.UUID) (int64, error) {
	return l.storage.DeletePayment(id)
}

// ChangeRate records a rate revision for a loan. When the revision is already
// effective, the loan's stored rate is moved with it.
func (l *Ledger) ChangeRate(loanID uuid.UUID, newRate decimal.Decimal, effectiveDate time.Time, reason string) (*models.RateChange, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if !newRate.IsPositive() {
		return nil, fmt.Errorf("rate must be positive, got %s", newRate)
	}

	rc := &models.RateChange{
		ID:            uuid.New(),
		LoanID:        loanID,
		EffectiveDate: effectiveDate,
		Rate:          newRate,
		Reason:        reason,
		CreatedAt:     time.Now(),
	}
	if err := l.storage.CreateRateChange(rc); err != nil {
		return nil, fmt.Errorf("failed to store rate change: %w", err)
	}

	if !effectiveDate.After(time.Now()) {
		active, err := l.ActiveRate(loanID, time.Now())
		if err != nil {
			return nil, err
		}
		loan.InterestRate = active
		loan.UpdatedAt = time.Now()
		if err := l.storage.UpdateLoan(loan); err != nil {
			return nil, fmt.Errorf("failed to update loan rate: %w", err)
		}
	}
	return rc, nil
}

// ActiveRate returns the rate in effect at asOf: the most recent revision at
// or before that date, falling back to the loan's stored rate when no
// revision applies.
func (l *Ledger) ActiveRate(loanID uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return decimal.Zero, err
	}
	changes, err := l.storage.GetRateChangesForLoan(loanID)
	if err != nil {
		return decimal.Zero, err
	}
	// Changes arrive latest first.
	for _, rc := range changes {
		if !rc.EffectiveDate.After(asOf) {
			return rc.Rate, nil
		}
	}
	return loan.InterestRate, nil
}

// AddDisbursement records an incremental tranche, grows the loan's principal
// and re-amortizes its EMI over the remaining term.
func (l *Ledger) AddDisbursement(loanID uuid.UUID, amount decimal.Decimal, date time.Time) (*models.Disbursement, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("disbursement amount must be positive, got %s", amount)
	}

	elapsed, err := l.monthsElapsed(loanID)
	if err != nil {
		return nil, err
	}
	remaining := loan.TermMonths - elapsed
	if remaining <= 0 {
		remaining = loan.TermMonths
	}

	newEMI := fincalc.AdjustEMIForDisbursement(loan.PrincipalAmount, amount, loan.InterestRate, remaining)

	d := &models.Disbursement{
		ID:        uuid.New(),
		LoanID:    loanID,
		Date:      date,
		Amount:    amount,
		NewEMI:    newEMI,
		CreatedAt: time.Now(),
	}
	if err := l.storage.CreateDisbursement(d); err != nil {
		return nil, fmt.Errorf("failed to store disbursement: %w", err)
	}

	loan.PrincipalAmount = loan.PrincipalAmount.Add(amount)
	loan.EMIAmount = newEMI
	loan.UpdatedAt = time.Now()
	if err := l.storage.UpdateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to update loan after disbursement: %w", err)
	}
	return d, nil
}

// GetDisbursementsForLoan retrieves a loan's disbursement history.
func (l *Ledger) GetDisbursementsForLoan(loanID uuid.UUID) ([]*models.Disbursement, error) {
	return l.storage.GetDisbursementsForLoan(loanID)
}

// GetRateChangesForLoan retrieves a loan's rate history, latest first.
func (l *Ledger) GetRateChangesForLoan(loanID uuid.UUID) ([]*models.RateChange, error) {
	return l.storage.GetRateChangesForLoan(loanID)
}

// Outstanding returns the loan's current balance: the most recent payment's
// post-payment balance, or the principal when no payments exist.
func (l *Ledger) Outstanding(loanID uuid.UUID) (decimal.Decimal, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return decimal.Zero, err
	}
	payments, err := l.storage.GetPaymentsForLoan(loanID)
	if err != nil {
		return decimal.Zero, err
	}
	if len(payments) == 0 {
		return loan.PrincipalAmount, nil
	}
	return payments[0].BalanceRemaining, nil
}

// monthsElapsed counts the loan's paid installments.
func (l *Ledger) monthsElapsed(loanID uuid.UUID) (int, error) {
	payments, err := l.storage.GetPaymentsForLoan(loanID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, p := range payments {
		if p.Status == models.PaymentStatusPaid {
			count++
		}
	}
	return count, nil
}

// SeedScheduledPayments materializes the loan's standard amortization table
// as PENDING payments so dues can be tracked against it. It refuses to seed
// over an existing history.
func (l *Ledger) SeedScheduledPayments(loanID uuid.UUID) ([]*models.Payment, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	existing, err := l.storage.GetPaymentsForLoan(loanID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("loan %s already has %d payments", loanID, len(existing))
	}

	gen := schedule.NewGenerator(schedule.Terms{
		Principal:    loan.PrincipalAmount,
		AnnualRate:   loan.InterestRate,
		TenureMonths: loan.TermMonths,
		EMI:          loan.EMIAmount,
		StartDate:    loan.StartDate,
		Frequency:    loan.PaymentFrequency,
	})

	var seeded []*models.Payment
	for _, row := range gen.Standard() {
		p := &models.Payment{
			ID:                 uuid.New(),
			LoanID:             loanID,
			PaymentDate:        row.Date,
			ScheduledDate:      row.Date,
			PrincipalComponent: row.Principal,
			InterestComponent:  row.Interest,
			TotalAmount:        row.EMI,
			Type:               models.PaymentTypeEMI,
			Status:             models.PaymentStatusPending,
			CreatedAt:          time.Now(),
		}
		if err := l.storage.CreatePayment(p); err != nil {
			return nil, fmt.Errorf("failed to seed payment %d: %w", row.PaymentNumber, err)
		}
		seeded = append(seeded, p)
	}
	return seeded, nil
}

// NextScheduledPayment returns the earliest PENDING payment at or after asOf,
// or ErrNotFound when nothing is due.
func (l *Ledger) NextScheduledPayment(loanID uuid.UUID, asOf time.Time) (*models.Payment, error) {
	upcoming, err := l.UpcomingPayments(loanID, asOf, 1)
	if err != nil {
		return nil, err
	}
	if len(upcoming) == 0 {
		return nil, store.ErrNotFound
	}
	return upcoming[0], nil
}

// UpcomingPayments returns up to limit PENDING payments scheduled at or after
// asOf, earliest first. A non-positive limit means no cap.
func (l *Ledger) UpcomingPayments(loanID uuid.UUID, asOf time.Time, limit int) ([]*models.Payment, error) {
	payments, err := l.storage.GetPaymentsForLoan(loanID)
	if err != nil {
		return nil, err
	}

	// Stored order is most recent first; walk backwards for earliest first.
	var upcoming []*models.Payment
	for i := len(payments) - 1; i >= 0; i-- {
		p := payments[i]
		if p.Status != models.PaymentStatusPending || p.ScheduledDate.Before(asOf) {
			continue
		}
		upcoming = append(upcoming, p)
		if limit > 0 && len(upcoming) == limit {
			break
		}
	}
	return upcoming, nil
}

// PaymentCounts aggregates a loan's payments by status.
type PaymentCounts struct {
	Paid    int `json:"paid"`
	Pending int `json:"pending"`
	Missed  int `json:"missed"`
}

// CountPayments tallies a loan's payments by status.
func (l *Ledger) CountPayments(loanID uuid.UUID) (PaymentCounts, error) {
	payments, err := l.storage.GetPaymentsForLoan(loanID)
	if err != nil {
		return PaymentCounts{}, err
	}
	var c PaymentCounts
	for _, p := range payments {
		switch p.Status {
		case models.PaymentStatusPaid:
			c.Paid++
		case models.PaymentStatusPending:
			c.Pending++
		case models.PaymentStatusMissed:
			c.Missed++
		}
	}
	return c, nil
}

// PortfolioSummary aggregates the active loans.
type PortfolioSummary struct {
	ActiveLoans      int             `json:"active_loans"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	TotalEMI         decimal.Decimal `json:"total_emi"`
}

// Portfolio totals the outstanding balance and periodic obligation across all
// active loans.
func (l *Ledger) Portfolio() (PortfolioSummary, error) {
	loans, err := l.storage.GetActiveLoans()
	if err != nil {
		return PortfolioSummary{}, err
	}

	summary := PortfolioSummary{
		TotalOutstanding: decimal.Zero,
		TotalEMI:         decimal.Zero,
	}
	for _, loan := range loans {
		outstanding, err := l.Outstanding(loan.ID)
		if err != nil {
			return PortfolioSummary{}, err
		}
		summary.ActiveLoans++
		summary.TotalOutstanding = summary.TotalOutstanding.Add(outstanding)
		summary.TotalEMI = summary.TotalEMI.Add(loan.EMIAmount)
	}
	summary.TotalOutstanding = summary.TotalOutstanding.Round(2)
	return summary, nil
}
