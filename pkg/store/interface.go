package store

import (
	"errors"

	"github.com/google/uuid"

	"github.com/rajanms/emitrack/pkg/models"
)

// ErrNotFound is returned when a referenced loan, payment or scenario id does
// not resolve to a record.
var ErrNotFound = errors.New("record not found")

// Storage defines the persistence contract for loans and their histories.
//
// Payment mutations are special: each of CreatePayment, UpdatePayment and
// DeletePayment must run the full balance cascade for the affected loan as
// part of the same logical unit (one transaction where the backend supports
// it), so a payment edit can never leave stale balances behind it.
type Storage interface {
	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	DeleteLoan(id uuid.UUID) error
	GetAllLoans() ([]*models.Loan, error)
	GetActiveLoans() ([]*models.Loan, error)

	CreatePayment(payment *models.Payment) error
	GetPayment(id uuid.UUID) (*models.Payment, error)
	UpdatePayment(payment *models.Payment) (int64, error)
	DeletePayment(id uuid.UUID) (int64, error)
	// GetPaymentsForLoan returns payments ordered by payment date descending,
	// id descending: the first element is the most recent payment.
	GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error)

	CreateRateChange(rc *models.RateChange) error
	// GetRateChangesForLoan returns changes ordered by effective date
	// descending: the first element is the latest revision.
	GetRateChangesForLoan(loanID uuid.UUID) ([]*models.RateChange, error)

	CreateDisbursement(d *models.Disbursement) error
	// GetDisbursementsForLoan returns disbursements ordered by date ascending.
	GetDisbursementsForLoan(loanID uuid.UUID) ([]*models.Disbursement, error)

	CreateScenario(sc *models.ForecastScenario) error
	GetScenariosForLoan(loanID uuid.UUID) ([]*models.ForecastScenario, error)
	DeleteScenario(id uuid.UUID) error

	Close() error
}
