package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rajanms/emitrack/pkg/models"
)

func TestMemoryStore_NotFound(t *testing.T) {
	m := NewMemoryStore()

	if _, err := m.GetLoan(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := m.UpdatePayment(&models.Payment{ID: uuid.New()}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for update, got %v", err)
	}
	if err := m.DeleteScenario(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for scenario delete, got %v", err)
	}
}

func TestMemoryStore_CascadesLikeSQLite(t *testing.T) {
	m := NewMemoryStore()

	loan := testLoan()
	if err := m.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	feb := testPayment(loan.ID, time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC), "1595", "7083.33")
	if err := m.CreatePayment(feb); err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}

	jan := testPayment(loan.ID, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), "1000", "0")
	jan.Type = models.PaymentTypePrepayment
	if err := m.CreatePayment(jan); err != nil {
		t.Fatalf("Failed to create earlier payment: %v", err)
	}

	fetched, err := m.GetPayment(feb.ID)
	if err != nil {
		t.Fatalf("Failed to get payment: %v", err)
	}
	if !fetched.BalanceRemaining.Equal(decimal.NewFromInt(997405)) {
		t.Errorf("Expected balance 997405 after cascade, got %s", fetched.BalanceRemaining)
	}

	if _, err := m.DeletePayment(jan.ID); err != nil {
		t.Fatalf("Failed to delete payment: %v", err)
	}
	fetched, _ = m.GetPayment(feb.ID)
	if !fetched.BalanceRemaining.Equal(decimal.NewFromInt(998405)) {
		t.Errorf("Expected balance 998405 after delete, got %s", fetched.BalanceRemaining)
	}
}

func TestMemoryStore_PaymentOrdering(t *testing.T) {
	m := NewMemoryStore()

	loan := testLoan()
	m.CreateLoan(loan)

	jan := testPayment(loan.ID, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), "1584", "7094.55")
	mar := testPayment(loan.ID, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), "1606", "7072.03")
	feb := testPayment(loan.ID, time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC), "1595", "7083.33")
	for _, p := range []*models.Payment{jan, mar, feb} {
		m.CreatePayment(p)
	}

	payments, err := m.GetPaymentsForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to list payments: %v", err)
	}
	if len(payments) != 3 {
		t.Fatalf("Expected 3 payments, got %d", len(payments))
	}
	if payments[0].ID != mar.ID || payments[2].ID != jan.ID {
		t.Errorf("Payments not ordered most recent first")
	}
}

func TestMemoryStore_DeleteLoanRemovesHistory(t *testing.T) {
	m := NewMemoryStore()

	loan := testLoan()
	m.CreateLoan(loan)
	p := testPayment(loan.ID, time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC), "1595", "7083.33")
	m.CreatePayment(p)
	m.CreateScenario(&models.ForecastScenario{
		ID: uuid.New(), LoanID: loan.ID, Name: "x",
		PrepaymentType: models.ScenarioTypeLumpsum, PrepaymentValue: decimal.NewFromInt(1000),
	})

	if err := m.DeleteLoan(loan.ID); err != nil {
		t.Fatalf("Failed to delete loan: %v", err)
	}
	if _, err := m.GetPayment(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected payment gone with loan, got %v", err)
	}
	scenarios, _ := m.GetScenariosForLoan(loan.ID)
	if len(scenarios) != 0 {
		t.Errorf("Expected scenarios gone with loan, got %d", len(scenarios))
	}
}
