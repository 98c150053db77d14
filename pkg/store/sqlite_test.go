package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rajanms/emitrack/pkg/models"
)

func newTestStore(t *testing.T, dbFile string) *SQLiteStore {
	t.Helper()
	os.Remove(dbFile)
	t.Cleanup(func() { os.Remove(dbFile) })

	s, err := NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testLoan() *models.Loan {
	return &models.Loan{
		ID:               uuid.New(),
		Name:             "Home loan",
		LoanType:         "HOME",
		BankName:         "Test Bank",
		PrincipalAmount:  decimal.NewFromInt(1000000),
		SanctionedAmount: decimal.NewFromInt(1200000),
		InterestRate:     decimal.RequireFromString("8.5"),
		RateType:         models.RateTypeFloating,
		TermMonths:       240,
		StartDate:        time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		EMIAmount:        decimal.NewFromInt(8678),
		PaymentFrequency: models.FrequencyMonthly,
		Status:           models.LoanStatusActive,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
}

func testPayment(loanID uuid.UUID, date time.Time, principal, interest string) *models.Payment {
	p := decimal.RequireFromString(principal)
	i := decimal.RequireFromString(interest)
	return &models.Payment{
		ID:                 uuid.New(),
		LoanID:             loanID,
		PaymentDate:        date,
		ScheduledDate:      date,
		PrincipalComponent: p,
		InterestComponent:  i,
		TotalAmount:        p.Add(i),
		Type:               models.PaymentTypeEMI,
		Charges:            decimal.Zero,
		Status:             models.PaymentStatusPaid,
		CreatedAt:          time.Now(),
	}
}

func TestSQLiteStore_CreateAndGetLoan(t *testing.T) {
	s := newTestStore(t, "test_store_loan.db")

	loan := testLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	fetched, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}

	if fetched.Name != loan.Name {
		t.Errorf("Expected Name %s, got %s", loan.Name, fetched.Name)
	}
	if !fetched.PrincipalAmount.Equal(loan.PrincipalAmount) {
		t.Errorf("Expected PrincipalAmount %s, got %s", loan.PrincipalAmount, fetched.PrincipalAmount)
	}
	if !fetched.InterestRate.Equal(loan.InterestRate) {
		t.Errorf("Expected InterestRate %s, got %s", loan.InterestRate, fetched.InterestRate)
	}
	if fetched.TermMonths != 240 {
		t.Errorf("Expected TermMonths 240, got %d", fetched.TermMonths)
	}
	if fetched.PaymentFrequency != models.FrequencyMonthly {
		t.Errorf("Expected frequency MONTHLY, got %s", fetched.PaymentFrequency)
	}
}

func TestSQLiteStore_GetLoanNotFound(t *testing.T) {
	s := newTestStore(t, "test_store_notfound.db")

	if _, err := s.GetLoan(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetPayment(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for payment, got %v", err)
	}
	if _, err := s.DeletePayment(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for delete, got %v", err)
	}
}

func TestSQLiteStore_CreatePaymentCascadesBalances(t *testing.T) {
	s := newTestStore(t, "test_store_cascade.db")

	loan := testLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	feb := testPayment(loan.ID, time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC), "1595", "7083.33")
	if err := s.CreatePayment(feb); err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}

	// Inserting an earlier payment must rewrite the later one's balance too.
	jan := testPayment(loan.ID, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), "1000", "0")
	jan.Type = models.PaymentTypePrepayment
	if err := s.CreatePayment(jan); err != nil {
		t.Fatalf("Failed to create earlier payment: %v", err)
	}

	fetchedJan, err := s.GetPayment(jan.ID)
	if err != nil {
		t.Fatalf("Failed to get payment: %v", err)
	}
	if !fetchedJan.BalanceRemaining.Equal(decimal.NewFromInt(999000)) {
		t.Errorf("Expected January balance 999000, got %s", fetchedJan.BalanceRemaining)
	}

	fetchedFeb, _ := s.GetPayment(feb.ID)
	if !fetchedFeb.BalanceRemaining.Equal(decimal.NewFromInt(997405)) {
		t.Errorf("Expected February balance 997405, got %s", fetchedFeb.BalanceRemaining)
	}
}

func TestSQLiteStore_UpdatePaymentRecascades(t *testing.T) {
	s := newTestStore(t, "test_store_update.db")

	loan := testLoan()
	s.CreateLoan(loan)

	p1 := testPayment(loan.ID, time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC), "1595", "7083.33")
	p2 := testPayment(loan.ID, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), "1606", "7072.03")
	s.CreatePayment(p1)
	s.CreatePayment(p2)

	// Rewrite history: p1 was actually a much larger payment.
	p1.PrincipalComponent = decimal.NewFromInt(50000)
	p1.TotalAmount = p1.PrincipalComponent.Add(p1.InterestComponent)
	rows, err := s.UpdatePayment(p1)
	if err != nil {
		t.Fatalf("Failed to update payment: %v", err)
	}
	if rows != 1 {
		t.Errorf("Expected 1 row affected, got %d", rows)
	}

	fetched, _ := s.GetPayment(p2.ID)
	want := decimal.NewFromInt(1000000).Sub(decimal.NewFromInt(50000)).Sub(decimal.NewFromInt(1606))
	if !fetched.BalanceRemaining.Equal(want) {
		t.Errorf("Expected tail balance %s after edit, got %s", want, fetched.BalanceRemaining)
	}
}

func TestSQLiteStore_DeletePaymentRecascades(t *testing.T) {
	s := newTestStore(t, "test_store_delete.db")

	loan := testLoan()
	s.CreateLoan(loan)

	p1 := testPayment(loan.ID, time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC), "1595", "7083.33")
	p2 := testPayment(loan.ID, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), "1606", "7072.03")
	s.CreatePayment(p1)
	s.CreatePayment(p2)

	rows, err := s.DeletePayment(p1.ID)
	if err != nil {
		t.Fatalf("Failed to delete payment: %v", err)
	}
	if rows != 1 {
		t.Errorf("Expected 1 row affected, got %d", rows)
	}

	fetched, _ := s.GetPayment(p2.ID)
	want := decimal.NewFromInt(1000000).Sub(decimal.NewFromInt(1606))
	if !fetched.BalanceRemaining.Equal(want) {
		t.Errorf("Expected balance %s after delete, got %s", want, fetched.BalanceRemaining)
	}
}

func TestSQLiteStore_PaymentsOrderedMostRecentFirst(t *testing.T) {
	s := newTestStore(t, "test_store_order.db")

	loan := testLoan()
	s.CreateLoan(loan)

	mar := testPayment(loan.ID, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), "1606", "7072.03")
	jan := testPayment(loan.ID, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), "1584", "7094.55")
	feb := testPayment(loan.ID, time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC), "1595", "7083.33")
	for _, p := range []*models.Payment{mar, jan, feb} {
		if err := s.CreatePayment(p); err != nil {
			t.Fatalf("Failed to create payment: %v", err)
		}
	}

	payments, err := s.GetPaymentsForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to list payments: %v", err)
	}
	if len(payments) != 3 {
		t.Fatalf("Expected 3 payments, got %d", len(payments))
	}
	if payments[0].ID != mar.ID || payments[1].ID != feb.ID || payments[2].ID != jan.ID {
		t.Errorf("Payments not ordered most recent first")
	}
}

func TestSQLiteStore_RateChangesLatestFirst(t *testing.T) {
	s := newTestStore(t, "test_store_rates.db")

	loan := testLoan()
	s.CreateLoan(loan)

	older := &models.RateChange{
		ID: uuid.New(), LoanID: loan.ID,
		EffectiveDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Rate:          decimal.RequireFromString("8.75"),
		Reason:        "repo rate revision",
		CreatedAt:     time.Now(),
	}
	newer := &models.RateChange{
		ID: uuid.New(), LoanID: loan.ID,
		EffectiveDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Rate:          decimal.RequireFromString("9.0"),
		CreatedAt:     time.Now(),
	}
	s.CreateRateChange(older)
	s.CreateRateChange(newer)

	changes, err := s.GetRateChangesForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to list rate changes: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("Expected 2 rate changes, got %d", len(changes))
	}
	if changes[0].ID != newer.ID {
		t.Errorf("Expected latest change first")
	}
	if !changes[0].Rate.Equal(decimal.RequireFromString("9.0")) {
		t.Errorf("Expected rate 9.0, got %s", changes[0].Rate)
	}
}

func TestSQLiteStore_DisbursementsOldestFirst(t *testing.T) {
	s := newTestStore(t, "test_store_disb.db")

	loan := testLoan()
	s.CreateLoan(loan)

	second := &models.Disbursement{
		ID: uuid.New(), LoanID: loan.ID,
		Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:    decimal.NewFromInt(200000),
		NewEMI:    decimal.NewFromInt(10414),
		CreatedAt: time.Now(),
	}
	first := &models.Disbursement{
		ID: uuid.New(), LoanID: loan.ID,
		Date:      time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Amount:    decimal.NewFromInt(100000),
		NewEMI:    decimal.NewFromInt(9546),
		CreatedAt: time.Now(),
	}
	s.CreateDisbursement(second)
	s.CreateDisbursement(first)

	disbursements, err := s.GetDisbursementsForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to list disbursements: %v", err)
	}
	if len(disbursements) != 2 {
		t.Fatalf("Expected 2 disbursements, got %d", len(disbursements))
	}
	if disbursements[0].ID != first.ID {
		t.Errorf("Expected oldest disbursement first")
	}
}

func TestSQLiteStore_ScenarioRoundTrip(t *testing.T) {
	s := newTestStore(t, "test_store_scenario.db")

	loan := testLoan()
	s.CreateLoan(loan)

	sc := &models.ForecastScenario{
		ID:              uuid.New(),
		LoanID:          loan.ID,
		Name:            "bonus prepayment",
		PrepaymentType:  models.ScenarioTypeLumpsum,
		PrepaymentValue: decimal.NewFromInt(200000),
		StartMonth:      12,
		CreatedAt:       time.Now(),
	}
	if err := s.CreateScenario(sc); err != nil {
		t.Fatalf("Failed to create scenario: %v", err)
	}

	scenarios, err := s.GetScenariosForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to list scenarios: %v", err)
	}
	if len(scenarios) != 1 {
		t.Fatalf("Expected 1 scenario, got %d", len(scenarios))
	}
	got := scenarios[0]
	if got.Name != sc.Name || got.PrepaymentType != models.ScenarioTypeLumpsum || got.StartMonth != 12 {
		t.Errorf("Scenario did not round-trip: %+v", got)
	}
	if !got.PrepaymentValue.Equal(sc.PrepaymentValue) {
		t.Errorf("Expected value %s, got %s", sc.PrepaymentValue, got.PrepaymentValue)
	}

	if err := s.DeleteScenario(sc.ID); err != nil {
		t.Fatalf("Failed to delete scenario: %v", err)
	}
	if err := s.DeleteScenario(sc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on double delete, got %v", err)
	}
}

func TestSQLiteStore_DeleteLoanCascades(t *testing.T) {
	s := newTestStore(t, "test_store_loancascade.db")

	loan := testLoan()
	s.CreateLoan(loan)
	p := testPayment(loan.ID, time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC), "1595", "7083.33")
	s.CreatePayment(p)

	if err := s.DeleteLoan(loan.ID); err != nil {
		t.Fatalf("Failed to delete loan: %v", err)
	}
	if _, err := s.GetPayment(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected payment to be cascade-deleted, got %v", err)
	}
}
