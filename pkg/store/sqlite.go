package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rajanms/emitrack/pkg/balance"
	"github.com/rajanms/emitrack/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Foreign keys drive the loan -> payments/history cascade deletes.
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the tables if they don't already exist.
// Decimal fields are stored as TEXT so no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		loan_type TEXT NOT NULL,
		bank_name TEXT NOT NULL DEFAULT '',
		principal_amount TEXT NOT NULL,
		sanctioned_amount TEXT NOT NULL DEFAULT '0',
		interest_rate TEXT NOT NULL,
		rate_type TEXT NOT NULL DEFAULT 'FIXED',
		term_months INTEGER NOT NULL,
		start_date DATETIME NOT NULL,
		emi_amount TEXT NOT NULL,
		payment_frequency TEXT NOT NULL DEFAULT 'MONTHLY',
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		payment_date DATETIME NOT NULL,
		scheduled_date DATETIME NOT NULL,
		principal_component TEXT NOT NULL,
		interest_component TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		type TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		charges TEXT NOT NULL DEFAULT '0',
		balance_remaining TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS rate_changes (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		effective_date DATETIME NOT NULL,
		rate TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS disbursements (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		date DATETIME NOT NULL,
		amount TEXT NOT NULL,
		new_emi TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS forecast_scenarios (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		name TEXT NOT NULL,
		prepayment_type TEXT NOT NULL,
		prepayment_value TEXT NOT NULL,
		start_month INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_payments_loan_date ON payments(loan_id, payment_date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	_, err := s.db.Exec(
		`INSERT INTO loans (id, name, loan_type, bank_name, principal_amount, sanctioned_amount, interest_rate, rate_type, term_months, start_date, emi_amount, payment_frequency, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.Name, loan.LoanType, loan.BankName, loan.PrincipalAmount, loan.SanctionedAmount,
		loan.InterestRate, loan.RateType, loan.TermMonths, loan.StartDate, loan.EMIAmount,
		loan.PaymentFrequency, loan.Status, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

const loanColumns = `id, name, loan_type, bank_name, principal_amount, sanctioned_amount, interest_rate, rate_type, term_months, start_date, emi_amount, payment_frequency, status, created_at, updated_at`

func scanLoan(row interface{ Scan(...any) error }) (*models.Loan, error) {
	var loan models.Loan
	var idStr string
	if err := row.Scan(&idStr, &loan.Name, &loan.LoanType, &loan.BankName, &loan.PrincipalAmount,
		&loan.SanctionedAmount, &loan.InterestRate, &loan.RateType, &loan.TermMonths, &loan.StartDate,
		&loan.EMIAmount, &loan.PaymentFrequency, &loan.Status, &loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	return &loan, nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	result, err := s.db.Exec(
		`UPDATE loans SET name = ?, loan_type = ?, bank_name = ?, principal_amount = ?, sanctioned_amount = ?, interest_rate = ?, rate_type = ?, term_months = ?, start_date = ?, emi_amount = ?, payment_frequency = ?, status = ?, updated_at = ? WHERE id = ?`,
		loan.Name, loan.LoanType, loan.BankName, loan.PrincipalAmount, loan.SanctionedAmount,
		loan.InterestRate, loan.RateType, loan.TermMonths, loan.StartDate, loan.EMIAmount,
		loan.PaymentFrequency, loan.Status, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLoan removes a loan; payments, rate changes, disbursements and
// scenarios follow through the foreign key cascade.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT ` + loanColumns + ` FROM loans ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()
	return collectLoans(rows)
}

// GetActiveLoans retrieves loans that are still accruing.
func (s *SQLiteStore) GetActiveLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT `+loanColumns+` FROM loans WHERE status IN (?, ?) ORDER BY created_at DESC`,
		models.LoanStatusActive, models.LoanStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get active loans: %w", err)
	}
	defer rows.Close()
	return collectLoans(rows)
}

func collectLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// CreatePayment inserts a payment and recascades the loan's balances inside
// one transaction.
func (s *SQLiteStore) CreatePayment(p *models.Payment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO payments (id, loan_id, payment_date, scheduled_date, principal_component, interest_component, total_amount, type, method, charges, balance_remaining, status, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.LoanID.String(), p.PaymentDate, p.ScheduledDate, p.PrincipalComponent,
		p.InterestComponent, p.TotalAmount, p.Type, p.Method, p.Charges, p.BalanceRemaining,
		p.Status, p.Notes, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	if err := s.cascadeBalances(tx, p.LoanID); err != nil {
		return err
	}
	return tx.Commit()
}

const paymentColumns = `id, loan_id, payment_date, scheduled_date, principal_component, interest_component, total_amount, type, method, charges, balance_remaining, status, notes, created_at`

func scanPayment(row interface{ Scan(...any) error }) (*models.Payment, error) {
	var p models.Payment
	var idStr, loanIDStr string
	if err := row.Scan(&idStr, &loanIDStr, &p.PaymentDate, &p.ScheduledDate, &p.PrincipalComponent,
		&p.InterestComponent, &p.TotalAmount, &p.Type, &p.Method, &p.Charges, &p.BalanceRemaining,
		&p.Status, &p.Notes, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ID = uuid.MustParse(idStr)
	p.LoanID = uuid.MustParse(loanIDStr)
	return &p, nil
}

// GetPayment retrieves a payment by its ID.
func (s *SQLiteStore) GetPayment(id uuid.UUID) (*models.Payment, error) {
	row := s.db.QueryRow(`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id.String())
	p, err := scanPayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// UpdatePayment rewrites a payment row and recascades the loan's balances
// inside one transaction.
func (s *SQLiteStore) UpdatePayment(p *models.Payment) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE payments SET payment_date = ?, scheduled_date = ?, principal_component = ?, interest_component = ?, total_amount = ?, type = ?, method = ?, charges = ?, balance_remaining = ?, status = ?, notes = ? WHERE id = ?`,
		p.PaymentDate, p.ScheduledDate, p.PrincipalComponent, p.InterestComponent, p.TotalAmount,
		p.Type, p.Method, p.Charges, p.BalanceRemaining, p.Status, p.Notes, p.ID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update payment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, ErrNotFound
	}

	if err := s.cascadeBalances(tx, p.LoanID); err != nil {
		return 0, err
	}
	return rowsAffected, tx.Commit()
}

// DeletePayment removes a payment and recascades the loan's balances inside
// one transaction.
func (s *SQLiteStore) DeletePayment(id uuid.UUID) (int64, error) {
	var loanIDStr string
	err := s.db.QueryRow(`SELECT loan_id FROM payments WHERE id = ?`, id.String()).Scan(&loanIDStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to look up payment: %w", err)
	}
	loanID := uuid.MustParse(loanIDStr)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM payments WHERE id = ?`, id.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete payment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}

	if err := s.cascadeBalances(tx, loanID); err != nil {
		return 0, err
	}
	return rowsAffected, tx.Commit()
}

// cascadeBalances replays the loan's full payment history from its original
// principal and rewrites every balance_remaining. Runs inside the caller's
// transaction so a mutation and its recompute commit or roll back together.
func (s *SQLiteStore) cascadeBalances(tx *sql.Tx, loanID uuid.UUID) error {
	var principal decimal.Decimal
	err := tx.QueryRow(`SELECT principal_amount FROM loans WHERE id = ?`, loanID.String()).Scan(&principal)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get loan principal: %w", err)
	}

	rows, err := tx.Query(
		`SELECT id, payment_date, principal_component FROM payments WHERE loan_id = ? ORDER BY payment_date ASC, id ASC`,
		loanID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to get payments for cascade: %w", err)
	}

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		var idStr string
		var paymentDate time.Time
		if err := rows.Scan(&idStr, &paymentDate, &p.PrincipalComponent); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan payment for cascade: %w", err)
		}
		p.ID = uuid.MustParse(idStr)
		p.PaymentDate = paymentDate
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error during cascade rows iteration: %w", err)
	}
	rows.Close()

	for _, p := range balance.Cascade(principal, payments) {
		if _, err := tx.Exec(`UPDATE payments SET balance_remaining = ? WHERE id = ?`, p.BalanceRemaining, p.ID.String()); err != nil {
			return fmt.Errorf("failed to write cascaded balance: %w", err)
		}
	}
	return nil
}

// GetPaymentsForLoan retrieves all payments for a loan, most recent first.
func (s *SQLiteStore) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.Query(
		`SELECT `+paymentColumns+` FROM payments WHERE loan_id = ? ORDER BY payment_date DESC, id DESC`,
		loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan payments: %w", err)
	}
	return payments, nil
}

// CreateRateChange appends a rate revision.
func (s *SQLiteStore) CreateRateChange(rc *models.RateChange) error {
	_, err := s.db.Exec(
		`INSERT INTO rate_changes (id, loan_id, effective_date, rate, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rc.ID.String(), rc.LoanID.String(), rc.EffectiveDate, rc.Rate, rc.Reason, rc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rate change: %w", err)
	}
	return nil
}

// GetRateChangesForLoan retrieves rate revisions, latest first.
func (s *SQLiteStore) GetRateChangesForLoan(loanID uuid.UUID) ([]*models.RateChange, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, effective_date, rate, reason, created_at FROM rate_changes WHERE loan_id = ? ORDER BY effective_date DESC`,
		loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate changes for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var changes []*models.RateChange
	for rows.Next() {
		var rc models.RateChange
		var idStr, loanIDStr string
		if err := rows.Scan(&idStr, &loanIDStr, &rc.EffectiveDate, &rc.Rate, &rc.Reason, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rate change row: %w", err)
		}
		rc.ID = uuid.MustParse(idStr)
		rc.LoanID = uuid.MustParse(loanIDStr)
		changes = append(changes, &rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rate change rows iteration: %w", err)
	}
	return changes, nil
}

// CreateDisbursement appends a disbursement tranche.
func (s *SQLiteStore) CreateDisbursement(d *models.Disbursement) error {
	_, err := s.db.Exec(
		`INSERT INTO disbursements (id, loan_id, date, amount, new_emi, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID.String(), d.LoanID.String(), d.Date, d.Amount, d.NewEMI, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create disbursement: %w", err)
	}
	return nil
}

// GetDisbursementsForLoan retrieves disbursements, oldest first.
func (s *SQLiteStore) GetDisbursementsForLoan(loanID uuid.UUID) ([]*models.Disbursement, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, date, amount, new_emi, created_at FROM disbursements WHERE loan_id = ? ORDER BY date ASC`,
		loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get disbursements for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var disbursements []*models.Disbursement
	for rows.Next() {
		var d models.Disbursement
		var idStr, loanIDStr string
		if err := rows.Scan(&idStr, &loanIDStr, &d.Date, &d.Amount, &d.NewEMI, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan disbursement row: %w", err)
		}
		d.ID = uuid.MustParse(idStr)
		d.LoanID = uuid.MustParse(loanIDStr)
		disbursements = append(disbursements, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during disbursement rows iteration: %w", err)
	}
	return disbursements, nil
}

// CreateScenario persists a forecast scenario's defining parameters.
func (s *SQLiteStore) CreateScenario(sc *models.ForecastScenario) error {
	_, err := s.db.Exec(
		`INSERT INTO forecast_scenarios (id, loan_id, name, prepayment_type, prepayment_value, start_month, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sc.ID.String(), sc.LoanID.String(), sc.Name, sc.PrepaymentType, sc.PrepaymentValue, sc.StartMonth, sc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create scenario: %w", err)
	}
	return nil
}

// GetScenariosForLoan retrieves saved scenarios, newest first.
func (s *SQLiteStore) GetScenariosForLoan(loanID uuid.UUID) ([]*models.ForecastScenario, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, name, prepayment_type, prepayment_value, start_month, created_at FROM forecast_scenarios WHERE loan_id = ? ORDER BY created_at DESC`,
		loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get scenarios for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var scenarios []*models.ForecastScenario
	for rows.Next() {
		var sc models.ForecastScenario
		var idStr, loanIDStr string
		if err := rows.Scan(&idStr, &loanIDStr, &sc.Name, &sc.PrepaymentType, &sc.PrepaymentValue, &sc.StartMonth, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scenario row: %w", err)
		}
		sc.ID = uuid.MustParse(idStr)
		sc.LoanID = uuid.MustParse(loanIDStr)
		scenarios = append(scenarios, &sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during scenario rows iteration: %w", err)
	}
	return scenarios, nil
}

// DeleteScenario removes a saved scenario.
func (s *SQLiteStore) DeleteScenario(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM forecast_scenarios WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete scenario: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
