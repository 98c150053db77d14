package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajanms/emitrack/pkg/balance"
	"github.com/rajanms/emitrack/pkg/models"
)

// MemoryStore is a map-backed Storage implementation. It is used by tests and
// is handy for trying the API without a database file. It honors the same
// cascade contract as the SQLite store.
type MemoryStore struct {
	mu            sync.RWMutex
	loans         map[uuid.UUID]*models.Loan
	payments      map[uuid.UUID]*models.Payment
	rateChanges   map[uuid.UUID]*models.RateChange
	disbursements map[uuid.UUID]*models.Disbursement
	scenarios     map[uuid.UUID]*models.ForecastScenario
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans:         make(map[uuid.UUID]*models.Loan),
		payments:      make(map[uuid.UUID]*models.Payment),
		rateChanges:   make(map[uuid.UUID]*models.RateChange),
		disbursements: make(map[uuid.UUID]*models.Disbursement),
		scenarios:     make(map[uuid.UUID]*models.ForecastScenario),
	}
}

func (m *MemoryStore) CreateLoan(loan *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *loan
	m.loans[loan.ID] = &cp
	return nil
}

func (m *MemoryStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loan, ok := m.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *loan
	return &cp, nil
}

func (m *MemoryStore) UpdateLoan(loan *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[loan.ID]; !ok {
		return ErrNotFound
	}
	cp := *loan
	m.loans[loan.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteLoan(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[id]; !ok {
		return ErrNotFound
	}
	delete(m.loans, id)
	for pid, p := range m.payments {
		if p.LoanID == id {
			delete(m.payments, pid)
		}
	}
	for rid, rc := range m.rateChanges {
		if rc.LoanID == id {
			delete(m.rateChanges, rid)
		}
	}
	for did, d := range m.disbursements {
		if d.LoanID == id {
			delete(m.disbursements, did)
		}
	}
	for sid, sc := range m.scenarios {
		if sc.LoanID == id {
			delete(m.scenarios, sid)
		}
	}
	return nil
}

func (m *MemoryStore) GetAllLoans() ([]*models.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loans := make([]*models.Loan, 0, len(m.loans))
	for _, l := range m.loans {
		cp := *l
		loans = append(loans, &cp)
	}
	sort.Slice(loans, func(i, j int) bool {
		return loans[i].CreatedAt.After(loans[j].CreatedAt)
	})
	return loans, nil
}

func (m *MemoryStore) GetActiveLoans() ([]*models.Loan, error) {
	all, err := m.GetAllLoans()
	if err != nil {
		return nil, err
	}
	var active []*models.Loan
	for _, l := range all {
		if l.Status == models.LoanStatusActive || l.Status == models.LoanStatusPending {
			active = append(active, l)
		}
	}
	return active, nil
}

func (m *MemoryStore) CreatePayment(p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return m.cascadeLocked(p.LoanID)
}

func (m *MemoryStore) GetPayment(id uuid.UUID) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpdatePayment(p *models.Payment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		return 0, ErrNotFound
	}
	cp := *p
	m.payments[p.ID] = &cp
	if err := m.cascadeLocked(p.LoanID); err != nil {
		return 0, err
	}
	return 1, nil
}

func (m *MemoryStore) DeletePayment(id uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return 0, ErrNotFound
	}
	loanID := p.LoanID
	delete(m.payments, id)
	if err := m.cascadeLocked(loanID); err != nil {
		return 0, err
	}
	return 1, nil
}

// cascadeLocked replays the loan's payment history and rewrites the stored
// balances. Callers hold the write lock.
func (m *MemoryStore) cascadeLocked(loanID uuid.UUID) error {
	loan, ok := m.loans[loanID]
	if !ok {
		return ErrNotFound
	}
	var payments []*models.Payment
	for _, p := range m.payments {
		if p.LoanID == loanID {
			payments = append(payments, p)
		}
	}
	balance.Cascade(loan.PrincipalAmount, payments)
	return nil
}

func (m *MemoryStore) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var payments []*models.Payment
	for _, p := range m.payments {
		if p.LoanID == loanID {
			cp := *p
			payments = append(payments, &cp)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].PaymentDate.Equal(payments[j].PaymentDate) {
			return payments[i].PaymentDate.After(payments[j].PaymentDate)
		}
		return payments[i].ID.String() > payments[j].ID.String()
	})
	return payments, nil
}

func (m *MemoryStore) CreateRateChange(rc *models.RateChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rc
	m.rateChanges[rc.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRateChangesForLoan(loanID uuid.UUID) ([]*models.RateChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var changes []*models.RateChange
	for _, rc := range m.rateChanges {
		if rc.LoanID == loanID {
			cp := *rc
			changes = append(changes, &cp)
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].EffectiveDate.After(changes[j].EffectiveDate)
	})
	return changes, nil
}

func (m *MemoryStore) CreateDisbursement(d *models.Disbursement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.disbursements[d.ID] = &cp
	return nil
}

func (m *MemoryStore) GetDisbursementsForLoan(loanID uuid.UUID) ([]*models.Disbursement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var disbursements []*models.Disbursement
	for _, d := range m.disbursements {
		if d.LoanID == loanID {
			cp := *d
			disbursements = append(disbursements, &cp)
		}
	}
	sort.Slice(disbursements, func(i, j int) bool {
		return disbursements[i].Date.Before(disbursements[j].Date)
	})
	return disbursements, nil
}

func (m *MemoryStore) CreateScenario(sc *models.ForecastScenario) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sc
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.scenarios[sc.ID] = &cp
	return nil
}

func (m *MemoryStore) GetScenariosForLoan(loanID uuid.UUID) ([]*models.ForecastScenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var scenarios []*models.ForecastScenario
	for _, sc := range m.scenarios {
		if sc.LoanID == loanID {
			cp := *sc
			scenarios = append(scenarios, &cp)
		}
	}
	sort.Slice(scenarios, func(i, j int) bool {
		return scenarios[i].CreatedAt.After(scenarios[j].CreatedAt)
	})
	return scenarios, nil
}

func (m *MemoryStore) DeleteScenario(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scenarios[id]; !ok {
		return ErrNotFound
	}
	delete(m.scenarios, id)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
