// Package forecast builds what-if projections on top of a loan's current
// state: baseline continuation, lumpsum and recurring prepayment scenarios,
// hybrid actual+projected timelines, and the savings metrics that compare
// them. Generation never mutates loan or payment state.
package forecast

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

var (
	ErrInvalidAmount  = errors.New("prepayment amount must be positive")
	ErrInvalidMonth   = errors.New("prepayment month is outside the remaining term")
	ErrInvalidPercent = errors.New("increase percentage must be greater than 0 and at most 100")
)

var (
	epsilon = decimal.RequireFromString("0.01")
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
	// netBenefitHaircut is the opportunity-cost factor applied to prepaid
	// capital in the net benefit heuristic. An approximation, not a
	// financial guarantee.
	netBenefitHaircut = decimal.RequireFromString("0.05")
)

// Scenario is one generated projection together with its delta against the
// baseline current at generation time.
type Scenario struct {
	Type          models.ScenarioType `json:"type"`
	Name          string              `json:"name"`
	Schedule      schedule.Schedule   `json:"schedule"`
	Summary       schedule.Summary    `json:"summary"`
	InterestSaved decimal.Decimal     `json:"interest_saved"`
	MonthsSaved   int                 `json:"months_saved"`
	TotalPrepaid  decimal.Decimal     `json:"total_prepaid"`
}

// Forecaster projects a single loan forward from its current state. The
// state is captured at construction; build a fresh Forecaster after recording
// payments.
type Forecaster struct {
	storage store.Storage
	loan    *models.Loan

	outstanding     decimal.Decimal
	monthsElapsed   int
	remainingMonths int
	// activeRate is the revision in effect today; latestRate is the most
	// recent revision on record regardless of effective date. Scenarios
	// project at activeRate, the hybrid timeline at latestRate.
	activeRate decimal.Decimal
	latestRate decimal.Decimal

	now func() time.Time
}

// NewForecaster captures the loan's current state: outstanding balance from
// the most recent payment (principal when none exist), months elapsed from
// the count of paid installments, and the active rate from the rate-change
// history.
func NewForecaster(s store.Storage, loanID uuid.UUID) (*Forecaster, error) {
	loan, err := s.GetLoan(loanID)
	if err != nil {
		return nil, fmt.Errorf("forecaster for loan %s: %w", loanID, err)
	}
	payments, err := s.GetPaymentsForLoan(loanID)
	if err != nil {
		return nil, fmt.Errorf("forecaster for loan %s: %w", loanID, err)
	}
	changes, err := s.GetRateChangesForLoan(loanID)
	if err != nil {
		return nil, fmt.Errorf("forecaster for loan %s: %w", loanID, err)
	}

	outstanding := loan.PrincipalAmount
	if len(payments) > 0 {
		outstanding = payments[0].BalanceRemaining
	}

	elapsed := 0
	for _, p := range payments {
		if p.Status == models.PaymentStatusPaid {
			elapsed++
		}
	}
	remaining := loan.TermMonths - elapsed
	if remaining < 0 {
		remaining = 0
	}

	// Changes arrive latest first. A revision only becomes active once its
	// effective date arrives; a future-dated one must not drive today's
	// projections.
	now := time.Now()
	active := loan.InterestRate
	for _, c := range changes {
		if !c.EffectiveDate.After(now) {
			active = c.Rate
			break
		}
	}
	latest := loan.InterestRate
	if len(changes) > 0 {
		latest = changes[0].Rate
	}

	return &Forecaster{
		storage:         s,
		loan:            loan,
		outstanding:     outstanding,
		monthsElapsed:   elapsed,
		remainingMonths: remaining,
		activeRate:      active,
		latestRate:      latest,
		now:             time.Now,
	}, nil
}

// Outstanding reports the balance the forecaster is projecting from.
func (f *Forecaster) Outstanding() decimal.Decimal { return f.outstanding }

// RemainingMonths reports the term left to project over.
func (f *Forecaster) RemainingMonths() int { return f.remainingMonths }

func (f *Forecaster) generator() *schedule.Generator {
	return schedule.NewGenerator(schedule.Terms{
		Principal:    f.outstanding,
		AnnualRate:   f.activeRate,
		TenureMonths: f.remainingMonths,
		EMI:          f.loan.EMIAmount,
		StartDate:    f.now(),
		Frequency:    f.loan.PaymentFrequency,
	})
}

// Baseline projects the loan forward with no prepayments or rate changes
// beyond what is already recorded.
func (f *Forecaster) Baseline() Scenario {
	gen := f.generator()
	rows := gen.Standard()
	return Scenario{
		Type:     models.ScenarioTypeBaseline,
		Name:     "baseline",
		Schedule: rows,
		Summary:  gen.Summarize(rows),
	}
}

// Lumpsum projects a one-time prepayment of amount at the given month offset
// from now.
func (f *Forecaster) Lumpsum(amount decimal.Decimal, month int) (Scenario, error) {
	if !amount.IsPositive() {
		return Scenario{}, ErrInvalidAmount
	}
	if month < 1 || month > f.remainingMonths {
		return Scenario{}, ErrInvalidMonth
	}

	gen := f.generator()
	rows, summary := gen.WithPrepayments([]schedule.PrepaymentEvent{{Month: month, Amount: amount}})
	diff := schedule.Compare(f.Baseline().Schedule, rows)

	return Scenario{
		Type:          models.ScenarioTypeLumpsum,
		Name:          fmt.Sprintf("lumpsum %s at month %d", amount.StringFixed(0), month),
		Schedule:      rows,
		Summary:       summary,
		InterestSaved: diff.InterestSaved,
		MonthsSaved:   diff.MonthsSaved,
		TotalPrepaid:  summary.TotalPrepayment,
	}, nil
}

// RecurringIncrease projects paying a fixed percentage over the current EMI
// from startMonth onward. The excess over the base installment is tracked as
// an extra payment on every affected row.
func (f *Forecaster) RecurringIncrease(pct decimal.Decimal, startMonth int) (Scenario, error) {
	if !pct.IsPositive() || pct.GreaterThan(hundred) {
		return Scenario{}, ErrInvalidPercent
	}
	if startMonth < 1 || startMonth > f.remainingMonths {
		return Scenario{}, ErrInvalidMonth
	}

	baseEMI := f.loan.EMIAmount
	increasedEMI := baseEMI.Mul(one.Add(pct.Div(hundred))).Round(2)
	freq := f.loan.PaymentFrequency.Months()
	start := f.now()

	var rows schedule.Schedule
	outstanding := f.outstanding
	maxPayments := f.remainingMonths / freq

	for p := 0; p < maxPayments; p++ {
		if outstanding.LessThanOrEqual(epsilon) {
			break
		}
		month := (p + 1) * freq

		installment := baseEMI
		extra := decimal.Zero
		if month >= startMonth {
			installment = increasedEMI
			extra = increasedEMI.Sub(baseEMI)
		}

		principal, interest := fincalc.SplitPayment(installment, outstanding, f.activeRate)
		actualEMI := installment
		if principal.GreaterThan(outstanding) || p == maxPayments-1 {
			principal = outstanding
			actualEMI = principal.Add(interest)
			extra = decimal.Zero
		}

		outstanding = outstanding.Sub(principal)
		if outstanding.LessThan(epsilon) {
			outstanding = decimal.Zero
		}

		rows = append(rows, schedule.Row{
			PaymentNumber: p + 1,
			Month:         month,
			Date:          schedule.AddMonths(start, month),
			EMI:           actualEMI.Round(2),
			Principal:     principal,
			Interest:      interest,
			ExtraPayment:  extra.Round(2),
			Balance:       outstanding.Round(2),
		})
	}

	gen := f.generator()
	summary := gen.Summarize(rows)
	diff := schedule.Compare(f.Baseline().Schedule, rows)

	return Scenario{
		Type:          models.ScenarioTypeRecurring,
		Name:          fmt.Sprintf("pay %s%% extra from month %d", pct.StringFixed(0), startMonth),
		Schedule:      rows,
		Summary:       summary,
		InterestSaved: diff.InterestSaved,
		MonthsSaved:   diff.MonthsSaved,
		TotalPrepaid:  summary.TotalPrepayment,
	}, nil
}

// CustomPrepayments projects an arbitrary list of prepayment events. Events
// sharing a month are merged by summing their amounts.
func (f *Forecaster) CustomPrepayments(events []schedule.PrepaymentEvent) (Scenario, error) {
	for _, e := range events {
		if !e.Amount.IsPositive() {
			return Scenario{}, ErrInvalidAmount
		}
		if e.Month < 1 || e.Month > f.remainingMonths {
			return Scenario{}, ErrInvalidMonth
		}
	}

	gen := f.generator()
	rows, summary := gen.WithPrepayments(events)
	diff := schedule.Compare(f.Baseline().Schedule, rows)

	return Scenario{
		Type:          models.ScenarioTypeCustom,
		Name:          fmt.Sprintf("custom plan with %d prepayments", len(events)),
		Schedule:      rows,
		Summary:       summary,
		InterestSaved: diff.InterestSaved,
		MonthsSaved:   diff.MonthsSaved,
		TotalPrepaid:  summary.TotalPrepayment,
	}, nil
}

// HybridRow is one month of the combined actual+projected timeline.
type HybridRow struct {
	Month     int             `json:"month"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Balance   decimal.Decimal `json:"balance"`
	Projected bool            `json:"projected"`
}

// monthIndex places a date on the loan's month axis: whole calendar months
// elapsed since the loan start, so a payment one month in is month 1. Dates
// inside the start month clamp to 1.
func monthIndex(loanStart, d time.Time) int {
	m := (d.Year()-loanStart.Year())*12 + int(d.Month()) - int(loanStart.Month())
	if m < 1 {
		m = 1
	}
	return m
}

// HybridSchedule stitches the recorded paid payments (placed by calendar
// month from the loan start) to a projection that continues from the last
// paid balance at the latest known rate and the loan's stored EMI.
func (f *Forecaster) HybridSchedule() ([]HybridRow, error) {
	payments, err := f.storage.GetPaymentsForLoan(f.loan.ID)
	if err != nil {
		return nil, err
	}

	// Stored order is most recent first; walk backwards for oldest first.
	var rows []HybridRow
	lastBalance := f.loan.PrincipalAmount
	lastDate := f.loan.StartDate
	lastMonth := 0

	for i := len(payments) - 1; i >= 0; i-- {
		p := payments[i]
		if p.Status != models.PaymentStatusPaid {
			continue
		}
		m := monthIndex(f.loan.StartDate, p.PaymentDate)
		rows = append(rows, HybridRow{
			Month:     m,
			Date:      p.PaymentDate,
			Amount:    p.TotalAmount,
			Principal: p.PrincipalComponent,
			Interest:  p.InterestComponent,
			Balance:   p.BalanceRemaining,
			Projected: false,
		})
		lastBalance = p.BalanceRemaining
		lastDate = p.PaymentDate
		if m > lastMonth {
			lastMonth = m
		}
	}

	outstanding := lastBalance
	emi := f.loan.EMIAmount
	for m := lastMonth + 1; m <= f.loan.TermMonths; m++ {
		if !outstanding.IsPositive() {
			break
		}
		principal, interest := fincalc.SplitPayment(emi, outstanding, f.latestRate)
		amount := emi
		if principal.GreaterThanOrEqual(outstanding) {
			principal = outstanding
			amount = principal.Add(interest)
		}
		outstanding = outstanding.Sub(principal)
		if outstanding.LessThan(epsilon) {
			outstanding = decimal.Zero
		}

		rows = append(rows, HybridRow{
			Month:     m,
			Date:      schedule.AddMonths(lastDate, m-lastMonth),
			Amount:    amount.Round(2),
			Principal: principal,
			Interest:  interest,
			Balance:   outstanding.Round(2),
			Projected: true,
		})
	}
	return rows, nil
}

// SavingsReport compares a scenario against the baseline.
type SavingsReport struct {
	InterestSaved      decimal.Decimal `json:"interest_saved"`
	MonthsSaved        int             `json:"months_saved"`
	InterestSavedPct   decimal.Decimal `json:"interest_saved_pct"`
	TenureReductionPct decimal.Decimal `json:"tenure_reduction_pct"`
	TotalPrepaid       decimal.Decimal `json:"total_prepaid"`
	// NetBenefit discounts the saved interest by a flat haircut on the
	// prepaid capital. A rough heuristic for "was the money better spent
	// elsewhere", nothing more.
	NetBenefit decimal.Decimal `json:"net_benefit"`
}

// Savings diffs a scenario against a freshly generated baseline.
func (f *Forecaster) Savings(sc Scenario) SavingsReport {
	base := f.Baseline()
	diff := schedule.Compare(base.Schedule, sc.Schedule)

	report := SavingsReport{
		InterestSaved: diff.InterestSaved,
		MonthsSaved:   diff.MonthsSaved,
		TotalPrepaid:  sc.TotalPrepaid,
		NetBenefit:    diff.InterestSaved.Sub(sc.TotalPrepaid.Mul(netBenefitHaircut)).Round(2),
	}
	if diff.BaseInterest.IsPositive() {
		report.InterestSavedPct = diff.InterestSaved.Div(diff.BaseInterest).Mul(hundred).Round(2)
	}
	if diff.BaseTenure > 0 {
		report.TenureReductionPct = decimal.NewFromInt(int64(diff.MonthsSaved)).
			Div(decimal.NewFromInt(int64(diff.BaseTenure))).Mul(hundred).Round(2)
	}
	return report
}

// SaveScenario persists only the scenario's defining parameters. Loading
// regenerates the schedule from the loan's live state, so results may differ
// across loads as real payments accrue.
func (f *Forecaster) SaveScenario(name string, scType models.ScenarioType, value decimal.Decimal, startMonth int) (*models.ForecastScenario, error) {
	sc := &models.ForecastScenario{
		ID:              uuid.New(),
		LoanID:          f.loan.ID,
		Name:            name,
		PrepaymentType:  scType,
		PrepaymentValue: value,
		StartMonth:      startMonth,
		CreatedAt:       time.Now(),
	}
	if err := f.storage.CreateScenario(sc); err != nil {
		return nil, fmt.Errorf("failed to save scenario: %w", err)
	}
	return sc, nil
}

// LoadSavedScenarios regenerates every saved lumpsum and recurring scenario
// from the loan's current state. Saved scenarios whose parameters no longer
// validate (a month now past the remaining term, say) are skipped, as are
// types that carry no regenerable parameters.
func (f *Forecaster) LoadSavedScenarios() ([]Scenario, error) {
	saved, err := f.storage.GetScenariosForLoan(f.loan.ID)
	if err != nil {
		return nil, err
	}

	var scenarios []Scenario
	for _, s := range saved {
		var sc Scenario
		var genErr error
		switch s.PrepaymentType {
		case models.ScenarioTypeLumpsum:
			sc, genErr = f.Lumpsum(s.PrepaymentValue, s.StartMonth)
		case models.ScenarioTypeRecurring:
			sc, genErr = f.RecurringIncrease(s.PrepaymentValue, s.StartMonth)
		default:
			continue
		}
		if genErr != nil {
			continue
		}
		sc.Name = s.Name
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}
