// Package schedule builds period-by-period amortization tables from loan
// terms. Generation is pure: the same terms always produce the same table,
// and nothing here touches storage.
package schedule

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rajanms/emitrack/pkg/fincalc"
	"github.com/rajanms/emitrack/pkg/models"
)

// epsilon is the residue below which an outstanding balance snaps to zero.
var epsilon = decimal.RequireFromString("0.01")

// Terms are the inputs a generator runs on. For projections from a loan's
// current state, Principal is the current outstanding and TenureMonths the
// remaining term.
type Terms struct {
	Principal    decimal.Decimal
	AnnualRate   decimal.Decimal // percent
	TenureMonths int
	EMI          decimal.Decimal
	StartDate    time.Time
	Frequency    models.PaymentFrequency
}

// Row is one period's projection. Rate is populated only in rate-change mode,
// Prepayment only when a discrete prepayment lands on the period, and
// ExtraPayment only for recurring-increase projections.
type Row struct {
	PaymentNumber int             `json:"payment_number"`
	Month         int             `json:"month"`
	Date          time.Time       `json:"date"`
	Rate          decimal.Decimal `json:"rate,omitempty"`
	EMI           decimal.Decimal `json:"emi"`
	Principal     decimal.Decimal `json:"principal"`
	Interest      decimal.Decimal `json:"interest"`
	Prepayment    decimal.Decimal `json:"prepayment,omitempty"`
	ExtraPayment  decimal.Decimal `json:"extra_payment,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
}

type Schedule []Row

// Summary aggregates a generated schedule.
type Summary struct {
	TotalInterest   decimal.Decimal `json:"total_interest"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ActualTenure    int             `json:"actual_tenure"` // months, max period index
	TotalPayments   int             `json:"total_payments"`
	Principal       decimal.Decimal `json:"principal"`
	TotalPrepayment decimal.Decimal `json:"total_prepayment"`
}

// PrepaymentEvent schedules a discrete extra principal payment at a month
// offset from the schedule start.
type PrepaymentEvent struct {
	Month  int             `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// RateChange switches the active rate at a month offset from the schedule
// start. The EMI is re-amortized over the remaining tenure at that point.
type RateChange struct {
	Month   int             `json:"month"`
	NewRate decimal.Decimal `json:"new_rate"`
}

type Generator struct {
	terms      Terms
	freqMonths int
}

func NewGenerator(t Terms) *Generator {
	return &Generator{terms: t, freqMonths: t.Frequency.Months()}
}

// AddMonths advances a date by whole calendar months, clamping to the last
// day of shorter months instead of letting Go normalize past month end
// (Jan 31 + 1 month is Feb 28, not Mar 3).
func AddMonths(t time.Time, months int) time.Time {
	d := t.AddDate(0, months, 0)
	if d.Day() != t.Day() {
		d = d.AddDate(0, 0, -d.Day())
	}
	return d
}

// Standard generates the plain amortization table: no prepayments, no rate
// changes. It terminates when the balance reaches zero or the tenure is
// exhausted, truncating the final installment to whatever principal remains.
func (g *Generator) Standard() Schedule {
	t := g.terms

	totalPayments := t.TenureMonths / g.freqMonths
	if t.TenureMonths%g.freqMonths > 0 {
		totalPayments++
	}

	var rows Schedule
	outstanding := t.Principal

	for p := 0; p < totalPayments; p++ {
		if !outstanding.IsPositive() {
			break
		}

		month := (p + 1) * g.freqMonths
		principal, interest := fincalc.SplitPayment(t.EMI, outstanding, t.AnnualRate)

		// The last scheduled period settles whatever principal remains, in
		// either direction, so whole-unit installment rounding never leaves
		// a residue past the tenure.
		actualEMI := t.EMI
		if principal.GreaterThan(outstanding) || p == totalPayments-1 {
			principal = outstanding
			actualEMI = principal.Add(interest)
		}

		outstanding = outstanding.Sub(principal)
		if outstanding.LessThan(epsilon) {
			outstanding = decimal.Zero
		}

		rows = append(rows, Row{
			PaymentNumber: p + 1,
			Month:         month,
			Date:          AddMonths(t.StartDate, month),
			EMI:           actualEMI.Round(2),
			Principal:     principal,
			Interest:      interest,
			Balance:       outstanding.Round(2),
		})
	}

	return rows
}

// WithPrepayments generates the table with discrete prepayments applied in
// the same period as the matching installment. Multiple events on the same
// month are merged by summing their amounts. Returns the schedule together
// with its summary, which includes the total prepaid amount.
func (g *Generator) WithPrepayments(events []PrepaymentEvent) (Schedule, Summary) {
	t := g.terms

	byMonth := make(map[int]decimal.Decimal, len(events))
	for _, e := range events {
		byMonth[e.Month] = byMonth[e.Month].Add(e.Amount)
	}

	maxPayments := t.TenureMonths/g.freqMonths + 1

	var rows Schedule
	outstanding := t.Principal
	totalPrepayment := decimal.Zero

	for p := 0; p < maxPayments; p++ {
		if outstanding.LessThanOrEqual(epsilon) {
			break
		}

		month := (p + 1) * g.freqMonths
		principal, interest := fincalc.SplitPayment(t.EMI, outstanding, t.AnnualRate)

		actualEMI := t.EMI
		if principal.GreaterThan(outstanding) || p == maxPayments-1 {
			principal = outstanding
			actualEMI = principal.Add(interest)
		}

		outstanding = outstanding.Sub(principal)

		prepayment := decimal.Zero
		if amt, ok := byMonth[month]; ok {
			prepayment = amt
			outstanding = outstanding.Sub(amt)
			totalPrepayment = totalPrepayment.Add(amt)
		}

		if outstanding.LessThan(epsilon) {
			outstanding = decimal.Zero
		}

		rows = append(rows, Row{
			PaymentNumber: p + 1,
			Month:         month,
			Date:          AddMonths(t.StartDate, month),
			EMI:           actualEMI.Round(2),
			Principal:     principal,
			Interest:      interest,
			Prepayment:    prepayment.Round(2),
			Balance:       outstanding.Round(2),
		})
	}

	summary := g.Summarize(rows)
	return rows, summary
}

// WithRateChanges generates the table for a floating-rate loan. At each
// period matching a recorded change the active rate switches and the EMI is
// re-amortized for the remaining tenure before that period's split. Every
// row carries the rate in effect for its period.
func (g *Generator) WithRateChanges(changes []RateChange) Schedule {
	t := g.terms

	rateByMonth := make(map[int]decimal.Decimal, len(changes))
	for _, c := range changes {
		rateByMonth[c.Month] = c.NewRate
	}

	maxPayments := t.TenureMonths/g.freqMonths + 1

	var rows Schedule
	outstanding := t.Principal
	currentRate := t.AnnualRate
	emi := t.EMI

	for p := 0; p < maxPayments; p++ {
		if outstanding.LessThanOrEqual(epsilon) {
			break
		}

		month := (p + 1) * g.freqMonths

		if newRate, ok := rateByMonth[month]; ok {
			currentRate = newRate
			emi = fincalc.EMI(outstanding, currentRate, t.TenureMonths-month)
		}

		principal, interest := fincalc.SplitPayment(emi, outstanding, currentRate)

		actualEMI := emi
		if principal.GreaterThan(outstanding) || p == maxPayments-1 {
			principal = outstanding
			actualEMI = principal.Add(interest)
		}

		outstanding = outstanding.Sub(principal)
		if outstanding.LessThan(epsilon) {
			outstanding = decimal.Zero
		}

		rows = append(rows, Row{
			PaymentNumber: p + 1,
			Month:         month,
			Date:          AddMonths(t.StartDate, month),
			Rate:          currentRate,
			EMI:           actualEMI.Round(2),
			Principal:     principal,
			Interest:      interest,
			Balance:       outstanding.Round(2),
		})
	}

	return rows
}

// Summarize aggregates any generated schedule. TotalAmount counts
// installments plus discrete prepayments; TotalPrepayment additionally
// counts the recurring extra-payment portion already inside installments.
func (g *Generator) Summarize(rows Schedule) Summary {
	totalInterest := decimal.Zero
	totalEMI := decimal.Zero
	totalPrepayment := decimal.Zero
	totalExtra := decimal.Zero
	actualTenure := 0

	for _, r := range rows {
		totalInterest = totalInterest.Add(r.Interest)
		totalEMI = totalEMI.Add(r.EMI)
		totalPrepayment = totalPrepayment.Add(r.Prepayment)
		totalExtra = totalExtra.Add(r.ExtraPayment)
		if r.Month > actualTenure {
			actualTenure = r.Month
		}
	}

	return Summary{
		TotalInterest:   totalInterest.Round(2),
		TotalAmount:     totalEMI.Add(totalPrepayment).Round(2),
		ActualTenure:    actualTenure,
		TotalPayments:   len(rows),
		Principal:       g.terms.Principal.Round(2),
		TotalPrepayment: totalPrepayment.Add(totalExtra).Round(2),
	}
}

// MonthlyPortion is one calendar month's share of a schedule, used for
// charting non-monthly frequencies on a monthly axis.
type MonthlyPortion struct {
	Month     int             `json:"month"`
	EMI       decimal.Decimal `json:"emi"`
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
}

// MonthlyBreakup evenly distributes each period's figures across its
// constituent calendar months. Pure redistribution, no new computation.
func (g *Generator) MonthlyBreakup(rows Schedule) []MonthlyPortion {
	if g.freqMonths == 1 {
		portions := make([]MonthlyPortion, 0, len(rows))
		for _, r := range rows {
			portions = append(portions, MonthlyPortion{
				Month:     r.Month,
				EMI:       r.EMI,
				Principal: r.Principal,
				Interest:  r.Interest,
			})
		}
		return portions
	}

	per := decimal.NewFromInt(int64(g.freqMonths))
	var portions []MonthlyPortion
	for _, r := range rows {
		emi := r.EMI.Div(per)
		principal := r.Principal.Div(per)
		interest := r.Interest.Div(per)
		for i := 0; i < g.freqMonths; i++ {
			month := r.Month - g.freqMonths + i + 1
			if month <= 0 {
				continue
			}
			portions = append(portions, MonthlyPortion{
				Month:     month,
				EMI:       emi,
				Principal: principal,
				Interest:  interest,
			})
		}
	}
	return portions
}

// Comparison holds the delta between a base schedule and a modified one.
// Both must share the same starting principal and rate for the numbers to
// be meaningful; that is the caller's responsibility.
type Comparison struct {
	InterestSaved    decimal.Decimal `json:"interest_saved"`
	MonthsSaved      int             `json:"months_saved"`
	BaseInterest     decimal.Decimal `json:"base_interest"`
	ModifiedInterest decimal.Decimal `json:"modified_interest"`
	BaseTenure       int             `json:"base_tenure"`
	ModifiedTenure   int             `json:"modified_tenure"`
}

// Compare diffs two schedules on total interest and tenure.
func Compare(base, modified Schedule) Comparison {
	baseInterest := decimal.Zero
	baseTenure := 0
	for _, r := range base {
		baseInterest = baseInterest.Add(r.Interest)
		if r.Month > baseTenure {
			baseTenure = r.Month
		}
	}

	modInterest := decimal.Zero
	modTenure := 0
	for _, r := range modified {
		modInterest = modInterest.Add(r.Interest)
		if r.Month > modTenure {
			modTenure = r.Month
		}
	}

	return Comparison{
		InterestSaved:    baseInterest.Sub(modInterest).Round(2),
		MonthsSaved:      baseTenure - modTenure,
		BaseInterest:     baseInterest.Round(2),
		ModifiedInterest: modInterest.Round(2),
		BaseTenure:       baseTenure,
		ModifiedTenure:   modTenure,
	}
}
