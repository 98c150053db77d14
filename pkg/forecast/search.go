package forecast

import (
	"github.com/shopspring/decimal"
)

var (
	// searchFloor is the smallest prepayment the breakeven search considers.
	searchFloor = decimal.NewFromInt(1000)
	// searchTolerance stops the search once the bracket narrows below it.
	searchTolerance = decimal.NewFromInt(100)
)

// TimingResult is one point of a prepayment timing sweep.
type TimingResult struct {
	Month         int             `json:"month"`
	InterestSaved decimal.Decimal `json:"interest_saved"`
	MonthsSaved   int             `json:"months_saved"`
}

// OptimalPrepaymentTiming sweeps a fixed lumpsum across months 1 through
// min(horizon, remaining term) and reports the savings at each. Months whose
// scenario fails validation are skipped, not fatal.
func (f *Forecaster) OptimalPrepaymentTiming(amount decimal.Decimal, horizonMonths int) ([]TimingResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	limit := horizonMonths
	if f.remainingMonths < limit {
		limit = f.remainingMonths
	}

	var results []TimingResult
	for month := 1; month <= limit; month++ {
		sc, err := f.Lumpsum(amount, month)
		if err != nil {
			continue
		}
		results = append(results, TimingResult{
			Month:         month,
			InterestSaved: sc.InterestSaved,
			MonthsSaved:   sc.MonthsSaved,
		})
	}
	return results, nil
}

// BreakevenResult is the prepayment amount found to hit a months-saved
// target, with the savings it produced.
type BreakevenResult struct {
	Amount        decimal.Decimal `json:"amount"`
	MonthsSaved   int             `json:"months_saved"`
	InterestSaved decimal.Decimal `json:"interest_saved"`
}

// BreakevenPrepayment binary-searches the prepayment amount whose
// months-saved lands within one month of target, paying at the given month.
// It returns nil when the bracket collapses without a hit: a legitimate empty
// result, not an error.
func (f *Forecaster) BreakevenPrepayment(targetMonthsSaved, payAtMonth int) (*BreakevenResult, error) {
	if targetMonthsSaved <= 0 || payAtMonth < 1 || payAtMonth > f.remainingMonths {
		return nil, ErrInvalidMonth
	}

	low := searchFloor
	high := f.outstanding
	if high.LessThanOrEqual(low) {
		return nil, nil
	}

	two := decimal.NewFromInt(2)
	for high.Sub(low).GreaterThan(searchTolerance) {
		mid := low.Add(high).Div(two).Round(0)
		sc, err := f.Lumpsum(mid, payAtMonth)
		if err != nil {
			return nil, err
		}

		diff := sc.MonthsSaved - targetMonthsSaved
		if diff >= -1 && diff <= 1 {
			return &BreakevenResult{
				Amount:        mid,
				MonthsSaved:   sc.MonthsSaved,
				InterestSaved: sc.InterestSaved,
			}, nil
		}
		if sc.MonthsSaved < targetMonthsSaved {
			low = mid
		} else {
			high = mid
		}
	}
	return nil, nil
}
