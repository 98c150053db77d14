// Package fincalc provides the pure financial primitives for reducing-balance
// loans. All functions are stateless and never return errors: out-of-domain
// inputs degrade to documented zero outputs so that callers higher up decide
// how to surface them.
package fincalc

import (
	"math"

	"github.com/shopspring/decimal"
)

const MonthsInYear = 12

var (
	one         = decimal.NewFromInt(1)
	ratePerCent = decimal.NewFromInt(MonthsInYear * 100)
)

// MonthlyRate converts an annual percentage rate to a monthly fraction,
// e.g. 8.5 -> 8.5/1200.
func MonthlyRate(annualRatePct decimal.Decimal) decimal.Decimal {
	return annualRatePct.Div(ratePerCent)
}

// EMI computes the equated installment using the reducing balance formula
//
//	EMI = P * r * (1+r)^n / ((1+r)^n - 1)
//
// The result is rounded half-away-from-zero to a whole currency unit; the
// currency has no usable sub-unit for display and recorded schedules depend
// on this exact rounding. A zero rate degenerates to straight-line principal
// split, rounded to 2 places. Non-positive principal or tenure yields zero.
func EMI(principal, annualRatePct decimal.Decimal, tenureMonths int) decimal.Decimal {
	if !principal.IsPositive() || tenureMonths <= 0 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(tenureMonths))
	if annualRatePct.IsZero() {
		return principal.Div(n).Round(2)
	}

	r := MonthlyRate(annualRatePct)
	factor := one.Add(r).Pow(n)
	emi := principal.Mul(r).Mul(factor).Div(factor.Sub(one))
	return emi.Round(0)
}

// SplitPayment divides one installment into principal and interest components
// against the current outstanding balance. The principal component is clamped
// so it never exceeds the outstanding (the final-period case). A non-positive
// outstanding sends the whole installment to principal.
func SplitPayment(installment, outstanding, annualRatePct decimal.Decimal) (principal, interest decimal.Decimal) {
	if !outstanding.IsPositive() {
		return installment.Round(2), decimal.Zero
	}

	interest = outstanding.Mul(MonthlyRate(annualRatePct))
	principal = installment.Sub(interest)
	if principal.GreaterThan(outstanding) {
		principal = outstanding
	}
	return principal.Round(2), interest.Round(2)
}

// PrepaymentImpact summarizes the effect of a one-time prepayment.
type PrepaymentImpact struct {
	NewBalance    decimal.Decimal `json:"new_balance"`
	NewTenure     int             `json:"new_tenure"`
	MonthsSaved   int             `json:"months_saved"`
	InterestSaved decimal.Decimal `json:"interest_saved"`
	// NewEMI is the alternative outcome: keep the original tenure and lower
	// the installment instead. Callers pick one of the two.
	NewEMI decimal.Decimal `json:"new_emi"`
}

// CalculatePrepaymentImpact solves the post-prepayment tenure analytically:
//
//	n = ln(EMI / (EMI - P*r)) / ln(1+r)
//
// rounded up to whole months. When the installment does not even cover the
// interest on the reduced principal, the tenure falls back to remainingMonths
// unchanged; callers observe the infeasibility through near-zero MonthsSaved
// rather than an error. A prepayment covering the full outstanding closes the
// loan immediately.
func CalculatePrepaymentImpact(outstanding, prepayment, annualRatePct decimal.Decimal, remainingMonths int, currentEMI decimal.Decimal) PrepaymentImpact {
	originalInterest := currentEMI.Mul(decimal.NewFromInt(int64(remainingMonths))).Sub(outstanding)

	if prepayment.GreaterThanOrEqual(outstanding) {
		return PrepaymentImpact{
			NewBalance:    decimal.Zero,
			NewTenure:     0,
			MonthsSaved:   remainingMonths,
			InterestSaved: originalInterest.Round(2),
			NewEMI:        decimal.Zero,
		}
	}

	newPrincipal := outstanding.Sub(prepayment)

	var newTenure int
	if annualRatePct.IsZero() {
		if currentEMI.IsPositive() {
			newTenure = int(newPrincipal.Div(currentEMI).Ceil().IntPart())
		} else {
			newTenure = remainingMonths
		}
	} else {
		r := MonthlyRate(annualRatePct)
		if currentEMI.LessThanOrEqual(newPrincipal.Mul(r)) {
			// Installment cannot amortize the reduced principal.
			newTenure = remainingMonths
		} else {
			emi := currentEMI.InexactFloat64()
			pr := newPrincipal.Mul(r).InexactFloat64()
			rf := r.InexactFloat64()
			newTenure = int(math.Ceil(math.Log(emi/(emi-pr)) / math.Log(1+rf)))
		}
	}

	newInterest := currentEMI.Mul(decimal.NewFromInt(int64(newTenure))).Sub(newPrincipal)

	return PrepaymentImpact{
		NewBalance:    newPrincipal.Round(2),
		NewTenure:     newTenure,
		MonthsSaved:   remainingMonths - newTenure,
		InterestSaved: originalInterest.Sub(newInterest).Round(2),
		NewEMI:        EMI(newPrincipal, annualRatePct, remainingMonths),
	}
}

// AdjustEMIForDisbursement recomputes the installment after an incremental
// tranche is released, over the remaining tenure.
func AdjustEMIForDisbursement(currentPrincipal, newDisbursement, annualRatePct decimal.Decimal, remainingMonths int) decimal.Decimal {
	return EMI(currentPrincipal.Add(newDisbursement), annualRatePct, remainingMonths)
}

// TotalInterest is the interest payable over the full tenure at a fixed
// installment.
func TotalInterest(principal, emi decimal.Decimal, tenureMonths int) decimal.Decimal {
	return emi.Mul(decimal.NewFromInt(int64(tenureMonths))).Sub(principal).Round(2)
}

// OutstandingPrincipal forward-simulates the balance month by month and
// returns 0 the moment it goes non-positive (early closure).
func OutstandingPrincipal(originalPrincipal, annualRatePct, emi decimal.Decimal, monthsElapsed int) decimal.Decimal {
	if monthsElapsed == 0 {
		return originalPrincipal
	}

	r := MonthlyRate(annualRatePct)
	outstanding := originalPrincipal
	for m := 0; m < monthsElapsed; m++ {
		interest := outstanding.Mul(r)
		outstanding = outstanding.Sub(emi.Sub(interest))
		if !outstanding.IsPositive() {
			return decimal.Zero
		}
	}
	return outstanding.Round(2)
}
