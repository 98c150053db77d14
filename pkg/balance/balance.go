// Package balance implements the full-history balance cascade: after any
// payment insert, update or delete, every payment's post-payment balance is
// recomputed from the loan's original principal in chronological order. There
// is no partial recompute. Replaying the whole chain is what keeps edits
// anywhere in the history from drifting the balances after them.
package balance

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rajanms/emitrack/pkg/models"
)

// Chronological sorts payments in place by payment date ascending, breaking
// same-day ties on the id's string form so replays are deterministic.
func Chronological(payments []*models.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		if !payments[i].PaymentDate.Equal(payments[j].PaymentDate) {
			return payments[i].PaymentDate.Before(payments[j].PaymentDate)
		}
		return payments[i].ID.String() < payments[j].ID.String()
	})
}

// Cascade seeds a running balance at the loan's original principal, walks the
// payments chronologically subtracting each principal component, and
// overwrites every BalanceRemaining with the running result. It returns the
// payments in the order they were replayed.
func Cascade(principal decimal.Decimal, payments []*models.Payment) []*models.Payment {
	replay := make([]*models.Payment, len(payments))
	copy(replay, payments)
	Chronological(replay)

	running := principal
	for _, p := range replay {
		running = running.Sub(p.PrincipalComponent)
		p.BalanceRemaining = running
	}
	return replay
}
