package models

import "github.com/shopspring/decimal"

// EscrowLedger is the derived money view over a quote's milestones. It is
// computed on demand from milestone statuses; nothing here is stored.
//
// Conservation invariant: TotalPending + TotalHeld + TotalReleased +
// TotalRefunded == TotalCommitted after every transition. A violation is a
// data-integrity bug, not something the engine corrects at runtime.
type EscrowLedger struct {
	TotalCommitted decimal.Decimal `json:"total_committed"`
	TotalPending   decimal.Decimal `json:"total_pending"`
	TotalHeld      decimal.Decimal `json:"total_held"`
	TotalReleased  decimal.Decimal `json:"total_released"`
	TotalRefunded  decimal.Decimal `json:"total_refunded"`

	// ClawbackPending sums refunded milestones whose funds had already been
	// released and still await manual recovery from the contractor.
	ClawbackPending decimal.Decimal `json:"clawback_pending"`

	// OverBudget is set when the committed schedule exceeds the quote budget.
	// Soft signal only; schedules get adjusted manually.
	OverBudget bool `json:"over_budget"`
}

// ComputeEscrowLedger derives the ledger for a quote's milestones.
func ComputeEscrowLedger(quote *Quote) EscrowLedger {
	ledger := EscrowLedger{
		TotalCommitted:  decimal.Zero,
		TotalPending:    decimal.Zero,
		TotalHeld:       decimal.Zero,
		TotalReleased:   decimal.Zero,
		TotalRefunded:   decimal.Zero,
		ClawbackPending: decimal.Zero,
	}

	for i := range quote.Milestones {
		m := &quote.Milestones[i]
		ledger.TotalCommitted = ledger.TotalCommitted.Add(m.Amount)

		switch m.Status {
		case MilestoneStatusPending:
			ledger.TotalPending = ledger.TotalPending.Add(m.Amount)
		case MilestoneStatusEscrowPaid, MilestoneStatusDisputed:
			ledger.TotalHeld = ledger.TotalHeld.Add(m.Amount)
		case MilestoneStatusReleased:
			ledger.TotalReleased = ledger.TotalReleased.Add(m.Amount)
		case MilestoneStatusRefunded:
			ledger.TotalRefunded = ledger.TotalRefunded.Add(m.Amount)
		}

		if m.Status == MilestoneStatusRefunded && m.ClawbackPending != nil && *m.ClawbackPending {
			ledger.ClawbackPending = ledger.ClawbackPending.Add(m.Amount)
		}
	}

	ledger.OverBudget = ledger.TotalCommitted.GreaterThan(quote.TotalBudget)
	return ledger
}

// Conserves reports whether the per-status totals add back up to the
// committed total.
func (l EscrowLedger) Conserves() bool {
	sum := l.TotalPending.Add(l.TotalHeld).Add(l.TotalReleased).Add(l.TotalRefunded)
	return sum.Equal(l.TotalCommitted)
}
