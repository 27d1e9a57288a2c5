package marketplace

// ResolvePayoutAmount returns the per-worker payout for a fixed-payment
// task. Precedence: the explicit payment_per_worker field when set,
// otherwise an even split of the total budget across max_workers.
func ResolvePayoutAmount(t Task) int64 {
	if t.PaymentPerWorkerCents > 0 {
		return t.PaymentPerWorkerCents
	}
	if t.MaxWorkers > 0 {
		return t.TotalBudgetCents / int64(t.MaxWorkers)
	}
	return t.TotalBudgetCents
}

// ResolveEscrowSource returns the wallet a payout is drawn from.
// Precedence: the task's own escrow wallet when funded, otherwise the
// platform-level fallback wallet.
func ResolveEscrowSource(t Task, platformWalletRef string) string {
	if t.EscrowWalletID != "" {
		return t.EscrowWalletID
	}
	return platformWalletRef
}

// MilestoneAmount computes a milestone's cash value from its percentage
// weight of the task budget.
func MilestoneAmount(percentage int, totalBudgetCents int64) int64 {
	return totalBudgetCents * int64(percentage) / 100
}

// CancellationRefund computes the refund owed to the creator on soft
// cancel: the full budget minus the configured fee in basis points.
func CancellationRefund(totalBudgetCents int64, feeBps int) int64 {
	fee := totalBudgetCents * int64(feeBps) / 10000
	return totalBudgetCents - fee
}
