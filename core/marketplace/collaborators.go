package marketplace

import "context"

// TransferResult reports the outcome of an escrow transfer.
type TransferResult struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	Error           string `json:"error,omitempty"`
}

// EscrowGateway executes stablecoin transfers out of a task's escrow wallet.
// The core treats every transfer as at-most-once: a failed call is recorded
// on the entity and left for an explicit, auditable re-drive. It is never
// retried automatically, since the transfer may have landed even though the
// success response was lost.
type EscrowGateway interface {
	// Transfer pays amountCents to destinationAddress. sourceWalletRef is
	// the task escrow wallet when funded, or the platform fallback.
	Transfer(ctx context.Context, destinationAddress string, amountCents int64, sourceWalletRef string) (TransferResult, error)
	// Refund returns escrowed funds to the creator's address.
	Refund(ctx context.Context, creatorAddress string, sourceWalletRef string, amountCents int64) (TransferResult, error)
}

// Notifier delivers fire-and-forget notifications. Failures are swallowed by
// callers; delivery is never on the critical path.
type Notifier interface {
	Notify(recipient, kind, title, message, link string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(recipient, kind, title, message, link string) {}

// JurorContext is the blind bundle handed to each juror: task requirements
// and submission content only. Jurors never see who rejected the work or why.
type JurorContext struct {
	TaskTitle        string         `json:"task_title"`
	TaskDescription  string         `json:"task_description"`
	TaskRequirements string         `json:"task_requirements"`
	SubmissionContent map[string]any `json:"submission_content"`
}

// JuryPanel is a single independent juror invocation. The adjudicator calls
// it exactly three times per dispute.
type JuryPanel interface {
	Vote(ctx context.Context, jc JurorContext) (DisputeOutcome, error)
}
