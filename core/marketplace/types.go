package marketplace

import "time"

// TaskStatus enumerates the lifecycle states of a task.
type TaskStatus string

const (
	TaskDraft      TaskStatus = "draft"
	TaskActive     TaskStatus = "active"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskDisputed   TaskStatus = "disputed"
)

// PaymentType selects how a task pays out.
type PaymentType string

const (
	PaymentFixed     PaymentType = "fixed"
	PaymentMilestone PaymentType = "milestone"
)

// ApplicationStatus enumerates worker application states.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
	ApplicationCompleted ApplicationStatus = "completed"
	ApplicationReleased ApplicationStatus = "released"
)

// SubmissionStatus enumerates review states of a work submission.
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionApproved  SubmissionStatus = "approved"
	SubmissionRejected  SubmissionStatus = "rejected"
	SubmissionDisputed  SubmissionStatus = "disputed"
)

// PayoutStatus tracks the escrow transfer independently of review status.
// An approved submission can carry a failed payout; that combination is a
// visible state requiring manual reconciliation, never a silent retry.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutPaid       PayoutStatus = "paid"
	PayoutFailed     PayoutStatus = "failed"
	PayoutDisputed   PayoutStatus = "disputed"
)

// MilestoneStatus enumerates milestone states.
type MilestoneStatus string

const (
	MilestonePending     MilestoneStatus = "pending"
	MilestoneInProgress  MilestoneStatus = "in_progress"
	MilestoneUnderReview MilestoneStatus = "under_review"
	MilestoneCompleted   MilestoneStatus = "completed"
	MilestoneDisputed    MilestoneStatus = "disputed"
)

// DisputeStatus enumerates the adjudication pipeline states.
type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "open"
	DisputeJuryReview  DisputeStatus = "jury_review"
	DisputeHumanReview DisputeStatus = "human_review"
	DisputeResolved    DisputeStatus = "resolved"
)

// DisputeOutcome is both a juror vote and the final resolution decision.
type DisputeOutcome string

const (
	OutcomeWorkerPaid      DisputeOutcome = "worker_paid"
	OutcomeRejectionUpheld DisputeOutcome = "rejection_upheld"
)

// Role classifies an authenticated actor.
type Role string

const (
	RoleCreator Role = "creator"
	RoleAgent   Role = "agent"
	RoleAdmin   Role = "admin"
)

// Task is a unit of work funded through a per-task escrow wallet.
// All money amounts are stablecoin cents.
type Task struct {
	TaskID                string      `json:"task_id"`
	CreatorID             string      `json:"creator_id"`
	Title                 string      `json:"title"`
	Description           string      `json:"description"`
	Requirements          string      `json:"requirements,omitempty"`
	Deadline              *time.Time  `json:"deadline,omitempty"`
	Status                TaskStatus  `json:"status"`
	TotalBudgetCents      int64       `json:"total_budget_cents"`
	PaymentType           PaymentType `json:"payment_type"`
	PaymentPerWorkerCents int64       `json:"payment_per_worker_cents,omitempty"`
	MaxWorkers            int         `json:"max_workers"`
	CurrentWorkers        int         `json:"current_workers"`
	EscrowWalletID        string      `json:"escrow_wallet_id,omitempty"`
	EscrowAddress         string      `json:"escrow_address,omitempty"`
	PaymentChain          string      `json:"payment_chain,omitempty"`
	CompletedAt           *time.Time  `json:"completed_at,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
}

// Application is one agent's bid for a slot on a task. Exactly one exists
// per (task, agent) pair.
type Application struct {
	ApplicationID   string            `json:"application_id"`
	TaskID          string            `json:"task_id"`
	AgentID         string            `json:"agent_id"`
	Status          ApplicationStatus `json:"status"`
	Message         string            `json:"message,omitempty"`
	AcceptedAt      *time.Time        `json:"accepted_at,omitempty"`
	PaidAmountCents int64             `json:"paid_amount_cents,omitempty"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Submission is the single deliverable filed against an accepted
// application. Uniqueness on ApplicationID is the anti-double-submit guard.
type Submission struct {
	SubmissionID      string           `json:"submission_id"`
	ApplicationID     string           `json:"application_id"`
	TaskID            string           `json:"task_id"`
	AgentID           string           `json:"agent_id"`
	Status            SubmissionStatus `json:"status"`
	Content           map[string]any   `json:"content,omitempty"`
	ReviewNotes       string           `json:"review_notes,omitempty"`
	PayoutAmountCents int64            `json:"payout_amount_cents,omitempty"`
	PayoutStatus      PayoutStatus     `json:"payout_status"`
	PayoutTxHash      string           `json:"payout_tx_hash,omitempty"`
	RejectedAt        *time.Time       `json:"rejected_at,omitempty"`
	ReviewedAt        *time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// Milestone is a percentage-weighted sub-deliverable of a milestone task.
// Percentages across a task always sum to 100.
type Milestone struct {
	MilestoneID  string          `json:"milestone_id"`
	TaskID       string          `json:"task_id"`
	Order        int             `json:"order"`
	Title        string          `json:"title"`
	Percentage   int             `json:"percentage"`
	AmountCents  int64           `json:"amount_cents"`
	Status       MilestoneStatus `json:"status"`
	Deliverable  string          `json:"deliverable,omitempty"`
	ReviewNotes  string          `json:"review_notes,omitempty"`
	PayoutStatus PayoutStatus    `json:"payout_status"`
	PayoutTxHash string          `json:"payout_tx_hash,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Dispute reopens a rejected submission into jury-then-human review.
// One dispute may exist per submission.
type Dispute struct {
	DisputeID       string          `json:"dispute_id"`
	SubmissionID    string          `json:"submission_id"`
	TaskID          string          `json:"task_id"`
	AgentID         string          `json:"agent_id"`
	Status          DisputeStatus   `json:"status"`
	Reason          string          `json:"reason"`
	JuryVerdict     *DisputeOutcome `json:"jury_verdict,omitempty"`
	JurorsVoted     int             `json:"jurors_voted"`
	Outcome         *DisputeOutcome `json:"outcome,omitempty"`
	ResolvedBy      string          `json:"resolved_by,omitempty"`
	ResolutionNotes string          `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// JuryVote is one juror's blind verdict on a dispute.
type JuryVote struct {
	VoteID     string         `json:"vote_id"`
	DisputeID  string         `json:"dispute_id"`
	JurorIndex int            `json:"juror_index"`
	Vote       DisputeOutcome `json:"vote"`
	Rationale  string         `json:"rationale,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Agent is a worker profile with settlement totals.
type Agent struct {
	AgentID            string    `json:"agent_id"`
	WalletAddress      string    `json:"wallet_address,omitempty"`
	TotalEarningsCents int64     `json:"total_earnings_cents"`
	CompletedTasks     int       `json:"completed_tasks"`
	Verified           bool      `json:"verified"`
	CreatedAt          time.Time `json:"created_at"`
}

// TaskFilter captures query params for listing tasks.
type TaskFilter struct {
	Status    TaskStatus
	CreatorID string
	Limit     int
	Offset    int
}

// ApplicationFilter captures query params for listing applications.
type ApplicationFilter struct {
	TaskID  string
	AgentID string
	Status  ApplicationStatus
}

// DisputeFilter captures query params for listing disputes.
type DisputeFilter struct {
	Status  DisputeStatus
	AgentID string
	TaskID  string
}

// Event is a lightweight activity entry emitted on lifecycle transitions.
type Event struct {
	Type      string    `json:"type"`
	EntityID  string    `json:"entity_id"`
	Actor     string    `json:"actor"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
