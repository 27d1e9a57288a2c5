package marketplace

import "context"

// Ledger abstracts marketplace persistence. Implementations must make the
// conditional ops atomic: a returned false means the guard predicate did not
// match at commit time, which callers surface as a Conflict rather than
// retrying. Multi-row methods (ReleaseWorker, WithdrawAccepted,
// RejectPendingApplications) run in a single transaction.
type Ledger interface {
	// Tasks.
	CreateTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	// UpdateTask persists the task's mutable fields wholesale. Status is
	// written too; race-sensitive status moves go through the conditional
	// helpers instead.
	UpdateTask(ctx context.Context, t Task) error
	UpdateTaskStatus(ctx context.Context, id string, status TaskStatus) error
	// TryReserveSlot increments current_workers only while it is below
	// max_workers, as one atomic statement. false means the task was full.
	TryReserveSlot(ctx context.Context, taskID string) (bool, error)
	// ReleaseSlot atomically decrements current_workers, flooring at zero.
	ReleaseSlot(ctx context.Context, taskID string) error
	// ReleaseWorker moves an accepted application to released and
	// decrements the task's worker count in the same transaction.
	ReleaseWorker(ctx context.Context, applicationID string) error
	DeleteTask(ctx context.Context, id string) error

	// Applications. CreateApplication enforces uniqueness per (task, agent).
	CreateApplication(ctx context.Context, a Application) error
	GetApplication(ctx context.Context, id string) (Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error)
	// TransitionApplication changes status only if the current status
	// matches from. false means another writer won.
	TransitionApplication(ctx context.Context, id string, from, to ApplicationStatus) (bool, error)
	UpdateApplicationPayment(ctx context.Context, id string, amountCents int64) error
	// RejectPendingApplications bulk-rejects every pending application on a
	// task and returns the ones it rejected.
	RejectPendingApplications(ctx context.Context, taskID string) ([]Application, error)
	DeleteApplication(ctx context.Context, id string) error
	// WithdrawAccepted deletes an accepted application and frees its slot
	// in the same transaction.
	WithdrawAccepted(ctx context.Context, applicationID string) error

	// Submissions. CreateSubmission enforces one submission per application.
	CreateSubmission(ctx context.Context, s Submission) error
	GetSubmission(ctx context.Context, id string) (Submission, error)
	GetSubmissionByApplication(ctx context.Context, applicationID string) (Submission, error)
	ListSubmissions(ctx context.Context, taskIDs []string) ([]Submission, error)
	// TransitionSubmission changes review status only if the current status
	// matches from. This is the double-approve guard. Implementations stamp
	// reviewed_at on any transition out of submitted and rejected_at when
	// moving into rejected.
	TransitionSubmission(ctx context.Context, id string, from, to SubmissionStatus) (bool, error)
	UpdateSubmissionPayout(ctx context.Context, id string, status PayoutStatus, txHash string, amountCents int64) error
	AppendSubmissionNotes(ctx context.Context, id string, notes string) error

	// Milestones.
	ReplaceMilestones(ctx context.Context, taskID string, ms []Milestone) error
	GetMilestone(ctx context.Context, id string) (Milestone, error)
	ListMilestones(ctx context.Context, taskID string) ([]Milestone, error)
	TransitionMilestone(ctx context.Context, id string, from, to MilestoneStatus) (bool, error)
	UpdateMilestoneDeliverable(ctx context.Context, id string, deliverable string) error
	UpdateMilestonePayout(ctx context.Context, id string, status PayoutStatus, txHash string) error

	// Disputes. CreateDispute enforces one dispute per submission.
	CreateDispute(ctx context.Context, d Dispute) error
	GetDispute(ctx context.Context, id string) (Dispute, error)
	ListDisputes(ctx context.Context, filter DisputeFilter) ([]Dispute, error)
	TransitionDispute(ctx context.Context, id string, from, to DisputeStatus) (bool, error)
	UpdateDisputeVerdict(ctx context.Context, id string, verdict *DisputeOutcome, jurorsVoted int) error
	ResolveDispute(ctx context.Context, id string, outcome DisputeOutcome, resolvedBy, notes string) (bool, error)
	AddJuryVote(ctx context.Context, v JuryVote) error
	ListJuryVotes(ctx context.Context, disputeID string) ([]JuryVote, error)

	// Agents.
	GetAgent(ctx context.Context, id string) (Agent, error)
	UpsertAgent(ctx context.Context, a Agent) error
	// CreditAgent adds settled earnings and bumps the completed counter.
	CreditAgent(ctx context.Context, agentID string, amountCents int64) error

	Close()
}
