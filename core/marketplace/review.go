package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ReviewDecision is the creator's verdict on a submission or milestone.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

// ReviewOrchestrator drives submission and milestone review, the escrow
// payout that follows approval, and task auto-completion.
type ReviewOrchestrator struct {
	ledger         Ledger
	escrow         EscrowGateway
	notifier       Notifier
	platformWallet string
	log            *logrus.Entry
}

// NewReviewOrchestrator builds a ReviewOrchestrator. platformWallet is the
// fallback source for tasks without their own escrow wallet.
func NewReviewOrchestrator(ledger Ledger, escrow EscrowGateway, notifier Notifier, platformWallet string) *ReviewOrchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ReviewOrchestrator{
		ledger:         ledger,
		escrow:         escrow,
		notifier:       notifier,
		platformWallet: platformWallet,
		log:            logrus.WithField("component", "review_orchestrator"),
	}
}

// SubmitWork files the single submission for an accepted application.
func (ro *ReviewOrchestrator) SubmitWork(ctx context.Context, applicationID, agentID string, content map[string]any) (Submission, error) {
	app, err := ro.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return Submission{}, err
	}
	if app.AgentID != agentID {
		return Submission{}, Forbiddenf("only the accepted agent may submit work")
	}
	if app.Status != ApplicationAccepted {
		return Submission{}, Conflictf("application %s is %s, not accepted", applicationID, app.Status)
	}
	if len(content) == 0 {
		return Submission{}, Validationf("submission content required")
	}

	sub := Submission{
		SubmissionID:  NewID("SUB"),
		ApplicationID: applicationID,
		TaskID:        app.TaskID,
		AgentID:       agentID,
		Status:        SubmissionSubmitted,
		Content:       content,
		PayoutStatus:  PayoutPending,
		CreatedAt:     time.Now(),
	}
	if err := ro.ledger.CreateSubmission(ctx, sub); err != nil {
		return Submission{}, err
	}
	if task, err := ro.ledger.GetTask(ctx, app.TaskID); err == nil {
		ro.notifier.Notify(task.CreatorID, "submission", "Work submitted",
			"A worker submitted deliverables for "+task.Title, "/tasks/"+task.TaskID)
	}
	return sub, nil
}

// ReviewSubmission applies the creator's decision. Approval is guarded by a
// conditional submitted -> approved transition so concurrent reviewers get
// exactly one winner, then drives the escrow payout. A transfer failure
// leaves the submission approved with payout_status failed; that record is
// the input to manual reconciliation and is never silently retried.
func (ro *ReviewOrchestrator) ReviewSubmission(ctx context.Context, submissionID, reviewerID string, decision ReviewDecision, notes string) (Submission, error) {
	sub, err := ro.ledger.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	task, err := ro.ledger.GetTask(ctx, sub.TaskID)
	if err != nil {
		return Submission{}, err
	}
	if task.CreatorID != reviewerID {
		return Submission{}, Forbiddenf("only the task creator may review submissions")
	}

	switch decision {
	case DecisionApprove:
		return ro.approveSubmission(ctx, task, sub)
	case DecisionReject:
		if notes == "" {
			return Submission{}, Validationf("rejection requires review notes")
		}
		return ro.rejectSubmission(ctx, task, sub, notes)
	default:
		return Submission{}, Validationf("decision must be approve or reject")
	}
}

func (ro *ReviewOrchestrator) approveSubmission(ctx context.Context, task Task, sub Submission) (Submission, error) {
	ok, err := ro.ledger.TransitionSubmission(ctx, sub.SubmissionID, SubmissionSubmitted, SubmissionApproved)
	if err != nil {
		return Submission{}, err
	}
	if !ok {
		return Submission{}, Conflictf("submission %s already reviewed", sub.SubmissionID)
	}

	amount := ResolvePayoutAmount(task)
	if err := ro.PayoutSubmission(ctx, task, sub, amount); err != nil {
		return Submission{}, err
	}
	if _, err := RecomputeTaskStatus(ctx, ro.ledger, task.TaskID); err != nil {
		return Submission{}, err
	}
	if t, err := ro.ledger.GetTask(ctx, task.TaskID); err == nil && t.Status == TaskCompleted {
		ro.notifier.Notify(t.CreatorID, "task_completed", "Task completed",
			t.Title+" is fully settled", "/tasks/"+t.TaskID)
	}
	return ro.ledger.GetSubmission(ctx, sub.SubmissionID)
}

// PayoutSubmission executes the escrow transfer for an approved submission
// and records the outcome. Exported because dispute resolution drives the
// same path when a rejection is overturned.
func (ro *ReviewOrchestrator) PayoutSubmission(ctx context.Context, task Task, sub Submission, amountCents int64) error {
	if err := ro.ledger.UpdateSubmissionPayout(ctx, sub.SubmissionID, PayoutProcessing, "", amountCents); err != nil {
		return err
	}

	agent, err := ro.ledger.GetAgent(ctx, sub.AgentID)
	if err != nil {
		return err
	}
	source := ResolveEscrowSource(task, ro.platformWallet)

	metricPayoutsAttempted.Inc()
	result, err := ro.escrow.Transfer(ctx, agent.WalletAddress, amountCents, source)
	if err != nil || !result.Success {
		reason := result.Error
		if err != nil {
			reason = err.Error()
		}
		metricPayoutsFailed.Inc()
		ro.log.WithFields(logrus.Fields{
			"submission_id": sub.SubmissionID,
			"amount_cents":  amountCents,
			"reason":        reason,
		}).Error("escrow transfer failed; payout left for reconciliation")

		if err := ro.ledger.UpdateSubmissionPayout(ctx, sub.SubmissionID, PayoutFailed, "", amountCents); err != nil {
			return err
		}
		return ro.ledger.AppendSubmissionNotes(ctx, sub.SubmissionID,
			fmt.Sprintf("payout failed: %s", reason))
	}

	if err := ro.ledger.UpdateSubmissionPayout(ctx, sub.SubmissionID, PayoutPaid, result.TransactionHash, amountCents); err != nil {
		return err
	}
	if err := ro.ledger.CreditAgent(ctx, sub.AgentID, amountCents); err != nil {
		return err
	}
	if err := ro.ledger.UpdateApplicationPayment(ctx, sub.ApplicationID, amountCents); err != nil {
		return err
	}
	if _, err := ro.ledger.TransitionApplication(ctx, sub.ApplicationID, ApplicationAccepted, ApplicationCompleted); err != nil {
		return err
	}
	metricPayoutCents.Add(float64(amountCents))
	ro.notifier.Notify(sub.AgentID, "payout", "Payment sent",
		fmt.Sprintf("You were paid %d cents for your work", amountCents), "/submissions/"+sub.SubmissionID)
	return nil
}

func (ro *ReviewOrchestrator) rejectSubmission(ctx context.Context, task Task, sub Submission, notes string) (Submission, error) {
	ok, err := ro.ledger.TransitionSubmission(ctx, sub.SubmissionID, SubmissionSubmitted, SubmissionRejected)
	if err != nil {
		return Submission{}, err
	}
	if !ok {
		return Submission{}, Conflictf("submission %s already reviewed", sub.SubmissionID)
	}
	if err := ro.ledger.AppendSubmissionNotes(ctx, sub.SubmissionID, notes); err != nil {
		return Submission{}, err
	}
	ro.notifier.Notify(sub.AgentID, "submission_rejected", "Submission rejected",
		"Your work on "+task.Title+" was rejected", "/submissions/"+sub.SubmissionID)
	return ro.ledger.GetSubmission(ctx, sub.SubmissionID)
}

// SubmitMilestone moves a milestone into review, appending the deliverable
// to the existing trail rather than overwriting it.
func (ro *ReviewOrchestrator) SubmitMilestone(ctx context.Context, milestoneID, agentID, deliverable string) (Milestone, error) {
	ms, err := ro.ledger.GetMilestone(ctx, milestoneID)
	if err != nil {
		return Milestone{}, err
	}
	app, err := ro.acceptedApplication(ctx, ms.TaskID)
	if err != nil {
		return Milestone{}, err
	}
	if app.AgentID != agentID {
		return Milestone{}, Forbiddenf("only the accepted agent may submit milestones")
	}
	if deliverable == "" {
		return Milestone{}, Validationf("deliverable required")
	}

	from := ms.Status
	if from != MilestonePending && from != MilestoneInProgress {
		return Milestone{}, Conflictf("milestone %s is %s and cannot be submitted", milestoneID, from)
	}
	ok, err := ro.ledger.TransitionMilestone(ctx, milestoneID, from, MilestoneUnderReview)
	if err != nil {
		return Milestone{}, err
	}
	if !ok {
		return Milestone{}, Conflictf("milestone %s moved concurrently", milestoneID)
	}
	if err := ro.ledger.UpdateMilestoneDeliverable(ctx, milestoneID, appendTrail(ms.Deliverable, deliverable)); err != nil {
		return Milestone{}, err
	}
	return ro.ledger.GetMilestone(ctx, milestoneID)
}

// ReviewMilestone mirrors submission review for one milestone. Approval
// pays the fixed milestone amount to the task's single accepted worker.
// Rejection is "changes requested": the milestone returns to in_progress
// with the feedback appended to the deliverable trail.
func (ro *ReviewOrchestrator) ReviewMilestone(ctx context.Context, milestoneID, reviewerID string, decision ReviewDecision, notes string) (Milestone, error) {
	ms, err := ro.ledger.GetMilestone(ctx, milestoneID)
	if err != nil {
		return Milestone{}, err
	}
	task, err := ro.ledger.GetTask(ctx, ms.TaskID)
	if err != nil {
		return Milestone{}, err
	}
	if task.CreatorID != reviewerID {
		return Milestone{}, Forbiddenf("only the task creator may review milestones")
	}

	switch decision {
	case DecisionApprove:
		ok, err := ro.ledger.TransitionMilestone(ctx, milestoneID, MilestoneUnderReview, MilestoneCompleted)
		if err != nil {
			return Milestone{}, err
		}
		if !ok {
			return Milestone{}, Conflictf("milestone %s already reviewed", milestoneID)
		}
		if err := ro.payoutMilestone(ctx, task, ms); err != nil {
			return Milestone{}, err
		}
		if _, err := RecomputeTaskStatus(ctx, ro.ledger, task.TaskID); err != nil {
			return Milestone{}, err
		}
		if t, err := ro.ledger.GetTask(ctx, task.TaskID); err == nil && t.Status == TaskCompleted {
			ro.notifier.Notify(t.CreatorID, "task_completed", "Task completed",
				t.Title+" is fully settled", "/tasks/"+t.TaskID)
		}
		return ro.ledger.GetMilestone(ctx, milestoneID)

	case DecisionReject:
		if notes == "" {
			return Milestone{}, Validationf("changes-requested feedback required")
		}
		ok, err := ro.ledger.TransitionMilestone(ctx, milestoneID, MilestoneUnderReview, MilestoneInProgress)
		if err != nil {
			return Milestone{}, err
		}
		if !ok {
			return Milestone{}, Conflictf("milestone %s already reviewed", milestoneID)
		}
		if err := ro.ledger.UpdateMilestoneDeliverable(ctx, milestoneID,
			appendTrail(ms.Deliverable, "changes requested: "+notes)); err != nil {
			return Milestone{}, err
		}
		return ro.ledger.GetMilestone(ctx, milestoneID)

	default:
		return Milestone{}, Validationf("decision must be approve or reject")
	}
}

func (ro *ReviewOrchestrator) payoutMilestone(ctx context.Context, task Task, ms Milestone) error {
	app, err := ro.acceptedApplication(ctx, task.TaskID)
	if err != nil {
		return err
	}
	agent, err := ro.ledger.GetAgent(ctx, app.AgentID)
	if err != nil {
		return err
	}
	if err := ro.ledger.UpdateMilestonePayout(ctx, ms.MilestoneID, PayoutProcessing, ""); err != nil {
		return err
	}

	source := ResolveEscrowSource(task, ro.platformWallet)
	metricPayoutsAttempted.Inc()
	result, err := ro.escrow.Transfer(ctx, agent.WalletAddress, ms.AmountCents, source)
	if err != nil || !result.Success {
		reason := result.Error
		if err != nil {
			reason = err.Error()
		}
		metricPayoutsFailed.Inc()
		ro.log.WithFields(logrus.Fields{
			"milestone_id": ms.MilestoneID,
			"amount_cents": ms.AmountCents,
			"reason":       reason,
		}).Error("milestone escrow transfer failed; payout left for reconciliation")
		return ro.ledger.UpdateMilestonePayout(ctx, ms.MilestoneID, PayoutFailed, "")
	}

	if err := ro.ledger.UpdateMilestonePayout(ctx, ms.MilestoneID, PayoutPaid, result.TransactionHash); err != nil {
		return err
	}
	if err := ro.ledger.CreditAgent(ctx, app.AgentID, ms.AmountCents); err != nil {
		return err
	}
	metricPayoutCents.Add(float64(ms.AmountCents))
	ro.notifier.Notify(app.AgentID, "payout", "Milestone paid",
		fmt.Sprintf("Milestone %d paid out %d cents", ms.Order, ms.AmountCents), "/tasks/"+task.TaskID)
	return nil
}

// acceptedApplication returns the single working application on a milestone
// task.
func (ro *ReviewOrchestrator) acceptedApplication(ctx context.Context, taskID string) (Application, error) {
	apps, err := ro.ledger.ListApplications(ctx, ApplicationFilter{TaskID: taskID})
	if err != nil {
		return Application{}, err
	}
	for _, a := range apps {
		if a.Status == ApplicationAccepted || a.Status == ApplicationCompleted {
			return a, nil
		}
	}
	return Application{}, Validationf("task %s has no accepted worker", taskID)
}

func appendTrail(existing, entry string) string {
	if existing == "" {
		return entry
	}
	return existing + "\n---\n" + entry
}
