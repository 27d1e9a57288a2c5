package marketplace_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

type disputeFixture struct {
	ledger    marketplace.Ledger
	allocator *marketplace.SlotAllocator
	review    *marketplace.ReviewOrchestrator
	disputes  *marketplace.DisputeAdjudicator
	escrow    *stubEscrow
	task      marketplace.Task
	sub       marketplace.Submission
}

// newDisputeFixture drives a task to one rejected submission, ready for a
// dispute.
func newDisputeFixture(t *testing.T, jury marketplace.JuryPanel, window time.Duration) disputeFixture {
	t.Helper()
	ctx := context.Background()
	ledger := newLedger(t)
	allocator := marketplace.NewSlotAllocator(ledger, nil)
	escrow := &stubEscrow{}
	review := marketplace.NewReviewOrchestrator(ledger, escrow, nil, "platform")
	disputes := marketplace.NewDisputeAdjudicator(ledger, jury, review, nil, window)

	task := seedActiveTask(t, ledger, "creator-1", 1, 40000)
	seedAgent(t, ledger, "agent-1")
	app := acceptWorker(t, allocator, task, "agent-1")

	sub, err := review.SubmitWork(ctx, app.ApplicationID, "agent-1", map[string]any{"result": "labels attached"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := review.ReviewSubmission(ctx, sub.SubmissionID, "creator-1", marketplace.DecisionReject, "coverage too low"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	return disputeFixture{
		ledger:    ledger,
		allocator: allocator,
		review:    review,
		disputes:  disputes,
		escrow:    escrow,
		task:      task,
		sub:       sub,
	}
}

// waitForDisputeStatus polls until the background jury review lands the
// dispute in the wanted status.
func waitForDisputeStatus(t *testing.T, ledger marketplace.Ledger, disputeID string, want marketplace.DisputeStatus) marketplace.Dispute {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		d, err := ledger.GetDispute(context.Background(), disputeID)
		if err != nil {
			t.Fatalf("get dispute: %v", err)
		}
		if d.Status == want {
			return d
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dispute %s never reached %s", disputeID, want)
	return marketplace.Dispute{}
}

func TestOpenDispute(t *testing.T) {
	ctx := context.Background()

	t.Run("freezes_submission_and_pins_task", func(t *testing.T) {
		fx := newDisputeFixture(t, &stubJury{}, time.Hour)
		d, err := fx.disputes.Open(ctx, fx.sub.SubmissionID, "agent-1", "work met the stated requirements")
		if err != nil {
			t.Fatalf("open: %v", err)
		}

		sub, err := fx.ledger.GetSubmission(ctx, fx.sub.SubmissionID)
		if err != nil {
			t.Fatalf("get submission: %v", err)
		}
		if sub.Status != marketplace.SubmissionDisputed {
			t.Fatalf("expected disputed submission, got %s", sub.Status)
		}
		if sub.PayoutStatus != marketplace.PayoutDisputed {
			t.Fatalf("expected disputed payout, got %s", sub.PayoutStatus)
		}
		task, err := fx.ledger.GetTask(ctx, fx.task.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if task.Status != marketplace.TaskDisputed {
			t.Fatalf("expected disputed task, got %s", task.Status)
		}

		waitForDisputeStatus(t, fx.ledger, d.DisputeID, marketplace.DisputeHumanReview)
	})

	t.Run("window_expiry_blocks_dispute", func(t *testing.T) {
		fx := newDisputeFixture(t, &stubJury{}, time.Millisecond)
		time.Sleep(5 * time.Millisecond)
		if _, err := fx.disputes.Open(ctx, fx.sub.SubmissionID, "agent-1", "too late"); !errors.Is(err, marketplace.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("only_the_submitting_agent", func(t *testing.T) {
		fx := newDisputeFixture(t, &stubJury{}, time.Hour)
		if _, err := fx.disputes.Open(ctx, fx.sub.SubmissionID, "agent-9", "not mine"); !errors.Is(err, marketplace.ErrForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
	})

	t.Run("only_rejected_submissions", func(t *testing.T) {
		fx := newDisputeFixture(t, &stubJury{}, time.Hour)
		if _, err := fx.disputes.Open(ctx, fx.sub.SubmissionID, "agent-1", "first"); err != nil {
			t.Fatalf("open: %v", err)
		}
		// Now disputed, a second filing hits the status guard.
		if _, err := fx.disputes.Open(ctx, fx.sub.SubmissionID, "agent-1", "second"); !errors.Is(err, marketplace.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})
}

func TestJuryReview(t *testing.T) {
	ctx := context.Background()

	t.Run("majority_verdict_recorded", func(t *testing.T) {
		jury := &stubJury{votes: []marketplace.DisputeOutcome{
			marketplace.OutcomeWorkerPaid,
			marketplace.OutcomeWorkerPaid,
			marketplace.OutcomeRejectionUpheld,
		}}
		fx := newDisputeFixture(t, jury, time.Hour)
		d, err := fx.disputes.Open(ctx, fx.sub.SubmissionID, "agent-1", "requirements met")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		done := waitForDisputeStatus(t, fx.ledger, d.DisputeID, marketplace.DisputeHumanReview)
		if done.JurorsVoted != 3 {
			t.Fatalf("expected 3 votes, got %d", done.JurorsVoted)
		}
		if done.JuryVerdict == nil || *done.JuryVerdict != marketplace.OutcomeWorkerPaid {
			t.Fatalf("expected worker_paid verdict, got %v", done.JuryVerdict)
		}
		votes, err := fx.ledger.ListJuryVotes(ctx, d.DisputeID)
		if err != nil {
			t.Fatalf("list votes: %v", err)
		}
		if len(votes) != 3 {
			t.Fatalf("expected 3 stored votes, got %d", len(votes))
		}
	})

	t.Run("juror_failures_shrink_the_panel", func(t *testing.T) {
		jury := &stubJury{votes: []marketplace.DisputeOutcome{
			marketplace.OutcomeRejectionUpheld,
			"", // this juror fails
			marketplace.OutcomeRejectionUpheld,
		}}
		fx := newDisputeFixture(t, jury, time.Hour)
		d, err := fx.disputes.Open(ctx, fx.sub.SubmissionID, "agent-1", "requirements met")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		done := waitForDisputeStatus(t, fx.ledger, d.DisputeID, marketplace.DisputeHumanReview)
		if done.JurorsVoted != 2 {
			t.Fatalf("expected 2 votes, got %d", done.JurorsVoted)
		}
		if done.JuryVerdict == nil || *done.JuryVerdict != marketplace.OutcomeRejectionUpheld {
			t.Fatalf("expected rejection_upheld verdict, got %v", done.JuryVerdict)
		}
	})

	t.Run("total_jury_failure_still_reaches_human_review", func(t *testing.T) {
		fx := newDisputeFixture(t, &stubJury{}, time.Hour) // every call fails
		d, err := fx.disputes.Open(ctx, fx.sub.SubmissionID, "agent-1", "requirements met")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		done := waitForDisputeStatus(t, fx.ledger, d.DisputeID, marketplace.DisputeHumanReview)
		if done.JurorsVoted != 0 {
			t.Fatalf("expected 0 votes, got %d", done.JurorsVoted)
		}
		if done.JuryVerdict != nil {
			t.Fatalf("expected no verdict, got %v", *done.JuryVerdict)
		}
	})

	t.Run("rerun_is_rejected", func(t *testing.T) {
		fx := newDisputeFixture(t, &stubJury{}, time.Hour)
		d, err := fx.disputes.Open(ctx, fx.sub.SubmissionID, "agent-1", "requirements met")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		waitForDisputeStatus(t, fx.ledger, d.DisputeID, marketplace.DisputeHumanReview)
		if err := fx.disputes.RunJuryReview(ctx, d.DisputeID); !errors.Is(err, marketplace.ErrConflict) {
			t.Fatalf("expected conflict on rerun, got %v", err)
		}
	})
}

func TestResolveDispute(t *testing.T) {
	ctx := context.Background()

	open := func(t *testing.T, fx disputeFixture) marketplace.Dispute {
		t.Helper()
		d, err := fx.disputes.Open(ctx, fx.sub.SubmissionID, "agent-1", "requirements met")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return waitForDisputeStatus(t, fx.ledger, d.DisputeID, marketplace.DisputeHumanReview)
	}

	t.Run("admin_only", func(t *testing.T) {
		fx := newDisputeFixture(t, &stubJury{}, time.Hour)
		d := open(t, fx)
		if _, err := fx.disputes.Resolve(ctx, d.DisputeID, "creator-1", marketplace.RoleCreator, marketplace.OutcomeWorkerPaid, ""); !errors.Is(err, marketplace.ErrForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
	})

	t.Run("worker_paid_drives_payout", func(t *testing.T) {
		fx := newDisputeFixture(t, &stubJury{}, time.Hour)
		d := open(t, fx)

		resolved, err := fx.disputes.Resolve(ctx, d.DisputeID, "admin-1", marketplace.RoleAdmin, marketplace.OutcomeWorkerPaid, "work meets the bar")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if resolved.Status != marketplace.DisputeResolved {
			t.Fatalf("expected resolved, got %s", resolved.Status)
		}
		if resolved.Outcome == nil || *resolved.Outcome != marketplace.OutcomeWorkerPaid {
			t.Fatalf("expected worker_paid outcome, got %v", resolved.Outcome)
		}

		sub, err := fx.ledger.GetSubmission(ctx, fx.sub.SubmissionID)
		if err != nil {
			t.Fatalf("get submission: %v", err)
		}
		if sub.Status != marketplace.SubmissionApproved {
			t.Fatalf("expected approved after overturn, got %s", sub.Status)
		}
		if sub.PayoutStatus != marketplace.PayoutPaid {
			t.Fatalf("expected paid, got %s", sub.PayoutStatus)
		}
		if fx.escrow.transferTotal() != 40000 {
			t.Fatalf("expected 40000 transferred, got %d", fx.escrow.transferTotal())
		}

		task, err := fx.ledger.GetTask(ctx, fx.task.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if task.Status != marketplace.TaskCompleted {
			t.Fatalf("expected completed after settlement, got %s", task.Status)
		}
	})

	t.Run("rejection_upheld_restores_rejection", func(t *testing.T) {
		fx := newDisputeFixture(t, &stubJury{}, time.Hour)
		d := open(t, fx)

		if _, err := fx.disputes.Resolve(ctx, d.DisputeID, "admin-1", marketplace.RoleAdmin, marketplace.OutcomeRejectionUpheld, "rejection stands"); err != nil {
			t.Fatalf("resolve: %v", err)
		}
		sub, err := fx.ledger.GetSubmission(ctx, fx.sub.SubmissionID)
		if err != nil {
			t.Fatalf("get submission: %v", err)
		}
		if sub.Status != marketplace.SubmissionRejected {
			t.Fatalf("expected rejected, got %s", sub.Status)
		}
		if sub.PayoutStatus != marketplace.PayoutPending {
			t.Fatalf("expected payout back to pending, got %s", sub.PayoutStatus)
		}
		if fx.escrow.transferTotal() != 0 {
			t.Fatalf("expected no transfer, got %d", fx.escrow.transferTotal())
		}
	})

	t.Run("double_resolution_conflicts", func(t *testing.T) {
		fx := newDisputeFixture(t, &stubJury{}, time.Hour)
		d := open(t, fx)
		if _, err := fx.disputes.Resolve(ctx, d.DisputeID, "admin-1", marketplace.RoleAdmin, marketplace.OutcomeRejectionUpheld, "stands"); err != nil {
			t.Fatalf("first resolve: %v", err)
		}
		if _, err := fx.disputes.Resolve(ctx, d.DisputeID, "admin-1", marketplace.RoleAdmin, marketplace.OutcomeWorkerPaid, "flip"); !errors.Is(err, marketplace.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})
}
