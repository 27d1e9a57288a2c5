package marketplace_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

func TestSubmitWork(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	allocator := marketplace.NewSlotAllocator(ledger, nil)
	review := marketplace.NewReviewOrchestrator(ledger, &stubEscrow{}, nil, "platform")
	task := seedActiveTask(t, ledger, "creator-1", 2, 50000)
	seedAgent(t, ledger, "agent-1")

	app := acceptWorker(t, allocator, task, "agent-1")

	t.Run("requires_content", func(t *testing.T) {
		if _, err := review.SubmitWork(ctx, app.ApplicationID, "agent-1", nil); !errors.Is(err, marketplace.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("only_the_accepted_agent", func(t *testing.T) {
		if _, err := review.SubmitWork(ctx, app.ApplicationID, "agent-9", map[string]any{"r": 1}); !errors.Is(err, marketplace.ErrForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
	})

	t.Run("single_submission_per_application", func(t *testing.T) {
		if _, err := review.SubmitWork(ctx, app.ApplicationID, "agent-1", map[string]any{"result": "done"}); err != nil {
			t.Fatalf("first submit: %v", err)
		}
		if _, err := review.SubmitWork(ctx, app.ApplicationID, "agent-1", map[string]any{"result": "again"}); !errors.Is(err, marketplace.ErrConflict) {
			t.Fatalf("expected conflict on second submission, got %v", err)
		}
	})
}

func TestReviewSubmission(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, escrow *stubEscrow, maxWorkers int) (*marketplace.SlotAllocator, *marketplace.ReviewOrchestrator, marketplace.Task, marketplace.Ledger) {
		ledger := newLedger(t)
		allocator := marketplace.NewSlotAllocator(ledger, nil)
		review := marketplace.NewReviewOrchestrator(ledger, escrow, nil, "platform")
		task := seedActiveTask(t, ledger, "creator-1", maxWorkers, 60000)
		return allocator, review, task, ledger
	}

	t.Run("approval_pays_and_completes", func(t *testing.T) {
		escrow := &stubEscrow{}
		allocator, review, task, ledger := setup(t, escrow, 1)
		seedAgent(t, ledger, "agent-1")

		app := acceptWorker(t, allocator, task, "agent-1")
		sub, err := review.SubmitWork(ctx, app.ApplicationID, "agent-1", map[string]any{"result": "done"})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}

		reviewed, err := review.ReviewSubmission(ctx, sub.SubmissionID, task.CreatorID, marketplace.DecisionApprove, "")
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
		if reviewed.Status != marketplace.SubmissionApproved {
			t.Fatalf("expected approved, got %s", reviewed.Status)
		}
		if reviewed.PayoutStatus != marketplace.PayoutPaid {
			t.Fatalf("expected paid, got %s", reviewed.PayoutStatus)
		}
		if reviewed.PayoutAmountCents != 60000 {
			t.Fatalf("expected 60000 cents, got %d", reviewed.PayoutAmountCents)
		}
		if escrow.transferTotal() != 60000 {
			t.Fatalf("expected escrow transfer of 60000, got %d", escrow.transferTotal())
		}

		agent, err := ledger.GetAgent(ctx, "agent-1")
		if err != nil {
			t.Fatalf("get agent: %v", err)
		}
		if agent.TotalEarningsCents != 60000 || agent.CompletedTasks != 1 {
			t.Fatalf("expected credited agent, got earnings=%d tasks=%d", agent.TotalEarningsCents, agent.CompletedTasks)
		}

		taskNow, err := ledger.GetTask(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if taskNow.Status != marketplace.TaskCompleted {
			t.Fatalf("expected completed, got %s", taskNow.Status)
		}
		if taskNow.CompletedAt == nil {
			t.Fatalf("expected completed_at stamped")
		}
	})

	t.Run("double_approval_conflicts", func(t *testing.T) {
		escrow := &stubEscrow{}
		allocator, review, task, ledger := setup(t, escrow, 1)
		seedAgent(t, ledger, "agent-1")

		app := acceptWorker(t, allocator, task, "agent-1")
		sub, err := review.SubmitWork(ctx, app.ApplicationID, "agent-1", map[string]any{"result": "done"})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if _, err := review.ReviewSubmission(ctx, sub.SubmissionID, task.CreatorID, marketplace.DecisionApprove, ""); err != nil {
			t.Fatalf("first approve: %v", err)
		}
		if _, err := review.ReviewSubmission(ctx, sub.SubmissionID, task.CreatorID, marketplace.DecisionApprove, ""); !errors.Is(err, marketplace.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		if len(escrow.transfers) != 1 {
			t.Fatalf("expected exactly one transfer, got %d", len(escrow.transfers))
		}
	})

	t.Run("failed_transfer_leaves_reconciliation_record", func(t *testing.T) {
		escrow := &stubEscrow{failTransfers: true}
		allocator, review, task, ledger := setup(t, escrow, 1)
		seedAgent(t, ledger, "agent-1")

		app := acceptWorker(t, allocator, task, "agent-1")
		sub, err := review.SubmitWork(ctx, app.ApplicationID, "agent-1", map[string]any{"result": "done"})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		reviewed, err := review.ReviewSubmission(ctx, sub.SubmissionID, task.CreatorID, marketplace.DecisionApprove, "")
		if err != nil {
			t.Fatalf("approve with failing escrow: %v", err)
		}
		if reviewed.Status != marketplace.SubmissionApproved {
			t.Fatalf("expected approved despite payout failure, got %s", reviewed.Status)
		}
		if reviewed.PayoutStatus != marketplace.PayoutFailed {
			t.Fatalf("expected payout failed, got %s", reviewed.PayoutStatus)
		}

		// No earnings credited and the application still holds its slot.
		agent, err := ledger.GetAgent(ctx, "agent-1")
		if err != nil {
			t.Fatalf("get agent: %v", err)
		}
		if agent.TotalEarningsCents != 0 {
			t.Fatalf("expected no credit on failed payout, got %d", agent.TotalEarningsCents)
		}
		appNow, err := ledger.GetApplication(ctx, app.ApplicationID)
		if err != nil {
			t.Fatalf("get app: %v", err)
		}
		if appNow.Status != marketplace.ApplicationAccepted {
			t.Fatalf("expected application still accepted, got %s", appNow.Status)
		}
	})

	t.Run("rejection_requires_notes", func(t *testing.T) {
		escrow := &stubEscrow{}
		allocator, review, task, ledger := setup(t, escrow, 1)
		seedAgent(t, ledger, "agent-1")

		app := acceptWorker(t, allocator, task, "agent-1")
		sub, err := review.SubmitWork(ctx, app.ApplicationID, "agent-1", map[string]any{"result": "done"})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if _, err := review.ReviewSubmission(ctx, sub.SubmissionID, task.CreatorID, marketplace.DecisionReject, ""); !errors.Is(err, marketplace.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		rejected, err := review.ReviewSubmission(ctx, sub.SubmissionID, task.CreatorID, marketplace.DecisionReject, "does not meet requirements")
		if err != nil {
			t.Fatalf("reject: %v", err)
		}
		if rejected.Status != marketplace.SubmissionRejected {
			t.Fatalf("expected rejected, got %s", rejected.Status)
		}
		if rejected.RejectedAt == nil {
			t.Fatalf("expected rejected_at stamped")
		}
	})

	t.Run("partial_approvals_keep_task_in_progress", func(t *testing.T) {
		escrow := &stubEscrow{}
		allocator, review, task, ledger := setup(t, escrow, 3)
		for i := 1; i <= 3; i++ {
			seedAgent(t, ledger, fmt.Sprintf("agent-%d", i))
		}

		var subs []marketplace.Submission
		for i := 1; i <= 3; i++ {
			agentID := fmt.Sprintf("agent-%d", i)
			app := acceptWorker(t, allocator, task, agentID)
			sub, err := review.SubmitWork(ctx, app.ApplicationID, agentID, map[string]any{"result": i})
			if err != nil {
				t.Fatalf("submit %d: %v", i, err)
			}
			subs = append(subs, sub)
		}

		for i := 0; i < 2; i++ {
			if _, err := review.ReviewSubmission(ctx, subs[i].SubmissionID, task.CreatorID, marketplace.DecisionApprove, ""); err != nil {
				t.Fatalf("approve %d: %v", i, err)
			}
		}

		taskNow, err := ledger.GetTask(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if taskNow.Status != marketplace.TaskInProgress {
			t.Fatalf("expected in_progress with one worker outstanding, got %s", taskNow.Status)
		}

		if _, err := review.ReviewSubmission(ctx, subs[2].SubmissionID, task.CreatorID, marketplace.DecisionApprove, ""); err != nil {
			t.Fatalf("approve last: %v", err)
		}
		taskNow, err = ledger.GetTask(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if taskNow.Status != marketplace.TaskCompleted {
			t.Fatalf("expected completed after final approval, got %s", taskNow.Status)
		}
	})
}

func TestMilestoneReview(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	allocator := marketplace.NewSlotAllocator(ledger, nil)
	escrow := &stubEscrow{}
	review := marketplace.NewReviewOrchestrator(ledger, escrow, nil, "platform")
	tasks := marketplace.NewTaskService(ledger, escrow, nil, 500)
	seedAgent(t, ledger, "agent-1")

	created, err := tasks.Create(ctx, marketplace.TaskInput{
		CreatorID:        "creator-1",
		Title:            "Build a data pipeline",
		Requirements:     "ingest, transform, report",
		TotalBudgetCents: 120000,
		PaymentType:      marketplace.PaymentMilestone,
		MaxWorkers:       1,
		Milestones: []marketplace.MilestoneSpec{
			{Title: "Ingest", Percentage: 30},
			{Title: "Transform", Percentage: 50},
			{Title: "Report", Percentage: 20},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tasks.Activate(ctx, created.TaskID, "creator-1", "ESCROW-m", "0xescrow-m", "base"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	acceptWorker(t, allocator, created, "agent-1")

	ms, err := ledger.ListMilestones(ctx, created.TaskID)
	if err != nil {
		t.Fatalf("list milestones: %v", err)
	}
	if len(ms) != 3 {
		t.Fatalf("expected 3 milestones, got %d", len(ms))
	}
	if ms[0].AmountCents != 36000 || ms[1].AmountCents != 60000 || ms[2].AmountCents != 24000 {
		t.Fatalf("unexpected milestone amounts: %d %d %d", ms[0].AmountCents, ms[1].AmountCents, ms[2].AmountCents)
	}

	t.Run("changes_requested_returns_to_in_progress", func(t *testing.T) {
		if _, err := review.SubmitMilestone(ctx, ms[0].MilestoneID, "agent-1", "ingestion draft"); err != nil {
			t.Fatalf("submit milestone: %v", err)
		}
		m, err := review.ReviewMilestone(ctx, ms[0].MilestoneID, "creator-1", marketplace.DecisionReject, "missing error handling")
		if err != nil {
			t.Fatalf("reject milestone: %v", err)
		}
		if m.Status != marketplace.MilestoneInProgress {
			t.Fatalf("expected in_progress, got %s", m.Status)
		}
		if m.Deliverable == "ingestion draft" {
			t.Fatalf("expected feedback appended to deliverable trail")
		}
	})

	t.Run("approval_pays_milestone_amount", func(t *testing.T) {
		if _, err := review.SubmitMilestone(ctx, ms[0].MilestoneID, "agent-1", "ingestion final"); err != nil {
			t.Fatalf("resubmit milestone: %v", err)
		}
		m, err := review.ReviewMilestone(ctx, ms[0].MilestoneID, "creator-1", marketplace.DecisionApprove, "")
		if err != nil {
			t.Fatalf("approve milestone: %v", err)
		}
		if m.Status != marketplace.MilestoneCompleted {
			t.Fatalf("expected completed, got %s", m.Status)
		}
		if m.PayoutStatus != marketplace.PayoutPaid {
			t.Fatalf("expected paid, got %s", m.PayoutStatus)
		}
		if escrow.transferTotal() != 36000 {
			t.Fatalf("expected 36000 transferred, got %d", escrow.transferTotal())
		}
	})

	t.Run("all_milestones_complete_the_task", func(t *testing.T) {
		for _, m := range ms[1:] {
			if _, err := review.SubmitMilestone(ctx, m.MilestoneID, "agent-1", "deliverable"); err != nil {
				t.Fatalf("submit %s: %v", m.MilestoneID, err)
			}
			if _, err := review.ReviewMilestone(ctx, m.MilestoneID, "creator-1", marketplace.DecisionApprove, ""); err != nil {
				t.Fatalf("approve %s: %v", m.MilestoneID, err)
			}
		}
		taskNow, err := ledger.GetTask(ctx, created.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if taskNow.Status != marketplace.TaskCompleted {
			t.Fatalf("expected completed, got %s", taskNow.Status)
		}
		if escrow.transferTotal() != 120000 {
			t.Fatalf("expected full budget transferred, got %d", escrow.transferTotal())
		}
	})
}
