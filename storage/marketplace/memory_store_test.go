package marketplace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

func storeTask(t *testing.T, s *MemoryStore, maxWorkers int) marketplace.Task {
	t.Helper()
	task := marketplace.Task{
		TaskID:           marketplace.NewID("TASK"),
		CreatorID:        "creator-1",
		Title:            "test task",
		Status:           marketplace.TaskActive,
		TotalBudgetCents: 10000,
		PaymentType:      marketplace.PaymentFixed,
		MaxWorkers:       maxWorkers,
		CreatedAt:        time.Now(),
	}
	if err := s.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestTryReserveSlotConcurrency(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	task := storeTask(t, s, 3)

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	reserved := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TryReserveSlot(ctx, task.TaskID)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			if ok {
				mu.Lock()
				reserved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if reserved != 3 {
		t.Fatalf("expected exactly 3 reservations, got %d", reserved)
	}
	got, err := s.GetTask(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.CurrentWorkers != 3 {
		t.Fatalf("expected 3 workers, got %d", got.CurrentWorkers)
	}

	if err := s.ReleaseSlot(ctx, task.TaskID); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err := s.TryReserveSlot(ctx, task.TaskID)
	if err != nil || !ok {
		t.Fatalf("expected reservation after release, ok=%v err=%v", ok, err)
	}
}

func TestTryReserveSlotMissingTask(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.TryReserveSlot(context.Background(), "TASK-missing"); !errors.Is(err, marketplace.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplicationPairUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	task := storeTask(t, s, 1)

	app := marketplace.Application{
		ApplicationID: marketplace.NewID("APP"),
		TaskID:        task.TaskID,
		AgentID:       "agent-1",
		Status:        marketplace.ApplicationPending,
		CreatedAt:     time.Now(),
	}
	if err := s.CreateApplication(ctx, app); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := app
	dup.ApplicationID = marketplace.NewID("APP")
	if err := s.CreateApplication(ctx, dup); !errors.Is(err, marketplace.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// Deleting the application frees the pair for a fresh bid.
	if err := s.DeleteApplication(ctx, app.ApplicationID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.CreateApplication(ctx, dup); err != nil {
		t.Fatalf("expected re-application to succeed, got %v", err)
	}
}

func TestUpdateTaskPreservesWorkerCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	task := storeTask(t, s, 2)

	if ok, err := s.TryReserveSlot(ctx, task.TaskID); err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}

	// Whole-entity update built from a stale read must not clobber the
	// concurrent reservation.
	stale := task
	stale.Title = "renamed"
	stale.CurrentWorkers = 0
	if err := s.UpdateTask(ctx, stale); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetTask(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "renamed" {
		t.Fatalf("expected rename applied, got %s", got.Title)
	}
	if got.CurrentWorkers != 1 {
		t.Fatalf("expected worker count preserved, got %d", got.CurrentWorkers)
	}
}

func TestTransitionSubmissionStampsTimestamps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	task := storeTask(t, s, 1)

	sub := marketplace.Submission{
		SubmissionID:  marketplace.NewID("SUB"),
		ApplicationID: "APP-1",
		TaskID:        task.TaskID,
		AgentID:       "agent-1",
		Status:        marketplace.SubmissionSubmitted,
		Content:       map[string]any{"result": "done"},
		PayoutStatus:  marketplace.PayoutPending,
		CreatedAt:     time.Now(),
	}
	if err := s.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := s.TransitionSubmission(ctx, sub.SubmissionID, marketplace.SubmissionSubmitted, marketplace.SubmissionRejected)
	if err != nil || !ok {
		t.Fatalf("transition: ok=%v err=%v", ok, err)
	}
	got, err := s.GetSubmission(ctx, sub.SubmissionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ReviewedAt == nil || got.RejectedAt == nil {
		t.Fatalf("expected reviewed_at and rejected_at stamped, got %+v", got)
	}

	// Guarded transition from the wrong state matches nothing.
	ok, err = s.TransitionSubmission(ctx, sub.SubmissionID, marketplace.SubmissionSubmitted, marketplace.SubmissionApproved)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if ok {
		t.Fatalf("expected no-op transition from stale state")
	}
}

func TestAppendSubmissionNotes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	task := storeTask(t, s, 1)

	sub := marketplace.Submission{
		SubmissionID:  marketplace.NewID("SUB"),
		ApplicationID: "APP-1",
		TaskID:        task.TaskID,
		AgentID:       "agent-1",
		Status:        marketplace.SubmissionSubmitted,
		PayoutStatus:  marketplace.PayoutPending,
		CreatedAt:     time.Now(),
	}
	if err := s.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.AppendSubmissionNotes(ctx, sub.SubmissionID, "first pass"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendSubmissionNotes(ctx, sub.SubmissionID, "second pass"); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := s.GetSubmission(ctx, sub.SubmissionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ReviewNotes != "first pass\n---\nsecond pass" {
		t.Fatalf("unexpected notes: %q", got.ReviewNotes)
	}
}

func TestResolveDisputeIdempotency(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	d := marketplace.Dispute{
		DisputeID:    marketplace.NewID("DSP"),
		SubmissionID: "SUB-1",
		TaskID:       "TASK-1",
		AgentID:      "agent-1",
		Status:       marketplace.DisputeHumanReview,
		Reason:       "work was fine",
		CreatedAt:    time.Now(),
	}
	if err := s.CreateDispute(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := s.ResolveDispute(ctx, d.DisputeID, marketplace.OutcomeWorkerPaid, "admin-1", "approved")
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	ok, err = s.ResolveDispute(ctx, d.DisputeID, marketplace.OutcomeRejectionUpheld, "admin-2", "flip")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if ok {
		t.Fatalf("expected second resolution to be a no-op")
	}

	got, err := s.GetDispute(ctx, d.DisputeID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Outcome == nil || *got.Outcome != marketplace.OutcomeWorkerPaid {
		t.Fatalf("expected first outcome kept, got %v", got.Outcome)
	}
	if got.ResolvedBy != "admin-1" {
		t.Fatalf("expected admin-1, got %s", got.ResolvedBy)
	}
}

func TestCreditAgentUpserts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Credit an unknown agent creates the profile.
	if err := s.CreditAgent(ctx, "agent-new", 1500); err != nil {
		t.Fatalf("credit: %v", err)
	}
	got, err := s.GetAgent(ctx, "agent-new")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalEarningsCents != 1500 || got.CompletedTasks != 1 {
		t.Fatalf("unexpected profile: %+v", got)
	}

	if err := s.CreditAgent(ctx, "agent-new", 500); err != nil {
		t.Fatalf("credit: %v", err)
	}
	got, err = s.GetAgent(ctx, "agent-new")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalEarningsCents != 2000 || got.CompletedTasks != 2 {
		t.Fatalf("expected accumulation, got %+v", got)
	}
}

func TestListTasksPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		task := marketplace.Task{
			TaskID:           marketplace.NewID("TASK"),
			CreatorID:        "creator-1",
			Title:            "task",
			Status:           marketplace.TaskActive,
			TotalBudgetCents: 1000,
			PaymentType:      marketplace.PaymentFixed,
			MaxWorkers:       1,
			CreatedAt:        time.Now().Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	page, err := s.ListTasks(ctx, marketplace.TaskFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(page))
	}
	next, err := s.ListTasks(ctx, marketplace.TaskFilter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(next) != 1 {
		t.Fatalf("expected 1 task on last page, got %d", len(next))
	}

	filtered, err := s.ListTasks(ctx, marketplace.TaskFilter{Status: marketplace.TaskDraft})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(filtered) != 0 {
		t.Fatalf("expected no drafts, got %d", len(filtered))
	}
}
