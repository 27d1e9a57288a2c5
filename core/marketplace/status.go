package marketplace

import (
	"context"
	"time"
)

// TaskSnapshot bundles everything the status aggregator derives from.
type TaskSnapshot struct {
	Task         Task
	Applications []Application
	Submissions  []Submission
	Milestones   []Milestone
	Disputes     []Dispute
}

// DeriveTaskStatus recomputes Task.status as a pure function of the task's
// applications, submissions, milestones, and disputes. Every mutating
// operation re-runs this so that status never drifts across handlers.
func DeriveTaskStatus(snap TaskSnapshot) TaskStatus {
	t := snap.Task

	// Terminal states never regress.
	switch t.Status {
	case TaskCompleted, TaskCancelled:
		return t.Status
	}

	// Activation (draft -> active) is an external funding event; the
	// aggregator never promotes a draft on its own.
	if t.Status == TaskDraft {
		return TaskDraft
	}

	// An unresolved dispute pins the task until adjudication finishes.
	for _, d := range snap.Disputes {
		if d.Status != DisputeResolved {
			return TaskDisputed
		}
	}

	if completionSatisfied(snap) {
		return TaskCompleted
	}

	for _, a := range snap.Applications {
		if a.Status == ApplicationAccepted || a.Status == ApplicationCompleted {
			return TaskInProgress
		}
	}
	return TaskActive
}

// RecomputeTaskStatus loads the task's current snapshot, derives the status,
// and persists it when it moved. Completion stamps completed_at.
func RecomputeTaskStatus(ctx context.Context, ledger Ledger, taskID string) (TaskStatus, error) {
	task, err := ledger.GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	apps, err := ledger.ListApplications(ctx, ApplicationFilter{TaskID: taskID})
	if err != nil {
		return "", err
	}
	subs, err := ledger.ListSubmissions(ctx, []string{taskID})
	if err != nil {
		return "", err
	}
	ms, err := ledger.ListMilestones(ctx, taskID)
	if err != nil {
		return "", err
	}
	disputes, err := ledger.ListDisputes(ctx, DisputeFilter{TaskID: taskID})
	if err != nil {
		return "", err
	}

	next := DeriveTaskStatus(TaskSnapshot{
		Task:         task,
		Applications: apps,
		Submissions:  subs,
		Milestones:   ms,
		Disputes:     disputes,
	})
	if next == task.Status {
		return next, nil
	}
	if next == TaskCompleted {
		now := time.Now()
		task.Status = TaskCompleted
		task.CompletedAt = &now
		return next, ledger.UpdateTask(ctx, task)
	}
	return next, ledger.UpdateTaskStatus(ctx, taskID, next)
}

// completionSatisfied reports whether every required payout has settled.
// Milestone tasks complete when all milestones are completed; fixed tasks
// when every accepted worker has an approved submission.
func completionSatisfied(snap TaskSnapshot) bool {
	if snap.Task.PaymentType == PaymentMilestone {
		if len(snap.Milestones) == 0 {
			return false
		}
		for _, m := range snap.Milestones {
			if m.Status != MilestoneCompleted {
				return false
			}
		}
		return true
	}

	approved := make(map[string]bool, len(snap.Submissions))
	for _, s := range snap.Submissions {
		if s.Status == SubmissionApproved {
			approved[s.ApplicationID] = true
		}
	}
	working := 0
	for _, a := range snap.Applications {
		switch a.Status {
		case ApplicationAccepted, ApplicationCompleted:
			working++
			if !approved[a.ApplicationID] {
				return false
			}
		}
	}
	return working > 0
}
