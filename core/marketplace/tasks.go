package marketplace

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// TaskInput carries creator input for a new task.
type TaskInput struct {
	CreatorID             string          `json:"creator_id"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	Requirements          string          `json:"requirements"`
	Deadline              *time.Time      `json:"deadline,omitempty"`
	TotalBudgetCents      int64           `json:"total_budget_cents"`
	PaymentType           PaymentType     `json:"payment_type"`
	PaymentPerWorkerCents int64           `json:"payment_per_worker_cents,omitempty"`
	MaxWorkers            int             `json:"max_workers"`
	Milestones            []MilestoneSpec `json:"milestones,omitempty"`
}

// MilestoneSpec is creator input for one milestone of a draft task.
type MilestoneSpec struct {
	Title      string `json:"title"`
	Percentage int    `json:"percentage"`
}

// TaskUpdate carries optional edits; nil fields are untouched. Which fields
// may change depends on the task status.
type TaskUpdate struct {
	Title                 *string         `json:"title,omitempty"`
	Description           *string         `json:"description,omitempty"`
	Requirements          *string         `json:"requirements,omitempty"`
	Deadline              *time.Time      `json:"deadline,omitempty"`
	TotalBudgetCents      *int64          `json:"total_budget_cents,omitempty"`
	PaymentType           *PaymentType    `json:"payment_type,omitempty"`
	PaymentPerWorkerCents *int64          `json:"payment_per_worker_cents,omitempty"`
	MaxWorkers            *int            `json:"max_workers,omitempty"`
	Milestones            []MilestoneSpec `json:"milestones,omitempty"`
}

// TaskService owns draft creation, activation on verified funding, edits,
// soft cancel with refund, and draft deletion.
type TaskService struct {
	ledger             Ledger
	escrow             EscrowGateway
	notifier           Notifier
	cancellationFeeBps int
	log                *logrus.Entry
}

// NewTaskService builds a TaskService. cancellationFeeBps is the platform
// fee retained on soft cancel, in basis points of the total budget.
func NewTaskService(ledger Ledger, escrow EscrowGateway, notifier Notifier, cancellationFeeBps int) *TaskService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &TaskService{
		ledger:             ledger,
		escrow:             escrow,
		notifier:           notifier,
		cancellationFeeBps: cancellationFeeBps,
		log:                logrus.WithField("component", "task_service"),
	}
}

// Create validates a draft and persists it with status draft. Milestone
// tasks must carry milestones whose percentages sum to exactly 100.
func (ts *TaskService) Create(ctx context.Context, draft TaskInput) (Task, error) {
	if draft.CreatorID == "" {
		return Task{}, Validationf("creator_id required")
	}
	if draft.Title == "" {
		return Task{}, Validationf("title required")
	}
	if draft.TotalBudgetCents <= 0 {
		return Task{}, Validationf("total budget must be positive")
	}
	if draft.MaxWorkers < 1 {
		return Task{}, Validationf("max_workers must be at least 1")
	}
	switch draft.PaymentType {
	case PaymentFixed:
	case PaymentMilestone:
		if draft.MaxWorkers != 1 {
			return Task{}, Validationf("milestone tasks take exactly one worker")
		}
	default:
		return Task{}, Validationf("payment_type must be fixed or milestone")
	}

	task := Task{
		TaskID:                NewID("TASK"),
		CreatorID:             draft.CreatorID,
		Title:                 draft.Title,
		Description:           draft.Description,
		Requirements:          draft.Requirements,
		Deadline:              draft.Deadline,
		Status:                TaskDraft,
		TotalBudgetCents:      draft.TotalBudgetCents,
		PaymentType:           draft.PaymentType,
		PaymentPerWorkerCents: draft.PaymentPerWorkerCents,
		MaxWorkers:            draft.MaxWorkers,
		CreatedAt:             time.Now(),
	}

	var milestones []Milestone
	if draft.PaymentType == PaymentMilestone {
		ms, err := buildMilestones(task.TaskID, draft.TotalBudgetCents, draft.Milestones)
		if err != nil {
			return Task{}, err
		}
		milestones = ms
	}

	if err := ts.ledger.CreateTask(ctx, task); err != nil {
		return Task{}, err
	}
	if len(milestones) > 0 {
		if err := ts.ledger.ReplaceMilestones(ctx, task.TaskID, milestones); err != nil {
			return Task{}, err
		}
	}
	return task, nil
}

// buildMilestones validates the 100% weight invariant and prices each
// milestone off the total budget.
func buildMilestones(taskID string, totalBudgetCents int64, specs []MilestoneSpec) ([]Milestone, error) {
	if len(specs) == 0 {
		return nil, Validationf("milestone tasks require at least one milestone")
	}
	sum := 0
	for _, s := range specs {
		if s.Percentage <= 0 {
			return nil, Validationf("milestone percentages must be positive")
		}
		sum += s.Percentage
	}
	if sum != 100 {
		return nil, Validationf("milestone percentages must sum to 100, got %d", sum)
	}
	out := make([]Milestone, 0, len(specs))
	for i, s := range specs {
		out = append(out, Milestone{
			MilestoneID:  NewID("MS"),
			TaskID:       taskID,
			Order:        i + 1,
			Title:        s.Title,
			Percentage:   s.Percentage,
			AmountCents:  MilestoneAmount(s.Percentage, totalBudgetCents),
			Status:       MilestonePending,
			PayoutStatus: PayoutPending,
		})
	}
	return out, nil
}

// Update applies edits under the status mutability rules: financial and
// structural fields change only while draft; descriptive fields also while
// active or in progress; nothing changes once terminal.
func (ts *TaskService) Update(ctx context.Context, taskID, actorID string, upd TaskUpdate) (Task, error) {
	task, err := ts.ledger.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if task.CreatorID != actorID {
		return Task{}, Forbiddenf("only the task creator may edit")
	}

	switch task.Status {
	case TaskCompleted, TaskCancelled, TaskDisputed:
		return Task{}, Conflictf("task %s is %s and no longer editable", taskID, task.Status)
	}

	structural := upd.TotalBudgetCents != nil || upd.PaymentType != nil ||
		upd.PaymentPerWorkerCents != nil || upd.MaxWorkers != nil || upd.Milestones != nil
	if structural && task.Status != TaskDraft {
		return Task{}, Conflictf("financial fields are editable only while draft")
	}

	if upd.Title != nil {
		task.Title = *upd.Title
	}
	if upd.Description != nil {
		task.Description = *upd.Description
	}
	if upd.Requirements != nil {
		task.Requirements = *upd.Requirements
	}
	if upd.Deadline != nil {
		task.Deadline = upd.Deadline
	}
	if upd.TotalBudgetCents != nil {
		if *upd.TotalBudgetCents <= 0 {
			return Task{}, Validationf("total budget must be positive")
		}
		task.TotalBudgetCents = *upd.TotalBudgetCents
	}
	if upd.PaymentPerWorkerCents != nil {
		task.PaymentPerWorkerCents = *upd.PaymentPerWorkerCents
	}
	if upd.MaxWorkers != nil {
		if *upd.MaxWorkers < 1 {
			return Task{}, Validationf("max_workers must be at least 1")
		}
		task.MaxWorkers = *upd.MaxWorkers
	}

	switchedType := upd.PaymentType != nil && *upd.PaymentType != task.PaymentType
	if upd.PaymentType != nil {
		switch *upd.PaymentType {
		case PaymentFixed, PaymentMilestone:
			task.PaymentType = *upd.PaymentType
		default:
			return Task{}, Validationf("payment_type must be fixed or milestone")
		}
	}

	if err := ts.ledger.UpdateTask(ctx, task); err != nil {
		return Task{}, err
	}

	// Switching a draft away from milestone billing drops its milestones
	// wholesale; switching into it (or editing them) rebuilds the set.
	if switchedType && task.PaymentType == PaymentFixed {
		if err := ts.ledger.ReplaceMilestones(ctx, taskID, nil); err != nil {
			return Task{}, err
		}
	}
	if task.PaymentType == PaymentMilestone && (upd.Milestones != nil || switchedType) {
		ms, err := buildMilestones(taskID, task.TotalBudgetCents, upd.Milestones)
		if err != nil {
			return Task{}, err
		}
		if err := ts.ledger.ReplaceMilestones(ctx, taskID, ms); err != nil {
			return Task{}, err
		}
	}
	return task, nil
}

// Activate moves a funded draft live. The funding check itself is external;
// the caller reports the verified escrow wallet and chain here.
func (ts *TaskService) Activate(ctx context.Context, taskID, actorID, escrowWalletID, escrowAddress, paymentChain string) (Task, error) {
	task, err := ts.ledger.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if task.CreatorID != actorID {
		return Task{}, Forbiddenf("only the task creator may activate")
	}
	if task.Status != TaskDraft {
		return Task{}, Conflictf("task %s is %s, not draft", taskID, task.Status)
	}
	if escrowWalletID == "" || escrowAddress == "" {
		return Task{}, Validationf("verified escrow wallet required for activation")
	}

	task.Status = TaskActive
	task.EscrowWalletID = escrowWalletID
	task.EscrowAddress = escrowAddress
	task.PaymentChain = paymentChain
	if err := ts.ledger.UpdateTask(ctx, task); err != nil {
		return Task{}, err
	}
	ts.log.WithFields(logrus.Fields{
		"task_id": taskID,
		"chain":   paymentChain,
	}).Info("task activated with verified escrow funding")
	return task, nil
}

// Cancel soft-cancels an active task with no accepted workers: pending
// applications are rejected, and the escrow refunds the creator minus the
// cancellation fee.
func (ts *TaskService) Cancel(ctx context.Context, taskID, actorID, creatorAddress string) (Task, error) {
	task, err := ts.ledger.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if task.CreatorID != actorID {
		return Task{}, Forbiddenf("only the task creator may cancel")
	}
	if task.Status != TaskActive {
		return Task{}, Conflictf("only active tasks can be cancelled (status %s)", task.Status)
	}
	if task.CurrentWorkers > 0 {
		return Task{}, Conflictf("task %s has accepted workers; release them first", taskID)
	}

	rejected, err := ts.ledger.RejectPendingApplications(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	for _, r := range rejected {
		ts.notifier.Notify(r.AgentID, "application_rejected", "Task cancelled",
			task.Title+" was cancelled by its creator", "/tasks/"+taskID)
	}

	refund := CancellationRefund(task.TotalBudgetCents, ts.cancellationFeeBps)
	if task.EscrowWalletID != "" && refund > 0 {
		result, err := ts.escrow.Refund(ctx, creatorAddress, task.EscrowWalletID, refund)
		if err != nil || !result.Success {
			reason := result.Error
			if err != nil {
				reason = err.Error()
			}
			ts.log.WithFields(logrus.Fields{
				"task_id": taskID,
				"reason":  reason,
			}).Error("escrow refund failed; cancellation recorded, refund needs reconciliation")
		}
	}

	task.Status = TaskCancelled
	if err := ts.ledger.UpdateTask(ctx, task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// DeleteDraft hard-deletes a draft that never attracted work.
func (ts *TaskService) DeleteDraft(ctx context.Context, taskID, actorID string) error {
	task, err := ts.ledger.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.CreatorID != actorID {
		return Forbiddenf("only the task creator may delete")
	}
	if task.Status != TaskDraft {
		return Conflictf("only drafts can be deleted (status %s)", task.Status)
	}
	apps, err := ts.ledger.ListApplications(ctx, ApplicationFilter{TaskID: taskID})
	if err != nil {
		return err
	}
	if task.CurrentWorkers > 0 || len(apps) > 0 {
		return Conflictf("task %s has applications and cannot be deleted", taskID)
	}
	return ts.ledger.DeleteTask(ctx, taskID)
}
