package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// SlotAllocator guards the worker-slot invariant: a task never holds more
// than max_workers accepted applications, enforced through the ledger's
// atomic conditional increment rather than read-modify-write.
type SlotAllocator struct {
	ledger   Ledger
	notifier Notifier
	log      *logrus.Entry
}

// NewSlotAllocator builds a SlotAllocator.
func NewSlotAllocator(ledger Ledger, notifier Notifier) *SlotAllocator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SlotAllocator{
		ledger:   ledger,
		notifier: notifier,
		log:      logrus.WithField("component", "slot_allocator"),
	}
}

// Apply files a pending application for an agent. One application per
// (task, agent) pair; duplicates surface as a conflict from the ledger.
func (sa *SlotAllocator) Apply(ctx context.Context, taskID, agentID, message string) (Application, error) {
	if agentID == "" {
		return Application{}, Validationf("agent_id required")
	}
	task, err := sa.ledger.GetTask(ctx, taskID)
	if err != nil {
		return Application{}, err
	}
	switch task.Status {
	case TaskActive, TaskInProgress:
	default:
		return Application{}, Validationf("task %s is not open for applications (status %s)", taskID, task.Status)
	}
	if task.CurrentWorkers >= task.MaxWorkers {
		return Application{}, Conflictf("task %s already has all %d workers", taskID, task.MaxWorkers)
	}

	app := Application{
		ApplicationID: NewID("APP"),
		TaskID:        taskID,
		AgentID:       agentID,
		Status:        ApplicationPending,
		Message:       message,
		CreatedAt:     time.Now(),
	}
	if err := sa.ledger.CreateApplication(ctx, app); err != nil {
		return Application{}, err
	}
	sa.notifier.Notify(task.CreatorID, "application", "New application",
		"An agent applied to "+task.Title, "/tasks/"+taskID)
	return app, nil
}

// Accept grants a pending application one of the task's worker slots.
// Ordering is load-bearing: atomic increment first, then the application
// flip, then a re-read to drive the auto-reject cascade. Two concurrent
// accepts on the last slot get exactly one winner; the loser's conditional
// increment matches zero rows and surfaces as a conflict.
func (sa *SlotAllocator) Accept(ctx context.Context, applicationID, creatorID string) (Application, error) {
	app, err := sa.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}
	task, err := sa.ledger.GetTask(ctx, app.TaskID)
	if err != nil {
		return Application{}, err
	}
	if task.CreatorID != creatorID {
		return Application{}, Forbiddenf("only the task creator may accept applications")
	}
	if app.Status != ApplicationPending {
		return Application{}, Conflictf("application %s already decided (%s)", applicationID, app.Status)
	}

	ok, err := sa.ledger.TryReserveSlot(ctx, app.TaskID)
	if err != nil {
		return Application{}, err
	}
	if !ok {
		metricSlotConflicts.Inc()
		return Application{}, Conflictf("task %s is full", app.TaskID)
	}

	flipped, err := sa.ledger.TransitionApplication(ctx, applicationID, ApplicationPending, ApplicationAccepted)
	if err == nil && !flipped {
		err = Conflictf("application %s already decided", applicationID)
	}
	if err != nil {
		// The slot was reserved but the application flip lost; hand the
		// slot back so the count stays truthful.
		if relErr := sa.ledger.ReleaseSlot(ctx, app.TaskID); relErr != nil {
			sa.log.WithError(relErr).WithField("task_id", app.TaskID).
				Error("failed to return reserved slot after losing accept race")
		}
		return Application{}, err
	}

	task, err = sa.ledger.GetTask(ctx, app.TaskID)
	if err != nil {
		return Application{}, err
	}
	if task.CurrentWorkers >= task.MaxWorkers {
		rejected, err := sa.ledger.RejectPendingApplications(ctx, app.TaskID)
		if err != nil {
			sa.log.WithError(err).WithField("task_id", app.TaskID).
				Error("slot-exhaustion auto-reject failed")
		}
		for _, r := range rejected {
			sa.notifier.Notify(r.AgentID, "application_rejected", "Task filled",
				"All worker slots on "+task.Title+" were taken", "/tasks/"+task.TaskID)
		}
	}
	if task.Status == TaskActive {
		if err := sa.ledger.UpdateTaskStatus(ctx, task.TaskID, TaskInProgress); err != nil {
			return Application{}, err
		}
	}

	app, err = sa.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}
	sa.notifier.Notify(app.AgentID, "application_accepted", "Application accepted",
		"You were accepted to work on "+task.Title, "/tasks/"+task.TaskID)
	return app, nil
}

// Release frees the slot held by an accepted application whose submission
// was rejected. The application moves to released and the slot count drops
// in one transaction; a release can unblock task completion when every
// other worker is already settled.
func (sa *SlotAllocator) Release(ctx context.Context, applicationID, creatorID string) error {
	app, err := sa.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	task, err := sa.ledger.GetTask(ctx, app.TaskID)
	if err != nil {
		return err
	}
	if task.CreatorID != creatorID {
		return Forbiddenf("only the task creator may release workers")
	}
	if app.Status != ApplicationAccepted {
		return Conflictf("application %s is %s, not accepted", applicationID, app.Status)
	}
	sub, err := sa.ledger.GetSubmissionByApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Validationf("worker has no rejected submission to release over")
		}
		return err
	}
	if sub.Status != SubmissionRejected {
		return Validationf("submission must be rejected before release (status %s)", sub.Status)
	}

	if err := sa.ledger.ReleaseWorker(ctx, applicationID); err != nil {
		return err
	}
	sa.notifier.Notify(app.AgentID, "released", "Released from task",
		"You were released from "+task.Title, "/tasks/"+task.TaskID)
	_, err = RecomputeTaskStatus(ctx, sa.ledger, app.TaskID)
	return err
}

// Withdraw lets an agent pull their own application. Pending applications
// are hard-deleted; accepted ones without a submission free their slot.
// Once a submission exists the withdrawal is blocked unconditionally so a
// pending payout decision is never orphaned.
func (sa *SlotAllocator) Withdraw(ctx context.Context, applicationID, agentID string) error {
	app, err := sa.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.AgentID != agentID {
		return Forbiddenf("only the applicant may withdraw")
	}
	if _, err := sa.ledger.GetSubmissionByApplication(ctx, applicationID); err == nil {
		return Conflictf("application %s has a submission on file; ask the creator to reject and release instead", applicationID)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	switch app.Status {
	case ApplicationPending:
		return sa.ledger.DeleteApplication(ctx, applicationID)
	case ApplicationAccepted:
		if err := sa.ledger.WithdrawAccepted(ctx, applicationID); err != nil {
			return err
		}
		_, err := RecomputeTaskStatus(ctx, sa.ledger, app.TaskID)
		return err
	default:
		return Conflictf("application %s is %s and cannot be withdrawn", applicationID, app.Status)
	}
}
