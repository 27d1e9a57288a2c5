package marketplace

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultDisputeWindow is how long after rejection a worker may dispute.
const DefaultDisputeWindow = 48 * time.Hour

// DisputeAdjudicator runs the open -> jury_review -> human_review ->
// resolved pipeline. The jury verdict is persuasive input only; a human
// stays accountable for every movement of money.
type DisputeAdjudicator struct {
	ledger   Ledger
	jury     JuryPanel
	review   *ReviewOrchestrator
	notifier Notifier
	window   time.Duration
	log      *logrus.Entry
}

// NewDisputeAdjudicator builds a DisputeAdjudicator. window <= 0 selects
// the 48-hour default.
func NewDisputeAdjudicator(ledger Ledger, jury JuryPanel, review *ReviewOrchestrator, notifier Notifier, window time.Duration) *DisputeAdjudicator {
	if window <= 0 {
		window = DefaultDisputeWindow
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &DisputeAdjudicator{
		ledger:   ledger,
		jury:     jury,
		review:   review,
		notifier: notifier,
		window:   window,
		log:      logrus.WithField("component", "dispute_adjudicator"),
	}
}

// Open files a dispute against a rejected submission. The submission and
// its payout freeze in disputed state, and jury review is kicked off in the
// background; the dispute is visible to the filer immediately even if the
// jury never completes.
func (da *DisputeAdjudicator) Open(ctx context.Context, submissionID, agentID, reason string) (Dispute, error) {
	if reason == "" {
		return Dispute{}, Validationf("dispute reason required")
	}
	sub, err := da.ledger.GetSubmission(ctx, submissionID)
	if err != nil {
		return Dispute{}, err
	}
	if sub.AgentID != agentID {
		return Dispute{}, Forbiddenf("only the submitting agent may dispute")
	}
	if sub.Status != SubmissionRejected {
		return Dispute{}, Conflictf("submission %s is %s; only rejected submissions can be disputed", submissionID, sub.Status)
	}
	if sub.RejectedAt == nil || time.Since(*sub.RejectedAt) > da.window {
		return Dispute{}, Validationf("dispute window of %s expired", da.window)
	}

	d := Dispute{
		DisputeID:    NewID("DSP"),
		SubmissionID: submissionID,
		TaskID:       sub.TaskID,
		AgentID:      agentID,
		Status:       DisputeOpen,
		Reason:       reason,
		CreatedAt:    time.Now(),
	}
	if err := da.ledger.CreateDispute(ctx, d); err != nil {
		return Dispute{}, err
	}
	metricDisputesOpened.Inc()

	// Freeze the submission against further direct review action.
	if _, err := da.ledger.TransitionSubmission(ctx, submissionID, SubmissionRejected, SubmissionDisputed); err != nil {
		return Dispute{}, err
	}
	if err := da.ledger.UpdateSubmissionPayout(ctx, submissionID, PayoutDisputed, sub.PayoutTxHash, sub.PayoutAmountCents); err != nil {
		return Dispute{}, err
	}
	if _, err := RecomputeTaskStatus(ctx, da.ledger, sub.TaskID); err != nil {
		return Dispute{}, err
	}

	if task, err := da.ledger.GetTask(ctx, sub.TaskID); err == nil {
		da.notifier.Notify(task.CreatorID, "dispute_opened", "Dispute opened",
			"A rejection on "+task.Title+" is being disputed", "/disputes/"+d.DisputeID)
	}

	// Fire-and-forget jury review. A failure here degrades the tally, it
	// never blocks or corrupts the dispute record.
	go func() {
		if err := da.RunJuryReview(context.Background(), d.DisputeID); err != nil {
			da.log.WithError(err).WithField("dispute_id", d.DisputeID).
				Error("background jury review failed")
		}
	}()

	return d, nil
}

// RunJuryReview dispatches the blind juror context to three independent
// juror invocations, tallies whatever votes arrive, and always advances the
// dispute to human review. It only ever moves status forward, so a crashed
// or repeated run cannot roll a dispute back.
func (da *DisputeAdjudicator) RunJuryReview(ctx context.Context, disputeID string) error {
	ok, err := da.ledger.TransitionDispute(ctx, disputeID, DisputeOpen, DisputeJuryReview)
	if err != nil {
		return err
	}
	if !ok {
		return Conflictf("dispute %s is past jury review", disputeID)
	}
	d, err := da.ledger.GetDispute(ctx, disputeID)
	if err != nil {
		return err
	}
	sub, err := da.ledger.GetSubmission(ctx, d.SubmissionID)
	if err != nil {
		return err
	}
	task, err := da.ledger.GetTask(ctx, d.TaskID)
	if err != nil {
		return err
	}

	// Blind framing: jurors see the requirements and the work, never the
	// rejection reasoning or who wrote it.
	jc := JurorContext{
		TaskTitle:         task.Title,
		TaskDescription:   task.Description,
		TaskRequirements:  task.Requirements,
		SubmissionContent: sub.Content,
	}

	var votes []JuryVote
	for i := 0; i < JurySize; i++ {
		outcome, err := da.jury.Vote(ctx, jc)
		if err != nil {
			metricJurorFailures.Inc()
			da.log.WithError(err).WithFields(logrus.Fields{
				"dispute_id":  disputeID,
				"juror_index": i,
			}).Warn("juror call failed; continuing with partial tally")
			continue
		}
		v := JuryVote{
			VoteID:     NewID("VOTE"),
			DisputeID:  disputeID,
			JurorIndex: i,
			Vote:       outcome,
			CreatedAt:  time.Now(),
		}
		if err := da.ledger.AddJuryVote(ctx, v); err != nil {
			return err
		}
		votes = append(votes, v)
	}

	var verdict *DisputeOutcome
	if v, ok := TallyVerdict(votes); ok {
		verdict = &v
	}
	if err := da.ledger.UpdateDisputeVerdict(ctx, disputeID, verdict, len(votes)); err != nil {
		return err
	}

	// Human review is reached no matter how the jury went.
	if _, err := da.ledger.TransitionDispute(ctx, disputeID, DisputeJuryReview, DisputeHumanReview); err != nil {
		return err
	}
	return nil
}

// Resolve records the human decision and settles the dispute. worker_paid
// drives the same payout path as submission approval; rejection_upheld
// restores the rejection. Either way the dispute is terminal.
func (da *DisputeAdjudicator) Resolve(ctx context.Context, disputeID, reviewerID string, reviewerRole Role, decision DisputeOutcome, notes string) (Dispute, error) {
	if reviewerRole != RoleAdmin {
		return Dispute{}, Forbiddenf("dispute resolution is admin-only")
	}
	switch decision {
	case OutcomeWorkerPaid, OutcomeRejectionUpheld:
	default:
		return Dispute{}, Validationf("decision must be worker_paid or rejection_upheld")
	}

	d, err := da.ledger.GetDispute(ctx, disputeID)
	if err != nil {
		return Dispute{}, err
	}
	ok, err := da.ledger.ResolveDispute(ctx, disputeID, decision, reviewerID, notes)
	if err != nil {
		return Dispute{}, err
	}
	if !ok {
		return Dispute{}, Conflictf("dispute %s already resolved", disputeID)
	}
	metricDisputesResolved.WithLabelValues(string(decision)).Inc()

	sub, err := da.ledger.GetSubmission(ctx, d.SubmissionID)
	if err != nil {
		return Dispute{}, err
	}
	task, err := da.ledger.GetTask(ctx, d.TaskID)
	if err != nil {
		return Dispute{}, err
	}

	switch decision {
	case OutcomeWorkerPaid:
		if _, err := da.ledger.TransitionSubmission(ctx, d.SubmissionID, SubmissionDisputed, SubmissionApproved); err != nil {
			return Dispute{}, err
		}
		amount := ResolvePayoutAmount(task)
		if err := da.review.PayoutSubmission(ctx, task, sub, amount); err != nil {
			return Dispute{}, err
		}
		da.notifier.Notify(sub.AgentID, "dispute_resolved", "Dispute won",
			"Your dispute on "+task.Title+" was resolved in your favor", "/disputes/"+disputeID)
	case OutcomeRejectionUpheld:
		if _, err := da.ledger.TransitionSubmission(ctx, d.SubmissionID, SubmissionDisputed, SubmissionRejected); err != nil {
			return Dispute{}, err
		}
		if err := da.ledger.UpdateSubmissionPayout(ctx, d.SubmissionID, PayoutPending, "", sub.PayoutAmountCents); err != nil {
			return Dispute{}, err
		}
		da.notifier.Notify(sub.AgentID, "dispute_resolved", "Dispute closed",
			"The rejection on "+task.Title+" was upheld", "/disputes/"+disputeID)
	}

	if _, err := RecomputeTaskStatus(ctx, da.ledger, d.TaskID); err != nil {
		return Dispute{}, err
	}
	return da.ledger.GetDispute(ctx, disputeID)
}
