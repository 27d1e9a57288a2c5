package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

// PGStore persists marketplace state in Postgres. The conditional guards
// are single UPDATE statements checked via RowsAffected, so concurrent
// writers race on the database row and exactly one wins.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects, initializes schema, and optionally seeds fixtures.
func NewPGStore(ctx context.Context, dsn string, seed bool) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PGStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if seed {
		if err := SeedFixtures(ctx, s); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS mkt_tasks (
  task_id TEXT PRIMARY KEY,
  creator_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  requirements TEXT NOT NULL DEFAULT '',
  deadline TIMESTAMPTZ,
  status TEXT NOT NULL,
  total_budget_cents BIGINT NOT NULL,
  payment_type TEXT NOT NULL,
  payment_per_worker_cents BIGINT NOT NULL DEFAULT 0,
  max_workers INT NOT NULL,
  current_workers INT NOT NULL DEFAULT 0,
  escrow_wallet_id TEXT NOT NULL DEFAULT '',
  escrow_address TEXT NOT NULL DEFAULT '',
  payment_chain TEXT NOT NULL DEFAULT '',
  completed_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS mkt_applications (
  application_id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL,
  agent_id TEXT NOT NULL,
  status TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  accepted_at TIMESTAMPTZ,
  paid_amount_cents BIGINT NOT NULL DEFAULT 0,
  paid_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (task_id, agent_id)
);
CREATE TABLE IF NOT EXISTS mkt_submissions (
  submission_id TEXT PRIMARY KEY,
  application_id TEXT NOT NULL UNIQUE,
  task_id TEXT NOT NULL,
  agent_id TEXT NOT NULL,
  status TEXT NOT NULL,
  content JSONB,
  review_notes TEXT NOT NULL DEFAULT '',
  payout_amount_cents BIGINT NOT NULL DEFAULT 0,
  payout_status TEXT NOT NULL,
  payout_tx_hash TEXT NOT NULL DEFAULT '',
  rejected_at TIMESTAMPTZ,
  reviewed_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS mkt_milestones (
  milestone_id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL,
  ord INT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  percentage INT NOT NULL,
  amount_cents BIGINT NOT NULL,
  status TEXT NOT NULL,
  deliverable TEXT NOT NULL DEFAULT '',
  review_notes TEXT NOT NULL DEFAULT '',
  payout_status TEXT NOT NULL,
  payout_tx_hash TEXT NOT NULL DEFAULT '',
  completed_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS mkt_disputes (
  dispute_id TEXT PRIMARY KEY,
  submission_id TEXT NOT NULL UNIQUE,
  task_id TEXT NOT NULL,
  agent_id TEXT NOT NULL,
  status TEXT NOT NULL,
  reason TEXT NOT NULL,
  jury_verdict TEXT,
  jurors_voted INT NOT NULL DEFAULT 0,
  outcome TEXT,
  resolved_by TEXT NOT NULL DEFAULT '',
  resolution_notes TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  resolved_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS mkt_jury_votes (
  vote_id TEXT PRIMARY KEY,
  dispute_id TEXT NOT NULL,
  juror_index INT NOT NULL,
  vote TEXT NOT NULL,
  rationale TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS mkt_agents (
  agent_id TEXT PRIMARY KEY,
  wallet_address TEXT NOT NULL DEFAULT '',
  total_earnings_cents BIGINT NOT NULL DEFAULT 0,
  completed_tasks INT NOT NULL DEFAULT 0,
  verified BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_mkt_tasks_status ON mkt_tasks(status);
CREATE INDEX IF NOT EXISTS idx_mkt_tasks_creator ON mkt_tasks(creator_id);
CREATE INDEX IF NOT EXISTS idx_mkt_applications_task_status ON mkt_applications(task_id, status);
CREATE INDEX IF NOT EXISTS idx_mkt_submissions_task ON mkt_submissions(task_id);
CREATE INDEX IF NOT EXISTS idx_mkt_disputes_status ON mkt_disputes(status);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close shuts down the pool.
func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- tasks ---

const taskCols = `task_id, creator_id, title, description, requirements, deadline, status,
total_budget_cents, payment_type, payment_per_worker_cents, max_workers, current_workers,
escrow_wallet_id, escrow_address, payment_chain, completed_at, created_at`

func scanTask(row rowScanner) (marketplace.Task, error) {
	var t marketplace.Task
	err := row.Scan(&t.TaskID, &t.CreatorID, &t.Title, &t.Description, &t.Requirements,
		&t.Deadline, &t.Status, &t.TotalBudgetCents, &t.PaymentType, &t.PaymentPerWorkerCents,
		&t.MaxWorkers, &t.CurrentWorkers, &t.EscrowWalletID, &t.EscrowAddress, &t.PaymentChain,
		&t.CompletedAt, &t.CreatedAt)
	return t, err
}

func (s *PGStore) CreateTask(ctx context.Context, t marketplace.Task) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO mkt_tasks (`+taskCols+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`, t.TaskID, t.CreatorID, t.Title, t.Description, t.Requirements, t.Deadline, t.Status,
		t.TotalBudgetCents, t.PaymentType, t.PaymentPerWorkerCents, t.MaxWorkers, t.CurrentWorkers,
		t.EscrowWalletID, t.EscrowAddress, t.PaymentChain, t.CompletedAt, t.CreatedAt)
	if isUniqueViolation(err) {
		return marketplace.Conflictf("task %s already exists", t.TaskID)
	}
	return err
}

func (s *PGStore) GetTask(ctx context.Context, id string) (marketplace.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskCols+` FROM mkt_tasks WHERE task_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Task{}, marketplace.NotFoundf("task %s not found", id)
	}
	return t, err
}

func (s *PGStore) ListTasks(ctx context.Context, filter marketplace.TaskFilter) ([]marketplace.Task, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+taskCols+` FROM mkt_tasks
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR creator_id = $2)
ORDER BY created_at DESC
LIMIT NULLIF($3, 0) OFFSET $4
`, string(filter.Status), filter.CreatorID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []marketplace.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTask writes everything except current_workers; the slot count only
// moves through the atomic slot statements.
func (s *PGStore) UpdateTask(ctx context.Context, t marketplace.Task) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_tasks SET
  title = $2, description = $3, requirements = $4, deadline = $5, status = $6,
  total_budget_cents = $7, payment_type = $8, payment_per_worker_cents = $9,
  max_workers = $10, escrow_wallet_id = $11, escrow_address = $12,
  payment_chain = $13, completed_at = $14
WHERE task_id = $1
`, t.TaskID, t.Title, t.Description, t.Requirements, t.Deadline, t.Status,
		t.TotalBudgetCents, t.PaymentType, t.PaymentPerWorkerCents, t.MaxWorkers,
		t.EscrowWalletID, t.EscrowAddress, t.PaymentChain, t.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NotFoundf("task %s not found", t.TaskID)
	}
	return nil
}

func (s *PGStore) UpdateTaskStatus(ctx context.Context, id string, status marketplace.TaskStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE mkt_tasks SET status = $2 WHERE task_id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NotFoundf("task %s not found", id)
	}
	return nil
}

func (s *PGStore) TryReserveSlot(ctx context.Context, taskID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_tasks SET current_workers = current_workers + 1
WHERE task_id = $1 AND current_workers < max_workers
`, taskID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM mkt_tasks WHERE task_id = $1)`, taskID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, marketplace.NotFoundf("task %s not found", taskID)
	}
	return false, nil
}

func (s *PGStore) ReleaseSlot(ctx context.Context, taskID string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE mkt_tasks SET current_workers = GREATEST(current_workers - 1, 0) WHERE task_id = $1
`, taskID)
	return err
}

func (s *PGStore) ReleaseWorker(ctx context.Context, applicationID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var taskID string
	err = tx.QueryRow(ctx, `
UPDATE mkt_applications SET status = 'released'
WHERE application_id = $1 AND status = 'accepted'
RETURNING task_id
`, applicationID).Scan(&taskID)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Conflictf("application %s is not accepted", applicationID)
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
UPDATE mkt_tasks SET current_workers = GREATEST(current_workers - 1, 0) WHERE task_id = $1
`, taskID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) DeleteTask(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM mkt_tasks WHERE task_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NotFoundf("task %s not found", id)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM mkt_milestones WHERE task_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- applications ---

const appCols = `application_id, task_id, agent_id, status, message, accepted_at,
paid_amount_cents, paid_at, created_at`

func scanApplication(row rowScanner) (marketplace.Application, error) {
	var a marketplace.Application
	err := row.Scan(&a.ApplicationID, &a.TaskID, &a.AgentID, &a.Status, &a.Message,
		&a.AcceptedAt, &a.PaidAmountCents, &a.PaidAt, &a.CreatedAt)
	return a, err
}

func (s *PGStore) CreateApplication(ctx context.Context, a marketplace.Application) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO mkt_applications (`+appCols+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, a.ApplicationID, a.TaskID, a.AgentID, a.Status, a.Message, a.AcceptedAt,
		a.PaidAmountCents, a.PaidAt, a.CreatedAt)
	if isUniqueViolation(err) {
		return marketplace.Conflictf("agent %s already applied to task %s", a.AgentID, a.TaskID)
	}
	return err
}

func (s *PGStore) GetApplication(ctx context.Context, id string) (marketplace.Application, error) {
	a, err := scanApplication(s.pool.QueryRow(ctx,
		`SELECT `+appCols+` FROM mkt_applications WHERE application_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Application{}, marketplace.NotFoundf("application %s not found", id)
	}
	return a, err
}

func (s *PGStore) ListApplications(ctx context.Context, filter marketplace.ApplicationFilter) ([]marketplace.Application, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+appCols+` FROM mkt_applications
WHERE ($1 = '' OR task_id = $1)
  AND ($2 = '' OR agent_id = $2)
  AND ($3 = '' OR status = $3)
ORDER BY created_at ASC
`, filter.TaskID, filter.AgentID, string(filter.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []marketplace.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGStore) TransitionApplication(ctx context.Context, id string, from, to marketplace.ApplicationStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_applications SET status = $3,
  accepted_at = CASE WHEN $3 = 'accepted' THEN now() ELSE accepted_at END
WHERE application_id = $1 AND status = $2
`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) UpdateApplicationPayment(ctx context.Context, id string, amountCents int64) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_applications SET paid_amount_cents = $2, paid_at = now() WHERE application_id = $1
`, id, amountCents)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NotFoundf("application %s not found", id)
	}
	return nil
}

func (s *PGStore) RejectPendingApplications(ctx context.Context, taskID string) ([]marketplace.Application, error) {
	rows, err := s.pool.Query(ctx, `
UPDATE mkt_applications SET status = 'rejected'
WHERE task_id = $1 AND status = 'pending'
RETURNING `+appCols+`
`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []marketplace.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGStore) DeleteApplication(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mkt_applications WHERE application_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NotFoundf("application %s not found", id)
	}
	return nil
}

func (s *PGStore) WithdrawAccepted(ctx context.Context, applicationID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var taskID string
	err = tx.QueryRow(ctx, `
DELETE FROM mkt_applications WHERE application_id = $1 AND status = 'accepted'
RETURNING task_id
`, applicationID).Scan(&taskID)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Conflictf("application %s is not accepted", applicationID)
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
UPDATE mkt_tasks SET current_workers = GREATEST(current_workers - 1, 0) WHERE task_id = $1
`, taskID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- submissions ---

const subCols = `submission_id, application_id, task_id, agent_id, status, content,
review_notes, payout_amount_cents, payout_status, payout_tx_hash, rejected_at, reviewed_at, created_at`

func scanSubmission(row rowScanner) (marketplace.Submission, error) {
	var sub marketplace.Submission
	var content []byte
	err := row.Scan(&sub.SubmissionID, &sub.ApplicationID, &sub.TaskID, &sub.AgentID,
		&sub.Status, &content, &sub.ReviewNotes, &sub.PayoutAmountCents, &sub.PayoutStatus,
		&sub.PayoutTxHash, &sub.RejectedAt, &sub.ReviewedAt, &sub.CreatedAt)
	if err != nil {
		return sub, err
	}
	if len(content) > 0 {
		_ = json.Unmarshal(content, &sub.Content)
	}
	return sub, nil
}

func (s *PGStore) CreateSubmission(ctx context.Context, sub marketplace.Submission) error {
	content, _ := json.Marshal(sub.Content)
	_, err := s.pool.Exec(ctx, `
INSERT INTO mkt_submissions (`+subCols+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`, sub.SubmissionID, sub.ApplicationID, sub.TaskID, sub.AgentID, sub.Status, content,
		sub.ReviewNotes, sub.PayoutAmountCents, sub.PayoutStatus, sub.PayoutTxHash,
		sub.RejectedAt, sub.ReviewedAt, sub.CreatedAt)
	if isUniqueViolation(err) {
		return marketplace.Conflictf("application %s already has a submission", sub.ApplicationID)
	}
	return err
}

func (s *PGStore) GetSubmission(ctx context.Context, id string) (marketplace.Submission, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx,
		`SELECT `+subCols+` FROM mkt_submissions WHERE submission_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Submission{}, marketplace.NotFoundf("submission %s not found", id)
	}
	return sub, err
}

func (s *PGStore) GetSubmissionByApplication(ctx context.Context, applicationID string) (marketplace.Submission, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx,
		`SELECT `+subCols+` FROM mkt_submissions WHERE application_id = $1`, applicationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Submission{}, marketplace.NotFoundf("no submission for application %s", applicationID)
	}
	return sub, err
}

func (s *PGStore) ListSubmissions(ctx context.Context, taskIDs []string) ([]marketplace.Submission, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+subCols+` FROM mkt_submissions
WHERE cardinality($1::text[]) = 0 OR task_id = ANY($1)
ORDER BY created_at ASC
`, taskIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []marketplace.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PGStore) TransitionSubmission(ctx context.Context, id string, from, to marketplace.SubmissionStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_submissions SET status = $3,
  reviewed_at = CASE WHEN $2 = 'submitted' THEN now() ELSE reviewed_at END,
  rejected_at = CASE WHEN $3 = 'rejected' THEN now() ELSE rejected_at END
WHERE submission_id = $1 AND status = $2
`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) UpdateSubmissionPayout(ctx context.Context, id string, status marketplace.PayoutStatus, txHash string, amountCents int64) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_submissions SET payout_status = $2, payout_tx_hash = $3, payout_amount_cents = $4
WHERE submission_id = $1
`, id, status, txHash, amountCents)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NotFoundf("submission %s not found", id)
	}
	return nil
}

func (s *PGStore) AppendSubmissionNotes(ctx context.Context, id string, notes string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_submissions SET review_notes = CASE
  WHEN review_notes = '' THEN $2
  ELSE review_notes || E'\n---\n' || $2
END
WHERE submission_id = $1
`, id, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NotFoundf("submission %s not found", id)
	}
	return nil
}

// --- milestones ---

const milestoneCols = `milestone_id, task_id, ord, title, percentage, amount_cents, status,
deliverable, review_notes, payout_status, payout_tx_hash, completed_at`

func scanMilestone(row rowScanner) (marketplace.Milestone, error) {
	var m marketplace.Milestone
	err := row.Scan(&m.MilestoneID, &m.TaskID, &m.Order, &m.Title, &m.Percentage,
		&m.AmountCents, &m.Status, &m.Deliverable, &m.ReviewNotes, &m.PayoutStatus,
		&m.PayoutTxHash, &m.CompletedAt)
	return m, err
}

func (s *PGStore) ReplaceMilestones(ctx context.Context, taskID string, ms []marketplace.Milestone) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM mkt_milestones WHERE task_id = $1`, taskID); err != nil {
		return err
	}
	for _, m := range ms {
		if _, err := tx.Exec(ctx, `
INSERT INTO mkt_milestones (`+milestoneCols+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`, m.MilestoneID, m.TaskID, m.Order, m.Title, m.Percentage, m.AmountCents, m.Status,
			m.Deliverable, m.ReviewNotes, m.PayoutStatus, m.PayoutTxHash, m.CompletedAt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) GetMilestone(ctx context.Context, id string) (marketplace.Milestone, error) {
	m, err := scanMilestone(s.pool.QueryRow(ctx,
		`SELECT `+milestoneCols+` FROM mkt_milestones WHERE milestone_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Milestone{}, marketplace.NotFoundf("milestone %s not found", id)
	}
	return m, err
}

func (s *PGStore) ListMilestones(ctx context.Context, taskID string) ([]marketplace.Milestone, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+milestoneCols+` FROM mkt_milestones WHERE task_id = $1 ORDER BY ord ASC
`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []marketplace.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PGStore) TransitionMilestone(ctx context.Context, id string, from, to marketplace.MilestoneStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_milestones SET status = $3,
  completed_at = CASE WHEN $3 = 'completed' THEN now() ELSE completed_at END
WHERE milestone_id = $1 AND status = $2
`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) UpdateMilestoneDeliverable(ctx context.Context, id string, deliverable string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_milestones SET deliverable = $2 WHERE milestone_id = $1
`, id, deliverable)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NotFoundf("milestone %s not found", id)
	}
	return nil
}

func (s *PGStore) UpdateMilestonePayout(ctx context.Context, id string, status marketplace.PayoutStatus, txHash string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_milestones SET payout_status = $2, payout_tx_hash = $3 WHERE milestone_id = $1
`, id, status, txHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NotFoundf("milestone %s not found", id)
	}
	return nil
}

// --- disputes ---

const disputeCols = `dispute_id, submission_id, task_id, agent_id, status, reason,
jury_verdict, jurors_voted, outcome, resolved_by, resolution_notes, created_at, resolved_at`

func scanDispute(row rowScanner) (marketplace.Dispute, error) {
	var d marketplace.Dispute
	var verdict, outcome *string
	err := row.Scan(&d.DisputeID, &d.SubmissionID, &d.TaskID, &d.AgentID, &d.Status,
		&d.Reason, &verdict, &d.JurorsVoted, &outcome, &d.ResolvedBy, &d.ResolutionNotes,
		&d.CreatedAt, &d.ResolvedAt)
	if err != nil {
		return d, err
	}
	if verdict != nil {
		v := marketplace.DisputeOutcome(*verdict)
		d.JuryVerdict = &v
	}
	if outcome != nil {
		o := marketplace.DisputeOutcome(*outcome)
		d.Outcome = &o
	}
	return d, nil
}

func (s *PGStore) CreateDispute(ctx context.Context, d marketplace.Dispute) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO mkt_disputes (dispute_id, submission_id, task_id, agent_id, status, reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, d.DisputeID, d.SubmissionID, d.TaskID, d.AgentID, d.Status, d.Reason, d.CreatedAt)
	if isUniqueViolation(err) {
		return marketplace.Conflictf("submission %s already has a dispute", d.SubmissionID)
	}
	return err
}

func (s *PGStore) GetDispute(ctx context.Context, id string) (marketplace.Dispute, error) {
	d, err := scanDispute(s.pool.QueryRow(ctx,
		`SELECT `+disputeCols+` FROM mkt_disputes WHERE dispute_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Dispute{}, marketplace.NotFoundf("dispute %s not found", id)
	}
	return d, err
}

func (s *PGStore) ListDisputes(ctx context.Context, filter marketplace.DisputeFilter) ([]marketplace.Dispute, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+disputeCols+` FROM mkt_disputes
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR agent_id = $2)
  AND ($3 = '' OR task_id = $3)
ORDER BY created_at DESC
`, string(filter.Status), filter.AgentID, filter.TaskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []marketplace.Dispute{}
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PGStore) TransitionDispute(ctx context.Context, id string, from, to marketplace.DisputeStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_disputes SET status = $3 WHERE dispute_id = $1 AND status = $2
`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) UpdateDisputeVerdict(ctx context.Context, id string, verdict *marketplace.DisputeOutcome, jurorsVoted int) error {
	var v *string
	if verdict != nil {
		sv := string(*verdict)
		v = &sv
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_disputes SET jury_verdict = $2, jurors_voted = $3 WHERE dispute_id = $1
`, id, v, jurorsVoted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.NotFoundf("dispute %s not found", id)
	}
	return nil
}

func (s *PGStore) ResolveDispute(ctx context.Context, id string, outcome marketplace.DisputeOutcome, resolvedBy, notes string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE mkt_disputes SET status = 'resolved', outcome = $2, resolved_by = $3,
  resolution_notes = $4, resolved_at = now()
WHERE dispute_id = $1 AND status <> 'resolved'
`, id, outcome, resolvedBy, notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AddJuryVote(ctx context.Context, v marketplace.JuryVote) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO mkt_jury_votes (vote_id, dispute_id, juror_index, vote, rationale, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, v.VoteID, v.DisputeID, v.JurorIndex, v.Vote, v.Rationale, v.CreatedAt)
	return err
}

func (s *PGStore) ListJuryVotes(ctx context.Context, disputeID string) ([]marketplace.JuryVote, error) {
	rows, err := s.pool.Query(ctx, `
SELECT vote_id, dispute_id, juror_index, vote, rationale, created_at
FROM mkt_jury_votes WHERE dispute_id = $1 ORDER BY juror_index ASC
`, disputeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []marketplace.JuryVote{}
	for rows.Next() {
		var v marketplace.JuryVote
		if err := rows.Scan(&v.VoteID, &v.DisputeID, &v.JurorIndex, &v.Vote, &v.Rationale, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- agents ---

func (s *PGStore) GetAgent(ctx context.Context, id string) (marketplace.Agent, error) {
	var a marketplace.Agent
	err := s.pool.QueryRow(ctx, `
SELECT agent_id, wallet_address, total_earnings_cents, completed_tasks, verified, created_at
FROM mkt_agents WHERE agent_id = $1
`, id).Scan(&a.AgentID, &a.WalletAddress, &a.TotalEarningsCents, &a.CompletedTasks, &a.Verified, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Agent{}, marketplace.NotFoundf("agent %s not found", id)
	}
	return a, err
}

func (s *PGStore) UpsertAgent(ctx context.Context, a marketplace.Agent) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO mkt_agents (agent_id, wallet_address, total_earnings_cents, completed_tasks, verified)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (agent_id) DO UPDATE SET
  wallet_address = EXCLUDED.wallet_address,
  verified = EXCLUDED.verified
`, a.AgentID, a.WalletAddress, a.TotalEarningsCents, a.CompletedTasks, a.Verified)
	return err
}

func (s *PGStore) CreditAgent(ctx context.Context, agentID string, amountCents int64) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO mkt_agents (agent_id, total_earnings_cents, completed_tasks)
VALUES ($1, $2, 1)
ON CONFLICT (agent_id) DO UPDATE SET
  total_earnings_cents = mkt_agents.total_earnings_cents + EXCLUDED.total_earnings_cents,
  completed_tasks = mkt_agents.completed_tasks + 1
`, agentID, amountCents)
	return err
}
