package marketplace

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

// MemoryStore holds marketplace data in memory with proper concurrency
// control. The single RWMutex makes the conditional operations atomic
// across related maps, which is what the slot and review guards rely on.
type MemoryStore struct {
	mu          sync.RWMutex
	tasks       map[string]marketplace.Task
	apps        map[string]marketplace.Application
	appByPair   map[string]string // taskID|agentID -> applicationID
	submissions map[string]marketplace.Submission
	subByApp    map[string]string // applicationID -> submissionID
	milestones  map[string]marketplace.Milestone
	disputes    map[string]marketplace.Dispute
	dspBySub    map[string]string // submissionID -> disputeID
	votes       map[string][]marketplace.JuryVote
	agents      map[string]marketplace.Agent
}

// NewMemoryStore returns an empty MemoryStore. Seed fixtures separately
// when demo data is wanted.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:       make(map[string]marketplace.Task),
		apps:        make(map[string]marketplace.Application),
		appByPair:   make(map[string]string),
		submissions: make(map[string]marketplace.Submission),
		subByApp:    make(map[string]string),
		milestones:  make(map[string]marketplace.Milestone),
		disputes:    make(map[string]marketplace.Dispute),
		dspBySub:    make(map[string]string),
		votes:       make(map[string][]marketplace.JuryVote),
		agents:      make(map[string]marketplace.Agent),
	}
}

func pairKey(taskID, agentID string) string { return taskID + "|" + agentID }

// --- tasks ---

func (s *MemoryStore) CreateTask(ctx context.Context, t marketplace.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.TaskID]; ok {
		return marketplace.Conflictf("task %s already exists", t.TaskID)
	}
	s.tasks[t.TaskID] = t
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (marketplace.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return marketplace.Task{}, marketplace.NotFoundf("task %s not found", id)
	}
	return t, nil
}

func (s *MemoryStore) ListTasks(ctx context.Context, filter marketplace.TaskFilter) ([]marketplace.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]marketplace.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.CreatorID != "" && t.CreatorID != filter.CreatorID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func paginate(tasks []marketplace.Task, limit, offset int) []marketplace.Task {
	if offset >= len(tasks) {
		return []marketplace.Task{}
	}
	tasks = tasks[offset:]
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}
	return tasks
}

// UpdateTask writes the task's fields wholesale, except current_workers,
// which only the slot operations may move.
func (s *MemoryStore) UpdateTask(ctx context.Context, t marketplace.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tasks[t.TaskID]
	if !ok {
		return marketplace.NotFoundf("task %s not found", t.TaskID)
	}
	t.CurrentWorkers = cur.CurrentWorkers
	s.tasks[t.TaskID] = t
	return nil
}

func (s *MemoryStore) UpdateTaskStatus(ctx context.Context, id string, status marketplace.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return marketplace.NotFoundf("task %s not found", id)
	}
	t.Status = status
	s.tasks[id] = t
	return nil
}

func (s *MemoryStore) TryReserveSlot(ctx context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return false, marketplace.NotFoundf("task %s not found", taskID)
	}
	if t.CurrentWorkers >= t.MaxWorkers {
		return false, nil
	}
	t.CurrentWorkers++
	s.tasks[taskID] = t
	return true, nil
}

func (s *MemoryStore) ReleaseSlot(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return marketplace.NotFoundf("task %s not found", taskID)
	}
	if t.CurrentWorkers > 0 {
		t.CurrentWorkers--
	}
	s.tasks[taskID] = t
	return nil
}

func (s *MemoryStore) ReleaseWorker(ctx context.Context, applicationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[applicationID]
	if !ok {
		return marketplace.NotFoundf("application %s not found", applicationID)
	}
	if a.Status != marketplace.ApplicationAccepted {
		return marketplace.Conflictf("application %s is %s, not accepted", applicationID, a.Status)
	}
	a.Status = marketplace.ApplicationReleased
	s.apps[applicationID] = a
	if t, ok := s.tasks[a.TaskID]; ok && t.CurrentWorkers > 0 {
		t.CurrentWorkers--
		s.tasks[a.TaskID] = t
	}
	return nil
}

func (s *MemoryStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return marketplace.NotFoundf("task %s not found", id)
	}
	delete(s.tasks, id)
	for mid, m := range s.milestones {
		if m.TaskID == id {
			delete(s.milestones, mid)
		}
	}
	return nil
}

// --- applications ---

func (s *MemoryStore) CreateApplication(ctx context.Context, a marketplace.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(a.TaskID, a.AgentID)
	if _, ok := s.appByPair[key]; ok {
		return marketplace.Conflictf("agent %s already applied to task %s", a.AgentID, a.TaskID)
	}
	s.apps[a.ApplicationID] = a
	s.appByPair[key] = a.ApplicationID
	return nil
}

func (s *MemoryStore) GetApplication(ctx context.Context, id string) (marketplace.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apps[id]
	if !ok {
		return marketplace.Application{}, marketplace.NotFoundf("application %s not found", id)
	}
	return a, nil
}

func (s *MemoryStore) ListApplications(ctx context.Context, filter marketplace.ApplicationFilter) ([]marketplace.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]marketplace.Application, 0)
	for _, a := range s.apps {
		if filter.TaskID != "" && a.TaskID != filter.TaskID {
			continue
		}
		if filter.AgentID != "" && a.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) TransitionApplication(ctx context.Context, id string, from, to marketplace.ApplicationStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return false, marketplace.NotFoundf("application %s not found", id)
	}
	if a.Status != from {
		return false, nil
	}
	a.Status = to
	if to == marketplace.ApplicationAccepted {
		now := time.Now()
		a.AcceptedAt = &now
	}
	s.apps[id] = a
	return true, nil
}

func (s *MemoryStore) UpdateApplicationPayment(ctx context.Context, id string, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return marketplace.NotFoundf("application %s not found", id)
	}
	now := time.Now()
	a.PaidAmountCents = amountCents
	a.PaidAt = &now
	s.apps[id] = a
	return nil
}

func (s *MemoryStore) RejectPendingApplications(ctx context.Context, taskID string) ([]marketplace.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rejected []marketplace.Application
	for id, a := range s.apps {
		if a.TaskID != taskID || a.Status != marketplace.ApplicationPending {
			continue
		}
		a.Status = marketplace.ApplicationRejected
		s.apps[id] = a
		rejected = append(rejected, a)
	}
	return rejected, nil
}

func (s *MemoryStore) DeleteApplication(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return marketplace.NotFoundf("application %s not found", id)
	}
	delete(s.apps, id)
	delete(s.appByPair, pairKey(a.TaskID, a.AgentID))
	return nil
}

func (s *MemoryStore) WithdrawAccepted(ctx context.Context, applicationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[applicationID]
	if !ok {
		return marketplace.NotFoundf("application %s not found", applicationID)
	}
	if a.Status != marketplace.ApplicationAccepted {
		return marketplace.Conflictf("application %s is %s, not accepted", applicationID, a.Status)
	}
	delete(s.apps, applicationID)
	delete(s.appByPair, pairKey(a.TaskID, a.AgentID))
	if t, ok := s.tasks[a.TaskID]; ok && t.CurrentWorkers > 0 {
		t.CurrentWorkers--
		s.tasks[a.TaskID] = t
	}
	return nil
}

// --- submissions ---

func (s *MemoryStore) CreateSubmission(ctx context.Context, sub marketplace.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subByApp[sub.ApplicationID]; ok {
		return marketplace.Conflictf("application %s already has a submission", sub.ApplicationID)
	}
	s.submissions[sub.SubmissionID] = sub
	s.subByApp[sub.ApplicationID] = sub.SubmissionID
	return nil
}

func (s *MemoryStore) GetSubmission(ctx context.Context, id string) (marketplace.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return marketplace.Submission{}, marketplace.NotFoundf("submission %s not found", id)
	}
	return sub, nil
}

func (s *MemoryStore) GetSubmissionByApplication(ctx context.Context, applicationID string) (marketplace.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.subByApp[applicationID]
	if !ok {
		return marketplace.Submission{}, marketplace.NotFoundf("no submission for application %s", applicationID)
	}
	return s.submissions[id], nil
}

func (s *MemoryStore) ListSubmissions(ctx context.Context, taskIDs []string) ([]marketplace.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		wanted[id] = true
	}
	out := make([]marketplace.Submission, 0)
	for _, sub := range s.submissions {
		if len(wanted) > 0 && !wanted[sub.TaskID] {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) TransitionSubmission(ctx context.Context, id string, from, to marketplace.SubmissionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return false, marketplace.NotFoundf("submission %s not found", id)
	}
	if sub.Status != from {
		return false, nil
	}
	now := time.Now()
	sub.Status = to
	if from == marketplace.SubmissionSubmitted {
		sub.ReviewedAt = &now
	}
	if to == marketplace.SubmissionRejected {
		sub.RejectedAt = &now
	}
	s.submissions[id] = sub
	return true, nil
}

func (s *MemoryStore) UpdateSubmissionPayout(ctx context.Context, id string, status marketplace.PayoutStatus, txHash string, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return marketplace.NotFoundf("submission %s not found", id)
	}
	sub.PayoutStatus = status
	sub.PayoutTxHash = txHash
	sub.PayoutAmountCents = amountCents
	s.submissions[id] = sub
	return nil
}

func (s *MemoryStore) AppendSubmissionNotes(ctx context.Context, id string, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return marketplace.NotFoundf("submission %s not found", id)
	}
	if sub.ReviewNotes == "" {
		sub.ReviewNotes = notes
	} else {
		sub.ReviewNotes += "\n---\n" + notes
	}
	s.submissions[id] = sub
	return nil
}

// --- milestones ---

func (s *MemoryStore) ReplaceMilestones(ctx context.Context, taskID string, ms []marketplace.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.milestones {
		if m.TaskID == taskID {
			delete(s.milestones, id)
		}
	}
	for _, m := range ms {
		s.milestones[m.MilestoneID] = m
	}
	return nil
}

func (s *MemoryStore) GetMilestone(ctx context.Context, id string) (marketplace.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.milestones[id]
	if !ok {
		return marketplace.Milestone{}, marketplace.NotFoundf("milestone %s not found", id)
	}
	return m, nil
}

func (s *MemoryStore) ListMilestones(ctx context.Context, taskID string) ([]marketplace.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]marketplace.Milestone, 0)
	for _, m := range s.milestones {
		if m.TaskID == taskID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *MemoryStore) TransitionMilestone(ctx context.Context, id string, from, to marketplace.MilestoneStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return false, marketplace.NotFoundf("milestone %s not found", id)
	}
	if m.Status != from {
		return false, nil
	}
	m.Status = to
	if to == marketplace.MilestoneCompleted {
		now := time.Now()
		m.CompletedAt = &now
	}
	s.milestones[id] = m
	return true, nil
}

func (s *MemoryStore) UpdateMilestoneDeliverable(ctx context.Context, id string, deliverable string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return marketplace.NotFoundf("milestone %s not found", id)
	}
	m.Deliverable = deliverable
	s.milestones[id] = m
	return nil
}

func (s *MemoryStore) UpdateMilestonePayout(ctx context.Context, id string, status marketplace.PayoutStatus, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return marketplace.NotFoundf("milestone %s not found", id)
	}
	m.PayoutStatus = status
	m.PayoutTxHash = txHash
	s.milestones[id] = m
	return nil
}

// --- disputes ---

func (s *MemoryStore) CreateDispute(ctx context.Context, d marketplace.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dspBySub[d.SubmissionID]; ok {
		return marketplace.Conflictf("submission %s already has a dispute", d.SubmissionID)
	}
	s.disputes[d.DisputeID] = d
	s.dspBySub[d.SubmissionID] = d.DisputeID
	return nil
}

func (s *MemoryStore) GetDispute(ctx context.Context, id string) (marketplace.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.disputes[id]
	if !ok {
		return marketplace.Dispute{}, marketplace.NotFoundf("dispute %s not found", id)
	}
	return d, nil
}

func (s *MemoryStore) ListDisputes(ctx context.Context, filter marketplace.DisputeFilter) ([]marketplace.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]marketplace.Dispute, 0)
	for _, d := range s.disputes {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.AgentID != "" && d.AgentID != filter.AgentID {
			continue
		}
		if filter.TaskID != "" && d.TaskID != filter.TaskID {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) TransitionDispute(ctx context.Context, id string, from, to marketplace.DisputeStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return false, marketplace.NotFoundf("dispute %s not found", id)
	}
	if d.Status != from {
		return false, nil
	}
	d.Status = to
	s.disputes[id] = d
	return true, nil
}

func (s *MemoryStore) UpdateDisputeVerdict(ctx context.Context, id string, verdict *marketplace.DisputeOutcome, jurorsVoted int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return marketplace.NotFoundf("dispute %s not found", id)
	}
	d.JuryVerdict = verdict
	d.JurorsVoted = jurorsVoted
	s.disputes[id] = d
	return nil
}

func (s *MemoryStore) ResolveDispute(ctx context.Context, id string, outcome marketplace.DisputeOutcome, resolvedBy, notes string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return false, marketplace.NotFoundf("dispute %s not found", id)
	}
	if d.Status == marketplace.DisputeResolved {
		return false, nil
	}
	now := time.Now()
	d.Status = marketplace.DisputeResolved
	d.Outcome = &outcome
	d.ResolvedBy = resolvedBy
	d.ResolutionNotes = notes
	d.ResolvedAt = &now
	s.disputes[id] = d
	return true, nil
}

func (s *MemoryStore) AddJuryVote(ctx context.Context, v marketplace.JuryVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[v.DisputeID] = append(s.votes[v.DisputeID], v)
	return nil
}

func (s *MemoryStore) ListJuryVotes(ctx context.Context, disputeID string) ([]marketplace.JuryVote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]marketplace.JuryVote, len(s.votes[disputeID]))
	copy(out, s.votes[disputeID])
	sort.Slice(out, func(i, j int) bool { return out[i].JurorIndex < out[j].JurorIndex })
	return out, nil
}

// --- agents ---

func (s *MemoryStore) GetAgent(ctx context.Context, id string) (marketplace.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return marketplace.Agent{}, marketplace.NotFoundf("agent %s not found", id)
	}
	return a, nil
}

func (s *MemoryStore) UpsertAgent(ctx context.Context, a marketplace.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.agents[a.AgentID] = a
	return nil
}

func (s *MemoryStore) CreditAgent(ctx context.Context, agentID string, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		a = marketplace.Agent{AgentID: agentID, CreatedAt: time.Now()}
	}
	a.TotalEarningsCents += amountCents
	a.CompletedTasks++
	s.agents[agentID] = a
	return nil
}

func (s *MemoryStore) Close() {}
