package marketplace_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
	mktstore "github.com/vinccirom/taskforce-platform-sub001/storage/marketplace"
)

// stubEscrow is a scriptable escrow gateway. With failTransfers set every
// transfer reports failure without returning an error, mirroring a gateway
// that responds but declines.
type stubEscrow struct {
	mu            sync.Mutex
	failTransfers bool
	transfers     []int64
	refunds       []int64
}

func (e *stubEscrow) Transfer(ctx context.Context, destinationAddress string, amountCents int64, sourceWalletRef string) (marketplace.TransferResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failTransfers {
		return marketplace.TransferResult{Success: false, Error: "gateway declined"}, nil
	}
	e.transfers = append(e.transfers, amountCents)
	return marketplace.TransferResult{Success: true, TransactionHash: fmt.Sprintf("0xtx%d", len(e.transfers))}, nil
}

func (e *stubEscrow) Refund(ctx context.Context, creatorAddress string, sourceWalletRef string, amountCents int64) (marketplace.TransferResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refunds = append(e.refunds, amountCents)
	return marketplace.TransferResult{Success: true, TransactionHash: "0xrefund"}, nil
}

func (e *stubEscrow) transferTotal() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var total int64
	for _, t := range e.transfers {
		total += t
	}
	return total
}

// stubJury returns scripted outcomes in order; an empty string entry makes
// that juror invocation fail.
type stubJury struct {
	mu    sync.Mutex
	votes []marketplace.DisputeOutcome
	calls int
}

func (j *stubJury) Vote(ctx context.Context, jc marketplace.JurorContext) (marketplace.DisputeOutcome, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.calls >= len(j.votes) {
		return "", fmt.Errorf("juror unavailable")
	}
	v := j.votes[j.calls]
	j.calls++
	if v == "" {
		return "", fmt.Errorf("juror timed out")
	}
	return v, nil
}

func newLedger(t *testing.T) *mktstore.MemoryStore {
	t.Helper()
	return mktstore.NewMemoryStore()
}

func seedAgent(t *testing.T, ledger marketplace.Ledger, agentID string) {
	t.Helper()
	err := ledger.UpsertAgent(context.Background(), marketplace.Agent{
		AgentID:       agentID,
		WalletAddress: "0xwallet-" + agentID,
		Verified:      true,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("seed agent %s: %v", agentID, err)
	}
}

func seedActiveTask(t *testing.T, ledger marketplace.Ledger, creatorID string, maxWorkers int, budgetCents int64) marketplace.Task {
	t.Helper()
	task := marketplace.Task{
		TaskID:           marketplace.NewID("TASK"),
		CreatorID:        creatorID,
		Title:            "Label a dataset",
		Description:      "Label 500 images",
		Requirements:     "labels must cover every image",
		Status:           marketplace.TaskActive,
		TotalBudgetCents: budgetCents,
		PaymentType:      marketplace.PaymentFixed,
		MaxWorkers:       maxWorkers,
		EscrowWalletID:   "ESCROW-" + creatorID,
		EscrowAddress:    "0xescrow",
		PaymentChain:     "base",
		CreatedAt:        time.Now(),
	}
	if err := ledger.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

// acceptWorker runs the apply+accept path and returns the accepted
// application.
func acceptWorker(t *testing.T, allocator *marketplace.SlotAllocator, task marketplace.Task, agentID string) marketplace.Application {
	t.Helper()
	ctx := context.Background()
	app, err := allocator.Apply(ctx, task.TaskID, agentID, "ready to work")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	accepted, err := allocator.Accept(ctx, app.ApplicationID, task.CreatorID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return accepted
}
