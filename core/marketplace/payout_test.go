package marketplace_test

import (
	"testing"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

func TestResolvePayoutAmount(t *testing.T) {
	t.Run("explicit_per_worker_wins", func(t *testing.T) {
		task := marketplace.Task{TotalBudgetCents: 100000, MaxWorkers: 4, PaymentPerWorkerCents: 30000}
		if got := marketplace.ResolvePayoutAmount(task); got != 30000 {
			t.Fatalf("expected 30000, got %d", got)
		}
	})

	t.Run("even_split_fallback", func(t *testing.T) {
		task := marketplace.Task{TotalBudgetCents: 100000, MaxWorkers: 4}
		if got := marketplace.ResolvePayoutAmount(task); got != 25000 {
			t.Fatalf("expected 25000, got %d", got)
		}
	})

	t.Run("split_truncates", func(t *testing.T) {
		task := marketplace.Task{TotalBudgetCents: 100, MaxWorkers: 3}
		if got := marketplace.ResolvePayoutAmount(task); got != 33 {
			t.Fatalf("expected 33, got %d", got)
		}
	})
}

func TestResolveEscrowSource(t *testing.T) {
	funded := marketplace.Task{EscrowWalletID: "ESCROW-1"}
	if got := marketplace.ResolveEscrowSource(funded, "platform"); got != "ESCROW-1" {
		t.Fatalf("expected task escrow, got %s", got)
	}
	unfunded := marketplace.Task{}
	if got := marketplace.ResolveEscrowSource(unfunded, "platform"); got != "platform" {
		t.Fatalf("expected platform fallback, got %s", got)
	}
}

func TestMilestoneAmount(t *testing.T) {
	if got := marketplace.MilestoneAmount(30, 120000); got != 36000 {
		t.Fatalf("expected 36000, got %d", got)
	}
	if got := marketplace.MilestoneAmount(100, 999); got != 999 {
		t.Fatalf("expected 999, got %d", got)
	}
}

func TestCancellationRefund(t *testing.T) {
	// 5% fee on 50000 cents leaves 47500.
	if got := marketplace.CancellationRefund(50000, 500); got != 47500 {
		t.Fatalf("expected 47500, got %d", got)
	}
	if got := marketplace.CancellationRefund(50000, 0); got != 50000 {
		t.Fatalf("expected full refund, got %d", got)
	}
}
