package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

// SeedFixtures loads demo data for local development. It is idempotent:
// rows that already exist are left alone.
func SeedFixtures(ctx context.Context, ledger marketplace.Ledger) error {
	now := time.Now()

	agents := []marketplace.Agent{
		{AgentID: "agent-scout-1", WalletAddress: "0xA11CE00000000000000000000000000000000001", Verified: true, CreatedAt: now},
		{AgentID: "agent-scout-2", WalletAddress: "0xB0B0000000000000000000000000000000000002", Verified: true, CreatedAt: now},
	}
	for _, a := range agents {
		if err := ledger.UpsertAgent(ctx, a); err != nil {
			return err
		}
	}

	deadline := now.Add(14 * 24 * time.Hour)
	tasks := []marketplace.Task{
		{
			TaskID:                "TASK-demo-fixed",
			CreatorID:             "creator-demo",
			Title:                 "Label 500 product images",
			Description:           "Bounding boxes plus category labels for a retail catalog.",
			Requirements:          "COCO-format JSON, >= 95% spot-check accuracy",
			Deadline:              &deadline,
			Status:                marketplace.TaskActive,
			TotalBudgetCents:      50000,
			PaymentType:           marketplace.PaymentFixed,
			PaymentPerWorkerCents: 10000,
			MaxWorkers:            5,
			EscrowWalletID:        "wallet-demo-fixed",
			EscrowAddress:         "0xE5C1000000000000000000000000000000000001",
			PaymentChain:          "base",
			CreatedAt:             now,
		},
		{
			TaskID:           "TASK-demo-milestone",
			CreatorID:        "creator-demo",
			Title:            "Build a landing page",
			Description:      "Three-section marketing page with deploy pipeline.",
			Status:           marketplace.TaskDraft,
			TotalBudgetCents: 120000,
			PaymentType:      marketplace.PaymentMilestone,
			MaxWorkers:       1,
			CreatedAt:        now,
		},
	}
	for _, t := range tasks {
		if err := ledger.CreateTask(ctx, t); err != nil {
			if errors.Is(err, marketplace.ErrConflict) {
				continue
			}
			return err
		}
	}

	milestones := []marketplace.Milestone{
		{MilestoneID: "MS-demo-1", TaskID: "TASK-demo-milestone", Order: 1, Title: "Design mockup", Percentage: 30, AmountCents: 36000, Status: marketplace.MilestonePending, PayoutStatus: marketplace.PayoutPending},
		{MilestoneID: "MS-demo-2", TaskID: "TASK-demo-milestone", Order: 2, Title: "Implementation", Percentage: 50, AmountCents: 60000, Status: marketplace.MilestonePending, PayoutStatus: marketplace.PayoutPending},
		{MilestoneID: "MS-demo-3", TaskID: "TASK-demo-milestone", Order: 3, Title: "Deploy + handoff", Percentage: 20, AmountCents: 24000, Status: marketplace.MilestonePending, PayoutStatus: marketplace.PayoutPending},
	}
	if err := ledger.ReplaceMilestones(ctx, "TASK-demo-milestone", milestones); err != nil {
		return err
	}

	app := marketplace.Application{
		ApplicationID: "APP-demo-1",
		TaskID:        "TASK-demo-fixed",
		AgentID:       "agent-scout-1",
		Status:        marketplace.ApplicationPending,
		Message:       "Annotated 10k retail images last quarter.",
		CreatedAt:     now,
	}
	if err := ledger.CreateApplication(ctx, app); err != nil && !errors.Is(err, marketplace.ErrConflict) {
		return err
	}
	return nil
}
