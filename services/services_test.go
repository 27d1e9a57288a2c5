package services

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

func TestGenerateFundingQR(t *testing.T) {
	svc := NewFundingQRService()

	data, err := svc.GenerateFundingQR("base", "0xescrow", 50000)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("expected decodable PNG: %v", err)
	}
	if img.Bounds().Dx() != 256 {
		t.Fatalf("expected 256px image, got %d", img.Bounds().Dx())
	}

	if _, err := svc.GenerateFundingQR("base", "", 100); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestSimulatedEscrow(t *testing.T) {
	ctx := context.Background()
	e := NewSimulatedEscrow("base")

	res, err := e.Transfer(ctx, "0xworker", 2500, "ESCROW-1")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !res.Success || res.TransactionHash == "" {
		t.Fatalf("expected settled transfer, got %+v", res)
	}
	if got := e.PaidOut("ESCROW-1"); got != 2500 {
		t.Fatalf("expected 2500 paid out, got %d", got)
	}

	res, err = e.Transfer(ctx, "", 2500, "ESCROW-1")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure without destination")
	}

	res, err = e.Refund(ctx, "0xcreator", "ESCROW-1", -5)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure for non-positive amount")
	}
}

func TestHeuristicJuror(t *testing.T) {
	ctx := context.Background()
	juror := NewHeuristicJuror()

	t.Run("empty_submission_upholds_rejection", func(t *testing.T) {
		outcome, err := juror.Vote(ctx, marketplace.JurorContext{
			TaskRequirements: "translate the docs",
		})
		if err != nil {
			t.Fatalf("vote: %v", err)
		}
		if outcome != marketplace.OutcomeRejectionUpheld {
			t.Fatalf("expected rejection_upheld, got %s", outcome)
		}
	})

	t.Run("substantive_matching_work_pays_worker", func(t *testing.T) {
		outcome, err := juror.Vote(ctx, marketplace.JurorContext{
			TaskRequirements: "translate documentation glossary",
			SubmissionContent: map[string]any{
				"summary": "Full translate pass over the documentation using the provided glossary terms throughout.",
			},
		})
		if err != nil {
			t.Fatalf("vote: %v", err)
		}
		if outcome != marketplace.OutcomeWorkerPaid {
			t.Fatalf("expected worker_paid, got %s", outcome)
		}
	})

	t.Run("unrelated_work_upholds_rejection", func(t *testing.T) {
		outcome, err := juror.Vote(ctx, marketplace.JurorContext{
			TaskRequirements: "benchmark database throughput latency percentiles",
			SubmissionContent: map[string]any{
				"note": "Here is a poem about the sea and its many moods.",
			},
		})
		if err != nil {
			t.Fatalf("vote: %v", err)
		}
		if outcome != marketplace.OutcomeRejectionUpheld {
			t.Fatalf("expected rejection_upheld, got %s", outcome)
		}
	})
}
