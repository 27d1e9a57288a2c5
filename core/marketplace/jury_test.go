package marketplace_test

import (
	"testing"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

func vote(outcome marketplace.DisputeOutcome) marketplace.JuryVote {
	return marketplace.JuryVote{Vote: outcome}
}

func TestTallyVerdict(t *testing.T) {
	t.Run("majority_worker_paid", func(t *testing.T) {
		verdict, ok := marketplace.TallyVerdict([]marketplace.JuryVote{
			vote(marketplace.OutcomeWorkerPaid),
			vote(marketplace.OutcomeWorkerPaid),
			vote(marketplace.OutcomeRejectionUpheld),
		})
		if !ok || verdict != marketplace.OutcomeWorkerPaid {
			t.Fatalf("expected worker_paid verdict, got %s ok=%v", verdict, ok)
		}
	})

	t.Run("majority_rejection_upheld", func(t *testing.T) {
		verdict, ok := marketplace.TallyVerdict([]marketplace.JuryVote{
			vote(marketplace.OutcomeRejectionUpheld),
			vote(marketplace.OutcomeRejectionUpheld),
			vote(marketplace.OutcomeWorkerPaid),
		})
		if !ok || verdict != marketplace.OutcomeRejectionUpheld {
			t.Fatalf("expected rejection_upheld verdict, got %s ok=%v", verdict, ok)
		}
	})

	t.Run("tie_favors_worker", func(t *testing.T) {
		verdict, ok := marketplace.TallyVerdict([]marketplace.JuryVote{
			vote(marketplace.OutcomeWorkerPaid),
			vote(marketplace.OutcomeRejectionUpheld),
		})
		if !ok || verdict != marketplace.OutcomeWorkerPaid {
			t.Fatalf("expected tie to favor worker, got %s ok=%v", verdict, ok)
		}
	})

	t.Run("partial_panel_still_tallies", func(t *testing.T) {
		verdict, ok := marketplace.TallyVerdict([]marketplace.JuryVote{
			vote(marketplace.OutcomeRejectionUpheld),
		})
		if !ok || verdict != marketplace.OutcomeRejectionUpheld {
			t.Fatalf("expected single-vote verdict, got %s ok=%v", verdict, ok)
		}
	})

	t.Run("no_votes_no_verdict", func(t *testing.T) {
		if _, ok := marketplace.TallyVerdict(nil); ok {
			t.Fatalf("expected no verdict from empty panel")
		}
	})
}
