package marketplace

// JurySize is the number of independent juror invocations per dispute.
const JurySize = 3

// TallyVerdict applies simple majority over the votes actually received.
// Juror failures shrink the electorate instead of blocking adjudication.
// Ties favor the worker: the dispute exists because a worker claims unpaid
// work, and the verdict is only persuasive input to the human reviewer, so
// the worker-favoring reading is the safer default. Zero votes yield no
// verdict (ok=false).
func TallyVerdict(votes []JuryVote) (DisputeOutcome, bool) {
	if len(votes) == 0 {
		return "", false
	}
	paid := 0
	for _, v := range votes {
		if v.Vote == OutcomeWorkerPaid {
			paid++
		}
	}
	if paid*2 >= len(votes) {
		return OutcomeWorkerPaid, true
	}
	return OutcomeRejectionUpheld, true
}
