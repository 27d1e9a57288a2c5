package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

// HeuristicJuror is the built-in juror used when no LLM-backed panel is
// configured. It scores the blind bundle mechanically: a submission wins the
// vote when it is non-trivial and touches the task requirements. The three
// adjudicator invocations each get an independent instance so a real panel
// can later mix juror implementations.
type HeuristicJuror struct{}

// NewHeuristicJuror returns a juror with the default scoring rules.
func NewHeuristicJuror() *HeuristicJuror {
	return &HeuristicJuror{}
}

// Vote implements marketplace.JuryPanel.
func (j *HeuristicJuror) Vote(ctx context.Context, jc marketplace.JurorContext) (marketplace.DisputeOutcome, error) {
	if len(jc.SubmissionContent) == 0 {
		return marketplace.OutcomeRejectionUpheld, nil
	}

	body := flattenContent(jc.SubmissionContent)
	if len(strings.TrimSpace(body)) < 20 {
		return marketplace.OutcomeRejectionUpheld, nil
	}

	terms := requirementTerms(jc.TaskRequirements)
	if len(terms) == 0 {
		// Nothing concrete to check against; substantive work wins.
		return marketplace.OutcomeWorkerPaid, nil
	}

	lower := strings.ToLower(body)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	if hits*2 >= len(terms) {
		return marketplace.OutcomeWorkerPaid, nil
	}
	return marketplace.OutcomeRejectionUpheld, nil
}

func flattenContent(content map[string]any) string {
	var sb strings.Builder
	for k, v := range content {
		sb.WriteString(k)
		sb.WriteString(" ")
		sb.WriteString(fmt.Sprintf("%v", v))
		sb.WriteString("\n")
	}
	return sb.String()
}

// requirementTerms extracts the checkable words from free-text requirements:
// lowercase tokens of 4+ characters, deduplicated.
func requirementTerms(requirements string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range strings.Fields(strings.ToLower(requirements)) {
		t := strings.Trim(raw, ".,:;!?()[]\"'")
		if len(t) < 4 {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
