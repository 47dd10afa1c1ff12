package service

import (
	"fmt"

	"competenest/internal/common"
	"competenest/internal/domain/model"
)

// mergeOutcome describes what one testcase result did to the submission.
type mergeOutcome struct {
	// Completed is set when this result was the last outstanding testcase.
	Completed bool
	// Accepted is set when Completed and the final verdict is Accepted.
	Accepted bool
}

// applyTestcaseVerdict merges one terminal testcase result into the submission
// aggregates, in place. The rules:
//
//   - every terminal result bumps EvaluatedTestcases, Accepted ones also bump
//     AcceptedTestcases
//   - Memory is the max across testcases, Time the sum
//   - before the last testcase, only failures touch the overall status (worst
//     failure wins); a run of Accepted results keeps the submission visibly
//     in-progress
//   - the last testcase settles the overall verdict as the worst of its own
//     status and whatever the submission carried
//
// Order-independence follows: counters are commutative, max/sum are
// commutative, and "worst wins" makes the settled verdict the same no matter
// which testcase happens to arrive last.
func applyTestcaseVerdict(sub *model.Submission, status model.Verdict, timeSec float64, memoryKB int) (mergeOutcome, error) {
	if !status.Terminal() {
		return mergeOutcome{}, fmt.Errorf("non-terminal status %d: %w", status, common.ErrBadRequest)
	}
	if sub.EvaluatedTestcases >= sub.TotalTestcases {
		return mergeOutcome{}, fmt.Errorf("submission %s already fully evaluated: %w", sub.ID, common.ErrConflict)
	}

	sub.EvaluatedTestcases++
	if status == model.VerdictAccepted {
		sub.AcceptedTestcases++
	}
	if memoryKB > sub.Memory {
		sub.Memory = memoryKB
	}
	sub.Time += timeSec

	completed := sub.EvaluatedTestcases == sub.TotalTestcases
	if completed {
		sub.Status = status.Worse(sub.Status)
	} else if status.IsFailure() {
		sub.Status = status.Worse(sub.Status)
	}

	return mergeOutcome{
		Completed: completed,
		Accepted:  completed && sub.Status == model.VerdictAccepted,
	}, nil
}
