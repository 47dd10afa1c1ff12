package service

import (
	"context"
	"database/sql"
	"log"
	"time"

	"competenest/internal/common"
	"competenest/internal/domain/model"
	"competenest/internal/domain/repository"
	"competenest/internal/telemetry"
)

// TestcaseResult is the payload of one judge callback.
type TestcaseResult struct {
	Status model.Verdict `json:"status"`
	Output string        `json:"output"`
	Time   float64       `json:"time"`   // seconds
	Memory int           `json:"memory"` // KB
}

// AggregationService merges per-testcase judge callbacks into one submission
// verdict. Concurrency control is two-layered: an in-process single-flight
// guard per submitted testcase turns concurrent duplicates away with a retry
// signal, and a row lock on the submission serializes aggregate updates from
// callbacks for different testcases of the same submission.
type AggregationService struct {
	db             *sql.DB
	submissionRepo repository.SubmissionRepository
	problemRepo    repository.ProblemRepository
	userRepo       repository.UserRepository
	leaderboard    *LeaderboardService
	publisher      Publisher
	guard          *inflightGuard
	timeout        time.Duration
}

func NewAggregationService(
	db *sql.DB,
	submissionRepo repository.SubmissionRepository,
	problemRepo repository.ProblemRepository,
	userRepo repository.UserRepository,
	leaderboard *LeaderboardService,
	publisher Publisher,
	timeout time.Duration,
) *AggregationService {
	return &AggregationService{
		db:             db,
		submissionRepo: submissionRepo,
		problemRepo:    problemRepo,
		userRepo:       userRepo,
		leaderboard:    leaderboard,
		publisher:      publisher,
		guard:          newInflightGuard(),
		timeout:        timeout,
	}
}

// HandleTestcaseResult processes one judge callback for a submitted testcase.
// contestID is empty for regular submissions. On any server-side failure the
// submission is force-marked Internal Error outside the failed transaction so
// it never sticks in a processing state.
func (s *AggregationService) HandleTestcaseResult(ctx context.Context, submissionID, submittedTestcaseID, contestID string, res TestcaseResult) (*model.Submission, error) {
	if !res.Status.Valid() || !res.Status.Terminal() {
		return nil, common.Errorf("invalid testcase status %d: %w", res.Status, common.ErrBadRequest)
	}

	if !s.guard.TryAcquire(submittedTestcaseID) {
		telemetry.CallbacksRejected.Inc()
		return nil, common.ErrAlreadyProcessing
	}
	defer s.guard.Release(submittedTestcaseID)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sub, snapshot, err := s.mergeResult(ctx, submissionID, submittedTestcaseID, contestID, res)
	if err != nil {
		if common.IsClientError(err) {
			return nil, err
		}
		log.Printf("ERROR: Aggregation failed for submission %s testcase %s: %v", submissionID, submittedTestcaseID, err)
		forced := s.forceInternalError(submissionID)
		return forced, common.Errorf("aggregating testcase result: %w", common.ErrInternalServer)
	}

	telemetry.CallbacksProcessed.Inc()
	if snapshot != nil {
		s.leaderboard.PublishLeaderboard(contestID, snapshot)
	}
	return sub, nil
}

// mergeResult runs the transactional part: finalize the testcase row, lock the
// submission, fold the result into its aggregates, and on a completed Accepted
// verdict credit the solve. The returned snapshot is non-nil only when a
// contest participant's score changed.
func (s *AggregationService) mergeResult(ctx context.Context, submissionID, submittedTestcaseID, contestID string, res TestcaseResult) (*model.Submission, []model.ContestParticipant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, common.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	tc, err := s.submissionRepo.FinalizeTestcase(ctx, tx, submittedTestcaseID, res.Output, res.Status, res.Time, res.Memory)
	if err != nil {
		return nil, nil, err
	}
	if tc.SubmissionID != submissionID {
		return nil, nil, common.Errorf("testcase %s does not belong to submission %s: %w", submittedTestcaseID, submissionID, common.ErrBadRequest)
	}

	sub, err := s.submissionRepo.LockSubmission(ctx, tx, submissionID)
	if err != nil {
		return nil, nil, err
	}

	outcome, err := applyTestcaseVerdict(sub, res.Status, res.Time, res.Memory)
	if err != nil {
		return nil, nil, err
	}
	if err := s.submissionRepo.UpdateAggregates(ctx, tx, sub); err != nil {
		return nil, nil, err
	}

	var snapshot []model.ContestParticipant
	if outcome.Accepted {
		if err := s.creditFirstSolve(ctx, tx, sub); err != nil {
			return nil, nil, err
		}
		if contestID != "" {
			snapshot, _, err = s.leaderboard.CreditSolve(ctx, tx, contestID, sub.UserID, sub.ProblemID)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, common.Errorf("committing transaction: %w", err)
	}
	return sub, snapshot, nil
}

// creditFirstSolve appends the problem to the user's solved set when this is
// their first Accepted submission for it.
func (s *AggregationService) creditFirstSolve(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	solvedBefore, err := s.submissionRepo.HasAcceptedSubmission(ctx, tx, sub.UserID, sub.ProblemID, sub.ID)
	if err != nil {
		return err
	}
	if solvedBefore {
		return nil
	}
	problem, err := s.problemRepo.FindProblemByID(ctx, sub.ProblemID)
	if err != nil {
		return err
	}
	return s.userRepo.AppendSolvedProblem(ctx, tx, sub.UserID, model.SolvedProblem{
		ProblemID:  problem.ID,
		Difficulty: problem.Difficulty,
	})
}

// forceInternalError marks the submission Internal Error outside the failed
// transaction, best effort.
func (s *AggregationService) forceInternalError(submissionID string) *model.Submission {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := s.submissionRepo.ForceStatus(ctx, submissionID, model.VerdictInternalError)
	if err != nil {
		log.Printf("ERROR: Failed to mark submission %s as Internal Error: %v", submissionID, err)
		return nil
	}
	log.Printf("WARN: Submission %s marked as Internal Error", submissionID)
	return sub
}

// HandleRunCallback relays the judge's result for an ephemeral run straight to
// the run's room; nothing is persisted.
func (s *AggregationService) HandleRunCallback(uid string, res TestcaseResult) {
	s.publisher.Publish(uid, "run-result", res)
	log.Printf("INFO: Relayed run result for %s (status: %s)", uid, res.Status)
}
