package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"competenest/internal/common"
	"competenest/internal/domain/model"
	"competenest/internal/domain/repository"
)

// Presigner hands out time-limited URLs for test-case payloads. Satisfied by
// storage.Client.
type Presigner interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

type CreateSubmissionInput struct {
	ProblemID string
	UserID    string
	Code      string
	Language  int
	ContestID string // empty for regular submissions
}

// RunTicket is returned for an ephemeral run: the judge posts its result to
// the callback URL and the caller listens on the room named by UID.
type RunTicket struct {
	UID         string `json:"uid"`
	CallbackURL string `json:"callback_url"`
}

type SubmissionService struct {
	db             *sql.DB
	submissionRepo repository.SubmissionRepository
	problemRepo    repository.ProblemRepository
	contestRepo    repository.ContestRepository
	storage        Presigner
	callbackBase   string
}

func NewSubmissionService(
	db *sql.DB,
	submissionRepo repository.SubmissionRepository,
	problemRepo repository.ProblemRepository,
	contestRepo repository.ContestRepository,
	storage Presigner,
	callbackBase string,
) *SubmissionService {
	return &SubmissionService{
		db:             db,
		submissionRepo: submissionRepo,
		problemRepo:    problemRepo,
		contestRepo:    contestRepo,
		storage:        storage,
		callbackBase:   callbackBase,
	}
}

// CreateSubmission records the submission with one pending row per test case
// and returns the fan-out ticket: presigned payload URLs plus one callback URL
// per test case for the external judge.
func (s *SubmissionService) CreateSubmission(ctx context.Context, input CreateSubmissionInput) (*model.SubmissionTicket, error) {
	problem, err := s.problemRepo.FindProblemByID(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}

	if input.ContestID != "" {
		contest, err := s.contestRepo.GetContestByID(ctx, input.ContestID)
		if err != nil {
			return nil, err
		}
		if contest.Status != model.ContestOngoing {
			return nil, common.Errorf("contest is not running: %w", common.ErrForbidden)
		}
		if _, err := s.contestRepo.GetContestProblemScore(ctx, nil, input.ContestID, input.ProblemID); err != nil {
			return nil, common.Errorf("problem is not part of contest %s: %w", input.ContestID, common.ErrBadRequest)
		}
	} else if problem.ContestID != nil {
		// Problems of a live contest are only submittable through the contest.
		return nil, common.Errorf("problem belongs to contest %s: %w", *problem.ContestID, common.ErrForbidden)
	}

	testcases, err := s.problemRepo.GetTestcasesByProblemID(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}
	if len(testcases) == 0 {
		return nil, common.Errorf("problem %s has no test cases: %w", input.ProblemID, common.ErrValidation)
	}

	sub := &model.Submission{
		ID:             uuid.NewString(),
		ProblemID:      input.ProblemID,
		UserID:         input.UserID,
		Code:           input.Code,
		Language:       input.Language,
		Status:         model.VerdictInQueue,
		TotalTestcases: len(testcases),
	}
	stcs := make([]model.SubmittedTestcase, 0, len(testcases))
	for _, tc := range testcases {
		stcs = append(stcs, model.SubmittedTestcase{
			ID:           uuid.NewString(),
			SubmissionID: sub.ID,
			TestcaseID:   tc.ID,
			Status:       model.VerdictInQueue,
		})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.submissionRepo.CreateSubmission(ctx, tx, sub); err != nil {
		return nil, err
	}
	if err := s.submissionRepo.CreateSubmittedTestcases(ctx, tx, stcs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, common.Errorf("committing transaction: %w", err)
	}

	ticket := &model.SubmissionTicket{SubmissionID: sub.ID}
	for i, tc := range testcases {
		inputURL, err := s.storage.PresignGet(ctx, tc.InputPath)
		if err != nil {
			return nil, common.Errorf("presigning input for testcase %s: %w", tc.ID, err)
		}
		outputURL, err := s.storage.PresignGet(ctx, tc.ExpOutputPath)
		if err != nil {
			return nil, common.Errorf("presigning expected output for testcase %s: %w", tc.ID, err)
		}
		ticket.InputURLs = append(ticket.InputURLs, inputURL)
		ticket.ExpOutputURLs = append(ticket.ExpOutputURLs, outputURL)
		ticket.CallbackURLs = append(ticket.CallbackURLs, s.callbackURL(input.ContestID, sub.ID, stcs[i].ID))
	}
	log.Printf("INFO: Created submission %s for problem %s (%d testcases)", sub.ID, input.ProblemID, len(testcases))
	return ticket, nil
}

func (s *SubmissionService) callbackURL(contestID, submissionID, submittedTestcaseID string) string {
	if contestID != "" {
		return fmt.Sprintf("%s/api/submission/%s/contest/%s/testcase/%s", s.callbackBase, submissionID, contestID, submittedTestcaseID)
	}
	return fmt.Sprintf("%s/api/submission/%s/testcase/%s", s.callbackBase, submissionID, submittedTestcaseID)
}

func (s *SubmissionService) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	return s.submissionRepo.GetSubmissionByID(ctx, id)
}

// RunProblem issues an ephemeral run ticket. Nothing is stored: the judge
// echoes the uid in its callback body and the result is relayed to the room
// named by it.
func (s *SubmissionService) RunProblem(ctx context.Context, problemID string) (*RunTicket, error) {
	if _, err := s.problemRepo.FindProblemByID(ctx, problemID); err != nil {
		return nil, err
	}
	return &RunTicket{
		UID:         fmt.Sprintf("%s-%d", problemID, time.Now().UnixMilli()),
		CallbackURL: fmt.Sprintf("%s/api/submission/run/%s", s.callbackBase, problemID),
	}, nil
}
