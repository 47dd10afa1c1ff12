package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"competenest/internal/common"
	"competenest/internal/domain/model"
)

type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	CreateSubmittedTestcases(ctx context.Context, tx *sql.Tx, testcases []model.SubmittedTestcase) error
	GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error)

	// LockSubmission reads the submission row FOR UPDATE so that concurrent
	// callbacks for the same submission serialize their aggregate updates.
	LockSubmission(ctx context.Context, tx *sql.Tx, id string) (*model.Submission, error)

	// FinalizeTestcase records the judge result for a submitted testcase
	// exactly once. A second delivery for the same id fails with
	// common.ErrAlreadyEvaluated; an unknown id fails with common.ErrNotFound.
	FinalizeTestcase(ctx context.Context, tx *sql.Tx, id, output string, status model.Verdict, timeSec float64, memoryKB int) (*model.SubmittedTestcase, error)

	UpdateAggregates(ctx context.Context, tx *sql.Tx, sub *model.Submission) error

	// ForceStatus is a best-effort write outside any transaction, used to mark
	// a submission Internal Error after a failed aggregation.
	ForceStatus(ctx context.Context, id string, status model.Verdict) (*model.Submission, error)

	// HasAcceptedSubmission reports whether the user already has an Accepted
	// submission for the problem, other than the one being evaluated.
	HasAcceptedSubmission(ctx context.Context, tx *sql.Tx, userID, problemID, excludeSubmissionID string) (bool, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

func (r *pgSubmissionRepository) CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	query := `INSERT INTO submissions (id, problem_id, user_id, code, language, status, total_testcases)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := tx.ExecContext(ctx, query, sub.ID, sub.ProblemID, sub.UserID, sub.Code, sub.Language, sub.Status, sub.TotalTestcases)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.CreateSubmission: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) CreateSubmittedTestcases(ctx context.Context, tx *sql.Tx, testcases []model.SubmittedTestcase) error {
	if len(testcases) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO submitted_testcases (id, submission_id, testcase_id, status) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.CreateSubmittedTestcases prepare: %w", err)
	}
	defer stmt.Close()

	for _, tc := range testcases {
		if _, err := stmt.ExecContext(ctx, tc.ID, tc.SubmissionID, tc.TestcaseID, tc.Status); err != nil {
			return fmt.Errorf("pgSubmissionRepository.CreateSubmittedTestcases exec for %s: %w", tc.ID, err)
		}
	}
	return nil
}

const submissionColumns = `id, problem_id, user_id, code, language, status, total_testcases,
	evaluated_testcases, accepted_testcases, memory, time, created_at, updated_at`

func scanSubmission(row *sql.Row) (*model.Submission, error) {
	sub := &model.Submission{}
	err := row.Scan(
		&sub.ID, &sub.ProblemID, &sub.UserID, &sub.Code, &sub.Language, &sub.Status, &sub.TotalTestcases,
		&sub.EvaluatedTestcases, &sub.AcceptedTestcases, &sub.Memory, &sub.Time, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (r *pgSubmissionRepository) GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	sub, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionByID: %w", err)
	}
	return sub, err
}

func (r *pgSubmissionRepository) LockSubmission(ctx context.Context, tx *sql.Tx, id string) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 FOR UPDATE`
	sub, err := scanSubmission(tx.QueryRowContext(ctx, query, id))
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("pgSubmissionRepository.LockSubmission: %w", err)
	}
	return sub, err
}

func (r *pgSubmissionRepository) FinalizeTestcase(ctx context.Context, tx *sql.Tx, id, output string, status model.Verdict, timeSec float64, memoryKB int) (*model.SubmittedTestcase, error) {
	// The status guard makes finalization first-write-wins: a terminal row is
	// never overwritten, so a duplicate callback cannot double-count.
	query := `UPDATE submitted_testcases
	          SET output = $2, status = $3, time = $4, memory = $5
	          WHERE id = $1 AND status < $6
	          RETURNING id, submission_id, testcase_id, output, status, time, memory`
	tc := &model.SubmittedTestcase{}
	err := tx.QueryRowContext(ctx, query, id, output, status, timeSec, memoryKB, model.VerdictAccepted).Scan(
		&tc.ID, &tc.SubmissionID, &tc.TestcaseID, &tc.Output, &tc.Status, &tc.Time, &tc.Memory,
	)
	if err == nil {
		return tc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pgSubmissionRepository.FinalizeTestcase: %w", err)
	}

	// No row updated: either the id is unknown or it was already finalized.
	var existing int
	err = tx.QueryRowContext(ctx, `SELECT status FROM submitted_testcases WHERE id = $1`, id).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submitted testcase %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.FinalizeTestcase check: %w", err)
	}
	return nil, fmt.Errorf("submitted testcase %s already has status %d: %w", id, existing, common.ErrAlreadyEvaluated)
}

func (r *pgSubmissionRepository) UpdateAggregates(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	query := `UPDATE submissions
	          SET status = $2, evaluated_testcases = $3, accepted_testcases = $4,
	              memory = $5, time = $6, updated_at = NOW()
	          WHERE id = $1`
	_, err := tx.ExecContext(ctx, query, sub.ID, sub.Status, sub.EvaluatedTestcases, sub.AcceptedTestcases, sub.Memory, sub.Time)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.UpdateAggregates: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) ForceStatus(ctx context.Context, id string, status model.Verdict) (*model.Submission, error) {
	query := `UPDATE submissions SET status = $2, updated_at = NOW() WHERE id = $1
	          RETURNING ` + submissionColumns
	sub := &model.Submission{}
	err := r.db.QueryRowContext(ctx, query, id, status).Scan(
		&sub.ID, &sub.ProblemID, &sub.UserID, &sub.Code, &sub.Language, &sub.Status, &sub.TotalTestcases,
		&sub.EvaluatedTestcases, &sub.AcceptedTestcases, &sub.Memory, &sub.Time, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.ForceStatus: %w", err)
	}
	return sub, nil
}

func (r *pgSubmissionRepository) HasAcceptedSubmission(ctx context.Context, tx *sql.Tx, userID, problemID, excludeSubmissionID string) (bool, error) {
	query := `SELECT EXISTS (
	            SELECT 1 FROM submissions
	            WHERE user_id = $1 AND problem_id = $2 AND status = $3 AND id <> $4
	          )`
	var exists bool
	err := tx.QueryRowContext(ctx, query, userID, problemID, model.VerdictAccepted, excludeSubmissionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.HasAcceptedSubmission: %w", err)
	}
	return exists, nil
}
