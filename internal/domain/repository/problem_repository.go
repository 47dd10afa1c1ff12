package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"competenest/internal/common"
	"competenest/internal/domain/model"
)

type ProblemRepository interface {
	FindProblemByID(ctx context.Context, id string) (*model.Problem, error)
	GetTestcasesByProblemID(ctx context.Context, problemID string) ([]model.Testcase, error)
	SetProblemContest(ctx context.Context, tx *sql.Tx, problemID string, contestID *string) error

	// ClearContestFromProblems detaches every problem of an ended or deleted
	// contest so the problems become part of the public set.
	ClearContestFromProblems(ctx context.Context, contestID string) (int64, error)
}

type pgProblemRepository struct {
	db *sql.DB
}

func NewPgProblemRepository(db *sql.DB) ProblemRepository {
	return &pgProblemRepository{db: db}
}

func (r *pgProblemRepository) FindProblemByID(ctx context.Context, id string) (*model.Problem, error) {
	query := `SELECT id, title, slug, difficulty, contest_id, created_by, created_at, updated_at
	          FROM problems WHERE id = $1`
	p := &model.Problem{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Title, &p.Slug, &p.Difficulty, &p.ContestID, &p.CreatedByID, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.FindProblemByID: %w", err)
	}
	return p, nil
}

func (r *pgProblemRepository) GetTestcasesByProblemID(ctx context.Context, problemID string) ([]model.Testcase, error) {
	query := `SELECT id, problem_id, input_path, exp_output_path FROM testcases WHERE problem_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, problemID)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.GetTestcasesByProblemID: %w", err)
	}
	defer rows.Close()

	var testcases []model.Testcase
	for rows.Next() {
		tc := model.Testcase{}
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.InputPath, &tc.ExpOutputPath); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.GetTestcasesByProblemID scan: %w", err)
		}
		testcases = append(testcases, tc)
	}
	return testcases, rows.Err()
}

func (r *pgProblemRepository) SetProblemContest(ctx context.Context, tx *sql.Tx, problemID string, contestID *string) error {
	query := `UPDATE problems SET contest_id = $2, updated_at = NOW() WHERE id = $1`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, problemID, contestID)
	} else {
		_, err = r.db.ExecContext(ctx, query, problemID, contestID)
	}
	if err != nil {
		return fmt.Errorf("pgProblemRepository.SetProblemContest: %w", err)
	}
	return nil
}

func (r *pgProblemRepository) ClearContestFromProblems(ctx context.Context, contestID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE problems SET contest_id = NULL, updated_at = NOW() WHERE contest_id = $1`, contestID)
	if err != nil {
		return 0, fmt.Errorf("pgProblemRepository.ClearContestFromProblems: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pgProblemRepository.ClearContestFromProblems: %w", err)
	}
	return n, nil
}
