package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"competenest/internal/common"
	"competenest/internal/domain/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)

	// AppendSolvedProblem adds one entry to the user's solved set. Callers are
	// responsible for not appending the same problem twice.
	AppendSolvedProblem(ctx context.Context, tx *sql.Tx, userID string, solved model.SolvedProblem) error
}

type pgUserRepository struct {
	db *sql.DB
}

func NewPgUserRepository(db *sql.DB) UserRepository {
	return &pgUserRepository{db: db}
}

func (r *pgUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT id, username, email, role, problems_solved, created_at, updated_at FROM users WHERE id = $1`
	u := &model.User{}
	var solvedJSON []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.Email, &u.Role, &solvedJSON, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgUserRepository.FindByID: %w", err)
	}
	if err := json.Unmarshal(solvedJSON, &u.ProblemsSolved); err != nil {
		return nil, fmt.Errorf("unmarshal solved problems: %w", err)
	}
	return u, nil
}

func (r *pgUserRepository) AppendSolvedProblem(ctx context.Context, tx *sql.Tx, userID string, solved model.SolvedProblem) error {
	entry, err := json.Marshal(solved)
	if err != nil {
		return fmt.Errorf("pgUserRepository.AppendSolvedProblem marshal: %w", err)
	}
	query := `UPDATE users SET problems_solved = problems_solved || $2::jsonb, updated_at = NOW() WHERE id = $1`
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, userID, entry)
	} else {
		_, err = r.db.ExecContext(ctx, query, userID, entry)
	}
	if err != nil {
		return fmt.Errorf("pgUserRepository.AppendSolvedProblem: %w", err)
	}
	return nil
}
