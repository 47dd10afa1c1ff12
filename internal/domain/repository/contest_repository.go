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

type ContestRepository interface {
	CreateContest(ctx context.Context, tx *sql.Tx, contest *model.Contest) error
	GetContestByID(ctx context.Context, id string) (*model.Contest, error)
	GetContestBySlug(ctx context.Context, slug string) (*model.Contest, error)
	ListContests(ctx context.Context) ([]model.Contest, error)
	DeleteContest(ctx context.Context, tx *sql.Tx, id string) error

	// SetContestStatus flips the lifecycle status. The found flag lets lifecycle
	// handlers tolerate contests deleted after their jobs were scheduled.
	SetContestStatus(ctx context.Context, id string, status model.ContestStatus) (found bool, err error)
	SetJobIDs(ctx context.Context, tx *sql.Tx, id string, jobIDs *model.ContestJobIDs) error

	AddContestProblem(ctx context.Context, tx *sql.Tx, cp *model.ContestProblem) error
	GetContestProblemScore(ctx context.Context, tx *sql.Tx, contestID, problemID string) (int, error)

	RegisterParticipant(ctx context.Context, contestID, userID string) error
	UnregisterParticipant(ctx context.Context, contestID, userID string) error
	IsParticipant(ctx context.Context, contestID, userID string) (bool, error)
	ParticipantEmails(ctx context.Context, contestID string) ([]string, error)

	// LockParticipant reads the participant row FOR UPDATE so concurrent solves
	// by the same user serialize their score credits.
	LockParticipant(ctx context.Context, tx *sql.Tx, contestID, userID string) (*model.ContestParticipant, error)
	CreditParticipant(ctx context.Context, tx *sql.Tx, p *model.ContestParticipant) error
	ListParticipantsRanked(ctx context.Context, tx *sql.Tx, contestID string) ([]model.ContestParticipant, error)
}

type pgContestRepository struct {
	db *sql.DB
}

func NewPgContestRepository(db *sql.DB) ContestRepository {
	return &pgContestRepository{db: db}
}

func (r *pgContestRepository) CreateContest(ctx context.Context, tx *sql.Tx, contest *model.Contest) error {
	problemsJSON, err := json.Marshal(contest.Problems)
	if err != nil {
		return fmt.Errorf("pgContestRepository.CreateContest marshal: %w", err)
	}
	query := `INSERT INTO contests (id, title, slug, description, start_time, end_time, status, problems, created_by)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = tx.ExecContext(ctx, query,
		contest.ID, contest.Title, contest.Slug, contest.Description,
		contest.StartTime, contest.EndTime, contest.Status, problemsJSON, contest.CreatedByID)
	if err != nil {
		return fmt.Errorf("pgContestRepository.CreateContest: %w", err)
	}
	return nil
}

const contestColumns = `id, title, slug, description, start_time, end_time, status, problems, job_ids, created_by, created_at, updated_at`

func scanContest(row *sql.Row) (*model.Contest, error) {
	c := &model.Contest{}
	var problemsJSON []byte
	var jobIDsJSON []byte
	err := row.Scan(
		&c.ID, &c.Title, &c.Slug, &c.Description, &c.StartTime, &c.EndTime,
		&c.Status, &problemsJSON, &jobIDsJSON, &c.CreatedByID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(problemsJSON, &c.Problems); err != nil {
		return nil, fmt.Errorf("unmarshal contest problems: %w", err)
	}
	if len(jobIDsJSON) > 0 {
		c.JobIDs = &model.ContestJobIDs{}
		if err := json.Unmarshal(jobIDsJSON, c.JobIDs); err != nil {
			return nil, fmt.Errorf("unmarshal contest job ids: %w", err)
		}
	}
	return c, nil
}

func (r *pgContestRepository) GetContestByID(ctx context.Context, id string) (*model.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests WHERE id = $1`
	c, err := scanContest(r.db.QueryRowContext(ctx, query, id))
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("pgContestRepository.GetContestByID: %w", err)
	}
	return c, err
}

func (r *pgContestRepository) GetContestBySlug(ctx context.Context, slug string) (*model.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests WHERE slug = $1`
	c, err := scanContest(r.db.QueryRowContext(ctx, query, slug))
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("pgContestRepository.GetContestBySlug: %w", err)
	}
	return c, err
}

func (r *pgContestRepository) ListContests(ctx context.Context) ([]model.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests ORDER BY start_time DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.ListContests: %w", err)
	}
	defer rows.Close()

	var contests []model.Contest
	for rows.Next() {
		c := model.Contest{}
		var problemsJSON, jobIDsJSON []byte
		if err := rows.Scan(
			&c.ID, &c.Title, &c.Slug, &c.Description, &c.StartTime, &c.EndTime,
			&c.Status, &problemsJSON, &jobIDsJSON, &c.CreatedByID, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("pgContestRepository.ListContests scan: %w", err)
		}
		if err := json.Unmarshal(problemsJSON, &c.Problems); err != nil {
			return nil, fmt.Errorf("unmarshal contest problems: %w", err)
		}
		if len(jobIDsJSON) > 0 {
			c.JobIDs = &model.ContestJobIDs{}
			if err := json.Unmarshal(jobIDsJSON, c.JobIDs); err != nil {
				return nil, fmt.Errorf("unmarshal contest job ids: %w", err)
			}
		}
		contests = append(contests, c)
	}
	return contests, rows.Err()
}

func (r *pgContestRepository) DeleteContest(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM contests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgContestRepository.DeleteContest: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgContestRepository) SetContestStatus(ctx context.Context, id string, status model.ContestStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE contests SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return false, fmt.Errorf("pgContestRepository.SetContestStatus: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgContestRepository.SetContestStatus: %w", err)
	}
	return n > 0, nil
}

func (r *pgContestRepository) SetJobIDs(ctx context.Context, tx *sql.Tx, id string, jobIDs *model.ContestJobIDs) error {
	jobIDsJSON, err := json.Marshal(jobIDs)
	if err != nil {
		return fmt.Errorf("pgContestRepository.SetJobIDs marshal: %w", err)
	}
	query := `UPDATE contests SET job_ids = $2, updated_at = NOW() WHERE id = $1`
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, id, jobIDsJSON)
	} else {
		_, err = r.db.ExecContext(ctx, query, id, jobIDsJSON)
	}
	if err != nil {
		return fmt.Errorf("pgContestRepository.SetJobIDs: %w", err)
	}
	return nil
}

func (r *pgContestRepository) AddContestProblem(ctx context.Context, tx *sql.Tx, cp *model.ContestProblem) error {
	query := `INSERT INTO contest_problems (contest_id, problem_id, score) VALUES ($1, $2, $3)`
	_, err := tx.ExecContext(ctx, query, cp.ContestID, cp.ProblemID, cp.Score)
	if err != nil {
		return fmt.Errorf("pgContestRepository.AddContestProblem: %w", err)
	}
	return nil
}

func (r *pgContestRepository) GetContestProblemScore(ctx context.Context, tx *sql.Tx, contestID, problemID string) (int, error) {
	query := `SELECT score FROM contest_problems WHERE contest_id = $1 AND problem_id = $2`
	var score int
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, contestID, problemID).Scan(&score)
	} else {
		err = r.db.QueryRowContext(ctx, query, contestID, problemID).Scan(&score)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, common.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("pgContestRepository.GetContestProblemScore: %w", err)
	}
	return score, nil
}

func (r *pgContestRepository) RegisterParticipant(ctx context.Context, contestID, userID string) error {
	query := `INSERT INTO contest_participants (contest_id, user_id) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, contestID, userID); err != nil {
		return fmt.Errorf("pgContestRepository.RegisterParticipant: %w", err)
	}
	return nil
}

func (r *pgContestRepository) UnregisterParticipant(ctx context.Context, contestID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contest_participants WHERE contest_id = $1 AND user_id = $2`, contestID, userID)
	if err != nil {
		return fmt.Errorf("pgContestRepository.UnregisterParticipant: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgContestRepository) IsParticipant(ctx context.Context, contestID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM contest_participants WHERE contest_id = $1 AND user_id = $2)`,
		contestID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgContestRepository.IsParticipant: %w", err)
	}
	return exists, nil
}

func (r *pgContestRepository) ParticipantEmails(ctx context.Context, contestID string) ([]string, error) {
	query := `SELECT u.email FROM contest_participants cp
	          JOIN users u ON u.id = cp.user_id
	          WHERE cp.contest_id = $1`
	rows, err := r.db.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.ParticipantEmails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("pgContestRepository.ParticipantEmails scan: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func (r *pgContestRepository) LockParticipant(ctx context.Context, tx *sql.Tx, contestID, userID string) (*model.ContestParticipant, error) {
	query := `SELECT contest_id, user_id, score, problems_solved, updated_at
	          FROM contest_participants
	          WHERE contest_id = $1 AND user_id = $2 FOR UPDATE`
	p := &model.ContestParticipant{}
	var solvedJSON []byte
	err := tx.QueryRowContext(ctx, query, contestID, userID).Scan(
		&p.ContestID, &p.UserID, &p.Score, &solvedJSON, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.LockParticipant: %w", err)
	}
	if err := json.Unmarshal(solvedJSON, &p.ProblemsSolved); err != nil {
		return nil, fmt.Errorf("unmarshal participant solves: %w", err)
	}
	return p, nil
}

func (r *pgContestRepository) CreditParticipant(ctx context.Context, tx *sql.Tx, p *model.ContestParticipant) error {
	solvedJSON, err := json.Marshal(p.ProblemsSolved)
	if err != nil {
		return fmt.Errorf("pgContestRepository.CreditParticipant marshal: %w", err)
	}
	query := `UPDATE contest_participants
	          SET score = $3, problems_solved = $4, updated_at = NOW()
	          WHERE contest_id = $1 AND user_id = $2`
	if _, err := tx.ExecContext(ctx, query, p.ContestID, p.UserID, p.Score, solvedJSON); err != nil {
		return fmt.Errorf("pgContestRepository.CreditParticipant: %w", err)
	}
	return nil
}

func (r *pgContestRepository) ListParticipantsRanked(ctx context.Context, tx *sql.Tx, contestID string) ([]model.ContestParticipant, error) {
	// Ties break toward the earlier credit: equal scores rank by oldest update.
	query := `SELECT cp.contest_id, cp.user_id, u.username, cp.score, cp.problems_solved, cp.updated_at
	          FROM contest_participants cp
	          JOIN users u ON u.id = cp.user_id
	          WHERE cp.contest_id = $1
	          ORDER BY cp.score DESC, cp.updated_at ASC`
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, contestID)
	} else {
		rows, err = r.db.QueryContext(ctx, query, contestID)
	}
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.ListParticipantsRanked: %w", err)
	}
	defer rows.Close()

	var participants []model.ContestParticipant
	for rows.Next() {
		p := model.ContestParticipant{}
		var solvedJSON []byte
		if err := rows.Scan(&p.ContestID, &p.UserID, &p.Username, &p.Score, &solvedJSON, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgContestRepository.ListParticipantsRanked scan: %w", err)
		}
		if err := json.Unmarshal(solvedJSON, &p.ProblemsSolved); err != nil {
			return nil, fmt.Errorf("unmarshal participant solves: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}
