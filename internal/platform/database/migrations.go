package database

import (
	"context"
	"fmt"
)

// Migrate applies the schema idempotently at startup. The hot lock paths are
// submissions (row lock per callback) and contest_participants (row lock per
// leaderboard credit).
func Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			role TEXT NOT NULL DEFAULT 'User',
			problems_solved JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS problems (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			slug TEXT UNIQUE NOT NULL,
			difficulty TEXT NOT NULL,
			contest_id TEXT,
			created_by TEXT REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS testcases (
			id TEXT PRIMARY KEY,
			problem_id TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
			input_path TEXT NOT NULL,
			exp_output_path TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			problem_id TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id),
			code TEXT NOT NULL,
			language INT NOT NULL,
			status INT NOT NULL DEFAULT 1,
			total_testcases INT NOT NULL,
			evaluated_testcases INT NOT NULL DEFAULT 0,
			accepted_testcases INT NOT NULL DEFAULT 0,
			memory INT NOT NULL DEFAULT 0,
			time DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS submitted_testcases (
			id TEXT PRIMARY KEY,
			submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
			testcase_id TEXT NOT NULL,
			output TEXT NOT NULL DEFAULT '',
			status INT NOT NULL DEFAULT 1,
			time DOUBLE PRECISION NOT NULL DEFAULT 0,
			memory INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submitted_testcases_submission
			ON submitted_testcases(submission_id)`,
		`CREATE TABLE IF NOT EXISTS contests (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			slug TEXT UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL DEFAULT 'Scheduled',
			problems JSONB NOT NULL DEFAULT '[]',
			job_ids JSONB,
			created_by TEXT REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (start_time < end_time)
		)`,
		`CREATE TABLE IF NOT EXISTS contest_problems (
			contest_id TEXT NOT NULL REFERENCES contests(id) ON DELETE CASCADE,
			problem_id TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
			score INT NOT NULL,
			PRIMARY KEY (contest_id, problem_id)
		)`,
		`CREATE TABLE IF NOT EXISTS contest_participants (
			contest_id TEXT NOT NULL REFERENCES contests(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id),
			score INT NOT NULL DEFAULT 0,
			problems_solved JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (contest_id, user_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
