package model

import "time"

type ProblemDifficulty string

const (
	DifficultyEasy   ProblemDifficulty = "Easy"
	DifficultyMedium ProblemDifficulty = "Medium"
	DifficultyHard   ProblemDifficulty = "Hard"
)

// Problem carries only what grading needs here; authoring/CRUD is handled by
// an external service. ContestID is set while the problem belongs to a running
// contest and cleared when the contest ends.
type Problem struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Slug        string            `json:"slug"`
	Difficulty  ProblemDifficulty `json:"difficulty"`
	ContestID   *string           `json:"contest_id,omitempty"`
	CreatedByID string            `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Testcase references the input/expected-output payloads by object-storage
// key; the payload bytes themselves never pass through this service.
type Testcase struct {
	ID            string `json:"id"`
	ProblemID     string `json:"problem_id"`
	InputPath     string `json:"input_path"`
	ExpOutputPath string `json:"exp_output_path"`
}
