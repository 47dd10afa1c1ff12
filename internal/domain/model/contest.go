package model

import "time"

type ContestStatus string

const (
	ContestScheduled ContestStatus = "Scheduled"
	ContestOngoing   ContestStatus = "Ongoing"
	ContestEnded     ContestStatus = "Ended"
)

// ContestJobIDs holds the scheduler job ids created for a contest so that
// deletion (or editing) can cancel the outstanding transitions.
type ContestJobIDs struct {
	StartJobID  string `json:"start_job_id"`
	EndJobID    string `json:"end_job_id"`
	NotifyJobID string `json:"notify_job_id"`
}

// Contest status moves Scheduled -> Ongoing -> Ended, driven only by the
// lifecycle worker. StartTime < EndTime is validated at creation.
type Contest struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Slug        string         `json:"slug"`
	Description string         `json:"description,omitempty"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Status      ContestStatus  `json:"status"`
	Problems    []string       `json:"problems"` // ordered problem ids
	JobIDs      *ContestJobIDs `json:"job_ids,omitempty"`
	CreatedByID string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ContestProblem fixes the points awarded for solving a problem within a
// contest. Static once created.
type ContestProblem struct {
	ContestID string `json:"contest_id"`
	ProblemID string `json:"problem_id"`
	Score     int    `json:"score"`
}

// ContestParticipant is a user's enrollment and running score within one
// contest. Each problem credits its score at most once per participant.
type ContestParticipant struct {
	ContestID      string    `json:"contest_id"`
	UserID         string    `json:"user_id"`
	Username       string    `json:"username,omitempty"`
	Score          int       `json:"score"`
	ProblemsSolved []string  `json:"problems_solved"`
	UpdatedAt      time.Time `json:"updated_at"`
}
