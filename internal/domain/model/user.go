package model

import "time"

const (
	RoleAdmin     = "Admin"
	RoleOrganiser = "Organiser"
	RoleUser      = "User"
)

// SolvedProblem is one entry of a user's solved set: the problem plus its
// difficulty at solve time. A problem is credited on first accept only.
type SolvedProblem struct {
	ProblemID  string            `json:"id"`
	Difficulty ProblemDifficulty `json:"type"`
}

// User accounts are created and authenticated by an external service; this
// service only reads them and appends to the solved set.
type User struct {
	ID             string          `json:"id"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	Role           string          `json:"role"`
	ProblemsSolved []SolvedProblem `json:"problems_solved,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
