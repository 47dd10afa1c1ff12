package model

import "time"

// Submission is one user's attempt at one problem. Its counters and status are
// mutated exclusively by the aggregation service as judge callbacks arrive.
//
// Invariants maintained by the aggregation service:
//
//	0 <= AcceptedTestcases <= EvaluatedTestcases <= TotalTestcases
//	Memory is the maximum across evaluated test cases (KB)
//	Time is the sum across evaluated test cases (seconds)
type Submission struct {
	ID                 string    `json:"id"`
	ProblemID          string    `json:"problem_id"`
	UserID             string    `json:"user_id"`
	Code               string    `json:"code,omitempty"`
	Language           int       `json:"language"` // judge language id
	Status             Verdict   `json:"status"`
	TotalTestcases     int       `json:"total_testcases"`
	EvaluatedTestcases int       `json:"evaluated_testcases"`
	AcceptedTestcases  int       `json:"accepted_testcases"`
	Memory             int       `json:"memory"` // KB, max across cases
	Time               float64   `json:"time"`   // seconds, summed across cases
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SubmittedTestcase binds one test case to one submission. A row is created in
// the Queued state when the submission is fanned out, and finalized exactly
// once by the judge callback holding its callback URL.
type SubmittedTestcase struct {
	ID           string  `json:"id"`
	SubmissionID string  `json:"submission_id"`
	TestcaseID   string  `json:"testcase_id"`
	Output       string  `json:"output,omitempty"`
	Status       Verdict `json:"status"`
	Time         float64 `json:"time"`
	Memory       int     `json:"memory"`
}

// SubmissionTicket is returned on submission creation: everything the caller
// needs to hand the work to the external judge. Payload URLs are presigned at
// the object-storage boundary; callback URLs route results back per test case.
type SubmissionTicket struct {
	SubmissionID string   `json:"submission_id"`
	InputURLs    []string `json:"input_urls"`
	ExpOutputURLs []string `json:"exp_output_urls"`
	CallbackURLs []string `json:"callback_urls"`
}
