package model

import "fmt"

// Verdict is the numeric outcome code the external judge reports for a test
// case (and that we aggregate into a submission-level verdict). Codes are
// ordered by severity: InQueue < Processing < Accepted < failures. The
// aggregation rule relies on this ordering ("worst verdict wins").
type Verdict int

const (
	VerdictInQueue          Verdict = 1
	VerdictProcessing       Verdict = 2
	VerdictAccepted         Verdict = 3
	VerdictWrongAnswer      Verdict = 4
	VerdictTimeLimit        Verdict = 5
	VerdictCompilationError Verdict = 6
	VerdictRuntimeSIGSEGV   Verdict = 7
	VerdictRuntimeSIGXFSZ   Verdict = 8
	VerdictRuntimeSIGFPE    Verdict = 9
	VerdictRuntimeSIGABRT   Verdict = 10
	VerdictRuntimeNZEC      Verdict = 11
	VerdictRuntimeOther     Verdict = 12
	VerdictInternalError    Verdict = 13
	VerdictExecFormatError  Verdict = 14
)

var verdictNames = map[Verdict]string{
	VerdictInQueue:          "In Queue",
	VerdictProcessing:       "Processing",
	VerdictAccepted:         "Accepted",
	VerdictWrongAnswer:      "Wrong Answer",
	VerdictTimeLimit:        "Time Limit Exceeded",
	VerdictCompilationError: "Compilation Error",
	VerdictRuntimeSIGSEGV:   "Runtime Error (SIGSEGV)",
	VerdictRuntimeSIGXFSZ:   "Runtime Error (SIGXFSZ)",
	VerdictRuntimeSIGFPE:    "Runtime Error (SIGFPE)",
	VerdictRuntimeSIGABRT:   "Runtime Error (SIGABRT)",
	VerdictRuntimeNZEC:      "Runtime Error (NZEC)",
	VerdictRuntimeOther:     "Runtime Error (Other)",
	VerdictInternalError:    "Internal Error",
	VerdictExecFormatError:  "Exec Format Error",
}

func (v Verdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(v))
}

// Valid reports whether v is a code the judge can legitimately send.
func (v Verdict) Valid() bool {
	_, ok := verdictNames[v]
	return ok
}

// Terminal reports whether this verdict finishes evaluation of a test case.
// Accepted and every failure code are terminal; InQueue and Processing are not.
func (v Verdict) Terminal() bool {
	return v >= VerdictAccepted
}

// IsFailure reports whether v is any non-Accepted terminal outcome.
func (v Verdict) IsFailure() bool {
	return v > VerdictAccepted
}

// Worse returns the more severe of the two verdicts.
func (v Verdict) Worse(other Verdict) Verdict {
	if other > v {
		return other
	}
	return v
}
