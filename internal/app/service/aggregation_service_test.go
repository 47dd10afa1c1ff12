package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"competenest/internal/common"
	"competenest/internal/domain/model"
)

type fakeSubmissionRepo struct {
	sub             *model.Submission
	testcases       map[string]*model.SubmittedTestcase
	updateErr       error
	updates         int
	forced          []model.Verdict
	solvedElsewhere bool
}

func (f *fakeSubmissionRepo) CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	return nil
}

func (f *fakeSubmissionRepo) CreateSubmittedTestcases(ctx context.Context, tx *sql.Tx, testcases []model.SubmittedTestcase) error {
	return nil
}

func (f *fakeSubmissionRepo) GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error) {
	if f.sub == nil || f.sub.ID != id {
		return nil, common.ErrNotFound
	}
	cp := *f.sub
	return &cp, nil
}

func (f *fakeSubmissionRepo) LockSubmission(ctx context.Context, tx *sql.Tx, id string) (*model.Submission, error) {
	if f.sub == nil || f.sub.ID != id {
		return nil, common.Errorf("submission %s not found: %w", id, common.ErrNotFound)
	}
	return f.sub, nil
}

func (f *fakeSubmissionRepo) FinalizeTestcase(ctx context.Context, tx *sql.Tx, id, output string, status model.Verdict, timeSec float64, memoryKB int) (*model.SubmittedTestcase, error) {
	tc, ok := f.testcases[id]
	if !ok {
		return nil, common.Errorf("submitted testcase %s not found: %w", id, common.ErrNotFound)
	}
	if tc.Status.Terminal() {
		return nil, common.Errorf("submitted testcase %s: %w", id, common.ErrAlreadyEvaluated)
	}
	tc.Output = output
	tc.Status = status
	tc.Time = timeSec
	tc.Memory = memoryKB
	cp := *tc
	return &cp, nil
}

func (f *fakeSubmissionRepo) UpdateAggregates(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates++
	return nil
}

func (f *fakeSubmissionRepo) ForceStatus(ctx context.Context, id string, status model.Verdict) (*model.Submission, error) {
	if f.sub == nil || f.sub.ID != id {
		return nil, common.ErrNotFound
	}
	f.forced = append(f.forced, status)
	f.sub.Status = status
	cp := *f.sub
	return &cp, nil
}

func (f *fakeSubmissionRepo) HasAcceptedSubmission(ctx context.Context, tx *sql.Tx, userID, problemID, excludeSubmissionID string) (bool, error) {
	return f.solvedElsewhere, nil
}

type fakeProblemRepo struct {
	problems   map[string]*model.Problem
	contestSet map[string]*string
	cleared    []string
}

func (f *fakeProblemRepo) FindProblemByID(ctx context.Context, id string) (*model.Problem, error) {
	p, ok := f.problems[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProblemRepo) GetTestcasesByProblemID(ctx context.Context, problemID string) ([]model.Testcase, error) {
	return nil, nil
}

func (f *fakeProblemRepo) SetProblemContest(ctx context.Context, tx *sql.Tx, problemID string, contestID *string) error {
	if f.contestSet == nil {
		f.contestSet = make(map[string]*string)
	}
	f.contestSet[problemID] = contestID
	return nil
}

func (f *fakeProblemRepo) ClearContestFromProblems(ctx context.Context, contestID string) (int64, error) {
	f.cleared = append(f.cleared, contestID)
	return 0, nil
}

type fakeUserRepo struct {
	solved []model.SolvedProblem
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return nil, common.ErrNotFound
}

func (f *fakeUserRepo) AppendSolvedProblem(ctx context.Context, tx *sql.Tx, userID string, solved model.SolvedProblem) error {
	f.solved = append(f.solved, solved)
	return nil
}

type aggFixture struct {
	svc     *AggregationService
	subs    *fakeSubmissionRepo
	users   *fakeUserRepo
	pub     *fakePublisher
	contest *fakeContestRepo
}

func newAggFixture(t *testing.T, totalTestcases int) *aggFixture {
	t.Helper()
	db, _ := newTestDB(t)
	subs := &fakeSubmissionRepo{
		sub: &model.Submission{
			ID:             "s1",
			ProblemID:      "p1",
			UserID:         "alice",
			Status:         model.VerdictInQueue,
			TotalTestcases: totalTestcases,
		},
		testcases: map[string]*model.SubmittedTestcase{
			"tc1": {ID: "tc1", SubmissionID: "s1", TestcaseID: "t1", Status: model.VerdictInQueue},
		},
	}
	problems := &fakeProblemRepo{problems: map[string]*model.Problem{
		"p1": {ID: "p1", Difficulty: model.DifficultyEasy},
	}}
	users := &fakeUserRepo{}
	contest := newFakeContestRepo()
	pub := &fakePublisher{}
	svc := NewAggregationService(db, subs, problems, users, NewLeaderboardService(contest, pub), pub, 5*time.Second)
	return &aggFixture{svc: svc, subs: subs, users: users, pub: pub, contest: contest}
}

func TestHandleTestcaseResult_AcceptedCompletionCreditsSolve(t *testing.T) {
	fx := newAggFixture(t, 1)

	sub, err := fx.svc.HandleTestcaseResult(context.Background(), "s1", "tc1", "", TestcaseResult{
		Status: model.VerdictAccepted, Time: 0.5, Memory: 1024,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != model.VerdictAccepted {
		t.Errorf("status = %s, want Accepted", sub.Status)
	}
	if sub.EvaluatedTestcases != 1 || sub.AcceptedTestcases != 1 {
		t.Errorf("counters = %d/%d, want 1/1", sub.EvaluatedTestcases, sub.AcceptedTestcases)
	}
	if fx.subs.updates != 1 {
		t.Errorf("aggregate writes = %d, want 1", fx.subs.updates)
	}
	if len(fx.users.solved) != 1 || fx.users.solved[0].ProblemID != "p1" {
		t.Errorf("solved set = %+v, want first-accept credit for p1", fx.users.solved)
	}
	if len(fx.pub.published) != 0 {
		t.Errorf("published = %+v, a non-contest submission must not touch the leaderboard", fx.pub.published)
	}
}

func TestHandleTestcaseResult_LateDuplicateIsRejected(t *testing.T) {
	fx := newAggFixture(t, 1)
	fx.subs.testcases["tc1"].Status = model.VerdictAccepted // already finalized

	sub, err := fx.svc.HandleTestcaseResult(context.Background(), "s1", "tc1", "", TestcaseResult{
		Status: model.VerdictAccepted,
	})
	if !errors.Is(err, common.ErrAlreadyEvaluated) {
		t.Fatalf("error = %v, want ErrAlreadyEvaluated", err)
	}
	if got := common.HTTPStatusFromError(err); got != http.StatusConflict {
		t.Errorf("status = %d, want 409", got)
	}
	if sub != nil {
		t.Errorf("submission = %+v, want nil on a rejected duplicate", sub)
	}
	if fx.subs.updates != 0 {
		t.Errorf("aggregate writes = %d, a duplicate must not change counters", fx.subs.updates)
	}
	if len(fx.subs.forced) != 0 {
		t.Errorf("forced = %v, a client error must not force Internal Error", fx.subs.forced)
	}
}

func TestHandleTestcaseResult_UnknownTestcaseIsNotFound(t *testing.T) {
	fx := newAggFixture(t, 1)

	_, err := fx.svc.HandleTestcaseResult(context.Background(), "s1", "tc-missing", "", TestcaseResult{
		Status: model.VerdictAccepted,
	})
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if len(fx.subs.forced) != 0 {
		t.Errorf("forced = %v, a client error must not force Internal Error", fx.subs.forced)
	}
}

func TestHandleTestcaseResult_MismatchedSubmissionIsBadRequest(t *testing.T) {
	fx := newAggFixture(t, 1)
	fx.subs.testcases["tc-other"] = &model.SubmittedTestcase{
		ID: "tc-other", SubmissionID: "s2", Status: model.VerdictInQueue,
	}

	_, err := fx.svc.HandleTestcaseResult(context.Background(), "s1", "tc-other", "", TestcaseResult{
		Status: model.VerdictAccepted,
	})
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("error = %v, want ErrBadRequest", err)
	}
	if fx.subs.updates != 0 || len(fx.subs.forced) != 0 {
		t.Error("a mismatched callback must neither update aggregates nor force Internal Error")
	}
}

func TestHandleTestcaseResult_NonTerminalStatusIsBadRequest(t *testing.T) {
	fx := newAggFixture(t, 1)

	_, err := fx.svc.HandleTestcaseResult(context.Background(), "s1", "tc1", "", TestcaseResult{
		Status: model.VerdictProcessing,
	})
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("error = %v, want ErrBadRequest", err)
	}
}

func TestHandleTestcaseResult_ServerFailureForcesInternalError(t *testing.T) {
	fx := newAggFixture(t, 1)
	fx.subs.updateErr = errors.New("connection reset by peer")

	sub, err := fx.svc.HandleTestcaseResult(context.Background(), "s1", "tc1", "", TestcaseResult{
		Status: model.VerdictAccepted,
	})
	if !errors.Is(err, common.ErrInternalServer) {
		t.Fatalf("error = %v, want ErrInternalServer", err)
	}
	if len(fx.subs.forced) != 1 || fx.subs.forced[0] != model.VerdictInternalError {
		t.Fatalf("forced = %v, want a single Internal Error force-set", fx.subs.forced)
	}
	if sub == nil || sub.Status != model.VerdictInternalError {
		t.Errorf("submission = %+v, want the force-set row back", sub)
	}
}

func TestHandleTestcaseResult_ContestSolvePublishesLeaderboard(t *testing.T) {
	fx := newAggFixture(t, 1)
	fx.contest.scores["c1/p1"] = 100
	fx.contest.addParticipant("c1", "alice")

	sub, err := fx.svc.HandleTestcaseResult(context.Background(), "s1", "tc1", "c1", TestcaseResult{
		Status: model.VerdictAccepted,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != model.VerdictAccepted {
		t.Errorf("status = %s, want Accepted", sub.Status)
	}
	if got := fx.contest.participants["c1/alice"].Score; got != 100 {
		t.Errorf("participant score = %d, want 100", got)
	}
	if len(fx.pub.published) != 1 {
		t.Fatalf("published = %d events, want 1", len(fx.pub.published))
	}
	if got := fx.pub.published[0]; got.room != "c1-leaderboard" || got.event != "leaderboard-update" {
		t.Errorf("publish = %s/%s, want c1-leaderboard/leaderboard-update", got.room, got.event)
	}
}
