package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"competenest/internal/domain/model"
	"competenest/internal/jobs"
)

func TestNotifyAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Plenty of lead time: fire 10 minutes before the start.
	start := now.Add(2 * time.Hour)
	if got := notifyAt(start, now); !got.Equal(start.Add(-10 * time.Minute)) {
		t.Errorf("notifyAt = %v, want %v", got, start.Add(-10*time.Minute))
	}

	// Contest created 5 minutes before its start: notify immediately.
	start = now.Add(5 * time.Minute)
	if got := notifyAt(start, now); !got.Equal(now) {
		t.Errorf("notifyAt = %v, want now (%v)", got, now)
	}

	// Exactly on the boundary still clamps to now.
	start = now.Add(10 * time.Minute)
	if got := notifyAt(start, now); !got.Equal(now) {
		t.Errorf("notifyAt at boundary = %v, want now (%v)", got, now)
	}
}

type scheduledCall struct {
	kind    string
	payload string
	runAt   time.Time
}

type fakeScheduler struct {
	scheduled   []scheduledCall
	cancelled   []string
	failAfter   int    // fail the n-th Schedule call (1-based); 0 disables
	commits     *int32 // when set, snapshot the commit counter at each Schedule
	commitsSeen []int32
}

func (f *fakeScheduler) Schedule(ctx context.Context, kind, payload string, runAt time.Time) (string, error) {
	if f.commits != nil {
		f.commitsSeen = append(f.commitsSeen, atomic.LoadInt32(f.commits))
	}
	if f.failAfter > 0 && len(f.scheduled)+1 == f.failAfter {
		return "", errors.New("redis unavailable")
	}
	f.scheduled = append(f.scheduled, scheduledCall{kind: kind, payload: payload, runAt: runAt})
	return kind + "-job", nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func TestScheduleLifecycle_ThreeJobs(t *testing.T) {
	sched := &fakeScheduler{}
	svc := NewContestService(nil, nil, nil, sched)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	contest := &model.Contest{
		ID:        "c1",
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(3 * time.Hour),
	}

	ids, err := svc.scheduleLifecycle(context.Background(), contest, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids.StartJobID == "" || ids.EndJobID == "" || ids.NotifyJobID == "" {
		t.Fatalf("job ids = %+v, all three must be set", ids)
	}
	if len(sched.scheduled) != 3 {
		t.Fatalf("scheduled = %d jobs, want 3", len(sched.scheduled))
	}

	byKind := map[string]scheduledCall{}
	for _, call := range sched.scheduled {
		if call.payload != "c1" {
			t.Errorf("%s payload = %q, want contest id", call.kind, call.payload)
		}
		byKind[call.kind] = call
	}
	if got := byKind[jobs.KindStartContest].runAt; !got.Equal(contest.StartTime) {
		t.Errorf("start job at %v, want %v", got, contest.StartTime)
	}
	if got := byKind[jobs.KindEndContest].runAt; !got.Equal(contest.EndTime) {
		t.Errorf("end job at %v, want %v", got, contest.EndTime)
	}
	if got := byKind[jobs.KindNotifyContest].runAt; !got.Equal(contest.StartTime.Add(-10 * time.Minute)) {
		t.Errorf("notify job at %v, want 10 minutes before start", got)
	}
}

func TestCreateContest_SchedulesOnlyAfterCommit(t *testing.T) {
	db, commits := newTestDB(t)
	repo := newFakeContestRepo()
	problems := &fakeProblemRepo{problems: map[string]*model.Problem{}}
	sched := &fakeScheduler{commits: commits}
	svc := NewContestService(db, repo, problems, sched)

	now := time.Now()
	contest, err := svc.CreateContest(context.Background(), CreateContestInput{
		Title:     "Spring Open",
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(3 * time.Hour),
		Problems:  []ContestProblemInput{{ProblemID: "p1", Score: 100}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sched.scheduled) != 3 {
		t.Fatalf("scheduled = %d jobs, want 3", len(sched.scheduled))
	}
	// Every job, including a reminder clamped to now, must only become
	// fireable once the contest row is committed and visible to the worker.
	for i, seen := range sched.commitsSeen {
		if seen < 1 {
			t.Errorf("job %d scheduled before the creating transaction committed", i)
		}
	}
	if got := repo.jobIDsSet[contest.ID]; got == nil || *got != *contest.JobIDs {
		t.Errorf("persisted job ids = %+v, want %+v", got, contest.JobIDs)
	}
}

func TestCreateContest_ScheduleFailureRemovesContest(t *testing.T) {
	db, _ := newTestDB(t)
	repo := newFakeContestRepo()
	problems := &fakeProblemRepo{problems: map[string]*model.Problem{}}
	sched := &fakeScheduler{failAfter: 1}
	svc := NewContestService(db, repo, problems, sched)

	now := time.Now()
	_, err := svc.CreateContest(context.Background(), CreateContestInput{
		Title:     "Spring Open",
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(3 * time.Hour),
	})
	if err == nil {
		t.Fatal("expected scheduling error")
	}
	if len(repo.created) != 1 {
		t.Fatalf("created = %d contests, want 1", len(repo.created))
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != repo.created[0].ID {
		t.Errorf("deleted = %v, the committed contest must be removed when scheduling fails", repo.deleted)
	}
	if len(repo.jobIDsSet) != 0 {
		t.Errorf("job ids persisted = %v, want none", repo.jobIDsSet)
	}
}

func TestScheduleLifecycle_FailureCancelsEarlierJobs(t *testing.T) {
	sched := &fakeScheduler{failAfter: 3}
	svc := NewContestService(nil, nil, nil, sched)

	now := time.Now()
	contest := &model.Contest{ID: "c1", StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour)}

	if _, err := svc.scheduleLifecycle(context.Background(), contest, now); err == nil {
		t.Fatal("expected scheduling error")
	}
	if len(sched.cancelled) != 2 {
		t.Errorf("cancelled = %v, the two already-scheduled jobs must be cancelled", sched.cancelled)
	}
}
