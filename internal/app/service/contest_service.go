package service

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"competenest/internal/common"
	"competenest/internal/domain/model"
	"competenest/internal/domain/repository"
	"competenest/internal/jobs"
)

// notifyLead is how far before the start the reminder email goes out. Contests
// created closer to their start than this notify immediately.
const notifyLead = 10 * time.Minute

// JobScheduler is the slice of the delayed job store the contest service
// needs. Satisfied by jobs.Store.
type JobScheduler interface {
	Schedule(ctx context.Context, kind, payload string, runAt time.Time) (string, error)
	Cancel(ctx context.Context, id string) error
}

type ContestProblemInput struct {
	ProblemID string `json:"problem_id"`
	Score     int    `json:"score"`
}

type CreateContestInput struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	StartTime   time.Time             `json:"start_time"`
	EndTime     time.Time             `json:"end_time"`
	Problems    []ContestProblemInput `json:"problems"`
	CreatedByID string                `json:"-"`
}

type ContestService struct {
	db          *sql.DB
	contestRepo repository.ContestRepository
	problemRepo repository.ProblemRepository
	scheduler   JobScheduler
}

func NewContestService(db *sql.DB, contestRepo repository.ContestRepository, problemRepo repository.ProblemRepository, scheduler JobScheduler) *ContestService {
	return &ContestService{db: db, contestRepo: contestRepo, problemRepo: problemRepo, scheduler: scheduler}
}

// notifyAt places the reminder notifyLead before the start, clamped to now for
// contests starting sooner than that.
func notifyAt(start, now time.Time) time.Time {
	if lead := start.Add(-notifyLead); lead.After(now) {
		return lead
	}
	return now
}

// CreateContest persists the contest with its problems and schedules the three
// lifecycle jobs (start, end, reminder). The job ids are stored on the contest
// so deletion can cancel them.
func (s *ContestService) CreateContest(ctx context.Context, input CreateContestInput) (*model.Contest, error) {
	now := time.Now()
	if input.Title == "" {
		return nil, common.Errorf("title is required: %w", common.ErrValidation)
	}
	if !input.EndTime.After(input.StartTime) {
		return nil, common.Errorf("end time must be after start time: %w", common.ErrValidation)
	}
	if input.StartTime.Before(now) {
		return nil, common.Errorf("start time must be in the future: %w", common.ErrValidation)
	}

	contest := &model.Contest{
		ID:          uuid.NewString(),
		Title:       input.Title,
		Slug:        slug.Make(input.Title),
		Description: input.Description,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Status:      model.ContestScheduled,
		CreatedByID: input.CreatedByID,
	}
	for _, p := range input.Problems {
		contest.Problems = append(contest.Problems, p.ProblemID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.contestRepo.CreateContest(ctx, tx, contest); err != nil {
		return nil, err
	}
	for _, p := range input.Problems {
		if err := s.contestRepo.AddContestProblem(ctx, tx, &model.ContestProblem{
			ContestID: contest.ID,
			ProblemID: p.ProblemID,
			Score:     p.Score,
		}); err != nil {
			return nil, err
		}
		if err := s.problemRepo.SetProblemContest(ctx, tx, p.ProblemID, &contest.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, common.Errorf("committing transaction: %w", err)
	}

	// Lifecycle jobs go out only once the contest row is visible. A notify
	// job clamped to now could otherwise fire before the insert commits and
	// be skipped by the worker.
	jobIDs, err := s.scheduleLifecycle(ctx, contest, now)
	if err != nil {
		s.removeContest(ctx, contest.ID)
		return nil, err
	}
	if err := s.contestRepo.SetJobIDs(ctx, nil, contest.ID, jobIDs); err != nil {
		s.cancelLifecycle(ctx, jobIDs)
		s.removeContest(ctx, contest.ID)
		return nil, err
	}

	contest.JobIDs = jobIDs
	log.Printf("INFO: Created contest %s (%s), start %s", contest.ID, contest.Slug, contest.StartTime.Format(time.RFC3339))
	return contest, nil
}

// removeContest is best-effort compensation for a contest whose lifecycle jobs
// could not be scheduled or persisted after the creating transaction committed.
func (s *ContestService) removeContest(ctx context.Context, id string) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("ERROR: Failed to remove contest %s after scheduling failure: %v", id, err)
		return
	}
	defer tx.Rollback()
	if err := s.contestRepo.DeleteContest(ctx, tx, id); err != nil {
		log.Printf("ERROR: Failed to remove contest %s after scheduling failure: %v", id, err)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("ERROR: Failed to remove contest %s after scheduling failure: %v", id, err)
		return
	}
	if _, err := s.problemRepo.ClearContestFromProblems(ctx, id); err != nil {
		log.Printf("ERROR: Failed to release problems of removed contest %s: %v", id, err)
	}
}

func (s *ContestService) scheduleLifecycle(ctx context.Context, contest *model.Contest, now time.Time) (*model.ContestJobIDs, error) {
	ids := &model.ContestJobIDs{}
	var err error

	if ids.StartJobID, err = s.scheduler.Schedule(ctx, jobs.KindStartContest, contest.ID, contest.StartTime); err != nil {
		return nil, err
	}
	if ids.EndJobID, err = s.scheduler.Schedule(ctx, jobs.KindEndContest, contest.ID, contest.EndTime); err != nil {
		s.cancelLifecycle(ctx, ids)
		return nil, err
	}
	if ids.NotifyJobID, err = s.scheduler.Schedule(ctx, jobs.KindNotifyContest, contest.ID, notifyAt(contest.StartTime, now)); err != nil {
		s.cancelLifecycle(ctx, ids)
		return nil, err
	}
	return ids, nil
}

func (s *ContestService) cancelLifecycle(ctx context.Context, ids *model.ContestJobIDs) {
	if ids == nil {
		return
	}
	for _, id := range []string{ids.StartJobID, ids.EndJobID, ids.NotifyJobID} {
		if id == "" {
			continue
		}
		if err := s.scheduler.Cancel(ctx, id); err != nil {
			log.Printf("WARN: Failed to cancel lifecycle job %s: %v", id, err)
		}
	}
}

// DeleteContest cancels the contest's outstanding lifecycle jobs, removes the
// contest (participants and problem links cascade), and releases its problems.
func (s *ContestService) DeleteContest(ctx context.Context, id string) error {
	contest, err := s.contestRepo.GetContestByID(ctx, id)
	if err != nil {
		return err
	}
	s.cancelLifecycle(ctx, contest.JobIDs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.contestRepo.DeleteContest(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return common.Errorf("committing transaction: %w", err)
	}

	if released, err := s.problemRepo.ClearContestFromProblems(ctx, id); err != nil {
		log.Printf("ERROR: Failed to release problems of deleted contest %s: %v", id, err)
	} else if released > 0 {
		log.Printf("INFO: Released %d problems of deleted contest %s", released, id)
	}
	return nil
}

// Register enrolls a user in a contest that has not started yet.
func (s *ContestService) Register(ctx context.Context, contestID, userID string) error {
	contest, err := s.contestRepo.GetContestByID(ctx, contestID)
	if err != nil {
		return err
	}
	if contest.Status != model.ContestScheduled {
		return common.Errorf("contest has already started: %w", common.ErrConflict)
	}
	return s.contestRepo.RegisterParticipant(ctx, contestID, userID)
}

// Unregister withdraws an enrollment, allowed only before the contest starts.
func (s *ContestService) Unregister(ctx context.Context, contestID, userID string) error {
	contest, err := s.contestRepo.GetContestByID(ctx, contestID)
	if err != nil {
		return err
	}
	if contest.Status != model.ContestScheduled {
		return common.Errorf("contest has already started: %w", common.ErrConflict)
	}
	return s.contestRepo.UnregisterParticipant(ctx, contestID, userID)
}

// GetContestDetail returns the contest plus, for a known user, whether they
// are registered. userID may be empty for anonymous reads.
func (s *ContestService) GetContestDetail(ctx context.Context, id, userID string) (*model.Contest, bool, error) {
	contest, err := s.contestRepo.GetContestByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	registered := false
	if userID != "" {
		registered, err = s.contestRepo.IsParticipant(ctx, id, userID)
		if err != nil {
			return nil, false, err
		}
	}
	return contest, registered, nil
}

func (s *ContestService) GetContest(ctx context.Context, id string) (*model.Contest, error) {
	return s.contestRepo.GetContestByID(ctx, id)
}

func (s *ContestService) GetContestBySlug(ctx context.Context, slug string) (*model.Contest, error) {
	return s.contestRepo.GetContestBySlug(ctx, slug)
}

func (s *ContestService) ListContests(ctx context.Context) ([]model.Contest, error) {
	return s.contestRepo.ListContests(ctx)
}
