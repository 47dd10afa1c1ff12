package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"competenest/internal/common"
	"competenest/internal/domain/model"
)

// ContestStore is the slice of the contest repository the lifecycle worker
// needs.
type ContestStore interface {
	SetContestStatus(ctx context.Context, id string, status model.ContestStatus) (bool, error)
	GetContestByID(ctx context.Context, id string) (*model.Contest, error)
	ParticipantEmails(ctx context.Context, contestID string) ([]string, error)
}

type ProblemStore interface {
	ClearContestFromProblems(ctx context.Context, contestID string) (int64, error)
}

type Mailer interface {
	Send(to []string, subject, htmlBody string) error
}

// LifecycleWorker drives contest state transitions when their jobs fire. All
// handlers return nil: a lifecycle job must never be treated as retryable, and
// a contest deleted after scheduling is skipped, not an error.
type LifecycleWorker struct {
	contests    ContestStore
	problems    ProblemStore
	mailer      Mailer
	frontendURL string
}

func NewLifecycleWorker(contests ContestStore, problems ProblemStore, mailer Mailer, frontendURL string) *LifecycleWorker {
	return &LifecycleWorker{contests: contests, problems: problems, mailer: mailer, frontendURL: frontendURL}
}

// Handlers wires one handler per lifecycle kind for Store.Run.
func (w *LifecycleWorker) Handlers() map[string]Handler {
	return map[string]Handler{
		KindStartContest:  w.handleStart,
		KindEndContest:    w.handleEnd,
		KindNotifyContest: w.handleNotify,
	}
}

func (w *LifecycleWorker) handleStart(ctx context.Context, job Job) error {
	contestID := job.Payload
	found, err := w.contests.SetContestStatus(ctx, contestID, model.ContestOngoing)
	if err != nil {
		log.Printf("ERROR: Failed to start contest %s: %v", contestID, err)
		return nil
	}
	if !found {
		log.Printf("WARN: Start job %s fired for missing contest %s, skipping", job.ID, contestID)
		return nil
	}
	log.Printf("INFO: Contest %s is now Ongoing", contestID)
	return nil
}

func (w *LifecycleWorker) handleEnd(ctx context.Context, job Job) error {
	contestID := job.Payload
	found, err := w.contests.SetContestStatus(ctx, contestID, model.ContestEnded)
	if err != nil {
		log.Printf("ERROR: Failed to end contest %s: %v", contestID, err)
		return nil
	}
	if !found {
		log.Printf("WARN: End job %s fired for missing contest %s, skipping", job.ID, contestID)
		return nil
	}

	// Ended contests release their problems into the public set.
	released, err := w.problems.ClearContestFromProblems(ctx, contestID)
	if err != nil {
		log.Printf("ERROR: Failed to release problems of contest %s: %v", contestID, err)
		return nil
	}
	log.Printf("INFO: Contest %s ended, released %d problems", contestID, released)
	return nil
}

func (w *LifecycleWorker) handleNotify(ctx context.Context, job Job) error {
	contestID := job.Payload
	contest, err := w.contests.GetContestByID(ctx, contestID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			log.Printf("WARN: Notify job %s fired for missing contest %s, skipping", job.ID, contestID)
		} else {
			log.Printf("ERROR: Failed to load contest %s for notification: %v", contestID, err)
		}
		return nil
	}

	emails, err := w.contests.ParticipantEmails(ctx, contestID)
	if err != nil {
		log.Printf("ERROR: Failed to load participants of contest %s: %v", contestID, err)
		return nil
	}
	if len(emails) == 0 {
		log.Printf("INFO: Contest %s has no participants to notify", contestID)
		return nil
	}

	subject := fmt.Sprintf("%s starts soon", contest.Title)
	body := fmt.Sprintf(
		`<p>The contest <b>%s</b> starts at %s.</p><p><a href="%s/contests/%s">Join here</a>.</p>`,
		contest.Title, contest.StartTime.Format(time.RFC1123), w.frontendURL, contest.ID,
	)
	if err := w.mailer.Send(emails, subject, body); err != nil {
		log.Printf("ERROR: Failed to send start notification for contest %s: %v", contestID, err)
		return nil
	}
	log.Printf("INFO: Notified %d participants of contest %s", len(emails), contestID)
	return nil
}
