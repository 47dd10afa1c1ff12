package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"competenest/internal/telemetry"
)

// Lifecycle job kinds. Each kind gets its own ready list and consumer.
const (
	KindStartContest  = "start-contest"
	KindEndContest    = "end-contest"
	KindNotifyContest = "notify-contest"
)

const (
	scheduledKey = "jobs:scheduled"
	metaPrefix   = "jobs:meta:"
	readyPrefix  = "jobs:ready:"
)

// Job is one durable delayed task. Payload carries the contest id.
type Job struct {
	ID      string
	Kind    string
	Payload string
	RunAt   time.Time
}

// Handler processes one promoted job. Handlers own their error reporting; a
// returned error is logged, not retried.
type Handler func(ctx context.Context, job Job) error

// Store is a Redis-backed delayed job queue. Scheduled jobs sit in a sorted
// set scored by due time; a promoter loop moves due jobs onto per-kind ready
// lists that blocking consumers pop. Jobs survive process restarts and can be
// cancelled any time before a consumer picks them up.
type Store struct {
	rdb          *redis.Client
	pollInterval time.Duration
	promoteBatch int
}

func NewStore(rdb *redis.Client, pollInterval time.Duration, promoteBatch int) *Store {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if promoteBatch <= 0 {
		promoteBatch = 100
	}
	return &Store{rdb: rdb, pollInterval: pollInterval, promoteBatch: promoteBatch}
}

// Schedule enqueues a job to run at runAt and returns its id. Due times in the
// past fire on the next promoter tick.
func (s *Store) Schedule(ctx context.Context, kind, payload string, runAt time.Time) (string, error) {
	id := uuid.NewString()
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, metaPrefix+id,
		"kind", kind,
		"payload", payload,
		"run_at", strconv.FormatInt(runAt.UnixMilli(), 10),
	)
	pipe.ZAdd(ctx, scheduledKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("scheduling %s job: %w", kind, err)
	}
	telemetry.JobsScheduled.Inc()
	log.Printf("INFO: Scheduled %s job %s for %s", kind, id, runAt.Format(time.RFC3339))
	return id, nil
}

// Cancel removes a job wherever it currently sits. Cancelling a job that has
// already fired (or never existed) is not an error.
func (s *Store) Cancel(ctx context.Context, id string) error {
	kind, err := s.rdb.HGet(ctx, metaPrefix+id, "kind").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancelling job %s: %w", id, err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, scheduledKey, id)
	pipe.LRem(ctx, readyPrefix+kind, 0, id)
	pipe.Del(ctx, metaPrefix+id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cancelling job %s: %w", id, err)
	}
	telemetry.JobsCancelled.Inc()
	log.Printf("INFO: Cancelled %s job %s", kind, id)
	return nil
}

// PromoteDue moves jobs whose due time has passed onto their ready lists and
// returns how many it moved. The ZRem acts as the claim: a job concurrently
// cancelled loses the race and is not pushed.
func (s *Store) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, scheduledKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(s.promoteBatch),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("listing due jobs: %w", err)
	}

	promoted := 0
	for _, id := range ids {
		kind, err := s.rdb.HGet(ctx, metaPrefix+id, "kind").Result()
		if errors.Is(err, redis.Nil) {
			s.rdb.ZRem(ctx, scheduledKey, id)
			continue
		}
		if err != nil {
			return promoted, fmt.Errorf("reading job %s: %w", id, err)
		}
		removed, err := s.rdb.ZRem(ctx, scheduledKey, id).Result()
		if err != nil {
			return promoted, fmt.Errorf("claiming job %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}
		if err := s.rdb.LPush(ctx, readyPrefix+kind, id).Err(); err != nil {
			return promoted, fmt.Errorf("promoting job %s: %w", id, err)
		}
		promoted++
	}
	return promoted, nil
}

// take pops the job's metadata after a consumer claimed its id from a ready
// list. Returns ok=false when the meta is gone (cancelled in the pop window).
func (s *Store) take(ctx context.Context, id string) (Job, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, metaPrefix+id).Result()
	if err != nil {
		return Job{}, false, fmt.Errorf("reading job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return Job{}, false, nil
	}
	if err := s.rdb.Del(ctx, metaPrefix+id).Err(); err != nil {
		return Job{}, false, fmt.Errorf("consuming job %s: %w", id, err)
	}
	runAtMilli, _ := strconv.ParseInt(fields["run_at"], 10, 64)
	return Job{
		ID:      id,
		Kind:    fields["kind"],
		Payload: fields["payload"],
		RunAt:   time.UnixMilli(runAtMilli),
	}, true, nil
}

// Run starts the promoter and one consumer per handled kind, blocking until
// ctx is cancelled.
func (s *Store) Run(ctx context.Context, handlers map[string]Handler) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.PromoteDue(ctx, time.Now()); err != nil && ctx.Err() == nil {
					log.Printf("ERROR: Job promotion failed: %v", err)
				}
			}
		}
	}()

	for kind, handler := range handlers {
		wg.Add(1)
		go func(kind string, handler Handler) {
			defer wg.Done()
			s.consume(ctx, kind, handler)
		}(kind, handler)
	}

	wg.Wait()
}

func (s *Store) consume(ctx context.Context, kind string, handler Handler) {
	ready := readyPrefix + kind
	for ctx.Err() == nil {
		popped, err := s.rdb.BLPop(ctx, s.pollInterval, ready).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("ERROR: Popping %s job failed: %v", kind, err)
			time.Sleep(s.pollInterval)
			continue
		}
		// BLPop returns [key, value].
		if len(popped) != 2 {
			continue
		}
		job, ok, err := s.take(ctx, popped[1])
		if err != nil {
			log.Printf("ERROR: Consuming %s job %s failed: %v", kind, popped[1], err)
			continue
		}
		if !ok {
			continue
		}
		telemetry.JobsFired.Inc()
		if err := handler(ctx, job); err != nil {
			log.Printf("ERROR: Handling %s job %s failed: %v", kind, job.ID, err)
		}
	}
}
