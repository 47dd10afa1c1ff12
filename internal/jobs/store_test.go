package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, 20*time.Millisecond, 100), rdb
}

func TestStore_ScheduleAndPromote(t *testing.T) {
	store, rdb := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := store.Schedule(ctx, KindStartContest, "c1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if id == "" {
		t.Fatal("Schedule must return a job id")
	}

	// Not due yet.
	promoted, err := store.PromoteDue(ctx, now)
	if err != nil {
		t.Fatalf("PromoteDue: %v", err)
	}
	if promoted != 0 {
		t.Errorf("promoted = %d before due time, want 0", promoted)
	}

	// Past due: the job lands on its kind's ready list.
	promoted, err = store.PromoteDue(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("PromoteDue: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("promoted = %d, want 1", promoted)
	}
	ready, err := rdb.LRange(ctx, readyPrefix+KindStartContest, 0, -1).Result()
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if len(ready) != 1 || ready[0] != id {
		t.Errorf("ready list = %v, want [%s]", ready, id)
	}

	// A second pass must not promote it again.
	promoted, err = store.PromoteDue(ctx, now.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("PromoteDue: %v", err)
	}
	if promoted != 0 {
		t.Errorf("promoted = %d on second pass, want 0", promoted)
	}
}

func TestStore_CancelBeforePromotion(t *testing.T) {
	store, rdb := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := store.Schedule(ctx, KindEndContest, "c1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := store.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	promoted, err := store.PromoteDue(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("PromoteDue: %v", err)
	}
	if promoted != 0 {
		t.Errorf("promoted = %d after cancel, want 0", promoted)
	}
	if n, _ := rdb.Exists(ctx, metaPrefix+id).Result(); n != 0 {
		t.Error("cancelled job metadata must be deleted")
	}
}

func TestStore_CancelAfterPromotion(t *testing.T) {
	store, rdb := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := store.Schedule(ctx, KindNotifyContest, "c1", now)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := store.PromoteDue(ctx, now.Add(time.Second)); err != nil {
		t.Fatalf("PromoteDue: %v", err)
	}
	if err := store.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	ready, _ := rdb.LRange(ctx, readyPrefix+KindNotifyContest, 0, -1).Result()
	if len(ready) != 0 {
		t.Errorf("ready list = %v after cancel, want empty", ready)
	}
}

func TestStore_CancelUnknownJobIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Cancel(context.Background(), "no-such-job"); err != nil {
		t.Errorf("Cancel of unknown job = %v, want nil", err)
	}
}

func TestStore_RunFiresDueJob(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := store.Schedule(ctx, KindStartContest, "c1", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	fired := make(chan Job, 1)
	go store.Run(ctx, map[string]Handler{
		KindStartContest: func(ctx context.Context, job Job) error {
			fired <- job
			return nil
		},
	})

	select {
	case job := <-fired:
		if job.Kind != KindStartContest || job.Payload != "c1" {
			t.Errorf("fired job = %+v, want start-contest for c1", job)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("due job did not fire")
	}
}

func TestStore_PersistedJobSurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	ctx := context.Background()
	now := time.Now()

	first := NewStore(rdb, 20*time.Millisecond, 100)
	id, err := first.Schedule(ctx, KindEndContest, "c1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// A fresh Store over the same Redis sees and promotes the job.
	second := NewStore(rdb, 20*time.Millisecond, 100)
	promoted, err := second.PromoteDue(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("PromoteDue: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("promoted = %d from a new store instance, want 1", promoted)
	}
	job, ok, err := second.take(ctx, id)
	if err != nil || !ok {
		t.Fatalf("take: ok=%v err=%v", ok, err)
	}
	if job.Kind != KindEndContest || job.Payload != "c1" {
		t.Errorf("job = %+v, want end-contest for c1", job)
	}
}
