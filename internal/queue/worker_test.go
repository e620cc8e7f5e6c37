package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shohag/orderpipe/internal/models"
	"github.com/shohag/orderpipe/internal/storage"
)

type fakeRunner struct {
	err   error
	calls int
}

func (r *fakeRunner) Run(ctx context.Context, job models.Job) error {
	r.calls++
	return r.err
}

type recordAlerter struct {
	events []string
}

func (a *recordAlerter) Alert(ctx context.Context, event string, fields map[string]interface{}) {
	a.events = append(a.events, event)
}

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return store
}

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second},
		ReuseLast:   true,
	}
}

func TestWorkerRetriesTransientFailureUpToBudget(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	runner := &fakeRunner{err: errors.New("provider timeout")}
	alerts := &recordAlerter{}
	w := NewWorker(store, runner, testPolicy(), alerts, zerolog.Nop())

	job, err := EnqueueNotification(ctx, store, "ntf_test")
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	var prevDelay time.Duration
	for attempt := 1; attempt <= 2; attempt++ {
		current, err := store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		before := time.Now().UTC()
		w.Process(ctx, *current)

		updated, err := store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if updated.Status != models.JobRetrying {
			t.Fatalf("attempt %d: status = %s, want retrying", attempt, updated.Status)
		}
		if updated.AttemptCount != attempt {
			t.Fatalf("attempt %d: attempt_count = %d", attempt, updated.AttemptCount)
		}
		if updated.NextRunAt == nil {
			t.Fatalf("attempt %d: no next_run_at", attempt)
		}
		delay := updated.NextRunAt.Sub(before)
		if delay < prevDelay {
			t.Fatalf("attempt %d: delay %v decreased from %v", attempt, delay, prevDelay)
		}
		prevDelay = delay
	}

	// Third attempt exhausts the budget.
	current, _ := store.GetJob(ctx, job.ID)
	w.Process(ctx, *current)

	final, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if final.Status != models.JobFailed {
		t.Fatalf("final status = %s, want failed", final.Status)
	}
	if final.AttemptCount != 3 {
		t.Fatalf("final attempt_count = %d, want 3", final.AttemptCount)
	}
	if final.NextRunAt != nil {
		t.Fatal("failed job must never be re-enqueued")
	}
	if runner.calls != 3 {
		t.Fatalf("runner ran %d times, want 3", runner.calls)
	}
	if len(alerts.events) != 1 || alerts.events[0] != "job_failed" {
		t.Fatalf("expected one job_failed alert, got %v", alerts.events)
	}
}

func TestWorkerTerminalFailureSkipsRetries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	runner := &fakeRunner{err: Terminal(errors.New("no phone found"))}
	alerts := &recordAlerter{}
	w := NewWorker(store, runner, testPolicy(), alerts, zerolog.Nop())

	job, err := EnqueueNotification(ctx, store, "ntf_test")
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.Process(ctx, *job)

	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if updated.Status != models.JobFailed {
		t.Fatalf("status = %s, want failed", updated.Status)
	}
	if updated.AttemptCount != 1 {
		t.Fatalf("attempt_count = %d, want 1", updated.AttemptCount)
	}
	if runner.calls != 1 {
		t.Fatalf("runner ran %d times, want 1", runner.calls)
	}
	if len(alerts.events) != 1 {
		t.Fatalf("expected one alert, got %v", alerts.events)
	}
}

func TestWorkerSuccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	runner := &fakeRunner{}
	w := NewWorker(store, runner, testPolicy(), &recordAlerter{}, zerolog.Nop())

	job, err := EnqueueOrder(ctx, store, "ord_test")
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.Process(ctx, *job)

	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if updated.Status != models.JobSucceeded {
		t.Fatalf("status = %s, want succeeded", updated.Status)
	}
	if updated.Queue != models.QueueOrders {
		t.Fatalf("queue = %s, want %s", updated.Queue, models.QueueOrders)
	}
}

func TestTerminalErrorWrapping(t *testing.T) {
	base := errors.New("boom")
	if !IsTerminal(Terminal(base)) {
		t.Fatal("Terminal error not recognized")
	}
	if IsTerminal(base) {
		t.Fatal("plain error misclassified as terminal")
	}
	if !errors.Is(Terminal(base), base) {
		t.Fatal("Terminal must preserve the wrapped error")
	}
	if Terminal(nil) != nil {
		t.Fatal("Terminal(nil) must be nil")
	}
}
