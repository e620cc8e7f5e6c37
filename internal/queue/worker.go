package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shohag/orderpipe/internal/models"
	"github.com/shohag/orderpipe/internal/storage"
)

type Worker struct {
	store  storage.Storage
	runner Runner
	policy RetryPolicy
	alerts Alerter
	log    zerolog.Logger
}

func NewWorker(store storage.Storage, runner Runner, policy RetryPolicy, alerts Alerter, log zerolog.Logger) *Worker {
	return &Worker{
		store:  store,
		runner: runner,
		policy: policy,
		alerts: alerts,
		log:    log,
	}
}

func (w *Worker) Process(ctx context.Context, job models.Job) {
	job.AttemptCount++

	err := w.runner.Run(ctx, job)

	switch {
	case err == nil:
		job.Status = models.JobSucceeded
		job.NextRunAt = nil
		job.LastError = ""
		w.log.Info().
			Str("job_id", job.ID).
			Str("kind", string(job.Kind)).
			Int("attempt", job.AttemptCount).
			Msg("job succeeded")

	case IsTerminal(err):
		job.Status = models.JobFailed
		job.NextRunAt = nil
		job.LastError = err.Error()
		w.log.Warn().
			Str("job_id", job.ID).
			Str("kind", string(job.Kind)).
			Str("error", err.Error()).
			Msg("job failed permanently, not retryable")
		w.permanentFailure(ctx, job, err)

	case job.AttemptCount >= w.policy.MaxAttempts:
		job.Status = models.JobFailed
		job.NextRunAt = nil
		job.LastError = err.Error()
		w.log.Warn().
			Str("job_id", job.ID).
			Str("kind", string(job.Kind)).
			Int("attempts", job.AttemptCount).
			Str("error", err.Error()).
			Msg("job failed permanently, retry budget exhausted")
		w.permanentFailure(ctx, job, err)

	default:
		next := NextRetryTime(w.policy, job.AttemptCount)
		if next == nil {
			job.Status = models.JobFailed
			job.NextRunAt = nil
			job.LastError = err.Error()
			w.permanentFailure(ctx, job, err)
		} else {
			job.Status = models.JobRetrying
			job.NextRunAt = next
			job.LastError = err.Error()
			w.log.Info().
				Str("job_id", job.ID).
				Str("kind", string(job.Kind)).
				Int("attempt", job.AttemptCount).
				Time("next_retry", *next).
				Str("error", err.Error()).
				Msg("job scheduled for retry")
		}
	}

	if uerr := w.store.UpdateJob(ctx, &job); uerr != nil {
		w.log.Error().Err(uerr).Str("job_id", job.ID).Msg("failed to update job")
	}
}

func (w *Worker) permanentFailure(ctx context.Context, job models.Job, err error) {
	if w.alerts == nil {
		return
	}
	w.alerts.Alert(ctx, "job_failed", map[string]interface{}{
		"job_id":    job.ID,
		"kind":      string(job.Kind),
		"target_id": job.TargetID,
		"queue":     job.Queue,
		"attempts":  job.AttemptCount,
		"error":     err.Error(),
		"failed_at": time.Now().UTC().Format(time.RFC3339),
	})
}
