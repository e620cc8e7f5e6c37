package queue

import (
	"context"
	"time"

	"github.com/shohag/orderpipe/internal/models"
	"github.com/shohag/orderpipe/internal/storage"
)

// Alerter is the operator channel: fire-and-forget, distinct from customer
// notifications.
type Alerter interface {
	Alert(ctx context.Context, event string, fields map[string]interface{})
}

// Runner executes one job to completion or failure.
type Runner interface {
	Run(ctx context.Context, job models.Job) error
}

func EnqueueOrder(ctx context.Context, store storage.Storage, orderID string) (*models.Job, error) {
	return enqueue(ctx, store, models.JobOrderPipeline, orderID, models.QueueOrders)
}

func EnqueueNotification(ctx context.Context, store storage.Storage, notificationID string) (*models.Job, error) {
	return enqueue(ctx, store, models.JobNotification, notificationID, models.QueueNotifications)
}

func enqueue(ctx context.Context, store storage.Storage, kind models.JobKind, targetID, queueName string) (*models.Job, error) {
	now := time.Now().UTC()
	job := &models.Job{
		ID:        models.NewID("job"),
		Kind:      kind,
		TargetID:  targetID,
		Queue:     queueName,
		Status:    models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}
