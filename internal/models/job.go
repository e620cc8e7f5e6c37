package models

import "time"

type JobKind string

const (
	JobOrderPipeline JobKind = "order_pipeline"
	JobNotification  JobKind = "notification"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobRetrying  JobStatus = "retrying"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

const (
	QueueOrders        = "orders"
	QueueNotifications = "notifications"
)

// Job is one unit of queued work: a pipeline run over an order or a
// delivery attempt for a notification.
type Job struct {
	ID           string     `json:"id"`
	Kind         JobKind    `json:"kind"`
	TargetID     string     `json:"target_id"`
	Queue        string     `json:"queue"`
	Status       JobStatus  `json:"status"`
	AttemptCount int        `json:"attempt_count"`
	NextRunAt    *time.Time `json:"next_run_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
