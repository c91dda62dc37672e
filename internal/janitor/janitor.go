// Package janitor retries blob deletions that could not complete while the
// owning request was being served.
package janitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"facegallery/internal/blob"
	"facegallery/internal/metrics"
	"facegallery/internal/queue"
)

// TypeBlobDelete marks queue messages that carry a pending blob deletion.
const TypeBlobDelete = "blob.delete"

// Default retry policy.
const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 2 * time.Second
)

type task struct {
	Key     string `json:"key"`
	Attempt int    `json:"attempt"`
}

// Janitor publishes and consumes deferred blob deletions.
type Janitor struct {
	q           queue.Queue
	blobs       blob.Storage
	log         *logrus.Logger
	maxAttempts int
	retryDelay  time.Duration
}

// Option adjusts a Janitor.
type Option func(*Janitor)

// WithRetry overrides the attempt limit and the pause before a retry.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(j *Janitor) {
		if maxAttempts > 0 {
			j.maxAttempts = maxAttempts
		}
		if delay >= 0 {
			j.retryDelay = delay
		}
	}
}

func New(q queue.Queue, blobs blob.Storage, log *logrus.Logger, opts ...Option) *Janitor {
	j := &Janitor{
		q:           q,
		blobs:       blobs,
		log:         log,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// ScheduleDelete queues key for deletion.
func (j *Janitor) ScheduleDelete(ctx context.Context, key string) error {
	if err := blob.ValidateKey(key); err != nil {
		return err
	}
	return j.publish(ctx, task{Key: key, Attempt: 1})
}

func (j *Janitor) publish(ctx context.Context, t task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := j.q.Publish(ctx, queue.Message{Type: TypeBlobDelete, Body: body}); err != nil {
		return fmt.Errorf("publish cleanup for %s: %w", t.Key, err)
	}
	return nil
}

// Run consumes the queue until ctx is canceled.
func (j *Janitor) Run(ctx context.Context) error {
	messages, err := j.q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume cleanup queue: %w", err)
	}
	j.log.Info("janitor started")
	for msg := range messages {
		if msg.Type != TypeBlobDelete {
			continue
		}
		j.handle(ctx, msg.Body)
	}
	j.log.Info("janitor stopped")
	return nil
}

func (j *Janitor) handle(ctx context.Context, body []byte) {
	var t task
	if err := json.Unmarshal(body, &t); err != nil || t.Key == "" {
		metrics.BlobCleanup.WithLabelValues("invalid").Inc()
		j.log.WithField("body", string(body)).Warn("dropping malformed cleanup task")
		return
	}
	entry := j.log.WithFields(logrus.Fields{"key": t.Key, "attempt": t.Attempt})

	err := j.blobs.Delete(ctx, t.Key)
	switch {
	case err == nil:
		metrics.BlobCleanup.WithLabelValues("deleted").Inc()
		entry.Info("blob removed")
		return
	case errors.Is(err, blob.ErrNotFound):
		metrics.BlobCleanup.WithLabelValues("missing").Inc()
		entry.Debug("blob already gone")
		return
	case ctx.Err() != nil:
		return
	}

	if t.Attempt >= j.maxAttempts {
		metrics.BlobCleanup.WithLabelValues("abandoned").Inc()
		entry.WithError(err).Error("giving up on blob cleanup")
		return
	}
	metrics.BlobCleanup.WithLabelValues("retried").Inc()
	entry.WithError(err).Warn("blob cleanup failed, retrying")

	if j.retryDelay > 0 {
		select {
		case <-time.After(j.retryDelay):
		case <-ctx.Done():
			return
		}
	}
	t.Attempt++
	if err := j.publish(ctx, t); err != nil {
		entry.WithError(err).Error("requeue blob cleanup")
	}
}
