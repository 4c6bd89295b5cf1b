package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

// Queue names. Jobs enter on the main queue, failed jobs park on the retry
// queue, and exhausted jobs land on the dead-letter queue.
const (
	MainQueue  = "moderation:jobs"
	RetryQueue = "moderation:retry"
	DLQ        = "moderation:dlq"
)

// Job is the envelope moved between queues. Envelopes are immutable once
// pushed; a retry pushes a fresh envelope with Attempts incremented. Text and
// ImageURL are always present on the wire, empty when not applicable.
type Job struct {
	JobID       uuid.UUID          `json:"job_id"`
	ContentID   uuid.UUID          `json:"content_id"`
	ContentType models.ContentType `json:"content_type"`
	Text        string             `json:"text"`
	ImageURL    string             `json:"image_url"`
	Attempts    int                `json:"attempts"`
	Error       string             `json:"error,omitempty"`
}

// Payload returns the classifier input for the job's content kind.
func (j *Job) Payload() string {
	if j.ContentType == models.ContentTypeImage {
		return j.ImageURL
	}
	return j.Text
}

// Store is a FIFO queue store backed by Redis lists: LPUSH on enqueue, BRPOP
// on dequeue, so insertion order is preserved and each item is delivered to
// at most one consumer.
type Store struct {
	client goredis.UniversalClient
	logger logging.Logger
}

func NewStore(client goredis.UniversalClient, logger logging.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// Push appends a job to the named queue. Any returned error is a
// connectivity failure; there is no silent loss.
func (s *Store) Push(ctx context.Context, queueName string, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job envelope: %w", err)
	}

	if err := s.client.LPush(ctx, queueName, payload).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", queueName, err)
	}

	s.logger.WithFields(logging.Fields{
		"queue":      queueName,
		"job_id":     job.JobID,
		"content_id": job.ContentID,
		"attempts":   job.Attempts,
	}).Info("Pushed job to queue")

	return nil
}

// Pop blocks up to timeout waiting for a job on the named queue. A timeout
// returns (nil, nil): it is the expected idle condition, not an error.
func (s *Store) Pop(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	res, err := s.client.BRPop(ctx, timeout, queueName).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop from %s: %w", queueName, err)
	}

	// BRPOP returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("pop from %s: unexpected reply length %d", queueName, len(res))
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job envelope from %s: %w", queueName, err)
	}

	s.logger.WithFields(logging.Fields{
		"queue":  queueName,
		"job_id": job.JobID,
	}).Info("Popped job from queue")

	return &job, nil
}

// Size returns the number of jobs waiting on the named queue.
func (s *Store) Size(ctx context.Context, queueName string) (int64, error) {
	size, err := s.client.LLen(ctx, queueName).Result()
	if err != nil {
		return 0, fmt.Errorf("size of %s: %w", queueName, err)
	}
	return size, nil
}
