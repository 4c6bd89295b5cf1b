package worker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jyothsna-ssv/CrowdShield/internal/classifier"
	"github.com/jyothsna-ssv/CrowdShield/internal/metrics"
	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/internal/notify"
	"github.com/jyothsna-ssv/CrowdShield/internal/queue"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

// Queue is the job transport the worker consumes from and requeues to.
type Queue interface {
	Push(ctx context.Context, queueName string, job queue.Job) error
	Pop(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
}

// Store is the persistence surface the worker needs.
type Store interface {
	GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error)
	UpdateContentStatus(ctx context.Context, id uuid.UUID, status models.ContentStatus) error
	UpsertJobTracking(ctx context.Context, jobID, contentID uuid.UUID, attempts int, queueName, lastError string) error
}

// Notifier pushes progress updates to watchers.
type Notifier interface {
	SendProgress(contentID string, stage notify.Stage, progress int)
	SendError(contentID, errMsg string)
}

// Resulter records a verdict for classified content.
type Resulter interface {
	RecordResult(ctx context.Context, contentID uuid.UUID, scores models.Scores) (models.ModerationLabel, error)
}

// Config tunes the worker loops.
type Config struct {
	// PopTimeout bounds each blocking dequeue so shutdown is responsive.
	PopTimeout time.Duration

	// MaxRetries is the attempt count at which a job dead-letters.
	MaxRetries int

	// ReconnectDelay is the pause after a queue connectivity failure.
	ReconnectDelay time.Duration

	// BackoffBase scales the retry delay: 2^attempts * BackoffBase.
	BackoffBase time.Duration
}

func DefaultConfig() Config {
	return Config{
		PopTimeout:     5 * time.Second,
		MaxRetries:     3,
		ReconnectDelay: 5 * time.Second,
		BackoffBase:    time.Second,
	}
}

// Worker runs the consume loop and the retry loop. Jobs that fail go to the
// retry queue with an incremented attempt count; jobs at the retry cap go to
// the dead-letter queue and the content is marked ERROR. A connectivity
// failure pauses and resumes without consuming an attempt.
type Worker struct {
	cfg      Config
	queue    Queue
	store    Store
	scorer   classifier.Scorer
	results  Resulter
	notifier Notifier
	logger   logging.Logger
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

func New(cfg Config, q Queue, store Store, scorer classifier.Scorer, results Resulter, notifier Notifier, logger logging.Logger, m *metrics.Metrics) *Worker {
	defaults := DefaultConfig()
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = defaults.PopTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaults.BackoffBase
	}
	return &Worker{
		cfg:      cfg,
		queue:    q,
		store:    store,
		scorer:   scorer,
		results:  results,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
	}
}

// Start launches the consume and retry loops. They run until ctx is
// cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.runMain(ctx)
	}()
	go func() {
		defer w.wg.Done()
		w.runRetry(ctx)
	}()
}

// Wait blocks until both loops have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) runMain(ctx context.Context) {
	w.logger.Info("Moderation worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info("Moderation worker stopped")
			return
		}

		job, err := w.queue.Pop(ctx, queue.MainQueue, w.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Moderation worker stopped")
				return
			}
			w.logger.WithError(err).Warn("Queue unavailable, pausing consume loop")
			w.pause(ctx, w.cfg.ReconnectDelay)
			continue
		}
		if job == nil {
			continue
		}

		w.processJob(ctx, job)
	}
}

func (w *Worker) runRetry(ctx context.Context) {
	w.logger.Info("Retry worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info("Retry worker stopped")
			return
		}

		job, err := w.queue.Pop(ctx, queue.RetryQueue, w.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Retry worker stopped")
				return
			}
			w.logger.WithError(err).Warn("Queue unavailable, pausing retry loop")
			w.pause(ctx, w.cfg.ReconnectDelay)
			continue
		}
		if job == nil {
			continue
		}

		if job.Attempts >= w.cfg.MaxRetries {
			w.deadLetter(ctx, job)
			continue
		}

		// Exponential backoff before the job re-enters the main queue.
		delay := w.cfg.BackoffBase * (1 << job.Attempts)
		w.logger.WithFields(logging.Fields{
			"job_id":   job.JobID,
			"attempts": job.Attempts,
			"delay":    delay.String(),
		}).Info("Delaying retry")
		if !w.pause(ctx, delay) {
			// Shutting down; park the job back on the retry queue so the
			// delay is re-applied on the next run.
			if err := w.queue.Push(context.Background(), queue.RetryQueue, *job); err != nil {
				w.logger.WithError(err).Error("Failed to repark retry job during shutdown")
			}
			continue
		}

		if err := w.queue.Push(ctx, queue.MainQueue, *job); err != nil {
			w.logger.WithError(err).Error("Failed to requeue retry job")
			continue
		}
		w.trackJob(ctx, job, queue.MainQueue)
	}
}

func (w *Worker) processJob(ctx context.Context, job *queue.Job) {
	contentID := job.ContentID.String()
	w.notifier.SendProgress(contentID, notify.StageQueued, notify.ProgressQueued)

	if _, err := w.store.GetContent(ctx, job.ContentID); err != nil {
		// Content was deleted after enqueue. Nothing to retry against.
		w.logger.WithFields(logging.Fields{
			"job_id":     job.JobID,
			"content_id": contentID,
		}).Warn("Dropping job for missing content")
		w.count("abandoned")
		return
	}

	if err := w.store.UpdateContentStatus(ctx, job.ContentID, models.StatusProcessing); err != nil {
		w.fail(ctx, job, err)
		return
	}
	w.notifier.SendProgress(contentID, notify.StageProcessing, notify.ProgressProcessing)
	w.trackJob(ctx, job, queue.MainQueue)

	start := time.Now()
	scores, err := w.scorer.Classify(ctx, job.ContentType, job.Payload())
	if err != nil {
		w.fail(ctx, job, err)
		return
	}
	if w.metrics != nil {
		w.metrics.ClassifierDuration.WithLabelValues(string(job.ContentType)).Observe(time.Since(start).Seconds())
	}
	w.notifier.SendProgress(contentID, notify.StageAICompleted, notify.ProgressAICompleted)

	label, err := w.results.RecordResult(ctx, job.ContentID, scores)
	if err != nil {
		w.fail(ctx, job, err)
		return
	}
	w.count(strings.ToLower(string(label)))
}

// fail routes a failed job to the retry queue, or to the dead-letter queue
// once the attempt cap is reached. The envelope is immutable; the requeued
// copy carries the incremented attempt count and the cause.
func (w *Worker) fail(ctx context.Context, job *queue.Job, cause error) {
	w.notifier.SendError(job.ContentID.String(), cause.Error())

	next := *job
	next.Attempts = job.Attempts + 1
	next.Error = cause.Error()

	if next.Attempts >= w.cfg.MaxRetries {
		w.deadLetter(ctx, &next)
		return
	}

	if err := w.queue.Push(ctx, queue.RetryQueue, next); err != nil {
		w.logger.WithError(err).Error("Failed to push job to retry queue")
		return
	}
	w.trackJob(ctx, &next, queue.RetryQueue)
	w.count("retried")

	w.logger.WithFields(logging.Fields{
		"job_id":   next.JobID,
		"attempts": next.Attempts,
		"error":    cause.Error(),
	}).Warn("Job scheduled for retry")
}

func (w *Worker) deadLetter(ctx context.Context, job *queue.Job) {
	if err := w.queue.Push(ctx, queue.DLQ, *job); err != nil {
		w.logger.WithError(err).Error("Failed to push job to dead-letter queue")
		return
	}
	if err := w.store.UpdateContentStatus(ctx, job.ContentID, models.StatusError); err != nil {
		w.logger.WithError(err).Error("Failed to mark content ERROR after dead-lettering")
	}
	w.trackJob(ctx, job, queue.DLQ)
	w.count("dead_lettered")

	w.logger.WithFields(logging.Fields{
		"job_id":     job.JobID,
		"content_id": job.ContentID,
		"attempts":   job.Attempts,
		"error":      job.Error,
	}).Error("Job exhausted retries, moved to dead-letter queue")
}

// trackJob mirrors queue state for operators. Failures are logged, never
// fatal: the envelope stays authoritative.
func (w *Worker) trackJob(ctx context.Context, job *queue.Job, queueName string) {
	if err := w.store.UpsertJobTracking(ctx, job.JobID, job.ContentID, job.Attempts, queueName, job.Error); err != nil {
		w.logger.WithError(err).Warn("Failed to update job tracking")
	}
}

// pause sleeps for d or until ctx is cancelled. Returns false on cancel.
func (w *Worker) pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) count(outcome string) {
	if w.metrics != nil {
		w.metrics.JobsProcessed.WithLabelValues(outcome).Inc()
	}
}
