package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jyothsna-ssv/CrowdShield/internal/classifier"
	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/internal/moderation"
	"github.com/jyothsna-ssv/CrowdShield/internal/notify"
	"github.com/jyothsna-ssv/CrowdShield/internal/queue"
	"github.com/jyothsna-ssv/CrowdShield/internal/ratelimit"
	"github.com/jyothsna-ssv/CrowdShield/internal/rules"
	"github.com/jyothsna-ssv/CrowdShield/internal/worker"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

// memoryQueue is an in-process FIFO queue so the submit path and the worker
// loops can share a transport without Redis.
type memoryQueue struct {
	mu     sync.Mutex
	queues map[string][]queue.Job
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{queues: make(map[string][]queue.Job)}
}

func (m *memoryQueue) Push(ctx context.Context, queueName string, job queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[queueName] = append(m.queues[queueName], job)
	return nil
}

func (m *memoryQueue) Pop(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		if jobs := m.queues[queueName]; len(jobs) > 0 {
			job := jobs[0]
			m.queues[queueName] = jobs[1:]
			m.mu.Unlock()
			return &job, nil
		}
		m.mu.Unlock()
		if ctx.Err() != nil || time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (m *memoryQueue) Size(ctx context.Context, queueName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queues[queueName])), nil
}

type pipelineEvent struct {
	stage    notify.Stage
	progress int
	status   string
	errMsg   string
}

// recordingNotifier captures the ordered update stream a watcher would see.
type recordingNotifier struct {
	mu     sync.Mutex
	events []pipelineEvent
}

func (r *recordingNotifier) SendProgress(contentID string, stage notify.Stage, progress int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, pipelineEvent{stage: stage, progress: progress})
}

func (r *recordingNotifier) SendCompleted(contentID, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, pipelineEvent{stage: notify.StageDone, progress: notify.ProgressDone, status: label})
}

func (r *recordingNotifier) SendError(contentID, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, pipelineEvent{stage: notify.StageError, errMsg: errMsg})
}

func (r *recordingNotifier) ServeWS(contentID string, w http.ResponseWriter, req *http.Request) {}

func (r *recordingNotifier) snapshot() []pipelineEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pipelineEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingNotifier) waitForStage(t *testing.T, stage notify.Stage) []pipelineEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		events := r.snapshot()
		for _, e := range events {
			if e.stage == stage {
				return events
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for stage %s, saw %+v", stage, events)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// runPipeline submits text through the HTTP surface with real worker loops
// and the local scorer behind it, then waits for a terminal notification.
func runPipeline(t *testing.T, text string) (*fakeStore, *recordingNotifier, uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewLogger()
	fs := newFakeStore()
	mq := newMemoryQueue()
	rec := &recordingNotifier{}
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig(), logger)
	engine := rules.NewEngine(&memoryRuleStore{}, logger)
	scorer := classifier.NewHeuristic(logger)
	orchestrator := moderation.NewOrchestrator(engine, fs, rec, logger)

	ctx, cancel := context.WithCancel(context.Background())
	w := worker.New(worker.Config{
		PopTimeout:     20 * time.Millisecond,
		MaxRetries:     3,
		ReconnectDelay: time.Millisecond,
		BackoffBase:    time.Millisecond,
	}, mq, fs, scorer, orchestrator, rec, logger, nil)
	w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		w.Wait()
	})

	router := gin.New()
	content := NewContentHandler(fs, mq, rec, limiter, logger, nil)
	ruleHandler := NewRuleHandler(engine, logger)
	admin := NewAdminHandler(AdminConfig{Username: "admin", PasswordHash: "x", JWTSecret: []byte("k"), TokenTTL: time.Hour}, fs, mq, orchestrator, logger)
	RegisterRoutes(router, content, ruleHandler, admin, []byte("k"))

	req := httptest.NewRequest(http.MethodPost, "/api/content/text", strings.NewReader(`{"text":`+mustJSON(t, text)+`,"user_id":"user-1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var created struct {
		Content models.Content `json:"content"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	return fs, rec, created.Content.ID
}

func mustJSON(t *testing.T, s string) string {
	t.Helper()
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestSubmitTextPipelineSafe(t *testing.T) {
	fs, rec, contentID := runPipeline(t, "well done on the project")

	events := rec.waitForStage(t, notify.StageDone)
	want := []pipelineEvent{
		{stage: notify.StagePending, progress: notify.ProgressPending},
		{stage: notify.StageQueued, progress: notify.ProgressQueued},
		{stage: notify.StageProcessing, progress: notify.ProgressProcessing},
		{stage: notify.StageAICompleted, progress: notify.ProgressAICompleted},
		{stage: notify.StageDone, progress: notify.ProgressDone, status: "SAFE"},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d updates, got %+v", len(want), events)
	}
	for i, e := range events {
		if e != want[i] {
			t.Fatalf("update %d: expected %+v, got %+v", i, want[i], e)
		}
	}

	if status := fs.statusOf(contentID); status != models.StatusSafe {
		t.Fatalf("expected SAFE content status, got %s", status)
	}
}

func TestSubmitTextPipelineFlagged(t *testing.T) {
	fs, rec, contentID := runPipeline(t, "You are such an idiot. Nobody wants you here.")

	events := rec.waitForStage(t, notify.StageDone)
	last := events[len(events)-1]
	if last.stage != notify.StageDone || last.status != "FLAGGED" {
		t.Fatalf("expected DONE with FLAGGED, got %+v", last)
	}

	if status := fs.statusOf(contentID); status != models.StatusFlagged {
		t.Fatalf("expected FLAGGED content status, got %s", status)
	}
}
