package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, logging.NewLogger())
}

func TestPushPopRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := Job{
		JobID:       uuid.New(),
		ContentID:   uuid.New(),
		ContentType: models.ContentTypeText,
		Text:        "hello world",
		ImageURL:    "",
		Attempts:    2,
		Error:       "upstream timed out",
	}

	if err := store.Push(ctx, MainQueue, job); err != nil {
		t.Fatalf("Push: %v", err)
	}

	got, err := store.Pop(ctx, MainQueue, time.Second)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if got == nil {
		t.Fatal("expected a job, got nil")
	}
	if got.JobID != job.JobID {
		t.Fatalf("job_id mismatch: %s != %s", got.JobID, job.JobID)
	}
	if got.ContentID != job.ContentID {
		t.Fatalf("content_id mismatch: %s != %s", got.ContentID, job.ContentID)
	}
	if got.ContentType != job.ContentType {
		t.Fatalf("content_type mismatch: %s != %s", got.ContentType, job.ContentType)
	}
	if got.Text != job.Text || got.ImageURL != job.ImageURL {
		t.Fatalf("payload mismatch: %+v", got)
	}
	if got.Attempts != job.Attempts {
		t.Fatalf("attempts mismatch: %d != %d", got.Attempts, job.Attempts)
	}
	if got.Error != job.Error {
		t.Fatalf("error mismatch: %q != %q", got.Error, job.Error)
	}
}

func TestPopPreservesFIFOOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := Job{JobID: uuid.New(), ContentID: uuid.New(), ContentType: models.ContentTypeText, Text: "first"}
	second := Job{JobID: uuid.New(), ContentID: uuid.New(), ContentType: models.ContentTypeText, Text: "second"}

	if err := store.Push(ctx, MainQueue, first); err != nil {
		t.Fatalf("Push first: %v", err)
	}
	if err := store.Push(ctx, MainQueue, second); err != nil {
		t.Fatalf("Push second: %v", err)
	}

	got, err := store.Pop(ctx, MainQueue, time.Second)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if got == nil || got.JobID != first.JobID {
		t.Fatalf("expected first job, got %+v", got)
	}

	got, err = store.Pop(ctx, MainQueue, time.Second)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if got == nil || got.JobID != second.JobID {
		t.Fatalf("expected second job, got %+v", got)
	}
}

func TestPopTimeoutReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Pop(context.Background(), RetryQueue, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Pop on empty queue: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil job on timeout, got %+v", got)
	}
}

func TestSize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	size, err := store.Size(ctx, DLQ)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 0 {
		t.Fatalf("expected empty queue, got %d", size)
	}

	for i := 0; i < 3; i++ {
		job := Job{JobID: uuid.New(), ContentID: uuid.New(), ContentType: models.ContentTypeText}
		if err := store.Push(ctx, DLQ, job); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	size, err = store.Size(ctx, DLQ)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 3 {
		t.Fatalf("expected 3, got %d", size)
	}
}

func TestJobPayloadByKind(t *testing.T) {
	text := Job{ContentType: models.ContentTypeText, Text: "some words"}
	if text.Payload() != "some words" {
		t.Fatalf("unexpected text payload: %q", text.Payload())
	}
	image := Job{ContentType: models.ContentTypeImage, ImageURL: "https://cdn.example.com/a.png"}
	if image.Payload() != "https://cdn.example.com/a.png" {
		t.Fatalf("unexpected image payload: %q", image.Payload())
	}
}
