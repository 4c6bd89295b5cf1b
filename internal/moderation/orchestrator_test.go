package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/internal/rules"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

type fakeStore struct {
	content       *models.Content
	result        *models.ModerationResult
	savedResult   *models.ModerationResult
	savedStatus   models.ContentStatus
	updatedStatus models.ContentStatus
	action        *models.AdminAction
	saveErr       error
}

func (f *fakeStore) GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	if f.content == nil {
		return nil, errors.New("record not found")
	}
	return f.content, nil
}

func (f *fakeStore) SaveResultAndStatus(ctx context.Context, result *models.ModerationResult, status models.ContentStatus) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedResult = result
	f.savedStatus = status
	return nil
}

func (f *fakeStore) ResultByContentID(ctx context.Context, contentID uuid.UUID) (*models.ModerationResult, error) {
	if f.result == nil {
		return nil, errors.New("record not found")
	}
	return f.result, nil
}

func (f *fakeStore) UpdateContentStatus(ctx context.Context, id uuid.UUID, status models.ContentStatus) error {
	f.updatedStatus = status
	return nil
}

func (f *fakeStore) InsertAdminAction(ctx context.Context, action *models.AdminAction) error {
	f.action = action
	return nil
}

type fakeNotifier struct {
	contentID string
	label     string
	calls     int
}

func (f *fakeNotifier) SendCompleted(contentID, label string) {
	f.contentID = contentID
	f.label = label
	f.calls++
}

type defaultRuleStore struct{}

func (defaultRuleStore) LatestRule(ctx context.Context) (*models.ModerationRule, error) {
	return nil, rules.ErrRuleNotFound
}

func (defaultRuleStore) SaveRule(ctx context.Context, rule *models.ModerationRule) error {
	return nil
}

func newOrchestrator(store *fakeStore, notifier *fakeNotifier) *Orchestrator {
	logger := logging.NewLogger()
	engine := rules.NewEngine(defaultRuleStore{}, logger)
	return NewOrchestrator(engine, store, notifier, logger)
}

func TestRecordResultSafe(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	o := newOrchestrator(store, notifier)

	contentID := uuid.New()
	label, err := o.RecordResult(context.Background(), contentID, models.Scores{Toxicity: 0.1})
	if err != nil {
		t.Fatalf("RecordResult: %v", err)
	}
	if label != models.LabelSafe {
		t.Fatalf("expected SAFE, got %s", label)
	}
	if store.savedStatus != models.StatusSafe {
		t.Fatalf("expected status SAFE persisted, got %s", store.savedStatus)
	}
	if notifier.calls != 1 || notifier.label != "SAFE" || notifier.contentID != contentID.String() {
		t.Fatalf("unexpected notification: %+v", notifier)
	}
}

func TestRecordResultFlagged(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	o := newOrchestrator(store, notifier)

	label, err := o.RecordResult(context.Background(), uuid.New(), models.Scores{Violence: 0.95})
	if err != nil {
		t.Fatalf("RecordResult: %v", err)
	}
	if label != models.LabelFlagged || store.savedStatus != models.StatusFlagged {
		t.Fatalf("expected FLAGGED, got label=%s status=%s", label, store.savedStatus)
	}
	if store.savedResult.ViolenceScore != 0.95 {
		t.Fatalf("scores not persisted: %+v", store.savedResult)
	}
}

func TestRecordResultDoesNotNotifyOnPersistFailure(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("db down")}
	notifier := &fakeNotifier{}
	o := newOrchestrator(store, notifier)

	if _, err := o.RecordResult(context.Background(), uuid.New(), models.Scores{}); err == nil {
		t.Fatal("expected error when persistence fails")
	}
	if notifier.calls != 0 {
		t.Fatal("DONE must not be sent before the result is committed")
	}
}

func TestOverrideRecordsAudit(t *testing.T) {
	contentID := uuid.New()
	store := &fakeStore{
		content: &models.Content{ID: contentID, Status: models.StatusFlagged},
		result:  &models.ModerationResult{ContentID: contentID, OverallLabel: models.LabelFlagged},
	}
	o := newOrchestrator(store, &fakeNotifier{})

	action, err := o.Override(context.Background(), contentID, "admin-1", models.LabelSafe, "false positive")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if store.updatedStatus != models.StatusSafe {
		t.Fatalf("expected status SAFE, got %s", store.updatedStatus)
	}
	if action.PreviousLabel != "FLAGGED" || action.NewLabel != "SAFE" || action.AdminID != "admin-1" {
		t.Fatalf("unexpected audit record: %+v", action)
	}
}

func TestOverrideMissingContent(t *testing.T) {
	o := newOrchestrator(&fakeStore{}, &fakeNotifier{})

	if _, err := o.Override(context.Background(), uuid.New(), "admin-1", models.LabelSafe, ""); err == nil {
		t.Fatal("expected error for unknown content")
	}
}
