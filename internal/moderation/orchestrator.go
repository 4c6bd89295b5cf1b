package moderation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/internal/rules"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error)
	SaveResultAndStatus(ctx context.Context, result *models.ModerationResult, status models.ContentStatus) error
	ResultByContentID(ctx context.Context, contentID uuid.UUID) (*models.ModerationResult, error)
	UpdateContentStatus(ctx context.Context, id uuid.UUID, status models.ContentStatus) error
	InsertAdminAction(ctx context.Context, action *models.AdminAction) error
}

// Notifier pushes terminal updates to progress watchers.
type Notifier interface {
	SendCompleted(contentID, label string)
}

// Orchestrator turns classifier scores into a persisted verdict. The result
// row and the content status commit together; the DONE notification goes out
// only after the commit, so watchers never see a verdict the database lost.
type Orchestrator struct {
	engine   *rules.Engine
	store    Store
	notifier Notifier
	logger   logging.Logger
}

func NewOrchestrator(engine *rules.Engine, store Store, notifier Notifier, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		engine:   engine,
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// RecordResult classifies the scores, persists result and status atomically
// and notifies watchers.
func (o *Orchestrator) RecordResult(ctx context.Context, contentID uuid.UUID, scores models.Scores) (models.ModerationLabel, error) {
	label, err := o.engine.Classify(ctx, scores)
	if err != nil {
		return "", fmt.Errorf("classify scores: %w", err)
	}

	status := models.StatusSafe
	if label == models.LabelFlagged {
		status = models.StatusFlagged
	}

	result := &models.ModerationResult{
		ContentID:     contentID,
		ToxicityScore: scores.Toxicity,
		HateScore:     scores.Hate,
		SexualScore:   scores.Sexual,
		ViolenceScore: scores.Violence,
		OverallLabel:  label,
		RawResponse:   scores.Raw,
	}
	if err := o.store.SaveResultAndStatus(ctx, result, status); err != nil {
		return "", fmt.Errorf("persist moderation result: %w", err)
	}

	o.logger.WithFields(logging.Fields{
		"content_id": contentID,
		"label":      label,
	}).Info("Moderation result recorded")

	o.notifier.SendCompleted(contentID.String(), string(label))

	return label, nil
}

// Override applies a manual verdict and records the audit trail. It is the
// only path that moves content out of a terminal status.
func (o *Orchestrator) Override(ctx context.Context, contentID uuid.UUID, adminID string, newLabel models.ModerationLabel, note string) (*models.AdminAction, error) {
	content, err := o.store.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	previous := string(content.Status)
	if result, err := o.store.ResultByContentID(ctx, contentID); err == nil {
		previous = string(result.OverallLabel)
	}

	status := models.StatusSafe
	if newLabel == models.LabelFlagged {
		status = models.StatusFlagged
	}
	if err := o.store.UpdateContentStatus(ctx, contentID, status); err != nil {
		return nil, fmt.Errorf("apply override status: %w", err)
	}

	action := &models.AdminAction{
		ContentID:     contentID,
		AdminID:       adminID,
		PreviousLabel: previous,
		NewLabel:      string(newLabel),
		Note:          note,
	}
	if err := o.store.InsertAdminAction(ctx, action); err != nil {
		return nil, fmt.Errorf("record admin action: %w", err)
	}

	o.logger.WithFields(logging.Fields{
		"content_id":     contentID,
		"admin_id":       adminID,
		"previous_label": previous,
		"new_label":      newLabel,
	}).Info("Admin override applied")

	return action, nil
}
