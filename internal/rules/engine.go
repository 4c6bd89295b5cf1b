package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

var (
	// ErrThresholdOutOfRange is returned when an update carries a threshold
	// outside [0, 1].
	ErrThresholdOutOfRange = errors.New("threshold must be between 0.0 and 1.0")

	// ErrRuleNotFound is returned by RuleStore implementations when no rule
	// row exists yet.
	ErrRuleNotFound = errors.New("no moderation rule configured")
)

// RuleStore persists threshold rule sets. ErrNotFound from LatestRule means
// no rule has ever been configured.
type RuleStore interface {
	LatestRule(ctx context.Context) (*models.ModerationRule, error)
	SaveRule(ctx context.Context, rule *models.ModerationRule) error
}

// RuleUpdate carries a partial threshold update; nil fields keep the
// existing values.
type RuleUpdate struct {
	ToxicityThreshold *float64 `json:"toxicity_threshold,omitempty"`
	HateThreshold     *float64 `json:"hate_threshold,omitempty"`
	SexualThreshold   *float64 `json:"sexual_threshold,omitempty"`
	ViolenceThreshold *float64 `json:"violence_threshold,omitempty"`
}

// Engine turns continuous category scores into a binary verdict using the
// latest persisted rule set.
type Engine struct {
	store  RuleStore
	logger logging.Logger
}

func NewEngine(store RuleStore, logger logging.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Evaluate returns FLAGGED when any score strictly exceeds its threshold.
// The four categories are independent OR'd triggers; there is no combined
// or weighted scoring.
func Evaluate(scores models.Scores, rule models.ModerationRule) models.ModerationLabel {
	flagged := scores.Toxicity > rule.ToxicityThreshold ||
		scores.Hate > rule.HateThreshold ||
		scores.Sexual > rule.SexualThreshold ||
		scores.Violence > rule.ViolenceThreshold

	if flagged {
		return models.LabelFlagged
	}
	return models.LabelSafe
}

// Classify evaluates scores against the latest rule.
func (e *Engine) Classify(ctx context.Context, scores models.Scores) (models.ModerationLabel, error) {
	rule, err := e.LatestRule(ctx)
	if err != nil {
		return "", err
	}

	label := Evaluate(scores, rule)

	e.logger.WithFields(logging.Fields{
		"toxicity": scores.Toxicity,
		"hate":     scores.Hate,
		"sexual":   scores.Sexual,
		"violence": scores.Violence,
		"label":    label,
	}).Info("Rule engine evaluation")

	return label, nil
}

// LatestRule returns the most recently updated rule set, or the built-in
// defaults when none has been persisted.
func (e *Engine) LatestRule(ctx context.Context) (models.ModerationRule, error) {
	rule, err := e.store.LatestRule(ctx)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return models.DefaultRule(), nil
		}
		return models.ModerationRule{}, fmt.Errorf("load latest rule: %w", err)
	}
	return *rule, nil
}

// UpdateRule applies a partial update on top of the latest rule and persists
// the merged set. Provided values are validated defensively even though the
// submission boundary validates too.
func (e *Engine) UpdateRule(ctx context.Context, update RuleUpdate) (models.ModerationRule, error) {
	for _, v := range []*float64{update.ToxicityThreshold, update.HateThreshold, update.SexualThreshold, update.ViolenceThreshold} {
		if v != nil && (*v < 0.0 || *v > 1.0) {
			return models.ModerationRule{}, ErrThresholdOutOfRange
		}
	}

	rule, err := e.LatestRule(ctx)
	if err != nil {
		return models.ModerationRule{}, err
	}

	if update.ToxicityThreshold != nil {
		rule.ToxicityThreshold = *update.ToxicityThreshold
	}
	if update.HateThreshold != nil {
		rule.HateThreshold = *update.HateThreshold
	}
	if update.SexualThreshold != nil {
		rule.SexualThreshold = *update.SexualThreshold
	}
	if update.ViolenceThreshold != nil {
		rule.ViolenceThreshold = *update.ViolenceThreshold
	}

	if err := e.store.SaveRule(ctx, &rule); err != nil {
		return models.ModerationRule{}, fmt.Errorf("save rule: %w", err)
	}

	e.logger.WithFields(logging.Fields{
		"toxicity_threshold": rule.ToxicityThreshold,
		"hate_threshold":     rule.HateThreshold,
		"sexual_threshold":   rule.SexualThreshold,
		"violence_threshold": rule.ViolenceThreshold,
	}).Info("Updated moderation rule")

	return rule, nil
}
