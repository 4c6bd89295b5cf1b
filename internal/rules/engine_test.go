package rules

import (
	"context"
	"testing"

	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

type fakeRuleStore struct {
	rule  *models.ModerationRule
	saved *models.ModerationRule
}

func (f *fakeRuleStore) LatestRule(ctx context.Context) (*models.ModerationRule, error) {
	if f.rule == nil {
		return nil, ErrRuleNotFound
	}
	return f.rule, nil
}

func (f *fakeRuleStore) SaveRule(ctx context.Context, rule *models.ModerationRule) error {
	f.saved = rule
	f.rule = rule
	return nil
}

func TestEvaluate(t *testing.T) {
	rule := models.DefaultRule()

	tests := []struct {
		name   string
		scores models.Scores
		want   models.ModerationLabel
	}{
		{"all zero", models.Scores{}, models.LabelSafe},
		{"all at threshold", models.Scores{Toxicity: 0.7, Hate: 0.6, Sexual: 0.6, Violence: 0.6}, models.LabelSafe},
		{"toxicity just above", models.Scores{Toxicity: 0.71}, models.LabelFlagged},
		{"hate just above", models.Scores{Hate: 0.61}, models.LabelFlagged},
		{"sexual just above", models.Scores{Sexual: 0.61}, models.LabelFlagged},
		{"violence just above", models.Scores{Violence: 0.61}, models.LabelFlagged},
		{"all maxed", models.Scores{Toxicity: 1, Hate: 1, Sexual: 1, Violence: 1}, models.LabelFlagged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.scores, rule); got != tt.want {
				t.Fatalf("Evaluate(%+v) = %s, want %s", tt.scores, got, tt.want)
			}
		})
	}
}

func TestLatestRuleFallsBackToDefault(t *testing.T) {
	engine := NewEngine(&fakeRuleStore{}, logging.NewLogger())

	rule, err := engine.LatestRule(context.Background())
	if err != nil {
		t.Fatalf("LatestRule: %v", err)
	}
	want := models.DefaultRule()
	if rule != want {
		t.Fatalf("expected default rule %+v, got %+v", want, rule)
	}
}

func TestUpdateRulePartial(t *testing.T) {
	store := &fakeRuleStore{}
	engine := NewEngine(store, logging.NewLogger())

	hate := 0.5
	rule, err := engine.UpdateRule(context.Background(), RuleUpdate{HateThreshold: &hate})
	if err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}

	if rule.HateThreshold != 0.5 {
		t.Fatalf("hate threshold not updated: %v", rule.HateThreshold)
	}
	if rule.ToxicityThreshold != 0.7 || rule.SexualThreshold != 0.6 || rule.ViolenceThreshold != 0.6 {
		t.Fatalf("omitted thresholds changed: %+v", rule)
	}
	if store.saved == nil {
		t.Fatal("expected the merged rule to be persisted")
	}
}

func TestUpdateRuleRejectsOutOfRange(t *testing.T) {
	engine := NewEngine(&fakeRuleStore{}, logging.NewLogger())

	for _, bad := range []float64{-0.1, 1.1} {
		v := bad
		if _, err := engine.UpdateRule(context.Background(), RuleUpdate{ToxicityThreshold: &v}); err != ErrThresholdOutOfRange {
			t.Fatalf("expected ErrThresholdOutOfRange for %v, got %v", bad, err)
		}
	}
}

func TestClassifyUsesPersistedRule(t *testing.T) {
	store := &fakeRuleStore{rule: &models.ModerationRule{
		ToxicityThreshold: 0.2,
		HateThreshold:     0.9,
		SexualThreshold:   0.9,
		ViolenceThreshold: 0.9,
	}}
	engine := NewEngine(store, logging.NewLogger())

	label, err := engine.Classify(context.Background(), models.Scores{Toxicity: 0.3})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if label != models.LabelFlagged {
		t.Fatalf("expected FLAGGED against tightened thresholds, got %s", label)
	}
}
