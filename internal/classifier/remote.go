package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

var (
	// ErrAuth means the provider rejected the API key. Not retried.
	ErrAuth = errors.New("moderation provider rejected credentials")

	// ErrRateLimited means the provider returned 429. Not retried; callers
	// fall back to the local scorer instead of waiting out the limit.
	ErrRateLimited = errors.New("moderation provider rate limit exceeded")
)

// APIError carries a non-2xx provider status that is not auth or rate limit.
type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("moderation provider returned status %d", e.StatusCode)
}

// RemoteConfig configures the hosted moderation client.
type RemoteConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRemoteConfig matches the provider defaults: 5s request timeout,
// two retries with backoff starting at 2s.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		BaseURL:    "https://api.openai.com/v1",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		BaseDelay:  2 * time.Second,
	}
}

// Remote scores content through a hosted moderations endpoint. Only 5xx
// responses are retried; 429 and 401 surface immediately as typed errors so
// the caller can fall back without burning the retry budget.
type Remote struct {
	cfg      RemoteConfig
	client   *http.Client
	executor failsafe.Executor[*http.Response]
	logger   logging.Logger
}

func NewRemote(cfg RemoteConfig, logger logging.Logger) *Remote {
	defaults := DefaultRemoteConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, 30*time.Second).
		WithMaxRetries(cfg.MaxRetries).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode >= 500 && resp.StatusCode < 600
		}).
		Build()

	return &Remote{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		executor: failsafe.With(retry),
		logger:   logger,
	}
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// Classify posts the payload to the provider's moderations endpoint. Image
// content is submitted by URL; the endpoint shape is the same for both kinds.
func (r *Remote) Classify(ctx context.Context, kind models.ContentType, payload string) (models.Scores, error) {
	if payload == "" {
		return models.Scores{}, ErrEmptyPayload
	}

	body, err := json.Marshal(moderationRequest{Input: payload})
	if err != nil {
		return models.Scores{}, fmt.Errorf("marshal moderation request: %w", err)
	}

	resp, err := r.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/moderations", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			// Drain so the retried connection can be reused.
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		return resp, nil
	})
	if err != nil {
		return models.Scores{}, fmt.Errorf("call moderation provider: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return models.Scores{}, ErrAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		return models.Scores{}, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return models.Scores{}, &APIError{StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Scores{}, fmt.Errorf("read moderation response: %w", err)
	}

	var parsed moderationResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return models.Scores{}, fmt.Errorf("decode moderation response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return models.Scores{}, fmt.Errorf("moderation response has no results")
	}

	scores := mapCategoryScores(parsed.Results[0].CategoryScores)
	scores.Raw = json.RawMessage(raw)

	r.logger.WithFields(logging.Fields{
		"kind":     kind,
		"toxicity": scores.Toxicity,
		"hate":     scores.Hate,
		"sexual":   scores.Sexual,
		"violence": scores.Violence,
	}).Info("Remote moderation scores")

	return scores, nil
}

// mapCategoryScores folds the provider's category taxonomy into the four
// internal categories. Toxicity takes the higher of hate and harassment;
// hate maps from the threatening subcategory.
func mapCategoryScores(categories map[string]float64) models.Scores {
	toxicity := categories["hate"]
	if harassment := categories["harassment"]; harassment > toxicity {
		toxicity = harassment
	}
	return models.Scores{
		Toxicity: toxicity,
		Hate:     categories["hate/threatening"],
		Sexual:   categories["sexual"],
		Violence: categories["violence"],
	}
}
