package classifier

import (
	"context"
	"errors"

	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

// Fallback prefers the remote scorer and degrades to the heuristic on any
// remote failure. The pipeline keeps moderating when the provider is down,
// rate limited or misconfigured; only an empty payload is a hard error.
type Fallback struct {
	remote Scorer
	local  Scorer
	logger logging.Logger
}

// NewFallback builds the production scorer chain. remote may be nil when no
// API key is configured, in which case every call goes to the local scorer.
func NewFallback(remote, local Scorer, logger logging.Logger) *Fallback {
	return &Fallback{remote: remote, local: local, logger: logger}
}

func (f *Fallback) Classify(ctx context.Context, kind models.ContentType, payload string) (models.Scores, error) {
	if f.remote == nil {
		return f.local.Classify(ctx, kind, payload)
	}

	scores, err := f.remote.Classify(ctx, kind, payload)
	if err == nil {
		return scores, nil
	}
	if errors.Is(err, ErrEmptyPayload) {
		return models.Scores{}, err
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		f.logger.Warn("Moderation provider rate limited, falling back to heuristic scorer")
	case errors.Is(err, ErrAuth):
		f.logger.Error("Moderation provider rejected credentials, falling back to heuristic scorer")
	default:
		f.logger.WithField("error", err.Error()).Warn("Moderation provider call failed, falling back to heuristic scorer")
	}

	return f.local.Classify(ctx, kind, payload)
}
