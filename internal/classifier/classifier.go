package classifier

import (
	"context"
	"errors"

	"github.com/jyothsna-ssv/CrowdShield/internal/models"
)

// ErrEmptyPayload is returned when there is nothing to classify.
var ErrEmptyPayload = errors.New("payload is empty")

// Scorer produces category scores for a piece of content. Implementations
// must be safe for concurrent use.
type Scorer interface {
	Classify(ctx context.Context, kind models.ContentType, payload string) (models.Scores, error)
}
