package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ContentType distinguishes the payload carried by a content record.
type ContentType string

const (
	ContentTypeText  ContentType = "TEXT"
	ContentTypeImage ContentType = "IMAGE"
)

// ContentStatus is the lifecycle state of a content record. Transitions are
// forward-only: PENDING -> PROCESSING -> {SAFE, FLAGGED, ERROR}. Admin
// override is the only audited exception.
type ContentStatus string

const (
	StatusPending    ContentStatus = "PENDING"
	StatusProcessing ContentStatus = "PROCESSING"
	StatusSafe       ContentStatus = "SAFE"
	StatusFlagged    ContentStatus = "FLAGGED"
	StatusError      ContentStatus = "ERROR"
)

// ModerationLabel is the binary verdict produced by the rule engine.
type ModerationLabel string

const (
	LabelSafe    ModerationLabel = "SAFE"
	LabelFlagged ModerationLabel = "FLAGGED"
)

// Content is a user submission awaiting or holding a moderation verdict.
// Exactly one of TextContent/ImageURL is populated, matching Type.
type Content struct {
	ID          uuid.UUID     `json:"id"`
	UserID      string        `json:"user_id"`
	Type        ContentType   `json:"type"`
	TextContent string        `json:"text_content,omitempty"`
	ImageURL    string        `json:"image_url,omitempty"`
	Status      ContentStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Payload returns the classifier input for the content's kind.
func (c *Content) Payload() string {
	if c.Type == ContentTypeImage {
		return c.ImageURL
	}
	return c.TextContent
}

// Scores holds the four category probabilities returned by a classifier,
// each in [0, 1], plus the raw provider payload for diagnostics.
type Scores struct {
	Toxicity float64         `json:"toxicity"`
	Hate     float64         `json:"hate"`
	Sexual   float64         `json:"sexual"`
	Violence float64         `json:"violence"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// ModerationResult is the persisted outcome of classifying one content item.
type ModerationResult struct {
	ID            uuid.UUID       `json:"id"`
	ContentID     uuid.UUID       `json:"content_id"`
	ToxicityScore float64         `json:"toxicity_score"`
	HateScore     float64         `json:"hate_score"`
	SexualScore   float64         `json:"sexual_score"`
	ViolenceScore float64         `json:"violence_score"`
	OverallLabel  ModerationLabel `json:"overall_label"`
	RawResponse   json.RawMessage `json:"raw_response,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ModerationRule holds the active thresholds. A score strictly above its
// threshold flags the content.
type ModerationRule struct {
	ID                int64     `json:"id"`
	ToxicityThreshold float64   `json:"toxicity_threshold"`
	HateThreshold     float64   `json:"hate_threshold"`
	SexualThreshold   float64   `json:"sexual_threshold"`
	ViolenceThreshold float64   `json:"violence_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultRule returns the thresholds used before any rule has been persisted.
func DefaultRule() ModerationRule {
	return ModerationRule{
		ToxicityThreshold: 0.7,
		HateThreshold:     0.6,
		SexualThreshold:   0.6,
		ViolenceThreshold: 0.6,
	}
}

// JobTracking mirrors in-flight queue state for operator visibility. The
// queue envelope stays authoritative; this record is observability only.
type JobTracking struct {
	ID        uuid.UUID `json:"id"`
	ContentID uuid.UUID `json:"content_id"`
	Attempts  int       `json:"attempts"`
	QueueName string    `json:"queue_name"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdminAction records a manual moderation override.
type AdminAction struct {
	ID            uuid.UUID `json:"id"`
	ContentID     uuid.UUID `json:"content_id"`
	AdminID       string    `json:"admin_id"`
	PreviousLabel string    `json:"previous_label"`
	NewLabel      string    `json:"new_label"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
