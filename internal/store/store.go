package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/internal/rules"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Store provides the durable records behind the moderation pipeline:
// content, results, rules, job tracking and admin actions.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ---- content ----

// CreateContent inserts a new content record in PENDING state. Exactly one of
// text/imageURL is expected to be set, matching kind.
func (s *Store) CreateContent(ctx context.Context, userID string, kind models.ContentType, text, imageURL string) (*models.Content, error) {
	content := &models.Content{
		UserID:      userID,
		Type:        kind,
		TextContent: text,
		ImageURL:    imageURL,
		Status:      models.StatusPending,
	}

	query := `
		INSERT INTO content (user_id, type, text_content, image_url, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		userID, kind, text, imageURL, models.StatusPending,
	).Scan(&content.ID, &content.CreatedAt, &content.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert content: %w", err)
	}
	return content, nil
}

// GetContent retrieves a content record by id.
func (s *Store) GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	query := `
		SELECT id, user_id, type, text_content, image_url, status, created_at, updated_at
		FROM content
		WHERE id = $1
	`
	var c models.Content
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.UserID, &c.Type, &c.TextContent, &c.ImageURL,
		&c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select content: %w", err)
	}
	return &c, nil
}

// UpdateContentStatus sets the lifecycle status of a content record.
func (s *Store) UpdateContentStatus(ctx context.Context, id uuid.UUID, status models.ContentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE content SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// FlaggedContent lists content currently flagged, newest first.
func (s *Store) FlaggedContent(ctx context.Context) ([]models.Content, error) {
	query := `
		SELECT id, user_id, type, text_content, image_url, status, created_at, updated_at
		FROM content
		WHERE status = $1
		ORDER BY updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, models.StatusFlagged)
	if err != nil {
		return nil, fmt.Errorf("select flagged content: %w", err)
	}
	defer rows.Close()

	var out []models.Content
	for rows.Next() {
		var c models.Content
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Type, &c.TextContent, &c.ImageURL,
			&c.Status, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan flagged content: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteContent removes a content record; dependent rows cascade.
func (s *Store) DeleteContent(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM content WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- moderation results ----

// SaveResultAndStatus writes the moderation result and the matching terminal
// content status in a single transaction, so a reader never observes one
// without the other.
func (s *Store) SaveResultAndStatus(ctx context.Context, result *models.ModerationResult, status models.ContentStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin result tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO moderation_results
			(content_id, toxicity_score, hate_score, sexual_score, violence_score, overall_label, raw_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err = tx.QueryRowContext(ctx, query,
		result.ContentID, result.ToxicityScore, result.HateScore,
		result.SexualScore, result.ViolenceScore, result.OverallLabel,
		[]byte(result.RawResponse),
	).Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert moderation result: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE content SET status = $2, updated_at = NOW() WHERE id = $1`,
		result.ContentID, status,
	)
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// ResultByContentID retrieves the moderation result for a content id.
func (s *Store) ResultByContentID(ctx context.Context, contentID uuid.UUID) (*models.ModerationResult, error) {
	query := `
		SELECT id, content_id, toxicity_score, hate_score, sexual_score, violence_score, overall_label, raw_response, created_at
		FROM moderation_results
		WHERE content_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var r models.ModerationResult
	var raw []byte
	err := s.db.QueryRowContext(ctx, query, contentID).Scan(
		&r.ID, &r.ContentID, &r.ToxicityScore, &r.HateScore,
		&r.SexualScore, &r.ViolenceScore, &r.OverallLabel, &raw, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select moderation result: %w", err)
	}
	r.RawResponse = raw
	return &r, nil
}

// ---- moderation rules ----

// LatestRule returns the most recently updated rule set. Prior rule rows are
// retained for audit; each update inserts a fresh row.
func (s *Store) LatestRule(ctx context.Context) (*models.ModerationRule, error) {
	query := `
		SELECT id, toxicity_threshold, hate_threshold, sexual_threshold, violence_threshold, updated_at
		FROM moderation_rules
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var r models.ModerationRule
	err := s.db.QueryRowContext(ctx, query).Scan(
		&r.ID, &r.ToxicityThreshold, &r.HateThreshold,
		&r.SexualThreshold, &r.ViolenceThreshold, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rules.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select latest rule: %w", err)
	}
	return &r, nil
}

// SaveRule persists a rule set as a new row.
func (s *Store) SaveRule(ctx context.Context, rule *models.ModerationRule) error {
	query := `
		INSERT INTO moderation_rules (toxicity_threshold, hate_threshold, sexual_threshold, violence_threshold, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		rule.ToxicityThreshold, rule.HateThreshold,
		rule.SexualThreshold, rule.ViolenceThreshold,
	).Scan(&rule.ID, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// ---- job tracking ----

// UpsertJobTracking records the current queue position of a job, keyed by
// content id. It mirrors the queue envelope for operator visibility and is
// not authoritative.
func (s *Store) UpsertJobTracking(ctx context.Context, jobID, contentID uuid.UUID, attempts int, queueName, lastError string) error {
	query := `
		INSERT INTO moderation_jobs (id, content_id, attempts, queue_name, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (content_id) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			queue_name = EXCLUDED.queue_name,
			last_error = EXCLUDED.last_error,
			updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, jobID, contentID, attempts, queueName, lastError); err != nil {
		return fmt.Errorf("upsert job tracking: %w", err)
	}
	return nil
}

// JobTrackingByContentID retrieves the tracking mirror for a content id.
func (s *Store) JobTrackingByContentID(ctx context.Context, contentID uuid.UUID) (*models.JobTracking, error) {
	query := `
		SELECT id, content_id, attempts, queue_name, last_error, created_at, updated_at
		FROM moderation_jobs
		WHERE content_id = $1
	`
	var j models.JobTracking
	err := s.db.QueryRowContext(ctx, query, contentID).Scan(
		&j.ID, &j.ContentID, &j.Attempts, &j.QueueName, &j.LastError,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select job tracking: %w", err)
	}
	return &j, nil
}

// ---- admin actions ----

// InsertAdminAction records a manual moderation override.
func (s *Store) InsertAdminAction(ctx context.Context, action *models.AdminAction) error {
	query := `
		INSERT INTO admin_actions (content_id, admin_id, previous_label, new_label, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		action.ContentID, action.AdminID, action.PreviousLabel, action.NewLabel, action.Note,
	).Scan(&action.ID, &action.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert admin action: %w", err)
	}
	return nil
}

// AdminActionsByContentID lists override history for a content id, newest
// first.
func (s *Store) AdminActionsByContentID(ctx context.Context, contentID uuid.UUID) ([]models.AdminAction, error) {
	query := `
		SELECT id, content_id, admin_id, previous_label, new_label, note, created_at
		FROM admin_actions
		WHERE content_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("select admin actions: %w", err)
	}
	defer rows.Close()

	var out []models.AdminAction
	for rows.Next() {
		var a models.AdminAction
		if err := rows.Scan(&a.ID, &a.ContentID, &a.AdminID, &a.PreviousLabel, &a.NewLabel, &a.Note, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan admin action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
