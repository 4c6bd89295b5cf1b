package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jyothsna-ssv/CrowdShield/internal/metrics"
	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/internal/notify"
	"github.com/jyothsna-ssv/CrowdShield/internal/queue"
	"github.com/jyothsna-ssv/CrowdShield/internal/ratelimit"
	"github.com/jyothsna-ssv/CrowdShield/internal/rules"
	"github.com/jyothsna-ssv/CrowdShield/internal/store"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

const (
	maxTextLength     = 10000
	maxImageURLLength = 2048
	anonymousIdentity = "anonymous"
)

// Store is the persistence surface the HTTP layer needs.
type Store interface {
	CreateContent(ctx context.Context, userID string, kind models.ContentType, text, imageURL string) (*models.Content, error)
	GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error)
	UpdateContentStatus(ctx context.Context, id uuid.UUID, status models.ContentStatus) error
	DeleteContent(ctx context.Context, id uuid.UUID) error
	FlaggedContent(ctx context.Context) ([]models.Content, error)
	ResultByContentID(ctx context.Context, contentID uuid.UUID) (*models.ModerationResult, error)
	AdminActionsByContentID(ctx context.Context, contentID uuid.UUID) ([]models.AdminAction, error)
}

// Queue is the enqueue side of the job transport.
type Queue interface {
	Push(ctx context.Context, queueName string, job queue.Job) error
	Size(ctx context.Context, queueName string) (int64, error)
}

// Notifier pushes progress updates to watchers.
type Notifier interface {
	SendProgress(contentID string, stage notify.Stage, progress int)
	ServeWS(contentID string, w http.ResponseWriter, r *http.Request)
}

// Overrider applies manual verdicts.
type Overrider interface {
	Override(ctx context.Context, contentID uuid.UUID, adminID string, newLabel models.ModerationLabel, note string) (*models.AdminAction, error)
}

// ContentHandler serves the submission and lookup endpoints.
type ContentHandler struct {
	store    Store
	queue    Queue
	notifier Notifier
	limiter  *ratelimit.Limiter
	logger   logging.Logger
	metrics  *metrics.Metrics
}

func NewContentHandler(s Store, q Queue, notifier Notifier, limiter *ratelimit.Limiter, logger logging.Logger, m *metrics.Metrics) *ContentHandler {
	return &ContentHandler{
		store:    s,
		queue:    q,
		notifier: notifier,
		limiter:  limiter,
		logger:   logger,
		metrics:  m,
	}
}

type submitTextRequest struct {
	Text   string `json:"text"`
	UserID string `json:"user_id"`
}

type submitImageRequest struct {
	ImageURL string `json:"image_url"`
	UserID   string `json:"user_id"`
}

// SubmitText accepts a text submission, persists it as PENDING and enqueues a
// moderation job. Validation failures never enqueue anything.
func (h *ContentHandler) SubmitText(c *gin.Context) {
	var req submitTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text is required"})
		return
	}
	if len(text) > maxTextLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text exceeds maximum length"})
		return
	}

	h.submit(c, identity(req.UserID), models.ContentTypeText, text, "")
}

// SubmitImage accepts an image submission by URL.
func (h *ContentHandler) SubmitImage(c *gin.Context) {
	var req submitImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	imageURL := strings.TrimSpace(req.ImageURL)
	if imageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image URL is required"})
		return
	}
	if len(imageURL) > maxImageURLLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image URL exceeds maximum length"})
		return
	}
	if !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image URL must be http or https"})
		return
	}

	h.submit(c, identity(req.UserID), models.ContentTypeImage, "", imageURL)
}

func (h *ContentHandler) submit(c *gin.Context, userID string, kind models.ContentType, text, imageURL string) {
	if !h.limiter.Allow(userID) {
		if h.metrics != nil {
			h.metrics.RateLimitRejections.WithLabelValues(string(kind)).Inc()
		}
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded, try again later"})
		return
	}

	ctx := c.Request.Context()
	content, err := h.store.CreateContent(ctx, userID, kind, text, imageURL)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store content"})
		return
	}

	h.notifier.SendProgress(content.ID.String(), notify.StagePending, notify.ProgressPending)

	job := queue.Job{
		JobID:       uuid.New(),
		ContentID:   content.ID,
		ContentType: kind,
		Text:        text,
		ImageURL:    imageURL,
		Attempts:    0,
	}
	if err := h.queue.Push(ctx, queue.MainQueue, job); err != nil {
		h.logger.WithError(err).Error("Failed to enqueue moderation job")
		if updateErr := h.store.UpdateContentStatus(ctx, content.ID, models.StatusError); updateErr != nil {
			h.logger.WithError(updateErr).Error("Failed to mark content ERROR after enqueue failure")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue moderation job"})
		return
	}

	h.logger.WithFields(logging.Fields{
		"content_id": content.ID,
		"user_id":    userID,
		"type":       kind,
	}).Info("Content submitted for moderation")

	c.JSON(http.StatusCreated, gin.H{
		"content": content,
		"job_id":  job.JobID,
	})
}

// GetContent returns a content record with its moderation result when one
// exists.
func (h *ContentHandler) GetContent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content id"})
		return
	}

	ctx := c.Request.Context()
	content, err := h.store.GetContent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Content not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load content"})
		return
	}

	response := gin.H{"content": content}
	if result, err := h.store.ResultByContentID(ctx, id); err == nil {
		response["result"] = result
	}

	c.JSON(http.StatusOK, response)
}

// WatchProgress upgrades to WebSocket and streams progress for one content id.
func (h *ContentHandler) WatchProgress(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content id"})
		return
	}

	h.notifier.ServeWS(id.String(), c.Writer, c.Request)
}

// RuleHandler serves threshold reads and updates.
type RuleHandler struct {
	engine *rules.Engine
	logger logging.Logger
}

func NewRuleHandler(engine *rules.Engine, logger logging.Logger) *RuleHandler {
	return &RuleHandler{engine: engine, logger: logger}
}

// GetRules returns the active thresholds.
func (h *RuleHandler) GetRules(c *gin.Context) {
	rule, err := h.engine.LatestRule(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load rules")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rules"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rule": rule})
}

// UpdateRules applies a partial threshold update.
func (h *RuleHandler) UpdateRules(c *gin.Context) {
	var update rules.RuleUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	rule, err := h.engine.UpdateRule(c.Request.Context(), update)
	if errors.Is(err, rules.ErrThresholdOutOfRange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to update rules")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rules"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rule": rule})
}

func identity(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return anonymousIdentity
	}
	return userID
}
