package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/internal/queue"
	"github.com/jyothsna-ssv/CrowdShield/internal/store"
	"github.com/jyothsna-ssv/CrowdShield/pkg/auth"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

// AdminConfig carries the operator credentials and token settings.
type AdminConfig struct {
	Username     string
	PasswordHash string
	JWTSecret    []byte
	TokenTTL     time.Duration
}

// AdminHandler serves login, review and override endpoints.
type AdminHandler struct {
	cfg       AdminConfig
	store     Store
	queue     Queue
	overrider Overrider
	logger    logging.Logger
}

func NewAdminHandler(cfg AdminConfig, s Store, q Queue, overrider Overrider, logger logging.Logger) *AdminHandler {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &AdminHandler{
		cfg:       cfg,
		store:     s,
		queue:     q,
		overrider: overrider,
		logger:    logger,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges operator credentials for a bearer token.
func (h *AdminHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	if req.Username != h.cfg.Username || !auth.CheckPassword(req.Password, h.cfg.PasswordHash) {
		h.logger.WithField("username", req.Username).Warn("Failed admin login")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := auth.GenerateJWT(req.Username, "admin", h.cfg.JWTSecret, h.cfg.TokenTTL)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue admin token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(h.cfg.TokenTTL.Seconds()),
	})
}

// ListFlagged returns content awaiting human review, newest first.
func (h *AdminHandler) ListFlagged(c *gin.Context) {
	flagged, err := h.store.FlaggedContent(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list flagged content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list flagged content"})
		return
	}
	if flagged == nil {
		flagged = []models.Content{}
	}
	c.JSON(http.StatusOK, gin.H{"content": flagged})
}

type overrideRequest struct {
	Label models.ModerationLabel `json:"label"`
	Note  string                 `json:"note"`
}

// Override applies a manual verdict to a content item.
func (h *AdminHandler) Override(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content id"})
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if req.Label != models.LabelSafe && req.Label != models.LabelFlagged {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Label must be SAFE or FLAGGED"})
		return
	}

	adminID := c.GetString("admin_id")
	action, err := h.overrider.Override(c.Request.Context(), id, adminID, req.Label, req.Note)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Content not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to apply override")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply override"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"action": action})
}

// History returns the override audit trail for a content item.
func (h *AdminHandler) History(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content id"})
		return
	}

	actions, err := h.store.AdminActionsByContentID(c.Request.Context(), id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load admin actions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load admin actions"})
		return
	}
	if actions == nil {
		actions = []models.AdminAction{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

// DeleteContent removes a content record and its dependent rows.
func (h *AdminHandler) DeleteContent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content id"})
		return
	}

	err = h.store.DeleteContent(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Content not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete content"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// QueueStats reports the depth of each moderation queue.
func (h *AdminHandler) QueueStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats := gin.H{}
	for _, name := range []string{queue.MainQueue, queue.RetryQueue, queue.DLQ} {
		size, err := h.queue.Size(ctx, name)
		if err != nil {
			h.logger.WithError(err).Error("Failed to read queue size")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read queue sizes"})
			return
		}
		stats[name] = size
	}
	c.JSON(http.StatusOK, gin.H{"queues": stats})
}

// RegisterRoutes wires the public and admin API onto the router.
func RegisterRoutes(router *gin.Engine, content *ContentHandler, rules *RuleHandler, admin *AdminHandler, jwtSecret []byte) {
	api := router.Group("/api")
	{
		api.POST("/content/text", content.SubmitText)
		api.POST("/content/image", content.SubmitImage)
		api.GET("/content/:id", content.GetContent)
		api.GET("/rules", rules.GetRules)
		api.POST("/admin/login", admin.Login)
	}

	protected := api.Group("")
	protected.Use(auth.JWTAuthMiddleware(jwtSecret))
	{
		protected.POST("/rules", rules.UpdateRules)
		protected.GET("/admin/flagged", admin.ListFlagged)
		protected.POST("/admin/content/:id/override", admin.Override)
		protected.GET("/admin/content/:id/history", admin.History)
		protected.DELETE("/admin/content/:id", admin.DeleteContent)
		protected.GET("/admin/queues", admin.QueueStats)
	}

	router.GET("/ws/content/:id", content.WatchProgress)
}
