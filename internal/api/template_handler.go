package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"idcard/internal/api/middleware"
	"idcard/internal/card"
	"idcard/internal/database"
	"idcard/internal/seed"
	"idcard/internal/tasks"
)

const popularTemplateLimit = 10

// TemplateHandler serves the template library.
type TemplateHandler struct {
	db       *gorm.DB
	enqueuer TaskEnqueuer
	objects  ObjectStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewTemplateHandler(db *gorm.DB, enqueuer TaskEnqueuer, objects ObjectStore, logger *slog.Logger) *TemplateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateHandler{db: db, enqueuer: enqueuer, objects: objects, logger: logger, now: time.Now}
}

type templateRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	IsDefault   *bool            `json:"is_default"`
	IsPopular   *bool            `json:"is_popular"`
	Design      *json.RawMessage `json:"design"`
}

type templateResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category"`
	IsDefault   bool           `json:"is_default"`
	IsPopular   bool           `json:"is_popular"`
	UsageCount  int            `json:"usage_count"`
	PreviewURL  string         `json:"preview_url,omitempty"`
	Design      datatypes.JSON `json:"design"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func toTemplateResponse(t database.Template) templateResponse {
	return templateResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		IsDefault:   t.IsDefault,
		IsPopular:   t.IsPopular,
		UsageCount:  t.UsageCount,
		PreviewURL:  t.PreviewURL,
		Design:      t.Design,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTemplateResponses(rows []database.Template) []templateResponse {
	out := make([]templateResponse, 0, len(rows))
	for _, t := range rows {
		out = append(out, toTemplateResponse(t))
	}
	return out
}

// decodeDesign validates a submitted design and returns its sanitized JSON form.
func decodeDesign(raw json.RawMessage) (datatypes.JSON, error) {
	var d card.TemplateDesign
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, &card.ConfigurationError{Field: "design", Reason: err.Error()}
	}
	d = sanitizeDesign(d)
	if _, err := card.Prepare(d); err != nil {
		return nil, err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// GET /v1/templates?category=
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context())
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		query = query.Where("category = ?", category)
	}

	var rows []database.Template
	if err := query.Order("usage_count DESC").Order("created_at DESC").Find(&rows).Error; err != nil {
		Internal(c, "failed to list templates")
		return
	}
	c.JSON(http.StatusOK, toTemplateResponses(rows))
}

// GET /v1/templates/popular
func (h *TemplateHandler) PopularTemplates(c *gin.Context) {
	var rows []database.Template
	if err := h.db.WithContext(c.Request.Context()).
		Where("is_popular = ?", true).
		Order("usage_count DESC").
		Limit(popularTemplateLimit).
		Find(&rows).Error; err != nil {
		Internal(c, "failed to list popular templates")
		return
	}
	c.JSON(http.StatusOK, toTemplateResponses(rows))
}

// GET /v1/templates/:id
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	var row database.Template
	if err := h.db.WithContext(c.Request.Context()).First(&row, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "template not found")
			return
		}
		Internal(c, "failed to query template")
		return
	}
	c.JSON(http.StatusOK, toTemplateResponse(row))
}

// POST /v1/templates
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		BadRequest(c, "name is required")
		return
	}
	if req.Design == nil {
		BadRequest(c, "design is required")
		return
	}

	design, err := decodeDesign(*req.Design)
	if err != nil {
		renderFailure(c, err, "failed to encode design")
		return
	}

	row := database.Template{
		Name:     stripMarkup(strings.TrimSpace(*req.Name)),
		Category: "custom",
		Design:   design,
	}
	if req.Description != nil {
		row.Description = stripMarkup(*req.Description)
	}
	if req.Category != nil && strings.TrimSpace(*req.Category) != "" {
		row.Category = strings.TrimSpace(*req.Category)
	}
	if req.IsDefault != nil {
		row.IsDefault = *req.IsDefault
	}
	if req.IsPopular != nil {
		row.IsPopular = *req.IsPopular
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&row).Error; err != nil {
		Internal(c, "failed to create template")
		return
	}
	h.enqueuePreview(c, row.ID)
	c.JSON(http.StatusCreated, toTemplateResponse(row))
}

// PUT /v1/templates/:id
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	ctx := c.Request.Context()
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	var row database.Template
	if err := h.db.WithContext(ctx).First(&row, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "template not found")
			return
		}
		Internal(c, "failed to query template")
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := stripMarkup(strings.TrimSpace(*req.Name))
		if name == "" {
			BadRequest(c, "name must not be empty")
			return
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = stripMarkup(*req.Description)
	}
	if req.Category != nil {
		updates["category"] = strings.TrimSpace(*req.Category)
	}
	if req.IsDefault != nil {
		updates["is_default"] = *req.IsDefault
	}
	if req.IsPopular != nil {
		updates["is_popular"] = *req.IsPopular
	}
	if req.Design != nil {
		design, err := decodeDesign(*req.Design)
		if err != nil {
			renderFailure(c, err, "failed to encode design")
			return
		}
		updates["design"] = design
	}
	if len(updates) == 0 {
		BadRequest(c, "nothing to update")
		return
	}

	if err := h.db.WithContext(ctx).Model(&row).Updates(updates).Error; err != nil {
		Internal(c, "failed to update template")
		return
	}
	if err := h.db.WithContext(ctx).First(&row, "id = ?", row.ID).Error; err != nil {
		Internal(c, "failed to query template")
		return
	}
	if _, ok := updates["design"]; ok {
		h.enqueuePreview(c, row.ID)
	}
	c.JSON(http.StatusOK, toTemplateResponse(row))
}

// DELETE /v1/templates/:id
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	ctx := c.Request.Context()
	var row database.Template
	if err := h.db.WithContext(ctx).First(&row, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "template not found")
			return
		}
		Internal(c, "failed to query template")
		return
	}

	var active int64
	if err := h.db.WithContext(ctx).Model(&database.PrintJob{}).
		Where("template_id = ? AND status IN ?", row.ID, []string{database.JobQueued, database.JobProcessing}).
		Count(&active).Error; err != nil {
		Internal(c, "failed to query print jobs")
		return
	}
	if active > 0 {
		Conflict(c, "template is used by pending print jobs")
		return
	}

	if err := h.db.WithContext(ctx).Delete(&row).Error; err != nil {
		Internal(c, "failed to delete template")
		return
	}
	if row.PreviewURL != "" && h.objects != nil {
		if err := h.objects.DeleteObject(ctx, row.PreviewURL); err != nil {
			middleware.LoggerFromContext(c).Warn("delete template preview failed",
				slog.String("template_id", row.ID), slog.Any("error", err))
		}
	}
	c.Status(http.StatusNoContent)
}

// POST /v1/templates/:id/use
func (h *TemplateHandler) UseTemplate(c *gin.Context) {
	if err := database.IncrementTemplateUsage(c.Request.Context(), h.db, c.Param("id")); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			NotFound(c, "template not found")
			return
		}
		Internal(c, "failed to update template usage")
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /v1/templates/seed?force=true
func (h *TemplateHandler) Seed(c *gin.Context) {
	ctx := c.Request.Context()
	force := c.Query("force") == "true"

	templates, err := seed.SeedTemplates(ctx, h.db, force)
	if err != nil {
		middleware.LoggerFromContext(c).Error("seed templates failed", slog.Any("error", err))
		Internal(c, "failed to seed templates")
		return
	}
	settings, err := seed.InitializeSettings(ctx, h.db, h.now())
	if err != nil {
		middleware.LoggerFromContext(c).Error("initialize settings failed", slog.Any("error", err))
		Internal(c, "failed to initialize settings")
		return
	}

	h.logger.Info("template library seeded",
		slog.Int("templates", templates), slog.Int("settings", settings), slog.Bool("force", force))
	if templates > 0 {
		seeds, _ := seed.Templates()
		for _, s := range seeds {
			h.enqueuePreview(c, s.ID)
		}
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates, "settings": settings})
}

// enqueuePreview schedules a thumbnail render. Failure only costs the preview image.
func (h *TemplateHandler) enqueuePreview(c *gin.Context, templateID string) {
	if h.enqueuer == nil {
		return
	}
	task, err := tasks.NewTemplatePreviewTask(templateID, middleware.GetCorrelationID(c))
	if err == nil {
		_, err = h.enqueuer.Enqueue(task, asynq.MaxRetry(3))
	}
	if err != nil {
		middleware.LoggerFromContext(c).Warn("enqueue template preview failed",
			slog.String("template_id", templateID), slog.Any("error", err))
	}
}
