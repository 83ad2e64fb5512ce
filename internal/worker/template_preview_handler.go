package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"idcard/internal/card"
	"idcard/internal/database"
	"idcard/internal/metrics"
	"idcard/internal/render"
	"idcard/internal/seed"
	"idcard/internal/storage"
	"idcard/internal/tasks"
)

// Thumbnailer rasterises one card to PNG.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, c render.Card, widthPx int) ([]byte, []render.Warning, error)
}

// TemplatePreviewHandler consumes template:preview tasks.
type TemplatePreviewHandler struct {
	db         *gorm.DB
	storage    Uploader
	thumbnails Thumbnailer
	widthPx    int
	logger     *slog.Logger
}

// NewTemplatePreviewHandler builds the handler.
func NewTemplatePreviewHandler(db *gorm.DB, storage Uploader, thumbnails Thumbnailer, widthPx int, logger *slog.Logger) *TemplatePreviewHandler {
	return &TemplatePreviewHandler{
		db:         db,
		storage:    storage,
		thumbnails: thumbnails,
		widthPx:    widthPx,
		logger:     logger,
	}
}

// ProcessTask implements asynq.Handler.
func (h *TemplatePreviewHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.TemplatePreviewPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal template preview payload failed", slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("template_id", payload.TemplateID),
		slog.String("correlation_id", payload.CorrelationID),
	)
	log.Info("starting template preview task")

	tpl, design, err := database.LoadTemplate(ctx, h.db, payload.TemplateID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		log.Warn("template not found, skipping task")
		return nil
	case card.IsConfigurationError(err):
		log.Error("template design is invalid", slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case err != nil:
		log.Error("query template failed", slog.Any("error", err))
		return err
	}

	settings, err := database.LoadSchoolSettings(ctx, h.db)
	if err != nil {
		log.Error("load school settings failed", slog.Any("error", err))
		return err
	}

	started := time.Now()
	sample := seed.SampleStudent()
	png, warnings, err := h.thumbnails.Thumbnail(ctx, render.Card{Design: design, Student: sample.Record(), Settings: settings}, h.widthPx)
	if err != nil {
		log.Error("render template thumbnail failed", slog.Any("error", err))
		return err
	}
	metrics.ObserveRender(metrics.RendererPreview, 1, len(warnings), started)

	objectName := storage.PreviewObjectKey(tpl.ID)
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(png), int64(len(png)), "image/png"); err != nil {
		log.Error("upload template preview failed", slog.Any("error", err))
		return err
	}

	if err := h.db.WithContext(ctx).Model(&database.Template{}).
		Where("id = ?", tpl.ID).
		Update("preview_url", objectName).Error; err != nil {
		log.Error("update template preview url failed", slog.Any("error", err))
		return err
	}

	log.Info("template preview completed", slog.Int("warnings", len(warnings)))
	return nil
}
