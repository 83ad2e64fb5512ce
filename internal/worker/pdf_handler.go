package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"idcard/internal/card"
	"idcard/internal/database"
	"idcard/internal/errcode"
	"idcard/internal/metrics"
	"idcard/internal/render"
	"idcard/internal/render/document"
	"idcard/internal/storage"
	"idcard/internal/tasks"
)

// Uploader stores generated files.
type Uploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
}

// Printer renders a batch of cards into one PDF.
type Printer interface {
	PrintCards(ctx context.Context, cards []render.Card, opts document.PrintOptions) ([]byte, []render.Warning, error)
}

// PrintTaskHandler consumes card:render and card:render_batch tasks.
type PrintTaskHandler struct {
	db       *gorm.DB
	storage  Uploader
	printer  Printer
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewPrintTaskHandler builds the handler.
func NewPrintTaskHandler(db *gorm.DB, storage Uploader, printer Printer, notifier Notifier, logger *slog.Logger) *PrintTaskHandler {
	return &PrintTaskHandler{
		db:       db,
		storage:  storage,
		printer:  printer,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

type printRun struct {
	objectID      string
	batchID       string
	jobIDs        []string
	options       document.PrintOptions
	correlationID string
}

// ProcessTask implements asynq.Handler.
func (h *PrintTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	switch t.Type() {
	case tasks.TypeCardRender:
		var p tasks.CardRenderPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		return h.run(ctx, printRun{
			objectID:      p.JobID,
			jobIDs:        []string{p.JobID},
			options:       p.Options,
			correlationID: p.CorrelationID,
		})
	case tasks.TypeCardRenderBatch:
		var p tasks.CardRenderBatchPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		return h.run(ctx, printRun{
			objectID:      p.BatchID,
			batchID:       p.BatchID,
			jobIDs:        p.JobIDs,
			options:       p.Options,
			correlationID: p.CorrelationID,
		})
	default:
		return fmt.Errorf("unexpected task type %q: %w", t.Type(), asynq.SkipRetry)
	}
}

func (h *PrintTaskHandler) run(ctx context.Context, r printRun) (retErr error) {
	log := h.logger.With(
		slog.String("correlation_id", r.correlationID),
		slog.String("object_id", r.objectID),
		slog.Int("job_count", len(r.jobIDs)),
	)
	log.Info("starting card print task")

	jobs, err := h.loadJobs(ctx, r.jobIDs)
	if err != nil {
		log.Error("query print jobs failed", slog.Any("error", err))
		return err
	}
	if len(jobs) == 0 {
		log.Warn("print jobs not found, skipping task")
		return nil
	}
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}

	if err := h.setStatus(ctx, ids, map[string]any{
		"status":        database.JobProcessing,
		"error_message": "",
	}); err != nil {
		log.Error("mark jobs processing failed", slog.Any("error", err))
		return err
	}

	defer func() {
		if retErr == nil || len(ids) == 0 {
			return
		}
		if !errors.Is(retErr, asynq.SkipRetry) && !isFinalAsynqAttempt(ctx) {
			return
		}
		h.fail(ctx, log, r, ids, retErr)
	}()

	batch, err := h.cards(ctx, jobs)
	if err != nil {
		log.Error("load card data failed", slog.Any("error", err))
		return err
	}
	for _, rej := range batch.rejected {
		h.reject(ctx, log, r, rej)
	}
	ids = batch.jobIDs
	if len(ids) == 0 {
		return fmt.Errorf("no printable jobs: %w", asynq.SkipRetry)
	}
	cards, templateIDs := batch.cards, batch.templateIDs

	started := time.Now()
	data, warnings, err := h.printer.PrintCards(ctx, cards, r.options)
	if err != nil {
		log.Error("render cards failed", slog.Any("error", err))
		if card.IsConfigurationError(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	placeholders := placeholderIDs(warnings)
	metrics.ObserveRender(metrics.RendererDocument, len(cards), render.CountCode(warnings, errcode.ResourceMissing), started)

	objectName := storage.CardObjectKey(r.objectID)
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		log.Error("upload pdf to minio failed", slog.Any("error", err))
		return err
	}

	completedAt := h.now()
	if err := h.setStatus(ctx, ids, map[string]any{
		"status":       database.JobCompleted,
		"pdf_url":      objectName,
		"completed_at": &completedAt,
	}); err != nil {
		log.Error("mark jobs completed failed", slog.Any("error", err))
		return err
	}

	for _, id := range templateIDs {
		if err := database.IncrementTemplateUsage(ctx, h.db, id); err != nil {
			log.Warn("increment template usage failed", slog.String("template_id", id), slog.Any("error", err))
		}
	}

	notify := PrintJobNotifyMessage{
		Status:        NotifyCompleted,
		JobIDs:        ids,
		BatchID:       r.batchID,
		CorrelationID: r.correlationID,
		ErrorCode:     errcode.OK,
		Pages:         len(cards) * r.options.Normalize().Copies,
	}
	if len(placeholders) > 0 {
		notify.ErrorCode = errcode.ResourceMissing
		notify.ErrorMessage = "some images could not be loaded and were printed as placeholders"
		notify.Placeholders = placeholders
		log.Warn("cards printed with placeholders", slog.Any("elements", placeholders))
	}
	if err := h.notifier.Notify(ctx, notify); err != nil {
		log.Error("publish print notification failed", slog.Any("error", err))
	}

	log.Info("card print task completed", slog.String("object", objectName))
	return nil
}

// loadJobs returns the jobs that still exist, in the order of ids.
func (h *PrintTaskHandler) loadJobs(ctx context.Context, ids []string) ([]database.PrintJob, error) {
	var rows []database.PrintJob
	if err := h.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]database.PrintJob, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	out := make([]database.PrintJob, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// rejectedJob is a job whose card cannot be assembled: its student is gone or its template is broken.
type rejectedJob struct {
	jobID string
	err   error
}

type cardBatch struct {
	jobIDs      []string
	cards       []render.Card
	templateIDs []string
	rejected    []rejectedJob
}

// cards assembles one render.Card per job and the distinct template ids used. Jobs with a
// missing student or an unusable template are rejected individually; only query failures
// fail the whole batch.
func (h *PrintTaskHandler) cards(ctx context.Context, jobs []database.PrintJob) (cardBatch, error) {
	settings, err := database.LoadSchoolSettings(ctx, h.db)
	if err != nil {
		return cardBatch{}, err
	}

	studentIDs := make([]string, len(jobs))
	for i, j := range jobs {
		studentIDs[i] = j.StudentID
	}
	students, err := database.FindStudents(ctx, h.db, studentIDs)
	if err != nil {
		return cardBatch{}, err
	}

	type loaded struct {
		design card.TemplateDesign
		err    error
	}
	designs := map[string]loaded{}
	var out cardBatch
	for _, j := range jobs {
		tpl, ok := designs[j.TemplateID]
		if !ok {
			_, design, err := database.LoadTemplate(ctx, h.db, j.TemplateID)
			if err != nil && !card.IsConfigurationError(err) && !errors.Is(err, database.ErrNotFound) {
				return cardBatch{}, fmt.Errorf("job %s: %w", j.ID, err)
			}
			tpl = loaded{design: design, err: err}
			designs[j.TemplateID] = tpl
		}
		if tpl.err != nil {
			out.rejected = append(out.rejected, rejectedJob{jobID: j.ID, err: tpl.err})
			continue
		}
		student, ok := students[j.StudentID]
		if !ok {
			out.rejected = append(out.rejected, rejectedJob{jobID: j.ID, err: fmt.Errorf("%w: student %q", database.ErrNotFound, j.StudentID)})
			continue
		}
		if !slices.Contains(out.templateIDs, j.TemplateID) {
			out.templateIDs = append(out.templateIDs, j.TemplateID)
		}
		out.jobIDs = append(out.jobIDs, j.ID)
		out.cards = append(out.cards, render.Card{Design: tpl.design, Student: student, Settings: settings})
	}
	return out, nil
}

func (h *PrintTaskHandler) setStatus(ctx context.Context, ids []string, updates map[string]any) error {
	return h.db.WithContext(ctx).Model(&database.PrintJob{}).Where("id IN ?", ids).Updates(updates).Error
}

func (h *PrintTaskHandler) fail(ctx context.Context, log *slog.Logger, r printRun, ids []string, cause error) {
	code := errcode.SystemError
	if card.IsConfigurationError(cause) {
		code = errcode.InvalidTemplate
	}
	h.markFailed(ctx, log, r, ids, code, cause)
}

// reject fails one job of the task while the others still print.
func (h *PrintTaskHandler) reject(ctx context.Context, log *slog.Logger, r printRun, rej rejectedJob) {
	code := errcode.ResourceMissing
	if card.IsConfigurationError(rej.err) {
		code = errcode.InvalidTemplate
	}
	log.Warn("print job rejected", slog.String("job_id", rej.jobID), slog.Any("error", rej.err))
	h.markFailed(ctx, log, r, []string{rej.jobID}, code, rej.err)
}

func (h *PrintTaskHandler) markFailed(ctx context.Context, log *slog.Logger, r printRun, ids []string, code int, cause error) {
	message := strings.TrimSpace(strings.TrimSuffix(cause.Error(), ": "+asynq.SkipRetry.Error()))

	if err := h.setStatus(ctx, ids, map[string]any{
		"status":        database.JobFailed,
		"error_message": message,
	}); err != nil {
		log.Error("update failed jobs", slog.Any("error", err))
	}

	notify := PrintJobNotifyMessage{
		Status:        NotifyError,
		JobIDs:        ids,
		BatchID:       r.batchID,
		CorrelationID: r.correlationID,
		ErrorCode:     code,
		ErrorMessage:  message,
	}
	if err := h.notifier.Notify(ctx, notify); err != nil {
		log.Error("publish print error notification failed", slog.Any("error", err))
	}
}

// placeholderIDs lists the distinct element ids painted as placeholders.
func placeholderIDs(warnings []render.Warning) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, w := range warnings {
		if w.Code != errcode.ResourceMissing || w.ElementID == "" {
			continue
		}
		if _, ok := seen[w.ElementID]; ok {
			continue
		}
		seen[w.ElementID] = struct{}{}
		out = append(out, w.ElementID)
	}
	return out
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
