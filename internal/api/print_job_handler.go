package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"idcard/internal/api/middleware"
	"idcard/internal/database"
	"idcard/internal/render/document"
	"idcard/internal/tasks"
)

const (
	maxJobsPerRequest = 500
	downloadLinkTTL   = 5 * time.Minute
)

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ObjectStore is the part of the object storage client used by the API.
type ObjectStore interface {
	GeneratePresignedURL(ctx context.Context, objectKey, filename string, duration time.Duration) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// PrintJobHandler queues cards for the print worker.
type PrintJobHandler struct {
	db       *gorm.DB
	enqueuer TaskEnqueuer
	objects  ObjectStore
	maxRetry int
}

func NewPrintJobHandler(db *gorm.DB, enqueuer TaskEnqueuer, objects ObjectStore, maxRetry int) *PrintJobHandler {
	if maxRetry < 0 {
		maxRetry = 0
	}
	return &PrintJobHandler{db: db, enqueuer: enqueuer, objects: objects, maxRetry: maxRetry}
}

type createPrintJobsRequest struct {
	TemplateID string                `json:"template_id" binding:"required"`
	StudentIDs []string              `json:"student_ids" binding:"required"`
	Priority   int                   `json:"priority"`
	Options    document.PrintOptions `json:"options"`
}

type printJobResponse struct {
	ID           string                `json:"id"`
	BatchID      string                `json:"batch_id,omitempty"`
	StudentID    string                `json:"student_id"`
	TemplateID   string                `json:"template_id"`
	Status       string                `json:"status"`
	Priority     int                   `json:"priority"`
	Options      document.PrintOptions `json:"options"`
	PdfURL       string                `json:"pdf_url,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

func toPrintJobResponse(j database.PrintJob) printJobResponse {
	var opts document.PrintOptions
	if len(j.PrinterSettings) > 0 {
		_ = json.Unmarshal(j.PrinterSettings, &opts)
	}
	return printJobResponse{
		ID:           j.ID,
		BatchID:      j.BatchID,
		StudentID:    j.StudentID,
		TemplateID:   j.TemplateID,
		Status:       j.Status,
		Priority:     j.Priority,
		Options:      opts.Normalize(),
		PdfURL:       j.PdfURL,
		ErrorMessage: j.ErrorMessage,
		CompletedAt:  j.CompletedAt,
		CreatedAt:    j.CreatedAt,
	}
}

// dedupe drops blank and repeated ids, keeping first occurrences in order.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// POST /v1/print-jobs
// One student yields a card:render task; several share one card:render_batch task and one PDF.
func (h *PrintJobHandler) CreatePrintJobs(c *gin.Context) {
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	var req createPrintJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	studentIDs := dedupe(req.StudentIDs)
	if len(studentIDs) == 0 {
		BadRequest(c, "student_ids must not be empty")
		return
	}
	if len(studentIDs) > maxJobsPerRequest {
		BadRequest(c, "too many students in one request")
		return
	}
	opts := req.Options.Normalize()

	if _, _, err := database.LoadTemplate(ctx, h.db, req.TemplateID); err != nil {
		renderFailure(c, err, "failed to query template")
		return
	}
	if _, err := database.LoadStudents(ctx, h.db, studentIDs); err != nil {
		renderFailure(c, err, "failed to query students")
		return
	}

	settings, err := json.Marshal(opts)
	if err != nil {
		Internal(c, "failed to encode printer settings")
		return
	}
	batchID := ""
	if len(studentIDs) > 1 {
		batchID = uuid.NewString()
	}

	jobs := make([]database.PrintJob, len(studentIDs))
	for i, sid := range studentIDs {
		jobs[i] = database.PrintJob{
			BatchID:         batchID,
			StudentID:       sid,
			TemplateID:      req.TemplateID,
			Status:          database.JobQueued,
			Priority:        req.Priority,
			PrinterSettings: datatypes.JSON(settings),
		}
	}
	if err := h.db.WithContext(ctx).Create(&jobs).Error; err != nil {
		log.Error("create print jobs failed", slog.Any("error", err))
		Internal(c, "failed to create print jobs")
		return
	}
	jobIDs := make([]string, len(jobs))
	for i, j := range jobs {
		jobIDs[i] = j.ID
	}

	correlationID := middleware.GetCorrelationID(c)
	var task *asynq.Task
	if batchID == "" {
		task, err = tasks.NewCardRenderTask(jobIDs[0], opts, correlationID)
	} else {
		task, err = tasks.NewCardRenderBatchTask(batchID, jobIDs, opts, correlationID)
	}
	if err != nil {
		Internal(c, "failed to build print task")
		return
	}

	info, err := h.enqueuer.Enqueue(task, asynq.MaxRetry(h.maxRetry))
	if err != nil {
		log.Error("enqueue print task failed", slog.Any("error", err))
		if uerr := h.db.WithContext(ctx).Model(&database.PrintJob{}).
			Where("id IN ?", jobIDs).
			Updates(map[string]any{"status": database.JobFailed, "error_message": "enqueue failed"}).Error; uerr != nil {
			log.Error("mark unqueued jobs failed", slog.Any("error", uerr))
		}
		Internal(c, "failed to enqueue print task")
		return
	}

	log.Info("print task enqueued",
		slog.String("task_id", info.ID),
		slog.String("batch_id", batchID),
		slog.Int("jobs", len(jobIDs)),
	)
	c.JSON(http.StatusAccepted, gin.H{
		"task_id":  info.ID,
		"batch_id": batchID,
		"job_ids":  jobIDs,
		"status":   database.JobQueued,
	})
}

// GET /v1/print-jobs?status=&batch_id=
func (h *PrintJobHandler) ListPrintJobs(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context())
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		query = query.Where("status = ?", status)
	}
	if batchID := strings.TrimSpace(c.Query("batch_id")); batchID != "" {
		query = query.Where("batch_id = ?", batchID)
	}
	limit := min(positiveQueryInt(c, "limit", 50), maxPageSize)

	var rows []database.PrintJob
	if err := query.Order("priority DESC").Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		Internal(c, "failed to list print jobs")
		return
	}
	out := make([]printJobResponse, 0, len(rows))
	for _, j := range rows {
		out = append(out, toPrintJobResponse(j))
	}
	c.JSON(http.StatusOK, out)
}

func (h *PrintJobHandler) load(c *gin.Context) (database.PrintJob, bool) {
	var job database.PrintJob
	if err := h.db.WithContext(c.Request.Context()).First(&job, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "print job not found")
			return job, false
		}
		Internal(c, "failed to query print job")
		return job, false
	}
	return job, true
}

// GET /v1/print-jobs/:id
func (h *PrintJobHandler) GetPrintJob(c *gin.Context) {
	job, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPrintJobResponse(job))
}

// GET /v1/print-jobs/:id/download-link
func (h *PrintJobHandler) GetDownloadLink(c *gin.Context) {
	job, ok := h.load(c)
	if !ok {
		return
	}
	if job.Status != database.JobCompleted || job.PdfURL == "" {
		Conflict(c, "print job is not completed")
		return
	}

	filename := "id-card-" + job.ID + ".pdf"
	if job.BatchID != "" {
		filename = "id-cards-" + job.BatchID + ".pdf"
	}
	url, err := h.objects.GeneratePresignedURL(c.Request.Context(), job.PdfURL, filename, downloadLinkTTL)
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate presigned url failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(downloadLinkTTL.Seconds())})
}
