package tasks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"idcard/internal/render/document"
)

// Task types shared by the API (producer) and the worker (consumer).
const (
	TypeCardRender      = "card:render"
	TypeCardRenderBatch = "card:render_batch"
	TypeTemplatePreview = "template:preview"
)

// CardRenderPayload renders one queued print job.
type CardRenderPayload struct {
	JobID         string                `json:"job_id"`
	Options       document.PrintOptions `json:"options"`
	CorrelationID string                `json:"correlation_id"`
}

// CardRenderBatchPayload renders many print jobs into one PDF, in the given order.
type CardRenderBatchPayload struct {
	BatchID       string                `json:"batch_id"`
	JobIDs        []string              `json:"job_ids"`
	Options       document.PrintOptions `json:"options"`
	CorrelationID string                `json:"correlation_id"`
}

// TemplatePreviewPayload regenerates a template thumbnail.
type TemplatePreviewPayload struct {
	TemplateID    string `json:"template_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewCardRenderTask builds a card:render task.
func NewCardRenderTask(jobID string, opts document.PrintOptions, correlationID string, taskOpts ...asynq.Option) (*asynq.Task, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}
	return newTask(TypeCardRender, CardRenderPayload{JobID: jobID, Options: opts, CorrelationID: correlationID}, taskOpts)
}

// NewCardRenderBatchTask builds a card:render_batch task.
func NewCardRenderBatchTask(batchID string, jobIDs []string, opts document.PrintOptions, correlationID string, taskOpts ...asynq.Option) (*asynq.Task, error) {
	if batchID == "" || len(jobIDs) == 0 {
		return nil, errors.New("batch id and job ids are required")
	}
	return newTask(TypeCardRenderBatch, CardRenderBatchPayload{
		BatchID:       batchID,
		JobIDs:        jobIDs,
		Options:       opts,
		CorrelationID: correlationID,
	}, taskOpts)
}

// NewTemplatePreviewTask builds a template:preview task.
func NewTemplatePreviewTask(templateID, correlationID string, taskOpts ...asynq.Option) (*asynq.Task, error) {
	if templateID == "" {
		return nil, errors.New("template id is required")
	}
	return newTask(TypeTemplatePreview, TemplatePreviewPayload{TemplateID: templateID, CorrelationID: correlationID}, taskOpts)
}

func newTask(typeName string, payload any, opts []asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typeName, err)
	}
	return asynq.NewTask(typeName, data, opts...), nil
}
