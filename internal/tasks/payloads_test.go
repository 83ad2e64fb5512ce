package tasks

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"idcard/internal/render/document"
)

func TestNewCardRenderBatchTask(t *testing.T) {
	opts := document.PrintOptions{Copies: 2, ColorMode: document.ColorModeGrayscale, Quality: document.QualityDraft}
	task, err := NewCardRenderBatchTask("batch-1", []string{"j1", "j2"}, opts, "cid")
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != TypeCardRenderBatch {
		t.Fatalf("unexpected type %q", task.Type())
	}
	var got CardRenderBatchPayload
	if err := json.Unmarshal(task.Payload(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := CardRenderBatchPayload{BatchID: "batch-1", JobIDs: []string{"j1", "j2"}, Options: opts, CorrelationID: "cid"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestNewTasks_RequireIDs(t *testing.T) {
	if _, err := NewCardRenderTask("", document.DefaultPrintOptions(), ""); err == nil {
		t.Fatalf("expected error for empty job id")
	}
	if _, err := NewCardRenderBatchTask("b", nil, document.DefaultPrintOptions(), ""); err == nil {
		t.Fatalf("expected error for empty batch")
	}
	if _, err := NewTemplatePreviewTask("", ""); err == nil {
		t.Fatalf("expected error for empty template id")
	}
}
