package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const TaskProcessDocument = "documents:process"

type DocumentProcessPayload struct {
	DocumentID string `json:"document_id"`
}

// NewDocumentProcessTask enqueues ingestion of one uploaded document: chunk,
// embed, upsert. Runs on the critical queue since an unprocessed document is
// invisible to retrieval.
func NewDocumentProcessTask(documentID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentProcessPayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// DocumentProcessor is implemented by the document service; the indirection
// keeps this package free of the service wiring.
type DocumentProcessor interface {
	Process(ctx context.Context, documentID string) error
}

type TaskHandler struct {
	documents DocumentProcessor
}

func NewTaskHandler(documents DocumentProcessor) *TaskHandler {
	return &TaskHandler{documents: documents}
}

func (h *TaskHandler) HandleDocumentProcess(ctx context.Context, t *asynq.Task) error {
	var payload DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	slog.Info("Processing document task", "document_id", payload.DocumentID)
	if err := h.documents.Process(ctx, payload.DocumentID); err != nil {
		return fmt.Errorf("document %s: %w", payload.DocumentID, err)
	}
	return nil
}

// Register attaches the handlers to an asynq mux.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskProcessDocument, h.HandleDocumentProcess)
}
