package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docrag-platform/internal/queue"
	"docrag-platform/internal/telemetry"
	"docrag-platform/models"
	"docrag-platform/utils"
)

// ErrDocumentNotFound is returned for unknown document ids.
var ErrDocumentNotFound = errors.New("document not found")

// BatchEmbedder is the embedding dependency of document ingestion.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	IsAvailable() bool
}

// DocumentService owns the document lifecycle: extract, archive, chunk,
// embed, index. Documents above syncLimit bytes are handed to the background
// queue; smaller ones process inside the upload request.
type DocumentService struct {
	collection *mongo.Collection
	extractor  *ExtractionService
	chunker    *ChunkerService
	embedder   BatchEmbedder
	vectors    *VectorStore

	asynqClient *asynq.Client
	syncLimit   int64
	embedModel  string
	metrics     *telemetry.Metrics
}

func NewDocumentService(
	db *mongo.Database,
	extractor *ExtractionService,
	chunker *ChunkerService,
	embedder BatchEmbedder,
	vectors *VectorStore,
	asynqClient *asynq.Client,
	syncLimit int64,
	embedModel string,
	metrics *telemetry.Metrics,
) *DocumentService {
	return &DocumentService{
		collection:  db.Collection("documents"),
		extractor:   extractor,
		chunker:     chunker,
		embedder:    embedder,
		vectors:     vectors,
		asynqClient: asynqClient,
		syncLimit:   syncLimit,
		embedModel:  embedModel,
		metrics:     metrics,
	}
}

// Ingest accepts an upload, archives the extracted text, and either processes
// it inline or enqueues it. The returned document carries the final status
// for the sync path and "pending" for the async path.
func (s *DocumentService) Ingest(ctx context.Context, filename string, content []byte) (*models.Document, error) {
	text, err := s.extractor.Extract(filename, content)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	archived, compression, err := utils.CompressText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to archive text: %w", err)
	}

	doc := &models.Document{
		ID:           uuid.NewString(),
		Filename:     filename,
		FileType:     fileType(filename),
		SizeBytes:    int64(len(content)),
		Status:       models.StatusPending,
		UploadedAt:   time.Now(),
		ArchivedText: archived,
		Compression:  string(compression),
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	if s.asynqClient != nil && doc.SizeBytes > s.syncLimit {
		task, err := queue.NewDocumentProcessTask(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to build processing task: %w", err)
		}
		if _, err := s.asynqClient.EnqueueContext(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to enqueue document: %w", err)
		}
		slog.Info("Document queued for background processing",
			"document_id", doc.ID, "size_bytes", doc.SizeBytes)
		return doc, nil
	}

	if err := s.Process(ctx, doc.ID); err != nil {
		return nil, err
	}
	return s.Get(ctx, doc.ID)
}

// Process runs chunk -> embed -> upsert for a stored document. Safe to rerun:
// chunk ids are deterministic so a retry overwrites rather than duplicates.
func (s *DocumentService) Process(ctx context.Context, documentID string) error {
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.setStatus(ctx, documentID, models.StatusProcessing, ""); err != nil {
		return err
	}

	text, err := utils.DecompressText(doc.ArchivedText, utils.CompressionAlgorithm(doc.Compression))
	if err != nil {
		return s.fail(ctx, documentID, fmt.Errorf("failed to restore archived text: %w", err))
	}

	chunks := s.chunker.ChunkDocument(documentID, text)
	if len(chunks) == 0 {
		return s.fail(ctx, documentID, fmt.Errorf("document produced no chunks"))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return s.fail(ctx, documentID, fmt.Errorf("embedding failed: %w", err))
	}

	entries := make([]models.ChunkIndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = models.ChunkIndexEntry{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Index:      c.Index,
			Text:       c.Text,
			Vector:     vectors[i],
			Model:      s.embedModel,
		}
	}
	if err := s.vectors.Upsert(ctx, entries); err != nil {
		return s.fail(ctx, documentID, fmt.Errorf("vector upsert failed: %w", err))
	}

	update := bson.M{"$set": bson.M{
		"status":       models.StatusCompleted,
		"chunk_count":  len(chunks),
		"processed_at": time.Now(),
		"error":        "",
	}}
	if _, err := s.collection.UpdateOne(ctx, bson.M{"_id": documentID}, update); err != nil {
		return fmt.Errorf("failed to finalize document: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordDocumentProcessed(models.StatusCompleted)
	}
	slog.Info("Document processed", "document_id", documentID, "chunks", len(chunks))
	return nil
}

// Get loads one document's metadata.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	err := s.collection.FindOne(ctx, bson.M{"_id": documentID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &doc, nil
}

// List returns document metadata newest first, without the archived text.
func (s *DocumentService) List(ctx context.Context) ([]models.Document, error) {
	opts := options.Find().
		SetSort(bson.M{"uploaded_at": -1}).
		SetProjection(bson.M{"archived_text": 0})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

// Delete removes a document's vectors first, then its metadata. Vector
// deletion failures abort the whole operation so no orphaned chunks remain
// searchable for a document that no longer exists.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	if _, err := s.Get(ctx, documentID); err != nil {
		return err
	}
	if err := s.vectors.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to remove document vectors: %w", err)
	}
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": documentID}); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Stats reports document counts by status plus the total indexed chunks.
func (s *DocumentService) Stats(ctx context.Context) (map[string]interface{}, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate documents: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}

	byStatus := make(map[string]int64, len(rows))
	for _, row := range rows {
		byStatus[row.Status] = row.Count
	}

	chunkCount, err := s.vectors.Stats(ctx)
	if err != nil {
		slog.Warn("Failed to count indexed chunks", "error", err)
		chunkCount = -1
	}

	return map[string]interface{}{
		"documents_by_status": byStatus,
		"indexed_chunks":      chunkCount,
	}, nil
}

func (s *DocumentService) setStatus(ctx context.Context, documentID, status, errMsg string) error {
	update := bson.M{"$set": bson.M{"status": status, "error": errMsg}}
	if _, err := s.collection.UpdateOne(ctx, bson.M{"_id": documentID}, update); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}

// fail marks the document failed and returns the original error so asynq
// retries still happen.
func (s *DocumentService) fail(ctx context.Context, documentID string, cause error) error {
	if err := s.setStatus(ctx, documentID, models.StatusFailed, cause.Error()); err != nil {
		slog.Error("Failed to record document failure", "document_id", documentID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.RecordDocumentProcessed(models.StatusFailed)
	}
	return cause
}

func fileType(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			return filename[i+1:]
		}
	}
	return "unknown"
}
