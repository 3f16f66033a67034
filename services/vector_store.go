package services

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"docrag-platform/internal/telemetry"
	"docrag-platform/models"
)

// upsertBatchSize bounds one BulkWrite round-trip. Batches run sequentially;
// a failure mid-way leaves earlier batches committed, which is safe because
// upserts are idempotent and a retry converges.
const upsertBatchSize = 100

// VectorStore is the gateway to the Atlas chunk index. Write-path failures
// (upsert, delete) propagate to the caller; read-path failures degrade to an
// empty result set so chat stays up when search is down.
type VectorStore struct {
	collection *mongo.Collection
	indexName  string
	dimension  int
	metrics    *telemetry.Metrics
}

func NewVectorStore(db *mongo.Database, collectionName, indexName string, dimension int, metrics *telemetry.Metrics) *VectorStore {
	return &VectorStore{
		collection: db.Collection(collectionName),
		indexName:  indexName,
		dimension:  dimension,
		metrics:    metrics,
	}
}

// IsAvailable reports whether the gateway was wired to a database.
func (s *VectorStore) IsAvailable() bool {
	return s.collection != nil
}

// EnsureIndex creates the Atlas vector search index if it does not exist and
// verifies its dimension. A dimension mismatch is returned as an error the
// caller must treat as fatal: vectors of the wrong width poison every search.
func (s *VectorStore) EnsureIndex(ctx context.Context) error {
	if !s.IsAvailable() {
		return fmt.Errorf("vector store not configured")
	}

	cursor, err := s.collection.SearchIndexes().List(ctx, options.SearchIndexes().SetName(s.indexName))
	if err != nil {
		return fmt.Errorf("failed to list search indexes: %w", err)
	}
	defer cursor.Close(ctx)

	var existing []bson.M
	if err := cursor.All(ctx, &existing); err != nil {
		return fmt.Errorf("failed to read search indexes: %w", err)
	}

	if len(existing) > 0 {
		if dim, ok := indexDimension(existing[0]); ok && dim != s.dimension {
			return fmt.Errorf("vector index %q has dimension %d, configured %d: refusing to mix vector widths",
				s.indexName, dim, s.dimension)
		}
		return nil
	}

	definition := bson.M{
		"fields": bson.A{
			bson.M{
				"type":          "vector",
				"path":          "vector",
				"numDimensions": s.dimension,
				"similarity":    "cosine",
			},
			bson.M{
				"type": "filter",
				"path": "document_id",
			},
		},
	}
	indexType := "vectorSearch"
	_, err = s.collection.SearchIndexes().CreateOne(ctx, mongo.SearchIndexModel{
		Definition: definition,
		Options: &options.SearchIndexesOptions{
			Name: &s.indexName,
			Type: &indexType,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create vector index %q: %w", s.indexName, err)
	}
	slog.Info("Created vector search index", "index", s.indexName, "dimensions", s.dimension)
	return nil
}

// indexDimension digs numDimensions out of a search index listing. Atlas
// nests the definition under latestDefinition.
func indexDimension(idx bson.M) (int, bool) {
	def, ok := idx["latestDefinition"].(bson.M)
	if !ok {
		return 0, false
	}
	fields, ok := def["fields"].(bson.A)
	if !ok {
		return 0, false
	}
	for _, f := range fields {
		field, ok := f.(bson.M)
		if !ok || field["type"] != "vector" {
			continue
		}
		switch v := field["numDimensions"].(type) {
		case int32:
			return int(v), true
		case int64:
			return int(v), true
		case int:
			return v, true
		case float64:
			return int(v), true
		}
	}
	return 0, false
}

// Upsert writes chunk index entries keyed by chunk id, in sequential batches
// of upsertBatchSize. Re-ingesting a document overwrites its entries in place.
func (s *VectorStore) Upsert(ctx context.Context, entries []models.ChunkIndexEntry) error {
	if !s.IsAvailable() {
		return fmt.Errorf("vector store not configured")
	}
	if len(entries) == 0 {
		return nil
	}

	tracer := otel.Tracer("vector-store")
	ctx, span := tracer.Start(ctx, "vectorstore.upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("vectorstore.entries", len(entries)))

	for _, entry := range entries {
		if len(entry.Vector) != s.dimension {
			return fmt.Errorf("chunk %s: vector dimension %d, index expects %d",
				entry.ChunkID, len(entry.Vector), s.dimension)
		}
	}

	for batchStart := 0; batchStart < len(entries); batchStart += upsertBatchSize {
		batchEnd := batchStart + upsertBatchSize
		if batchEnd > len(entries) {
			batchEnd = len(entries)
		}

		batch := make([]mongo.WriteModel, 0, batchEnd-batchStart)
		for _, entry := range entries[batchStart:batchEnd] {
			batch = append(batch, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"chunk_id": entry.ChunkID}).
				SetUpdate(bson.M{"$set": entry}).
				SetUpsert(true))
		}
		if _, err := s.collection.BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(false)); err != nil {
			return fmt.Errorf("upsert batch at %d failed: %w", batchStart, err)
		}
	}
	return nil
}

// Search runs cosine similarity retrieval and filters hits below threshold.
// Any failure is logged and degraded to an empty result set.
func (s *VectorStore) Search(ctx context.Context, vector []float32, limit int, threshold float64) []models.SearchHit {
	if !s.IsAvailable() {
		return nil
	}

	tracer := otel.Tracer("vector-store")
	ctx, span := tracer.Start(ctx, "vectorstore.search")
	defer span.End()

	pipeline := buildVectorSearchPipeline(s.indexName, vector, limit)
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		slog.Warn("Vector search failed, returning no sources", "error", err)
		return nil
	}
	defer cursor.Close(ctx)

	var raw []struct {
		ChunkID    string  `bson:"chunk_id"`
		DocumentID string  `bson:"document_id"`
		Index      int     `bson:"index"`
		Text       string  `bson:"text"`
		Score      float64 `bson:"score"`
	}
	if err := cursor.All(ctx, &raw); err != nil {
		slog.Warn("Vector search decode failed, returning no sources", "error", err)
		return nil
	}

	hits := make([]models.SearchHit, 0, len(raw))
	for _, r := range raw {
		if r.Score < threshold {
			continue
		}
		hits = append(hits, models.SearchHit{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Index:      r.Index,
			Text:       r.Text,
			Score:      r.Score,
		})
	}
	span.SetAttributes(attribute.Int("vectorstore.hits", len(hits)))
	if s.metrics != nil {
		s.metrics.RecordSearchResults(int64(len(hits)))
	}
	return hits
}

// buildVectorSearchPipeline assembles the $vectorSearch aggregation. Split
// out for testability; it has no I/O.
func buildVectorSearchPipeline(indexName string, vector []float32, limit int) mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$vectorSearch", Value: bson.M{
			"index":         indexName,
			"path":          "vector",
			"queryVector":   vector,
			"numCandidates": limit * 10,
			"limit":         limit,
		}}},
		bson.D{{Key: "$project", Value: bson.M{
			"_id":         0,
			"chunk_id":    1,
			"document_id": 1,
			"index":       1,
			"text":        1,
			"score":       bson.M{"$meta": "vectorSearchScore"},
		}}},
	}
}

// Delete removes specific chunks by id. Unlike Search, failures propagate:
// leaving orphaned vectors behind silently would corrupt retrieval.
func (s *VectorStore) Delete(ctx context.Context, chunkIDs []string) error {
	if !s.IsAvailable() {
		return fmt.Errorf("vector store not configured")
	}
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := s.collection.DeleteMany(ctx, bson.M{"chunk_id": bson.M{"$in": chunkIDs}})
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// DeleteDocument removes every chunk belonging to a document.
func (s *VectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	if !s.IsAvailable() {
		return fmt.Errorf("vector store not configured")
	}
	_, err := s.collection.DeleteMany(ctx, bson.M{"document_id": documentID})
	if err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

// Stats reports the total number of indexed chunks.
func (s *VectorStore) Stats(ctx context.Context) (int64, error) {
	if !s.IsAvailable() {
		return 0, fmt.Errorf("vector store not configured")
	}
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
