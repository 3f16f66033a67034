package models

import (
	"fmt"
	"time"
)

// Document processing statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document is the metadata record for an ingested document. The extracted
// text itself is archived compressed (see ArchivedText) so a document can be
// re-chunked without re-uploading; chunks and vectors live in the chunk index.
type Document struct {
	ID          string    `bson:"_id" json:"id"`
	Filename    string    `bson:"filename" json:"filename"`
	FileType    string    `bson:"file_type" json:"file_type"`
	SizeBytes   int64     `bson:"size_bytes" json:"size_bytes"`
	ChunkCount  int       `bson:"chunk_count" json:"chunk_count"`
	Status      string    `bson:"status" json:"status"`
	Error       string    `bson:"error,omitempty" json:"error,omitempty"`
	UploadedAt  time.Time `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty"`

	// Compressed copy of the extracted text for background/re-processing.
	ArchivedText []byte `bson:"archived_text,omitempty" json:"-"`
	Compression  string `bson:"compression,omitempty" json:"-"`
}

// Chunk is one boundary-aware segment of a document's text, the unit of
// embedding and retrieval. Chunks for a document are created in one batch,
// never mutated, and deleted only together with the document.
type Chunk struct {
	ChunkID    string `bson:"chunk_id" json:"chunk_id"`
	DocumentID string `bson:"document_id" json:"document_id"`
	Index      int    `bson:"index" json:"index"`
	Text       string `bson:"text" json:"text"`
	SizeChars  int    `bson:"size_chars" json:"size_chars"`
}

// ChunkIndexEntry is the denormalized chunk document stored in the vector
// collection. Keeping a separate collection enables efficient $vectorSearch.
type ChunkIndexEntry struct {
	ChunkID    string    `bson:"chunk_id"`
	DocumentID string    `bson:"document_id"`
	Index      int       `bson:"index"`
	Text       string    `bson:"text"`
	Vector     []float32 `bson:"vector"`
	Model      string    `bson:"model,omitempty"`
}

// SearchHit is one retrieval result. Score is cosine similarity in
// [threshold, 1.0]; the vector store gateway never returns hits below the
// caller-supplied threshold.
type SearchHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// ChunkID builds the deterministic chunk id for a document and position.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%03d", documentID, index)
}
