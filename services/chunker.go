package services

import (
	"strings"

	"docrag-platform/models"
)

// ChunkerService splits extracted document text into overlapping,
// boundary-respecting segments. It is pure and deterministic: the same input
// always produces the same chunks.
type ChunkerService struct {
	chunkSize int
	overlap   int
}

// NewChunkerService creates a chunker. chunkSize must be greater than
// overlap; overlap must be non-negative. Out-of-range values are clamped to
// the defaults (1000/200) rather than rejected, matching config behavior.
func NewChunkerService(chunkSize, overlap int) *ChunkerService {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &ChunkerService{chunkSize: chunkSize, overlap: overlap}
}

// Split cuts text into ordered, whitespace-trimmed chunks. Texts that fit in
// a single chunk are returned as-is. For longer texts the window end is
// pulled back to the nearest space, newline or period found by reverse scan,
// accepted only when the chunk keeps at least half of chunkSize; otherwise
// the raw cut stands, accepting a mid-word split over a degenerate tiny
// chunk. The window advance is clamped to the cut point so no source text is
// ever skipped, and advances at least one byte per iteration.
func (cs *ChunkerService) Split(text string) []string {
	return SplitText(text, cs.chunkSize, cs.overlap)
}

// ChunkDocument runs Split and wraps the pieces into chunk records with
// deterministic ids (<documentID>_chunk_000, _001, ...).
func (cs *ChunkerService) ChunkDocument(documentID, text string) []models.Chunk {
	pieces := cs.Split(text)
	chunks := make([]models.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = models.Chunk{
			ChunkID:    models.ChunkID(documentID, i),
			DocumentID: documentID,
			Index:      i,
			Text:       p,
			SizeChars:  len(p),
		}
	}
	return chunks
}

// SplitText is the underlying chunking algorithm. Preconditions: text
// non-empty, 0 <= overlap < chunkSize.
func SplitText(text string, chunkSize, overlap int) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			// Not the final chunk: prefer cutting at a boundary, but only
			// when the chunk keeps at least 50% of chunkSize.
			if cut := boundaryCut(text, start, end); cut-start >= chunkSize/2 {
				end = cut
			}
		}

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			chunks = append(chunks, piece)
		}

		if end == len(text) {
			break
		}
		next := start + chunkSize - overlap
		if next > end {
			// Boundary adjustment shrank the chunk below the stride; resume
			// at the cut so no text is skipped.
			next = end
		}
		start = next
	}
	return chunks
}

// boundaryCut reverse-scans (start, end) for the last space, newline or
// period and returns the position just after it, or end when none exists.
func boundaryCut(text string, start, end int) int {
	for i := end - 1; i > start; i-- {
		switch text[i] {
		case ' ', '\n', '.':
			return i + 1
		}
	}
	return end
}
