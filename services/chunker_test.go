package services

import (
	"strings"
	"testing"
)

func TestSplitTextSingleChunk(t *testing.T) {
	text := "short text that fits"
	chunks := SplitText(text, 1000, 200)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("single chunk should be the text verbatim, got %q", chunks[0])
	}
}

func TestSplitTextBoundaryRespected(t *testing.T) {
	// A space exists within the last 50% of the window, so no chunk may end
	// mid-word.
	chunks := SplitText("aaaa bbbb cccc dddd", 10, 3)
	if len(chunks) == 0 {
		t.Fatal("no chunks returned")
	}
	words := map[string]bool{"aaaa": true, "bbbb": true, "cccc": true, "dddd": true, "bb": false, "cc": false, "dd": false}
	for _, c := range chunks {
		fields := strings.Fields(c)
		last := fields[len(fields)-1]
		if _, known := words[last]; !known {
			t.Errorf("chunk %q ends mid-word", c)
		}
	}
	if chunks[0] != "aaaa bbbb" {
		t.Errorf("first chunk = %q, want %q", chunks[0], "aaaa bbbb")
	}
}

func TestSplitTextMidWordCutWhenNoBoundary(t *testing.T) {
	// No boundary anywhere: the raw cut must be accepted rather than looping
	// or producing a degenerate chunk.
	text := strings.Repeat("x", 25)
	chunks := SplitText(text, 10, 2)
	if len(chunks) < 3 {
		t.Fatalf("expected >= 3 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != strings.Repeat("x", 10) {
		t.Errorf("first chunk = %q, want 10 x's", chunks[0])
	}
}

func TestSplitTextFiftyPercentRule(t *testing.T) {
	// The only boundary sits early in the window; pulling back to it would
	// drop the chunk below 50% of chunkSize, so the raw cut wins.
	text := "ab " + strings.Repeat("y", 40)
	chunks := SplitText(text, 20, 0)
	if chunks[0] == "ab" {
		t.Fatalf("boundary adjustment produced a degenerate chunk: %v", chunks)
	}
	if len(chunks[0]) != 20 {
		t.Errorf("first chunk length = %d, want raw cut of 20", len(chunks[0]))
	}
}

func TestSplitTextTotality(t *testing.T) {
	// Terminates and yields non-empty chunks for a range of configurations,
	// including overlap = chunkSize-1.
	texts := []string{
		"one two three four five six seven eight nine ten",
		strings.Repeat("word boundary test. ", 50),
		strings.Repeat("z", 101),
		"a\nb\nc\nd\ne\nf\ng\nh\ni\nj\nk\nl\nm\nn",
	}
	for _, text := range texts {
		for _, cfg := range []struct{ size, overlap int }{
			{10, 0}, {10, 3}, {10, 9}, {50, 10}, {100, 99}, {1000, 200},
		} {
			chunks := SplitText(text, cfg.size, cfg.overlap)
			if len(chunks) == 0 {
				t.Fatalf("size=%d overlap=%d: no chunks for %q", cfg.size, cfg.overlap, text)
			}
			for _, c := range chunks {
				if strings.TrimSpace(c) == "" {
					t.Errorf("size=%d overlap=%d: empty chunk emitted", cfg.size, cfg.overlap)
				}
			}
		}
	}
}

func TestSplitTextNoTextSkipped(t *testing.T) {
	// Every non-space character of the source must appear in some chunk:
	// the window advance never jumps past a boundary-adjusted cut.
	text := strings.Repeat("alpha beta gamma delta epsilon. ", 20)
	chunks := SplitText(text, 60, 15)
	joined := strings.Join(chunks, " ")
	for _, w := range strings.Fields(text) {
		if !strings.Contains(joined, w) {
			t.Fatalf("word %q missing from chunk output", w)
		}
	}
}

func TestChunkDocumentDeterministicIDs(t *testing.T) {
	cs := NewChunkerService(10, 2)
	text := "aaaa bbbb cccc dddd aaaa"
	chunks := cs.ChunkDocument("doc_x", text)
	if len(chunks) < 3 {
		t.Fatalf("expected >= 3 chunks, got %d", len(chunks))
	}
	want := []string{"doc_x_chunk_000", "doc_x_chunk_001", "doc_x_chunk_002"}
	for i, id := range want {
		if chunks[i].ChunkID != id {
			t.Errorf("chunk %d id = %q, want %q", i, chunks[i].ChunkID, id)
		}
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d index = %d", i, c.Index)
		}
		if c.SizeChars != len(c.Text) {
			t.Errorf("chunk %d size_chars = %d, want %d", i, c.SizeChars, len(c.Text))
		}
		if c.DocumentID != "doc_x" {
			t.Errorf("chunk %d document id = %q", i, c.DocumentID)
		}
	}
	// Same input, same output.
	again := cs.ChunkDocument("doc_x", text)
	if len(again) != len(chunks) {
		t.Fatalf("non-deterministic chunk count")
	}
	for i := range again {
		if again[i] != chunks[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
