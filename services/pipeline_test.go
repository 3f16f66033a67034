package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"docrag-platform/internal/ai"
	"docrag-platform/models"
)

type stubEmbedder struct {
	vector    []float32
	err       error
	available bool
	calls     int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func (s *stubEmbedder) IsAvailable() bool { return s.available }

type stubRetriever struct {
	hits      []models.SearchHit
	available bool
	gotLimit  int
	gotThresh float64
}

func (s *stubRetriever) Search(_ context.Context, _ []float32, limit int, threshold float64) []models.SearchHit {
	s.gotLimit = limit
	s.gotThresh = threshold
	return s.hits
}

func (s *stubRetriever) IsAvailable() bool { return s.available }

type stubGenerator struct {
	result    *ai.GenerationResult
	err       error
	gotSystem string
	gotTurns  []ai.ChatTurn
	gotOpts   ai.GenerateOptions
	calls     int
}

func (s *stubGenerator) Generate(_ context.Context, system string, turns []ai.ChatTurn, opts ai.GenerateOptions) (*ai.GenerationResult, error) {
	s.calls++
	s.gotSystem = system
	s.gotTurns = turns
	s.gotOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestPipeline(t *testing.T, emb *stubEmbedder, ret *stubRetriever, gen *stubGenerator) (*RAGPipeline, *MemorySessionStore) {
	t.Helper()
	// No Start(): the sweep stays off in tests.
	sessions := NewMemorySessionStore(time.Hour, time.Hour, 10)
	p := NewRAGPipeline(emb, ret, gen, sessions, PipelineConfig{})
	return p, sessions
}

func okGenerator() *stubGenerator {
	return &stubGenerator{result: &ai.GenerationResult{
		Content:    "The answer is 42.",
		Provider:   ai.ProviderGoogle,
		Model:      "gemini-2.0-flash",
		TokensUsed: 57,
	}}
}

func TestChatValidationNoSideEffects(t *testing.T) {
	gen := okGenerator()
	p, sessions := newTestPipeline(t, &stubEmbedder{available: false}, &stubRetriever{}, gen)

	if _, err := p.Chat(context.Background(), models.ChatRequest{Message: "   "}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("empty message error = %v, want ErrEmptyMessage", err)
	}
	long := strings.Repeat("a", 2001)
	if _, err := p.Chat(context.Background(), models.ChatRequest{Message: long}); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("oversize error = %v, want ErrMessageTooLong", err)
	}
	if sessions.Count() != 0 {
		t.Errorf("validation failure created %d sessions", sessions.Count())
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times on invalid input", gen.calls)
	}
}

func TestChatEndToEndWithRetrieval(t *testing.T) {
	emb := &stubEmbedder{available: true, vector: []float32{0.1, 0.2}}
	ret := &stubRetriever{available: true, hits: []models.SearchHit{
		{ChunkID: "doc1_chunk_000", DocumentID: "doc1", Text: "The meaning of life is 42.", Score: 0.91},
		{ChunkID: "doc1_chunk_003", DocumentID: "doc1", Text: "Deep Thought computed for 7.5 million years.", Score: 0.83},
	}}
	gen := okGenerator()
	p, sessions := newTestPipeline(t, emb, ret, gen)

	resp, err := p.Chat(context.Background(), models.ChatRequest{Message: "What is the meaning of life?"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Answer != "The answer is 42." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.ModelUsed != "gemini-2.0-flash" || resp.TokensUsed != 57 {
		t.Errorf("metadata = %s/%d", resp.ModelUsed, resp.TokensUsed)
	}
	if resp.Provider != ai.ProviderGoogle {
		t.Errorf("provider = %q, want %q", resp.Provider, ai.ProviderGoogle)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(resp.Sources))
	}
	if ret.gotLimit != 5 || ret.gotThresh != 0.7 {
		t.Errorf("search params = %d/%.2f, want defaults 5/0.70", ret.gotLimit, ret.gotThresh)
	}

	// Grounding prompt carries the passages and the don't-know directive.
	if !strings.Contains(gen.gotSystem, "The meaning of life is 42.") {
		t.Error("system prompt missing retrieved passage")
	}
	if !strings.Contains(gen.gotSystem, "don't know") {
		t.Error("system prompt missing don't-know directive")
	}
	if !strings.Contains(gen.gotSystem, "English") {
		t.Error("system prompt missing answer language")
	}

	// Session holds the full exchange with assistant metadata.
	session, err := sessions.Get(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	if len(session.Messages) != 2 {
		t.Fatalf("session has %d messages, want 2", len(session.Messages))
	}
	meta := session.Messages[1].Metadata
	if meta == nil || meta.Provider != ai.ProviderGoogle || meta.SourceCount != 2 {
		t.Errorf("assistant metadata = %+v", meta)
	}
}

func TestChatRetrievalDegradation(t *testing.T) {
	cases := []struct {
		name string
		emb  *stubEmbedder
		ret  *stubRetriever
	}{
		{"embedder unavailable", &stubEmbedder{available: false}, &stubRetriever{available: true}},
		{"retriever unavailable", &stubEmbedder{available: true, vector: []float32{1}}, &stubRetriever{available: false}},
		{"embedding fails", &stubEmbedder{available: true, err: errors.New("quota")}, &stubRetriever{available: true}},
		{"search degraded to empty", &stubEmbedder{available: true, vector: []float32{1}}, &stubRetriever{available: true, hits: nil}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := okGenerator()
			p, _ := newTestPipeline(t, tc.emb, tc.ret, gen)

			resp, err := p.Chat(context.Background(), models.ChatRequest{Message: "hello"})
			if err != nil {
				t.Fatalf("Chat: %v", err)
			}
			if len(resp.Sources) != 0 {
				t.Errorf("sources = %d, want 0", len(resp.Sources))
			}
			if resp.Answer == "" || resp.Answer == fallbackAnswer {
				t.Errorf("degraded retrieval must still generate, got %q", resp.Answer)
			}
			if !strings.Contains(gen.gotSystem, "No relevant passages") {
				t.Error("system prompt missing no-sources framing")
			}
		})
	}
}

func TestChatGenerationFallback(t *testing.T) {
	gen := &stubGenerator{err: &ai.GenerationError{Provider: ai.ProviderGoogle, Model: "gemini-2.0-flash", Err: errors.New("503")}}
	p, sessions := newTestPipeline(t, &stubEmbedder{available: false}, &stubRetriever{}, gen)

	resp, err := p.Chat(context.Background(), models.ChatRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("Chat must not fail on generation errors: %v", err)
	}
	if resp.Answer != fallbackAnswer {
		t.Errorf("answer = %q, want fallback", resp.Answer)
	}
	if resp.ModelUsed != "fallback" || resp.TokensUsed != 0 {
		t.Errorf("fallback metadata = %s/%d, want fallback/0", resp.ModelUsed, resp.TokensUsed)
	}
	if resp.Provider != "system" {
		t.Errorf("fallback provider = %q, want system", resp.Provider)
	}

	session, _ := sessions.Get(context.Background(), resp.SessionID)
	meta := session.Messages[1].Metadata
	if meta == nil || meta.Provider != "system" || meta.Model != "fallback" || meta.TokensUsed != 0 {
		t.Errorf("fallback assistant metadata = %+v", meta)
	}
}

func TestChatSessionContinuity(t *testing.T) {
	gen := okGenerator()
	p, _ := newTestPipeline(t, &stubEmbedder{available: false}, &stubRetriever{}, gen)
	ctx := context.Background()

	first, err := p.Chat(ctx, models.ChatRequest{Message: "first question"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	second, err := p.Chat(ctx, models.ChatRequest{SessionID: first.SessionID, Message: "follow-up"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session id changed: %s -> %s", first.SessionID, second.SessionID)
	}

	// Prior exchange precedes the live message, in order.
	turns := gen.gotTurns
	if len(turns) != 3 {
		t.Fatalf("generator saw %d turns, want 3", len(turns))
	}
	wantContents := []string{"first question", "The answer is 42.", "follow-up"}
	wantRoles := []string{models.RoleUser, models.RoleAssistant, models.RoleUser}
	for i := range wantContents {
		if turns[i].Content != wantContents[i] || turns[i].Role != wantRoles[i] {
			t.Errorf("turn %d = %s/%q, want %s/%q", i, turns[i].Role, turns[i].Content, wantRoles[i], wantContents[i])
		}
	}
}

func TestChatUnknownSessionStartsFresh(t *testing.T) {
	gen := okGenerator()
	p, _ := newTestPipeline(t, &stubEmbedder{available: false}, &stubRetriever{}, gen)

	resp, err := p.Chat(context.Background(), models.ChatRequest{SessionID: "expired-or-bogus", Message: "hello"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.SessionID == "expired-or-bogus" || resp.SessionID == "" {
		t.Errorf("expected a fresh session id, got %q", resp.SessionID)
	}
}

func TestChatHistoryWindowBound(t *testing.T) {
	gen := okGenerator()
	p, _ := newTestPipeline(t, &stubEmbedder{available: false}, &stubRetriever{}, gen)
	ctx := context.Background()

	resp, err := p.Chat(ctx, models.ChatRequest{Message: "turn 0"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	for i := 1; i < 8; i++ {
		if _, err := p.Chat(ctx, models.ChatRequest{SessionID: resp.SessionID, Message: fmt.Sprintf("turn %d", i)}); err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
	}

	// 6 prior messages plus the live one.
	if len(gen.gotTurns) != 7 {
		t.Errorf("generator saw %d turns, want 7", len(gen.gotTurns))
	}
	if last := gen.gotTurns[len(gen.gotTurns)-1]; last.Content != "turn 7" || last.Role != models.RoleUser {
		t.Errorf("last turn = %s/%q", last.Role, last.Content)
	}
}

// termEmbedder maps text onto a tiny term-presence vector so that related
// texts land close together and unrelated ones do not.
type termEmbedder struct{}

var embedTerms = []string{"budget", "marketing", "revenue"}

func termVector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(embedTerms)+1)
	for i, term := range embedTerms {
		if strings.Contains(lower, term) {
			v[i] = 1
		}
	}
	// Keeps every vector nonzero.
	v[len(embedTerms)] = 0.1
	return v
}

func (termEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return termVector(text), nil
}

func (termEmbedder) IsAvailable() bool { return true }

// memoryIndex is an in-memory stand-in for the vector collection, ranking by
// cosine similarity the way the real index does.
type memoryIndex struct {
	entries []models.ChunkIndexEntry
}

func (m *memoryIndex) IsAvailable() bool { return true }

func (m *memoryIndex) Search(_ context.Context, vector []float32, limit int, threshold float64) []models.SearchHit {
	hits := make([]models.SearchHit, 0, len(m.entries))
	for _, e := range m.entries {
		score := cosine(vector, e.Vector)
		if score < threshold {
			continue
		}
		hits = append(hits, models.SearchHit{
			ChunkID:    e.ChunkID,
			DocumentID: e.DocumentID,
			Index:      e.Index,
			Text:       e.Text,
			Score:      score,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// groundedGenerator answers from the grounding prompt it is handed, so the
// final answer depends on what retrieval actually surfaced.
type groundedGenerator struct {
	gotSystem string
}

func (g *groundedGenerator) Generate(_ context.Context, system string, _ []ai.ChatTurn, _ ai.GenerateOptions) (*ai.GenerationResult, error) {
	g.gotSystem = system
	content := "I don't have relevant material for that."
	if strings.Contains(system, "5 million") {
		content = "The 2025 marketing budget is 5 million dollars."
	}
	return &ai.GenerationResult{
		Content:    content,
		Provider:   ai.ProviderGoogle,
		Model:      "gemini-2.0-flash",
		TokensUsed: 21,
	}, nil
}

// Chunk a document, embed and index its chunks, then ask about it: the
// matching chunk must come back above threshold and drive the answer.
func TestChatAnswersFromIngestedDocument(t *testing.T) {
	chunker := NewChunkerService(1000, 200)
	index := &memoryIndex{}
	embedder := termEmbedder{}

	docs := map[string]string{
		"budget-2025": "The marketing budget for 2025 is 5 million dollars, approved by the board in January.",
		"ops-report":  "Quarterly operations ran smoothly with no major incidents reported.",
	}
	for id, text := range docs {
		for _, chunk := range chunker.ChunkDocument(id, text) {
			vector, err := embedder.Embed(context.Background(), chunk.Text)
			if err != nil {
				t.Fatalf("embed chunk: %v", err)
			}
			index.entries = append(index.entries, models.ChunkIndexEntry{
				ChunkID:    chunk.ChunkID,
				DocumentID: chunk.DocumentID,
				Index:      chunk.Index,
				Text:       chunk.Text,
				Vector:     vector,
			})
		}
	}
	if len(index.entries) != 2 {
		t.Fatalf("indexed %d chunks, want 2 (one per document)", len(index.entries))
	}

	gen := &groundedGenerator{}
	sessions := NewMemorySessionStore(time.Hour, time.Hour, 10)
	p := NewRAGPipeline(embedder, index, gen, sessions, PipelineConfig{})

	resp, err := p.Chat(context.Background(), models.ChatRequest{Message: "What is the marketing budget?"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(resp.Sources) != 1 {
		t.Fatalf("sources = %d, want only the budget chunk", len(resp.Sources))
	}
	hit := resp.Sources[0]
	if hit.ChunkID != "budget-2025_chunk_000" {
		t.Errorf("retrieved %q, want budget-2025_chunk_000", hit.ChunkID)
	}
	if hit.Score < 0.7 {
		t.Errorf("score = %.2f, want >= 0.70", hit.Score)
	}
	if !strings.Contains(gen.gotSystem, "5 million") {
		t.Error("grounding prompt missing the retrieved passage text")
	}
	if !strings.Contains(resp.Answer, "5 million") {
		t.Errorf("answer = %q, want it grounded in the document", resp.Answer)
	}
}

func TestChatModelForwarding(t *testing.T) {
	gen := okGenerator()
	p, _ := newTestPipeline(t, &stubEmbedder{available: false}, &stubRetriever{}, gen)

	if _, err := p.Chat(context.Background(), models.ChatRequest{Message: "hi", Model: "claude-3-5-haiku-latest"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if gen.gotOpts.Model != "claude-3-5-haiku-latest" {
		t.Errorf("model forwarded as %q", gen.gotOpts.Model)
	}
}
