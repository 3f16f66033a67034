package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"docrag-platform/internal/ai"
	"docrag-platform/models"
)

// Validation errors for inbound chat messages.
var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
)

const fallbackAnswer = "I'm sorry, I'm having trouble generating a response right now. Please try again in a moment."

// Embedder is the query-embedding dependency of the pipeline.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	IsAvailable() bool
}

// Retriever is the vector search dependency. Search never fails: degraded
// backends surface as an empty result set.
type Retriever interface {
	Search(ctx context.Context, vector []float32, limit int, threshold float64) []models.SearchHit
	IsAvailable() bool
}

// Generator is the LLM dependency, satisfied by *ai.Orchestrator.
type Generator interface {
	Generate(ctx context.Context, system string, turns []ai.ChatTurn, opts ai.GenerateOptions) (*ai.GenerationResult, error)
}

// PipelineConfig holds the retrieval and context-assembly knobs.
type PipelineConfig struct {
	SearchLimit      int
	SearchThreshold  float64
	HistoryWindow    int
	MaxMessageLength int
	AnswerLanguage   string
	DefaultModel     string
}

// RAGPipeline wires retrieval-augmented chat end to end: validate, resolve
// the session, retrieve grounding passages, assemble bounded context,
// generate, and record the exchange. All collaborators are injected.
type RAGPipeline struct {
	embedder  Embedder
	retriever Retriever
	generator Generator
	sessions  SessionStore
	cfg       PipelineConfig
}

func NewRAGPipeline(embedder Embedder, retriever Retriever, generator Generator, sessions SessionStore, cfg PipelineConfig) *RAGPipeline {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 5
	}
	if cfg.SearchThreshold <= 0 {
		cfg.SearchThreshold = 0.7
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 2000
	}
	if cfg.AnswerLanguage == "" {
		cfg.AnswerLanguage = "English"
	}
	return &RAGPipeline{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		sessions:  sessions,
		cfg:       cfg,
	}
}

// Chat handles one user message. Validation failures are the only errors the
// caller sees before a session is touched; from there the pipeline degrades
// rather than fails, down to a fixed fallback answer when generation itself
// is broken.
func (p *RAGPipeline) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	started := time.Now()

	tracer := otel.Tracer("rag-pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.chat")
	defer span.End()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if len(message) > p.cfg.MaxMessageLength {
		return nil, fmt.Errorf("%w: %d chars (max %d)", ErrMessageTooLong, len(message), p.cfg.MaxMessageLength)
	}

	session, err := p.resolveSession(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	userMsg := models.Message{Role: models.RoleUser, Content: message, Timestamp: time.Now()}
	if err := p.sessions.Append(ctx, session.ID, userMsg); err != nil {
		return nil, fmt.Errorf("failed to record message: %w", err)
	}

	sources := p.retrieve(ctx, message)
	span.SetAttributes(
		attribute.String("chat.session_id", session.ID),
		attribute.Int("chat.sources", len(sources)),
	)

	turns := p.contextTurns(session.Messages, message)
	system := p.buildSystemPrompt(sources)

	var (
		answer     string
		provider   string
		modelUsed  string
		tokensUsed int
	)
	result, err := p.generator.Generate(ctx, system, turns, ai.GenerateOptions{Model: p.requestedModel(req.Model)})
	if err != nil {
		slog.Error("Generation failed, serving fallback answer", "session_id", session.ID, "error", err)
		answer, provider, modelUsed, tokensUsed = fallbackAnswer, "system", "fallback", 0
	} else {
		answer, provider, modelUsed, tokensUsed = result.Content, result.Provider, result.Model, result.TokensUsed
	}

	assistantMsg := models.Message{
		Role:      models.RoleAssistant,
		Content:   answer,
		Timestamp: time.Now(),
		Metadata: &models.MessageMetadata{
			Provider:    provider,
			Model:       modelUsed,
			TokensUsed:  tokensUsed,
			SourceCount: len(sources),
		},
	}
	if err := p.sessions.Append(ctx, session.ID, assistantMsg); err != nil {
		slog.Warn("Failed to record assistant message", "session_id", session.ID, "error", err)
	}

	return &models.ChatResponse{
		Answer:           answer,
		SessionID:        session.ID,
		Sources:          sources,
		Provider:         provider,
		TokensUsed:       tokensUsed,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		ModelUsed:        modelUsed,
		Timestamp:        time.Now(),
	}, nil
}

// resolveSession loads the requested session, or creates a fresh one when no
// id was sent or the id is unknown/expired. A stale client keeps working, it
// just loses its history.
func (p *RAGPipeline) resolveSession(ctx context.Context, id string) (*models.Session, error) {
	if id != "" {
		session, err := p.sessions.Get(ctx, id)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		slog.Info("Unknown or expired session id, starting fresh", "session_id", id)
	}
	return p.sessions.Create(ctx)
}

// retrieve embeds the query and searches the vector store. Every failure
// mode collapses to "no sources": chat must not depend on retrieval health.
func (p *RAGPipeline) retrieve(ctx context.Context, query string) []models.SearchHit {
	if p.embedder == nil || !p.embedder.IsAvailable() || p.retriever == nil || !p.retriever.IsAvailable() {
		return nil
	}

	vector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("Query embedding failed, answering without sources", "error", err)
		return nil
	}
	return p.retriever.Search(ctx, vector, p.cfg.SearchLimit, p.cfg.SearchThreshold)
}

// contextTurns returns the last HistoryWindow prior messages as provider
// turns, followed by the current user message. The session snapshot predates
// the current append, so the live message is added here.
func (p *RAGPipeline) contextTurns(history []models.Message, current string) []ai.ChatTurn {
	turns := make([]ai.ChatTurn, 0, p.cfg.HistoryWindow+1)
	start := len(history) - p.cfg.HistoryWindow
	if start < 0 {
		start = 0
	}
	for _, msg := range history[start:] {
		turns = append(turns, ai.ChatTurn{Role: msg.Role, Content: msg.Content})
	}
	return append(turns, ai.ChatTurn{Role: models.RoleUser, Content: current})
}

// buildSystemPrompt assembles the grounding instruction. With sources the
// model is told to answer only from them and admit ignorance otherwise; with
// none it is told to say it has no relevant material.
func (p *RAGPipeline) buildSystemPrompt(sources []models.SearchHit) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant answering questions about the user's documents. ")
	b.WriteString("Respond in " + p.cfg.AnswerLanguage + ".\n\n")

	if len(sources) == 0 {
		b.WriteString("No relevant passages were found in the indexed documents. ")
		b.WriteString("If the question requires document knowledge, say that you don't have relevant material rather than guessing.")
		return b.String()
	}

	b.WriteString("Answer using only the passages below. ")
	b.WriteString("If they do not contain the answer, say you don't know rather than guessing.\n\n")
	for i, hit := range sources {
		fmt.Fprintf(&b, "[Passage %d] (relevance %.2f)\n%s\n\n", i+1, hit.Score, hit.Text)
	}
	return b.String()
}

func (p *RAGPipeline) requestedModel(model string) string {
	if model != "" {
		return model
	}
	return p.cfg.DefaultModel
}
