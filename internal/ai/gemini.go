package ai

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider adapts the Google Generative AI SDK. Calls run behind a
// circuit breaker so a degraded Gemini backend sheds load quickly instead of
// piling up timeouts.
type GeminiProvider struct {
	client  *genai.Client
	breaker *gobreaker.CircuitBreaker
}

func NewGeminiProvider(apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &GeminiProvider{client: client, breaker: breaker}, nil
}

func (p *GeminiProvider) Name() string { return ProviderGoogle }

func (p *GeminiProvider) Matches(model string) bool {
	return strings.Contains(strings.ToLower(model), "gemini")
}

func (p *GeminiProvider) Generate(ctx context.Context, system string, turns []ChatTurn, opts GenerateOptions) (*GenerationResult, error) {
	tracer := otel.Tracer("gemini-provider")
	ctx, span := tracer.Start(ctx, "gemini.generate")
	defer span.End()

	modelName := opts.Model
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	span.SetAttributes(
		attribute.String("gemini.model", modelName),
		attribute.Int("gemini.turns", len(turns)),
	)

	model := p.client.GenerativeModel(modelName)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		model.SetTemperature(float32(opts.Temperature))
	}
	if opts.TopP > 0 {
		model.SetTopP(float32(opts.TopP))
	}
	if opts.TopK > 0 {
		model.SetTopK(int32(opts.TopK))
	}
	if len(opts.StopSequences) > 0 {
		model.StopSequences = opts.StopSequences
	}

	if len(turns) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	// Prior turns become chat history; the trailing user message is the
	// active query.
	chat := model.StartChat()
	for _, turn := range turns[:len(turns)-1] {
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		chat.History = append(chat.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return chat.SendMessage(ctx, genai.Text(turns[len(turns)-1].Content))
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	resp := result.(*genai.GenerateContentResponse)
	return p.normalize(resp, modelName)
}

func (p *GeminiProvider) normalize(resp *genai.GenerateContentResponse, modelName string) (*GenerationResult, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates in response")
	}

	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			content.WriteString(string(text))
		}
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &GenerationResult{
		Content:      content.String(),
		Provider:     ProviderGoogle,
		Model:        modelName,
		TokensUsed:   tokens,
		FinishReason: resp.Candidates[0].FinishReason.String(),
	}, nil
}

// Close releases the underlying SDK client.
func (p *GeminiProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
