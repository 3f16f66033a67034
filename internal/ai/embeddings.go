package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

const (
	defaultEmbeddingModel = "text-embedding-004"

	// maxEmbedChars caps single-request input well under the model's token
	// limit.
	maxEmbedChars = 8192

	// embedSubBatchSize bounds concurrent embed calls within one batch.
	embedSubBatchSize = 5
)

// EmbeddingService turns text into vectors via the Gemini embedding model.
// One embedding provider per deployment: query and document vectors must come
// from the same model or cosine scores are meaningless.
//
// No caching: identical text re-embeds on every call.
type EmbeddingService struct {
	client    *genai.Client
	model     string
	dimension int
	limiter   *rate.Limiter

	// embedFn is the single network touchpoint, swappable in tests.
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

// NewEmbeddingService builds the gateway. With an empty apiKey the service
// still constructs but reports unavailable, letting the pipeline degrade to
// generation without retrieval.
func NewEmbeddingService(apiKey string, dimension int) (*EmbeddingService, error) {
	s := &EmbeddingService{
		model:     defaultEmbeddingModel,
		dimension: dimension,
		limiter:   rate.NewLimiter(rate.Limit(10), 20),
	}
	if apiKey == "" {
		return s, nil
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	s.client = client
	s.embedFn = s.embedRemote
	return s, nil
}

// IsAvailable reports whether the gateway holds a usable credential.
func (s *EmbeddingService) IsAvailable() bool {
	return s.embedFn != nil
}

// Dimension returns the vector width this deployment is configured for.
func (s *EmbeddingService) Dimension() int {
	return s.dimension
}

// Embed produces one vector for one text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if !s.IsAvailable() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if len(text) > maxEmbedChars {
		return nil, fmt.Errorf("%w: %d chars (max %d)", ErrTextTooLong, len(text), maxEmbedChars)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return s.embedFn(ctx, text)
}

// EmbedBatch embeds many texts, preserving input order. Work proceeds in
// sequential sub-batches of embedSubBatchSize with fan-out inside each
// sub-batch. Any failure aborts the whole batch: callers never receive a
// partially embedded document.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !s.IsAvailable() {
		return nil, ErrNotConfigured
	}
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}

	tracer := otel.Tracer("embedding-service")
	ctx, span := tracer.Start(ctx, "embeddings.batch")
	defer span.End()
	span.SetAttributes(attribute.Int("embeddings.count", len(texts)))

	vectors := make([][]float32, len(texts))
	for batchStart := 0; batchStart < len(texts); batchStart += embedSubBatchSize {
		batchEnd := batchStart + embedSubBatchSize
		if batchEnd > len(texts) {
			batchEnd = len(texts)
		}

		var wg sync.WaitGroup
		errs := make([]error, batchEnd-batchStart)
		for i := batchStart; i < batchEnd; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				vec, err := s.Embed(ctx, texts[i])
				if err != nil {
					errs[i-batchStart] = fmt.Errorf("text %d: %w", i, err)
					return
				}
				vectors[i] = vec
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("batch embedding aborted: %w", err)
			}
		}
	}
	return vectors, nil
}

func (s *EmbeddingService) embedRemote(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(s.model)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return resp.Embedding.Values, nil
}

// Close releases the underlying SDK client.
func (s *EmbeddingService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
