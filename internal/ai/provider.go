// Package ai normalizes calls to LLM and embedding providers behind a common
// interface. Each provider adapter maps its native request/response shape
// (token usage fields, finish-reason vocabulary, content location) into the
// canonical GenerationResult.
package ai

import (
	"context"
	"errors"
	"fmt"
)

// Provider names
const (
	ProviderGoogle    = "google"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// ChatTurn is one conversation turn as passed to a provider. The system
// instruction travels separately because providers disagree on where it goes
// (inline message vs. dedicated field).
type ChatTurn struct {
	Role    string
	Content string
}

// GenerateOptions are the tunables forwarded to a provider. Zero values mean
// "use the provider default" and are not sent on the wire.
type GenerateOptions struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	TopP          float64
	TopK          int
	StopSequences []string
}

// GenerationResult is the canonical response shape across all providers.
// TokensUsed is provider-reported; it is never estimated here.
type GenerationResult struct {
	Content      string `json:"content"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	TokensUsed   int    `json:"tokens_used"`
	FinishReason string `json:"finish_reason"`
}

// Provider is a single LLM backend behind the orchestrator.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai").
	Name() string

	// Matches reports whether a model name string belongs to this provider's
	// family (substring heuristic, e.g. "gpt" for OpenAI).
	Matches(model string) bool

	// Generate runs one chat completion. system may be empty. The provider
	// forwards only the options it supports and normalizes its native
	// response into a GenerationResult.
	Generate(ctx context.Context, system string, turns []ChatTurn, opts GenerateOptions) (*GenerationResult, error)
}

// Sentinel errors shared across the ai package.
var (
	// ErrNoProviders indicates no provider credential was configured.
	ErrNoProviders = errors.New("no generation providers available")

	// ErrNotConfigured indicates a gateway was constructed without a
	// credential; callers should check availability before use.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrEmptyText rejects empty or whitespace-only embedding input.
	ErrEmptyText = errors.New("text is empty")

	// ErrTextTooLong rejects embedding input beyond the provider limit.
	ErrTextTooLong = errors.New("text exceeds provider maximum length")
)

// GenerationError wraps a provider call failure with the provider and model
// that were attempted. The orchestrator never retries with a different
// provider; callers needing resilience pass an explicit alternate model.
type GenerationError struct {
	Provider string
	Model    string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (provider=%s model=%s): %v", e.Provider, e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
