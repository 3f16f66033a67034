package ai

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// ModelAuto asks the orchestrator to pick the first available provider.
const ModelAuto = "auto"

// Orchestrator routes generation requests to one of the configured providers.
// Providers are held in registration order, which is the selection precedence
// for "auto" and for unknown model names. A failed call is never retried on a
// different provider.
type Orchestrator struct {
	providers []Provider
}

// NewOrchestrator builds an orchestrator over the providers that came up at
// startup. Order matters: the first provider is the "auto" choice.
func NewOrchestrator(providers ...Provider) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	slog.Info("Generation orchestrator initialized", "providers", names)
	return &Orchestrator{providers: providers}, nil
}

// Available lists the configured provider names in precedence order.
func (o *Orchestrator) Available() []string {
	names := make([]string, 0, len(o.providers))
	for _, p := range o.providers {
		names = append(names, p.Name())
	}
	return names
}

// resolve maps a requested model name to a provider. Empty and "auto" take
// the first provider; otherwise each provider's family heuristic is asked in
// precedence order; an unrecognized name also falls back to the first
// provider, which will run it under that provider's default model.
func (o *Orchestrator) resolve(model string) Provider {
	if model == "" || strings.EqualFold(model, ModelAuto) {
		return o.providers[0]
	}
	for _, p := range o.providers {
		if p.Matches(model) {
			return p
		}
	}
	slog.Warn("Model not recognized by any provider, using default",
		"model", model,
		"provider", o.providers[0].Name())
	return o.providers[0]
}

// Generate runs one chat completion against the provider selected for
// opts.Model. Failures are returned as a *GenerationError naming the
// provider and model that were attempted.
func (o *Orchestrator) Generate(ctx context.Context, system string, turns []ChatTurn, opts GenerateOptions) (*GenerationResult, error) {
	provider := o.resolve(opts.Model)

	// A model name that resolved by family heuristic is forwarded as-is; an
	// auto/unknown selection lets the provider apply its own default.
	if opts.Model != "" && !provider.Matches(opts.Model) {
		opts.Model = ""
	}
	if strings.EqualFold(opts.Model, ModelAuto) {
		opts.Model = ""
	}

	result, err := provider.Generate(ctx, system, turns, opts)
	if err != nil {
		slog.Error("Generation failed",
			"provider", provider.Name(),
			"model", opts.Model,
			"error", err)
		return nil, &GenerationError{Provider: provider.Name(), Model: opts.Model, Err: err}
	}
	return result, nil
}

// HealthCheck probes each provider with a minimal one-token request. It is
// meant for a health endpoint, never for the chat path.
func (o *Orchestrator) HealthCheck(ctx context.Context) map[string]string {
	status := make(map[string]string, len(o.providers))
	for _, p := range o.providers {
		probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		_, err := p.Generate(probeCtx, "", []ChatTurn{{Role: "user", Content: "ping"}}, GenerateOptions{MaxTokens: 1})
		cancel()
		if err != nil {
			status[p.Name()] = "unhealthy: " + err.Error()
			continue
		}
		status[p.Name()] = "healthy"
	}
	return status
}
