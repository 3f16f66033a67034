package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter     metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	TokensUsed         metric.Int64Counter
	DocumentsProcessed metric.Int64Counter
	SearchResults      metric.Int64Histogram
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("docrag-platform")

	requestCounter, err := meter.Int64Counter(
		"chat.requests.total",
		metric.WithDescription("Total chat requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"chat.request.duration",
		metric.WithDescription("Chat request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"llm.tokens.used",
		metric.WithDescription("Total LLM tokens used"),
	)
	if err != nil {
		return nil, err
	}

	documentsProcessed, err := meter.Int64Counter(
		"documents.processed",
		metric.WithDescription("Documents fully ingested"),
	)
	if err != nil {
		return nil, err
	}

	searchResults, err := meter.Int64Histogram(
		"vector.search.results",
		metric.WithDescription("Hits returned per vector search"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:     requestCounter,
		RequestDuration:    requestDuration,
		TokensUsed:         tokensUsed,
		DocumentsProcessed: documentsProcessed,
		SearchResults:      searchResults,
	}, nil
}

// RecordChatRequest records one chat round trip.
func (m *Metrics) RecordChatRequest(status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("chat.status", status),
	}
	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records provider-reported token usage.
func (m *Metrics) RecordTokensUsed(tokens int64, provider, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	}
	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordDocumentProcessed records one completed or failed ingestion.
func (m *Metrics) RecordDocumentProcessed(status string) {
	attrs := []attribute.KeyValue{
		attribute.String("document.status", status),
	}
	m.DocumentsProcessed.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordSearchResults records retrieval hit counts.
func (m *Metrics) RecordSearchResults(hits int64) {
	m.SearchResults.Record(context.Background(), hits)
}
