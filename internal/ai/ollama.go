package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaModel = "llama3.2"

// OllamaProvider talks to a local Ollama daemon over its /api/chat endpoint.
// Availability is configuration-driven: if OLLAMA_URL is unset the provider
// is simply not constructed, no reachability probe happens at startup.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewOllamaProvider(baseURL string) (*OllamaProvider, error) {
	if baseURL == "" {
		return nil, ErrNotConfigured
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
	}, nil
}

func (p *OllamaProvider) Name() string { return ProviderOllama }

func (p *OllamaProvider) Matches(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "llama") || strings.Contains(m, "mistral") || strings.Contains(m, "qwen")
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

func (p *OllamaProvider) Generate(ctx context.Context, system string, turns []ChatTurn, opts GenerateOptions) (*GenerationResult, error) {
	model := opts.Model
	if model == "" {
		model = defaultOllamaModel
	}

	messages := make([]ollamaMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: system})
	}
	for _, turn := range turns {
		messages = append(messages, ollamaMessage{Role: turn.Role, Content: turn.Content})
	}

	reqBody := ollamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}
	if opts.Temperature > 0 || opts.TopP > 0 || opts.TopK > 0 || opts.MaxTokens > 0 || len(opts.StopSequences) > 0 {
		reqBody.Options = &ollamaOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			TopK:        opts.TopK,
			NumPredict:  opts.MaxTokens,
			Stop:        opts.StopSequences,
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if apiResp.Error != "" {
		return nil, fmt.Errorf("API error: %s", apiResp.Error)
	}
	if apiResp.Message.Content == "" {
		return nil, fmt.Errorf("no content in response")
	}

	return &GenerationResult{
		Content:      apiResp.Message.Content,
		Provider:     ProviderOllama,
		Model:        model,
		TokensUsed:   apiResp.PromptEvalCount + apiResp.EvalCount,
		FinishReason: apiResp.DoneReason,
	}, nil
}
