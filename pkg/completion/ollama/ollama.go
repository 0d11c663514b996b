// Package ollama implements the completion provider over Ollama's chat API.
// The model is asked to answer in a strict JSON envelope carrying its
// thought and decision.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/strata/pkg/completion"
)

const (
	// DefaultModel is the default chat model.
	DefaultModel = "llama3.2"

	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"
)

const systemPrompt = `You are the reasoning engine of a memory-augmented agent.
Answer with a single JSON object and nothing else:
{"thought": "...", "decision": "respond"|"invoke_tool"|"delegate", "tool": "...", "args": {...}, "text": "..."}
Use "respond" with "text" for a final answer, "invoke_tool" with "tool" and
"args" to act, and "delegate" with "text" as a sub-prompt to think further.`

// Config holds configuration for the Ollama provider.
type Config struct {
	// BaseURL is the Ollama API URL. Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Model is the chat model to use. Defaults to DefaultModel if empty.
	Model string
}

// Provider wraps Ollama's chat API.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// chatMessage is one message in a chat request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the request body for Ollama's chat API.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Format   string        `json:"format,omitempty"`
	Stream   bool          `json:"stream"`
}

// chatResponse is the response from Ollama's chat API.
type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// NewProvider creates a new completion provider using Ollama's chat API.
func NewProvider(cfg Config) (*Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Provider{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// Name returns "ollama".
func (p *Provider) Name() string { return "ollama" }

// Complete runs one think/decide step against the chat API.
func (p *Provider) Complete(ctx context.Context, req completion.Request) (*completion.Resolution, error) {
	reqBody := chatRequest{
		Model:  p.model,
		Format: "json",
		Stream: false,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserMessage(req)},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return parseResolution(chatResp.Message.Content)
}

// Close releases resources held by the provider.
func (p *Provider) Close() error {
	return nil
}

func buildUserMessage(req completion.Request) string {
	var b strings.Builder

	if req.Context != "" {
		b.WriteString("Context:\n")
		b.WriteString(req.Context)
		b.WriteString("\n\n")
	}

	if len(req.Constraints) > 0 {
		b.WriteString("Constraints:\n")
		for _, c := range req.Constraints {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Question: ")
	b.WriteString(req.Prompt)

	return b.String()
}

// parseResolution decodes the model's JSON envelope. A model that answers
// with plain text instead of the envelope is treated as a respond decision.
func parseResolution(content string) (*completion.Resolution, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, completion.ErrNoResolution
	}

	var res completion.Resolution
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return &completion.Resolution{
			Decision: completion.DecisionRespond,
			Text:     content,
		}, nil
	}

	if res.Decision == "" {
		res.Decision = completion.DecisionRespond
		if res.Text == "" {
			res.Text = content
		}
	}

	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", completion.ErrNoResolution, err)
	}

	return &res, nil
}
