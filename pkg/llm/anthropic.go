package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

const (
	anthropicAPIURL  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
	defaultModel     = "claude-sonnet-4-20250514"
)

// HTTPClient abstracts http.Client for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Anthropic is a thin client for the Anthropic messages API.
type Anthropic struct {
	apiKey  string
	baseURL string
	client  HTTPClient
}

// NewAnthropic creates a client. An empty key falls back to
// ANTHROPIC_API_KEY.
func NewAnthropic(apiKey string) *Anthropic {
	return NewAnthropicWithClient(apiKey, &http.Client{})
}

// NewAnthropicWithClient creates a client with a custom HTTP transport.
func NewAnthropicWithClient(apiKey string, client HTTPClient) *Anthropic {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return &Anthropic{apiKey: apiKey, baseURL: anthropicAPIURL, client: client}
}

// SetBaseURL overrides the API endpoint, for proxies and tests.
func (a *Anthropic) SetBaseURL(url string) {
	if url != "" {
		a.baseURL = url
	}
}

func (a *Anthropic) ID() string   { return "anthropic" }
func (a *Anthropic) Name() string { return "Anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *Anthropic) buildRequest(messages []Message, opts Options, stream bool) anthropicRequest {
	req := anthropicRequest{
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
		Temperature: opts.Temperature,
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = 4096
	}
	for _, m := range messages {
		if m.Role == RoleSystem {
			req.System = m.Content
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return req
}

func (a *Anthropic) call(ctx context.Context, body anthropicRequest) (*anthropicResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != nil {
			return nil, fmt.Errorf("anthropic: %s: %s", out.Error.Type, out.Error.Message)
		}
		return nil, fmt.Errorf("anthropic: unexpected status %d", resp.StatusCode)
	}
	return &out, nil
}

func (a *Anthropic) Generate(ctx context.Context, messages []Message, opts Options) (*TextResponse, error) {
	out, err := a.call(ctx, a.buildRequest(messages, opts, false))
	if err != nil {
		return nil, err
	}
	var text strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	return &TextResponse{
		Text:         text.String(),
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}, nil
}

func (a *Anthropic) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	out, err := a.Generate(ctx, req.Messages, req.Options)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{
		Message:      Message{Role: RoleAssistant, Content: out.Text},
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
	}, nil
}

func (a *Anthropic) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan Chunk, error) {
	body := a.buildRequest(req.Messages, req.Options, true)
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic: unexpected status %d", resp.StatusCode)
	}

	// Buffered by one so terminal chunks never block when the receiver
	// cancels and stops draining; the goroutine must always reach the
	// deferred Body close.
	ch := make(chan Chunk, 1)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		terminal := func(c Chunk) {
			select {
			case ch <- c:
			case <-ctx.Done():
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")

			var event struct {
				Type  string `json:"type"`
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
			}
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				continue
			}
			switch event.Type {
			case "content_block_delta":
				select {
				case <-ctx.Done():
					select {
					case ch <- Chunk{Err: ctx.Err()}:
					default:
					}
					return
				case ch <- Chunk{Delta: event.Delta.Text}:
				}
			case "message_stop":
				terminal(Chunk{Done: true})
				return
			}
		}
		if err := scanner.Err(); err != nil {
			terminal(Chunk{Err: err})
		}
	}()
	return ch, nil
}
