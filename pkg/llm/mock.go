package llm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Mock is a provider fake with controllable latency and failure injection.
// Tests use it instead of fixed-duration sleeps: the provider call is the
// real suspension point.
type Mock struct {
	mu       sync.Mutex
	Latency  time.Duration
	FailNext int   // number of upcoming calls that fail
	Err      error // error returned on injected failures
	Response string
	calls    int
}

// NewMock creates a mock provider returning canned responses.
func NewMock() *Mock {
	return &Mock{Response: "ok"}
}

func (m *Mock) ID() string   { return "mock" }
func (m *Mock) Name() string { return "Mock Provider" }

// Calls returns how many generation calls were made.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Mock) step(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	latency := m.Latency
	var err error
	if m.FailNext > 0 {
		m.FailNext--
		err = m.Err
		if err == nil {
			err = context.DeadlineExceeded
		}
	}
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(latency):
		}
	}
	return err
}

func (m *Mock) Generate(ctx context.Context, messages []Message, opts Options) (*TextResponse, error) {
	if err := m.step(ctx); err != nil {
		return nil, err
	}
	var input int
	for _, msg := range messages {
		input += len(msg.Content) / 4
	}
	return &TextResponse{
		Text:         m.Response,
		InputTokens:  input,
		OutputTokens: len(m.Response) / 4,
	}, nil
}

func (m *Mock) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := m.step(ctx); err != nil {
		return nil, err
	}
	return &ChatResponse{
		Message:      Message{Role: RoleAssistant, Content: m.Response},
		OutputTokens: len(m.Response) / 4,
	}, nil
}

func (m *Mock) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan Chunk, error) {
	if err := m.step(ctx); err != nil {
		return nil, err
	}

	// Buffered by one so the terminal chunk never blocks on a receiver
	// that stopped draining after cancellation.
	ch := make(chan Chunk, 1)
	go func() {
		defer close(ch)
		for _, word := range strings.Fields(m.Response) {
			select {
			case <-ctx.Done():
				select {
				case ch <- Chunk{Err: ctx.Err()}:
				default:
				}
				return
			case ch <- Chunk{Delta: word + " "}:
			}
		}
		select {
		case ch <- Chunk{Done: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
