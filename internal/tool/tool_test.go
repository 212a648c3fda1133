package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seva/axon/internal/domain"
	"github.com/seva/axon/pkg/llm"
)

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(NewEcho())

	res, err := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Output)
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, domain.ErrTool)

	var terr *domain.ToolError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "nope", terr.Tool)
}

func TestRegistryWrapsFailures(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register(Func{
		Meta: Info{Name: "broken"},
		Run: func(ctx context.Context, params map[string]any) (*Result, error) {
			return nil, boom
		},
	})

	_, err := r.Execute(context.Background(), "broken", nil)
	assert.ErrorIs(t, err, domain.ErrTool)
	// The original cause stays reachable through the wrapper.
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "boom")
}

func TestAgentRunnerWithoutProvider(t *testing.T) {
	runner := NewAgentRunner(nil)
	assert.Equal(t, AgentTool, runner.Info().Name)

	res, err := runner.Execute(context.Background(), map[string]any{"description": "index the sources"})
	require.NoError(t, err)
	assert.Equal(t, "index the sources", res.Output)
}

func TestAgentRunnerUsesProvider(t *testing.T) {
	mock := llm.NewMock()
	mock.Response = "step carried out"
	runner := NewAgentRunner(mock)

	res, err := runner.Execute(context.Background(), map[string]any{
		"description": "summarize findings",
		"inputs":      map[string]string{"step-1": "raw data"},
	})
	require.NoError(t, err)
	assert.Equal(t, "step carried out", res.Output)
	assert.Contains(t, res.Metadata, "output_tokens")
	assert.Equal(t, 1, mock.Calls())
}

func TestAgentRunnerRejectsEmptyDescription(t *testing.T) {
	runner := NewAgentRunner(nil)

	_, err := runner.Execute(context.Background(), map[string]any{"description": "  "})
	assert.ErrorIs(t, err, ErrEmptyStep)

	_, err = runner.Execute(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyStep)
}

func TestRegistryAllPreservesOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(Func{Meta: Info{Name: "b"}})
	r.Register(Func{Meta: Info{Name: "a"}})

	infos := r.All()
	require.Len(t, infos, 2)
	assert.Equal(t, "b", infos[0].Name)
	assert.Equal(t, "a", infos[1].Name)
}
