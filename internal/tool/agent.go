package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/seva/axon/pkg/llm"
)

// AgentTool is the name of the default step execution tool. Plan steps
// that name no explicit tool carry a call to it, so every step passes
// through the policy gate and the resilience layer.
const AgentTool = "agent"

// ErrEmptyStep indicates an agent call with no work description.
var ErrEmptyStep = errors.New("empty step description")

const agentPrompt = `Carry out the following implementation step and report the outcome concisely.

Step: %s`

// NewAgentRunner returns the tool that executes a plan step. With a
// provider it asks the model to carry the step out; without one it
// acknowledges the step so offline runs still complete. Dependency
// outputs arrive under the "inputs" parameter and are appended to the
// prompt as context.
func NewAgentRunner(provider llm.Provider) Executor {
	return Func{
		Meta: Info{Name: AgentTool, Description: "Execute a plan step via the configured agent"},
		Run: func(ctx context.Context, params map[string]any) (*Result, error) {
			desc, _ := params["description"].(string)
			desc = strings.TrimSpace(desc)
			if desc == "" {
				return nil, ErrEmptyStep
			}

			prompt := fmt.Sprintf(agentPrompt, desc)
			if inputs, ok := params["inputs"].(map[string]string); ok && len(inputs) > 0 {
				var b strings.Builder
				b.WriteString(prompt)
				b.WriteString("\n\nOutputs of prerequisite steps:")
				for id, out := range inputs {
					fmt.Fprintf(&b, "\n- %s: %s", id, out)
				}
				prompt = b.String()
			}

			if provider == nil {
				return &Result{Output: desc}, nil
			}

			resp, err := provider.Generate(ctx, []llm.Message{
				{Role: llm.RoleUser, Content: prompt},
			}, llm.Options{MaxTokens: 4096})
			if err != nil {
				return nil, err
			}
			return &Result{
				Output: resp.Text,
				Metadata: map[string]any{
					"input_tokens":  resp.InputTokens,
					"output_tokens": resp.OutputTokens,
				},
			}, nil
		},
	}
}
