package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"
)

// AgentClient produces completions through the openai-agents-go SDK, which
// speaks the OpenAI Responses API.
type AgentClient struct {
	provider  agents.ModelProvider
	model     string
	maxTokens int
}

// NewAgentClient creates a backend over an SDK model provider.
func NewAgentClient(provider agents.ModelProvider, model string, maxTokens int) *AgentClient {
	return &AgentClient{provider: provider, model: model, maxTokens: maxTokens}
}

// Complete runs a single-turn agent and concatenates the streamed text deltas.
func (c *AgentClient) Complete(ctx context.Context, system, user string) (string, error) {
	agent := agents.New("summarizer").
		WithInstructions(system).
		WithModel(c.model).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(int64(c.maxTokens)),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   c.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	events, errCh, err := runner.RunStreamedChan(ctx, agent, user)
	if err != nil {
		return "", fmt.Errorf("agent stream start: %w", err)
	}

	var text strings.Builder
	for ev := range events {
		raw, ok := ev.(agents.RawResponsesStreamEvent)
		if !ok {
			continue
		}
		if raw.Data.Type != "response.output_text.delta" {
			continue
		}
		text.WriteString(raw.Data.Delta)
	}

	if streamErr := <-errCh; streamErr != nil {
		return "", fmt.Errorf("agent stream: %w", streamErr)
	}
	return text.String(), nil
}
