package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arkadyv/diagent"
	"github.com/arkadyv/diagent/registry"
)

func TestSystemPrompt(t *testing.T) {
	type input struct {
		provider diagent.Provider
	}

	type expected struct {
		contains    []string
		notContains []string
	}

	sequence := registry.DiagnosticSequence()
	steps := strings.Join(sequence, " -> ")

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:  "anthropic uses tags",
			input: input{provider: diagent.ProviderAnthropic},
			expected: expected{
				contains:    []string{"<role>", "<method>", "<output>", steps},
				notContains: []string{"## Role"},
			},
		},
		{
			name:  "openai uses markdown headings",
			input: input{provider: diagent.ProviderOpenAI},
			expected: expected{
				contains:    []string{"## Role", "## Method", "## Output", steps},
				notContains: []string{"<role>"},
			},
		},
		{
			name:  "local is a single compact block",
			input: input{provider: diagent.ProviderLocal},
			expected: expected{
				contains:    []string{steps, "Be brief"},
				notContains: []string{"## Role", "<role>"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt := systemPrompt(tt.input.provider, sequence)

			for _, want := range tt.expected.contains {
				assert.Contains(t, prompt, want)
			}
			for _, unwanted := range tt.expected.notContains {
				assert.NotContains(t, prompt, unwanted)
			}
		})
	}
}

func TestSystemPrompt_LocalIsShortest(t *testing.T) {
	sequence := registry.DiagnosticSequence()

	local := systemPrompt(diagent.ProviderLocal, sequence)
	openai := systemPrompt(diagent.ProviderOpenAI, sequence)

	assert.Less(t, len(local), len(openai))
}

func TestReasoningPreamble(t *testing.T) {
	assert.Equal(t, "Earlier findings:", reasoningPreamble(diagent.ProviderLocal))
	assert.Contains(t, reasoningPreamble(diagent.ProviderOpenAI), "Condensed reasoning")
	assert.Contains(t, reasoningPreamble(diagent.ProviderAnthropic), "Condensed reasoning")
}
