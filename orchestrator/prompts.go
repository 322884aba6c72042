package orchestrator

import (
	"fmt"
	"strings"

	"github.com/arkadyv/diagent"
)

// systemPrompt returns the session-seeding system prompt for the active
// provider family. The diagnostic discipline is the same everywhere; the
// formatting differs because provider families respond to different
// structure (tags for Anthropic, Markdown for OpenAI, a compact block for
// local models with small context windows).
func systemPrompt(provider diagent.Provider, sequence []string) string {
	steps := strings.Join(sequence, " -> ")

	switch provider {
	case diagent.ProviderAnthropic:
		return fmt.Sprintf(`You are a network diagnostic assistant.

<role>
Diagnose the user's network problem by gathering evidence with the available
tools before stating any conclusion.
</role>

<method>
Work through the diagnostic sequence in order, skipping steps already ruled
out by evidence: %s.
Call one or more tools each round until the evidence supports a finding.
</method>

<output>
When diagnosis is complete, state the finding, the evidence for it, and
concrete remediation steps the user can perform.
</output>`, steps)

	case diagent.ProviderLocal:
		return fmt.Sprintf(`You are a network diagnostic assistant. Use tools to gather evidence before answering. Tool order: %s. When done, give the finding and fix steps. Be brief.`, steps)

	default:
		return fmt.Sprintf(`You are a network diagnostic assistant.

## Role

Diagnose the user's network problem by gathering evidence with the available
tools before stating any conclusion.

## Method

Work through the diagnostic sequence in order, skipping steps already ruled
out by evidence: %s.
Call one or more tools each round until the evidence supports a finding.

## Output

When diagnosis is complete, state the finding, the evidence for it, and
concrete remediation steps the user can perform.`, steps)
	}
}

// reasoningPreamble labels injected prior-turn context.
func reasoningPreamble(provider diagent.Provider) string {
	if provider == diagent.ProviderLocal {
		return "Earlier findings:"
	}
	return "Condensed reasoning from earlier turns in this conversation:"
}
