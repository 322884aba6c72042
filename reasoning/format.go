package reasoning

import (
	"fmt"
	"strings"

	"github.com/arkadyv/diagent"
)

// render formats entries for the target provider. Three renderings of the
// same underlying entries:
//
//   - Anthropic-family models parse structured tags well.
//   - OpenAI-family models prefer Markdown headings.
//   - Local models get a single terse line per entry to save context.
func render(entries []*Entry, provider diagent.Provider) string {
	switch provider {
	case diagent.ProviderAnthropic:
		return renderTagged(entries)
	case diagent.ProviderLocal:
		return renderTerse(entries)
	default:
		return renderMarkdown(entries)
	}
}

// renderTagged wraps each entry in XML-style tags:
//
//	<prior_reasoning turn="1">
//	<summary>...</summary>
//	<tools>check_adapter_status:ok ping_gateway:failed</tools>
//	</prior_reasoning>
func renderTagged(entries []*Entry) string {
	var sb strings.Builder
	for i, entry := range entries {
		fmt.Fprintf(&sb, "<prior_reasoning turn=%q>\n", fmt.Sprintf("%d", i+1))
		if entry.Reasoning != "" {
			fmt.Fprintf(&sb, "<summary>%s</summary>\n", entry.Reasoning)
		}
		if marks := renderMarks(entry.ToolResults); marks != "" {
			fmt.Fprintf(&sb, "<tools>%s</tools>\n", marks)
		}
		sb.WriteString("</prior_reasoning>\n")
	}
	return strings.TrimSpace(sb.String())
}

// renderMarkdown uses headings per prior turn:
//
//	## Prior turn 1
//	...summary...
//	Tools: check_adapter_status (ok), ping_gateway (failed)
func renderMarkdown(entries []*Entry) string {
	var sb strings.Builder
	for i, entry := range entries {
		fmt.Fprintf(&sb, "## Prior turn %d\n", i+1)
		if entry.Reasoning != "" {
			sb.WriteString(entry.Reasoning)
			sb.WriteString("\n")
		}
		if len(entry.ToolResults) > 0 {
			parts := make([]string, len(entry.ToolResults))
			for j, mark := range entry.ToolResults {
				status := "ok"
				if !mark.Success {
					status = "failed"
				}
				parts[j] = fmt.Sprintf("%s (%s)", mark.Name, status)
			}
			fmt.Fprintf(&sb, "Tools: %s\n", strings.Join(parts, ", "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// renderTerse emits one line per entry, newest last:
//
//	[prev] adapter up, gateway unreachable | tools: check_adapter_status:ok ping_gateway:failed
func renderTerse(entries []*Entry) string {
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		line := "[prev] " + firstLine(entry.Reasoning)
		if marks := renderMarks(entry.ToolResults); marks != "" {
			line += " | tools: " + marks
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderMarks(marks []ToolMark) string {
	if len(marks) == 0 {
		return ""
	}
	parts := make([]string, len(marks))
	for i, mark := range marks {
		status := "ok"
		if !mark.Success {
			status = "failed"
		}
		parts[i] = mark.Name + ":" + status
	}
	return strings.Join(parts, " ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
