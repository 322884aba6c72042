package guardrails

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule is one injection pattern with a human-readable reason reported on
// match.
type Rule struct {
	Pattern *regexp.Regexp
	Reason  string
}

// DefaultRules returns the built-in injection patterns: instruction
// overrides, role hijacks, system-prompt extraction, delimiter injection,
// and session-reset phrases. All patterns are case-insensitive.
func DefaultRules() []Rule {
	return []Rule{
		{
			Pattern: regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions|prompts|rules)`),
			Reason:  "instruction override attempt",
		},
		{
			Pattern: regexp.MustCompile(`(?i)\byou\s+are\s+now\s+(a|an|the)\b`),
			Reason:  "role hijack attempt",
		},
		{
			Pattern: regexp.MustCompile(`(?i)(reveal|show|print|repeat|output)\s+(your|the)\s+(system\s+prompt|initial\s+instructions|hidden\s+instructions)`),
			Reason:  "system prompt extraction attempt",
		},
		{
			Pattern: regexp.MustCompile(`(?i)(<\|im_start\|>|<\|im_end\|>|\[INST\]|\[/INST\]|<<SYS>>|</?system>)`),
			Reason:  "delimiter injection marker",
		},
		{
			Pattern: regexp.MustCompile(`(?i)(begin|start)\s+(a\s+)?new\s+(session|conversation|chat)`),
			Reason:  "session reset phrase",
		},
	}
}

// ruleSpec is the on-disk YAML shape of a rule.
type ruleSpec struct {
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason"`
}

// LoadRules reads custom rules from a YAML file:
//
//   - pattern: '(?i)do\s+anything\s+now'
//     reason: jailbreak phrase
//
// Patterns are compiled eagerly so a bad rule fails at startup, not
// mid-conversation.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guardrail rules: %w", err)
	}

	var specs []ruleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse guardrail rules: %w", err)
	}

	rules := make([]Rule, 0, len(specs))
	for i, spec := range specs {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("guardrail rule %d (%q): %w", i, spec.Reason, err)
		}
		if spec.Reason == "" {
			return nil, fmt.Errorf("guardrail rule %d: missing reason", i)
		}
		rules = append(rules, Rule{Pattern: re, Reason: spec.Reason})
	}
	return rules, nil
}
