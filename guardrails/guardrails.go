// Package guardrails screens raw user input before it enters the
// orchestration loop. It enforces length bounds, strips control characters,
// normalizes whitespace, and scans for prompt-injection patterns.
package guardrails

import (
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// Result is the outcome of validating one piece of user input. It is
// transient and never persisted.
type Result struct {
	// Valid reports whether the input may proceed to the model.
	Valid bool

	// SanitizedInput is the cleaned text, set when Valid.
	SanitizedInput string

	// Reason describes why the input was rejected, set when !Valid.
	Reason string

	// Warnings lists pattern matches that were allowed through in
	// permissive mode. Logged, never blocking.
	Warnings []string
}

// Config controls the validator.
type Config struct {
	// MinLength and MaxLength bound the input size in characters,
	// measured after control characters are stripped.
	MinLength int
	MaxLength int

	// Strict rejects on any injection-pattern match. The default is
	// permissive: matches are logged as warnings and the input passes,
	// because legitimate technical text (IP addresses, protocol jargon,
	// pasted command output) can collide with pattern substrings.
	Strict bool

	// Rules are the injection patterns to scan for. Nil means
	// DefaultRules().
	Rules []Rule
}

// DefaultConfig returns the production defaults: 2..10000 characters,
// permissive mode, built-in rules.
func DefaultConfig() Config {
	return Config{
		MinLength: 2,
		MaxLength: 10000,
		Strict:    false,
	}
}

// Validator validates and sanitizes user input. It is a pure function over
// its configuration and input; safe for concurrent use.
type Validator struct {
	cfg    Config
	rules  []Rule
	logger *zap.Logger
}

// New creates a Validator. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Validator {
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultConfig().MinLength
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultConfig().MaxLength
	}
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{cfg: cfg, rules: rules, logger: logger}
}

// Validate runs the full guardrail pipeline:
//
//  1. Strip non-printable control characters (newline and tab survive).
//  2. Enforce length bounds.
//  3. Scan against injection-pattern rules.
//  4. Normalize whitespace.
//
// Newlines are preserved through normalization: multi-line diagnostic input
// such as pasted ipconfig output keeps its line structure. Runs of spaces and
// tabs within a line collapse to a single space, and runs of blank lines
// collapse to a single newline.
func (v *Validator) Validate(raw string) Result {
	stripped := stripControl(raw)

	if n := len([]rune(stripped)); n < v.cfg.MinLength {
		return Result{
			Valid:  false,
			Reason: fmt.Sprintf("input too short: %d characters (minimum %d)", n, v.cfg.MinLength),
		}
	} else if n > v.cfg.MaxLength {
		return Result{
			Valid:  false,
			Reason: fmt.Sprintf("input too long: %d characters (maximum %d)", n, v.cfg.MaxLength),
		}
	}

	var warnings []string
	for _, rule := range v.rules {
		if !rule.Pattern.MatchString(stripped) {
			continue
		}
		if v.cfg.Strict {
			v.logger.Warn("guardrail rejected input",
				zap.String("reason", rule.Reason),
			)
			return Result{
				Valid:  false,
				Reason: "potential prompt injection: " + rule.Reason,
			}
		}
		v.logger.Warn("guardrail pattern matched, passing in permissive mode",
			zap.String("reason", rule.Reason),
		)
		warnings = append(warnings, rule.Reason)
	}

	return Result{
		Valid:          true,
		SanitizedInput: normalizeWhitespace(stripped),
		Warnings:       warnings,
	}
}

// stripControl removes non-printable control characters, keeping newline and
// tab so line structure and pasted tabular output survive.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// normalizeWhitespace collapses runs of spaces and tabs to a single space
// within each line, trims line edges, and drops blank lines. Non-blank lines
// keep their newline separators so multi-line input stays multi-line.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
