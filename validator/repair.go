package validator

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Recovery helpers. Nothing here is required to pass validation; they exist
// so the orchestrator can degrade gracefully on near-miss LLM output instead
// of discarding it.

// maxSuggestionDistance bounds how far a hallucinated name may be from a
// registered one before suggestions stop.
const maxSuggestionDistance = 3

// SuggestToolName returns the closest registered tool name for a near-miss
// hallucinated name, by Levenshtein distance. Returns ok=false when nothing
// registered is close enough.
func (v *Validator) SuggestToolName(name string) (string, bool) {
	best := ""
	bestDist := maxSuggestionDistance + 1
	for _, def := range v.registry.Definitions() {
		d := levenshtein(strings.ToLower(name), strings.ToLower(def.Name))
		if d < bestDist {
			bestDist = d
			best = def.Name
		}
	}
	if best == "" || bestDist > maxSuggestionDistance {
		return "", false
	}
	return best, true
}

var (
	smartQuotes   = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	singleQuoted  = regexp.MustCompile(`'([^']*)'`)
)

// RepairArguments attempts a small set of mechanical repairs on a malformed
// JSON argument string before giving up: smart-quote normalization,
// trailing-comma removal, and single-to-double quote conversion. Returns
// ok=false when the string still does not decode to a JSON object.
func RepairArguments(raw string) (map[string]any, bool) {
	candidates := []string{raw}

	fixed := smartQuotes.Replace(raw)
	fixed = trailingComma.ReplaceAllString(fixed, "$1")
	candidates = append(candidates, fixed)

	// Single-quoted keys and values are the most common local-model slip.
	candidates = append(candidates, singleQuoted.ReplaceAllString(fixed, `"$1"`))

	for _, candidate := range candidates {
		var out map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(candidate)), &out); err == nil {
			return out, true
		}
	}
	return nil, false
}

// levenshtein computes edit distance with a two-row dynamic programming
// table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
