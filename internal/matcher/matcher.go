// Package matcher implements keyword normalization and message matching.
package matcher

import (
	"strings"

	"keyword_forwarder/internal/model"
)

// Normalize lowercases s, trims it, and collapses internal whitespace
// runs to single spaces. The same normalization is applied to message
// text and keywords so that comparisons line up.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Keywords cleans a configured keyword list: blank entries are dropped
// and duplicates (compared after normalization) are removed while the
// configured order and original casing are kept.
func Keywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	var out []string
	for _, kw := range keywords {
		cleaned := strings.TrimSpace(kw)
		if cleaned == "" {
			continue
		}
		norm := Normalize(cleaned)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

// Match checks text against keywords in configured order and returns the
// first keyword that appears as a normalized substring. Substring
// semantics are deliberate: "cat" matches "category". Empty text or an
// empty keyword set is a normal no-match, never an error.
func Match(text string, keywords []string) model.MatchResult {
	normText := Normalize(text)
	if normText == "" {
		return model.MatchResult{}
	}
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(normText, Normalize(kw)) {
			return model.MatchResult{Matched: true, Keyword: kw}
		}
	}
	return model.MatchResult{}
}
