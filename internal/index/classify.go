package index

import "strings"

// Mode selects which FTS table(s) a query targets.
type Mode string

const (
	ModeNatural Mode = "natural"
	ModeCode    Mode = "code"
	ModeMixed   Mode = "mixed"
)

// Classify applies the mode heuristic: presence of path separators,
// dotted identifiers, camelCase tokens, or bracketed syntax indicates
// code; otherwise natural. A query with both a
// code-shaped term and plain words classifies as mixed so both
// indexes are queried and union-ranked.
func Classify(query string) Mode {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ModeNatural
	}

	codeTerms, naturalTerms := 0, 0
	for _, f := range fields {
		if looksLikeCode(f) {
			codeTerms++
		} else {
			naturalTerms++
		}
	}

	switch {
	case codeTerms > 0 && naturalTerms == 0:
		return ModeCode
	case codeTerms > 0 && naturalTerms > 0:
		return ModeMixed
	default:
		return ModeNatural
	}
}

func looksLikeCode(term string) bool {
	if strings.ContainsAny(term, "/\\[]{}()<>") {
		return true
	}
	if strings.Contains(term, "_") {
		return true
	}
	// Dotted identifier: at least one internal '.' with no surrounding
	// whitespace, not a sentence-ending period.
	if i := strings.Index(term, "."); i > 0 && i < len(term)-1 {
		return true
	}
	if hasCamelCase(term) {
		return true
	}
	return false
}

// hasCamelCase reports a lowercase-to-uppercase transition inside the
// term, e.g. "parseJson".
func hasCamelCase(term string) bool {
	for i := 1; i < len(term); i++ {
		prev, cur := term[i-1], term[i]
		if prev >= 'a' && prev <= 'z' && cur >= 'A' && cur <= 'Z' {
			return true
		}
	}
	return false
}
