package evaluation

import "strings"

// UnknownLabel marks a question whose classification could not be obtained.
// It is a sentinel and never part of the alias table.
const UnknownLabel = "unknown"

var canonicalLabels = map[string][]string{
	"math":       {"math", "maths", "mathematics", "arithmetic", "algebra"},
	"geo":        {"geo", "geography", "geographic", "geographical"},
	"history":    {"history", "historical", "hist"},
	"science":    {"science", "sci", "scientific"},
	"sports":     {"sport", "sports", "athletics"},
	"literature": {"literature", "lit", "books"},
	"other":      {"other", "misc", "miscellaneous"},
}

var labelAliases = buildAliasIndex(canonicalLabels)

func buildAliasIndex(groups map[string][]string) map[string]string {
	index := make(map[string]string)
	for canonical, aliases := range groups {
		index[canonical] = canonical
		for _, alias := range aliases {
			index[alias] = canonical
		}
	}
	return index
}

// Normalize canonicalizes a raw label for comparison. Known aliases collapse to
// their category token; anything else is returned trimmed and lowercased.
func Normalize(label string) string {
	cleaned := strings.ToLower(strings.Join(strings.Fields(label), " "))
	if cleaned == "" {
		return ""
	}
	if canonical, ok := labelAliases[cleaned]; ok {
		return canonical
	}
	return cleaned
}

// Matches reports whether two labels normalize to the same category.
func Matches(raw, expected string) bool {
	return Normalize(raw) == Normalize(expected)
}
