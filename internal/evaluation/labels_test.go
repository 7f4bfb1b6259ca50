package evaluation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCanonicalizesAliases(t *testing.T) {
	cases := map[string]string{
		"":                "",
		"   ":             "",
		"MATH":            "math",
		" Mathematics ":   "math",
		"geography":       "geo",
		"Geo":             "geo",
		"Sports":          "sports",
		"sport":           "sports",
		"Misc":            "other",
		"Quantum  Optics": "quantum optics",
		"unknown":         UnknownLabel,
	}

	for input, expected := range cases {
		require.Equal(t, expected, Normalize(input), "input %q", input)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{"", " ", "MATH", "geography", "  Hist ", "anything else", "\tLit\n", "ÜBER", "x  y\tz"}
	for alias := range labelAliases {
		inputs = append(inputs, alias, " "+alias+" ")
	}

	for _, input := range inputs {
		once := Normalize(input)
		require.Equal(t, once, Normalize(once), "input %q", input)
	}
}

func TestMatchesIsCaseInsensitive(t *testing.T) {
	require.True(t, Matches("MATH", "math"))
	require.True(t, Matches("geography", "geo"))
	require.False(t, Matches("history", "geo"))
	require.False(t, Matches(UnknownLabel, "math"))
}
