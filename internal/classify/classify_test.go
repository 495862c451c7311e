package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layout-translator/internal/types"
)

func TestIsFormulaDefaults(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		font string
		char string
		want bool
	}{
		{"cid placeholder", "Times-Roman", "(cid:12)", true},
		{"computer modern math", "CMMI10", "x", true},
		{"subset prefix stripped", "ABCDEF+CMSY10", "a", true},
		{"roman computer modern is prose", "CMR10", "a", false},
		{"italic suffix", "NimbusRomNo9L-ReguItal", "a", true},
		{"monospace", "DejaVuSansMono", "a", true},
		{"plain latin", "Times-Roman", "a", false},
		{"math symbol category", "Times-Roman", "∑", true},
		{"combining mark", "Times-Roman", "\u0301", true},
		{"greek letter", "Times-Roman", "α", true},
		{"space is never formula", "Times-Roman", " ", false},
		{"no-break space is a separator", "Times-Roman", "\u00a0", true},
		{"digit", "Times-Roman", "7", false},
		{"empty char", "Times-Roman", "", false},
		{"bullet", "Times-Roman", "•", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsFormula(tt.font, tt.char))
		})
	}
}

func TestIsFormulaCustomPatterns(t *testing.T) {
	c, err := New("Courier", "[0-9]")
	require.NoError(t, err)

	assert.True(t, c.IsFormula("Courier-Bold", "a"))
	assert.False(t, c.IsFormula("CMMI10", "a"), "custom font pattern replaces the built-in one")
	assert.True(t, c.IsFormula("Times-Roman", "7"))
	assert.False(t, c.IsFormula("Times-Roman", "∑"), "custom char pattern replaces category rules")
	assert.True(t, c.IsFormula("Times-Roman", "(cid:3)"))
}

func TestPatternsAnchoredAtStart(t *testing.T) {
	c, err := New("Math", "")
	require.NoError(t, err)

	assert.True(t, c.IsFormula("MathFont", "a"))
	assert.False(t, c.IsFormula("SomeMath", "a"))
}

func TestNewInvalidPattern(t *testing.T) {
	_, err := New("(", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))

	_, err = New("", "[")
	require.Error(t, err)
}

func TestIsFormulaPure(t *testing.T) {
	c := Default()
	for i := 0; i < 3; i++ {
		assert.True(t, c.IsFormula("CMMI10", "x"))
		assert.False(t, c.IsFormula("Times-Roman", "x"))
	}
}
