package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
)

func TestPatternSetMatch(t *testing.T) {
	set, err := CompilePatterns([]string{"Alice", `(?i)bob`, `\b2\d\b`})
	require.NoError(t, err)

	tests := []struct {
		text string
		want []int
	}{
		{"Hi, I'm Alice, 29", []int{0, 2}},
		{"Hi, I'm BOB", []int{1}},
		{"Hi, I'm Carol, 31", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, set.Match(tt.text))
			assert.Equal(t, tt.want != nil, set.Matches(tt.text))
		})
	}
}

func TestPatternSetInlineFlagsStayLocal(t *testing.T) {
	set, err := CompilePatterns([]string{`(?i)alice`, `Bob`})
	require.NoError(t, err)

	assert.False(t, set.Matches("bob"), "case folding must not leak into the second pattern")
	assert.True(t, set.Matches("ALICE"))
}

func TestPatternSetEmptyNeverMatches(t *testing.T) {
	set, err := CompilePatterns(nil)
	require.NoError(t, err)

	assert.Equal(t, 0, set.Len())
	assert.False(t, set.Matches("anything at all"))
	assert.Nil(t, set.Match("anything at all"))
}

func TestPatternSetCompileError(t *testing.T) {
	_, err := CompilePatterns([]string{"ok", "(unclosed"})
	require.Error(t, err)

	var pe *apperrors.ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperrors.ErrorPatternCompileFailed, pe.Code)
	assert.Equal(t, 1, pe.Details["pattern_index"])
}

func TestPatternSetPatternsIsACopy(t *testing.T) {
	src := []string{"Alice"}
	set, err := CompilePatterns(src)
	require.NoError(t, err)

	src[0] = "Mallory"
	got := set.Patterns()
	got = append(got, "extra")

	assert.Equal(t, []string{"Alice"}, set.Patterns())
	assert.Equal(t, 1, set.Len())
}

func TestPatternSetUnterminatedQuote(t *testing.T) {
	// \Q without \E quotes to the end of the pattern
	set, err := CompilePatterns([]string{`\Q1+1=2`, "Alice"})
	require.NoError(t, err)

	assert.Equal(t, []int{0}, set.Match("sum: 1+1=2"))
	assert.Equal(t, []int{1}, set.Match("Alice"))
	assert.False(t, set.Matches("11=2"))
}
