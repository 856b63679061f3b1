package output

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSnippet_ShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "operating income", snippet("operating income"))
}

func TestSnippet_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "cash flow", snippet("cash\n\t  flow"))
}

func TestSnippet_TruncatesOnRuneBoundary(t *testing.T) {
	// Given: a multi-byte currency symbol straddling the cut position
	text := strings.Repeat("a", snippetLen-1) + "€uro budget overview"

	got := snippet(text)

	// Then: the cut lands on a rune boundary, never mid-sequence
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", snippetLen-1)+"…", got)
}
