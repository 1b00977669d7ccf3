package chunk

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	akierrors "github.com/evanwmart/augmented-knowledge-interfaces/internal/errors"
)

func TestNewChunker_RejectsBadSizes(t *testing.T) {
	_, err := NewChunker(0, 0)
	assert.True(t, stderrors.Is(err, akierrors.ErrInvalidConfig))

	_, err = NewChunker(100, 100)
	assert.True(t, stderrors.Is(err, akierrors.ErrInvalidConfig))

	_, err = NewChunker(100, -1)
	assert.Error(t, err)

	_, err = NewChunker(100, 10)
	assert.NoError(t, err)
}

func TestChunk_EmptyInput(t *testing.T) {
	c, err := NewChunker(100, 10)
	require.NoError(t, err)

	assert.Nil(t, c.Chunk("", "empty.md"))
	assert.Nil(t, c.Chunk("   \n\n\t", "blank.md"))
}

func TestChunk_Deterministic(t *testing.T) {
	c, err := NewChunker(50, 5)
	require.NoError(t, err)

	doc := "# Setup\n\n" + strings.Repeat("alpha beta gamma delta epsilon. ", 40)

	first := c.Chunk(doc, "setup.md")
	second := c.Chunk(doc, "setup.md")

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Position, second[i].Position)
	}
}

func TestChunk_IDChangesWithContent(t *testing.T) {
	c, err := NewChunker(100, 0)
	require.NoError(t, err)

	a := c.Chunk("install the package with apt", "a.md")
	b := c.Chunk("install the package with brew", "a.md")

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.NotEqual(t, a[0].ID, b[0].ID)
}

func TestChunk_IDChangesWithPath(t *testing.T) {
	c, err := NewChunker(100, 0)
	require.NoError(t, err)

	a := c.Chunk("same text", "a.md")
	b := c.Chunk("same text", "b.md")
	assert.NotEqual(t, a[0].ID, b[0].ID)
}

func TestChunk_HeadingPaths(t *testing.T) {
	c, err := NewChunker(200, 0)
	require.NoError(t, err)

	doc := `# Install

General install notes here with enough words to matter.

## Linux

Use the package manager to install everything you need.

## macOS

Use homebrew instead for the whole toolchain.

# Usage

Run the binary from your shell.
`
	chunks := c.Chunk(doc, "guide.md")
	require.GreaterOrEqual(t, len(chunks), 4)

	headings := make([]string, len(chunks))
	for i, ch := range chunks {
		headings[i] = ch.Heading
	}
	assert.Contains(t, headings, "Install")
	assert.Contains(t, headings, "Install > Linux")
	assert.Contains(t, headings, "Install > macOS")
	assert.Contains(t, headings, "Usage")
}

func TestChunk_OverlapRepeatsTrailingTokens(t *testing.T) {
	c, err := NewChunker(30, 5)
	require.NoError(t, err)

	var b strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "word%03d ", i)
	}
	chunks := c.Chunk(b.String(), "long.txt")
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prevTokens := strings.Fields(chunks[i-1].Text)
		tail := prevTokens[len(prevTokens)-5:]
		curTokens := strings.Fields(chunks[i].Text)
		require.GreaterOrEqual(t, len(curTokens), 5)
		assert.Equal(t, tail, curTokens[:5], "chunk %d should start with predecessor's tail", i)
	}
}

func TestChunk_RespectsMaxTokensOnWindows(t *testing.T) {
	c, err := NewChunker(40, 0)
	require.NoError(t, err)

	para := strings.TrimSpace(strings.Repeat("token ", 200))
	chunks := c.Chunk(para, "big.txt")
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 40+MinChunkTokens)
	}
}

func TestChunk_FrontmatterStripped(t *testing.T) {
	c, err := NewChunker(200, 0)
	require.NoError(t, err)

	doc := "---\ntitle: Guide\nauthor: someone\n---\n\n# Intro\n\nActual body text lives here.\n"
	chunks := c.Chunk(doc, "doc.md")
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.NotContains(t, ch.Text, "author: someone")
	}
}

func TestChunk_CodeBlocksStayWhole(t *testing.T) {
	c, err := NewChunker(60, 0)
	require.NoError(t, err)

	code := "```go\nfunc main() {\n\n\tprintln(\"hi\")\n\n}\n```"
	doc := "# Example\n\nSome intro text.\n\n" + code + "\n\nTrailing text.\n"

	chunks := c.Chunk(doc, "ex.md")
	var found bool
	for _, ch := range chunks {
		if strings.Contains(ch.Text, "func main()") {
			assert.Contains(t, ch.Text, "```go")
			assert.Contains(t, ch.Text, "println")
			found = true
		}
	}
	assert.True(t, found, "code block content should survive chunking intact")
}

func TestChunk_HeadingInsideCodeBlockIgnored(t *testing.T) {
	c, err := NewChunker(200, 0)
	require.NoError(t, err)

	doc := "# Real\n\nText before.\n\n```sh\n# not a heading\necho hi\n```\n\nText after.\n"
	chunks := c.Chunk(doc, "cb.md")
	for _, ch := range chunks {
		assert.NotContains(t, ch.Heading, "not a heading")
	}
}

func TestChunk_PositionsAreOrdinal(t *testing.T) {
	c, err := NewChunker(30, 0)
	require.NoError(t, err)

	doc := strings.TrimSpace(strings.Repeat("some words in a paragraph here ", 50))
	chunks := c.Chunk(doc, "ord.txt")
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
	}
}

func TestPreprocess_StripsHTML(t *testing.T) {
	html := `<html><head><script>ignore()</script></head>
<body><h1>Install</h1><p>Use &amp; enjoy the tool.</p></body></html>`

	text := Preprocess([]byte(html), "guide.html")
	assert.NotContains(t, text, "<p>")
	assert.NotContains(t, text, "ignore()")
	assert.Contains(t, text, "Install")
	assert.Contains(t, text, "Use & enjoy")
}

func TestPreprocess_PassThroughForMarkdown(t *testing.T) {
	md := "# Title\n\n<not-html> literal\n"
	assert.Equal(t, md, Preprocess([]byte(md), "t.md"))
}
