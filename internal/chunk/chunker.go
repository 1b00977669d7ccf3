// Package chunk splits documents into overlapping, token-bounded chunks
// with heading metadata and stable, content-derived ids.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	akierrors "github.com/evanwmart/augmented-knowledge-interfaces/internal/errors"
)

// Chunker splits document text into chunks. It is stateless and safe for
// concurrent use.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// Markdown parsing patterns.
var (
	// Matches ATX headings: # Title, ## Title, etc.
	headingPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

	// Matches YAML frontmatter at the start of a document.
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)
)

// NewChunker creates a chunker. maxTokens must be positive and
// overlapTokens must be in [0, maxTokens).
func NewChunker(maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, akierrors.Newf(akierrors.ErrCodeInvalidConfig,
			"max_tokens must be positive, got %d", maxTokens)
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, akierrors.Newf(akierrors.ErrCodeInvalidConfig,
			"overlap_tokens must be in [0, max_tokens), got %d", overlapTokens)
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// Chunk splits document text into ordered chunks. Identical input always
// produces identical chunk boundaries and ids. Empty or whitespace-only
// input produces no chunks.
func (c *Chunker) Chunk(text, sourcePath string) []*Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	body := text
	if m := frontmatterPattern.FindString(body); m != "" {
		body = body[len(m):]
	}

	var pieces []piece
	for _, sec := range parseSections(body) {
		pieces = append(pieces, c.splitSection(sec)...)
	}
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]*Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunkText := p.text
		if i > 0 && c.overlapTokens > 0 {
			tail := trailingTokens(chunks[i-1].Text, c.overlapTokens)
			if tail != "" {
				chunkText = tail + "\n" + chunkText
			}
		}
		chunks = append(chunks, &Chunk{
			ID:         chunkID(sourcePath, i, chunkText),
			SourcePath: sourcePath,
			Heading:    p.heading,
			Position:   i,
			Text:       chunkText,
			TokenCount: len(strings.Fields(chunkText)),
		})
	}
	return chunks
}

// section is a heading-delimited region of the document.
type section struct {
	heading string
	content string
}

// piece is a chunk body before overlap and ids are applied.
type piece struct {
	heading string
	text    string
}

// parseSections splits content on ATX headings, tracking the heading
// hierarchy so each section carries its full path ("Install > Linux").
func parseSections(content string) []section {
	lines := strings.Split(content, "\n")
	headingStack := make([]string, 6)

	var sections []section
	var current strings.Builder
	currentHeading := ""
	inCodeBlock := false

	flush := func() {
		if strings.TrimSpace(current.String()) != "" {
			sections = append(sections, section{heading: currentHeading, content: current.String()})
		}
		current.Reset()
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCodeBlock = !inCodeBlock
		}

		m := headingPattern.FindStringSubmatch(line)
		if m != nil && !inCodeBlock {
			flush()

			level := len(m[1])
			title := strings.TrimSpace(m[2])
			headingStack[level-1] = title
			for i := level; i < 6; i++ {
				headingStack[i] = ""
			}

			var parts []string
			for i := 0; i < level; i++ {
				if headingStack[i] != "" {
					parts = append(parts, headingStack[i])
				}
			}
			currentHeading = strings.Join(parts, " > ")
		}

		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()

	return sections
}

// splitSection turns one section into chunk bodies. Sections within the
// token budget stay whole; oversized sections are packed paragraph by
// paragraph, falling back to hard token windows for giant paragraphs.
func (c *Chunker) splitSection(sec section) []piece {
	content := strings.TrimRight(sec.content, "\n")
	if len(strings.Fields(content)) <= c.maxTokens {
		return []piece{{heading: sec.heading, text: content}}
	}

	var pieces []piece
	var current strings.Builder
	currentTokens := 0

	emit := func() {
		if current.Len() > 0 {
			pieces = append(pieces, piece{heading: sec.heading, text: strings.TrimRight(current.String(), "\n")})
			current.Reset()
			currentTokens = 0
		}
	}

	for _, para := range splitParagraphs(content) {
		paraTokens := len(strings.Fields(para))

		if paraTokens > c.maxTokens {
			emit()
			for _, window := range tokenWindows(para, c.maxTokens) {
				pieces = append(pieces, piece{heading: sec.heading, text: window})
			}
			continue
		}

		if currentTokens > 0 && currentTokens+paraTokens > c.maxTokens {
			emit()
		}
		current.WriteString(para)
		current.WriteString("\n\n")
		currentTokens += paraTokens
	}
	emit()

	return pieces
}

// splitParagraphs splits on blank lines, keeping fenced code blocks whole.
func splitParagraphs(content string) []string {
	parts := strings.Split(content, "\n\n")

	var paragraphs []string
	var block strings.Builder
	inCodeBlock := false

	for _, part := range parts {
		if inCodeBlock {
			block.WriteString("\n\n")
			block.WriteString(part)
			if strings.Count(part, "```")%2 == 1 {
				paragraphs = append(paragraphs, block.String())
				block.Reset()
				inCodeBlock = false
			}
			continue
		}

		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}

		if strings.Count(part, "```")%2 == 1 {
			inCodeBlock = true
			block.WriteString(part)
			continue
		}
		paragraphs = append(paragraphs, trimmed)
	}
	if block.Len() > 0 {
		paragraphs = append(paragraphs, block.String())
	}

	return paragraphs
}

// tokenWindows hard-cuts text into consecutive windows of at most
// maxTokens tokens. A trailing fragment below MinChunkTokens is merged
// into the previous window.
func tokenWindows(text string, maxTokens int) []string {
	tokens := strings.Fields(text)

	var windows []string
	for start := 0; start < len(tokens); start += maxTokens {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		if len(window) < MinChunkTokens && len(windows) > 0 {
			windows[len(windows)-1] += " " + strings.Join(window, " ")
			break
		}
		windows = append(windows, strings.Join(window, " "))
	}
	return windows
}

// trailingTokens returns the last n tokens of text joined by spaces.
func trailingTokens(text string, n int) string {
	tokens := strings.Fields(text)
	if len(tokens) <= n {
		return strings.Join(tokens, " ")
	}
	return strings.Join(tokens[len(tokens)-n:], " ")
}

// chunkID derives a stable chunk id from source path, position, and text.
func chunkID(sourcePath string, position int, text string) string {
	textHash := sha256.Sum256([]byte(text))
	input := fmt.Sprintf("%s:%d:%s", sourcePath, position, hex.EncodeToString(textHash[:])[:16])
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}
