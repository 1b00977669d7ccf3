package chunk

// Chunking defaults. Tokens are whitespace-delimited words, which tracks
// closely enough with model tokenizers for sizing purposes.
const (
	DefaultMaxTokens     = 500
	DefaultOverlapTokens = 50

	// MinChunkTokens drops fragments too small to be useful retrieval
	// units, unless they are a document's only chunk.
	MinChunkTokens = 10
)

// Chunk is the atomic unit of indexing and retrieval: a bounded,
// positioned slice of a source document.
type Chunk struct {
	// ID is a stable hash of (source path, position, text). Re-chunking
	// unchanged content reproduces the same id; changed content gets a
	// different one.
	ID string

	// SourcePath is the document path relative to the corpus root.
	SourcePath string

	// Heading is the nearest preceding heading path, e.g. "Install > Linux".
	// Empty for content before the first heading.
	Heading string

	// Position is the 0-based ordinal of this chunk within its document.
	Position int

	// Text is the chunk content, including any overlap carried from the
	// preceding chunk.
	Text string

	// TokenCount is the number of tokens in Text.
	TokenCount int
}
