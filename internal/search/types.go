// Package search implements hybrid retrieval over the lexical and
// semantic indexes. Lexical and semantic scores are min-max normalized
// over the candidate pool and fused with an alpha weight on the
// lexical side.
package search

import (
	"strings"

	akierrors "github.com/evanwmart/augmented-knowledge-interfaces/internal/errors"
)

// Strategy selects how a query is executed. The set is closed; every
// dispatch site switches exhaustively over it.
type Strategy string

const (
	// StrategyLexical queries the BM25 index only.
	StrategyLexical Strategy = "lexical"

	// StrategySemantic queries the vector store only.
	StrategySemantic Strategy = "semantic"

	// StrategyHybrid queries both and fuses with alpha weighting.
	StrategyHybrid Strategy = "hybrid"

	// StrategyAuto classifies the query and picks lexical or hybrid.
	StrategyAuto Strategy = "auto"
)

// Default retrieval parameters.
const (
	// DefaultAlpha is the lexical weight used when none is configured.
	DefaultAlpha = 0.5

	// DefaultTopK is the default result count.
	DefaultTopK = 5

	// MinCandidatePool is the smallest per-side candidate pool for
	// hybrid fusion; larger pools let fusion reorder meaningfully.
	MinCandidatePool = 30
)

// ParseStrategy converts a string to Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyLexical:
		return StrategyLexical, nil
	case StrategySemantic:
		return StrategySemantic, nil
	case StrategyHybrid:
		return StrategyHybrid, nil
	case StrategyAuto, "":
		return StrategyAuto, nil
	default:
		return "", akierrors.Newf(akierrors.ErrCodeInvalidConfig,
			"unknown strategy %q (valid: lexical, semantic, hybrid, auto)", s)
	}
}

// Options configures one Retrieve call.
type Options struct {
	// Strategy selects the retrieval path (default: auto).
	Strategy Strategy

	// Alpha is the weight on the normalized lexical score in hybrid
	// fusion; 1-alpha weights the semantic score. Must be in [0, 1].
	Alpha float64

	// TopK bounds the number of returned results (>= 1).
	TopK int
}

// Validate rejects out-of-range options before any work begins.
func (o *Options) Validate() error {
	if o.Alpha < 0 || o.Alpha > 1 {
		return akierrors.Newf(akierrors.ErrCodeInvalidConfig,
			"alpha must be in [0.0, 1.0], got %g", o.Alpha)
	}
	if o.TopK < 1 {
		return akierrors.Newf(akierrors.ErrCodeInvalidConfig,
			"top_k must be at least 1, got %d", o.TopK)
	}
	if _, err := ParseStrategy(string(o.Strategy)); err != nil {
		return err
	}
	return nil
}

// Result is one retrieved chunk with its score breakdown.
type Result struct {
	// Rank is the 1-based final position after fusion.
	Rank int

	ChunkID    string
	SourcePath string
	Heading    string
	Position   int
	Text       string

	// FusedScore is the score the final ordering sorts by. For pure
	// lexical or semantic retrieval it equals the single side's score.
	FusedScore float64

	// LexicalScore is the raw BM25 score; valid when HasLexical.
	LexicalScore float64
	HasLexical   bool

	// SemanticScore is the raw cosine similarity; valid when HasSemantic.
	SemanticScore float64
	HasSemantic   bool

	// MatchedTerms are the analyzed query terms the lexical index matched.
	MatchedTerms []string

	// Strategy is the strategy that actually executed (after auto
	// classification and degradation).
	Strategy Strategy
}
