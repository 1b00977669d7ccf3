package search

import (
	"sort"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/store"
)

// fusedCandidate is one chunk id with its per-side scores during
// fusion. Raw scores are kept for the score breakdown in Result.
type fusedCandidate struct {
	chunkID string

	lexScore     float64
	hasLexical   bool
	lexRank      int // 1-based position in the lexical list, 0 if absent
	matchedTerms []string

	semScore    float64
	hasSemantic bool

	fused float64
}

// fuseAlpha combines the two candidate lists into one ranking.
//
// Each side's raw scores are min-max normalized over its own candidate
// set; a chunk present on only one side contributes 0 for the missing
// side. fused = alpha*normLex + (1-alpha)*normSem, sorted descending,
// ties broken by lexical rank (present before absent) then chunk id.
//
// With alpha=1 the ordering reduces to the lexical ranking over the
// pool, with alpha=0 to the semantic ranking: normalization is
// monotone, and the tie-break chain settles equal-score candidates the
// same way the single index does.
func fuseAlpha(lex []*store.LexicalResult, sem []*store.VectorResult, alpha float64) []*fusedCandidate {
	if len(lex) == 0 && len(sem) == 0 {
		return []*fusedCandidate{}
	}

	candidates := make(map[string]*fusedCandidate, len(lex)+len(sem))

	for i, r := range lex {
		candidates[r.ChunkID] = &fusedCandidate{
			chunkID:      r.ChunkID,
			lexScore:     r.Score,
			hasLexical:   true,
			lexRank:      i + 1,
			matchedTerms: r.MatchedTerms,
		}
	}
	for _, r := range sem {
		c, ok := candidates[r.ChunkID]
		if !ok {
			c = &fusedCandidate{chunkID: r.ChunkID}
			candidates[r.ChunkID] = c
		}
		c.semScore = r.Score
		c.hasSemantic = true
	}

	normLex := minMaxNormalizer(lexScores(lex))
	normSem := minMaxNormalizer(semScores(sem))

	results := make([]*fusedCandidate, 0, len(candidates))
	for _, c := range candidates {
		var nl, ns float64
		if c.hasLexical {
			nl = normLex(c.lexScore)
		}
		if c.hasSemantic {
			ns = normSem(c.semScore)
		}
		c.fused = alpha*nl + (1-alpha)*ns
		results = append(results, c)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.fused != b.fused {
			return a.fused > b.fused
		}
		if a.lexRank != b.lexRank {
			// Chunks absent from the lexical list rank after present ones.
			if a.lexRank == 0 {
				return false
			}
			if b.lexRank == 0 {
				return true
			}
			return a.lexRank < b.lexRank
		}
		return a.chunkID < b.chunkID
	})

	return results
}

// minMaxNormalizer returns a function scaling scores into [0, 1] over
// the given candidate set. A constant set (max == min) maps everything
// to 1 so a single-candidate pool still counts fully toward fusion.
func minMaxNormalizer(scores []float64) func(float64) float64 {
	if len(scores) == 0 {
		return func(float64) float64 { return 0 }
	}

	minScore, maxScore := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	if maxScore == minScore {
		return func(float64) float64 { return 1 }
	}
	spread := maxScore - minScore
	return func(s float64) float64 { return (s - minScore) / spread }
}

func lexScores(lex []*store.LexicalResult) []float64 {
	scores := make([]float64, len(lex))
	for i, r := range lex {
		scores[i] = r.Score
	}
	return scores
}

func semScores(sem []*store.VectorResult) []float64 {
	scores := make([]float64, len(sem))
	for i, r := range sem {
		scores[i] = r.Score
	}
	return scores
}
