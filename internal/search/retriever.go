package search

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/embed"
	akierrors "github.com/evanwmart/augmented-knowledge-interfaces/internal/errors"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/store"
)

// Retriever executes queries against the lexical and semantic indexes.
// It is read-only and safe for concurrent use.
type Retriever struct {
	lexical    store.LexicalIndex
	vectors    store.VectorStore // nil when embeddings were never built
	meta       store.MetadataStore
	embedder   embed.Embedder // nil when embeddings were never built
	classifier *Classifier

	defaultAlpha float64
}

// NewRetriever creates a retriever. A nil vector store or embedder
// puts it in lexical-only mode: hybrid and auto degrade, explicit
// semantic requests fail.
func NewRetriever(lexical store.LexicalIndex, vectors store.VectorStore,
	meta store.MetadataStore, embedder embed.Embedder, defaultAlpha float64) *Retriever {
	if defaultAlpha < 0 || defaultAlpha > 1 {
		defaultAlpha = DefaultAlpha
	}
	return &Retriever{
		lexical:      lexical,
		vectors:      vectors,
		meta:         meta,
		embedder:     embedder,
		classifier:   NewClassifier(),
		defaultAlpha: defaultAlpha,
	}
}

// SemanticAvailable reports whether semantic retrieval can run.
func (r *Retriever) SemanticAvailable() bool {
	return r.vectors != nil && r.embedder != nil && r.vectors.Count() > 0
}

// Retrieve runs the query under the given options and returns up to
// TopK results with 1-based ranks.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]*Result, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyAuto
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	strategy := r.resolveStrategy(query, opts.Strategy)

	// Auto-routed hybrid uses the configured default alpha; the caller
	// never chose one.
	alpha := opts.Alpha
	if opts.Strategy == StrategyAuto {
		alpha = r.defaultAlpha
	}

	switch strategy {
	case StrategyLexical:
		return r.retrieveLexical(ctx, query, opts.TopK)
	case StrategySemantic:
		return r.retrieveSemantic(ctx, query, opts.TopK)
	case StrategyHybrid:
		return r.retrieveHybrid(ctx, query, alpha, opts.TopK)
	default:
		return nil, akierrors.Newf(akierrors.ErrCodeInternal,
			"unresolved strategy %q", strategy)
	}
}

// resolveStrategy maps auto to a concrete strategy and degrades
// semantic-dependent strategies when the semantic index is absent.
// An explicit semantic request is never degraded; the caller asked
// for it and gets the real error.
func (r *Retriever) resolveStrategy(query string, requested Strategy) Strategy {
	strategy := requested
	if strategy == StrategyAuto {
		switch r.classifier.Classify(query) {
		case KindCodeLike:
			strategy = StrategyLexical
		default:
			strategy = StrategyHybrid
		}
	}

	if strategy == StrategyHybrid && !r.SemanticAvailable() {
		slog.Debug("semantic_index_unavailable_degrading",
			slog.String("requested", string(requested)))
		strategy = StrategyLexical
	}
	return strategy
}

// retrieveLexical queries only the BM25 index.
func (r *Retriever) retrieveLexical(ctx context.Context, query string, topK int) ([]*Result, error) {
	hits, err := r.lexical.Search(ctx, query, topK)
	if err != nil {
		return nil, akierrors.Wrap(akierrors.ErrCodeSearchFailed,
			fmt.Errorf("lexical search: %w", err))
	}

	results := make([]*Result, len(hits))
	for i, h := range hits {
		results[i] = &Result{
			ChunkID:      h.ChunkID,
			FusedScore:   h.Score,
			LexicalScore: h.Score,
			HasLexical:   true,
			MatchedTerms: h.MatchedTerms,
			Strategy:     StrategyLexical,
		}
	}
	return r.finalize(ctx, results)
}

// retrieveSemantic queries only the vector store. An absent semantic
// index surfaces the unavailability error instead of falling back.
func (r *Retriever) retrieveSemantic(ctx context.Context, query string, topK int) ([]*Result, error) {
	if !r.SemanticAvailable() {
		return nil, akierrors.New(akierrors.ErrCodeSemanticUnavailable,
			"semantic index has not been built", nil).
			WithSuggestion("run 'aki index' without --skip-embeddings, or use --strategy lexical")
	}

	queryVec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := r.vectors.Search(ctx, queryVec, topK)
	if err != nil {
		return nil, akierrors.Wrap(akierrors.ErrCodeSearchFailed,
			fmt.Errorf("semantic search: %w", err))
	}

	results := make([]*Result, len(hits))
	for i, h := range hits {
		results[i] = &Result{
			ChunkID:       h.ChunkID,
			FusedScore:    h.Score,
			SemanticScore: h.Score,
			HasSemantic:   true,
			Strategy:      StrategySemantic,
		}
	}
	return r.finalize(ctx, results)
}

// retrieveHybrid queries both indexes in parallel over an enlarged
// candidate pool and fuses the lists with alpha weighting.
func (r *Retriever) retrieveHybrid(ctx context.Context, query string, alpha float64, topK int) ([]*Result, error) {
	pool := max(topK*3, MinCandidatePool)

	var (
		lexHits []*store.LexicalResult
		semHits []*store.VectorResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.lexical.Search(gctx, query, pool)
		if err != nil {
			return akierrors.Wrap(akierrors.ErrCodeSearchFailed,
				fmt.Errorf("lexical search: %w", err))
		}
		lexHits = hits
		return nil
	})
	g.Go(func() error {
		queryVec, err := r.embedQuery(gctx, query)
		if err != nil {
			return err
		}
		hits, err := r.vectors.Search(gctx, queryVec, pool)
		if err != nil {
			return akierrors.Wrap(akierrors.ErrCodeSearchFailed,
				fmt.Errorf("semantic search: %w", err))
		}
		semHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuseAlpha(lexHits, semHits, alpha)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	results := make([]*Result, len(fused))
	for i, c := range fused {
		results[i] = &Result{
			ChunkID:       c.chunkID,
			FusedScore:    c.fused,
			LexicalScore:  c.lexScore,
			HasLexical:    c.hasLexical,
			SemanticScore: c.semScore,
			HasSemantic:   c.hasSemantic,
			MatchedTerms:  c.matchedTerms,
			Strategy:      StrategyHybrid,
		}
	}
	return r.finalize(ctx, results)
}

// embedQuery vectorizes the query text. A timeout is surfaced as
// EmbeddingTimeout, never substituted with a zero vector.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if akierrors.GetCode(err) != "" {
			return nil, err
		}
		return nil, akierrors.Wrap(akierrors.ErrCodeEmbeddingFailed,
			fmt.Errorf("embed query: %w", err))
	}
	return vec, nil
}

// finalize enriches results with chunk text and metadata and assigns
// 1-based ranks. Chunk ids missing from the metadata store (race with
// a concurrent external build) are dropped.
func (r *Retriever) finalize(ctx context.Context, results []*Result) ([]*Result, error) {
	if len(results) == 0 {
		return []*Result{}, nil
	}

	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ChunkID
	}

	chunks, err := r.meta.GetChunks(ctx, ids)
	if err != nil {
		return nil, akierrors.Wrap(akierrors.ErrCodeSearchFailed,
			fmt.Errorf("load chunk metadata: %w", err))
	}
	byID := make(map[string]int, len(chunks))
	for i, c := range chunks {
		byID[c.ID] = i
	}

	enriched := make([]*Result, 0, len(results))
	for _, res := range results {
		i, ok := byID[res.ChunkID]
		if !ok {
			slog.Debug("result_chunk_missing_metadata", slog.String("chunk_id", res.ChunkID))
			continue
		}
		c := chunks[i]
		res.SourcePath = c.SourcePath
		res.Heading = c.Heading
		res.Position = c.Position
		res.Text = c.Text
		res.Rank = len(enriched) + 1
		enriched = append(enriched, res)
	}
	return enriched, nil
}
