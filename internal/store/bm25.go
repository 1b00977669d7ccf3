package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	unicodetok "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/chunk"
	akierrors "github.com/evanwmart/augmented-knowledge-interfaces/internal/errors"
)

// docAnalyzerName is the custom analyzer: unicode tokens, lowercased,
// English stop words removed, porter-stemmed.
const docAnalyzerName = "doc_analyzer"

// BleveBM25Index wraps bleve v2 for BM25 ranking over chunk text.
type BleveBM25Index struct {
	mu      sync.RWMutex
	index   bleve.Index
	path    string
	config  BM25Config
	nextSeq uint64
	closed  bool
}

// bleveDocument is the indexed document shape. Seq records insertion
// order for deterministic tie-breaking.
type bleveDocument struct {
	Content string  `json:"content"`
	Seq     float64 `json:"seq"`
}

// Verify interface implementation at compile time.
var _ LexicalIndex = (*BleveBM25Index)(nil)

// validateIndexIntegrity checks if a bleve index is valid before opening.
// Returns nil if valid, an error describing corruption if not.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Index doesn't exist, will be created
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isCorruptionError checks if an error indicates bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		strings.Contains(errStr, "no such file or directory") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveBM25Index creates or opens a BM25 index. An empty path creates
// an in-memory index. A corrupted on-disk index is cleared and recreated;
// the next build pass repopulates it.
func NewBleveBM25Index(path string, config BM25Config) (*BleveBM25Index, error) {
	// bleve's BM25 multipliers are process-wide globals; every index in
	// this process scores with the most recently configured parameters.
	search.BM25_k1 = config.K1
	search.BM25_b = config.B

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("bm25_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, akierrors.Wrap(akierrors.ErrCodeCorruptIndex,
					fmt.Errorf("BM25 index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr))
			}
			slog.Info("bm25_index_cleared", slog.String("path", path))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("bm25_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, akierrors.Wrap(akierrors.ErrCodeCorruptIndex,
					fmt.Errorf("BM25 index corrupted, cannot clear: %w (original: %v)", removeErr, err))
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	b := &BleveBM25Index{
		index:  idx,
		path:   path,
		config: config,
	}
	if err := b.loadNextSeq(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return b, nil
}

// createIndexMapping builds the bleve mapping with the doc analyzer.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(docAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicodetok.Name,
		"token_filters": []string{
			lowercase.Name,
			en.StopName,
			porter.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = docAnalyzerName

	seqField := bleve.NewNumericFieldMapping()
	seqField.Store = true
	seqField.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", contentField)
	docMapping.AddFieldMappingsAt("seq", seqField)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = docAnalyzerName
	indexMapping.ScoringModel = "bm25"

	return indexMapping, nil
}

// loadNextSeq recovers the insertion counter from an existing index.
func (b *BleveBM25Index) loadNextSeq() error {
	count, err := b.index.DocCount()
	if err != nil {
		return fmt.Errorf("failed to read doc count: %w", err)
	}
	if count == 0 {
		b.nextSeq = 0
		return nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = 1
	req.SortBy([]string{"-seq"})
	req.Fields = []string{"seq"}

	result, err := b.index.Search(req)
	if err != nil {
		return fmt.Errorf("failed to read max seq: %w", err)
	}
	if len(result.Hits) > 0 {
		if seq, ok := result.Hits[0].Fields["seq"].(float64); ok {
			b.nextSeq = uint64(seq) + 1
		}
	}
	return nil
}

// Add inserts chunks, failing with ErrDuplicateID if any id is already
// present (or repeated within the batch).
func (b *BleveBM25Index) Add(ctx context.Context, chunks []*chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			return akierrors.Newf(akierrors.ErrCodeDuplicateID,
				"chunk %s appears twice in batch", c.ID)
		}
		seen[c.ID] = struct{}{}

		doc, err := b.index.Document(c.ID)
		if err != nil {
			return fmt.Errorf("failed to check existing document: %w", err)
		}
		if doc != nil {
			return akierrors.Newf(akierrors.ErrCodeDuplicateID,
				"chunk %s already indexed, remove it first", c.ID)
		}
	}

	batch := b.index.NewBatch()
	for _, c := range chunks {
		doc := bleveDocument{Content: c.Text, Seq: float64(b.nextSeq)}
		b.nextSeq++
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Remove deletes entries by id. Absent ids are a no-op.
func (b *BleveBM25Index) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Search returns up to topK hits ordered by descending BM25 score, ties
// broken by insertion order. An empty or blank query returns no hits.
func (b *BleveBM25Index) Search(ctx context.Context, queryStr string, topK int) ([]*LexicalResult, error) {
	if topK < 1 {
		return nil, akierrors.Newf(akierrors.ErrCodeInvalidQuery,
			"top_k must be at least 1, got %d", topK)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = topK
	req.SortBy([]string{"-_score", "seq"})
	req.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &LexicalResult{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}
	return results, nil
}

// AllIDs returns all chunk ids in the index.
func (b *BleveBM25Index) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	docCount, _ := b.index.DocCount()
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Count returns the number of indexed chunks.
func (b *BleveBM25Index) Count() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("index is closed")
	}
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// extractMatchedTerms extracts matched terms from a search hit.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field == "content" {
			for term := range locations {
				terms[term] = struct{}{}
			}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}
