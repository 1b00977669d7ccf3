// Package store provides the persistence layer for aki: a bleve-backed
// BM25 lexical index, an HNSW vector store for embeddings, and a SQLite
// metadata store holding documents and chunk text.
package store

import (
	"context"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/chunk"
)

// DocumentRecord is the tracked state for one source document. The union
// of ChunkIDs across all records equals the chunk ids present in both
// indexes.
type DocumentRecord struct {
	SourcePath  string
	ContentHash string
	ChunkIDs    []string
}

// LexicalResult is a BM25 search hit.
type LexicalResult struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// VectorResult is a semantic search hit. Score is cosine similarity
// in [-1, 1].
type VectorResult struct {
	ChunkID  string
	Score    float64
	Distance float32
}

// LexicalIndex is a BM25-ranked full-text index over chunk text.
type LexicalIndex interface {
	// Add inserts chunks. Fails with ErrDuplicateID if any chunk id is
	// already present; callers must Remove before re-adding.
	Add(ctx context.Context, chunks []*chunk.Chunk) error

	// Remove deletes entries by id. Removing an absent id is a no-op.
	Remove(ctx context.Context, ids []string) error

	// Search returns up to topK hits ordered by descending BM25 score,
	// ties broken by insertion order. An empty index returns an empty
	// slice, never an error.
	Search(ctx context.Context, query string, topK int) ([]*LexicalResult, error)

	// AllIDs returns every indexed chunk id, for consistency checks.
	AllIDs() ([]string, error)

	Count() (uint64, error)
	Close() error
}

// VectorStore holds chunk-id -> embedding pairs and ranks by cosine
// similarity.
type VectorStore interface {
	// Add inserts vectors. Fails with ErrDimensionMismatch if any vector
	// length differs from the configured dimension.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Remove deletes vectors by id. Removing an absent id is a no-op.
	Remove(ctx context.Context, ids []string) error

	// Search returns up to topK hits sorted by descending similarity,
	// ties broken by chunk id.
	Search(ctx context.Context, query []float32, topK int) ([]*VectorResult, error)

	AllIDs() []string
	Count() int
	Save(path string) error
	Close() error
}

// MetadataStore persists document records and chunk content.
type MetadataStore interface {
	SaveDocument(ctx context.Context, rec *DocumentRecord, chunks []*chunk.Chunk) error
	DeleteDocument(ctx context.Context, sourcePath string) error
	GetDocument(ctx context.Context, sourcePath string) (*DocumentRecord, error)

	// AllDocuments returns a snapshot of every tracked document. Build
	// passes diff against this snapshot before mutating anything.
	AllDocuments(ctx context.Context) ([]*DocumentRecord, error)

	GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error)
	AllChunkIDs(ctx context.Context) ([]string, error)
	DeleteChunks(ctx context.Context, ids []string) error

	CountDocuments(ctx context.Context) (int, error)
	CountChunks(ctx context.Context) (int, error)

	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// BM25Config contains BM25 ranking parameters.
type BM25Config struct {
	K1 float64 // Term frequency saturation
	B  float64 // Document length normalization
}

// DefaultBM25Config returns the standard BM25 parameters.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.2, B: 0.75}
}

// VectorStoreConfig configures the HNSW vector store.
type VectorStoreConfig struct {
	// Dimensions is the index-wide embedding dimension; every vector
	// must match it exactly.
	Dimensions int

	// Model identifies the embedding model the store was built with. A
	// mismatch on open fails with ErrStoreIncompatible.
	Model string

	// HNSW graph parameters.
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns HNSW parameters tuned for
// documentation-sized corpora.
func DefaultVectorStoreConfig(dimensions int, model string) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Model:          model,
		M:              16,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// State keys stored in the metadata store.
const (
	StateKeyEmbeddingModel = "embedding_model"
	StateKeyEmbeddingDims  = "embedding_dimensions"
	StateKeySchemaVersion  = "schema_version"
)
