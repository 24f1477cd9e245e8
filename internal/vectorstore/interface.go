// Package vectorstore defines the flat vector index used by the RAG pipeline
// and provides its backend implementations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyRecords indicates empty or nil records passed to Upsert.
	ErrEmptyRecords = errors.New("empty or nil records")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrCollectionNotFound is returned when the configured collection
	// does not exist yet.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Store is a flat id -> vector -> metadata index with similarity search.
//
// The store has no notion of restaurants or chunks; grouping semantics live
// in the rag package. Upsert is insert-or-replace by record ID, so
// re-indexing the same IDs overwrites rather than duplicates. Both backends
// are configured for cosine similarity: Query scores are higher for more
// relevant records and the rag re-ranker consumes them unchanged.
//
// Consistency: a Query immediately after an Upsert may not observe the new
// records, depending on the backend. Callers must treat the index as
// eventually consistent.
//
// Implementations:
//   - ChromemStore: embedded chromem-go (default, no external service)
//   - QdrantStore: external Qdrant over gRPC
type Store interface {
	// Upsert inserts or replaces records by ID. Backend failures are
	// surfaced, never swallowed; no retry happens at this layer.
	Upsert(ctx context.Context, records []Record) error

	// Query returns up to topK nearest records by cosine similarity,
	// ordered by descending score.
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)

	// Delete removes records by ID. IDs that do not exist are ignored.
	Delete(ctx context.Context, ids []string) error

	// Close releases backend resources.
	Close() error
}
