package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown source, provider or backend type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrIngestInProgress indicates the same source is already being ingested.
	ErrIngestInProgress = errors.New("ingest in progress")

	// ErrLLMUnavailable indicates the completion service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Ingestion and semantic retrieval are disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// Setup Errors.

	// ErrDependencyMissing indicates a required external tool or library
	// (PDF parser, OCR engine, embedding model) is not installed.
	// It aborts the whole operation and is never raised per page.
	ErrDependencyMissing = errors.New("required dependency missing")

	// Vector Store Errors.

	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the dimensionality already fixed for the collection.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyEmbedding indicates a record was offered to the store without a vector.
	ErrEmptyEmbedding = errors.New("empty embedding")
)
