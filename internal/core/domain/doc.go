// Package domain defines the core business entities for Bilgi.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Chunk: A retrievable span of text with its embedding and metadata
//   - Extraction: Per-page text and images pulled from a source file
//   - Manifest: The per-source marker recording a completed ingestion
//   - ExportBundle: The transportable form of one or more collections
//   - RichCard: A typed web search result (weather, image gallery)
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
