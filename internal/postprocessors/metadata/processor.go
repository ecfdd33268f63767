// Package metadata stamps ingestion metadata onto chunks.
package metadata

import (
	"context"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

// Processor fills in the metadata fields that depend on the whole document:
// the chunk count, the run timestamp and the source attributes.
// It implements the PostProcessor interface.
type Processor struct{}

// New creates a metadata processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "metadata"
}

// Process stamps every chunk. total_chunks is the count at this ingestion.
func (p *Processor) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	typ := doc.Type
	if doc.OCR {
		typ = domain.SourceTypeOCR
	}

	for i := range chunks {
		m := &chunks[i].Metadata
		m.Source = doc.Source
		m.Type = typ
		m.ChunkIndex = i
		m.TotalChunks = len(chunks)
		m.CreatedAt = doc.CreatedAt
		m.Department = doc.Department
		m.OCRProcessed = doc.OCR
		m.PageCount = doc.PageCount
	}

	return chunks, nil
}
