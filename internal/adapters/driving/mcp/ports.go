package mcp

import (
	"github.com/custodia-labs/bilgi/internal/core/ports/driving"
)

// Ports aggregates the driving port interfaces used by the MCP server.
type Ports struct {
	// Answer retrieves passages and answers questions. Required.
	Answer driving.AnswerService

	// Web enables the web_search tool when set.
	Web driving.WebAugmenter

	// Synchronizer backs the collection resources when set.
	Synchronizer driving.CollectionSynchronizer
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Answer == nil {
		return ErrMissingAnswerService
	}
	return nil
}
