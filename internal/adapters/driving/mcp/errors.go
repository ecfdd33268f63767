// Package mcp provides an MCP (Model Context Protocol) server adapter for bilgi.
// It lets AI assistants ask questions against the company knowledge base.
package mcp

import "errors"

// ErrMissingAnswerService is returned when the answer service is not provided.
var ErrMissingAnswerService = errors.New("mcp: answer service is required")
