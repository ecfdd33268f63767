// Package text extracts plain text and Markdown notes.
package text

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles manually written notes. Markdown formatting is
// simplified to plain text so it does not pollute embeddings.
type Extractor struct{}

// New creates a new text extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedTypes returns the source types this extractor handles.
func (e *Extractor) SupportedTypes() []domain.SourceType {
	return []domain.SourceType{domain.SourceTypeManual}
}

// Extract returns the content as a single page.
func (e *Extractor) Extract(_ context.Context, source string, data []byte) (*domain.Extraction, error) {
	if data == nil {
		return nil, domain.ErrInvalidInput
	}

	content := strings.ToValidUTF8(string(data), "")
	content = strings.TrimPrefix(content, "\ufeff")
	if isMarkdown(source) {
		content = stripMarkdown(content)
	}

	return &domain.Extraction{
		Source:    source,
		Pages:     []domain.Page{{Number: 1, Text: content}},
		PageCount: 1,
	}, nil
}

func isMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	default:
		return false
	}
}

var (
	codeBlock    = regexp.MustCompile("(?s)```[^`]*```")
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	images       = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headings     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	blockquote   = regexp.MustCompile(`(?m)^>\s*`)
	hr           = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	listMarkers  = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedList = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
)

// stripMarkdown removes common markdown formatting for plain text content.
// Inline code keeps its text since notes often quote commands or codes.
func stripMarkdown(content string) string {
	content = codeBlock.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "")
	content = links.ReplaceAllString(content, "$1")
	content = headings.ReplaceAllString(content, "")
	content = hr.ReplaceAllString(content, "")

	content = strings.ReplaceAll(content, "**", "")
	content = strings.ReplaceAll(content, "__", "")

	content = blockquote.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "")
	content = numberedList.ReplaceAllString(content, "")
	content = multiNewline.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
