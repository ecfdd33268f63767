// Package html extracts readable text from saved web pages such as intranet
// announcements and exported wiki pages.
package html

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor strips markup from HTML documents.
type Extractor struct{}

// New creates a new HTML extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedTypes returns the source types this extractor handles.
func (e *Extractor) SupportedTypes() []domain.SourceType {
	return []domain.SourceType{domain.SourceTypeWeb}
}

// Extract returns the page text as a single page. The <title>, when present,
// heads the text so it is embedded with the body.
func (e *Extractor) Extract(_ context.Context, source string, data []byte) (*domain.Extraction, error) {
	if data == nil {
		return nil, domain.ErrInvalidInput
	}

	raw := strings.ToValidUTF8(string(data), "")
	text := stripHTML(raw)
	if title := pageTitle(raw); title != "" && !strings.HasPrefix(text, title) {
		text = title + "\n\n" + text
	}

	return &domain.Extraction{
		Source:    source,
		Pages:     []domain.Page{{Number: 1, Text: text}},
		PageCount: 1,
	}, nil
}

var droppedBlocks = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
	regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`),
	regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`),
	regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`),
	regexp.MustCompile(`(?is)<nav[^>]*>.*?</nav>`),
	regexp.MustCompile(`(?s)<!--.*?-->`),
}

var (
	titleTag   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	blockOpen  = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	blockClose = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	lineBreaks = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	cellBreaks = regexp.MustCompile(`(?i)</t[dh]>`)
	anyTag     = regexp.MustCompile(`<[^>]+>`)
	spaceRuns  = regexp.MustCompile(`[ \t\x{00a0}]+`)
)

func pageTitle(content string) string {
	m := titleTag.FindStringSubmatch(content)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}

// stripHTML keeps one line per block element and drops empty lines.
// Table cells on a row are separated with " | ".
func stripHTML(content string) string {
	for _, re := range droppedBlocks {
		content = re.ReplaceAllString(content, "")
	}
	content = blockOpen.ReplaceAllString(content, "\n")
	content = blockClose.ReplaceAllString(content, "\n")
	content = lineBreaks.ReplaceAllString(content, "\n")
	content = cellBreaks.ReplaceAllString(content, " | ")
	content = anyTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = spaceRuns.ReplaceAllString(content, " ")

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimSuffix(line, "|"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
