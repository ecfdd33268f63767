// Package extractors turns raw source files into page text and images.
//
// Each sub-package handles specific source types:
//
//   - pdf: Born-digital and scanned PDF documents (poppler, tesseract)
//   - text: Plain text and Markdown notes
//   - html: Saved web pages and intranet announcements
//
// The Registry selects the extractor for a source type and is used by the
// ingestion pipeline through the driven.ExtractorRegistry port.
package extractors
