package domain

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
)

// Page is the content of one page of an extracted document.
type Page struct {
	// Number is the 1-based page number.
	Number int

	// Text is the page text. Empty pages have empty text.
	Text string

	// Images lists the images saved for this page.
	Images []ExtractedImage
}

// ExtractedImage is a raster image pulled out of a page and saved to disk.
type ExtractedImage struct {
	Page   int
	Index  int
	Path   string
	Format string
	Width  int
	Height int
	Bytes  int
}

// Filename returns the base name of the saved image.
func (i ExtractedImage) Filename() string {
	if idx := strings.LastIndexAny(i.Path, `/\`); idx >= 0 {
		return i.Path[idx+1:]
	}
	return i.Path
}

// ImagePolicy decides which extracted images are worth keeping.
type ImagePolicy struct {
	MinBytes     int
	MinDimension int
}

// DefaultImagePolicy discards icons, bullets and other decoration.
func DefaultImagePolicy() ImagePolicy {
	return ImagePolicy{MinBytes: 5000, MinDimension: 80}
}

// Keep reports whether an image of the given size passes the policy.
func (p ImagePolicy) Keep(size, width, height int) bool {
	if size < p.MinBytes {
		return false
	}
	return width >= p.MinDimension && height >= p.MinDimension
}

// Extraction is the result of extracting a single source document.
type Extraction struct {
	Source    string
	Pages     []Page
	PageCount int

	// OCR is true when the text came from optical character recognition.
	OCR bool

	// PageErrors counts pages whose images or OCR failed.
	PageErrors int
}

// Text joins the text of all pages, separated by blank lines.
func (e *Extraction) Text() string {
	parts := make([]string, 0, len(e.Pages))
	for _, p := range e.Pages {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ImageCount returns the number of images kept across all pages.
func (e *Extraction) ImageCount() int {
	n := 0
	for _, p := range e.Pages {
		n += len(p.Images)
	}
	return n
}

// Manifest builds the manifest recording this extraction.
func (e *Extraction) Manifest() Manifest {
	m := Manifest{
		Source:      e.Source,
		TotalImages: e.ImageCount(),
		Pages:       make(map[string][]string),
	}
	for _, p := range e.Pages {
		if len(p.Images) == 0 {
			continue
		}
		names := make([]string, 0, len(p.Images))
		for _, img := range p.Images {
			names = append(names, img.Filename())
		}
		m.Pages[strconv.Itoa(p.Number)] = names
	}
	return m
}

// Manifest records that a source has been fully processed.
// Its presence is the idempotency marker for ingestion.
type Manifest struct {
	Source      string              `json:"source"`
	TotalImages int                 `json:"total_images"`
	Pages       map[string][]string `json:"pages"`
}

// Letters and digits are matched as Unicode classes so Turkish names survive.
var unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_\s\-.]`)

// maxSafeNameLen caps directory names derived from source names.
const maxSafeNameLen = 100

// SafeName turns a source name into a string usable as a directory name.
// Only word characters, whitespace, hyphens and dots survive.
func SafeName(name string) string {
	safe := unsafeNameChars.ReplaceAllString(name, "")
	safe = strings.TrimSpace(safe)
	if r := []rune(safe); len(r) > maxSafeNameLen {
		safe = string(r[:maxSafeNameLen])
	}
	if safe == "" || safe == "." || safe == ".." {
		return "source"
	}
	return safe
}

// SourceDirName names the directory holding a source's images and manifest.
// Names that SafeName alters get a hash suffix, so "ik/politika.txt" and
// "ikpolitika.txt" do not share a directory.
func SourceDirName(source string) string {
	safe := SafeName(source)
	if safe == source {
		return safe
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(source))
	suffix := fmt.Sprintf("-%08x", h.Sum32())
	if r := []rune(safe); len(r)+len(suffix) > maxSafeNameLen {
		safe = string(r[:maxSafeNameLen-len(suffix)])
	}
	return safe + suffix
}
