// Package pdf extracts text and images from PDF documents.
//
// Born-digital PDFs are read with the poppler utilities (pdfinfo, pdftotext,
// pdfimages). Documents without any text layer are treated as scans: each
// page is rendered with pdftoppm and recognised with tesseract.
package pdf

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png" // pdftoppm and pdfimages -png write PNG
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
	"github.com/custodia-labs/bilgi/internal/logger"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// External tools.
const (
	toolInfo      = "pdfinfo"
	toolText      = "pdftotext"
	toolImages    = "pdfimages"
	toolRender    = "pdftoppm"
	toolTesseract = "tesseract"
)

// Defaults for Config.
const (
	DefaultOCRLanguages = "tur+eng"
	DefaultDPI          = 200
	DefaultJPEGQuality  = 85
)

// CommandRunner executes external commands.
// This interface allows mocking in tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner is the default CommandRunner using os/exec.
type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// Config configures the PDF extractor.
type Config struct {
	// ImageDir is the root directory for saved images.
	// Images are not saved when empty.
	ImageDir string

	// Policy filters out decorative images.
	Policy domain.ImagePolicy

	// OCRLanguages is the tesseract language list.
	OCRLanguages string

	// DPI is the render resolution for OCR.
	DPI int

	// JPEGQuality is the quality of saved images.
	JPEGQuality int
}

// Extractor handles PDF documents by shelling out to poppler and tesseract.
type Extractor struct {
	cfg      Config
	runner   CommandRunner
	lookPath func(string) (string, error)
}

// New creates a PDF extractor using the installed command line tools.
func New(cfg Config) *Extractor {
	return NewWithRunner(cfg, &execRunner{})
}

// NewWithRunner creates a PDF extractor with a custom command runner.
// This is primarily used for testing.
func NewWithRunner(cfg Config, runner CommandRunner) *Extractor {
	if cfg.Policy == (domain.ImagePolicy{}) {
		cfg.Policy = domain.DefaultImagePolicy()
	}
	if cfg.OCRLanguages == "" {
		cfg.OCRLanguages = DefaultOCRLanguages
	}
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultJPEGQuality
	}

	lookPath := exec.LookPath
	if _, ok := runner.(*execRunner); !ok {
		// Custom runners stand in for the tools, so there is nothing to look up.
		lookPath = func(name string) (string, error) { return name, nil }
	}

	return &Extractor{cfg: cfg, runner: runner, lookPath: lookPath}
}

// SupportedTypes returns the source types this extractor handles.
func (e *Extractor) SupportedTypes() []domain.SourceType {
	return []domain.SourceType{domain.SourceTypePDF, domain.SourceTypeOCR}
}

// CheckAvailable verifies that the poppler tools are installed.
func CheckAvailable() error {
	return checkTools(exec.LookPath, toolInfo, toolText, toolImages)
}

// CheckOCRAvailable verifies that the tools for scanned documents are installed.
func CheckOCRAvailable() error {
	return checkTools(exec.LookPath, toolRender, toolTesseract)
}

func checkTools(lookPath func(string) (string, error), tools ...string) error {
	var missing []string
	for _, tool := range tools {
		if _, err := lookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s not found in PATH", domain.ErrDependencyMissing, strings.Join(missing, ", "))
	}
	return nil
}

// InstallInstructions returns platform-specific installation instructions.
func InstallInstructions() string {
	return `PDF extraction requires poppler, and scanned documents also need tesseract
with the Turkish language data.

  macOS:   brew install poppler tesseract tesseract-lang
  Ubuntu:  sudo apt install poppler-utils tesseract-ocr tesseract-ocr-tur
  Fedora:  sudo dnf install poppler-utils tesseract tesseract-langpack-tur
  Windows: choco install poppler tesseract`
}

// Extract reads a PDF and returns its pages in order.
//
// Missing tools fail the whole call with domain.ErrDependencyMissing.
// Errors confined to a single page are logged and counted in PageErrors;
// the remaining pages are still processed.
func (e *Extractor) Extract(ctx context.Context, source string, data []byte) (*domain.Extraction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty PDF %q", domain.ErrInvalidInput, source)
	}
	if err := checkTools(e.lookPath, toolInfo, toolText, toolImages); err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "bilgi-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(input, data, 0600); err != nil {
		return nil, fmt.Errorf("write work copy: %w", err)
	}

	pageCount, err := e.pageCount(ctx, input)
	if err != nil {
		return nil, err
	}

	result := &domain.Extraction{
		Source:    source,
		PageCount: pageCount,
		Pages:     make([]domain.Page, pageCount),
	}

	hasText := false
	for i := range result.Pages {
		n := i + 1
		result.Pages[i].Number = n

		text, err := e.pageText(ctx, input, n)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if missingTool(err) {
				return nil, dependencyError(toolText, err)
			}
			logger.Warn("pdf %s: page %d text: %v", source, n, err)
			result.PageErrors++
			continue
		}
		result.Pages[i].Text = text
		if strings.TrimSpace(text) != "" {
			hasText = true
		}
	}

	if !hasText && pageCount > 0 {
		logger.Info("pdf %s: no text layer, running OCR on %d pages", source, pageCount)
		if err := e.ocrPages(ctx, input, workDir, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	if e.cfg.ImageDir != "" {
		if err := e.extractImages(ctx, input, workDir, result); err != nil {
			return nil, err
		}
	}

	logger.Debug("pdf %s: %d pages, %d images, %d page errors",
		source, pageCount, result.ImageCount(), result.PageErrors)
	return result, nil
}

// pageCount reads the number of pages with pdfinfo.
func (e *Extractor) pageCount(ctx context.Context, input string) (int, error) {
	out, err := e.runner.Run(ctx, toolInfo, input)
	if err != nil {
		if missingTool(err) {
			return 0, dependencyError(toolInfo, err)
		}
		return 0, fmt.Errorf("pdfinfo failed: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err != nil {
			return 0, fmt.Errorf("pdfinfo: parse page count %q: %w", line, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: pdfinfo reported no page count", domain.ErrInvalidInput)
}

// pageText extracts the text layer of one page.
func (e *Extractor) pageText(ctx context.Context, input string, page int) (string, error) {
	p := strconv.Itoa(page)
	out, err := e.runner.Run(ctx, toolText, "-f", p, "-l", p, "-layout", "-enc", "UTF-8", input, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	// pdftotext ends every page with a form feed.
	return strings.TrimRight(string(out), "\f"), nil
}

// ocrPages renders and recognises every page.
// Pages that yield no text are recorded as empty, not as errors.
func (e *Extractor) ocrPages(ctx context.Context, input, workDir string, result *domain.Extraction) error {
	if err := checkTools(e.lookPath, toolRender, toolTesseract); err != nil {
		return err
	}

	result.OCR = true
	dpi := strconv.Itoa(e.cfg.DPI)

	for i := range result.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := i + 1
		p := strconv.Itoa(n)
		prefix := filepath.Join(workDir, "page_"+p)

		if _, err := e.runner.Run(ctx, toolRender, "-r", dpi, "-f", p, "-l", p, "-png", "-singlefile", input, prefix); err != nil {
			if missingTool(err) {
				return dependencyError(toolRender, err)
			}
			logger.Warn("pdf %s: render page %d: %v", result.Source, n, err)
			result.PageErrors++
			continue
		}

		out, err := e.runner.Run(ctx, toolTesseract, prefix+".png", "stdout", "-l", e.cfg.OCRLanguages, "--psm", "3")
		if err != nil {
			if missingTool(err) {
				return dependencyError(toolTesseract, err)
			}
			logger.Warn("pdf %s: OCR page %d: %v", result.Source, n, err)
			result.PageErrors++
			continue
		}
		result.Pages[i].Text = joinLines(string(out))
		_ = os.Remove(prefix + ".png")
	}
	return nil
}

// joinLines collapses recognised text to one line per non-empty line.
func joinLines(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// extractImages pulls embedded raster images page by page and saves the
// ones that pass the size policy as JPEG.
func (e *Extractor) extractImages(ctx context.Context, input, workDir string, result *domain.Extraction) error {
	outDir := filepath.Join(e.cfg.ImageDir, domain.SourceDirName(result.Source))
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}

	rawDir := filepath.Join(workDir, "images")
	if err := os.MkdirAll(rawDir, 0700); err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}

	for i := range result.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := i + 1
		images, err := e.pageImages(ctx, input, rawDir, outDir, n)
		result.Pages[i].Images = images
		if missingTool(err) {
			return dependencyError(toolImages, err)
		}
		if err != nil {
			logger.Warn("pdf %s: images on page %d: %v", result.Source, n, err)
			result.PageErrors++
		}
	}
	return nil
}

// pageImages extracts and saves the images of one page. Images saved before
// an error are still returned.
//
// Images are pulled in their native encoding so the size policy sees the
// bytes stored in the document. Encodings the image package cannot read,
// such as JPEG 2000 or JBIG2, are extracted again as PNG.
func (e *Extractor) pageImages(ctx context.Context, input, rawDir, outDir string, page int) ([]domain.ExtractedImage, error) {
	p := strconv.Itoa(page)
	prefix := filepath.Join(rawDir, "p"+p)
	if _, err := e.runner.Run(ctx, toolImages, "-all", "-f", p, "-l", p, input, prefix); err != nil {
		return nil, fmt.Errorf("pdfimages failed: %w", err)
	}

	files, err := filepath.Glob(prefix + "-*")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var foreign []int
	for i, file := range files {
		if !decodable(file) {
			foreign = append(foreign, i)
		}
	}
	if len(foreign) > 0 {
		pngPrefix := filepath.Join(rawDir, "p"+p+"png")
		if _, err := e.runner.Run(ctx, toolImages, "-png", "-f", p, "-l", p, input, pngPrefix); err != nil {
			return nil, fmt.Errorf("pdfimages failed: %w", err)
		}
		for _, i := range foreign {
			_ = os.Remove(files[i])
			files[i] = pngPrefix + imageNumber(files[i], prefix) + ".png"
		}
	}

	var (
		saved []domain.ExtractedImage
		errs  []error
	)
	for _, file := range files {
		img, keep, err := e.saveImage(file, outDir, page, len(saved))
		_ = os.Remove(file)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(file), err))
			continue
		}
		if keep {
			saved = append(saved, img)
		}
	}
	return saved, errors.Join(errs...)
}

// decodable reports whether the image package can read a file written by
// pdfimages -all.
func decodable(file string) bool {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}

// imageNumber returns the "-NNN" part pdfimages appends to prefix.
func imageNumber(file, prefix string) string {
	rest := strings.TrimPrefix(file, prefix)
	return strings.TrimSuffix(rest, filepath.Ext(rest))
}

// missingTool reports whether err means a command could not be started
// because it is not installed.
func missingTool(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

func dependencyError(tool string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrDependencyMissing, tool, err)
}

// saveImage decodes one raw image, applies the policy and writes it as JPEG.
func (e *Extractor) saveImage(file, outDir string, page, index int) (domain.ExtractedImage, bool, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return domain.ExtractedImage{}, false, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return domain.ExtractedImage{}, false, fmt.Errorf("decode: %w", err)
	}
	if !e.cfg.Policy.Keep(len(raw), cfg.Width, cfg.Height) {
		return domain.ExtractedImage{}, false, nil
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return domain.ExtractedImage{}, false, fmt.Errorf("decode: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, toRGB(src), &jpeg.Options{Quality: e.cfg.JPEGQuality}); err != nil {
		return domain.ExtractedImage{}, false, fmt.Errorf("encode: %w", err)
	}

	path := filepath.Join(outDir, fmt.Sprintf("page%d_img%d.jpg", page, index))
	if err := os.WriteFile(path, buf.Bytes(), 0640); err != nil {
		return domain.ExtractedImage{}, false, err
	}

	return domain.ExtractedImage{
		Page:   page,
		Index:  index,
		Path:   path,
		Format: "jpeg",
		Width:  cfg.Width,
		Height: cfg.Height,
		Bytes:  buf.Len(),
	}, true, nil
}

// toRGB flattens any colour model, including alpha and CMYK, onto white.
func toRGB(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}
