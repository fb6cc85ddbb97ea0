package loaders

import (
	"context"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// MaxPDFSize caps in-memory extraction
const MaxPDFSize = 200 << 20

var _ driven.DocumentLoader = (*PDFLoader)(nil)

// PDFLoader extracts one text block per PDF page.
// Pages without extractable text (scanned images) are skipped.
type PDFLoader struct{}

// NewPDFLoader creates a PDF loader.
func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

// Load reads the PDF at path.
func (l *PDFLoader) Load(ctx context.Context, path string) (blocks []domain.TextBlock, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat pdf: %w", err)
	}
	if info.Size() > MaxPDFSize {
		return nil, fmt.Errorf("%w: pdf too large (%d bytes)", domain.ErrInvalidInput, info.Size())
	}

	// The parser panics on some malformed content streams
	defer func() {
		if p := recover(); p != nil {
			blocks = nil
			err = fmt.Errorf("failed to parse pdf: %v", p)
		}
	}()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(pageFonts(page))
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		if text == "" {
			continue
		}
		blocks = append(blocks, domain.TextBlock{Text: text, PageNumber: i})
	}

	return blocks, nil
}

// pageFonts resolves the fonts a page references by resource name.
// Resource names are page-local, so the map is built per page.
func pageFonts(page pdf.Page) map[string]*pdf.Font {
	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		f := page.Font(name)
		fonts[name] = &f
	}
	return fonts
}

// Supports returns true for .pdf files.
func (l *PDFLoader) Supports(path string) bool {
	return hasExtension(path, ".pdf")
}

// Name returns the loader name.
func (l *PDFLoader) Name() string {
	return "pdf"
}

// exists reports whether path is a regular file
func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
