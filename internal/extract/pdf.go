package extract

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfExtractor extracts text page by page, prefixing each page with a
// "--- Page N ---" marker so cited chunks can be traced back to a page.
type pdfExtractor struct{}

// Extract implements Extractor.
func (pdfExtractor) Extract(ctx context.Context, r io.ReaderAt, size int64) (text string, err error) {
	// The pdf package panics on some malformed object streams.
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = failure(KindPDF, fmt.Errorf("parser panic: %v", rec))
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", failure(KindPDF, err)
	}

	fonts := make(map[string]*pdf.Font)
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			return "", failure(KindPDF, fmt.Errorf("page %d: %w", i, err))
		}
		if pageText == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n--- Page %d ---\n%s", i, pageText)
	}
	return sb.String(), nil
}
