// Package extract converts uploaded document files into plain text.
// Dispatch is purely by file extension onto a closed set of kinds: PDF,
// word-processor (OOXML) and plain text. Extraction has no side effects.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MinContentLength is the minimum number of characters (after trimming
// surrounding whitespace) an extracted document must contain to be accepted
// for ingestion.
const MinContentLength = 50

var (
	// ErrUnsupportedFormat is returned when the file extension is not one of
	// .pdf, .doc, .docx or .txt.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrExtractionFailure is returned when the underlying parser fails on a
	// corrupt or mis-encoded file.
	ErrExtractionFailure = errors.New("text extraction failed")

	// ErrInsufficientContent is returned by CheckContent when the extracted
	// text is shorter than MinContentLength.
	ErrInsufficientContent = errors.New("insufficient document content")
)

// Kind identifies which extractor handles a file.
type Kind int

const (
	// KindPDF is a PDF document, extracted page by page.
	KindPDF Kind = iota + 1
	// KindWord is a word-processor document (.doc/.docx, OOXML container).
	KindWord
	// KindText is a UTF-8 plain text file.
	KindText
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindWord:
		return "word"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Extractor converts the bytes of one document into plain text.
// Implementations must be safe to call from multiple goroutines.
type Extractor interface {
	// Extract reads size bytes from r and returns the document text.
	Extract(ctx context.Context, r io.ReaderAt, size int64) (string, error)
}

// extensions maps lower-cased file extensions to their kind.
var extensions = map[string]Kind{
	".pdf":  KindPDF,
	".doc":  KindWord,
	".docx": KindWord,
	".txt":  KindText,
}

// SupportedExtensions returns the accepted file extensions in display order.
func SupportedExtensions() []string {
	return []string{".pdf", ".doc", ".docx", ".txt"}
}

// KindFor resolves the extractor kind for filename from its extension.
func KindFor(filename string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	kind, ok := extensions[ext]
	if !ok {
		return 0, fmt.Errorf("extract: %w: %q", ErrUnsupportedFormat, ext)
	}
	return kind, nil
}

// For returns the Extractor implementation for kind.
func For(kind Kind) (Extractor, error) {
	switch kind {
	case KindPDF:
		return pdfExtractor{}, nil
	case KindWord:
		return wordExtractor{}, nil
	case KindText:
		return textExtractor{}, nil
	default:
		return nil, fmt.Errorf("extract: %w: kind %d", ErrUnsupportedFormat, int(kind))
	}
}

// Extract dispatches on the extension of filename and returns the extracted
// text of the size bytes readable from r.
func Extract(ctx context.Context, filename string, r io.ReaderAt, size int64) (string, error) {
	kind, err := KindFor(filename)
	if err != nil {
		return "", err
	}
	ex, err := For(kind)
	if err != nil {
		return "", err
	}
	return ex.Extract(ctx, r, size)
}

// CheckContent rejects text whose trimmed length is below MinContentLength.
func CheckContent(text string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n < MinContentLength {
		return fmt.Errorf("extract: %w: found %d characters, minimum is %d",
			ErrInsufficientContent, n, MinContentLength)
	}
	return nil
}

// failure wraps a parser error as ErrExtractionFailure.
func failure(kind Kind, err error) error {
	return fmt.Errorf("extract: %s: %w: %w", kind, ErrExtractionFailure, err)
}
