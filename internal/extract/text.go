package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"unicode/utf8"
)

// utf8BOM is stripped from the start of plain text files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// textExtractor decodes the raw file as UTF-8.
type textExtractor struct{}

// Extract implements Extractor.
func (textExtractor) Extract(_ context.Context, r io.ReaderAt, size int64) (string, error) {
	b, err := io.ReadAll(io.NewSectionReader(r, 0, size))
	if err != nil {
		return "", failure(KindText, err)
	}
	b = bytes.TrimPrefix(b, utf8BOM)
	if !utf8.Valid(b) {
		return "", failure(KindText, errors.New("content is not valid UTF-8"))
	}
	return string(b), nil
}
