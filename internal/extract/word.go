package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// documentPart is the zip entry holding the main body of an OOXML document.
const documentPart = "word/document.xml"

// wordExtractor reads the paragraphs of an OOXML word-processor document and
// joins them with newlines. Legacy binary .doc files are not zip containers
// and fail with ErrExtractionFailure.
type wordExtractor struct{}

// wordDocument mirrors the subset of word/document.xml needed for text.
type wordDocument struct {
	Body struct {
		Paragraphs []wordParagraph `xml:"p"`
	} `xml:"body"`
}

type wordParagraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

// Extract implements Extractor.
func (wordExtractor) Extract(_ context.Context, r io.ReaderAt, size int64) (string, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return "", failure(KindWord, err)
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", failure(KindWord, errors.New("missing "+documentPart))
	}

	rc, err := part.Open()
	if err != nil {
		return "", failure(KindWord, err)
	}
	defer rc.Close()

	var doc wordDocument
	if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
		return "", failure(KindWord, fmt.Errorf("decode %s: %w", documentPart, err))
	}

	paragraphs := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		var sb strings.Builder
		for _, run := range p.Runs {
			for _, t := range run.Text {
				sb.WriteString(t.Content)
			}
		}
		paragraphs = append(paragraphs, sb.String())
	}
	return strings.Join(paragraphs, "\n"), nil
}
