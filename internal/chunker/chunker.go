// Package chunker splits extracted document text into overlapping chunks
// suitable for embedding.
//
// The splitter is recursive: text is cut on the coarsest separator that
// occurs in it, the pieces are greedily merged back up to the chunk size, and
// any piece that is still too long is split again with the next finer
// separator. Lengths are measured in characters (runes), not bytes.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultOverlap is the maximum number of trailing characters of one chunk
	// carried into the next.
	DefaultOverlap = 200
)

// DefaultSeparators are tried in order from paragraph to character level.
// The empty separator splits into single characters and guarantees the size
// bound.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker is a deterministic recursive character splitter. The zero value is
// not usable; construct with New.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the maximum chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap window in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithSeparators replaces the separator hierarchy.
func WithSeparators(seps ...string) Option {
	return func(c *Chunker) {
		if len(seps) > 0 {
			c.separators = append([]string(nil), seps...)
		}
	}
}

// New returns a Chunker with defaults applied. An overlap that is not smaller
// than the chunk size is clamped to a fifth of the size.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:       DefaultChunkSize,
		overlap:    DefaultOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 5
	}
	return c
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the ordered chunks of text. Chunks are trimmed of surrounding
// whitespace and never empty. The same input always yields the same output.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.split(text, c.separators)
}

func (c *Chunker) split(text string, separators []string) []string {
	var (
		separator = separators[len(separators)-1]
		finer     []string
	)
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			finer = separators[i+1:]
			break
		}
	}

	var (
		chunks []string
		good   []string
	)
	for _, piece := range splitOn(text, separator) {
		if runeLen(piece) < c.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, c.merge(good, separator)...)
			good = nil
		}
		if len(finer) == 0 {
			chunks = appendTrimmed(chunks, piece)
			continue
		}
		chunks = append(chunks, c.split(piece, finer)...)
	}
	if len(good) > 0 {
		chunks = append(chunks, c.merge(good, separator)...)
	}
	return chunks
}

// merge greedily joins pieces with separator into chunks no longer than the
// chunk size. When a chunk is emitted, pieces are dropped from the front of
// the window until at most overlap characters remain to seed the next one.
func (c *Chunker) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)

	var (
		chunks []string
		window []string
		total  int
	)
	joinCost := func() int {
		if len(window) > 0 {
			return sepLen
		}
		return 0
	}
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n+joinCost() > c.size && len(window) > 0 {
			chunks = appendTrimmed(chunks, strings.Join(window, separator))
			for total > c.overlap || (total > 0 && total+n+joinCost() > c.size) {
				drop := runeLen(window[0])
				if len(window) > 1 {
					drop += sepLen
				}
				total -= drop
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
		if len(window) > 1 {
			total += sepLen
		}
	}
	if len(window) > 0 {
		chunks = appendTrimmed(chunks, strings.Join(window, separator))
	}
	return chunks
}

// splitOn cuts text on sep, dropping empty pieces. An empty sep yields one
// piece per character.
func splitOn(text, sep string) []string {
	var parts []string
	if sep == "" {
		parts = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	for _, p := range strings.Split(text, sep) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func appendTrimmed(chunks []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
