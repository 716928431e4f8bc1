package chunker

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c := New()
	if c.Size() != DefaultChunkSize || c.Overlap() != DefaultOverlap {
		t.Errorf("want %d/%d, got %d/%d", DefaultChunkSize, DefaultOverlap, c.Size(), c.Overlap())
	}
}

func TestNew_OverlapClamped(t *testing.T) {
	t.Parallel()

	c := New(WithChunkSize(100), WithOverlap(100))
	if c.Overlap() != 20 {
		t.Errorf("want overlap clamped to 20, got %d", c.Overlap())
	}
}

func TestSplit_Empty(t *testing.T) {
	t.Parallel()

	if got := New().Split(" \n\n\t "); len(got) != 0 {
		t.Errorf("want no chunks, got %q", got)
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()

	got := New().Split("  a short document  ")
	if !reflect.DeepEqual(got, []string{"a short document"}) {
		t.Errorf("unexpected chunks: %q", got)
	}
}

func TestSplit_WordOverlap(t *testing.T) {
	t.Parallel()

	c := New(WithChunkSize(10), WithOverlap(5))
	got := c.Split("aaaa bbbb cccc dddd")
	want := []string{"aaaa bbbb", "bbbb cccc", "cccc dddd"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("want %q, got %q", want, got)
	}
}

func TestSplit_ParagraphsPreferred(t *testing.T) {
	t.Parallel()

	c := New(WithChunkSize(20), WithOverlap(0))
	got := c.Split("first paragraph\n\nsecond paragraph")
	want := []string{"first paragraph", "second paragraph"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("want %q, got %q", want, got)
	}
}

func TestSplit_LongWordFallsBackToCharacters(t *testing.T) {
	t.Parallel()

	c := New(WithChunkSize(4), WithOverlap(0))
	got := c.Split("abcdefghij")
	want := []string{"abcd", "efgh", "ij"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("want %q, got %q", want, got)
	}
}

func TestSplit_CustomSeparators(t *testing.T) {
	t.Parallel()

	c := New(WithChunkSize(5), WithOverlap(0), WithSeparators("|", ""))
	got := c.Split("ab|cd|efghij")
	want := []string{"ab|cd", "efghi", "j"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("want %q, got %q", want, got)
	}
}

// sampleText is long, multi-paragraph and contains multi-byte characters so
// every separator level is exercised.
func sampleText() string {
	var sb strings.Builder
	for i := range 40 {
		sb.WriteString("Paragraph ")
		sb.WriteString(strings.Repeat("lorem ipsum dolor şğüö ", i%7+3))
		sb.WriteString(strings.Repeat("x", i*13))
		if i%3 == 0 {
			sb.WriteString("\n")
		} else {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

func TestSplit_Deterministic(t *testing.T) {
	t.Parallel()

	text := sampleText()
	c := New(WithChunkSize(120), WithOverlap(30))
	first := c.Split(text)
	for range 5 {
		if got := c.Split(text); !reflect.DeepEqual(first, got) {
			t.Fatal("split output differs between runs")
		}
	}
}

func TestSplit_SizeBoundAndNonEmpty(t *testing.T) {
	t.Parallel()

	for _, size := range []int{16, 64, 120, 1000} {
		c := New(WithChunkSize(size), WithOverlap(size/4))
		chunks := c.Split(sampleText())
		if len(chunks) == 0 {
			t.Fatalf("size %d: no chunks", size)
		}
		for i, ch := range chunks {
			if n := utf8.RuneCountInString(ch); n > size {
				t.Errorf("size %d: chunk %d has %d characters", size, i, n)
			}
			if strings.TrimSpace(ch) == "" {
				t.Errorf("size %d: chunk %d is blank", size, i)
			}
		}
	}
}
