// Package synth turns a question and its retrieved evidence into a grounded
// answer with one call to a chat model.
package synth

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/roomrag-go/internal/budget"
	"github.com/54b3r/roomrag-go/internal/logging"
	"github.com/54b3r/roomrag-go/internal/rag"
)

const (
	// MaxContextChunks is the number of highest-scoring chunks placed in the
	// prompt and cited as sources.
	MaxContextChunks = 5

	// DefaultTemperature keeps answers close to the supplied evidence.
	DefaultTemperature float32 = 0.3

	// DefaultMaxTokens caps the generated answer.
	DefaultMaxTokens = 800

	// DefaultLanguage is the answer language when none is configured.
	DefaultLanguage = "English"

	// blockSeparator joins context blocks in the user prompt.
	blockSeparator = "\n\n---\n\n"
)

// ErrGeneration classifies failures of the chat model.
var ErrGeneration = errors.New("answer generation error")

// Source is a chunk cited in an answer.
type Source struct {
	DocumentID int64
	Filename   string
	// Score is the similarity rounded to three decimals.
	Score     float64
	ChunkText string
}

// Answer is the synthesised response to a question.
type Answer struct {
	Text       string
	TokensUsed int
	Sources    []Source
}

// Config tunes generation. Zero values take the package defaults.
type Config struct {
	Temperature float32
	MaxTokens   int
	// Language names the language answers are written in.
	Language string
	// MaxContextTokens bounds the estimated size of the context blocks.
	MaxContextTokens int
}

// Synthesizer generates answers from retrieved chunks.
type Synthesizer struct {
	model            model.BaseChatModel
	temperature      float32
	maxTokens        int
	systemPrompt     string
	maxContextTokens int
}

// New returns a Synthesizer backed by m.
func New(m model.BaseChatModel, cfg *Config) (*Synthesizer, error) {
	if m == nil {
		return nil, errors.New("synth: chat model must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	s := &Synthesizer{
		model:            m,
		temperature:      cfg.Temperature,
		maxTokens:        cfg.MaxTokens,
		maxContextTokens: cfg.MaxContextTokens,
	}
	if s.temperature <= 0 {
		s.temperature = DefaultTemperature
	}
	if s.maxTokens <= 0 {
		s.maxTokens = DefaultMaxTokens
	}
	if s.maxContextTokens <= 0 {
		s.maxContextTokens = budget.DefaultMaxContextTokens
	}
	lang := strings.TrimSpace(cfg.Language)
	if lang == "" {
		lang = DefaultLanguage
	}
	s.systemPrompt = SystemPrompt(lang)
	return s, nil
}

// SystemPrompt returns the fixed instructions given to the model, asking for
// answers in lang.
func SystemPrompt(lang string) string {
	return fmt.Sprintf(`You are a professional assistant. You answer questions accurately and in detail, using the documents provided to you as context.

RULES:
1. Use ONLY the information in the provided documents.
2. Quote the documents DIRECTLY and state which source file each piece of information comes from.
3. Answer in %s, clearly and concisely.
4. If the documents do not contain the answer, say plainly "This information is not found in the provided documents".
5. Do not make assumptions; rely only on what the documents say.
6. Reproduce specific details such as dates, names and numbers exactly as they appear in the documents.`, lang)
}

// Synthesize answers question from chunks. The chunks with the highest
// scores, at most MaxContextChunks, form the context; blocks that would push
// the context over the token budget are dropped lowest rank first.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, chunks []rag.Match) (*Answer, error) {
	log := logging.FromContext(ctx)

	ranked := slices.Clone(chunks)
	slices.SortStableFunc(ranked, func(a, b rag.Match) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(ranked) > MaxContextChunks {
		ranked = ranked[:MaxContextChunks]
	}

	blocks := make([]string, len(ranked))
	for i, c := range ranked {
		blocks[i] = contextBlock(c)
	}
	kept := budget.FitBlocks(blocks, blockSeparator, s.maxContextTokens)
	if dropped := len(blocks) - len(kept); dropped > 0 {
		log.Warn("synth: dropped context blocks to fit token budget",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(kept)),
			slog.Int("max_tokens", s.maxContextTokens),
		)
		ranked = ranked[:len(kept)]
	}

	msgs := []*schema.Message{
		schema.SystemMessage(s.systemPrompt),
		schema.UserMessage(userPrompt(strings.Join(kept, blockSeparator), question)),
	}
	log.Debug("synth: generating answer",
		slog.Int("context_chunks", len(ranked)),
		slog.Int("estimated_prompt_tokens", budget.EstimateMessages(msgs)),
	)

	resp, err := s.model.Generate(ctx, msgs,
		model.WithTemperature(s.temperature),
		model.WithMaxTokens(s.maxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("synth: generate: %w: %w", ErrGeneration, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("synth: generate: %w: empty response", ErrGeneration)
	}

	answer := &Answer{
		Text:       resp.Content,
		TokensUsed: tokensUsed(resp),
		Sources:    make([]Source, len(ranked)),
	}
	for i, c := range ranked {
		answer.Sources[i] = Source{
			DocumentID: c.DocumentID,
			Filename:   c.Filename,
			Score:      roundScore(c.Score),
			ChunkText:  c.Text,
		}
	}
	return answer, nil
}

func contextBlock(c rag.Match) string {
	return "Source file: " + c.Filename + "\nContent: " + c.Text
}

func userPrompt(evidence, question string) string {
	return `Answer the question using the document contents below:

=== DOCUMENTS ===
` + evidence + `

=== QUESTION ===
` + question + `

=== INSTRUCTIONS ===
Answer the question in detail based on the documents above. State which source each piece of information was taken from.`
}

func tokensUsed(m *schema.Message) int {
	if m.ResponseMeta == nil || m.ResponseMeta.Usage == nil {
		return 0
	}
	return m.ResponseMeta.Usage.TotalTokens
}

func roundScore(s float32) float64 {
	return math.Round(float64(s)*1000) / 1000
}
