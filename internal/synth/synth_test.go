package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/roomrag-go/internal/rag"
)

// fakeModel records the last request and returns a canned reply.
type fakeModel struct {
	reply *schema.Message
	err   error

	calls int
	msgs  []*schema.Message
	opts  *model.Options
}

func (f *fakeModel) Generate(_ context.Context, msgs []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.calls++
	f.msgs = msgs
	f.opts = model.GetCommonOptions(&model.Options{}, opts...)
	return f.reply, f.err
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func reply(text string, total int) *schema.Message {
	m := schema.AssistantMessage(text, nil)
	m.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{TotalTokens: total}}
	return m
}

func match(doc int64, file string, score float32, text string) rag.Match {
	return rag.Match{
		ID:       rag.VectorID(doc, 0),
		Score:    score,
		Metadata: rag.Metadata{DocumentID: doc, Filename: file, Text: text},
	}
}

func TestSynthesize_PromptAndSources(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{reply: reply("Payment is due within 30 days.", 412)}
	s, err := New(fm, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	chunks := []rag.Match{
		match(1, "low.txt", 0.55, "low"),
		match(2, "contract.pdf", 0.91234, "Payment is due within 30 days."),
		match(3, "mid.docx", 0.7, "mid"),
	}
	ans, err := s.Synthesize(context.Background(), "When is payment due?", chunks)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	if ans.Text != "Payment is due within 30 days." || ans.TokensUsed != 412 {
		t.Errorf("unexpected answer: %+v", ans)
	}
	if len(ans.Sources) != 3 {
		t.Fatalf("want 3 sources, got %d", len(ans.Sources))
	}
	if ans.Sources[0].Filename != "contract.pdf" || ans.Sources[0].Score != 0.912 {
		t.Errorf("want top source contract.pdf@0.912, got %+v", ans.Sources[0])
	}
	if ans.Sources[2].DocumentID != 1 {
		t.Errorf("want lowest score last, got %+v", ans.Sources[2])
	}

	if len(fm.msgs) != 2 || fm.msgs[0].Role != schema.System || fm.msgs[1].Role != schema.User {
		t.Fatalf("want system + user messages, got %+v", fm.msgs)
	}
	user := fm.msgs[1].Content
	wantCtx := "Source file: contract.pdf\nContent: Payment is due within 30 days." +
		"\n\n---\n\n" + "Source file: mid.docx\nContent: mid"
	if !strings.Contains(user, wantCtx) {
		t.Errorf("context blocks not in score order:\n%s", user)
	}
	if !strings.Contains(user, "When is payment due?") {
		t.Error("question missing from user prompt")
	}
	if !strings.Contains(fm.msgs[0].Content, "Answer in English") {
		t.Error("default language missing from system prompt")
	}

	if fm.opts.Temperature == nil || *fm.opts.Temperature != DefaultTemperature {
		t.Errorf("want temperature %v, got %v", DefaultTemperature, fm.opts.Temperature)
	}
	if fm.opts.MaxTokens == nil || *fm.opts.MaxTokens != DefaultMaxTokens {
		t.Errorf("want max tokens %d, got %v", DefaultMaxTokens, fm.opts.MaxTokens)
	}
}

func TestSynthesize_TopFiveOnly(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{reply: reply("ok", 1)}
	s, _ := New(fm, nil)

	var chunks []rag.Match
	for i := range 8 {
		chunks = append(chunks, match(int64(i), "f.txt", 0.6+float32(i)/100, "text"))
	}
	ans, err := s.Synthesize(context.Background(), "q", chunks)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(ans.Sources) != MaxContextChunks {
		t.Fatalf("want %d sources, got %d", MaxContextChunks, len(ans.Sources))
	}
	if ans.Sources[0].DocumentID != 7 {
		t.Errorf("want highest score first, got doc %d", ans.Sources[0].DocumentID)
	}
	if n := strings.Count(fm.msgs[1].Content, "Source file:"); n != MaxContextChunks {
		t.Errorf("want %d blocks in prompt, got %d", MaxContextChunks, n)
	}
}

func TestSynthesize_ContextBudget(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{reply: reply("ok", 1)}
	s, _ := New(fm, &Config{MaxContextTokens: 300})

	big := strings.Repeat("x", 1000) // ~250 tokens per block
	chunks := []rag.Match{match(1, "a.txt", 0.9, big), match(2, "b.txt", 0.8, big)}
	ans, err := s.Synthesize(context.Background(), "q", chunks)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].DocumentID != 1 {
		t.Errorf("want only the top block kept, got %+v", ans.Sources)
	}
}

func TestSynthesize_ConfiguredLanguageAndTuning(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{reply: reply("tamam", 0)}
	s, _ := New(fm, &Config{Language: "Turkish", Temperature: 0.1, MaxTokens: 200})

	ans, err := s.Synthesize(context.Background(), "q", []rag.Match{match(1, "a.txt", 0.8, "t")})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !strings.Contains(fm.msgs[0].Content, "Answer in Turkish") {
		t.Error("configured language missing from system prompt")
	}
	if *fm.opts.Temperature != 0.1 || *fm.opts.MaxTokens != 200 {
		t.Errorf("tuning not applied: temp=%v max=%v", *fm.opts.Temperature, *fm.opts.MaxTokens)
	}
	if ans.TokensUsed != 0 {
		t.Errorf("want 0 tokens, got %d", ans.TokensUsed)
	}
}

func TestSynthesize_NoUsageMeta(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{reply: schema.AssistantMessage("ok", nil)}
	s, _ := New(fm, nil)
	ans, err := s.Synthesize(context.Background(), "q", []rag.Match{match(1, "a.txt", 0.8, "t")})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if ans.TokensUsed != 0 {
		t.Errorf("want 0 tokens without usage metadata, got %d", ans.TokensUsed)
	}
}

func TestSynthesize_ModelError(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{err: context.DeadlineExceeded}
	s, _ := New(fm, nil)
	_, err := s.Synthesize(context.Background(), "q", []rag.Match{match(1, "a.txt", 0.8, "t")})
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("want ErrGeneration, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("want cause preserved, got %v", err)
	}
}

func TestNew_NilModel(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil); err == nil {
		t.Fatal("want error for nil model")
	}
}
