// Package chat answers questions asked in a room: it retrieves evidence from
// the room's namespace, synthesises an answer and records the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/roomrag-go/internal/logging"
	"github.com/54b3r/roomrag-go/internal/rag"
	"github.com/54b3r/roomrag-go/internal/store"
	"github.com/54b3r/roomrag-go/internal/synth"
)

// NoEvidenceAnswer is returned when retrieval finds nothing above the
// relevance threshold.
const NoEvidenceAnswer = "Sorry, I could not find any relevant information in the provided documents to answer this question."

// Outcome labels reported to OnOutcome.
const (
	OutcomeOK         = "ok"
	OutcomeNoEvidence = "no_evidence"
	OutcomeTimeout    = "timeout"
	OutcomeError      = "error"
)

// Exchange is the result of one question.
type Exchange struct {
	// MessageID is the ID of the recorded answer, 0 when nothing was recorded.
	MessageID  int64
	Question   string
	Answer     string
	Sources    []synth.Source
	TokensUsed int
	CreatedAt  time.Time
}

// Retriever finds evidence for a question within a namespace.
type Retriever interface {
	Retrieve(ctx context.Context, question, namespace string, topK int) ([]rag.Match, error)
}

// Synthesizer turns evidence into an answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, chunks []rag.Match) (*synth.Answer, error)
}

// Recorder persists a completed exchange and returns the answer's message ID.
type Recorder interface {
	Record(ctx context.Context, namespace string, ex *Exchange) (int64, error)
}

// Config wires an Orchestrator. Recorder, Now and OnOutcome are optional.
type Config struct {
	Retriever   Retriever
	Synthesizer Synthesizer
	Recorder    Recorder
	// TopK is passed to the retriever; <= 0 uses the retriever default.
	TopK int
	// Now supplies CreatedAt; defaults to time.Now.
	Now func() time.Time
	// OnOutcome is called once per question with an Outcome label and the
	// tokens consumed.
	OnOutcome func(outcome string, tokens int)
}

// Orchestrator runs the retrieve → synthesise → record flow.
type Orchestrator struct {
	retriever   Retriever
	synthesizer Synthesizer
	recorder    Recorder
	topK        int
	now         func() time.Time
	onOutcome   func(string, int)
}

// New returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Retriever == nil {
		return nil, errors.New("chat: retriever must not be nil")
	}
	if cfg.Synthesizer == nil {
		return nil, errors.New("chat: synthesizer must not be nil")
	}
	o := &Orchestrator{
		retriever:   cfg.Retriever,
		synthesizer: cfg.Synthesizer,
		recorder:    cfg.Recorder,
		topK:        cfg.TopK,
		now:         cfg.Now,
		onOutcome:   cfg.OnOutcome,
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Answer answers question from the documents indexed under namespace. When no
// chunk clears the relevance threshold the synthesizer is not called and the
// exchange carries NoEvidenceAnswer with zero tokens and no sources.
func (o *Orchestrator) Answer(ctx context.Context, question, namespace string) (ex *Exchange, err error) {
	log := logging.FromContext(ctx).With(slog.String("namespace", namespace))
	outcome, tokens := OutcomeError, 0
	defer func() {
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			outcome = OutcomeTimeout
		}
		if o.onOutcome != nil {
			o.onOutcome(outcome, tokens)
		}
	}()

	log.Info("chat: question received", slog.Int("question_chars", len([]rune(question))))

	chunks, err := o.retriever.Retrieve(ctx, question, namespace, o.topK)
	if err != nil {
		return nil, fmt.Errorf("chat: retrieve: %w", err)
	}

	ex = &Exchange{Question: question}
	if len(chunks) == 0 {
		log.Warn("chat: no relevant chunks found")
		ex.Answer = NoEvidenceAnswer
		ex.Sources = []synth.Source{}
		outcome = OutcomeNoEvidence
	} else {
		ans, err := o.synthesizer.Synthesize(ctx, question, chunks)
		if err != nil {
			return nil, fmt.Errorf("chat: synthesize: %w", err)
		}
		ex.Answer = ans.Text
		ex.Sources = ans.Sources
		ex.TokensUsed = ans.TokensUsed
		if ex.Sources == nil {
			ex.Sources = []synth.Source{}
		}
		outcome, tokens = OutcomeOK, ans.TokensUsed
	}
	ex.CreatedAt = o.now().UTC()

	if o.recorder != nil {
		id, err := o.recorder.Record(ctx, namespace, ex)
		if err != nil {
			outcome = OutcomeError
			return nil, fmt.Errorf("chat: record exchange: %w", err)
		}
		ex.MessageID = id
	}

	log.Info("chat: answered",
		slog.Int("chunks", len(chunks)),
		slog.Int("tokens_used", ex.TokensUsed),
	)
	return ex, nil
}

// StoreRecorder records exchanges in the metadata store.
type StoreRecorder struct {
	store *store.SQLiteStore
}

// NewStoreRecorder returns a Recorder backed by s.
func NewStoreRecorder(s *store.SQLiteStore) *StoreRecorder {
	return &StoreRecorder{store: s}
}

// Record resolves the room owning namespace and appends the question and
// answer to its history.
func (r *StoreRecorder) Record(ctx context.Context, namespace string, ex *Exchange) (int64, error) {
	room, err := r.store.GetRoomByNamespace(ctx, namespace)
	if err != nil {
		return 0, err
	}
	sources := make([]store.Source, len(ex.Sources))
	for i, s := range ex.Sources {
		sources[i] = store.Source{
			DocumentID: s.DocumentID,
			Filename:   s.Filename,
			Score:      s.Score,
			ChunkText:  s.ChunkText,
		}
	}
	return r.store.AppendExchange(ctx, room.ID, ex.Question, ex.Answer, sources, ex.TokensUsed, ex.CreatedAt)
}
