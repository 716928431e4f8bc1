package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/54b3r/roomrag-go/internal/chat"
	"github.com/54b3r/roomrag-go/internal/config"
	"github.com/54b3r/roomrag-go/internal/documents"
	"github.com/54b3r/roomrag-go/internal/embedder"
	"github.com/54b3r/roomrag-go/internal/filestore"
	"github.com/54b3r/roomrag-go/internal/ingestion"
	"github.com/54b3r/roomrag-go/internal/provider"
	"github.com/54b3r/roomrag-go/internal/rag"
	"github.com/54b3r/roomrag-go/internal/store"
	"github.com/54b3r/roomrag-go/internal/synth"
)

// app holds the components a command works with. Components are built on
// first use so room and history commands never dial a model backend.
type app struct {
	cfg *config.Config
	log *slog.Logger

	db     *store.SQLiteStore
	files  filestore.Store
	index  rag.VectorIndex
	qdrant *rag.QdrantIndex
	queue  ingestion.Queue
	docs   *documents.Service

	emb rag.Embedder

	// onChat and onIngestion receive observations when metrics are wired.
	onChat      func(outcome string, tokens int)
	onIngestion func(outcome string, chunks int)

	closers []func() error
}

// appOptions adjusts how newApp builds the shared components.
type appOptions struct {
	// memoryQueue forces an in-process queue of the given size regardless of
	// ingestion.queue. Zero keeps the configured backend.
	memoryQueue int
}

// newApp opens the metadata store, file store, vector index and queue.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.db, err = store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.db.Close)
	log.Debug("store: opened", slog.String("path", cfg.Database.Path))

	a.files, err = filestore.New(ctx, filestoreConfig(cfg))
	if err != nil {
		return nil, err
	}

	switch cfg.Index.Backend {
	case "memory":
		a.index = rag.NewMemoryIndex()
		log.Warn("index: using in-memory vector index, vectors are lost on exit")
	default:
		embCfg := embedderConfig(cfg)
		a.qdrant, err = rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			VectorSize: uint64(embCfg.VectorSize()), //nolint:gosec // dimensions are bounded
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.TLS,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", cfg.Qdrant.Host, cfg.Qdrant.Port, err)
		}
		a.index = a.qdrant
		log.Info("index: qdrant ready",
			slog.String("host", cfg.Qdrant.Host),
			slog.Int("port", cfg.Qdrant.Port),
			slog.String("collection", cfg.Qdrant.Collection),
		)
	}
	a.closers = append(a.closers, a.index.Close)

	switch {
	case opts.memoryQueue > 0:
		a.queue = ingestion.NewMemoryQueue(opts.memoryQueue)
	case cfg.Ingestion.Queue == "amqp":
		a.queue, err = ingestion.NewAMQPQueue(cfg.Ingestion.AMQPURL, cfg.Ingestion.AMQPQueue)
		if err != nil {
			return nil, err
		}
		log.Info("ingestion: rabbitmq queue ready", slog.String("queue", cfg.Ingestion.AMQPQueue))
	default:
		a.queue = ingestion.NewMemoryQueue(0)
	}
	a.closers = append(a.closers, a.queue.Close)

	a.docs, err = documents.NewService(documents.Config{
		Metadata:      a.db,
		Files:         a.files,
		Index:         a.index,
		Queue:         a.queue,
		MaxUploadSize: cfg.MaxUploadBytes(),
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases every opened component in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("shutdown: close failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}

// embedder returns the cached embedding client, building it on first use.
func (a *app) embedder(ctx context.Context) (rag.Embedder, error) {
	if a.emb != nil {
		return a.emb, nil
	}
	cfg := embedderConfig(a.cfg)
	embedder.Warn(cfg, a.log)
	e, err := embedder.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.emb = embedder.WithCache(e, a.cfg.Embedding.CacheSize, a.cfg.Embedding.CacheTTL)
	a.log.Info("embedder: initialised",
		slog.String("provider", cfg.Provider),
		slog.Int("dimensions", cfg.VectorSize()),
	)
	return a.emb, nil
}

// worker builds the ingestion pipeline and the worker that runs it.
func (a *app) worker(ctx context.Context) (*ingestion.Worker, error) {
	emb, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}
	pipeline, err := ingestion.NewPipeline(a.files, emb, a.index, &ingestion.Config{
		ChunkSize:    a.cfg.Ingestion.ChunkSize,
		ChunkOverlap: a.cfg.Ingestion.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}
	return ingestion.NewWorker(a.queue, pipeline, a.db, ingestion.WorkerConfig{
		Concurrency: a.cfg.Ingestion.Workers,
		JobTimeout:  a.cfg.Ingestion.JobTimeout,
		OnOutcome:   a.onIngestion,
	}), nil
}

// chat builds the retrieval, synthesis and recording chain.
func (a *app) chat(ctx context.Context) (*chat.Orchestrator, error) {
	emb, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}
	retriever, err := rag.NewRetriever(emb, a.index, rag.RetrieverConfig{
		TopK:      a.cfg.Retrieval.TopK,
		Threshold: a.cfg.Retrieval.Threshold,
	})
	if err != nil {
		return nil, err
	}

	pcfg := providerConfig(a.cfg)
	chatModel, err := provider.New(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	a.log.Info("provider: initialised",
		slog.String("provider", string(pcfg.Backend)),
		slog.String("model", pcfg.ModelName()),
	)

	syn, err := synth.New(chatModel, &synth.Config{
		Temperature:      a.cfg.Answer.Temperature,
		MaxTokens:        a.cfg.Answer.MaxTokens,
		Language:         a.cfg.Answer.Language,
		MaxContextTokens: a.cfg.Answer.MaxContextTokens,
	})
	if err != nil {
		return nil, err
	}

	return chat.New(chat.Config{
		Retriever:   retriever,
		Synthesizer: syn,
		Recorder:    chat.NewStoreRecorder(a.db),
		TopK:        a.cfg.Retrieval.TopK,
		OnOutcome:   a.onChat,
	})
}

// providerConfig maps the model section onto the chat model factory config.
func providerConfig(cfg *config.Config) *provider.Config {
	m := cfg.Model
	return &provider.Config{
		Backend: provider.Backend(m.Provider),
		Ollama:  provider.ProviderOllama{Host: m.Ollama.Host, Model: m.Ollama.Model},
		OpenAI:  provider.ProviderOpenAI{APIKey: m.OpenAI.APIKey, Model: m.OpenAI.Model, BaseURL: m.OpenAI.BaseURL},
		AzureOpenAI: provider.ProviderAzureOpenAI{
			APIKey:     m.Azure.APIKey,
			Endpoint:   m.Azure.Endpoint,
			Deployment: m.Azure.Deployment,
			APIVersion: m.Azure.APIVersion,
		},
		Ark:    provider.ProviderArk{APIKey: m.Ark.APIKey, Model: m.Ark.Model, BaseURL: m.Ark.BaseURL},
		Gemini: provider.ProviderGemini{APIKey: m.Gemini.APIKey, Model: m.Gemini.Model},
		Tuning: provider.SharedTuning{MaxTokens: cfg.Answer.MaxTokens, Temperature: cfg.Answer.Temperature},
	}
}

// embedderConfig maps the embedding section onto the embedder factory
// config. Empty credentials are inherited from the matching chat backend.
func embedderConfig(cfg *config.Config) *embedder.Config {
	e := cfg.Embedding
	out := &embedder.Config{
		Provider:   e.Provider,
		Model:      e.Model,
		APIKey:     e.APIKey,
		Endpoint:   e.Endpoint,
		APIVersion: e.APIVersion,
		Dimensions: e.Dimensions,
		Timeout:    e.Timeout,
	}
	if out.Provider == "" {
		out.Provider = "ollama"
		if slices.Contains(embedder.Providers, cfg.Model.Provider) {
			out.Provider = cfg.Model.Provider
		}
	}

	m := cfg.Model
	switch out.Provider {
	case "ollama":
		out.Endpoint = firstNonEmpty(out.Endpoint, m.Ollama.Host)
	case "openai":
		out.APIKey = firstNonEmpty(out.APIKey, m.OpenAI.APIKey)
		out.Endpoint = firstNonEmpty(out.Endpoint, m.OpenAI.BaseURL)
	case "azure":
		out.APIKey = firstNonEmpty(out.APIKey, m.Azure.APIKey)
		out.Endpoint = firstNonEmpty(out.Endpoint, m.Azure.Endpoint)
	case "gemini":
		out.APIKey = firstNonEmpty(out.APIKey, m.Gemini.APIKey)
	}
	return out
}

// filestoreConfig maps the storage section onto the file store config.
func filestoreConfig(cfg *config.Config) filestore.Config {
	s := cfg.Storage
	return filestore.Config{
		Backend:       s.Backend,
		Dir:           s.Dir,
		Bucket:        s.Bucket,
		Region:        s.Region,
		Endpoint:      s.Endpoint,
		AccessKey:     s.AccessKey,
		SecretKey:     s.SecretKey,
		Prefix:        s.Prefix,
		UsePathStyle:  s.UsePathStyle,
		MaxObjectSize: cfg.MaxUploadBytes(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// errRoomRequired is returned by commands that need --room.
var errRoomRequired = errors.New("--room is required")
