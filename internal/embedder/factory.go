package embedder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/54b3r/roomrag-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	defaultOllamaHost    = "http://localhost:11434"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultAzureVersion  = "2025-04-01-preview"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768
)

// Config selects and configures an embedding backend. Credentials that are
// empty here are expected to have been inherited from the chat model
// settings by the caller.
type Config struct {
	// Provider is one of ollama, openai, azure, gemini.
	Provider string
	// Model is the embedding model or Azure deployment name.
	Model string
	// APIKey authenticates against openai, azure and gemini.
	APIKey string
	// Endpoint is the Ollama host, OpenAI base URL or Azure resource endpoint.
	Endpoint string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// Dimensions overrides the backend default vector size.
	Dimensions int
	// Timeout bounds each HTTP call for the HTTP backends.
	Timeout time.Duration
}

// Providers lists the accepted Provider values.
var Providers = []string{"ollama", "openai", "azure", "gemini"}

// DefaultDimensions returns the default embedding vector size for backend.
// Callers that pre-configure a vector index (e.g. Qdrant collection creation)
// should use this rather than hardcoding a value.
func DefaultDimensions(backend string) int {
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "gemini":
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// VectorSize returns cfg.Dimensions or the backend default.
func (cfg *Config) VectorSize() int {
	if cfg.Dimensions > 0 {
		return cfg.Dimensions
	}
	return DefaultDimensions(cfg.Provider)
}

// New constructs the rag.Embedder selected by cfg.Provider.
func New(ctx context.Context, cfg *Config) (rag.Embedder, error) {
	switch cfg.Provider {
	case "", "ollama":
		host := cfg.Endpoint
		if host == "" {
			host = defaultOllamaHost
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:    strings.TrimRight(host, "/"),
			Model:   orDefault(cfg.Model, defaultOllamaModel),
			Timeout: cfg.Timeout,
		}), nil

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai requires an API key (OPENAI_API_KEY or EMBEDDING_API_KEY)")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(orDefault(cfg.Endpoint, defaultOpenAIBaseURL), "/"),
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultOpenAIModel),
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil

	case "azure":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure requires an API key (AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY)")
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires an endpoint (AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT)")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.Endpoint, "/") + "/openai",
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultOpenAIModel),
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: orDefault(cfg.APIVersion, defaultAzureVersion),
			Timeout:    cfg.Timeout,
		}), nil

	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires an API key (GOOGLE_API_KEY or EMBEDDING_API_KEY)")
		}
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultGeminiModel),
			Dimensions: cfg.Dimensions,
		})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: %s", cfg.Provider, strings.Join(Providers, ", "))
	}
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
