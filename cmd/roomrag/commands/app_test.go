package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/54b3r/roomrag-go/internal/config"
	"github.com/54b3r/roomrag-go/internal/provider"
	"github.com/54b3r/roomrag-go/internal/version"
)

func TestEmbedderConfig_InheritsFromModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		mutate       func(*config.Config)
		wantProvider string
		wantKey      string
		wantEndpoint string
	}{
		{
			name:         "defaults to ollama host",
			mutate:       func(*config.Config) {},
			wantProvider: "ollama",
			wantEndpoint: "http://localhost:11434",
		},
		{
			name: "follows openai chat backend",
			mutate: func(c *config.Config) {
				c.Model.Provider = "openai"
				c.Model.OpenAI.APIKey = "sk-chat"
			},
			wantProvider: "openai",
			wantKey:      "sk-chat",
		},
		{
			name: "ark cannot embed so ollama is used",
			mutate: func(c *config.Config) {
				c.Model.Provider = "ark"
			},
			wantProvider: "ollama",
			wantEndpoint: "http://localhost:11434",
		},
		{
			name: "explicit embedding settings win",
			mutate: func(c *config.Config) {
				c.Model.Provider = "azure"
				c.Model.Azure.APIKey = "chat-key"
				c.Model.Azure.Endpoint = "https://chat.openai.azure.com"
				c.Embedding.Provider = "azure"
				c.Embedding.APIKey = "embed-key"
			},
			wantProvider: "azure",
			wantKey:      "embed-key",
			wantEndpoint: "https://chat.openai.azure.com",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tc.mutate(cfg)
			got := embedderConfig(cfg)
			if got.Provider != tc.wantProvider {
				t.Errorf("provider: got %q, want %q", got.Provider, tc.wantProvider)
			}
			if got.APIKey != tc.wantKey {
				t.Errorf("api key: got %q, want %q", got.APIKey, tc.wantKey)
			}
			if got.Endpoint != tc.wantEndpoint {
				t.Errorf("endpoint: got %q, want %q", got.Endpoint, tc.wantEndpoint)
			}
		})
	}
}

func TestProviderConfig_CarriesAnswerTuning(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Model.Provider = "gemini"
	cfg.Model.Gemini.APIKey = "g-key"
	cfg.Answer.MaxTokens = 321
	cfg.Answer.Temperature = 0.1

	got := providerConfig(cfg)
	if got.Backend != provider.BackendGemini || got.Gemini.APIKey != "g-key" {
		t.Errorf("backend: got %+v", got)
	}
	if got.Tuning.MaxTokens != 321 || got.Tuning.Temperature != 0.1 {
		t.Errorf("tuning: got %+v", got.Tuning)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestFilestoreConfig_BoundsObjects(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.MaxUploadMB = 3
	if got := filestoreConfig(cfg).MaxObjectSize; got != 3<<20 {
		t.Errorf("max object size: got %d", got)
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version.String() {
		t.Errorf("output: got %q, want %q", got, version.String())
	}
}
