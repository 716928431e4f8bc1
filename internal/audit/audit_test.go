package audit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/54b3r/roomrag-go/internal/config"
)

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Model.OpenAI.APIKey = "sk-abc123"
	cfg.Server.APIKey = ""
	cfg.Qdrant.Host = "qdrant.internal"

	var buf bytes.Buffer
	LogCommandStart(slog.New(slog.NewJSONHandler(&buf, nil)), "serve", "", cfg)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{
		"command":         "serve",
		"config_file":     "none",
		"OPENAI_API_KEY":  "set",
		"ROOMRAG_API_KEY": "unset",
		"QDRANT_HOST":     "qdrant.internal",
		"AMQP_URL":        "set",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s: got %v, want %q", k, rec[k], v)
		}
	}
	if bytes.Contains(buf.Bytes(), []byte("sk-abc123")) {
		t.Error("secret value leaked into audit log")
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.roomrag/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.roomrag/config.yaml" {
			t.Errorf("expected '~/.roomrag/config.yaml', got %q", got)
		}
	}
}
