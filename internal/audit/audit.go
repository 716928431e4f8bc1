// Package audit provides a structured audit logger for CLI command invocations.
// It logs the command name, the config file and the resolved settings so
// operators can trace what happened without exposing secret values.
//
// Secrets are logged as presence/absence only, never their values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/roomrag-go/internal/config"
)

// entry is one setting included in the audit log.
type entry struct {
	// key is the setting name, matching its env var.
	key string
	// value is the resolved value.
	value string
	// secret indicates the value should be redacted to presence/absence.
	secret bool
}

// entries returns the ordered settings included in every audit log entry.
func entries(cfg *config.Config) []entry {
	return []entry{
		{"MODEL_PROVIDER", cfg.Model.Provider, false},
		{"OLLAMA_HOST", cfg.Model.Ollama.Host, false},
		{"OLLAMA_MODEL", cfg.Model.Ollama.Model, false},
		{"OPENAI_API_KEY", cfg.Model.OpenAI.APIKey, true},
		{"OPENAI_MODEL", cfg.Model.OpenAI.Model, false},
		{"AZURE_OPENAI_API_KEY", cfg.Model.Azure.APIKey, true},
		{"AZURE_OPENAI_ENDPOINT", cfg.Model.Azure.Endpoint, false},
		{"AZURE_OPENAI_DEPLOYMENT", cfg.Model.Azure.Deployment, false},
		{"ARK_API_KEY", cfg.Model.Ark.APIKey, true},
		{"ARK_MODEL", cfg.Model.Ark.Model, false},
		{"GOOGLE_API_KEY", cfg.Model.Gemini.APIKey, true},
		{"GEMINI_MODEL", cfg.Model.Gemini.Model, false},
		{"EMBEDDING_PROVIDER", cfg.Embedding.Provider, false},
		{"EMBEDDING_MODEL", cfg.Embedding.Model, false},
		{"EMBEDDING_API_KEY", cfg.Embedding.APIKey, true},
		{"INDEX_BACKEND", cfg.Index.Backend, false},
		{"QDRANT_HOST", cfg.Qdrant.Host, false},
		{"QDRANT_PORT", itoa(cfg.Qdrant.Port), false},
		{"QDRANT_COLLECTION", cfg.Qdrant.Collection, false},
		{"QDRANT_API_KEY", cfg.Qdrant.APIKey, true},
		{"RETRIEVAL_TOP_K", itoa(cfg.Retrieval.TopK), false},
		{"RETRIEVAL_THRESHOLD", strconv.FormatFloat(float64(cfg.Retrieval.Threshold), 'g', 3, 32), false},
		{"INGESTION_QUEUE", cfg.Ingestion.Queue, false},
		{"AMQP_URL", cfg.Ingestion.AMQPURL, true},
		{"STORAGE_BACKEND", cfg.Storage.Backend, false},
		{"S3_BUCKET", cfg.Storage.Bucket, false},
		{"AWS_SECRET_ACCESS_KEY", cfg.Storage.SecretKey, true},
		{"ROOMRAG_DB", cfg.Database.Path, false},
		{"ROOMRAG_API_KEY", cfg.Server.APIKey, true},
		{"LOG_LEVEL", cfg.Logging.Level, false},
		{"LOG_FORMAT", cfg.Logging.Format, false},
		{"LANGFUSE_PUBLIC_KEY", cfg.Tracing.PublicKey, true},
		{"LANGFUSE_SECRET_KEY", cfg.Tracing.SecretKey, true},
	}
}

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and sanitised settings.
func LogCommandStart(log *slog.Logger, command string, configPath string, cfg *config.Config) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, e := range entries(cfg) {
		if e.secret {
			attrs = append(attrs, slog.String(e.key, presence(e.value)))
		} else {
			attrs = append(attrs, slog.String(e.key, valOrUnset(e.value)))
		}
	}

	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
