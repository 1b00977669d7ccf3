package embed

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderAuto probes Ollama and falls back to static embeddings.
	ProviderAuto ProviderType = "auto"

	// ProviderOllama uses the Ollama API for embeddings.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (no external service).
	ProviderStatic ProviderType = "static"
)

// FactoryConfig carries the embedding settings resolved from config.
type FactoryConfig struct {
	Provider  ProviderType
	Model     string
	Host      string
	BatchSize int
	Timeout   time.Duration
}

// NewEmbedder creates an embedder for the configured provider.
//
// With ProviderAuto the factory probes Ollama and silently falls back
// to the static embedder when the server is unreachable. An explicit
// ProviderOllama never falls back: if the user asked for Ollama they
// get an error they can act on, not degraded vectors.
//
// The AKI_EMBEDDER environment variable overrides the provider. Query
// embedding caching is enabled unless AKI_EMBED_CACHE disables it.
func NewEmbedder(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	provider := cfg.Provider
	if env := os.Getenv("AKI_EMBEDDER"); env != "" {
		provider = ParseProvider(env)
	}
	if provider == "" {
		provider = ProviderAuto
	}

	var embedder Embedder
	var err error

	switch provider {
	case ProviderOllama:
		embedder, err = newOllama(ctx, cfg)
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	default:
		embedder, err = newOllama(ctx, cfg)
		if err != nil {
			slog.Warn("ollama_unavailable_using_static",
				slog.String("error", err.Error()))
			embedder, err = NewStaticEmbedder(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedder(embedder, DefaultEmbeddingCacheSize)
	}
	return embedder, nil
}

func newOllama(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	ollamaCfg := DefaultOllamaConfig()
	if cfg.Model != "" {
		ollamaCfg.Model = cfg.Model
	}
	if cfg.Host != "" {
		ollamaCfg.Host = cfg.Host
	}
	if cfg.BatchSize > 0 {
		ollamaCfg.BatchSize = cfg.BatchSize
	}
	if cfg.Timeout > 0 {
		ollamaCfg.Timeout = cfg.Timeout
	}

	if host := os.Getenv("AKI_OLLAMA_HOST"); host != "" {
		ollamaCfg.Host = host
	}
	if model := os.Getenv("AKI_EMBEDDINGS_MODEL"); model != "" {
		ollamaCfg.Model = model
	}
	if timeoutStr := os.Getenv("AKI_OLLAMA_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			ollamaCfg.Timeout = timeout
		}
	}

	return NewOllamaEmbedder(ctx, ollamaCfg)
}

// isCacheDisabled checks if the embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("AKI_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// ParseProvider converts a string to ProviderType. Unknown values map
// to auto.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "ollama":
		return ProviderOllama
	case "static":
		return ProviderStatic
	default:
		return ProviderAuto
	}
}

// String returns the string representation of ProviderType.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{
		string(ProviderAuto),
		string(ProviderOllama),
		string(ProviderStatic),
	}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo describes an embedder for status output.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo inspects an embedder, unwrapping the cache layer.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	default:
		info.Provider = ProviderStatic
	}
	return info
}
