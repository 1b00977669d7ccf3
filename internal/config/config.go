// Package config loads aki configuration with layered precedence:
// hardcoded defaults, user config, project config, then AKI_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	akierrors "github.com/evanwmart/augmented-knowledge-interfaces/internal/errors"
)

// Config represents the complete aki configuration.
type Config struct {
	Version     int              `yaml:"version" json:"version"`
	Paths       PathsConfig      `yaml:"paths" json:"paths"`
	Chunking    ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search      SearchConfig     `yaml:"search" json:"search"`
	Embeddings  EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Performance PerfConfig       `yaml:"performance" json:"performance"`
	Logging     LoggingConfig    `yaml:"logging" json:"logging"`
}

// PathsConfig configures where documents live and where the index is kept.
type PathsConfig struct {
	// DocsDir is the documentation corpus root.
	DocsDir string `yaml:"docs_dir" json:"docs_dir"`
	// IndexDir holds the persisted indexes and state. Defaults to
	// <docs_dir>/.aki when empty.
	IndexDir string `yaml:"index_dir" json:"index_dir"`
}

// ChunkingConfig configures document chunking.
type ChunkingConfig struct {
	// MaxTokens is the chunk size upper bound in estimated tokens.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// OverlapTokens is how many trailing tokens each chunk repeats from its
	// predecessor. Must be smaller than MaxTokens.
	OverlapTokens int `yaml:"overlap_tokens" json:"overlap_tokens"`
}

// SearchConfig configures retrieval defaults.
type SearchConfig struct {
	// Strategy is the default retrieval strategy: auto, lexical, semantic,
	// or hybrid.
	Strategy string `yaml:"strategy" json:"strategy"`
	// Alpha is the hybrid fusion weight on the lexical score (0.0-1.0).
	// The semantic score gets 1-alpha.
	Alpha float64 `yaml:"alpha" json:"alpha"`
	// TopK is the default number of results to return.
	TopK int `yaml:"top_k" json:"top_k"`
}

// EmbeddingsConfig configures the embedding backend.
type EmbeddingsConfig struct {
	// Provider selects the backend: ollama, static, or empty for
	// auto-detection (ollama if reachable, otherwise static).
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model name for the ollama provider.
	Model string `yaml:"model" json:"model"`
	// BatchSize is texts per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// OllamaHost is the Ollama API endpoint. Empty uses the default
	// http://localhost:11434.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// Timeout bounds a single embedding request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Skip disables embedding generation entirely (lexical-only index).
	Skip bool `yaml:"skip" json:"skip"`
}

// PerfConfig configures performance tuning options.
type PerfConfig struct {
	// IndexWorkers bounds the parallel chunk+embed worker pool.
	IndexWorkers int `yaml:"index_workers" json:"index_workers"`
	// WatchDebounce is the quiet period before --watch triggers a rebuild.
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Default corpus and retrieval knobs.
const (
	DefaultMaxTokens     = 500
	DefaultOverlapTokens = 50
	DefaultTopK          = 5
	DefaultAlpha         = 0.5
)

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DocsDir: ".",
		},
		Chunking: ChunkingConfig{
			MaxTokens:     DefaultMaxTokens,
			OverlapTokens: DefaultOverlapTokens,
		},
		Search: SearchConfig{
			Strategy: "auto",
			Alpha:    DefaultAlpha,
			TopK:     DefaultTopK,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "",
			Model:     "nomic-embed-text",
			BatchSize: 32,
			Timeout:   30 * time.Second,
		},
		Performance: PerfConfig{
			IndexWorkers:  runtime.NumCPU(),
			WatchDebounce: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// UserConfigPath returns the user-level config path,
// honoring XDG_CONFIG_HOME.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "aki", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "aki", "config.yaml")
	}
	return filepath.Join(home, ".config", "aki", "config.yaml")
}

// Load loads configuration for the given project directory.
// Precedence, lowest to highest:
//  1. Hardcoded defaults
//  2. User config (~/.config/aki/config.yaml)
//  3. Project config (.aki.yaml in dir)
//  4. Environment variables (AKI_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := UserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	for _, name := range []string{".aki.yaml", ".aki.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return akierrors.Wrap(akierrors.ErrCodeInvalidConfig,
			fmt.Errorf("failed to parse config file %s: %w", path, err))
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Paths.DocsDir != "" {
		c.Paths.DocsDir = other.Paths.DocsDir
	}
	if other.Paths.IndexDir != "" {
		c.Paths.IndexDir = other.Paths.IndexDir
	}
	if other.Chunking.MaxTokens != 0 {
		c.Chunking.MaxTokens = other.Chunking.MaxTokens
	}
	if other.Chunking.OverlapTokens != 0 {
		c.Chunking.OverlapTokens = other.Chunking.OverlapTokens
	}
	if other.Search.Strategy != "" {
		c.Search.Strategy = other.Search.Strategy
	}
	if other.Search.Alpha != 0 {
		c.Search.Alpha = other.Search.Alpha
	}
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}
	if other.Embeddings.Skip {
		c.Embeddings.Skip = true
	}
	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.WatchDebounce != 0 {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
}

// applyEnvOverrides applies AKI_* environment variables, highest precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AKI_DOCS_DIR"); v != "" {
		c.Paths.DocsDir = v
	}
	if v := os.Getenv("AKI_INDEX_DIR"); v != "" {
		c.Paths.IndexDir = v
	}
	if v := os.Getenv("AKI_STRATEGY"); v != "" {
		c.Search.Strategy = v
	}
	if v := os.Getenv("AKI_ALPHA"); v != "" {
		if a, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Search.Alpha = a
		}
	}
	if v := os.Getenv("AKI_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			c.Search.TopK = k
		}
	}
	if v := os.Getenv("AKI_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.MaxTokens = n
		}
	}
	if v := os.Getenv("AKI_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.OverlapTokens = n
		}
	}
	if v := os.Getenv("AKI_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("AKI_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("AKI_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("AKI_SKIP_EMBEDDINGS"); v != "" {
		c.Embeddings.Skip = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("AKI_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// IndexDir resolves the effective index directory.
func (c *Config) IndexDir() string {
	if c.Paths.IndexDir != "" {
		return c.Paths.IndexDir
	}
	return filepath.Join(c.Paths.DocsDir, ".aki")
}

// Validate rejects malformed configuration before any indexing or
// retrieval work starts.
func (c *Config) Validate() error {
	if c.Chunking.MaxTokens <= 0 {
		return akierrors.Newf(akierrors.ErrCodeInvalidConfig,
			"chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens)
	}
	if c.Chunking.OverlapTokens < 0 || c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return akierrors.Newf(akierrors.ErrCodeInvalidConfig,
			"chunking.overlap_tokens must be in [0, max_tokens), got %d", c.Chunking.OverlapTokens)
	}
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return akierrors.Newf(akierrors.ErrCodeInvalidConfig,
			"search.alpha must be between 0 and 1, got %g", c.Search.Alpha)
	}
	if c.Search.TopK < 1 {
		return akierrors.Newf(akierrors.ErrCodeInvalidConfig,
			"search.top_k must be at least 1, got %d", c.Search.TopK)
	}
	switch strings.ToLower(c.Search.Strategy) {
	case "auto", "lexical", "semantic", "hybrid":
	default:
		return akierrors.Newf(akierrors.ErrCodeInvalidConfig,
			"search.strategy must be auto, lexical, semantic, or hybrid, got %q", c.Search.Strategy)
	}
	if c.Embeddings.Provider != "" {
		switch strings.ToLower(c.Embeddings.Provider) {
		case "ollama", "static":
		default:
			return akierrors.Newf(akierrors.ErrCodeInvalidConfig,
				"embeddings.provider must be 'ollama', 'static', or empty (auto-detect), got %q", c.Embeddings.Provider)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return akierrors.Newf(akierrors.ErrCodeInvalidConfig,
			"logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
