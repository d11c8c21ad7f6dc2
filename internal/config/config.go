// Package config provides configuration loading and structs for the ragcore service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvDebug            = "RAGCORE_DEBUG"
	EnvEmbeddingEnabled = "RAGCORE_EMBEDDING_ENABLED"
	EnvEmbeddingModel   = "RAGCORE_EMBEDDING_MODEL"
	EnvWorkerCommand    = "RAGCORE_WORKER_COMMAND"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	RAG       RAGConfig       `yaml:"rag"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the document catalog location. An empty path disables
// the catalog.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// RAGConfig holds corpus and retrieval settings.
type RAGConfig struct {
	Enabled    *bool           `yaml:"enabled"`
	Paths      []string        `yaml:"paths"`
	Extensions []string        `yaml:"extensions"`
	Chunk      ChunkConfig     `yaml:"chunk"`
	Retrieval  RetrievalConfig `yaml:"retrieval"`
}

// EnabledOrDefault returns whether retrieval is enabled; defaults to true when unset.
func (r *RAGConfig) EnabledOrDefault() bool {
	if r.Enabled != nil {
		return *r.Enabled
	}
	return true
}

// ChunkConfig holds chunking settings. Sizes are in characters. Overlap and
// MinChars are pointers so an explicit 0 survives ApplyDefaults.
type ChunkConfig struct {
	MaxChars         int    `yaml:"max_chars"`
	Overlap          *int   `yaml:"overlap,omitempty"`
	MinChars         *int   `yaml:"min_chars,omitempty"`
	Strategy         string `yaml:"strategy"`
	RespectStructure bool   `yaml:"respect_structure"`
}

// Int returns a pointer to v, for the optional integer settings.
func Int(v int) *int { return &v }

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

// OverlapOrDefault returns the configured overlap, or the default when unset.
func (c ChunkConfig) OverlapOrDefault() int { return intOr(c.Overlap, DefaultChunkOverlap) }

// MinCharsOrDefault returns the configured minimum chunk size, or the default when unset.
func (c ChunkConfig) MinCharsOrDefault() int { return intOr(c.MinChars, DefaultChunkMinChars) }

// RetrievalConfig holds search settings.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	MaxTopK        int     `yaml:"max_top_k"`
	MinScore       float64 `yaml:"min_score"`
	Mode           string  `yaml:"mode"`
	Scorer         string  `yaml:"scorer"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	// Dimensions of the model's vectors; 0 learns them from the first response.
	Dimensions  int          `yaml:"dimensions"`
	BatchSize   int          `yaml:"batch_size"`
	CacheSize   int          `yaml:"cache_size"`
	Concurrency int          `yaml:"concurrency"`
	Worker      WorkerConfig `yaml:"worker"`
}

// WorkerConfig holds embedding worker process settings. Durations accept Go
// duration strings such as "30s".
type WorkerConfig struct {
	Command              string        `yaml:"command"`
	Args                 []string      `yaml:"args"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	StartupProbeInterval time.Duration `yaml:"startup_probe_interval"`
	StartupTimeout       time.Duration `yaml:"startup_timeout"`
	ShutdownGrace        time.Duration `yaml:"shutdown_grace"`
	MaxStartFailures     int           `yaml:"max_start_failures"`
}

// WatchConfig holds live corpus update settings.
type WatchConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Debounce  time.Duration `yaml:"debounce"`
	Recursive *bool         `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, loads a .env file next to
// it, applies environment overrides and defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)

	if cfg.Storage.DatabasePath != "" {
		cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	}
	for i := range cfg.RAG.Paths {
		cfg.RAG.Paths[i] = expandPath(cfg.RAG.Paths[i], configDir)
	}
	if strings.HasPrefix(cfg.Embedding.Worker.Command, "./") {
		cfg.Embedding.Worker.Command = expandPath(cfg.Embedding.Worker.Command, configDir)
	}

	return &cfg, nil
}

// LoadDefault returns the default config with environment overrides applied,
// for running without a config file. Relative paths resolve against dir.
func LoadDefault(dir string) (*Config, error) {
	cfg := &Config{}
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, dir)
	return cfg, nil
}

// ApplyEnv applies RAGCORE_* environment overrides to cfg.
func ApplyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvDebug); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebug, err)
		}
		cfg.Debug = b
	}
	if v, ok := os.LookupEnv(EnvEmbeddingEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEmbeddingEnabled, err)
		}
		cfg.Embedding.Enabled = b
	}
	if v := os.Getenv(EnvEmbeddingModel); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv(EnvWorkerCommand); v != "" {
		cfg.Embedding.Worker.Command = v
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
