package config

import "time"

// DefaultExtensions is the allow-list applied to directory roots when none is configured.
var DefaultExtensions = []string{".md", ".markdown", ".txt", ".rst", ".pdf", ".docx", ".xlsx", ".pptx", ".odt", ".odp", ".ods"}

// Chunk size defaults applied when the settings are absent.
const (
	DefaultChunkOverlap  = 200
	DefaultChunkMinChars = 100
)

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".ragcore/catalog.db"
	}

	if cfg.RAG.Enabled == nil {
		t := true
		cfg.RAG.Enabled = &t
	}
	if cfg.RAG.Extensions == nil {
		cfg.RAG.Extensions = append([]string(nil), DefaultExtensions...)
	}
	c := &cfg.RAG.Chunk
	if c.MaxChars == 0 {
		c.MaxChars = 1000
	}
	if c.Overlap == nil {
		c.Overlap = Int(DefaultChunkOverlap)
	}
	if c.MinChars == nil {
		c.MinChars = Int(DefaultChunkMinChars)
	}
	if c.Strategy == "" {
		c.Strategy = "fixed"
	}
	r := &cfg.RAG.Retrieval
	if r.TopK == 0 {
		r.TopK = 5
	}
	if r.MaxTopK == 0 {
		r.MaxTopK = 100
	}
	if r.Mode == "" {
		r.Mode = "auto"
	}
	if r.Scorer == "" {
		r.Scorer = "overlap"
	}
	if r.KeywordWeight == 0 && r.SemanticWeight == 0 {
		r.KeywordWeight = 0.5
		r.SemanticWeight = 0.5
	}

	e := &cfg.Embedding
	if e.Model == "" {
		e.Model = "all-MiniLM-L6-v2"
	}
	if e.BatchSize == 0 {
		e.BatchSize = 32
	}
	if e.CacheSize == 0 {
		e.CacheSize = 1000
	}
	if e.Concurrency == 0 {
		e.Concurrency = 2
	}
	w := &e.Worker
	if w.Command == "" {
		w.Command = "ragcore-worker"
	}
	if w.RequestTimeout == 0 {
		w.RequestTimeout = 30 * time.Second
	}
	if w.StartupProbeInterval == 0 {
		w.StartupProbeInterval = time.Second
	}
	if w.StartupTimeout == 0 {
		w.StartupTimeout = 10 * time.Second
	}
	if w.ShutdownGrace == 0 {
		w.ShutdownGrace = 2 * time.Second
	}
	if w.MaxStartFailures == 0 {
		w.MaxStartFailures = 3
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.Enabled && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
