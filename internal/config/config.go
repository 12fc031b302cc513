package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"docrag/internal/domain"
	"docrag/internal/source"
	"docrag/internal/vectorstore"
)

// EnvPrefix prefixes every environment override, e.g. DOCRAG_CHUNKER_CHUNK_SIZE.
const EnvPrefix = "DOCRAG_"

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string  `yaml:"base_url" env:"BASE_URL"`
	APIKeyEnv   string  `yaml:"api_key_env" env:"API_KEY_ENV"`
	Model       string  `yaml:"model" env:"MODEL"`
	Dimension   int     `yaml:"dimension" env:"DIMENSION"`
	TimeoutSecs int     `yaml:"timeout_secs" env:"TIMEOUT_SECS"`
	BatchSize   int     `yaml:"batch_size" env:"BATCH_SIZE"`
	Concurrency int     `yaml:"concurrency" env:"CONCURRENCY"`
	RateLimit   float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
}

// OllamaEmbedderConfig holds configuration for the Ollama embedder.
type OllamaEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" env:"BASE_URL"`
	Model       string `yaml:"model" env:"MODEL"`
	Dimension   int    `yaml:"dimension" env:"DIMENSION"`
	Concurrency int    `yaml:"concurrency" env:"CONCURRENCY"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string               `yaml:"type" env:"TYPE"`
	Dimension int                  `yaml:"dimension" env:"DIMENSION"`
	OpenAI    OpenAIEmbedderConfig `yaml:"openai" envPrefix:"OPENAI_"`
	Ollama    OllamaEmbedderConfig `yaml:"ollama" envPrefix:"OLLAMA_"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type" env:"TYPE"`
	ChunkSize         int    `yaml:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap      int    `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk" env:"SENTENCES_PER_CHUNK"`
	OverlapSentences  int    `yaml:"overlap_sentences" env:"OVERLAP_SENTENCES"`
}

// IndexConfig configures the vector index and where its snapshot lives.
type IndexConfig struct {
	Path               string `yaml:"path" env:"PATH"`
	Metric             string `yaml:"metric" env:"METRIC"`
	DisallowEmptyBatch bool   `yaml:"disallow_empty_batch" env:"DISALLOW_EMPTY_BATCH"`
}

// ChatConfig configures the chat-completions generator.
type ChatConfig struct {
	BaseURL        string  `yaml:"base_url" env:"BASE_URL"`
	APIKeyEnv      string  `yaml:"api_key_env" env:"API_KEY_ENV"`
	Model          string  `yaml:"model" env:"MODEL"`
	TimeoutSecs    int     `yaml:"timeout_secs" env:"TIMEOUT_SECS"`
	MaxTokens      int     `yaml:"max_tokens" env:"MAX_TOKENS"`
	Temperature    float32 `yaml:"temperature" env:"TEMPERATURE"`
	MaxPromptChars int     `yaml:"max_prompt_chars" env:"MAX_PROMPT_CHARS"`
}

// SummarizerConfig selects and configures the answer generator.
type SummarizerConfig struct {
	Type         string     `yaml:"type" env:"TYPE"`
	MaxSentences int        `yaml:"max_sentences" env:"MAX_SENTENCES"`
	OpenAI       ChatConfig `yaml:"openai" envPrefix:"OPENAI_"`
}

// RetrievalConfig holds query-time defaults.
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k" env:"TOP_K"`
	MinScore float64 `yaml:"min_score" env:"MIN_SCORE"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig configures the metrics textfile dump.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	Textfile  string `yaml:"textfile" env:"TEXTFILE"`
}

// WatchConfig configures directory watch mode.
type WatchConfig struct {
	DebounceMillis int `yaml:"debounce_millis" env:"DEBOUNCE_MILLIS"`
}

// SourceConfig configures how directories are walked for documents.
type SourceConfig struct {
	Pattern string `yaml:"pattern" env:"PATTERN"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder   EmbedderConfig   `yaml:"embedder" envPrefix:"EMBEDDER_"`
	Chunker    ChunkerConfig    `yaml:"chunker" envPrefix:"CHUNKER_"`
	Index      IndexConfig      `yaml:"index" envPrefix:"INDEX_"`
	Summarizer SummarizerConfig `yaml:"summarizer" envPrefix:"SUMMARIZER_"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" envPrefix:"RETRIEVAL_"`
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
	Metrics    MetricsConfig    `yaml:"metrics" envPrefix:"METRICS_"`
	Watch      WatchConfig      `yaml:"watch" envPrefix:"WATCH_"`
	Source     SourceConfig     `yaml:"source" envPrefix:"SOURCE_"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment variables with EnvPrefix override file values.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = *defaultConfig()
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("%w: environment: %v", domain.ErrConfiguration, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/docrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err != nil {
		if err := Save(userPath, defaultConfig()); err != nil {
			return nil, "", err
		}
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports every invalid setting at once, wrapped in ErrConfiguration.
func (c *AppConfig) Validate() error {
	var problems []error
	switch c.Chunker.Type {
	case "recursive":
		if c.Chunker.ChunkSize <= 0 || c.Chunker.ChunkOverlap <= 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
			problems = append(problems, fmt.Errorf("chunker: need 0 < chunk_overlap (%d) < chunk_size (%d)", c.Chunker.ChunkOverlap, c.Chunker.ChunkSize))
		}
	case "sentence":
		if c.Chunker.SentencesPerChunk <= 0 || c.Chunker.OverlapSentences < 0 {
			problems = append(problems, errors.New("chunker: sentences_per_chunk must be positive"))
		}
	default:
		problems = append(problems, fmt.Errorf("chunker: unknown type %q", c.Chunker.Type))
	}
	switch c.Embedder.Type {
	case "hashing", "openai":
	case "ollama":
		if c.Embedder.Ollama.Dimension <= 0 {
			problems = append(problems, errors.New("embedder: ollama.dimension must be set"))
		}
	default:
		problems = append(problems, fmt.Errorf("embedder: unknown type %q", c.Embedder.Type))
	}
	if _, err := vectorstore.ParseMetric(c.Index.Metric); err != nil {
		problems = append(problems, fmt.Errorf("index: %v", err))
	}
	if c.Index.Path == "" {
		problems = append(problems, errors.New("index: path must be set"))
	}
	switch c.Summarizer.Type {
	case "frequency", "openai":
	default:
		problems = append(problems, fmt.Errorf("summarizer: unknown type %q", c.Summarizer.Type))
	}
	if !doublestar.ValidatePattern(c.Source.Pattern) {
		problems = append(problems, fmt.Errorf("source: invalid pattern %q", c.Source.Pattern))
	}
	if c.Retrieval.TopK <= 0 {
		problems = append(problems, errors.New("retrieval: top_k must be positive"))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(problems...))
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:   EmbedderConfig{Type: "hashing", Dimension: 384},
		Chunker:    ChunkerConfig{Type: "recursive", ChunkSize: 1000, ChunkOverlap: 200},
		Index:      IndexConfig{Path: filepath.Join("data", "index.gob"), Metric: string(vectorstore.Cosine)},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Retrieval:  RetrievalConfig{TopK: 3},
		Log:        LogConfig{Level: "info", Format: "text"},
		Watch:      WatchConfig{DebounceMillis: 500},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "recursive"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.ChunkOverlap == 0 {
		cfg.Chunker.ChunkOverlap = 200
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = filepath.Join("data", "index.gob")
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = string(vectorstore.Cosine)
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Watch.DebounceMillis == 0 {
		cfg.Watch.DebounceMillis = 500
	}
	if cfg.Source.Pattern == "" {
		cfg.Source.Pattern = source.DefaultPattern
	}

	oa := &cfg.Embedder.OpenAI
	if oa.BaseURL == "" {
		oa.BaseURL = "https://api.openai.com/v1"
	}
	if oa.APIKeyEnv == "" {
		oa.APIKeyEnv = "OPENAI_API_KEY"
	}
	if oa.Model == "" {
		oa.Model = "text-embedding-3-small"
	}
	if oa.TimeoutSecs == 0 {
		oa.TimeoutSecs = 30
	}
	if oa.BatchSize == 0 {
		oa.BatchSize = 32
	}
	if oa.Concurrency == 0 {
		oa.Concurrency = 4
	}

	ol := &cfg.Embedder.Ollama
	if ol.BaseURL == "" {
		ol.BaseURL = "http://localhost:11434/api"
	}
	if ol.Model == "" {
		ol.Model = "nomic-embed-text"
	}
	if ol.Concurrency == 0 {
		ol.Concurrency = 4
	}

	chat := &cfg.Summarizer.OpenAI
	if chat.BaseURL == "" {
		chat.BaseURL = "https://api.openai.com/v1"
	}
	if chat.APIKeyEnv == "" {
		chat.APIKeyEnv = "OPENAI_API_KEY"
	}
	if chat.Model == "" {
		chat.Model = "gpt-4o-mini"
	}
	if chat.TimeoutSecs == 0 {
		chat.TimeoutSecs = 60
	}
	if chat.MaxPromptChars == 0 {
		chat.MaxPromptChars = 12000
	}
}
