// Package config loads server configuration from a TOML file with
// environment overrides. A .env file, when present, is loaded first so
// local development does not need exported variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Storage backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Embedding provider names.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Objects   ObjectsConfig   `toml:"objects"`
	Embedding EmbeddingConfig `toml:"embedding"`
	LLM       LLMConfig       `toml:"llm"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Advisor   AdvisorConfig   `toml:"advisor"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `toml:"addr"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend string `toml:"backend"`

	// DataDir is the SQLite data directory.
	DataDir string `toml:"data_dir"`

	// PostgresURL is the connection string for the postgres backend.
	PostgresURL string `toml:"postgres_url"`
}

// ObjectsConfig configures the document object store.
type ObjectsConfig struct {
	// Dir is the root directory holding uploaded documents.
	Dir string `toml:"dir"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "gemini" or "ollama".
	Provider   string `toml:"provider"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
}

// LLMConfig configures the generation provider.
type LLMConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// RetrievalConfig tunes the two retrieval call sites.
type RetrievalConfig struct {
	ChatTopK           int     `toml:"chat_top_k"`
	ChatThreshold      float64 `toml:"chat_threshold"`
	HighlightTopK      int     `toml:"highlight_top_k"`
	HighlightThreshold float64 `toml:"highlight_threshold"`
}

// ChunkingConfig tunes the text splitter.
type ChunkingConfig struct {
	Size    int `toml:"size"`
	Overlap int `toml:"overlap"`
}

// AdvisorConfig configures the optional external advice service.
type AdvisorConfig struct {
	// URL enables the advisor when non-empty.
	URL string `toml:"url"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
		},
		Objects: ObjectsConfig{
			Dir: "data/objects",
		},
		Embedding: EmbeddingConfig{
			Provider: ProviderGemini,
		},
		Retrieval: RetrievalConfig{
			ChatTopK:           10,
			ChatThreshold:      0.40,
			HighlightTopK:      4,
			HighlightThreshold: 0.65,
		},
		Chunking: ChunkingConfig{
			Size:    800,
			Overlap: 150,
		},
	}
}

// Load reads configuration from the TOML file at path, then applies
// environment overrides. An empty path or a missing file uses defaults.
func Load(path string) (Config, error) {
	// Best effort; a missing .env file is the common case.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides file values with FORMSAGE_* environment variables.
// Secrets are expected to arrive this way rather than in the file.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "FORMSAGE_ADDR")
	setString(&cfg.Storage.Backend, "FORMSAGE_STORAGE_BACKEND")
	setString(&cfg.Storage.DataDir, "FORMSAGE_DATA_DIR")
	setString(&cfg.Storage.PostgresURL, "FORMSAGE_POSTGRES_URL")
	setString(&cfg.Objects.Dir, "FORMSAGE_OBJECTS_DIR")
	setString(&cfg.Embedding.Provider, "FORMSAGE_EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.APIKey, "FORMSAGE_EMBEDDING_API_KEY")
	setString(&cfg.Embedding.BaseURL, "FORMSAGE_EMBEDDING_BASE_URL")
	setString(&cfg.Embedding.Model, "FORMSAGE_EMBEDDING_MODEL")
	setInt(&cfg.Embedding.Dimensions, "FORMSAGE_EMBEDDING_DIMENSIONS")
	setString(&cfg.LLM.APIKey, "FORMSAGE_LLM_API_KEY")
	setString(&cfg.LLM.BaseURL, "FORMSAGE_LLM_BASE_URL")
	setString(&cfg.LLM.Model, "FORMSAGE_LLM_MODEL")
	setString(&cfg.Advisor.URL, "FORMSAGE_ADVISOR_URL")

	// GEMINI_API_KEY covers both providers when the dedicated keys are
	// not set.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = key
		}
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = key
		}
	}
}

// validate rejects configurations the composition root cannot act on.
func validate(cfg Config) error {
	switch cfg.Storage.Backend {
	case BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == BackendPostgres && cfg.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres backend needs FORMSAGE_POSTGRES_URL or storage.postgres_url")
	}
	switch cfg.Embedding.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
