// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.docent/config.yaml)
//  3. Default values
//
// Categories:
//   - Chat: model selection and sampling parameters
//   - Embedding: embedder model and vector dimensionality
//   - Pipeline: chunk size/overlap and retrieval depth
//   - Storage: PostgreSQL connection, pool bounds, table schema (see storage.go)
//
// Sensitive values (passwords) are never logged; Config masks them in
// MarshalJSON and String. Validation lives in validation.go and returns
// sentinel errors usable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the chat model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidDimension indicates the embedding dimensionality is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidTopK indicates the retrieval depth is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidSampling indicates a chat sampling parameter is out of range.
	ErrInvalidSampling = errors.New("invalid sampling parameter")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidPoolBounds indicates the connection pool bounds are inconsistent.
	ErrInvalidPoolBounds = errors.New("invalid pool bounds")

	// ErrInvalidTableName indicates the table name is not a safe SQL identifier.
	ErrInvalidTableName = errors.New("invalid table name")

	// ErrInvalidSchema indicates the configured column schema is unusable.
	ErrInvalidSchema = errors.New("invalid schema columns")
)

// DefaultEmbedderModel is the default Gemini embedder model. It is requested
// with OutputDimensionality so the produced vectors match the pgvector column
// width regardless of the model's native dimensionality.
const DefaultEmbedderModel = "text-embedding-004"

// Column is one (name, declared type) pair of the vector table schema, in
// column order. The id primary key is implicit and always present.
type Column struct {
	Name string `mapstructure:"name" json:"name"`
	Type string `mapstructure:"type" json:"type"`
}

// Sampling holds the chat model sampling parameters passed through to the
// model on every generate call.
type Sampling struct {
	CandidateCount  int32   `mapstructure:"candidate_count" json:"candidate_count"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens" json:"max_output_tokens"`
	Temperature     float32 `mapstructure:"temperature" json:"temperature"`
	TopP            float32 `mapstructure:"top_p" json:"top_p"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Chat model configuration
	ModelName string   `mapstructure:"model_name" json:"model_name"`
	Sampling  Sampling `mapstructure:"sampling" json:"sampling"`

	// Embedding configuration
	EmbedderModel      string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension" json:"embedding_dimension"`

	// Segmentation configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval configuration
	RetrieveTopK int `mapstructure:"retrieve_top_k" json:"retrieve_top_k"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	PoolMinConns int32 `mapstructure:"pool_min_conns" json:"pool_min_conns"`
	PoolMaxConns int32 `mapstructure:"pool_max_conns" json:"pool_max_conns"`

	TableName     string   `mapstructure:"table_name" json:"table_name"`
	SchemaColumns []Column `mapstructure:"schema_columns" json:"schema_columns"`

	// RecreateOnInit makes Init drop the table before creating it, so every
	// initialization starts from an empty corpus. Off by default: the table is
	// created only when absent and existing rows survive restarts.
	RecreateOnInit bool `mapstructure:"recreate_on_init" json:"recreate_on_init"`

	// Logging and observability
	LogLevel     string `mapstructure:"log_level" json:"log_level"`
	LogJSON      bool   `mapstructure:"log_json" json:"log_json"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".docent")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Chat defaults
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("sampling.candidate_count", 1)
	viper.SetDefault("sampling.max_output_tokens", 1024)
	viper.SetDefault("sampling.temperature", 0.9)
	viper.SetDefault("sampling.top_p", 1.0)

	// Embedding defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedding_dimension", 768)

	// Segmentation defaults
	viper.SetDefault("chunk_size", 300)
	viper.SetDefault("chunk_overlap", 20)

	// Retrieval defaults
	viper.SetDefault("retrieve_top_k", 5)

	// PostgreSQL defaults
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "docent")
	viper.SetDefault("postgres_db_name", "vectordb")
	viper.SetDefault("postgres_ssl_mode", "disable")
	viper.SetDefault("pool_min_conns", 1)
	viper.SetDefault("pool_max_conns", 10)

	// Table schema defaults: one text column plus one vector column whose
	// width matches embedding_dimension.
	viper.SetDefault("table_name", "documents")
	viper.SetDefault("schema_columns", []map[string]string{
		{"name": "text_chunk", "type": "varchar"},
		{"name": "embedding", "type": "vector(768)"},
	})
	viper.SetDefault("recreate_on_init", false)

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
	viper.SetDefault("otlp_endpoint", "")
}

// bindEnvVariables binds environment overrides explicitly.
//
// GEMINI_API_KEY is read directly by Genkit, not via Viper; Validate only
// checks its presence. DATABASE_URL is handled in parseDatabaseURL.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a programming error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "DOCENT_MODEL_NAME")
	mustBind("sampling.candidate_count", "DOCENT_CANDIDATE_COUNT")
	mustBind("sampling.max_output_tokens", "DOCENT_MAX_OUTPUT_TOKENS")
	mustBind("sampling.temperature", "DOCENT_TEMPERATURE")
	mustBind("sampling.top_p", "DOCENT_TOP_P")

	mustBind("embedder_model", "DOCENT_EMBEDDER_MODEL")
	mustBind("embedding_dimension", "DOCENT_EMBEDDING_DIMENSION")
	mustBind("chunk_size", "DOCENT_CHUNK_SIZE")
	mustBind("chunk_overlap", "DOCENT_CHUNK_OVERLAP")
	mustBind("retrieve_top_k", "DOCENT_RETRIEVE_TOP_K")

	mustBind("postgres_host", "DOCENT_POSTGRES_HOST")
	mustBind("postgres_port", "DOCENT_POSTGRES_PORT")
	mustBind("postgres_user", "DOCENT_POSTGRES_USER")
	mustBind("postgres_password", "DOCENT_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "DOCENT_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "DOCENT_POSTGRES_SSL_MODE")
	mustBind("pool_min_conns", "DOCENT_POOL_MIN_CONNS")
	mustBind("pool_max_conns", "DOCENT_POOL_MAX_CONNS")
	mustBind("table_name", "DOCENT_TABLE_NAME")
	mustBind("recreate_on_init", "DOCENT_RECREATE_ON_INIT")

	mustBind("log_level", "DOCENT_LOG_LEVEL")
	mustBind("log_json", "DOCENT_LOG_JSON")
	mustBind("otlp_endpoint", "DOCENT_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data. Full-width blocks
// avoid accidental substring matches against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of eight
// characters or fewer are fully masked; longer ones keep the first and last
// two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.5-flash". A name that already carries a provider
// prefix is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return "googleai/" + c.ModelName
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
