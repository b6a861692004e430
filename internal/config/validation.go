package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
)

// identifierPattern matches unquoted PostgreSQL identifiers. Lowercase only:
// unquoted identifiers fold to lowercase, so requiring it avoids quoting in
// generated SQL. PostgreSQL caps identifier length at 63 bytes.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidIdentifier reports whether s is safe to interpolate into generated SQL
// as a table or column name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// API key is required for every command that reaches the model boundary.
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// Model configuration
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// Sampling ranges follow the Gemini API limits.
	if c.Sampling.CandidateCount < 1 || c.Sampling.CandidateCount > 8 {
		return fmt.Errorf("%w: candidate_count must be between 1 and 8, got %d",
			ErrInvalidSampling, c.Sampling.CandidateCount)
	}
	if c.Sampling.MaxOutputTokens < 1 {
		return fmt.Errorf("%w: max_output_tokens must be positive, got %d",
			ErrInvalidSampling, c.Sampling.MaxOutputTokens)
	}
	if c.Sampling.Temperature < 0.0 || c.Sampling.Temperature > 2.0 {
		return fmt.Errorf("%w: temperature must be between 0.0 and 2.0, got %.2f",
			ErrInvalidSampling, c.Sampling.Temperature)
	}
	if c.Sampling.TopP < 0.0 || c.Sampling.TopP > 1.0 {
		return fmt.Errorf("%w: top_p must be between 0.0 and 1.0, got %.2f",
			ErrInvalidSampling, c.Sampling.TopP)
	}

	// Pipeline configuration
	if c.EmbeddingDimension < 1 || c.EmbeddingDimension > 4096 {
		return fmt.Errorf("%w: must be between 1 and 4096, got %d",
			ErrInvalidDimension, c.EmbeddingDimension)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d",
			ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be non-negative and smaller than chunk_size, got overlap=%d size=%d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}
	if c.RetrieveTopK < 1 || c.RetrieveTopK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d",
			ErrInvalidTopK, c.RetrieveTopK)
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d",
			ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set (config file, DOCENT_POSTGRES_PASSWORD, or DATABASE_URL)",
			ErrInvalidPostgresPassword)
	}

	// Modern SSL modes only; allow/prefer are excluded as MITM-vulnerable.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// Pool bounds: acquisition blocks when the pool is saturated, so the
	// bounds define the backpressure window.
	if c.PoolMinConns < 1 {
		return fmt.Errorf("%w: pool_min_conns must be at least 1, got %d",
			ErrInvalidPoolBounds, c.PoolMinConns)
	}
	if c.PoolMaxConns < c.PoolMinConns {
		return fmt.Errorf("%w: pool_max_conns (%d) must be >= pool_min_conns (%d)",
			ErrInvalidPoolBounds, c.PoolMaxConns, c.PoolMinConns)
	}

	// Table schema: identifier syntax is checked here; column types and the
	// text/vector shape are validated by the store before any SQL runs.
	if !ValidIdentifier(c.TableName) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidTableName, c.TableName, identifierPattern)
	}
	if len(c.SchemaColumns) == 0 {
		return fmt.Errorf("%w: schema_columns cannot be empty", ErrInvalidSchema)
	}
	seen := make(map[string]bool, len(c.SchemaColumns)+1)
	seen["id"] = true
	for _, col := range c.SchemaColumns {
		if !ValidIdentifier(col.Name) {
			return fmt.Errorf("%w: column name %q must match %s", ErrInvalidSchema, col.Name, identifierPattern)
		}
		if seen[col.Name] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidSchema, col.Name)
		}
		seen[col.Name] = true
		if col.Type == "" {
			return fmt.Errorf("%w: column %q has no type", ErrInvalidSchema, col.Name)
		}
	}

	return nil
}
