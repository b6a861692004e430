// Package store persists segmented documents and their embeddings in
// PostgreSQL and answers nearest-neighbor retrieval queries over them
// using pgvector.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/docentdev/docent/internal/segment"
)

// Timeouts for the external calls a single operation makes.
const (
	// embedTimeout bounds one embedding request.
	embedTimeout = 30 * time.Second

	// searchTimeout bounds the vector search query so a degraded index
	// cannot block a conversation turn indefinitely.
	searchTimeout = 10 * time.Second
)

// Sentinel errors for store operations.
var (
	// ErrOperation indicates a database failure during Init, Ingest,
	// Retrieve or Count.
	ErrOperation = errors.New("store operation failed")

	// ErrEmbedding indicates the embedding service failed or returned an
	// unusable response.
	ErrEmbedding = errors.New("embedding failed")
)

// DB is the database surface Store consumes, satisfied by *pgxpool.Pool.
// Every operation borrows a pooled connection for exactly its own
// duration; nothing is held across calls.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Config contains all required parameters for the Store.
type Config struct {
	DB       DB
	Splitter *segment.Splitter
	Embedder ai.Embedder
	Logger   *slog.Logger // nil = slog.Default()

	// Schema declares the chunk table; exactly one text column and one
	// vector column whose width matches Dimension.
	Schema Schema

	// Dimension is the embedding width requested from the embedder and
	// enforced on every vector before it is written or searched.
	Dimension int32

	// TopK is how many chunks Retrieve returns at most.
	TopK int

	// RecreateOnInit makes Init drop the table before creating it, so
	// every run starts from an empty corpus.
	RecreateOnInit bool

	// Limiter paces embedding requests during ingestion (nil = default).
	Limiter *rate.Limiter
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	if cfg.Splitter == nil {
		return errors.New("splitter is required")
	}
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Dimension < 1 {
		return fmt.Errorf("dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.TopK < 1 {
		return fmt.Errorf("top k must be positive, got %d", cfg.TopK)
	}
	return nil
}

// Store writes segmented documents to the chunk table and retrieves the
// stored chunks nearest to a query. It owns no connections itself; all
// database access goes through the injected DB, which bounds and reuses
// connections.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       DB
	splitter *segment.Splitter
	embedder ai.Embedder
	limiter  *rate.Limiter
	logger   *slog.Logger

	info      tableInfo
	dimension int32
	topK      int
	recreate  bool
}

// New creates a Store. The schema is validated here, once, so that a
// bad column type or a width mismatch fails at startup instead of in
// the middle of an ingest.
func New(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	info, err := resolveSchema(cfg.Schema, cfg.Dimension)
	if err != nil {
		return nil, fmt.Errorf("resolving schema: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Default: 10 embedding requests/sec sustained, burst of 30.
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	return &Store{
		db:        cfg.DB,
		splitter:  cfg.Splitter,
		embedder:  cfg.Embedder,
		limiter:   limiter,
		logger:    logger,
		info:      info,
		dimension: cfg.Dimension,
		topK:      cfg.TopK,
		recreate:  cfg.RecreateOnInit,
	}, nil
}

// Init makes the chunk table ready for use: it enables the pgvector
// extension and creates the table if it is absent. With RecreateOnInit
// set, the table is dropped first and every run starts from an empty
// corpus. Init is idempotent in both modes.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return s.opError("enabling vector extension", err)
	}
	if s.recreate {
		if _, err := s.db.Exec(ctx, s.info.dropTableSQL()); err != nil {
			return s.opError("dropping chunk table", err)
		}
	}
	if _, err := s.db.Exec(ctx, s.info.createTableSQL()); err != nil {
		return s.opError("creating chunk table", err)
	}

	s.logger.Debug("chunk table ready", "table", s.info.table, "recreated", s.recreate)
	return nil
}

// Ingest splits text into chunks, embeds each chunk and writes all
// (chunk, vector) pairs in a single transaction. The batch is
// all-or-nothing: any failure leaves the table untouched. Returns the
// number of chunks written; blank input writes nothing and is not an
// error.
func (s *Store) Ingest(ctx context.Context, text string) (int, error) {
	chunks, err := s.splitter.Split(text)
	if err != nil {
		return 0, fmt.Errorf("segmenting document: %w", err)
	}
	if len(chunks) == 0 {
		s.logger.Debug("nothing to ingest")
		return 0, nil
	}

	// Embed everything before touching the database so a mid-batch
	// embedding failure cannot leave a partial corpus behind.
	vectors := make([]pgvector.Vector, len(chunks))
	for i, chunk := range chunks {
		vec, err := s.embed(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("embedding chunk %d of %d: %w", i+1, len(chunks), err)
		}
		vectors[i] = vec
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, s.opError("beginning ingest transaction", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("ingest rollback", "error", rbErr)
		}
	}()

	batch := &pgx.Batch{}
	insert := s.info.insertSQL()
	for i, chunk := range chunks {
		batch.Queue(insert, chunk, vectors[i])
	}

	results := tx.SendBatch(ctx, batch)
	for i := range chunks {
		if _, execErr := results.Exec(); execErr != nil {
			_ = results.Close()
			return 0, s.opError(fmt.Sprintf("inserting chunk %d of %d", i+1, len(chunks)), execErr)
		}
	}
	if err := results.Close(); err != nil {
		return 0, s.opError("closing insert batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, s.opError("committing ingest transaction", err)
	}

	s.logger.Debug("ingested document", "table", s.info.table, "chunks", len(chunks))
	return len(chunks), nil
}

// Retrieve embeds the query and returns up to TopK stored chunk texts
// ranked by ascending vector distance. An empty table yields an empty
// result, not an error.
func (s *Store) Retrieve(ctx context.Context, query string) ([]string, error) {
	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	rows, err := s.db.Query(searchCtx, s.info.retrieveSQL(), vec, s.topK)
	if err != nil {
		return nil, s.opError("searching chunks", err)
	}
	defer rows.Close()

	var chunks []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, s.opError("scanning chunk", err)
		}
		chunks = append(chunks, text)
	}
	if err := rows.Err(); err != nil {
		return nil, s.opError("iterating chunks", err)
	}

	s.logger.Debug("retrieved chunks", "table", s.info.table, "count", len(chunks))
	return chunks, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.QueryRow(ctx, s.info.countSQL()).Scan(&count); err != nil {
		return 0, s.opError("counting chunks", err)
	}

	// Overflow protection for 32-bit systems.
	if count > math.MaxInt {
		return 0, fmt.Errorf("%w: chunk count %d exceeds platform int capacity", ErrOperation, count)
	}
	return int(count), nil
}

// embed generates a vector embedding for the given text, pacing requests
// through the rate limiter and enforcing the configured dimension.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return pgvector.Vector{}, fmt.Errorf("%w: waiting for rate limiter: %w", ErrEmbedding, err)
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	dim := s.dimension
	resp, err := s.embedder.Embed(embedCtx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("%w: empty embedding response", ErrEmbedding)
	}

	vec := resp.Embeddings[0].Embedding
	if int32(len(vec)) != s.dimension {
		return pgvector.Vector{}, fmt.Errorf("%w: embedding has %d dimensions, table expects %d", ErrOperation, len(vec), s.dimension)
	}
	return pgvector.NewVector(vec), nil
}

// opError logs a failed database operation with its context and wraps it
// under ErrOperation for the caller.
func (s *Store) opError(op string, err error) error {
	s.logger.Error("store operation failed", "op", op, "table", s.info.table, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrOperation, op, err)
}
