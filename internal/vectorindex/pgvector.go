package vectorindex

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGVectorIndex stores every tenant collection in one Postgres table,
// partitioned by a collection column. Scores are 1 - cosine distance.
type PGVectorIndex struct {
	pool  *pgxpool.Pool
	table string
	dim   int

	schemaMu    sync.Mutex
	schemaReady bool
}

func NewPGVectorIndex(ctx context.Context, dsn, table string, dim int) (*PGVectorIndex, error) {
	if table == "" {
		table = "vector_points"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid pgvector table name %q", table)
	}
	if dim <= 0 {
		dim = DefaultDimension
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect pgvector failed: %w", err)
	}
	return &PGVectorIndex{pool: pool, table: table, dim: dim}, nil
}

func (p *PGVectorIndex) ensureSchema(ctx context.Context) error {
	p.schemaMu.Lock()
	defer p.schemaMu.Unlock()
	if p.schemaReady {
		return nil
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	collection TEXT NOT NULL,
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	text TEXT NOT NULL,
	embedding VECTOR(%d) NOT NULL
)`, p.table, p.dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_collection_document_idx ON %s (collection, document_id)`, p.table, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector ensure schema failed: %w", err)
		}
	}
	p.schemaReady = true
	return nil
}

// EnsureCollection only needs the shared table; collections are rows.
func (p *PGVectorIndex) EnsureCollection(ctx context.Context, c Collection) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	return p.ensureSchema(ctx)
}

func (p *PGVectorIndex) Upsert(ctx context.Context, c Collection, documentID string, chunks []string, embeddings [][]float32) error {
	if err := checkUpsert(c, chunks, embeddings, p.dim); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := p.EnsureCollection(ctx, c); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, collection, document_id, chunk_index, text, embedding)
VALUES ($1, $2, $3, $4, $5, $6)`, p.table)

	batch := &pgx.Batch{}
	for i := range chunks {
		batch.Queue(query, uuid.NewString(), c.Name(), documentID, i, chunks[i], pgvector.NewVector(embeddings[i]))
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvector upsert failed: %w", err)
	}
	return nil
}

func (p *PGVectorIndex) Search(ctx context.Context, c Collection, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}

	sql, args := searchQuery(p.table, c, query, opts)
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search failed: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0, topK(opts))
	for rows.Next() {
		var (
			r     SearchResult
			score float64
		)
		if err := rows.Scan(&score, &r.DocumentID, &r.ChunkIndex, &r.Text); err != nil {
			return nil, fmt.Errorf("pgvector scan failed: %w", err)
		}
		r.Score = float32(score)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector rows failed: %w", err)
	}
	return results, nil
}

// searchQuery builds the nearest-neighbour statement for one collection,
// narrowed to opts.DocumentIDs when set.
func searchQuery(table string, c Collection, query []float32, opts SearchOptions) (string, []any) {
	args := []any{pgvector.NewVector(query), c.Name(), topK(opts)}
	filter := ""
	if len(opts.DocumentIDs) > 0 {
		filter = " AND document_id = ANY($4)"
		args = append(args, opts.DocumentIDs)
	}
	sql := fmt.Sprintf(`SELECT 1 - (embedding <=> $1) AS score, document_id, chunk_index, text
FROM %s
WHERE collection = $2%s
ORDER BY embedding <=> $1
LIMIT $3`, table, filter)
	return sql, args
}

func (p *PGVectorIndex) DeleteByDocument(ctx context.Context, c Collection, documentID string) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	sql := fmt.Sprintf(`DELETE FROM %s WHERE collection = $1 AND document_id = $2`, p.table)
	if _, err := p.pool.Exec(ctx, sql, c.Name(), documentID); err != nil {
		return fmt.Errorf("pgvector delete by document failed: %w", err)
	}
	return nil
}

// DeleteCollection removes every row of the collection. Errors are swallowed.
func (p *PGVectorIndex) DeleteCollection(ctx context.Context, c Collection) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE collection = $1`, p.table)
	_, _ = p.pool.Exec(ctx, sql, c.Name())
	return nil
}

func (p *PGVectorIndex) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping pgvector failed: %w", err)
	}
	return nil
}

func (p *PGVectorIndex) Close() error {
	p.pool.Close()
	return nil
}
