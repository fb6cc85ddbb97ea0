package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements driven.VectorIndex on a pgvector column.
// Score is cosine similarity, 1 - cosine distance.
type VectorIndex struct {
	db *DB
}

// NewVectorIndex creates a new VectorIndex
func NewVectorIndex(db *DB) *VectorIndex {
	return &VectorIndex{db: db}
}

// Upsert writes chunks in one transaction. Chunks without an ID get one.
func (v *VectorIndex) Upsert(ctx context.Context, collection string, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %d has no embedding", domain.ErrInvalidInput, i)
		}
	}

	return v.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO rag_chunks (id, collection, session_id, filename, source, page_number, chunk_id, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range chunks {
			id := c.ID
			if id == "" {
				id = uuid.NewString()
				c.ID = id
			}
			if _, err := stmt.ExecContext(ctx,
				id,
				collection,
				c.Metadata.SessionID,
				c.Metadata.Filename,
				c.Metadata.Source,
				c.Metadata.PageNumber,
				c.Metadata.ChunkID,
				c.Content,
				pgvector.NewVector(c.Embedding),
				c.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to upsert chunk %s: %w", id, err)
			}
		}
		return nil
	})
}

// Search returns the K nearest chunks of the filter's session whose score
// reaches the threshold, best first.
func (v *VectorIndex) Search(ctx context.Context, req domain.SearchRequest) ([]domain.Match, error) {
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrInvalidInput)
	}

	rows, err := v.db.QueryContext(ctx, `
		SELECT id, content, filename, session_id, source, page_number, chunk_id,
			1 - (embedding <=> $1) AS score
		FROM rag_chunks
		WHERE collection = $2
			AND session_id = $3
			AND ($4::text = '' OR filename = $4::text)
			AND 1 - (embedding <=> $1) >= $5
		ORDER BY embedding <=> $1
		LIMIT $6
	`,
		pgvector.NewVector(req.Vector),
		req.Collection,
		req.Filter.SessionID,
		req.Filter.Filename,
		req.ScoreThreshold,
		req.K,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	matches := make([]domain.Match, 0, req.K)
	for rows.Next() {
		var m domain.Match
		if err := rows.Scan(
			&m.ChunkID,
			&m.Content,
			&m.Metadata.Filename,
			&m.Metadata.SessionID,
			&m.Metadata.Source,
			&m.Metadata.PageNumber,
			&m.Metadata.ChunkID,
			&m.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteCollection removes every chunk of collection
func (v *VectorIndex) DeleteCollection(ctx context.Context, collection string) error {
	_, err := v.db.ExecContext(ctx, `DELETE FROM rag_chunks WHERE collection = $1`, collection)
	return err
}

// DeleteBySession removes a session's chunks and returns how many were deleted
func (v *VectorIndex) DeleteBySession(ctx context.Context, collection, sessionID string) (int, error) {
	res, err := v.db.ExecContext(ctx,
		`DELETE FROM rag_chunks WHERE collection = $1 AND session_id = $2`,
		collection, sessionID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// HealthCheck verifies the database answers
func (v *VectorIndex) HealthCheck(ctx context.Context) error {
	return v.db.Ping(ctx)
}
