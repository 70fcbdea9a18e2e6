package embeddings

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/selivandex/superagent/pkg/logger"
)

// Repository persists embeddings keyed by text hash so identical summarized
// strategies never hit the embedding API twice
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new embedding repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the stored embedding for the hash, if any
func (r *Repository) Get(ctx context.Context, textHash string) ([]float32, bool) {
	var raw []float64
	err := r.db.QueryRowContext(ctx,
		`SELECT embedding FROM embeddings WHERE text_hash = $1`, textHash,
	).Scan(pq.Array(&raw))
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		logger.Warn("embedding lookup failed", zap.Error(err))
		return nil, false
	}

	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, true
}

// Set stores an embedding under the hash
func (r *Repository) Set(ctx context.Context, textHash string, embedding []float32, model string, textLength int) error {
	raw := make([]float64, len(embedding))
	for i, v := range embedding {
		raw[i] = float64(v)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO embeddings (text_hash, embedding, model, text_length)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (text_hash) DO NOTHING
	`, textHash, pq.Array(raw), model, textLength)
	return err
}
