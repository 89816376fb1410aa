package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"vestingSubmitter/internal/model"
)

// Store provides Postgres persistence for submission outcomes.
type Store struct {
	pool *pgxpool.Pool
	ctx  context.Context
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, ctx: ctx}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutOutcome inserts or updates one row's outcome, keyed on the source
// sequence number and transaction hash so reruns do not duplicate history.
func (s *Store) PutOutcome(record model.OutcomeRecord) error {
	_, err := s.pool.Exec(s.ctx, `
		INSERT INTO submission_outcomes (
			sequence, address, amount, tx_hash, kind, label, error, submitted_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (sequence, tx_hash)
		DO UPDATE SET
			kind = EXCLUDED.kind,
			label = EXCLUDED.label,
			error = EXCLUDED.error,
			submitted_at = EXCLUDED.submitted_at,
			updated_at = now()
	`,
		record.Sequence,
		record.Address,
		record.Amount,
		record.TxHash,
		record.Kind,
		record.Label,
		record.Error,
		record.SubmittedAt,
	)
	return err
}
