package txidstore

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists records in a PostgreSQL table. Use it when several
// processes share one signing wallet and must not reuse each other's ids.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS transfer_ids (
    transaction_id TEXT PRIMARY KEY,
    sending_chain_id BIGINT NOT NULL,
    receiving_chain_id BIGINT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore connects to Postgres using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Get(ctx context.Context, txId common.Hash) (*Record, error) {
	row := p.pool.QueryRow(ctx, `
SELECT sending_chain_id, receiving_chain_id, status, created_at, updated_at
FROM transfer_ids
WHERE transaction_id = $1
`, txId.Hex())

	var rec Record
	if err := row.Scan(&rec.SendingChainId, &rec.ReceivingChainId, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (p *PostgresStore) Save(ctx context.Context, txId common.Hash, record Record) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO transfer_ids (transaction_id, sending_chain_id, receiving_chain_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (transaction_id) DO UPDATE
SET status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at
`, txId.Hex(), record.SendingChainId, record.ReceivingChainId, record.Status, record.CreatedAt, record.UpdatedAt)
	return err
}
