package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/vaultgate/pkg/models"
)

// PostgresBackend stores the credential blob in a single-row settings table.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pgxpool connection and returns a ready backend.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) Close() {
	p.pool.Close()
}

// LoadCredentials returns the stored credential list, or an empty list when
// nothing has been saved yet. JSON keeps array order, so rule priority
// survives the round trip.
func (p *PostgresBackend) LoadCredentials(ctx context.Context) ([]*models.Credential, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT credentials FROM vaultgate_settings WHERE id = 1`,
	)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	var creds []*models.Credential
	if err := json.Unmarshal(blob, &creds); err != nil {
		return nil, fmt.Errorf("decoding settings blob: %w", err)
	}
	return creds, nil
}

// SaveCredentials upserts the full credential list as one JSONB blob.
func (p *PostgresBackend) SaveCredentials(ctx context.Context, creds []*models.Credential) error {
	blob, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encoding settings blob: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO vaultgate_settings (id, credentials, updated_at)
		 VALUES (1, $1, NOW())
		 ON CONFLICT (id) DO UPDATE SET credentials = EXCLUDED.credentials, updated_at = NOW()`,
		blob,
	)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
