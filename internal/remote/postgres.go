package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leduong/EPlusTV/internal/models"
)

const (
	entriesQuery = `SELECT id, "from", name, start, "end", duration, categories, feed, sport,
		network, image, channel, linear, replay, url, "originalEnd"
		FROM entries WHERE "from" = $1 ORDER BY start ASC`

	providerQuery = `SELECT key, data FROM providers WHERE key = $1`

	upsertProviderQuery = `INSERT INTO providers (key, data) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data`
)

// PostgresStore reads the remote tables over a direct Postgres connection.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool to dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", ErrNotConfigured)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting remote postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Entries returns the listing published under from.
func (s *PostgresStore) Entries(ctx context.Context, from string) ([]*models.Entry, error) {
	rows, err := s.pool.Query(ctx, entriesQuery, from)
	if err != nil {
		return nil, fmt.Errorf("querying %s entries: %w", from, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			channel *string
		)
		if err := rows.Scan(
			&e.ID, &e.From, &e.Name, &e.Start, &e.End, &e.Duration, &e.Categories,
			&e.Feed, &e.Sport, &e.Network, &e.Image, &channel, &e.Linear, &e.Replay,
			&e.URL, &e.OriginalEnd,
		); err != nil {
			return nil, fmt.Errorf("scanning %s entry: %w", from, err)
		}
		e.Channel = ChannelID{Value: channel}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s entries: %w", from, err)
	}
	return toModels(out), nil
}

// Provider returns the credential document for key.
func (s *PostgresStore) Provider(ctx context.Context, key string) (*Provider, error) {
	var (
		p    Provider
		data []byte
	)
	err := s.pool.QueryRow(ctx, providerQuery, key).Scan(&p.Key, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying provider %s: %w", key, err)
	}
	p.Data = data
	return &p, nil
}

// UpsertProvider creates or replaces a credential document.
func (s *PostgresStore) UpsertProvider(ctx context.Context, p *Provider) error {
	if _, err := s.pool.Exec(ctx, upsertProviderQuery, p.Key, string(p.Data)); err != nil {
		return fmt.Errorf("upserting provider %s: %w", p.Key, err)
	}
	return nil
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
