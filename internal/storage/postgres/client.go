package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zplayer-tv/checkout-api/internal/domain/client"
)

const (
	createClientSQL = `INSERT INTO clients
		(client_code, name, phone, email, subscription_type, has_loyalty)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`

	listClientsSQL = `SELECT id, client_code, name, phone, email, subscription_type, has_loyalty, created_at
		FROM clients
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%'
			OR client_code ILIKE '%' || $1 || '%'
			OR email ILIKE '%' || $1 || '%')
		ORDER BY created_at DESC`
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaches.
const uniqueViolation = "23505"

var _ client.Repository = (*ClientRepository)(nil)

// ClientRepository implements client.Repository backed by PostgreSQL.
type ClientRepository struct {
	pool *pgxpool.Pool
}

// NewClientRepository returns a ClientRepository that uses the given pool.
func NewClientRepository(pool *pgxpool.Pool) *ClientRepository {
	return &ClientRepository{pool: pool}
}

// Create inserts a registered client. Returns client.ErrDuplicateCode when
// the generated client code collides.
func (r *ClientRepository) Create(ctx context.Context, c *client.Client) error {
	err := r.pool.QueryRow(ctx, createClientSQL,
		c.ClientCode, c.Name, c.Phone, c.Email, c.SubscriptionType, c.HasLoyalty,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return client.ErrDuplicateCode
		}
		return fmt.Errorf("creating client %q: %w", c.ClientCode, err)
	}
	return nil
}

// List returns clients newest-first with optional text filtering.
func (r *ClientRepository) List(ctx context.Context, search string) ([]client.Client, error) {
	rows, err := r.pool.Query(ctx, listClientsSQL, search)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	return pgx.CollectRows(rows, scanClient)
}

func scanClient(row pgx.CollectableRow) (client.Client, error) {
	var c client.Client
	err := row.Scan(
		&c.ID, &c.ClientCode, &c.Name, &c.Phone, &c.Email,
		&c.SubscriptionType, &c.HasLoyalty, &c.CreatedAt,
	)
	return c, err
}
