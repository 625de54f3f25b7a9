package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// ProfileStore implements domain.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a ProfileStore backed by the given pool.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

const profileCols = `id, username, wallet_address, created_at, updated_at`

// Upsert inserts or updates a profile keyed by ID.
func (s *ProfileStore) Upsert(ctx context.Context, p domain.Profile) error {
	const query = `
		INSERT INTO profiles (id, username, wallet_address)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			username       = EXCLUDED.username,
			wallet_address = EXCLUDED.wallet_address,
			updated_at     = NOW()`

	if _, err := s.pool.Exec(ctx, query, p.ID, p.Username, p.WalletAddress); err != nil {
		return fmt.Errorf("postgres: upsert profile %s: %w", p.ID, err)
	}
	return nil
}

// GetByID returns a profile by identifier.
func (s *ProfileStore) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	return s.get(ctx, `SELECT `+profileCols+` FROM profiles WHERE id = $1`, id)
}

// GetByUsername returns a profile by username.
func (s *ProfileStore) GetByUsername(ctx context.Context, username string) (domain.Profile, error) {
	return s.get(ctx, `SELECT `+profileCols+` FROM profiles WHERE username = $1`, username)
}

func (s *ProfileStore) get(ctx context.Context, query, arg string) (domain.Profile, error) {
	var p domain.Profile
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.Username, &p.WalletAddress, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, domain.ErrNotFound
		}
		return domain.Profile{}, fmt.Errorf("postgres: get profile %s: %w", arg, err)
	}
	return p, nil
}

// Compile-time interface check.
var _ domain.ProfileStore = (*ProfileStore)(nil)
