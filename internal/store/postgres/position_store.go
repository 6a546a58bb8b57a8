package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Positions
// are written only through MarketStore.Commit.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, market_id, user_id,
	stake_home::text, stake_away::text, stake_draw::text, claimed::text,
	claimed_at, created_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p       domain.Position
		amounts [4]string
	)
	if err := row.Scan(
		&p.ID, &p.MarketID, &p.User,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3],
		&p.ClaimedAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Position{}, err
	}
	if err := parseU64s([]*uint64{&p.Stakes[0], &p.Stakes[1], &p.Stakes[2], &p.Claimed}, amounts[:]); err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

func upsertPosition(ctx context.Context, tx pgx.Tx, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, market_id, user_id, stake_home, stake_away, stake_draw,
			claimed, claimed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4::numeric, $5::numeric, $6::numeric,
			$7::numeric, $8, $9, $10
		)
		ON CONFLICT (id) DO UPDATE SET
			stake_home = EXCLUDED.stake_home,
			stake_away = EXCLUDED.stake_away,
			stake_draw = EXCLUDED.stake_draw,
			claimed    = EXCLUDED.claimed,
			claimed_at = EXCLUDED.claimed_at,
			updated_at = EXCLUDED.updated_at`
	_, err := tx.Exec(ctx, query,
		p.ID, p.MarketID, p.User,
		u64(p.Stakes[0]), u64(p.Stakes[1]), u64(p.Stakes[2]),
		u64(p.Claimed), p.ClaimedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a position by its derived id.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := db(ctx, s.pool).QueryRow(ctx, `SELECT `+positionCols+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListByMarket returns every position on a market.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := appendPaging(`SELECT `+positionCols+` FROM positions WHERE market_id = $1`,
		[]any{marketID}, opts, "created_at, id")
	return s.query(ctx, query, args...)
}

// ListByUser returns a user's positions across markets, newest first.
func (s *PositionStore) ListByUser(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := appendPaging(`SELECT `+positionCols+` FROM positions WHERE user_id = $1`,
		[]any{user}, opts, "created_at DESC, id")
	return s.query(ctx, query, args...)
}

func (s *PositionStore) query(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := db(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return out, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
