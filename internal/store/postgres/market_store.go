package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, authority, question, home_team, away_team, game_key,
	start_time, end_time, resolution_time,
	pool_home::text, pool_away::text, pool_draw::text, fees_collected::text, fees_withdrawn::text,
	resolved, outcome, final_result_value, oracle_ref, vault_ref, asset,
	version, archived, created_at, updated_at, resolved_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m       domain.Market
		endTime *time.Time
		amounts [5]string
		outcome string
	)
	err := row.Scan(
		&m.ID, &m.Authority, &m.Question, &m.HomeTeam, &m.AwayTeam, &m.GameKey,
		&m.StartTime, &endTime, &m.ResolutionTime,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&m.Resolved, &outcome, &m.FinalResultValue, &m.OracleRef, &m.VaultRef, &m.Asset,
		&m.Version, &m.Archived, &m.CreatedAt, &m.UpdatedAt, &m.ResolvedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if endTime != nil {
		m.EndTime = *endTime
	}
	if err := parseU64s([]*uint64{&m.Pools[0], &m.Pools[1], &m.Pools[2], &m.FeesCollected, &m.FeesWithdrawn}, amounts[:]); err != nil {
		return domain.Market{}, err
	}
	if m.Outcome, err = domain.ParseOutcome(outcome); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: market %s: %w", m.ID, err)
	}
	return m, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Create inserts a new market. A duplicate id or game key yields
// domain.ErrAlreadyExists.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, authority, question, home_team, away_team, game_key,
			start_time, end_time, resolution_time,
			pool_home, pool_away, pool_draw, fees_collected,
			resolved, outcome, final_result_value, oracle_ref, vault_ref, asset,
			version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10::numeric, $11::numeric, $12::numeric, $13::numeric,
			$14, $15, $16, $17, $18, $19,
			$20, $21, $21
		)`
	_, err := db(ctx, s.pool).Exec(ctx, query,
		m.ID, m.Authority, m.Question, m.HomeTeam, m.AwayTeam, m.GameKey,
		m.StartTime, nullTime(m.EndTime), m.ResolutionTime,
		u64(m.Pools[0]), u64(m.Pools[1]), u64(m.Pools[2]), u64(m.FeesCollected),
		m.Resolved, m.Outcome.String(), m.FinalResultValue, m.OracleRef, m.VaultRef, m.Asset,
		m.Version, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: market %s: %w", m.GameKey, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := db(ctx, s.pool).QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets matching filter, newest first.
func (s *MarketStore) List(ctx context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	var args []any
	if filter.Authority != "" {
		args = append(args, filter.Authority)
		query += fmt.Sprintf(" AND authority = $%d", len(args))
	}
	if filter.Resolved != nil {
		args = append(args, *filter.Resolved)
		query += fmt.Sprintf(" AND resolved = $%d", len(args))
	}
	query, args = appendPaging(query, args, opts, "created_at DESC, id")
	return s.query(ctx, "list markets", query, args...)
}

// ListDue returns unresolved markets whose resolution time has passed,
// oldest first, keyset-paged on (resolution_time, id) after the cursor.
func (s *MarketStore) ListDue(ctx context.Context, now time.Time, after domain.DueCursor, limit int) ([]domain.Market, error) {
	if after.ResolutionTime.IsZero() {
		return s.query(ctx, "list due markets",
			`SELECT `+marketCols+` FROM markets
			 WHERE NOT resolved AND resolution_time < $1
			 ORDER BY resolution_time, id LIMIT $2`, now, limit)
	}
	return s.query(ctx, "list due markets",
		`SELECT `+marketCols+` FROM markets
		 WHERE NOT resolved AND resolution_time < $1
		   AND (resolution_time, id) > ($2::timestamptz, $3::text)
		 ORDER BY resolution_time, id LIMIT $4`, now, after.ResolutionTime, after.ID, limit)
}

// ListUnarchived returns resolved markets not yet archived.
func (s *MarketStore) ListUnarchived(ctx context.Context, limit int) ([]domain.Market, error) {
	return s.query(ctx, "list unarchived markets",
		`SELECT `+marketCols+` FROM markets
		 WHERE resolved AND NOT archived
		 ORDER BY resolved_at LIMIT $1`, limit)
}

// MarkArchived flags a market as archived. Archiving does not bump the
// version since no settlement state changes.
func (s *MarketStore) MarkArchived(ctx context.Context, id string) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `UPDATE markets SET archived = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark market %s archived: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Commit writes m and positions in one transaction guarded by the market
// version: the stored row must be at m.Version-1. effect runs inside the
// transaction before it commits; its ctx carries the transaction so a
// postgres custody ledger joins it.
func (s *MarketStore) Commit(ctx context.Context, m domain.Market, positions []domain.Position, effect func(context.Context) error) error {
	return inTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		const update = `
			UPDATE markets SET
				pool_home = $3::numeric, pool_away = $4::numeric, pool_draw = $5::numeric,
				fees_collected = $6::numeric, fees_withdrawn = $13::numeric,
				resolved = $7, outcome = $8,
				final_result_value = $9, oracle_ref = $10, version = $2,
				updated_at = $11, resolved_at = $12
			WHERE id = $1 AND version = $2 - 1`
		tag, err := tx.Exec(ctx, update,
			m.ID, m.Version,
			u64(m.Pools[0]), u64(m.Pools[1]), u64(m.Pools[2]),
			u64(m.FeesCollected), m.Resolved, m.Outcome.String(),
			m.FinalResultValue, m.OracleRef, m.UpdatedAt, m.ResolvedAt,
			u64(m.FeesWithdrawn),
		)
		if err != nil {
			return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("postgres: market %s at version %d: %w", m.ID, m.Version-1, domain.ErrConflict)
		}

		for _, p := range positions {
			if p.MarketID != m.ID {
				return fmt.Errorf("postgres: position %s belongs to %s: %w", p.ID, p.MarketID, domain.ErrConflict)
			}
			if err := upsertPosition(ctx, tx, p); err != nil {
				return err
			}
		}

		if effect != nil {
			if err := effect(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *MarketStore) query(ctx context.Context, what, query string, args ...any) ([]domain.Market, error) {
	rows, err := db(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", what, err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", what, err)
	}
	return markets, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
