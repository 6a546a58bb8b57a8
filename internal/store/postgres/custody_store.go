package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/wagerbook/internal/custody"
	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// CustodyStore implements domain.Custody on the custody_accounts and
// custody_transfers tables. Called from a MarketStore.Commit effect it
// runs inside the commit's transaction.
type CustodyStore struct {
	pool *pgxpool.Pool
}

// NewCustodyStore creates a new CustodyStore backed by the given connection pool.
func NewCustodyStore(pool *pgxpool.Pool) *CustodyStore {
	return &CustodyStore{pool: pool}
}

const accountCols = `id, owner, asset, balance::text`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	var balance string
	if err := row.Scan(&a.ID, &a.Owner, &a.Asset, &balance); err != nil {
		return domain.Account{}, err
	}
	v, err := parseU64(balance)
	if err != nil {
		return domain.Account{}, err
	}
	a.Balance = v
	return a, nil
}

// OpenAccount creates an account, or returns the existing one when owner and
// asset match.
func (s *CustodyStore) OpenAccount(ctx context.Context, id, owner, asset string) (domain.Account, error) {
	q := db(ctx, s.pool)
	if _, err := q.Exec(ctx,
		`INSERT INTO custody_accounts (id, owner, asset) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		id, owner, asset,
	); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: open account %s: %w", id, err)
	}
	a, err := s.Account(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if a.Owner != owner || a.Asset != asset {
		return domain.Account{}, fmt.Errorf("postgres: account %s held by %s: %w", id, a.Owner, domain.ErrAlreadyExists)
	}
	return a, nil
}

// Account returns an account by id.
func (s *CustodyStore) Account(ctx context.Context, id string) (domain.Account, error) {
	a, err := scanAccount(db(ctx, s.pool).QueryRow(ctx,
		`SELECT `+accountCols+` FROM custody_accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// Deposit credits an account from outside the engine (funding, tests).
func (s *CustodyStore) Deposit(ctx context.Context, id string, amount uint64) error {
	tag, err := db(ctx, s.pool).Exec(ctx,
		`UPDATE custody_accounts SET balance = balance + $2::numeric, updated_at = NOW() WHERE id = $1`,
		id, u64(amount))
	if err != nil {
		return fmt.Errorf("postgres: deposit into %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Transfer moves value between two accounts under row locks taken in id
// order. Replaying a transfer id returns the stored receipt.
func (s *CustodyStore) Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferReceipt, error) {
	var receipt domain.TransferReceipt
	err := inTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		prior, err := getTransfer(ctx, tx, req.ID)
		if err == nil {
			receipt = prior
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		accounts, err := lockAccounts(ctx, tx, req.From, req.To)
		if err != nil {
			return err
		}
		from, ok := accounts[req.From]
		if !ok {
			return fmt.Errorf("postgres: source %s: %w", req.From, domain.ErrNotFound)
		}
		to, ok := accounts[req.To]
		if !ok {
			return fmt.Errorf("postgres: destination %s: %w", req.To, domain.ErrInvalidVault)
		}
		if err := custody.Authorize(req, from, to); err != nil {
			return err
		}
		if to.Balance+req.Amount < to.Balance {
			return domain.ErrMathOverflow
		}

		const move = `UPDATE custody_accounts SET balance = balance + $2::numeric, updated_at = $3 WHERE id = $1`
		now := time.Now().UTC()
		if _, err := tx.Exec(ctx, move, from.ID, "-"+u64(req.Amount), now); err != nil {
			return fmt.Errorf("postgres: debit %s: %w", from.ID, err)
		}
		if _, err := tx.Exec(ctx, move, to.ID, u64(req.Amount), now); err != nil {
			return fmt.Errorf("postgres: credit %s: %w", to.ID, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO custody_transfers (id, kind, market_id, from_account, to_account, amount, authority, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)`,
			req.ID, string(req.Kind), req.MarketID, req.From, req.To, u64(req.Amount), req.Authority, now,
		); err != nil {
			return fmt.Errorf("postgres: record transfer %s: %w", req.ID, err)
		}

		receipt = domain.TransferReceipt{
			ID:         req.ID,
			Kind:       req.Kind,
			From:       req.From,
			To:         req.To,
			Amount:     req.Amount,
			ExecutedAt: now,
		}
		return nil
	})
	if err != nil {
		return domain.TransferReceipt{}, err
	}
	return receipt, nil
}

func getTransfer(ctx context.Context, tx pgx.Tx, id string) (domain.TransferReceipt, error) {
	var r domain.TransferReceipt
	var kind, amount string
	err := tx.QueryRow(ctx,
		`SELECT id, kind, from_account, to_account, amount::text, executed_at FROM custody_transfers WHERE id = $1`, id,
	).Scan(&r.ID, &kind, &r.From, &r.To, &amount, &r.ExecutedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TransferReceipt{}, domain.ErrNotFound
		}
		return domain.TransferReceipt{}, fmt.Errorf("postgres: get transfer %s: %w", id, err)
	}
	r.Kind = domain.TransferKind(kind)
	if r.Amount, err = parseU64(amount); err != nil {
		return domain.TransferReceipt{}, err
	}
	return r, nil
}

func lockAccounts(ctx context.Context, tx pgx.Tx, ids ...string) (map[string]domain.Account, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+accountCols+` FROM custody_accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: lock accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

var _ domain.Custody = (*CustodyStore)(nil)
