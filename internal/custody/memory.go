package custody

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// Ledger is an in-memory domain.Custody.
type Ledger struct {
	mu        sync.Mutex
	accounts  map[string]domain.Account
	transfers map[string]domain.TransferReceipt
	now       func() time.Time
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts:  make(map[string]domain.Account),
		transfers: make(map[string]domain.TransferReceipt),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OpenAccount creates id or returns it if it already exists with the same
// owner and asset.
func (l *Ledger) OpenAccount(_ context.Context, id, owner, asset string) (domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[id]; ok {
		if acct.Owner != owner || acct.Asset != asset {
			return domain.Account{}, fmt.Errorf("custody: account %s: %w", id, domain.ErrAlreadyExists)
		}
		return acct, nil
	}
	acct := domain.Account{ID: id, Owner: owner, Asset: asset}
	l.accounts[id] = acct
	return acct, nil
}

// Account returns the account with id.
func (l *Ledger) Account(_ context.Context, id string) (domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return acct, nil
}

// Deposit credits an account from outside the system.
func (l *Ledger) Deposit(_ context.Context, id string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	if acct.Balance+amount < acct.Balance {
		return domain.ErrMathOverflow
	}
	acct.Balance += amount
	l.accounts[id] = acct
	return nil
}

// Transfer moves value between two accounts. Replaying a transfer id returns
// the original receipt.
func (l *Ledger) Transfer(_ context.Context, req domain.TransferRequest) (domain.TransferReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r, ok := l.transfers[req.ID]; ok {
		return r, nil
	}
	from, ok := l.accounts[req.From]
	if !ok {
		return domain.TransferReceipt{}, fmt.Errorf("custody: source %s: %w", req.From, domain.ErrNotFound)
	}
	to, ok := l.accounts[req.To]
	if !ok {
		return domain.TransferReceipt{}, fmt.Errorf("custody: destination %s: %w", req.To, domain.ErrInvalidVault)
	}
	if err := Authorize(req, from, to); err != nil {
		return domain.TransferReceipt{}, err
	}
	if to.Balance+req.Amount < to.Balance {
		return domain.TransferReceipt{}, domain.ErrMathOverflow
	}

	from.Balance -= req.Amount
	to.Balance += req.Amount
	l.accounts[from.ID] = from
	l.accounts[to.ID] = to

	r := domain.TransferReceipt{
		ID:         req.ID,
		Kind:       req.Kind,
		From:       req.From,
		To:         req.To,
		Amount:     req.Amount,
		ExecutedAt: l.now(),
	}
	l.transfers[req.ID] = r
	return r, nil
}

var _ domain.Custody = (*Ledger)(nil)
