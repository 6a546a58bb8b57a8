// Package custody holds the balance-movement rules shared by every custody
// backend, plus the in-memory and HTTP backends.
package custody

import (
	"fmt"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// Authorize checks req against the two accounts it touches. The identity
// authorising a debit must own the source account, which is how market
// vaults (owned by the engine identity) stay under the engine's sole
// control.
func Authorize(req domain.TransferRequest, from, to domain.Account) error {
	if req.Amount == 0 {
		return domain.ErrInvalidAmount
	}
	if req.Authority == "" || req.Authority != from.Owner {
		return fmt.Errorf("custody: %s may not debit %s: %w", req.Authority, from.ID, domain.ErrUnauthorized)
	}
	if req.ExpectedOwner != "" && to.Owner != req.ExpectedOwner {
		return fmt.Errorf("custody: %s is not owned by %s: %w", to.ID, req.ExpectedOwner, domain.ErrInvalidVault)
	}
	if from.Asset != to.Asset || (req.Asset != "" && req.Asset != from.Asset) {
		return fmt.Errorf("custody: asset mismatch %s/%s: %w", from.Asset, to.Asset, domain.ErrInvalidVault)
	}
	if from.ID == to.ID {
		return fmt.Errorf("custody: transfer to self: %w", domain.ErrInvalidVault)
	}
	if from.Balance < req.Amount {
		return fmt.Errorf("custody: %s holds %d, need %d: %w", from.ID, from.Balance, req.Amount, domain.ErrInsufficientFunds)
	}
	return nil
}
