package domain

import "errors"

// Settlement errors. Each one aborts the operation that produced it with no
// state change.
var (
	ErrMarketAlreadyStarted  = errors.New("market has already started")
	ErrMarketAlreadyResolved = errors.New("market has already been resolved")
	ErrMarketNotResolved     = errors.New("market is not yet resolved")
	ErrTooEarlyToResolve     = errors.New("too early to resolve the market")
	ErrMatchNotFinished      = errors.New("match is not finished yet according to the oracle")

	ErrUnauthorizedResolver     = errors.New("unauthorized to resolve this market")
	ErrUnauthorizedUpdater      = errors.New("unauthorized to update the oracle feed")
	ErrUnauthorizedFeeCollector = errors.New("unauthorized to collect fees")

	ErrInvalidVault       = errors.New("invalid vault for this market")
	ErrInvalidFeed        = errors.New("invalid oracle feed for this market")
	ErrInvalidOracleValue = errors.New("invalid oracle value")
	ErrInvalidAmount      = errors.New("invalid amount")

	ErrMathOverflow = errors.New("math operation overflowed")

	ErrNoWinningsToClaim = errors.New("no winnings to claim")
	ErrNoFeesToCollect   = errors.New("no fees to collect")
)

// Plumbing errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrConflict          = errors.New("concurrent modification")
	ErrLockHeld          = errors.New("lock already held")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidSchedule   = errors.New("start time must be before resolution time")
	ErrInvalidMarket     = errors.New("invalid market parameters")
	ErrInvalidSide       = errors.New("invalid side")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrMarketAlreadyStarted, "market_already_started"},
	{ErrMarketAlreadyResolved, "market_already_resolved"},
	{ErrMarketNotResolved, "market_not_resolved"},
	{ErrTooEarlyToResolve, "too_early_to_resolve"},
	{ErrMatchNotFinished, "match_not_finished"},
	{ErrUnauthorizedResolver, "unauthorized_resolver"},
	{ErrUnauthorizedUpdater, "unauthorized_updater"},
	{ErrUnauthorizedFeeCollector, "unauthorized_fee_collector"},
	{ErrInvalidVault, "invalid_vault"},
	{ErrInvalidFeed, "invalid_feed"},
	{ErrInvalidOracleValue, "invalid_oracle_value"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrMathOverflow, "math_overflow"},
	{ErrNoWinningsToClaim, "no_winnings_to_claim"},
	{ErrNoFeesToCollect, "no_fees_to_collect"},
	{ErrNotFound, "not_found"},
	{ErrAlreadyExists, "already_exists"},
	{ErrConflict, "conflict"},
	{ErrLockHeld, "lock_held"},
	{ErrRateLimited, "rate_limited"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrInvalidSchedule, "invalid_schedule"},
	{ErrInvalidMarket, "invalid_market"},
	{ErrInvalidSide, "invalid_side"},
}

// Code returns a stable snake_case identifier for a known error, or
// "internal" when err matches none of the sentinels.
func Code(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// FromCode is the inverse of Code. Unknown codes return nil.
func FromCode(code string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
