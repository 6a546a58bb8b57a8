// Package settlement holds the market state machine and the payout math.
// Every function takes values and returns new values, so a failed call
// leaves its inputs untouched.
package settlement

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alanyoungcy/wagerbook/internal/crypto"
	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// Fee is charged on top of each stake: amount * FeeBasisPoints / BasisPointDivider.
const (
	FeeBasisPoints    = 50
	BasisPointDivider = 10_000
)

const (
	maxQuestionLen = 200
	maxLabelLen    = 50
)

// NewMarket validates params and returns an open market owned by authority
// with empty pools.
func NewMarket(authority string, p domain.CreateMarketParams, now time.Time) (domain.Market, error) {
	if !p.StartTime.Before(p.ResolutionTime) {
		return domain.Market{}, domain.ErrInvalidSchedule
	}
	gameKey := strings.TrimSpace(p.GameKey)
	oracleRef := strings.TrimSpace(p.OracleRef)
	switch {
	case authority == "":
		return domain.Market{}, domain.ErrUnauthorized
	case gameKey == "", oracleRef == "":
		return domain.Market{}, domain.ErrInvalidMarket
	case utf8.RuneCountInString(p.Question) > maxQuestionLen:
		return domain.Market{}, domain.ErrInvalidMarket
	case utf8.RuneCountInString(p.HomeTeam) > maxLabelLen,
		utf8.RuneCountInString(p.AwayTeam) > maxLabelLen,
		utf8.RuneCountInString(gameKey) > maxLabelLen:
		return domain.Market{}, domain.ErrInvalidMarket
	}

	id := crypto.MarketID(gameKey)
	return domain.Market{
		ID:             id,
		Authority:      authority,
		Question:       p.Question,
		HomeTeam:       p.HomeTeam,
		AwayTeam:       p.AwayTeam,
		GameKey:        gameKey,
		StartTime:      p.StartTime.UTC(),
		EndTime:        p.EndTime.UTC(),
		ResolutionTime: p.ResolutionTime.UTC(),
		Outcome:        domain.OutcomePending,
		OracleRef:      oracleRef,
		VaultRef:       crypto.VaultID(id),
		Asset:          p.Asset,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Fee returns the fee owed on amount, rounded down.
func Fee(amount uint64) (uint64, error) {
	scaled, err := mulU64(amount, FeeBasisPoints)
	if err != nil {
		return 0, err
	}
	return divU64(scaled, BasisPointDivider)
}

// Wager is the result of applying a stake to a market and position.
type Wager struct {
	Market   domain.Market
	Position domain.Position
	Fee      uint64
	Charge   uint64 // amount + fee, moved from the user to the vault
}

// PlaceWager adds amount on side to m and p.
func PlaceWager(m domain.Market, p domain.Position, side domain.Side, amount uint64, now time.Time) (Wager, error) {
	if !now.Before(m.StartTime) {
		return Wager{}, domain.ErrMarketAlreadyStarted
	}
	if m.Resolved {
		return Wager{}, domain.ErrMarketAlreadyResolved
	}
	if amount == 0 {
		return Wager{}, domain.ErrInvalidAmount
	}
	if !side.Valid() {
		return Wager{}, domain.ErrInvalidSide
	}
	if p.MarketID != m.ID {
		return Wager{}, domain.ErrInvalidMarket
	}

	fee, err := Fee(amount)
	if err != nil {
		return Wager{}, err
	}
	charge, err := addU64(amount, fee)
	if err != nil {
		return Wager{}, err
	}
	pool, err := addU64(m.Pools[side], amount)
	if err != nil {
		return Wager{}, err
	}
	fees, err := addU64(m.FeesCollected, fee)
	if err != nil {
		return Wager{}, err
	}
	stake, err := addU64(p.Stakes[side], amount)
	if err != nil {
		return Wager{}, err
	}

	m.Pools[side] = pool
	m.FeesCollected = fees
	m.Version++
	m.UpdatedAt = now
	p.Stakes[side] = stake
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	return Wager{Market: m, Position: p, Fee: fee, Charge: charge}, nil
}

// CheckResolvable reports whether m may be resolved at now.
func CheckResolvable(m domain.Market, now time.Time) error {
	if !now.After(m.ResolutionTime) {
		return domain.ErrTooEarlyToResolve
	}
	if m.Resolved {
		return domain.ErrMarketAlreadyResolved
	}
	return nil
}

// Resolve settles m from an oracle reading.
func Resolve(m domain.Market, reading domain.OracleReading, now time.Time) (domain.Market, error) {
	if err := CheckResolvable(m, now); err != nil {
		return m, err
	}
	outcome, code, err := InterpretReading(m.OracleRef, reading)
	if err != nil {
		return m, err
	}

	m.Resolved = true
	m.Outcome = outcome
	m.FinalResultValue = code
	m.ResolvedAt = &now
	m.Version++
	m.UpdatedAt = now
	return m, nil
}

// WithdrawFees zeroes the fee accumulator and returns what it held.
func WithdrawFees(m domain.Market, now time.Time) (domain.Market, uint64, error) {
	if m.FeesCollected == 0 {
		return m, 0, domain.ErrNoFeesToCollect
	}
	amount := m.FeesCollected
	m, err := RecordFeeWithdrawal(m, amount, now)
	if err != nil {
		return m, 0, err
	}
	return m, amount, nil
}

// RecordFeeWithdrawal moves paid out of the fee accumulator into the
// withdrawn total. paid may be less than the accrued fees when custody
// confirms an earlier, smaller withdrawal; the rest stays collectable.
func RecordFeeWithdrawal(m domain.Market, paid uint64, now time.Time) (domain.Market, error) {
	if paid == 0 || paid > m.FeesCollected {
		return m, domain.ErrNoFeesToCollect
	}
	withdrawn, err := addU64(m.FeesWithdrawn, paid)
	if err != nil {
		return m, err
	}
	m.FeesCollected -= paid
	m.FeesWithdrawn = withdrawn
	m.Version++
	m.UpdatedAt = now
	return m, nil
}

// Payout is the result of a successful claim.
type Payout struct {
	Market   domain.Market
	Position domain.Position
	Winnings uint64
}

// Claim computes p's winnings and returns the position with every stake
// zeroed. A second claim therefore yields ErrNoWinningsToClaim. Pools are
// left as resolved; only the market version moves.
func Claim(m domain.Market, p domain.Position, now time.Time) (Payout, error) {
	winnings, err := Winnings(m, p)
	if err != nil {
		return Payout{}, err
	}
	p.Stakes = [3]uint64{}
	p.Claimed = winnings
	p.ClaimedAt = &now
	p.UpdatedAt = now
	m.Version++
	m.UpdatedAt = now
	return Payout{Market: m, Position: p, Winnings: winnings}, nil
}

// UpdateOracleRef replaces the trusted feed while the market is still open.
func UpdateOracleRef(m domain.Market, caller, ref string, now time.Time) (domain.Market, error) {
	if err := RequireAuthority(m, caller, domain.ErrUnauthorizedUpdater); err != nil {
		return m, err
	}
	if !now.Before(m.StartTime) {
		return m, domain.ErrMarketAlreadyStarted
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return m, domain.ErrInvalidFeed
	}
	m.OracleRef = ref
	m.Version++
	m.UpdatedAt = now
	return m, nil
}

// CollectFees is WithdrawFees gated on the market authority.
func CollectFees(m domain.Market, caller string, now time.Time) (domain.Market, uint64, error) {
	if err := RequireAuthority(m, caller, domain.ErrUnauthorizedFeeCollector); err != nil {
		return m, 0, err
	}
	return WithdrawFees(m, now)
}
