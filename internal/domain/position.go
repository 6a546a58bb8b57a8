package domain

import (
	"math/bits"
	"time"
)

// Position is a user's stakes on one market. It is created by the first
// wager and never deleted; a claimed position keeps zero stakes.
type Position struct {
	ID        string
	MarketID  string
	User      string
	Stakes    [3]uint64 // indexed by Side
	Claimed   uint64    // amount paid out by the last successful claim
	ClaimedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPosition returns the zero-valued position used when a user has not
// wagered on the market yet.
func NewPosition(id, marketID, user string) Position {
	return Position{ID: id, MarketID: marketID, User: user}
}

// Stake returns the amount the user holds on side.
func (p Position) Stake(side Side) uint64 { return p.Stakes[side] }

// Total sums all three stakes, failing with ErrMathOverflow if the sum does
// not fit.
func (p Position) Total() (uint64, error) {
	var total, carry uint64
	for _, s := range p.Stakes {
		total, carry = bits.Add64(total, s, 0)
		if carry != 0 {
			return 0, ErrMathOverflow
		}
	}
	return total, nil
}

// IsEmpty reports whether every stake is zero.
func (p Position) IsEmpty() bool {
	return p.Stakes[SideHome] == 0 && p.Stakes[SideAway] == 0 && p.Stakes[SideDraw] == 0
}
