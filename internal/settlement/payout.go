package settlement

import "github.com/alanyoungcy/wagerbook/internal/domain"

// Winnings computes what p is owed from resolved market m:
// stake[win] * total / pool[win], multiplied first. Stakes on any other side
// are forfeited. An empty winning pool is ErrMathOverflow and a zero result
// is ErrNoWinningsToClaim.
func Winnings(m domain.Market, p domain.Position) (uint64, error) {
	if !m.Resolved {
		return 0, domain.ErrMarketNotResolved
	}
	win, ok := m.Outcome.Side()
	if !ok {
		return 0, domain.ErrMarketNotResolved
	}

	total, err := TotalPool(m)
	if err != nil {
		return 0, err
	}
	scaled, err := mulU64(p.Stake(win), total)
	if err != nil {
		return 0, err
	}
	winnings, err := divU64(scaled, m.Pool(win))
	if err != nil {
		return 0, err
	}
	if winnings == 0 {
		return 0, domain.ErrNoWinningsToClaim
	}
	return winnings, nil
}

// TotalPool sums the three pools with overflow checking.
func TotalPool(m domain.Market) (uint64, error) {
	var total uint64
	var err error
	for _, side := range domain.Sides {
		if total, err = addU64(total, m.Pool(side)); err != nil {
			return 0, err
		}
	}
	return total, nil
}
