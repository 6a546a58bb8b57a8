package settlement

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

func resolvedMarket(outcome domain.Outcome, home, away, draw uint64) domain.Market {
	return domain.Market{
		ID:       "m",
		Resolved: true,
		Outcome:  outcome,
		Pools:    [3]uint64{home, away, draw},
	}
}

func stakes(home, away, draw uint64) domain.Position {
	return domain.Position{MarketID: "m", Stakes: [3]uint64{home, away, draw}}
}

func TestWinnings(t *testing.T) {
	tests := []struct {
		name    string
		market  domain.Market
		pos     domain.Position
		want    uint64
		wantErr error
	}{
		{"home win", resolvedMarket(domain.OutcomeHome, 300, 100, 0), stakes(30, 0, 0), 40, nil},
		{"away win", resolvedMarket(domain.OutcomeAway, 300, 100, 0), stakes(0, 100, 0), 400, nil},
		{"draw", resolvedMarket(domain.OutcomeDraw, 100, 100, 50), stakes(0, 0, 50), 250, nil},
		{"draw forfeits home stake", resolvedMarket(domain.OutcomeDraw, 100, 100, 50), stakes(100, 0, 0), 0, domain.ErrNoWinningsToClaim},
		{"home win forfeits draw stake", resolvedMarket(domain.OutcomeHome, 100, 0, 20), stakes(0, 0, 20), 0, domain.ErrNoWinningsToClaim},
		{"mixed stake pays winning side only", resolvedMarket(domain.OutcomeHome, 100, 100, 0), stakes(50, 50, 0), 100, nil},
		{"rounds down", resolvedMarket(domain.OutcomeHome, 3, 1, 0), stakes(1, 0, 0), 1, nil},
		{"unresolved", domain.Market{Pools: [3]uint64{1, 1, 1}}, stakes(1, 0, 0), 0, domain.ErrMarketNotResolved},
		{"empty winning pool", resolvedMarket(domain.OutcomeDraw, 10, 10, 0), stakes(10, 0, 0), 0, domain.ErrMathOverflow},
		{"total overflow", resolvedMarket(domain.OutcomeHome, math.MaxUint64, 1, 0), stakes(1, 0, 0), 0, domain.ErrMathOverflow},
		{"product overflow", resolvedMarket(domain.OutcomeHome, math.MaxUint64/2, math.MaxUint64/4, 0), stakes(math.MaxUint64/4, 0, 0), 0, domain.ErrMathOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Winnings(tt.market, tt.pos)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("winnings = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClaimOnce(t *testing.T) {
	m := resolvedMarket(domain.OutcomeHome, 300, 100, 0)
	now := time.Unix(1700000000, 0)

	out, err := Claim(m, stakes(30, 5, 0), now)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if out.Winnings != 40 {
		t.Fatalf("winnings = %d, want 40", out.Winnings)
	}
	if !out.Position.IsEmpty() {
		t.Fatalf("stakes not zeroed: %v", out.Position.Stakes)
	}
	if out.Market.Pools != m.Pools {
		t.Fatal("claim changed pools")
	}

	if _, err := Claim(out.Market, out.Position, now); !errors.Is(err, domain.ErrNoWinningsToClaim) {
		t.Fatalf("second claim: got %v, want ErrNoWinningsToClaim", err)
	}
}
