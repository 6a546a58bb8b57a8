package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/wagerbook/internal/domain"
	"github.com/alanyoungcy/wagerbook/internal/settlement"
	"github.com/alanyoungcy/wagerbook/internal/units"
)

// amountView renders a base-unit amount both exactly and for display. Base
// is a string so values above 2^53 survive JavaScript clients.
type amountView struct {
	Base    string `json:"base"`
	Display string `json:"display"`
}

func newAmount(base uint64, decimals int32) amountView {
	return amountView{Base: strconv.FormatUint(base, 10), Display: units.Format(base, decimals)}
}

type poolsView struct {
	Home  amountView `json:"home"`
	Away  amountView `json:"away"`
	Draw  amountView `json:"draw"`
	Total amountView `json:"total"`
}

type marketView struct {
	ID               string     `json:"id"`
	Authority        string     `json:"authority"`
	Question         string     `json:"question"`
	HomeTeam         string     `json:"home_team"`
	AwayTeam         string     `json:"away_team"`
	GameKey          string     `json:"game_key"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	ResolutionTime   time.Time  `json:"resolution_time"`
	Phase            string     `json:"phase"`
	Pools            poolsView  `json:"pools"`
	FeesCollected    amountView `json:"fees_collected"`
	FeesWithdrawn    amountView `json:"fees_withdrawn"`
	Resolved         bool       `json:"resolved"`
	Outcome          string     `json:"outcome"`
	FinalResultValue int64      `json:"final_result_value"`
	OracleRef        string     `json:"oracle_ref"`
	VaultRef         string     `json:"vault_ref"`
	Asset            string     `json:"asset"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

func newMarketView(m domain.Market, now time.Time, decimals int32) marketView {
	total, _ := settlement.TotalPool(m)
	v := marketView{
		ID:               m.ID,
		Authority:        m.Authority,
		Question:         m.Question,
		HomeTeam:         m.HomeTeam,
		AwayTeam:         m.AwayTeam,
		GameKey:          m.GameKey,
		StartTime:        m.StartTime,
		ResolutionTime:   m.ResolutionTime,
		Phase:            string(m.Phase(now)),
		FeesCollected:    newAmount(m.FeesCollected, decimals),
		FeesWithdrawn:    newAmount(m.FeesWithdrawn, decimals),
		Resolved:         m.Resolved,
		Outcome:          m.Outcome.String(),
		FinalResultValue: m.FinalResultValue,
		OracleRef:        m.OracleRef,
		VaultRef:         m.VaultRef,
		Asset:            m.Asset,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		ResolvedAt:       m.ResolvedAt,
		Pools: poolsView{
			Home:  newAmount(m.Pool(domain.SideHome), decimals),
			Away:  newAmount(m.Pool(domain.SideAway), decimals),
			Draw:  newAmount(m.Pool(domain.SideDraw), decimals),
			Total: newAmount(total, decimals),
		},
	}
	if !m.EndTime.IsZero() {
		end := m.EndTime
		v.EndTime = &end
	}
	return v
}

type stakesView struct {
	Home amountView `json:"home"`
	Away amountView `json:"away"`
	Draw amountView `json:"draw"`
}

type positionView struct {
	ID        string      `json:"id"`
	MarketID  string      `json:"market_id"`
	User      string      `json:"user"`
	Stakes    stakesView  `json:"stakes"`
	Claimed   amountView  `json:"claimed"`
	ClaimedAt *time.Time  `json:"claimed_at,omitempty"`
	Claimable *amountView `json:"claimable,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func newPositionView(p domain.Position, decimals int32) positionView {
	return positionView{
		ID:       p.ID,
		MarketID: p.MarketID,
		User:     p.User,
		Stakes: stakesView{
			Home: newAmount(p.Stake(domain.SideHome), decimals),
			Away: newAmount(p.Stake(domain.SideAway), decimals),
			Draw: newAmount(p.Stake(domain.SideDraw), decimals),
		},
		Claimed:   newAmount(p.Claimed, decimals),
		ClaimedAt: p.ClaimedAt,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type transferView struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	From       string     `json:"from"`
	To         string     `json:"to"`
	Amount     amountView `json:"amount"`
	ExecutedAt time.Time  `json:"executed_at"`
}

func newTransferView(t domain.TransferReceipt, decimals int32) transferView {
	return transferView{
		ID:         t.ID,
		Kind:       string(t.Kind),
		From:       t.From,
		To:         t.To,
		Amount:     newAmount(t.Amount, decimals),
		ExecutedAt: t.ExecutedAt,
	}
}

type readingView struct {
	FeedID    string    `json:"feed_id"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Signer    string    `json:"signer,omitempty"`
	Signature string    `json:"signature,omitempty"`
}

func newReadingView(r domain.OracleReading) readingView {
	v := readingView{FeedID: r.FeedID, Value: r.Value, Timestamp: r.Timestamp, Signer: r.Signer}
	if len(r.Signature) > 0 {
		v.Signature = hexutil.Encode(r.Signature)
	}
	return v
}

// readingRequest is the wire form of a signed oracle reading. Timestamp is
// Unix seconds, the resolution the signature covers.
type readingRequest struct {
	FeedID    string `json:"feed_id"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

func (rr readingRequest) toDomain() (domain.OracleReading, error) {
	if rr.Timestamp <= 0 {
		return domain.OracleReading{}, errors.New("timestamp is required")
	}
	var sig []byte
	if rr.Signature != "" {
		s := rr.Signature
		if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
			s = "0x" + s
		}
		var err error
		if sig, err = hexutil.Decode(s); err != nil {
			return domain.OracleReading{}, fmt.Errorf("signature: %w", err)
		}
	}
	return domain.OracleReading{
		FeedID:    strings.TrimSpace(rr.FeedID),
		Value:     rr.Value,
		Timestamp: time.Unix(rr.Timestamp, 0).UTC(),
		Signer:    rr.Signer,
		Signature: sig,
	}, nil
}

// parseAmount accepts either base units or a display amount. Exactly one
// must be given.
func parseAmount(base, display string, decimals int32) (uint64, error) {
	switch {
	case base != "" && display != "":
		return 0, errors.New("give either amount or display_amount, not both")
	case base != "":
		n, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("amount: %w", domain.ErrInvalidAmount)
		}
		return n, nil
	case display != "":
		n, err := units.Parse(display, decimals)
		if err != nil {
			return 0, fmt.Errorf("display_amount: %w", err)
		}
		return n, nil
	}
	return 0, errors.New("amount is required")
}
