package domain

import "time"

// Side is one of the three wagerable results of an event.
type Side int

const (
	SideHome Side = iota
	SideAway
	SideDraw
)

// Sides lists every side in pool order.
var Sides = [...]Side{SideHome, SideAway, SideDraw}

func (s Side) Valid() bool { return s >= SideHome && s <= SideDraw }

func (s Side) String() string {
	switch s {
	case SideHome:
		return "home"
	case SideAway:
		return "away"
	case SideDraw:
		return "draw"
	default:
		return "unknown"
	}
}

// ParseSide accepts the names produced by Side.String.
func ParseSide(s string) (Side, error) {
	switch s {
	case "home", "HOME", "Home":
		return SideHome, nil
	case "away", "AWAY", "Away":
		return SideAway, nil
	case "draw", "DRAW", "Draw":
		return SideDraw, nil
	}
	return 0, ErrInvalidSide
}

// Outcome is the resolved result of a market. Pending is the only value a
// market holds before resolution and never holds after it.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeHome
	OutcomeAway
	OutcomeDraw
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHome:
		return "home"
	case OutcomeAway:
		return "away"
	case OutcomeDraw:
		return "draw"
	default:
		return "pending"
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "pending", "":
		return OutcomePending, nil
	case "home":
		return OutcomeHome, nil
	case "away":
		return OutcomeAway, nil
	case "draw":
		return OutcomeDraw, nil
	}
	return OutcomePending, ErrInvalidOracleValue
}

// Side returns the winning side. ok is false while the outcome is pending.
func (o Outcome) Side() (side Side, ok bool) {
	switch o {
	case OutcomeHome:
		return SideHome, true
	case OutcomeAway:
		return SideAway, true
	case OutcomeDraw:
		return SideDraw, true
	}
	return 0, false
}

// Phase is the lifecycle state of a market at a given instant.
type Phase string

const (
	PhaseOpen     Phase = "open"
	PhaseLocked   Phase = "locked"
	PhaseResolved Phase = "resolved"
)

// Market is one wagered event: its schedule, pools, fee accrual and
// resolution state.
type Market struct {
	ID        string
	Authority string
	Question  string
	HomeTeam  string
	AwayTeam  string
	GameKey   string

	StartTime      time.Time
	EndTime        time.Time
	ResolutionTime time.Time

	Pools         [3]uint64 // indexed by Side
	FeesCollected uint64
	// FeesWithdrawn is the running total paid out by fee collections.
	FeesWithdrawn uint64

	Resolved         bool
	Outcome          Outcome
	FinalResultValue int64

	OracleRef string
	VaultRef  string
	Asset     string

	Version    int64
	Archived   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}

// Pool returns the total staked on side.
func (m Market) Pool(side Side) uint64 { return m.Pools[side] }

// IsDraw reports whether the market resolved as a draw.
func (m Market) IsDraw() bool { return m.Outcome == OutcomeDraw }

// Phase derives the lifecycle state at now.
func (m Market) Phase(now time.Time) Phase {
	switch {
	case m.Resolved:
		return PhaseResolved
	case now.Before(m.StartTime):
		return PhaseOpen
	default:
		return PhaseLocked
	}
}

// CreateMarketParams carries the caller-supplied fields of a new market.
type CreateMarketParams struct {
	Question       string
	HomeTeam       string
	AwayTeam       string
	GameKey        string
	StartTime      time.Time
	EndTime        time.Time
	ResolutionTime time.Time
	OracleRef      string
	Asset          string
}
