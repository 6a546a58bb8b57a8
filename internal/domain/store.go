package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketFilter narrows ListMarkets results.
type MarketFilter struct {
	Authority string
	Resolved  *bool
}

// MarketStore persists markets and the positions written alongside them.
//
// Commit writes the market and every given position in one transaction. The
// stored market version must equal m.Version-1, otherwise ErrConflict is
// returned and nothing is written. When effect is non-nil it runs after the
// rows are written and before the transaction commits; an effect error rolls
// the whole commit back.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, filter MarketFilter, opts ListOpts) ([]Market, error)
	ListDue(ctx context.Context, now time.Time, after DueCursor, limit int) ([]Market, error)
	ListUnarchived(ctx context.Context, limit int) ([]Market, error)
	MarkArchived(ctx context.Context, id string) error
	Commit(ctx context.Context, m Market, positions []Position, effect func(context.Context) error) error
}

// DueCursor pages ListDue in (ResolutionTime, ID) order. The zero cursor
// starts at the oldest due market.
type DueCursor struct {
	ResolutionTime time.Time
	ID             string
}

// After returns the cursor that continues past m.
func (DueCursor) After(m Market) DueCursor {
	return DueCursor{ResolutionTime: m.ResolutionTime, ID: m.ID}
}

// PositionStore reads positions. Writes go through MarketStore.Commit.
type PositionStore interface {
	GetByID(ctx context.Context, id string) (Position, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Position, error)
	ListByUser(ctx context.Context, user string, opts ListOpts) ([]Position, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
