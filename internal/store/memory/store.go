// Package memory provides in-process implementations of the persistence
// interfaces for single-node runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// Store implements domain.MarketStore, domain.PositionStore and
// domain.AuditStore in memory.
type Store struct {
	mu        sync.RWMutex
	markets   map[string]domain.Market
	gameKeys  map[string]string
	positions map[string]domain.Position
	audit     []domain.AuditEntry
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		markets:   make(map[string]domain.Market),
		gameKeys:  make(map[string]string),
		positions: make(map[string]domain.Position),
	}
}

// Create inserts a new market. It fails with domain.ErrAlreadyExists when the
// id or game key is taken.
func (s *Store) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := s.gameKeys[m.GameKey]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.ID] = m
	s.gameKeys[m.GameKey] = m.ID
	return nil
}

// GetByID returns the market with id.
func (s *Store) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

// List returns markets newest first.
func (s *Store) List(_ context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		if filter.Authority != "" && m.Authority != filter.Authority {
			continue
		}
		if filter.Resolved != nil && m.Resolved != *filter.Resolved {
			continue
		}
		if opts.Since != nil && m.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !m.CreatedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, m)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, opts), nil
}

// ListDue returns unresolved markets whose resolution time is before now,
// oldest first, starting after the cursor.
func (s *Store) ListDue(_ context.Context, now time.Time, after domain.DueCursor, limit int) ([]domain.Market, error) {
	s.mu.RLock()
	var out []domain.Market
	for _, m := range s.markets {
		if !m.Resolved && m.ResolutionTime.Before(now) && dueAfter(m, after) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ResolutionTime.Equal(out[j].ResolutionTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ResolutionTime.Before(out[j].ResolutionTime)
	})
	return page(out, domain.ListOpts{Limit: limit}), nil
}

func dueAfter(m domain.Market, c domain.DueCursor) bool {
	if c.ResolutionTime.IsZero() {
		return true
	}
	if m.ResolutionTime.Equal(c.ResolutionTime) {
		return m.ID > c.ID
	}
	return m.ResolutionTime.After(c.ResolutionTime)
}

// ListUnarchived returns resolved markets not yet archived.
func (s *Store) ListUnarchived(_ context.Context, limit int) ([]domain.Market, error) {
	s.mu.RLock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Resolved && !m.Archived {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, domain.ListOpts{Limit: limit}), nil
}

// MarkArchived flags a market as archived.
func (s *Store) MarkArchived(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Archived = true
	s.markets[id] = m
	return nil
}

// Commit applies a versioned market update and its positions atomically.
// The effect runs under the store lock before anything is written.
func (s *Store) Commit(ctx context.Context, m domain.Market, positions []domain.Position, effect func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.markets[m.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != m.Version-1 {
		return domain.ErrConflict
	}
	for _, p := range positions {
		if p.MarketID != m.ID {
			return domain.ErrInvalidMarket
		}
	}
	if effect != nil {
		if err := effect(ctx); err != nil {
			return err
		}
	}

	s.markets[m.ID] = m
	for _, p := range positions {
		s.positions[p.ID] = p
	}
	return nil
}

func (s *Store) getPosition(id string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *Store) listPositions(match func(domain.Position) bool, opts domain.ListOpts) []domain.Position {
	s.mu.RLock()
	var out []domain.Position
	for _, p := range s.positions {
		if match(p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, opts)
}

// Positions returns a domain.PositionStore view over the same data.
func (s *Store) Positions() *PositionReader { return &PositionReader{s: s} }

// Audit returns a domain.AuditStore view over the same data.
func (s *Store) Audit() *AuditLog { return &AuditLog{s: s} }

// PositionReader implements domain.PositionStore.
type PositionReader struct{ s *Store }

func (r *PositionReader) GetByID(_ context.Context, id string) (domain.Position, error) {
	return r.s.getPosition(id)
}

func (r *PositionReader) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	return r.s.listPositions(func(p domain.Position) bool { return p.MarketID == marketID }, opts), nil
}

func (r *PositionReader) ListByUser(_ context.Context, user string, opts domain.ListOpts) ([]domain.Position, error) {
	return r.s.listPositions(func(p domain.Position) bool { return p.User == user }, opts), nil
}

// AuditLog implements domain.AuditStore.
type AuditLog struct{ s *Store }

func (a *AuditLog) Log(_ context.Context, event string, detail map[string]any) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.audit = append(a.s.audit, domain.AuditEntry{
		ID:        int64(len(a.s.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// List returns entries newest first.
func (a *AuditLog) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	a.s.mu.RLock()
	out := make([]domain.AuditEntry, 0, len(a.s.audit))
	for i := len(a.s.audit) - 1; i >= 0; i-- {
		e := a.s.audit[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !e.CreatedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	a.s.mu.RUnlock()
	return page(out, opts), nil
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

var (
	_ domain.MarketStore   = (*Store)(nil)
	_ domain.PositionStore = (*PositionReader)(nil)
	_ domain.AuditStore    = (*AuditLog)(nil)
)
