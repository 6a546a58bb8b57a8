// Package memory provides in-process implementations of the cache-layer
// interfaces for single-node runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/domain"
	"github.com/google/uuid"
)

// LockManager implements domain.LockManager with a map of held keys. A lock
// whose TTL has passed may be taken over.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]heldLock
	clock func() time.Time
}

type heldLock struct {
	token   string
	expires time.Time
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]heldLock), clock: time.Now}
}

// Acquire returns domain.ErrLockHeld if key is held and not expired.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.clock()
	if h, ok := lm.held[key]; ok && now.Before(h.expires) {
		return nil, domain.ErrLockHeld
	}
	token := uuid.NewString()
	lm.held[key] = heldLock{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if h, ok := lm.held[key]; ok && h.token == token {
				delete(lm.held, key)
			}
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
