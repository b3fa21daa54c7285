package memledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

const DefaultTTL = 10 * time.Minute

// Ledger is the in-process pending-action store. Tokens are single-use:
// Consume removes the action under the lock, so concurrent confirms of
// the same token yield it exactly once. Expired entries are dropped
// lazily on Consume and in bulk by Sweep.
type Ledger struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	actions map[string]domain.PendingAction
}

func New(ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{
		ttl:     ttl,
		now:     time.Now,
		actions: make(map[string]domain.PendingAction),
	}
}

func (l *Ledger) Stage(_ context.Context, action domain.PendingAction) (*domain.PendingAction, error) {
	if len(action.Plan) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "stage pending action", fmt.Errorf("empty plan"))
	}

	now := l.now().UTC()
	action.Token = uuid.NewString()
	action.CreatedAt = now
	action.ExpiresAt = now.Add(l.ttl)

	l.mu.Lock()
	l.actions[action.Token] = action
	l.mu.Unlock()
	return &action, nil
}

func (l *Ledger) Consume(_ context.Context, token string) (*domain.PendingAction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	action, ok := l.actions[token]
	if !ok {
		return nil, notFound()
	}
	delete(l.actions, token)

	// An expired token is indistinguishable from a consumed one.
	if action.Expired(l.now().UTC()) {
		return nil, notFound()
	}
	return &action, nil
}

// Sweep drops expired entries and reports how many were removed.
func (l *Ledger) Sweep(_ context.Context) int {
	now := l.now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for token, action := range l.actions {
		if action.Expired(now) {
			delete(l.actions, token)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps on an interval until the context is cancelled.
func (l *Ledger) RunSweeper(ctx context.Context, interval time.Duration, onExpired func(int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := l.Sweep(ctx); removed > 0 && onExpired != nil {
				onExpired(removed)
			}
		}
	}
}

func notFound() error {
	return domain.WrapError(domain.ErrNotFound, "consume pending action", fmt.Errorf("token does not exist"))
}
