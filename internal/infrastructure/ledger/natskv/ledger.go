package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

// Ledger stores pending actions in a JetStream key-value bucket so
// confirms survive API restarts and work across replicas. The bucket TTL
// backs up the per-action expiry; Consume is made atomic by deleting
// with the revision observed on read, so racing confirms see exactly one
// winner.
type Ledger struct {
	kv  nats.KeyValue
	ttl time.Duration
	now func() time.Time
}

func New(conn *nats.Conn, bucket string, ttl time.Duration) (*Ledger, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: bucket,
			TTL:    ttl,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open pending-action bucket: %w", err)
	}

	return &Ledger{kv: kv, ttl: ttl, now: time.Now}, nil
}

func (l *Ledger) Stage(_ context.Context, action domain.PendingAction) (*domain.PendingAction, error) {
	if len(action.Plan) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "stage pending action", fmt.Errorf("empty plan"))
	}

	now := l.now().UTC()
	action.Token = uuid.NewString()
	action.CreatedAt = now
	action.ExpiresAt = now.Add(l.ttl)

	payload, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal pending action: %w", err)
	}
	if _, err := l.kv.Create(action.Token, payload); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "stage pending action", err)
	}
	return &action, nil
}

func (l *Ledger) Consume(_ context.Context, token string) (*domain.PendingAction, error) {
	entry, err := l.kv.Get(token)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, notFound()
		}
		return nil, domain.WrapError(domain.ErrTemporary, "consume pending action", err)
	}

	var action domain.PendingAction
	if err := json.Unmarshal(entry.Value(), &action); err != nil {
		_ = l.kv.Delete(token)
		return nil, notFound()
	}

	// Delete against the read revision: if another consumer got here
	// first the delete fails and this caller loses the race.
	if err := l.kv.Delete(token, nats.LastRevision(entry.Revision())); err != nil {
		return nil, notFound()
	}

	if action.Expired(l.now().UTC()) {
		return nil, notFound()
	}
	return &action, nil
}

func (l *Ledger) Sweep(_ context.Context) int {
	keys, err := l.kv.Keys()
	if err != nil {
		return 0
	}

	now := l.now().UTC()
	removed := 0
	for _, key := range keys {
		entry, err := l.kv.Get(key)
		if err != nil {
			continue
		}
		var action domain.PendingAction
		if err := json.Unmarshal(entry.Value(), &action); err != nil || action.Expired(now) {
			if l.kv.Delete(key, nats.LastRevision(entry.Revision())) == nil {
				removed++
			}
		}
	}
	return removed
}

func notFound() error {
	return domain.WrapError(domain.ErrNotFound, "consume pending action", fmt.Errorf("token does not exist"))
}
