package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"harmonyclass-api/pkg/logging"

	"github.com/redis/go-redis/v9"
)

// EventLedger remembers payment events that were fully processed, so a
// redelivery is acknowledged without repeating its side effects
type EventLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// RedisEventLedger keeps processed event ids in Redis with a TTL
type RedisEventLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisEventLedger creates a Redis backed ledger
func NewRedisEventLedger(client *redis.Client, ttl time.Duration) *RedisEventLedger {
	return &RedisEventLedger{client: client, ttl: ttl}
}

func ledgerKey(eventID string) string {
	return "webhook_event:" + eventID
}

// Seen reports whether eventID was marked processed
func (l *RedisEventLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	_, err := l.client.Get(ctx, ledgerKey(eventID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkProcessed records eventID
func (l *RedisEventLedger) MarkProcessed(ctx context.Context, eventID string) error {
	return l.client.SetNX(ctx, ledgerKey(eventID), time.Now().Unix(), l.ttl).Err()
}

// MemoryEventLedger is the in-process ledger used when Redis is not configured.
// Records are lost on restart, which only costs a repeated, idempotent delivery.
type MemoryEventLedger struct {
	processed       map[string]time.Time
	mutex           sync.RWMutex
	cleanupInterval time.Duration
	ttl             time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryEventLedger creates an in-memory ledger and starts its cleanup routine
func NewMemoryEventLedger(ttl time.Duration) *MemoryEventLedger {
	l := &MemoryEventLedger{
		processed:       make(map[string]time.Time),
		cleanupInterval: time.Hour,
		ttl:             ttl,
		stopCleanup:     make(chan struct{}),
	}

	go l.startCleanupRoutine()

	return l
}

// Seen reports whether eventID was marked processed within the TTL
func (l *MemoryEventLedger) Seen(_ context.Context, eventID string) (bool, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	processedAt, exists := l.processed[eventID]
	if !exists {
		return false, nil
	}
	return time.Since(processedAt) <= l.ttl, nil
}

// MarkProcessed records eventID
func (l *MemoryEventLedger) MarkProcessed(_ context.Context, eventID string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.processed[eventID] = time.Now()
	return nil
}

func (l *MemoryEventLedger) startCleanupRoutine() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup drops expired records
func (l *MemoryEventLedger) cleanup() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := time.Now()
	initialCount := len(l.processed)

	for eventID, processedAt := range l.processed {
		if now.Sub(processedAt) > l.ttl {
			delete(l.processed, eventID)
		}
	}

	if cleaned := initialCount - len(l.processed); cleaned > 0 {
		logging.Infof("Event ledger cleanup: removed %d expired events, remaining: %d", cleaned, len(l.processed))
	}
}

// Stop stops the cleanup routine
func (l *MemoryEventLedger) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}
