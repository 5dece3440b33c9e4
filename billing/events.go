package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stripe redelivers events for up to three days.
const eventTTL = 72 * time.Hour

// EventStore remembers which webhook events were already processed.
type EventStore interface {
	// Claim marks the event as being processed. It reports false when the event was already claimed.
	Claim(ctx context.Context, eventID string) (bool, error)
	// Release forgets a claim so a redelivery is processed again.
	Release(ctx context.Context, eventID string) error
}

type MemoryEventStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

var _ EventStore = (*MemoryEventStore)(nil)

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{seen: make(map[string]time.Time), ttl: eventTTL, now: time.Now}
}

func (s *MemoryEventStore) Claim(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, expires := range s.seen {
		if now.After(expires) {
			delete(s.seen, id)
		}
	}
	if _, ok := s.seen[eventID]; ok {
		return false, nil
	}
	s.seen[eventID] = now.Add(s.ttl)
	return true, nil
}

func (s *MemoryEventStore) Release(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, eventID)
	return nil
}

type RedisEventStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

var _ EventStore = (*RedisEventStore)(nil)

func NewRedisEventStore(rdb *redis.Client) *RedisEventStore {
	return &RedisEventStore{rdb: rdb, prefix: "cosflow:stripe:event:", ttl: eventTTL}
}

func (s *RedisEventStore) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+eventID, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("[billing RedisEventStore.Claim] %s: %w", eventID, err)
	}
	return ok, nil
}

func (s *RedisEventStore) Release(ctx context.Context, eventID string) error {
	if err := s.rdb.Del(ctx, s.prefix+eventID).Err(); err != nil {
		return fmt.Errorf("[billing RedisEventStore.Release] %s: %w", eventID, err)
	}
	return nil
}

// NewEventStore connects to Redis when redisURL is set and falls back to memory otherwise.
// The returned close function releases the Redis connection pool.
func NewEventStore(ctx context.Context, redisURL string) (EventStore, func() error, error) {
	if redisURL == "" {
		return NewMemoryEventStore(), func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("[billing NewEventStore] parsing REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("[billing NewEventStore] ping: %w", err)
	}
	return NewRedisEventStore(rdb), rdb.Close, nil
}
