package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryCapacity bounds the number of keys tracked in memory.
const DefaultMemoryCapacity = 100_000

// Store holds bucket state. Consume must be atomic per key: two concurrent
// calls for the same key never both observe the last free point.
type Store interface {
	Consume(ctx context.Context, key string, cfg TierConfig, now time.Time) (Result, error)
}

// MemoryStore keeps buckets in a bounded LRU for single-process deployments.
// Least recently used keys are evicted once capacity is reached, which at
// worst forgets a quiet client's count.
type MemoryStore struct {
	mu      sync.Mutex
	buckets *lru.Cache[string, *memoryBucket]
}

type memoryBucket struct {
	mu sync.Mutex
	Bucket
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store holding at most capacity keys.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	cache, err := lru.New[string, *memoryBucket](capacity)
	if err != nil {
		return nil, fmt.Errorf("create bucket cache: %w", err)
	}
	return &MemoryStore{buckets: cache}, nil
}

func (s *MemoryStore) Consume(ctx context.Context, key string, cfg TierConfig, now time.Time) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	b := s.bucket(key)

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consume(cfg, now), nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	return s.buckets.Len()
}

func (s *MemoryStore) bucket(key string) *memoryBucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets.Get(key); ok {
		return b
	}
	b := &memoryBucket{}
	s.buckets.Add(key, b)
	return b
}
