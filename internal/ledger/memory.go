package ledger

import (
	"context"
	"sync"
	"time"

	"orderbridge/internal/orders"
	"orderbridge/internal/sharding"
)

const memoryShards = 64

type memoryShard struct {
	mu      sync.Mutex
	entries map[orders.Key]Entry
}

// MemoryStore is an in-process Store. Each key maps to one of a fixed set
// of shards; the shard mutex is held across the whole read-decide-write.
type MemoryStore struct {
	shards []*memoryShard
	policy Policy
	now    func() time.Time
}

// NewMemoryStore constructs an empty in-memory ledger.
func NewMemoryStore(policy Policy) *MemoryStore {
	shards := make([]*memoryShard, memoryShards)
	for i := range shards {
		shards[i] = &memoryShard{entries: make(map[orders.Key]Entry)}
	}
	return &MemoryStore{
		shards: shards,
		policy: policy,
		now:    time.Now,
	}
}

func (s *MemoryStore) shard(key orders.Key) *memoryShard {
	return s.shards[sharding.GetShardID(key.String(), len(s.shards))]
}

func (s *MemoryStore) Begin(ctx context.Context, key orders.Key, hash string) (BeginResult, error) {
	if err := ctx.Err(); err != nil {
		return BeginResult{}, err
	}
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.now().UTC()
	existing, ok := sh.entries[key]
	if !ok {
		entry := Entry{
			Key:          key,
			Status:       StatusProcessing,
			PayloadHash:  hash,
			ProcessingAt: now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		sh.entries[key] = entry
		return BeginResult{Outcome: Started, Entry: entry}, nil
	}

	decision := Decide(existing, hash, now, s.policy)
	if decision.Reprocess {
		existing = Reprocessed(existing, hash, now)
		sh.entries[key] = existing
	}
	return BeginResult{Outcome: decision.Outcome, Entry: existing}, nil
}

func (s *MemoryStore) FinalizeCreated(ctx context.Context, key orders.Key, docID, docNumber string) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[key]
	if !ok {
		return ErrNotFound
	}
	entry.Status = StatusCreated
	entry.ExternalDocID = docID
	entry.ExternalDocNumber = docNumber
	entry.ErrorMessage = ""
	entry.UpdatedAt = s.now().UTC()
	sh.entries[key] = entry
	return nil
}

func (s *MemoryStore) FinalizeFailed(ctx context.Context, key orders.Key, message string) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[key]
	if !ok {
		return ErrNotFound
	}
	if entry.Status == StatusCreated {
		return nil
	}
	entry.Status = StatusFailed
	entry.ErrorMessage = message
	entry.UpdatedAt = s.now().UTC()
	sh.entries[key] = entry
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key orders.Key) (Entry, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}
