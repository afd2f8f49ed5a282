package store

import (
	"context"
	"sync"

	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/staking"
)

// MemoryStore implements Store in memory.
// Thread-safe via RWMutex.
type MemoryStore struct {
	mu          sync.RWMutex
	reputations map[string][]byte
	stakes      map[string][]byte
	changes     map[string][]staking.TierChange
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reputations: make(map[string][]byte),
		stakes:      make(map[string][]byte),
		changes:     make(map[string][]staking.TierChange),
	}
}

func (s *MemoryStore) Reputation(_ context.Context, account string) (reputation.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.reputations[account]
	if !ok {
		return reputation.Record{}, nil
	}
	return decodeReputation(data)
}

func (s *MemoryStore) Stake(_ context.Context, account string) (staking.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.stakes[account]
	if !ok {
		return staking.Record{}, nil
	}
	return decodeStake(data)
}

// Commit encodes everything before taking the lock, so a failed encode
// leaves the store untouched.
func (s *MemoryStore) Commit(_ context.Context, m Mutation) error {
	var repData, stakeData []byte
	var err error
	if m.Reputation != nil {
		if repData, err = m.Reputation.MarshalBinary(); err != nil {
			return err
		}
	}
	if m.Stake != nil {
		if stakeData, err = m.Stake.MarshalBinary(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if repData != nil {
		s.reputations[m.Account] = repData
	}
	if stakeData != nil {
		s.stakes[m.Account] = stakeData
	}
	if m.TierChange != nil {
		s.changes[m.Account] = append(s.changes[m.Account], *m.TierChange)
	}
	return nil
}

func (s *MemoryStore) TierChanges(_ context.Context, account string) ([]staking.TierChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// return copy to avoid race on append outside lock
	return append([]staking.TierChange{}, s.changes[account]...), nil
}

func (s *MemoryStore) Close() error { return nil }
