package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps encoded snapshots in a mutex-guarded map. Default for
// tests and single-instance deployments.
type MemoryStore struct {
	codec codec
	ttl   time.Duration
	clock Clock

	mu       sync.RWMutex
	payloads map[string][]byte
}

type MemoryOption func(*MemoryStore)

func WithMemoryClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewMemoryStore(cipher *Cipher, ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		codec:    codec{cipher: cipher},
		ttl:      ttl,
		clock:    time.Now,
		payloads: make(map[string][]byte),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) Save(ctx context.Context, key string, snap *Snapshot) error {
	payload, err := s.codec.encode(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.payloads[key] = payload
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, key string) (*Snapshot, error) {
	s.mu.RLock()
	payload, ok := s.payloads[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	snap, err := s.codec.decode(payload)
	if err != nil {
		return nil, err
	}
	if s.clock().Sub(snap.SavedAt) > s.ttl {
		s.mu.Lock()
		delete(s.payloads, key)
		s.mu.Unlock()
		return nil, nil
	}
	return snap, nil
}

func (s *MemoryStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.payloads, key)
	s.mu.Unlock()
	return nil
}

// rawPayload exposes the stored bytes so tests can assert encryption at
// rest.
func (s *MemoryStore) rawPayload(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.payloads[key]
	return payload, ok
}
