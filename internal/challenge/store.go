// Package challenge manages one-time verification codes: issuing, storing and redeeming them.
package challenge

import (
	"context"
	"log"
	"sync"
	"time"

	"health-portal/backend/internal/autherr"
	"health-portal/backend/internal/challenge/domain"
)

// Store persists pending challenges. Implementations must make GetAndRemoveIfValid atomic per key:
// of two concurrent calls with the correct code hash exactly one succeeds.
type Store interface {
	// Put stores c under c.Key, replacing any existing challenge for that key and
	// remembering the replaced code hash.
	Put(ctx context.Context, c *domain.Challenge) error
	// GetAndRemoveIfValid redeems the challenge at key. It returns ErrChallengeNotFound if none exists
	// or codeHash belongs to a challenge that was overwritten, ErrChallengeExpired (after removing it)
	// if now >= ExpiresAt, and ErrCodeMismatch (keeping it) if codeHash does not match.
	// On success the challenge is removed and returned.
	GetAndRemoveIfValid(ctx context.Context, key domain.Key, codeHash string, now time.Time) (*domain.Challenge, error)
}

// MemoryStore is an in-process Store. Expired entries are dropped lazily on access and by Sweep.
type MemoryStore struct {
	mu sync.Mutex
	m  map[domain.Key]domain.Challenge
}

// NewMemoryStore returns an empty in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[domain.Key]domain.Challenge)}
}

func (s *MemoryStore) Put(ctx context.Context, c *domain.Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *c
	if prev, ok := s.m[c.Key]; ok {
		stored.Supersede(&prev)
	}
	s.m[c.Key] = stored
	return nil
}

func (s *MemoryStore) GetAndRemoveIfValid(ctx context.Context, key domain.Key, codeHash string, now time.Time) (*domain.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[key]
	if !ok {
		return nil, autherr.ErrChallengeNotFound
	}
	if c.Expired(now) {
		delete(s.m, key)
		return nil, autherr.ErrChallengeExpired
	}
	if !hashEqual(c.CodeHash, codeHash) {
		if superseded(c.Superseded, codeHash) {
			return nil, autherr.ErrChallengeNotFound
		}
		return nil, autherr.ErrCodeMismatch
	}
	delete(s.m, key)
	return &c, nil
}

// Len returns the number of stored challenges, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Sweep removes every challenge expired at now and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, c := range s.m {
		if c.Expired(now) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

// RunJanitor sweeps expired challenges every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration, nowF func() time.Time) {
	if interval <= 0 {
		interval = time.Minute
	}
	if nowF == nil {
		nowF = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(nowF()); n > 0 {
				log.Printf("challenge: swept %d expired challenges", n)
			}
		}
	}
}
