package security

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
//
// bcrypt is CPU-bound, so at most Concurrency hashes run at once; further callers wait
// on a semaphore (or give up when their context ends) instead of piling onto the scheduler.
type Hasher struct {
	Cost        int
	Concurrency int
	sem         *semaphore.Weighted
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31) and concurrency bound.
// A non-positive cost selects bcrypt.DefaultCost; a non-positive concurrency selects GOMAXPROCS.
func NewHasher(cost, concurrency int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Hasher{
		Cost:        cost,
		Concurrency: concurrency,
		sem:         semaphore.NewWeighted(int64(concurrency)),
	}
}

// Hash produces a salted bcrypt hash of password; two calls with the same input differ.
// Returns the hash as a string suitable for storage.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether password produced hash. The comparison is constant-time.
// A mismatch is (false, nil); a malformed hash or an ended context is returned as an error.
func (h *Hasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}
