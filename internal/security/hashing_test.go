package security

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost, 2)
	ctx := context.Background()
	hash, err := h.Hash(ctx, "secret123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "secret123" {
		t.Fatalf("Hash returned %q", hash)
	}
	ok, err := h.Verify(ctx, "secret123", hash)
	if err != nil || !ok {
		t.Fatalf("Verify correct password = %v, %v", ok, err)
	}
}

func TestHasher_VerifyWrongPassword(t *testing.T) {
	h := NewHasher(bcrypt.MinCost, 1)
	ctx := context.Background()
	hash, _ := h.Hash(ctx, "secret123")
	for _, wrong := range []string{"wrong", "secret1234", "Secret123", ""} {
		ok, err := h.Verify(ctx, wrong, hash)
		if err != nil {
			t.Fatalf("Verify(%q): %v", wrong, err)
		}
		if ok {
			t.Errorf("Verify(%q) should be false", wrong)
		}
	}
}

func TestHasher_SaltedDigestsDiffer(t *testing.T) {
	h := NewHasher(bcrypt.MinCost, 1)
	ctx := context.Background()
	a, _ := h.Hash(ctx, "same-input")
	b, _ := h.Hash(ctx, "same-input")
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
	for _, d := range []string{a, b} {
		if ok, _ := h.Verify(ctx, "same-input", d); !ok {
			t.Error("each digest should verify")
		}
	}
}

func TestHasher_VerifyMalformedHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost, 1)
	ok, err := h.Verify(context.Background(), "secret", "not-a-bcrypt-hash")
	if ok || err == nil {
		t.Errorf("Verify malformed = %v, %v; want false and error", ok, err)
	}
}

func TestHasher_Cost(t *testing.T) {
	h := NewHasher(12, 1)
	if h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	if h0 := NewHasher(0, 1); h0.Cost != bcrypt.DefaultCost {
		t.Errorf("zero cost should select DefaultCost, got %d", h0.Cost)
	}
	if h1 := NewHasher(1, 1); h1.Cost != bcrypt.MinCost {
		t.Errorf("cost below min should clamp to MinCost, got %d", h1.Cost)
	}
	if h2 := NewHasher(99, 1); h2.Cost != bcrypt.MaxCost {
		t.Errorf("cost above max should clamp to MaxCost, got %d", h2.Cost)
	}
	if hc := NewHasher(4, 0); hc.Concurrency < 1 {
		t.Errorf("zero concurrency should default to GOMAXPROCS, got %d", hc.Concurrency)
	}
}

func TestHasher_AcquireHonoursContext(t *testing.T) {
	h := NewHasher(bcrypt.MinCost, 1)
	// Hold the only slot so the next call must wait.
	if err := h.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Hash(ctx, "secret"); err == nil {
		t.Fatal("Hash should fail when the pool is full and the context ends")
	}
	if _, err := h.Verify(ctx, "secret", "$2a$04$x"); err == nil {
		t.Fatal("Verify should fail when the pool is full and the context ends")
	}
}

func TestHasher_ConcurrentUse(t *testing.T) {
	h := NewHasher(bcrypt.MinCost, 2)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hash, err := h.Hash(ctx, "pw")
			if err != nil {
				errs <- err
				return
			}
			ok, err := h.Verify(ctx, "pw", hash)
			if err != nil {
				errs <- err
				return
			}
			if !ok {
				errs <- errors.New("digest did not verify")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent hash/verify failed: %v", err)
	}
}
