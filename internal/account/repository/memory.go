package repository

import (
	"context"
	"sync"
	"time"

	"health-portal/backend/internal/account/domain"
	"health-portal/backend/internal/autherr"
)

// MemoryRepository is an in-process account repository for tests and single-process development.
// Uniqueness checks and writes happen under one lock, so they are atomic.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]domain.Account
	nowF func() time.Time
}

// NewMemoryRepository returns an empty in-memory account repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID: make(map[string]domain.Account),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID]; ok {
		return autherr.ErrDuplicateAccount
	}
	stored := *a
	stored.Email = domain.NormalizeEmail(stored.Email)
	if r.conflicts(stored, "") {
		return autherr.ErrDuplicateAccount
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.nowF()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	r.byID[stored.ID] = stored
	a.CreatedAt, a.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, autherr.ErrAccountNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.byID {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, autherr.ErrAccountNotFound
}

func (r *MemoryRepository) Update(ctx context.Context, id string, patch domain.Patch) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[id]
	if !ok {
		return nil, autherr.ErrAccountNotFound
	}
	if patch.Empty() {
		return &current, nil
	}
	next := patch.Apply(current)
	next.Email = domain.NormalizeEmail(next.Email)
	if r.conflicts(next, id) {
		return nil, autherr.ErrDuplicateAccount
	}
	next.UpdatedAt = r.nowF()
	r.byID[id] = next
	return &next, nil
}

func (r *MemoryRepository) ConsumeResetAuthorization(ctx context.Context, id, passwordHash string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[id]
	if !ok {
		return nil, autherr.ErrAccountNotFound
	}
	if !current.ResetAuthorized {
		return nil, autherr.ErrResetNotAuthorized
	}
	current.PasswordHash = passwordHash
	current.ResetAuthorized = false
	current.UpdatedAt = r.nowF()
	r.byID[id] = current
	return &current, nil
}

// conflicts reports whether another account (not skipID) holds a's email or username.
func (r *MemoryRepository) conflicts(a domain.Account, skipID string) bool {
	for id, other := range r.byID {
		if id == skipID {
			continue
		}
		if other.Email == a.Email || other.Username == a.Username {
			return true
		}
	}
	return false
}
