package repository

import (
	"context"

	"health-portal/backend/internal/account/domain"
)

// Repository defines persistence for accounts.
// Missing accounts are reported as autherr.ErrAccountNotFound and uniqueness violations
// on email or username as autherr.ErrDuplicateAccount.
type Repository interface {
	Create(ctx context.Context, a *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	// Update merges patch into the stored account and returns the result.
	Update(ctx context.Context, id string, patch domain.Patch) (*domain.Account, error)
	// ConsumeResetAuthorization stores passwordHash and clears ResetAuthorized in one step, only
	// if the flag is still set. Returns autherr.ErrResetNotAuthorized otherwise.
	ConsumeResetAuthorization(ctx context.Context, id, passwordHash string) (*domain.Account, error)
}
