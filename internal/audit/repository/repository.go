package repository

import (
	"context"

	"health-portal/backend/internal/audit/domain"
)

// Repository defines persistence for auth events.
type Repository interface {
	Create(ctx context.Context, e *domain.Event) error
	// ListByAccount returns the newest events for accountID first.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Event, error)
}
