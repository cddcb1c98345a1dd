package engine

import (
	"context"

	accountdomain "health-portal/backend/internal/account/domain"
)

// RegistrationInput is what the registration policy sees about a sign-up attempt.
type RegistrationInput struct {
	Email         string
	Username      string
	RequestedRole accountdomain.Role
}

// Evaluator decides whether a self-registration may take the requested role.
type Evaluator interface {
	AllowRegistration(ctx context.Context, in RegistrationInput) (bool, error)
}
