// Package notify delivers one-time codes to account holders.
package notify

import (
	"context"
	"fmt"
	"time"

	"health-portal/backend/internal/challenge/domain"
)

// Message is one code delivery. Code is plaintext and must not be logged.
type Message struct {
	To        string
	Name      string
	Purpose   domain.Purpose
	Code      string
	ExpiresAt time.Time
}

// CodeSender delivers a code to its recipient. Implementations do not retry.
type CodeSender interface {
	SendCode(ctx context.Context, msg Message) error
}

// Subject returns the mail subject line for the message purpose.
func (m Message) Subject() string {
	switch m.Purpose {
	case domain.PurposeRegistration:
		return "Confirm your Health Portal account"
	case domain.PurposeLogin:
		return "Your Health Portal sign-in code"
	case domain.PurposePasswordReset:
		return "Reset your Health Portal password"
	case domain.PurposeProfileUpdate:
		return "Confirm your new Health Portal email"
	default:
		return "Your Health Portal code"
	}
}

// Body returns the plain-text mail body.
func (m Message) Body(now time.Time) string {
	name := m.Name
	if name == "" {
		name = "there"
	}
	valid := m.ExpiresAt.Sub(now).Round(time.Minute)
	if valid < time.Minute {
		valid = time.Minute
	}
	return fmt.Sprintf("Hello %s,\n\nYour verification code is %s.\nIt is valid for %d minutes. "+
		"If you did not request it, ignore this email.\n", name, m.Code, int(valid.Minutes()))
}
