package domain

import (
	"strings"
	"time"

	accountdomain "health-portal/backend/internal/account/domain"
)

// Purpose is the flow a challenge belongs to.
type Purpose string

const (
	PurposeRegistration  Purpose = "registration"
	PurposeLogin         Purpose = "login"
	PurposePasswordReset Purpose = "password_reset"
	PurposeProfileUpdate Purpose = "profile_update"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeRegistration, PurposeLogin, PurposePasswordReset, PurposeProfileUpdate:
		return true
	}
	return false
}

// Key identifies a challenge slot. At most one live challenge exists per key.
type Key struct {
	Subject string
	Purpose Purpose
}

// NewKey returns a key with the subject normalized (trimmed, lower-cased).
func NewKey(subject string, purpose Purpose) Key {
	return Key{Subject: strings.ToLower(strings.TrimSpace(subject)), Purpose: purpose}
}

func (k Key) String() string {
	return string(k.Purpose) + ":" + k.Subject
}

// Payload is purpose-specific data stored with a challenge.
// ProfileUpdate is the only payload type; other purposes carry nil.
type Payload interface {
	Purpose() Purpose
}

// ProfileUpdate holds the pending profile changes confirmed by a profile_update code.
type ProfileUpdate struct {
	Changes accountdomain.ProfileChanges
}

func (ProfileUpdate) Purpose() Purpose { return PurposeProfileUpdate }

// Challenge is a pending one-time code. Consumption removes it from the store.
type Challenge struct {
	Key        Key
	CodeHash   string // hex SHA-256 of the code
	// Superseded holds hashes of codes this challenge replaced, newest first, so a code
	// from an overwritten challenge reads as not found rather than as a wrong code.
	Superseded []string
	Payload    Payload
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// MaxSuperseded bounds how many replaced code hashes a challenge remembers.
const MaxSuperseded = 5

// Supersede records that c replaces prev.
func (c *Challenge) Supersede(prev *Challenge) {
	hashes := append([]string{prev.CodeHash}, prev.Superseded...)
	if len(hashes) > MaxSuperseded {
		hashes = hashes[:MaxSuperseded]
	}
	c.Superseded = hashes
}

// Expired reports whether the challenge is no longer redeemable at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ProfileChanges returns the profile payload, if the challenge carries one.
func (c *Challenge) ProfileChanges() (accountdomain.ProfileChanges, bool) {
	p, ok := c.Payload.(ProfileUpdate)
	if !ok {
		return accountdomain.ProfileChanges{}, false
	}
	return p.Changes, true
}
