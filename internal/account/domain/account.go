package domain

import (
	"regexp"
	"strings"
	"time"

	"health-portal/backend/internal/autherr"
)

// Account is the portal identity record.
type Account struct {
	ID                string
	Username          string
	Email             string
	Phone             string
	PasswordHash      string // never leaves the identity service; see Public
	Role              Role
	Status            Status
	Verified          bool
	ResetAuthorized   bool // set by a verified password-reset code, cleared when the password changes
	ProfilePictureRef string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lower-cases an email so lookups and uniqueness are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail returns a validation error if email is empty or malformed.
func ValidateEmail(email string) error {
	if email == "" {
		return autherr.Validation("email is required")
	}
	if !emailPattern.MatchString(email) {
		return autherr.Validation("invalid email format")
	}
	return nil
}

// Validate validates the account for persistence. Returns the first validation failure.
// Empty role and status default to user and active.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Username) == "" {
		return autherr.Validation("username is required")
	}
	if err := ValidateEmail(a.Email); err != nil {
		return err
	}
	if strings.TrimSpace(a.Phone) == "" {
		return autherr.Validation("phone is required")
	}
	if a.PasswordHash == "" {
		return autherr.Validation("password hash is required")
	}
	if a.Role == "" {
		a.Role = RoleUser
	}
	if !a.Role.Valid() {
		return autherr.Validation("role must be user or admin")
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	if !a.Status.Valid() {
		return autherr.Validation("status must be active or inactive")
	}
	return nil
}

// PublicAccount is the account view safe to hand to callers outside the identity core.
type PublicAccount struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	Role              Role      `json:"role"`
	Status            Status    `json:"status"`
	Verified          bool      `json:"verified"`
	ProfilePictureRef string    `json:"profile_picture,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Public returns the account without credential material.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:                a.ID,
		Username:          a.Username,
		Email:             a.Email,
		Phone:             a.Phone,
		Role:              a.Role,
		Status:            a.Status,
		Verified:          a.Verified,
		ProfilePictureRef: a.ProfilePictureRef,
		CreatedAt:         a.CreatedAt,
	}
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Username          *string
	Email             *string
	Phone             *string
	PasswordHash      *string
	Status            *Status
	Verified          *bool
	ResetAuthorized   *bool
	ProfilePictureRef *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Username == nil && p.Email == nil && p.Phone == nil && p.PasswordHash == nil &&
		p.Status == nil && p.Verified == nil && p.ResetAuthorized == nil && p.ProfilePictureRef == nil
}

// Apply merges the patch into a copy of a and returns it. a is not modified.
func (p Patch) Apply(a Account) Account {
	if p.Username != nil {
		a.Username = *p.Username
	}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.Phone != nil {
		a.Phone = *p.Phone
	}
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Verified != nil {
		a.Verified = *p.Verified
	}
	if p.ResetAuthorized != nil {
		a.ResetAuthorized = *p.ResetAuthorized
	}
	if p.ProfilePictureRef != nil {
		a.ProfilePictureRef = *p.ProfilePictureRef
	}
	return a
}

// ProfileChanges are the user-editable profile fields. Empty strings mean "keep current".
type ProfileChanges struct {
	Email             string `json:"email,omitempty"`
	Username          string `json:"username,omitempty"`
	Phone             string `json:"phone,omitempty"`
	ProfilePictureRef string `json:"profile_picture,omitempty"`
}

// Patch converts the changes into a repository patch.
func (c ProfileChanges) Patch() Patch {
	var p Patch
	if c.Email != "" {
		email := NormalizeEmail(c.Email)
		p.Email = &email
	}
	if c.Username != "" {
		username := strings.TrimSpace(c.Username)
		p.Username = &username
	}
	if c.Phone != "" {
		phone := strings.TrimSpace(c.Phone)
		p.Phone = &phone
	}
	if c.ProfilePictureRef != "" {
		ref := c.ProfilePictureRef
		p.ProfilePictureRef = &ref
	}
	return p
}
