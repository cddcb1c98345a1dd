package challenge

import (
	"context"
	"strings"
	"time"

	"health-portal/backend/internal/autherr"
	"health-portal/backend/internal/challenge/domain"
)

// DefaultTTL is how long an issued code stays redeemable.
const DefaultTTL = 5 * time.Minute

// Manager issues and redeems one-time codes on top of a Store.
type Manager struct {
	store Store
	ttl   time.Duration
	nowF  func() time.Time
	genF  func() (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the code lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock sets the clock used for expiry. Used by tests.
func WithClock(nowF func() time.Time) Option {
	return func(m *Manager) {
		if nowF != nil {
			m.nowF = nowF
		}
	}
}

// NewManager returns a Manager backed by store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		ttl:   DefaultTTL,
		nowF:  func() time.Time { return time.Now().UTC() },
		genF:  GenerateCode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured code lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue creates a fresh code for (subject, purpose), replacing any pending one, and returns
// the plaintext code for delivery. Only profile_update accepts (and requires) a payload.
func (m *Manager) Issue(ctx context.Context, subject string, purpose domain.Purpose, payload domain.Payload) (string, time.Time, error) {
	key, err := newKey(subject, purpose)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := checkPayload(purpose, payload); err != nil {
		return "", time.Time{}, err
	}
	code, err := m.genF()
	if err != nil {
		return "", time.Time{}, err
	}
	// Millisecond precision is what the Redis record keeps; both stores then expire at the same instant.
	now := m.nowF().Truncate(time.Millisecond)
	c := &domain.Challenge{
		Key:       key,
		CodeHash:  HashCode(code),
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl).Truncate(time.Millisecond),
	}
	if err := m.store.Put(ctx, c); err != nil {
		return "", time.Time{}, err
	}
	return code, c.ExpiresAt, nil
}

// Verify redeems code for (subject, purpose). On success the challenge is consumed and its
// payload (nil for every purpose except profile_update) is returned.
func (m *Manager) Verify(ctx context.Context, subject string, purpose domain.Purpose, code string) (domain.Payload, error) {
	key, err := newKey(subject, purpose)
	if err != nil {
		return nil, err
	}
	c, err := m.store.GetAndRemoveIfValid(ctx, key, HashCode(strings.TrimSpace(code)), m.nowF())
	if err != nil {
		return nil, err
	}
	return c.Payload, nil
}

func newKey(subject string, purpose domain.Purpose) (domain.Key, error) {
	if !purpose.Valid() {
		return domain.Key{}, autherr.Validation("unknown challenge purpose")
	}
	key := domain.NewKey(subject, purpose)
	if key.Subject == "" {
		return domain.Key{}, autherr.Validation("challenge subject is required")
	}
	return key, nil
}

func checkPayload(purpose domain.Purpose, payload domain.Payload) error {
	if purpose != domain.PurposeProfileUpdate {
		if payload != nil {
			return autherr.Validation("payload is only allowed for profile_update")
		}
		return nil
	}
	if _, ok := payload.(domain.ProfileUpdate); !ok {
		return autherr.Validation("profile_update requires profile changes")
	}
	return nil
}
