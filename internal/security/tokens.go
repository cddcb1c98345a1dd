package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"health-portal/backend/internal/autherr"
)

// Session token lifetimes. OTP-gated logins get the short tier; direct password logins
// the long one.
const (
	DefaultOTPLoginTTL    = time.Hour
	DefaultDirectLoginTTL = 7 * 24 * time.Hour
)

// SessionClaims holds JWT claims for a portal session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Session is the verified content of a session token.
type Session struct {
	AccountID string
	Role      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer mints and verifies signed, time-limited session tokens. It keeps no state
// besides its keys, so it is safe for concurrent use.
type TokenIssuer struct {
	key      SigningKey
	issuer   string
	audience string
	nowF     func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenClock overrides the clock used for iat/exp and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(i *TokenIssuer) { i.nowF = now }
}

// NewTokenIssuer returns a TokenIssuer that signs with key. issuer and audience are set on
// every token and required on verification.
func NewTokenIssuer(key SigningKey, issuer, audience string, opts ...TokenOption) *TokenIssuer {
	i := &TokenIssuer{
		key:      key,
		issuer:   issuer,
		audience: audience,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue signs a token for accountID and role valid for ttl.
// Returns the token string and its expiration time.
func (i *TokenIssuer) Issue(accountID, role string, ttl time.Duration) (string, time.Time, error) {
	if accountID == "" || ttl <= 0 {
		return "", time.Time{}, autherr.Validation("token requires an account id and a positive ttl")
	}
	if i.key.method == nil {
		return "", time.Time{}, ErrInvalidKey
	}
	now := i.nowF()
	expiresAt := now.Add(ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	token, err := jwt.NewWithClaims(i.key.method, claims).SignedString(i.key.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.ExpiresAt.Time, nil
}

// Verify parses and validates the token (alg, signature, exp, iss, aud).
// Returns autherr.ErrTokenExpired once now >= exp and autherr.ErrTokenInvalid for anything else wrong.
func (i *TokenIssuer) Verify(tokenString string) (*Session, error) {
	if i.key.method == nil {
		return nil, ErrInvalidKey
	}
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{},
		func(*jwt.Token) (interface{}, error) { return i.key.verifyKey, nil },
		jwt.WithValidMethods([]string{i.key.method.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.nowF),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherr.ErrTokenExpired
		}
		return nil, autherr.Wrap(autherr.KindTokenInvalid, "invalid token", err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, autherr.ErrTokenInvalid
	}
	s := &Session{
		AccountID: claims.Subject,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	return s, nil
}
