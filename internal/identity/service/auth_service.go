package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	accountdomain "health-portal/backend/internal/account/domain"
	accountrepo "health-portal/backend/internal/account/repository"
	"health-portal/backend/internal/audit"
	auditdomain "health-portal/backend/internal/audit/domain"
	"health-portal/backend/internal/autherr"
	"health-portal/backend/internal/challenge"
	challengedomain "health-portal/backend/internal/challenge/domain"
	"health-portal/backend/internal/notify"
	policyengine "health-portal/backend/internal/policy/engine"
	"health-portal/backend/internal/security"
	"health-portal/backend/internal/telemetry"
)

// Password length bounds. bcrypt ignores input beyond 72 bytes, so longer passwords are refused
// rather than silently truncated.
const (
	minPasswordLen = 8
	maxPasswordLen = 72
)

// RegisterInput is a self-service sign-up request. An empty Role requests "user".
type RegisterInput struct {
	Username string
	Email    string
	Phone    string
	Password string
	Role     accountdomain.Role
}

// AuthResult is the outcome of a completed login.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	Account   accountdomain.PublicAccount
}

// PendingCode describes a code that was issued and handed to the delivery collaborator.
type PendingCode struct {
	Purpose   challengedomain.Purpose
	ExpiresAt time.Time
}

// RegisterResult is the outcome of Register: the unverified account and its pending confirmation code.
type RegisterResult struct {
	Account accountdomain.PublicAccount
	Code    PendingCode
}

// ProfileUpdateResult reports whether a profile change was applied immediately or awaits a code
// sent to the new email address.
type ProfileUpdateResult struct {
	Applied bool
	Account accountdomain.PublicAccount
	Code    *PendingCode // set when Applied is false
}

// AuthService runs the identity flows: registration, OTP-gated and direct login, password reset,
// profile changes and bearer-token resolution.
type AuthService struct {
	accounts       accountrepo.Repository
	challenges     *challenge.Manager
	hasher         *security.Hasher
	tokens         *security.TokenIssuer
	sender         notify.CodeSender
	policy         policyengine.Evaluator
	audit          audit.AuditLogger
	metrics        *telemetry.AuthMetrics
	otpLoginTTL    time.Duration
	directLoginTTL time.Duration
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithRegistrationPolicy sets the evaluator consulted for the role requested at sign-up.
// Without one only the user role may self-register.
func WithRegistrationPolicy(p policyengine.Evaluator) Option {
	return func(s *AuthService) { s.policy = p }
}

// WithAuditLogger sets the sink for auth events.
func WithAuditLogger(l audit.AuditLogger) Option {
	return func(s *AuthService) {
		if l != nil {
			s.audit = l
		}
	}
}

// WithMetrics sets the counters updated by each flow.
func WithMetrics(m *telemetry.AuthMetrics) Option {
	return func(s *AuthService) { s.metrics = m }
}

// WithTokenTTLs sets session lifetimes for OTP-gated and direct logins. Non-positive values keep the defaults.
func WithTokenTTLs(otpLogin, directLogin time.Duration) Option {
	return func(s *AuthService) {
		if otpLogin > 0 {
			s.otpLoginTTL = otpLogin
		}
		if directLogin > 0 {
			s.directLoginTTL = directLogin
		}
	}
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	accounts accountrepo.Repository,
	challenges *challenge.Manager,
	hasher *security.Hasher,
	tokens *security.TokenIssuer,
	sender notify.CodeSender,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		accounts:       accounts,
		challenges:     challenges,
		hasher:         hasher,
		tokens:         tokens,
		sender:         sender,
		audit:          audit.Nop{},
		otpLoginTTL:    security.DefaultOTPLoginTTL,
		directLoginTTL: security.DefaultDirectLoginTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an active, unverified account and sends it a registration code.
// If the code cannot be delivered the account still exists; the caller can request a new code.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (_ *RegisterResult, err error) {
	ctx, f := s.begin(ctx, auditdomain.ActionRegister, challengedomain.PurposeRegistration)
	defer func() { f.end(err) }()

	email := accountdomain.NormalizeEmail(in.Email)
	role := in.Role
	if role == "" {
		role = accountdomain.RoleUser
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	a := &accountdomain.Account{
		ID:       uuid.New().String(),
		Username: strings.TrimSpace(in.Username),
		Email:    email,
		Phone:    strings.TrimSpace(in.Phone),
		Role:     role,
		Status:   accountdomain.StatusActive,
		// placeholder so Validate can run before the expensive hash
		PasswordHash: "-",
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkRole(ctx, a); err != nil {
		return nil, err
	}
	a.PasswordHash, err = s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}
	f.account(a.ID)

	pending, err := s.issueAndSend(ctx, a, challengedomain.PurposeRegistration, nil, a.Email)
	if err != nil {
		return nil, err
	}
	return &RegisterResult{Account: a.Public(), Code: *pending}, nil
}

// RequestRegistrationOTP issues a fresh registration code, replacing any pending one.
func (s *AuthService) RequestRegistrationOTP(ctx context.Context, email string) (_ *PendingCode, err error) {
	ctx, f := s.begin(ctx, auditdomain.ActionRegistrationCode, challengedomain.PurposeRegistration)
	defer func() { f.end(err) }()

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	f.account(a.ID)
	if a.Verified {
		return nil, autherr.Validation("account is already verified")
	}
	return s.issueAndSend(ctx, a, challengedomain.PurposeRegistration, nil, a.Email)
}

// VerifyRegistration redeems a registration code and marks the account verified.
func (s *AuthService) VerifyRegistration(ctx context.Context, email, code string) (_ *accountdomain.PublicAccount, err error) {
	ctx, f := s.begin(ctx, auditdomain.ActionVerifyRegistration, challengedomain.PurposeRegistration)
	defer func() { f.end(err) }()

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	f.account(a.ID)
	if _, err := s.verifyCode(ctx, a.Email, challengedomain.PurposeRegistration, code); err != nil {
		return nil, err
	}
	verified := true
	a, err = s.accounts.Update(ctx, a.ID, accountdomain.Patch{Verified: &verified})
	if err != nil {
		return nil, err
	}
	pub := a.Public()
	return &pub, nil
}

// LoginStart checks the password and sends a login code. Account status and verification are
// not consulted here; a missing account is reported before a wrong password.
func (s *AuthService) LoginStart(ctx context.Context, email, password string) (_ *PendingCode, err error) {
	ctx, f := s.begin(ctx, auditdomain.ActionLoginStart, challengedomain.PurposeLogin)
	defer func() { f.end(err) }()

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	f.account(a.ID)
	if err := s.checkPassword(ctx, a, password); err != nil {
		return nil, err
	}
	return s.issueAndSend(ctx, a, challengedomain.PurposeLogin, nil, a.Email)
}

// LoginVerify redeems a login code and issues a short-lived session token.
func (s *AuthService) LoginVerify(ctx context.Context, email, code string) (_ *AuthResult, err error) {
	ctx, f := s.begin(ctx, auditdomain.ActionLoginVerify, challengedomain.PurposeLogin)
	defer func() {
		s.metrics.Login(ctx, "otp", outcome(err))
		f.end(err)
	}()

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	f.account(a.ID)
	if _, err := s.verifyCode(ctx, a.Email, challengedomain.PurposeLogin, code); err != nil {
		return nil, err
	}
	return s.issueToken(a, s.otpLoginTTL)
}

// Login is the direct password login. Checks run in order: account exists, account active,
// password correct, email verified. Success yields a long-lived session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (_ *AuthResult, err error) {
	ctx, f := s.begin(ctx, auditdomain.ActionLogin, "")
	defer func() {
		s.metrics.Login(ctx, "password", outcome(err))
		f.end(err)
	}()

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	f.account(a.ID)
	if a.Status == accountdomain.StatusInactive {
		return nil, autherr.ErrAccountInactive
	}
	if err := s.checkPassword(ctx, a, password); err != nil {
		return nil, err
	}
	if !a.Verified {
		return nil, autherr.ErrAccountUnverified
	}
	return s.issueToken(a, s.directLoginTTL)
}

// RequestPasswordReset sends a password-reset code. Any authorization left over from an
// earlier, unfinished reset is revoked first.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (_ *PendingCode, err error) {
	ctx, f := s.begin(ctx, auditdomain.ActionPasswordResetCode, challengedomain.PurposePasswordReset)
	defer func() { f.end(err) }()

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	f.account(a.ID)
	if a.ResetAuthorized {
		revoked := false
		if a, err = s.accounts.Update(ctx, a.ID, accountdomain.Patch{ResetAuthorized: &revoked}); err != nil {
			return nil, err
		}
	}
	return s.issueAndSend(ctx, a, challengedomain.PurposePasswordReset, nil, a.Email)
}

// VerifyPasswordReset redeems a reset code and authorizes one password change.
func (s *AuthService) VerifyPasswordReset(ctx context.Context, email, code string) (err error) {
	ctx, f := s.begin(ctx, auditdomain.ActionVerifyPasswordReset, challengedomain.PurposePasswordReset)
	defer func() { f.end(err) }()

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	f.account(a.ID)
	if _, err := s.verifyCode(ctx, a.Email, challengedomain.PurposePasswordReset, code); err != nil {
		return err
	}
	authorized := true
	_, err = s.accounts.Update(ctx, a.ID, accountdomain.Patch{ResetAuthorized: &authorized})
	return err
}

// ResetPassword stores newPassword if a reset was authorized, then clears the authorization.
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword string) (err error) {
	ctx, f := s.begin(ctx, auditdomain.ActionResetPassword, challengedomain.PurposePasswordReset)
	defer func() { f.end(err) }()

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	f.account(a.ID)
	if !a.ResetAuthorized {
		return autherr.ErrResetNotAuthorized
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	// The flag is re-checked by the store; a concurrent reset may have consumed it since the read above.
	_, err = s.accounts.ConsumeResetAuthorization(ctx, a.ID, hash)
	return err
}

// RequestProfileUpdate applies changes to the account. When they move the account to a different
// email address, nothing is applied yet: a code is sent to the new address and the changes wait
// for VerifyProfileUpdate. A later request replaces the pending changes.
func (s *AuthService) RequestProfileUpdate(ctx context.Context, accountID string, changes accountdomain.ProfileChanges) (_ *ProfileUpdateResult, err error) {
	ctx, f := s.begin(ctx, auditdomain.ActionProfileUpdate, challengedomain.PurposeProfileUpdate)
	defer func() { f.end(err) }()

	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	f.account(a.ID)
	changes, err = normalizeChanges(changes)
	if err != nil {
		return nil, err
	}
	if changes.Email == "" || changes.Email == a.Email {
		changes.Email = ""
		patch := changes.Patch()
		if patch.Empty() {
			return nil, autherr.Validation("no profile changes")
		}
		updated, err := s.accounts.Update(ctx, a.ID, patch)
		if err != nil {
			return nil, err
		}
		return &ProfileUpdateResult{Applied: true, Account: updated.Public()}, nil
	}

	switch _, err := s.accounts.GetByEmail(ctx, changes.Email); {
	case err == nil:
		return nil, autherr.ErrDuplicateAccount
	case !errors.Is(err, autherr.ErrAccountNotFound):
		return nil, err
	}
	pending, err := s.issueAndSend(ctx, a, challengedomain.PurposeProfileUpdate,
		challengedomain.ProfileUpdate{Changes: changes}, changes.Email)
	if err != nil {
		return nil, err
	}
	return &ProfileUpdateResult{Account: a.Public(), Code: pending}, nil
}

// VerifyProfileUpdate redeems the code sent for a pending email change and applies all pending
// changes in a single update.
func (s *AuthService) VerifyProfileUpdate(ctx context.Context, accountID, code string) (_ *accountdomain.PublicAccount, err error) {
	ctx, f := s.begin(ctx, auditdomain.ActionVerifyProfileUpdate, challengedomain.PurposeProfileUpdate)
	defer func() { f.end(err) }()

	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	f.account(a.ID)
	payload, err := s.verifyCode(ctx, a.Email, challengedomain.PurposeProfileUpdate, code)
	if err != nil {
		return nil, err
	}
	pu, ok := payload.(challengedomain.ProfileUpdate)
	if !ok {
		return nil, autherr.ErrChallengeNotFound
	}
	updated, err := s.accounts.Update(ctx, a.ID, pu.Changes.Patch())
	if err != nil {
		return nil, err
	}
	pub := updated.Public()
	return &pub, nil
}

// Authenticate resolves a bearer session token to the account it was issued for.
// A token for an account that no longer exists is invalid; an inactive account is refused.
func (s *AuthService) Authenticate(ctx context.Context, token string) (_ *accountdomain.PublicAccount, err error) {
	ctx, span := telemetry.StartSpan(ctx, "auth.Authenticate")
	defer func() { telemetry.EndSpan(span, err) }()

	session, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	a, err := s.accounts.GetByID(ctx, session.AccountID)
	if errors.Is(err, autherr.ErrAccountNotFound) {
		return nil, autherr.Wrap(autherr.KindTokenInvalid, "token subject not found", err)
	}
	if err != nil {
		return nil, err
	}
	if a.Status == accountdomain.StatusInactive {
		return nil, autherr.ErrAccountInactive
	}
	pub := a.Public()
	return &pub, nil
}

// SetStatus activates or deactivates an account.
func (s *AuthService) SetStatus(ctx context.Context, accountID string, status accountdomain.Status) (_ *accountdomain.PublicAccount, err error) {
	ctx, f := s.begin(ctx, auditdomain.ActionStatusChange, "")
	defer func() { f.end(err) }()

	if !status.Valid() {
		return nil, autherr.Validation("status must be active or inactive")
	}
	a, err := s.accounts.Update(ctx, accountID, accountdomain.Patch{Status: &status})
	if err != nil {
		return nil, err
	}
	f.account(a.ID)
	pub := a.Public()
	return &pub, nil
}

func (s *AuthService) checkRole(ctx context.Context, a *accountdomain.Account) error {
	if s.policy == nil {
		if a.Role != accountdomain.RoleUser {
			return autherr.Validation("role cannot be self-assigned")
		}
		return nil
	}
	allowed, err := s.policy.AllowRegistration(ctx, policyengine.RegistrationInput{
		Email:         a.Email,
		Username:      a.Username,
		RequestedRole: a.Role,
	})
	if err != nil {
		return err
	}
	if !allowed {
		return autherr.Validation("role cannot be self-assigned")
	}
	return nil
}

func (s *AuthService) checkPassword(ctx context.Context, a *accountdomain.Account, password string) error {
	ok, err := s.hasher.Verify(ctx, password, a.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return autherr.ErrInvalidCredentials
	}
	return nil
}

// issueAndSend issues a code keyed by the account's current email and delivers it to "to".
// A delivery failure leaves the code issued.
func (s *AuthService) issueAndSend(ctx context.Context, a *accountdomain.Account, purpose challengedomain.Purpose, payload challengedomain.Payload, to string) (*PendingCode, error) {
	code, expiresAt, err := s.challenges.Issue(ctx, a.Email, purpose, payload)
	if err != nil {
		return nil, err
	}
	s.metrics.ChallengeIssued(ctx, string(purpose))
	err = s.sender.SendCode(ctx, notify.Message{
		To:        to,
		Name:      a.Username,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: expiresAt,
	})
	s.metrics.CodeDelivery(ctx, string(purpose), outcome(err))
	if err != nil {
		return nil, autherr.Wrap(autherr.KindDeliveryFailed, "failed to deliver code", err)
	}
	return &PendingCode{Purpose: purpose, ExpiresAt: expiresAt}, nil
}

func (s *AuthService) verifyCode(ctx context.Context, subject string, purpose challengedomain.Purpose, code string) (challengedomain.Payload, error) {
	payload, err := s.challenges.Verify(ctx, subject, purpose, code)
	s.metrics.ChallengeVerified(ctx, string(purpose), outcome(err))
	return payload, err
}

func (s *AuthService) issueToken(a *accountdomain.Account, ttl time.Duration) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(a.ID, string(a.Role), ttl)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresAt: expiresAt, Account: a.Public()}, nil
}

// flow ties a span and an audit event to one service call.
type flow struct {
	s     *AuthService
	ctx   context.Context
	span  trace.Span
	event auditdomain.Event
}

func (s *AuthService) begin(ctx context.Context, action auditdomain.Action, purpose challengedomain.Purpose) (context.Context, *flow) {
	var attrs []attribute.KeyValue
	if purpose != "" {
		attrs = append(attrs, attribute.String(telemetry.AttrPurpose, string(purpose)))
	}
	ctx, span := telemetry.StartSpan(ctx, "auth."+string(action), attrs...)
	return ctx, &flow{
		s:     s,
		ctx:   ctx,
		span:  span,
		event: auditdomain.Event{Action: action, Purpose: string(purpose)},
	}
}

func (f *flow) account(id string) {
	f.event.AccountID = id
	f.span.SetAttributes(attribute.String(telemetry.AttrAccountID, id))
}

func (f *flow) end(err error) {
	f.event.Outcome = auditdomain.OutcomeSuccess
	if err != nil {
		f.event.Outcome = auditdomain.OutcomeFailure
		f.event.Reason = reason(err)
	}
	f.s.audit.LogEvent(f.ctx, f.event)
	telemetry.EndSpan(f.span, err)
}

// outcome is the metric label for err: "success", the error kind, or "error".
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return reason(err)
}

func reason(err error) string {
	if kind := autherr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return autherr.Validation("password must be at least 8 characters")
	}
	if len(password) > maxPasswordLen {
		return autherr.Validation("password must be at most 72 bytes")
	}
	return nil
}

// normalizeChanges trims the requested changes and validates a new email.
func normalizeChanges(c accountdomain.ProfileChanges) (accountdomain.ProfileChanges, error) {
	c.Email = accountdomain.NormalizeEmail(c.Email)
	c.Username = strings.TrimSpace(c.Username)
	c.Phone = strings.TrimSpace(c.Phone)
	c.ProfilePictureRef = strings.TrimSpace(c.ProfilePictureRef)
	if c.Email != "" {
		if err := accountdomain.ValidateEmail(c.Email); err != nil {
			return c, err
		}
	}
	return c, nil
}
