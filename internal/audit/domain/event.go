package domain

import "time"

// Event is one authentication event. It never carries codes, passwords or tokens.
type Event struct {
	ID        string
	AccountID string // empty when the subject did not resolve to an account
	Action    Action
	Purpose   string // challenge purpose, when the action involves a code
	Outcome   Outcome
	Reason    string // error kind on failure
	CreatedAt time.Time
}

// Action names an identity operation.
type Action string

const (
	ActionRegister            Action = "register"
	ActionRegistrationCode    Action = "registration_code"
	ActionVerifyRegistration  Action = "verify_registration"
	ActionLoginStart          Action = "login_start"
	ActionLoginVerify         Action = "login_verify"
	ActionLogin               Action = "login"
	ActionPasswordResetCode   Action = "password_reset_code"
	ActionVerifyPasswordReset Action = "verify_password_reset"
	ActionResetPassword       Action = "reset_password"
	ActionProfileUpdate       Action = "profile_update"
	ActionVerifyProfileUpdate Action = "verify_profile_update"
	ActionStatusChange        Action = "status_change"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)
