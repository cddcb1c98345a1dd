// Package telemetry holds the portal's OpenTelemetry instruments.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for identity metrics.
const MeterName = "health-portal/backend/identity"

// AuthMetrics counts challenge and login outcomes. A nil *AuthMetrics records nothing.
type AuthMetrics struct {
	challengesIssued   metric.Int64Counter
	challengesVerified metric.Int64Counter
	logins             metric.Int64Counter
	codeDelivery       metric.Int64Counter
}

// NewAuthMetrics registers the identity instruments on meter.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	issued, err := meter.Int64Counter("portal.challenges.issued",
		metric.WithDescription("One-time codes issued, by purpose."))
	if err != nil {
		return nil, err
	}
	verified, err := meter.Int64Counter("portal.challenges.verified",
		metric.WithDescription("Code verification attempts, by purpose and outcome."))
	if err != nil {
		return nil, err
	}
	logins, err := meter.Int64Counter("portal.logins",
		metric.WithDescription("Completed login attempts, by method and outcome."))
	if err != nil {
		return nil, err
	}
	delivery, err := meter.Int64Counter("portal.code_delivery",
		metric.WithDescription("Code deliveries, by purpose and outcome."))
	if err != nil {
		return nil, err
	}
	return &AuthMetrics{
		challengesIssued:   issued,
		challengesVerified: verified,
		logins:             logins,
		codeDelivery:       delivery,
	}, nil
}

func (m *AuthMetrics) ChallengeIssued(ctx context.Context, purpose string) {
	if m == nil {
		return
	}
	m.challengesIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("purpose", purpose)))
}

// ChallengeVerified records a verification attempt. outcome is "success" or an error kind.
func (m *AuthMetrics) ChallengeVerified(ctx context.Context, purpose, outcome string) {
	if m == nil {
		return
	}
	m.challengesVerified.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("outcome", outcome),
	))
}

// Login records a login attempt. method is "otp" or "password".
func (m *AuthMetrics) Login(ctx context.Context, method, outcome string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
}

func (m *AuthMetrics) CodeDelivery(ctx context.Context, purpose, outcome string) {
	if m == nil {
		return
	}
	m.codeDelivery.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("outcome", outcome),
	))
}
