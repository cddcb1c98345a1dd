// Package audit records authentication events to the auth_events table and as OpenTelemetry log records.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	otellog "go.opentelemetry.io/otel/log"

	"health-portal/backend/internal/audit/domain"
	auditrepo "health-portal/backend/internal/audit/repository"
)

// AuditLogger records one auth event. LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, e domain.Event)
}

// recordEmitter is the part of otellog.Logger the audit logger uses.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// Logger implements AuditLogger. Either sink may be nil.
type Logger struct {
	repo    auditrepo.Repository
	emitter recordEmitter
	nowF    func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and emits to logger.
func NewLogger(repo auditrepo.Repository, logger otellog.Logger) *Logger {
	l := &Logger{repo: repo, nowF: func() time.Time { return time.Now().UTC() }}
	if logger != nil {
		l.emitter = logger
	}
	return l
}

// LogEvent fills ID and CreatedAt when unset and writes the event to every configured sink.
func (l *Logger) LogEvent(ctx context.Context, e domain.Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.nowF()
	}
	if l.emitter != nil {
		l.emitter.Emit(ctx, toRecord(e))
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, &e); err != nil {
			log.Printf("audit: failed to log event %s/%s: %v", e.Action, e.Outcome, err)
		}
	}
}

func toRecord(e domain.Event) otellog.Record {
	rec := otellog.Record{}
	rec.SetTimestamp(e.CreatedAt)
	rec.SetEventName("auth." + string(e.Action))
	rec.SetBody(otellog.StringValue(string(e.Action) + " " + string(e.Outcome)))
	if e.Outcome == domain.OutcomeFailure {
		rec.SetSeverity(otellog.SeverityWarn)
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
	}
	rec.AddAttributes(
		otellog.String("event_id", e.ID),
		otellog.String("action", string(e.Action)),
		otellog.String("outcome", string(e.Outcome)),
	)
	if e.AccountID != "" {
		rec.AddAttributes(otellog.String("account_id", e.AccountID))
	}
	if e.Purpose != "" {
		rec.AddAttributes(otellog.String("purpose", e.Purpose))
	}
	if e.Reason != "" {
		rec.AddAttributes(otellog.String("reason", e.Reason))
	}
	return rec
}

// Nop discards events.
type Nop struct{}

func (Nop) LogEvent(context.Context, domain.Event) {}
