package audit

import (
	"context"
	"time"

	"health-portal/backend/internal/audit/domain"
)

// emitTimeout bounds a single async write. ShutdownDrainDuration is derived from it.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the server stops before shutting down the
// OTel providers, so in-flight async audit writes can finish.
const ShutdownDrainDuration = emitTimeout

// Async wraps an AuditLogger so LogEvent returns immediately and the write runs in a goroutine.
// The write keeps the request's values but not its cancellation.
type Async struct {
	next AuditLogger
}

// NewAsync returns next wrapped for fire-and-forget logging. A nil next yields a no-op logger.
func NewAsync(next AuditLogger) AuditLogger {
	if next == nil {
		return Nop{}
	}
	return &Async{next: next}
}

func (a *Async) LogEvent(ctx context.Context, e domain.Event) {
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		a.next.LogEvent(emitCtx, e)
	}()
}
