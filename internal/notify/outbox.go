package notify

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"health-portal/backend/internal/challenge/domain"
)

// DevOutbox keeps the latest code per (recipient, purpose) in memory instead of sending it.
// Development only: config refuses it in production.
type DevOutbox struct {
	mu   sync.RWMutex
	m    map[domain.Key]Message
	nowF func() time.Time
}

// NewDevOutbox returns an empty outbox.
func NewDevOutbox() *DevOutbox {
	return &DevOutbox{
		m:    make(map[domain.Key]Message),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

func (o *DevOutbox) SendCode(ctx context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.m[domain.NewKey(msg.To, msg.Purpose)] = msg
	log.Printf("notify: dev outbox holds %s code for %s", msg.Purpose, redact(msg.To))
	return nil
}

// Latest returns the last code sent to (to, purpose) if it has not expired.
func (o *DevOutbox) Latest(to string, purpose domain.Purpose) (string, bool) {
	key := domain.NewKey(to, purpose)
	o.mu.RLock()
	msg, ok := o.m[key]
	o.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !msg.ExpiresAt.After(o.nowF()) {
		o.mu.Lock()
		delete(o.m, key)
		o.mu.Unlock()
		return "", false
	}
	return msg.Code, true
}

// redact keeps the first character and the domain of an email address.
func redact(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
