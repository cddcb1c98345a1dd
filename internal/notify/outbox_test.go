package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"health-portal/backend/internal/challenge/domain"
)

func TestDevOutbox_Latest(t *testing.T) {
	o := NewDevOutbox()
	o.nowF = func() time.Time { return testNow }
	ctx := context.Background()

	if _, ok := o.Latest("alice@x.io", domain.PurposeRegistration); ok {
		t.Error("empty outbox should report nothing")
	}
	msg := testMessage()
	_ = o.SendCode(ctx, msg)
	msg.Code = "999999"
	_ = o.SendCode(ctx, msg)

	code, ok := o.Latest("ALICE@x.io", domain.PurposeRegistration)
	if !ok || code != "999999" {
		t.Errorf("Latest = %q, %v; want the most recent code", code, ok)
	}
	if _, ok := o.Latest("alice@x.io", domain.PurposeLogin); ok {
		t.Error("purposes should be independent")
	}
}

func TestDevOutbox_Expired(t *testing.T) {
	o := NewDevOutbox()
	now := testNow
	o.nowF = func() time.Time { return now }
	_ = o.SendCode(context.Background(), testMessage())

	now = testNow.Add(5 * time.Minute)
	if _, ok := o.Latest("alice@x.io", domain.PurposeRegistration); ok {
		t.Error("code at expiry should not be returned")
	}
	o.mu.RLock()
	n := len(o.m)
	o.mu.RUnlock()
	if n != 0 {
		t.Errorf("expired entry not cleaned up; %d left", n)
	}
}

func TestDevOutbox_ConcurrentAccess(t *testing.T) {
	o := NewDevOutbox()
	o.nowF = func() time.Time { return testNow }
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = o.SendCode(context.Background(), testMessage())
		}()
		go func() {
			defer wg.Done()
			o.Latest("alice@x.io", domain.PurposeRegistration)
		}()
	}
	wg.Wait()
	if code, ok := o.Latest("alice@x.io", domain.PurposeRegistration); !ok || code != "042117" {
		t.Errorf("Latest = %q, %v", code, ok)
	}
}

func TestRedact(t *testing.T) {
	tests := map[string]string{
		"alice@x.io": "a***@x.io",
		"@x.io":      "***",
		"nobody":     "***",
	}
	for in, want := range tests {
		if got := redact(in); got != want {
			t.Errorf("redact(%q) = %q, want %q", in, got, want)
		}
	}
}
