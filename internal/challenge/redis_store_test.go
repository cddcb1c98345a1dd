package challenge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	accountdomain "health-portal/backend/internal/account/domain"
	"health-portal/backend/internal/autherr"
	"health-portal/backend/internal/challenge/domain"
)

func TestRedisStore_KeyLayoutAndTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "")
	c := testChallenge("Alice@X.io", domain.PurposeRegistration, "123456")
	if err := s.Put(context.Background(), c); err != nil {
		t.Fatalf("Put: %v", err)
	}
	key := "hp:otp:registration:alice@x.io"
	if !mr.Exists(key) {
		t.Fatalf("key %q not written; keys = %v", key, mr.Keys())
	}
	if ttl := mr.TTL(key); ttl != DefaultTTL+expiredRetention {
		t.Errorf("TTL = %v, want %v", ttl, DefaultTTL+expiredRetention)
	}
	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if strings.Contains(raw, "123456") {
		t.Error("plaintext code stored in redis")
	}
}

func TestRedisStore_ExpiredAfterRedisEviction(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "test")
	c := testChallenge("a@x.io", domain.PurposeLogin, "123456")
	if err := s.Put(context.Background(), c); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(DefaultTTL + expiredRetention + time.Second)
	_, err := s.GetAndRemoveIfValid(context.Background(), c.Key, HashCode("123456"), t0.Add(time.Hour))
	if !errors.Is(err, autherr.ErrChallengeNotFound) {
		t.Errorf("err = %v, want ErrChallengeNotFound once redis evicted the key", err)
	}
}

func TestRedisStore_CorruptRecordIsDropped(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "test")
	key := domain.NewKey("a@x.io", domain.PurposeLogin)
	if err := mr.Set("test:login:a@x.io", "garbage"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, err := s.GetAndRemoveIfValid(context.Background(), key, HashCode("123456"), t0)
	if !errors.Is(err, autherr.ErrChallengeNotFound) {
		t.Errorf("err = %v, want ErrChallengeNotFound", err)
	}
	if mr.Exists("test:login:a@x.io") {
		t.Error("corrupt record should be deleted")
	}
}

func TestRedisStore_CorruptPayloadIsNotFound(t *testing.T) {
	for name, payload := range map[string]string{
		"invalid json":   "{not json}",
		"truncated json": `{"profile":`,
	} {
		t.Run(name, func(t *testing.T) {
			mr, client := newTestRedis(t)
			s := NewRedisStore(client, "test")
			c := testChallenge("a@x.io", domain.PurposeLogin, "123456")
			head, _, err := encodeRecordParts(c)
			if err != nil {
				t.Fatalf("encodeRecordParts: %v", err)
			}
			if err := mr.Set("test:login:a@x.io", head+"|"+payload); err != nil {
				t.Fatalf("Set: %v", err)
			}
			_, err = s.GetAndRemoveIfValid(context.Background(), c.Key, HashCode("123456"), t0)
			if !errors.Is(err, autherr.ErrChallengeNotFound) {
				t.Errorf("err = %v, want ErrChallengeNotFound", err)
			}
			if errors.Is(err, ErrRedisUnavailable) {
				t.Error("corrupt record reported as a redis outage")
			}
			if mr.Exists("test:login:a@x.io") {
				t.Error("corrupt record should be deleted")
			}
		})
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "test")
	mr.Close()
	err := s.Put(context.Background(), testChallenge("a@x.io", domain.PurposeLogin, "123456"))
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Errorf("Put err = %v, want ErrRedisUnavailable", err)
	}
	_, err = s.GetAndRemoveIfValid(context.Background(), domain.NewKey("a@x.io", domain.PurposeLogin), HashCode("123456"), t0)
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Errorf("GetAndRemoveIfValid err = %v, want ErrRedisUnavailable", err)
	}
	if s.Ping(context.Background()) == nil {
		t.Error("Ping should fail when redis is down")
	}
}

// encodeRecord renders the full stored record including c.Superseded.
func encodeRecord(c *domain.Challenge) (string, error) {
	head, tail, err := encodeRecordParts(c)
	if err != nil {
		return "", err
	}
	return head + strings.Join(c.Superseded, ",") + tail, nil
}

func TestRecord_EncodeDecode(t *testing.T) {
	c := testChallenge("bob@x.io", domain.PurposeProfileUpdate, "654321")
	c.Payload = domain.ProfileUpdate{Changes: accountdomain.ProfileChanges{Email: "bob2@x.io", Username: "bobby"}}
	c.Superseded = []string{HashCode("111111"), HashCode("222222")}
	data, err := encodeRecord(c)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	if !strings.HasPrefix(data, "v1|") {
		t.Errorf("record %q missing version prefix", data)
	}
	got, err := decodeRecord(c.Key, data)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if got.CodeHash != c.CodeHash || !got.ExpiresAt.Equal(c.ExpiresAt) || !got.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("decoded %+v, want %+v", got, c)
	}
	if len(got.Superseded) != 2 || got.Superseded[1] != HashCode("222222") {
		t.Errorf("superseded = %v", got.Superseded)
	}
	changes, ok := got.ProfileChanges()
	if !ok || changes.Email != "bob2@x.io" || changes.Username != "bobby" {
		t.Errorf("payload = %+v, %v", changes, ok)
	}

	plain := testChallenge("a@x.io", domain.PurposeLogin, "123456")
	data, err = encodeRecord(plain)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	got, err = decodeRecord(plain.Key, data)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if got.Payload != nil || got.Superseded != nil {
		t.Errorf("decoded %+v, want no payload or superseded hashes", got)
	}
}

func TestRedisStore_SupersededListIsCapped(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "")
	codes := []string{"100000", "200000", "300000", "400000", "500000", "600000", "700000", "800000"}
	for _, code := range codes {
		if err := s.Put(ctx, testChallenge("a@x.io", domain.PurposeLogin, code)); err != nil {
			t.Fatalf("Put(%s): %v", code, err)
		}
	}
	raw, err := mr.Get("hp:otp:login:a@x.io")
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	got, err := decodeRecord(domain.NewKey("a@x.io", domain.PurposeLogin), raw)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if len(got.Superseded) != domain.MaxSuperseded {
		t.Fatalf("superseded = %d entries, want %d", len(got.Superseded), domain.MaxSuperseded)
	}
	if got.Superseded[0] != HashCode("700000") {
		t.Errorf("newest superseded hash should come first")
	}
	key := domain.NewKey("a@x.io", domain.PurposeLogin)
	if _, err := s.GetAndRemoveIfValid(ctx, key, HashCode("700000"), t0); !errors.Is(err, autherr.ErrChallengeNotFound) {
		t.Errorf("superseded code err = %v, want ErrChallengeNotFound", err)
	}
	// Dropped off the list, so it is an ordinary wrong code.
	if _, err := s.GetAndRemoveIfValid(ctx, key, HashCode("100000"), t0); !errors.Is(err, autherr.ErrCodeMismatch) {
		t.Errorf("old code err = %v, want ErrCodeMismatch", err)
	}
}

func TestDecodeRecord_Invalid(t *testing.T) {
	key := domain.NewKey("a@x.io", domain.PurposeLogin)
	for _, data := range []string{"", "v2|1|1|ab||{}", "v1|x|1|ab||{}", "v1|1|y|ab||{}", "v1|1|1|ab||not-json", "v1|1|1|ab|{}", "v1|1|1"} {
		if _, err := decodeRecord(key, data); err == nil {
			t.Errorf("decodeRecord(%q) should fail", data)
		}
	}
}

func TestEncodeRecord_RejectsEmptyHash(t *testing.T) {
	c := testChallenge("a@x.io", domain.PurposeLogin, "123456")
	c.CodeHash = ""
	if _, err := encodeRecord(c); err == nil {
		t.Error("expected error for empty code hash")
	}
}
