package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	accountdomain "health-portal/backend/internal/account/domain"
	"health-portal/backend/internal/autherr"
	"health-portal/backend/internal/challenge/domain"
)

const (
	recordVersionV1 = "v1"

	// expiredRetention keeps a record in Redis past its ExpiresAt so a late verify
	// reports ChallengeExpired rather than ChallengeNotFound.
	expiredRetention = 10 * time.Minute
)

var ErrRedisUnavailable = errors.New("challenge redis unavailable")

// Record layout: v1|<expiresAtMs>|<createdAtMs>|<codeHash>|<superseded hashes, comma separated>|<payload json>

// putChallengeLua atomically replaces the record at a key, carrying the replaced code hash
// (and the hashes it had replaced) into the superseded list.
// KEYS[1] = record key
// ARGV[1] = record head: v1|<expiresAtMs>|<createdAtMs>|<codeHash>|
// ARGV[2] = record tail: |<payload json>
// ARGV[3] = max superseded list length in characters
// ARGV[4] = ttl in milliseconds
var putChallengeLua = redis.NewScript(`
local prior = ''
local old = redis.call('GET', KEYS[1])
if old then
  local h, s = string.match(old, '^v1|%d+|%d+|(%x+)|([%x,]*)|')
  if h then
    prior = h
    if s ~= '' then
      prior = prior .. ',' .. s
    end
  end
end
prior = string.sub(prior, 1, tonumber(ARGV[3]))
redis.call('SET', KEYS[1], ARGV[1] .. prior .. ARGV[2], 'PX', ARGV[4])
return 1
`)

// consumeChallengeLua atomically performs GET, expiry check, hash compare and DEL.
// KEYS[1] = record key
// ARGV[1] = provided code hash (hex)
// ARGV[2] = current time in unix milliseconds
//
// Returns the record on success, or an error reply: "not_found", "expired", "superseded", "mismatch".
var consumeChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local expiresAt, storedHash, superseded = string.match(data, '^v1|(%d+)|%d+|(%x+)|([%x,]*)|{.*}$')
if not expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

if tonumber(ARGV[2]) >= tonumber(expiresAt) then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if storedHash ~= ARGV[1] then
  if ARGV[1] ~= '' and string.find(superseded, ARGV[1], 1, true) then
    return {err='superseded'}
  end
  return {err='mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// supersededListLen is the length of MaxSuperseded hex SHA-256 hashes joined by commas.
const supersededListLen = domain.MaxSuperseded*65 - 1

// RedisStore is a Store backed by Redis, shared between server replicas.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a Redis-backed store. Keys are written as prefix:purpose:subject.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "hp:otp"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

// NewRedisClient parses a redis:// URL and returns a client. It does not connect.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *RedisStore) key(k domain.Key) string {
	return s.prefix + ":" + string(k.Purpose) + ":" + k.Subject
}

func (s *RedisStore) Put(ctx context.Context, c *domain.Challenge) error {
	head, tail, err := encodeRecordParts(c)
	if err != nil {
		return err
	}
	ttl := c.ExpiresAt.Sub(c.CreatedAt) + expiredRetention
	if ttl < expiredRetention {
		ttl = expiredRetention
	}
	err = putChallengeLua.Run(ctx, s.redis, []string{s.key(c.Key)},
		head, tail, supersededListLen, ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) GetAndRemoveIfValid(ctx context.Context, key domain.Key, codeHash string, now time.Time) (*domain.Challenge, error) {
	result, err := consumeChallengeLua.Run(ctx, s.redis,
		[]string{s.key(key)},
		codeHash,
		now.UnixMilli(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, autherr.ErrChallengeNotFound
		case "expired":
			return nil, autherr.ErrChallengeExpired
		case "superseded":
			return nil, autherr.ErrChallengeNotFound
		case "mismatch":
			return nil, autherr.ErrCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type %T", ErrRedisUnavailable, result)
	}
	// The script has already deleted the record, so a payload that fails to decode is gone.
	c, err := decodeRecord(key, data)
	if err != nil {
		return nil, autherr.Wrap(autherr.KindChallengeNotFound, "corrupt challenge record", err)
	}
	return c, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

type recordPayload struct {
	Profile *accountdomain.ProfileChanges `json:"profile,omitempty"`
}

// encodeRecordParts splits the record around the superseded list, which the put script fills in.
func encodeRecordParts(c *domain.Challenge) (head, tail string, err error) {
	if !isHexHash(c.CodeHash) {
		return "", "", errors.New("challenge record: invalid code hash")
	}
	var p recordPayload
	if pu, ok := c.Payload.(domain.ProfileUpdate); ok {
		changes := pu.Changes
		p.Profile = &changes
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("challenge record: %w", err)
	}
	head = strings.Join([]string{
		recordVersionV1,
		strconv.FormatInt(c.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(c.CreatedAt.UnixMilli(), 10),
		c.CodeHash,
	}, "|") + "|"
	return head, "|" + string(payload), nil
}

func decodeRecord(key domain.Key, data string) (*domain.Challenge, error) {
	parts := strings.SplitN(data, "|", 6)
	if len(parts) != 6 || parts[0] != recordVersionV1 {
		return nil, errors.New("invalid challenge record")
	}
	expiresMs, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("challenge record expiry: %w", err)
	}
	createdMs, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("challenge record creation: %w", err)
	}
	c := &domain.Challenge{
		Key:       key,
		CodeHash:  parts[3],
		CreatedAt: time.UnixMilli(createdMs).UTC(),
		ExpiresAt: time.UnixMilli(expiresMs).UTC(),
	}
	if parts[4] != "" {
		c.Superseded = strings.Split(parts[4], ",")
	}
	var p recordPayload
	if err := json.Unmarshal([]byte(parts[5]), &p); err != nil {
		return nil, fmt.Errorf("challenge record payload: %w", err)
	}
	if p.Profile != nil {
		c.Payload = domain.ProfileUpdate{Changes: *p.Profile}
	}
	return c, nil
}

func isHexHash(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
