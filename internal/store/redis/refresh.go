// Package redis implements the refresh-token store on Redis. Expiry is
// delegated to key TTLs and the consume step runs as a Lua script so rotation
// stays atomic without a relational database.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"careportal.org/internal/auth"
	"careportal.org/internal/ids"
)

const (
	tokenKeyPrefix    = "refresh:token:"
	consumedKeyPrefix = "refresh:consumed:"
	userKeyPrefix     = "refresh:user:"
)

// consumeScript atomically moves a live record to its consumed tombstone.
// The tombstone inherits the remaining TTL so replays can be recognized for
// exactly as long as the token would have lived.
var consumeScript = goredis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  if redis.call('EXISTS', KEYS[2]) == 1 then
    return 'USED'
  end
  return false
end
local ttl = redis.call('PTTL', KEYS[1])
redis.call('DEL', KEYS[1])
if ttl > 0 then
  redis.call('SET', KEYS[2], v, 'PX', ttl)
else
  redis.call('SET', KEYS[2], v)
end
return v
`)

// RefreshTokenStore is the Redis-backed auth.RefreshTokenStore.
type RefreshTokenStore struct {
	rdb *goredis.Client
	now func() time.Time
}

var _ auth.RefreshTokenStore = (*RefreshTokenStore)(nil)

// Option configures the store.
type Option func(*RefreshTokenStore)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *RefreshTokenStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewRefreshTokenStore wraps an existing client.
func NewRefreshTokenStore(rdb *goredis.Client, opts ...Option) (*RefreshTokenStore, error) {
	if rdb == nil {
		return nil, errors.New("redis: client is required")
	}
	s := &RefreshTokenStore{rdb: rdb, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, addr, password string, db int) (*RefreshTokenStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRefreshTokenStore(rdb)
}

// Close releases the underlying client.
func (s *RefreshTokenStore) Close() error {
	return s.rdb.Close()
}

func (s *RefreshTokenStore) Create(ctx context.Context, tok *auth.RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	ttl := tok.ExpiresAt.Sub(s.now().UTC())
	if ttl <= 0 {
		return fmt.Errorf("%w: refresh token already expired", auth.ErrInvalidInput)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal refresh token: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, tokenKeyPrefix+tok.TokenHash, data, ttl)
	pipe.SAdd(ctx, userKeyPrefix+tok.UserID, tok.TokenHash)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RefreshTokenStore) FindByHash(ctx context.Context, hash string) (*auth.RefreshToken, error) {
	rec, err := s.getRecord(ctx, tokenKeyPrefix+hash)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, auth.ErrTokenNotFound) {
		return nil, err
	}
	rec, err = s.getRecord(ctx, consumedKeyPrefix+hash)
	if err != nil {
		return nil, err
	}
	rec.Consumed = true
	return rec, nil
}

// Consume spends an active record via the Lua script, so of N concurrent
// rotations exactly one gets the record and the rest see the tombstone. The
// now parameter is unused here: Redis TTLs are the source of expiry truth.
func (s *RefreshTokenStore) Consume(ctx context.Context, hash string, _ time.Time) (*auth.RefreshToken, error) {
	res, err := consumeScript.Run(ctx, s.rdb,
		[]string{tokenKeyPrefix + hash, consumedKeyPrefix + hash}).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, auth.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	payload, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("redis: unexpected consume reply %T", res)
	}
	if payload == "USED" {
		return nil, auth.ErrTokenAlreadyUsed
	}
	var tok auth.RefreshToken
	if err := json.Unmarshal([]byte(payload), &tok); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}
	tok.Consumed = true
	revoked := s.now().UTC()
	tok.RevokedAt = &revoked
	return &tok, nil
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, hash string) error {
	rec, err := s.FindByHash(ctx, hash)
	if errors.Is(err, auth.ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, tokenKeyPrefix+hash, consumedKeyPrefix+hash)
	pipe.SRem(ctx, userKeyPrefix+rec.UserID, hash)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	setKey := userKeyPrefix + userID
	hashes, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, hash := range hashes {
		deleted, err := s.rdb.Del(ctx, tokenKeyPrefix+hash).Result()
		if err != nil {
			return count, err
		}
		if _, err := s.rdb.Del(ctx, consumedKeyPrefix+hash).Result(); err != nil {
			return count, err
		}
		count += int(deleted)
	}
	if err := s.rdb.Del(ctx, setKey).Err(); err != nil {
		return count, err
	}
	return count, nil
}

// DeleteExpired prunes user index entries whose token keys have already
// TTL-expired. The token records themselves never need sweeping.
func (s *RefreshTokenStore) DeleteExpired(ctx context.Context, _ time.Time) (int, error) {
	count := 0
	iter := s.rdb.Scan(ctx, 0, userKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		hashes, err := s.rdb.SMembers(ctx, setKey).Result()
		if err != nil {
			return count, err
		}
		for _, hash := range hashes {
			live, err := s.rdb.Exists(ctx, tokenKeyPrefix+hash, consumedKeyPrefix+hash).Result()
			if err != nil {
				return count, err
			}
			if live == 0 {
				if err := s.rdb.SRem(ctx, setKey, hash).Err(); err != nil {
					return count, err
				}
				count++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return count, err
	}
	return count, nil
}

func (s *RefreshTokenStore) getRecord(ctx context.Context, key string) (*auth.RefreshToken, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, auth.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	var tok auth.RefreshToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}
	return &tok, nil
}
