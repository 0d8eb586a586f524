package twofactor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "assetauth:2fa:"

// RedisStore keeps sessions in redis so multiple auth instances share
// the same pending challenges.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing redis client. The caller owns the
// client's lifecycle except for Close.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) key(token string) string {
	return redisKeyPrefix + token
}

func (r *RedisStore) Put(ctx context.Context, s Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return ErrSessionExpired
	}

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(s.Token), data, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, token string) (Session, error) {
	data, err := r.client.Get(ctx, r.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return unmarshalSession(data)
}

func (r *RedisStore) Update(ctx context.Context, s Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		_ = r.client.Del(ctx, r.key(s.Token)).Err()
		return ErrSessionExpired
	}

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	// XX: only overwrite an existing key so Update can't resurrect a
	// consumed session.
	ok, err := r.client.SetXX(ctx, r.key(s.Token), data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// Consume uses GETDEL so fetch-and-invalidate is a single atomic
// operation even with concurrent verifiers.
func (r *RedisStore) Consume(ctx context.Context, token string) (Session, error) {
	data, err := r.client.GetDel(ctx, r.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return unmarshalSession(data)
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.key(token)).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func unmarshalSession(data []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}
