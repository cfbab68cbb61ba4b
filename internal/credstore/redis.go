package credstore

import (
	"context"
	"fmt"
	"net/url"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

const (
	redisKeyPrefix    = "gitdm:credentials:"
	redisAccessField  = "access"
	redisRefreshField = "refresh"
)

// RedisStore keeps the record in a redis hash keyed by API host.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore returns a store backed by an existing client.
func NewRedisStore(client redis.UniversalClient, server string) (*RedisStore, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parsing server URL '%s': %w", server, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server URL '%s' has no host", server)
	}
	return &RedisStore{client: client, key: redisKeyPrefix + u.Host}, nil
}

// DialRedis parses a redis:// URL and verifies the connection.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Get(ctx context.Context) (*Record, error) {
	vals, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, &StoreError{Op: "get", Backend: "redis", Cause: err}
	}
	rec := Record{
		AccessToken:  vals[redisAccessField],
		RefreshToken: vals[redisRefreshField],
	}
	if rec.Empty() {
		return nil, ErrCredentialNotFound
	}
	return &rec, nil
}

// Put replaces the whole hash in one transaction so a reader never sees a
// new access token paired with an old refresh token.
func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		fields := make(map[string]any, 2)
		if rec.AccessToken != "" {
			fields[redisAccessField] = rec.AccessToken
		}
		if rec.RefreshToken != "" {
			fields[redisRefreshField] = rec.RefreshToken
		}
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields)
		}
		return nil
	})
	if err != nil {
		return &StoreError{Op: "put", Backend: "redis", Cause: err}
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return &StoreError{Op: "clear", Backend: "redis", Cause: err}
	}
	return nil
}
