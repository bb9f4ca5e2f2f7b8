package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionConnected is the value stored under a live login session key.
const SessionConnected = "connected"

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// SessionKey is the bookkeeping record of a login session.
func SessionKey(sessionID string) string {
	return sessionID
}

// JWTKey holds a token a client pushed over its login socket.
func JWTKey(sessionID string) string {
	return fmt.Sprintf("jwt:%s", sessionID)
}

// SessionStore is a small expiring key-value view over redis.
type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(c *Client) *SessionStore {
	return &SessionStore{client: c.Client}
}

func (s *SessionStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Get returns ok=false when the key does not exist or has expired.
func (s *SessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *SessionStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}
