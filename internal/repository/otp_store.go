package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCodeNotFound reports a missing or expired one-time code.
var ErrCodeNotFound = errors.New("code not found")

// OTPStore persists one-time codes and verification marks. A put replaces
// any active code for the same (email, purpose) pair; expiry is enforced by
// the store, not the caller.
type OTPStore interface {
	PutCode(ctx context.Context, email, purpose, code string, ttl time.Duration) error
	GetCode(ctx context.Context, email, purpose string) (string, error)
	DeleteCode(ctx context.Context, email, purpose string) error
	MarkVerified(ctx context.Context, email, purpose string, ttl time.Duration) error
	IsVerified(ctx context.Context, email, purpose string) (bool, error)
}

type redisOTPStore struct {
	client *redis.Client
}

// NewRedisOTPStore builds the store on top of the shared redis client.
func NewRedisOTPStore(client *redis.Client) OTPStore {
	return &redisOTPStore{client: client}
}

func codeKey(email, purpose string) string {
	return "otp:code:" + purpose + ":" + email
}

func verifiedKey(email, purpose string) string {
	return "otp:verified:" + purpose + ":" + email
}

func (s *redisOTPStore) PutCode(ctx context.Context, email, purpose, code string, ttl time.Duration) error {
	return s.client.Set(ctx, codeKey(email, purpose), code, ttl).Err()
}

func (s *redisOTPStore) GetCode(ctx context.Context, email, purpose string) (string, error) {
	val, err := s.client.Get(ctx, codeKey(email, purpose)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCodeNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *redisOTPStore) DeleteCode(ctx context.Context, email, purpose string) error {
	return s.client.Del(ctx, codeKey(email, purpose)).Err()
}

func (s *redisOTPStore) MarkVerified(ctx context.Context, email, purpose string, ttl time.Duration) error {
	return s.client.Set(ctx, verifiedKey(email, purpose), "1", ttl).Err()
}

func (s *redisOTPStore) IsVerified(ctx context.Context, email, purpose string) (bool, error) {
	_, err := s.client.Get(ctx, verifiedKey(email, purpose)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
