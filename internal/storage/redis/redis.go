package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blog_service/internal/storage"

	"github.com/redis/go-redis/v9"
)

// RedisRepo is the ephemeral code store: one live code per email, expiry
// enforced entirely by redis TTLs.
type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
	}, nil
}

// Set stores a code against an email, overwriting any prior unexpired one.
func (r *RedisRepo) Set(ctx context.Context, email, code string, ttl time.Duration) error {
	const op = "storage.redis.Set"

	key := codeKey(email)

	if err := r.client.Set(ctx, key, code, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisRepo) Get(ctx context.Context, email string) (string, error) {
	const op = "storage.redis.Get"

	code, err := r.client.Get(ctx, codeKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", storage.ErrCodeNotFound
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	return code, nil
}

func (r *RedisRepo) Close() {
	r.client.Close()
}

func codeKey(email string) string {
	return fmt.Sprintf("verify:code:%s", email)
}
