// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/lms/internal/platform/constants"
)

// RedisOAuthStateRepository implements OAuthStateRepository using Redis.
//
// Any API instance may receive the provider callback, so the state must live
// in shared storage rather than in the process that issued the redirect.
type RedisOAuthStateRepository struct {
	client redis.Cmdable
}

// NewOAuthStateRepository creates a new Redis-backed OAuthStateRepository.
func NewOAuthStateRepository(client redis.Cmdable) *RedisOAuthStateRepository {
	return &RedisOAuthStateRepository{client: client}
}

/*
Save stores a state marker that expires after ttl.

Parameters:
  - context: context.Context
  - state: string
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (repository *RedisOAuthStateRepository) Save(context context.Context, state string, ttl time.Duration) error {
	key := constants.RedisPrefixOAuthState + state

	if err := repository.client.Set(context, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis_oauth_state_set_failed: %w", err)
	}
	return nil
}

/*
Consume reads and deletes the state in one GETDEL, so a state can be
redeemed exactly once even when two callbacks race.
*/
func (repository *RedisOAuthStateRepository) Consume(context context.Context, state string) (bool, error) {
	key := constants.RedisPrefixOAuthState + state

	_, err := repository.client.GetDel(context, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis_oauth_state_consume_failed: %w", err)
	}
	return true, nil
}
