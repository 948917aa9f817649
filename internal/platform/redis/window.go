// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package redis

import (
	stdctx "context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FixedWindow counts hits per key in windows that start at the first hit.
//
// INCR, EXPIRE NX and PTTL run in one MULTI/EXEC so the counter and its TTL
// are created together. A key can never be left without an expiry, even when
// the client dies between commands.
type FixedWindow struct {
	client redis.Cmdable
	prefix string
}

// NewFixedWindow builds a counter whose keys are namespaced under prefix.
func NewFixedWindow(client redis.Cmdable, prefix string) *FixedWindow {
	return &FixedWindow{client: client, prefix: prefix}
}

// Hit records one hit for key and returns the running count in the current
// window together with the time left before the window resets.
func (counter *FixedWindow) Hit(context stdctx.Context, key string, window time.Duration) (int64, time.Duration, error) {
	fullKey := counter.prefix + key

	pipe := counter.client.TxPipeline()
	incr := pipe.Incr(context, fullKey)
	pipe.ExpireNX(context, fullKey, window)
	pttl := pipe.PTTL(context, fullKey)

	if _, err := pipe.Exec(context); err != nil {
		return 0, 0, fmt.Errorf("ratelimit_hit: %w", err)
	}

	remaining := pttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), remaining, nil
}
