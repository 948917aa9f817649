// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Hasher derives and checks bcrypt password hashes.
//
// bcrypt is CPU-bound and deliberately slow. A burst of logins would otherwise
// run one derivation per request goroutine and starve the scheduler, so every
// call first acquires a slot from a weighted semaphore sized to the worker count.
// Waiting for a slot honours context cancellation.
type Hasher struct {
	cost  int
	slots *semaphore.Weighted
}

// NewHasher builds a [Hasher] using the given bcrypt cost.
// A non-positive workers value means one slot per available CPU.
func NewHasher(cost, workers int) *Hasher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Hasher{
		cost:  cost,
		slots: semaphore.NewWeighted(int64(workers)),
	}
}

// Hash returns the salted bcrypt hash of plain.
func (hasher *Hasher) Hash(context context.Context, plain string) (string, error) {
	if err := hasher.slots.Acquire(context, 1); err != nil {
		return "", fmt.Errorf("hash_wait: %w", err)
	}
	defer hasher.slots.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), hasher.cost)
	if err != nil {
		return "", fmt.Errorf("hash_password: %w", err)
	}
	return string(hashed), nil
}

// Compare reports whether plain matches hash.
//
// A mismatch is (false, nil). Any other failure, including a malformed hash or
// a cancelled context, is returned as an error.
func (hasher *Hasher) Compare(context context.Context, plain, hash string) (bool, error) {
	if err := hasher.slots.Acquire(context, 1); err != nil {
		return false, fmt.Errorf("hash_wait: %w", err)
	}
	defer hasher.slots.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare_password: %w", err)
	}
}
