package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyGuard_CheckAndMark(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	guard, err := NewIdempotencyGuard(NewMemoryIdempotencyStore(NewCacheService(ctx)), time.Minute, "razorpay-webhook")
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "evt_1"))
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyGuard_Validation(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Minute, "s")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewMemoryIdempotencyStore(NewCacheService(ctx))

	_, err = NewIdempotencyGuard(store, -time.Second, "s")
	assert.Error(t, err)
	_, err = NewIdempotencyGuard(store, time.Minute, "")
	assert.Error(t, err)

	guard, err := NewIdempotencyGuard(store, time.Minute, "s")
	require.NoError(t, err)
	_, err = guard.CheckAndMark(ctx, "")
	assert.Error(t, err)
}
