package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/maintai/abtest/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Redis tests need a live server; set ABTEST_TEST_REDIS_ADDR to run them.
func openTestRedis(t *testing.T) *store.RedisStore {
	t.Helper()
	addr := os.Getenv("ABTEST_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ABTEST_TEST_REDIS_ADDR not set")
	}

	prefix := fmt.Sprintf("abtest-test:%d:", time.Now().UnixNano())
	r, err := store.OpenRedis(context.Background(), store.RedisOptions{Addr: addr, Prefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		_ = r.Remove(ctx, store.KeyIdentifier)
		_ = r.Clear(ctx)
		r.Close()
	})
	return r
}

func TestRedisStore_KV(t *testing.T) {
	testKV(t, openTestRedis(t))
}

func TestRedisStore_Log(t *testing.T) {
	testLog(t, openTestRedis(t))
}

func TestRedisStore_ConcurrentAppends(t *testing.T) {
	testConcurrentAppends(t, openTestRedis(t))
}

func TestOpenRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := store.OpenRedis(ctx, store.RedisOptions{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
