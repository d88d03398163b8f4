package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowStrategy(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	m := NewManager(rdb, &FixedWindowStrategy{})
	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}

	ok, err := m.Allow(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// 其他 IP 不受影响
	ok, err = m.Allow(ctx, "5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// 窗口结束后重新计数
	mr.FastForward(61 * time.Second)
	ok, err = m.Allow(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()

	for i := 0; i < 2; i++ {
		ok, _ := l.Allow(ctx, "k", 2, 50*time.Millisecond)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "k", 2, 50*time.Millisecond)
	assert.False(t, ok)

	time.Sleep(60 * time.Millisecond)
	ok, _ = l.Allow(ctx, "k", 2, 50*time.Millisecond)
	assert.True(t, ok)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestFallback(t *testing.T) {
	f := &Fallback{Primary: failingLimiter{}, Secondary: NewMemoryLimiter()}

	ok, err := f.Allow(context.Background(), "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Allow(context.Background(), "k", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
