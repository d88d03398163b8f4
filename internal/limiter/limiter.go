// Package limiter 访客接口限流
package limiter

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Limiter 限流器
type Limiter interface {
	// Allow 检查是否允许通过
	// key: 限流标识 (如 IP)
	// limit: 窗口内允许的次数
	// window: 时间窗口
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Strategy 定义基于 Redis 的限流算法策略接口
type Strategy interface {
	Allow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error)
}

// Manager 限流管理器
// 多实例部署时共享 Redis 计数
type Manager struct {
	rdb      *redis.Client
	strategy Strategy
}

func NewManager(rdb *redis.Client, strategy Strategy) *Manager {
	return &Manager{
		rdb:      rdb,
		strategy: strategy,
	}
}

// Allow 代理执行具体的策略
func (m *Manager) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return m.strategy.Allow(ctx, m.rdb, key, limit, window)
}

// FixedWindowStrategy 固定窗口计数
type FixedWindowStrategy struct{}

// Lua 脚本：原子性执行 INCR 和 EXPIRE
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
	return 0
end
return 1
`)

func (s *FixedWindowStrategy) Allow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error) {
	result, err := fixedWindowScript.Run(ctx, rdb, []string{"ratelimit:" + key}, limit, window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// MemoryLimiter 进程内固定窗口限流
// 没有配置 Redis 或 Redis 不可用时使用
type MemoryLimiter struct {
	mu      sync.Mutex
	windows *gocache.Cache
}

type windowCounter struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter 创建进程内限流器
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: gocache.New(10*time.Minute, 10*time.Minute),
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var w *windowCounter
	if x, found := m.windows.Get(key); found {
		w = x.(*windowCounter)
	}
	if w == nil || !now.Before(w.resetAt) {
		w = &windowCounter{resetAt: now.Add(window)}
		m.windows.Set(key, w, window)
	}

	w.count++
	return w.count <= limit, nil
}

// Fallback 优先使用主限流器，出错时退回备用限流器
type Fallback struct {
	Primary   Limiter
	Secondary Limiter
}

func (f *Fallback) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ok, err := f.Primary.Allow(ctx, key, limit, window)
	if err == nil {
		return ok, nil
	}
	return f.Secondary.Allow(ctx, key, limit, window)
}
