// Package cache 提供 Redis 缓存操作的封装
// 处理客服在线状态、JWT 黑名单、会话事件广播等需要快速访问的数据
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"dealer-support-server/internal/config"
	"dealer-support-server/internal/events"
)

// SessionEventsChannel 会话事件广播频道
const SessionEventsChannel = "support:events"

// 心跳过期时间
// 客服控制台每 30 秒发送一次心跳，2 分钟内没有心跳视为离线
const heartbeatTTL = 2 * time.Minute

// RedisCache 封装 Redis 客户端，提供业务相关的缓存操作
type RedisCache struct {
	client *redis.Client // Redis 客户端实例
}

// NewRedisCache 创建 RedisCache 实例
// 参数:
//   - cfg: 应用配置（包含 Redis 连接信息）
//
// 返回:
//   - *RedisCache: 缓存实例
//   - error: 连接错误
func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewWithClient 使用已有客户端创建实例
func NewWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Client 返回底层客户端，供限流器使用
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// ==================== 客服在线状态 ====================
// 使用 Redis Set 存储在线客服，心跳 Key 带过期时间

// SetOperatorOnline 设置客服在线
// 客服控制台 WebSocket 连接成功时调用
// 参数:
//   - ctx: 上下文
//   - operatorID: 客服ID
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) SetOperatorOnline(ctx context.Context, operatorID int64) error {
	pipe := c.client.Pipeline()

	// SADD 如果元素已存在，不会重复添加
	pipe.SAdd(ctx, "online:operators", operatorID)
	pipe.Set(ctx, heartbeatKey(operatorID), time.Now().Unix(), heartbeatTTL)

	_, err := pipe.Exec(ctx)
	return err
}

// SetOperatorOffline 设置客服离线
// 客服控制台 WebSocket 断开时调用
func (c *RedisCache) SetOperatorOffline(ctx context.Context, operatorID int64) error {
	pipe := c.client.Pipeline()
	pipe.SRem(ctx, "online:operators", operatorID)
	pipe.Del(ctx, heartbeatKey(operatorID))
	_, err := pipe.Exec(ctx)
	return err
}

// UpdateHeartbeat 刷新客服心跳
func (c *RedisCache) UpdateHeartbeat(ctx context.Context, operatorID int64) error {
	return c.client.Set(ctx, heartbeatKey(operatorID), time.Now().Unix(), heartbeatTTL).Err()
}

// IsOperatorOnline 检查客服是否在线
// 集合中存在且心跳未过期才算在线
func (c *RedisCache) IsOperatorOnline(ctx context.Context, operatorID int64) bool {
	if !c.client.SIsMember(ctx, "online:operators", operatorID).Val() {
		return false
	}
	return c.client.Exists(ctx, heartbeatKey(operatorID)).Val() > 0
}

// GetOnlineOperators 获取所有在线客服ID
// 心跳已过期的成员会被顺带清理
func (c *RedisCache) GetOnlineOperators(ctx context.Context) ([]int64, error) {
	members, err := c.client.SMembers(ctx, "online:operators").Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		if c.client.Exists(ctx, heartbeatKey(id)).Val() == 0 {
			c.client.SRem(ctx, "online:operators", id)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func heartbeatKey(operatorID int64) string {
	return fmt.Sprintf("operator:%d:heartbeat", operatorID)
}

// ==================== JWT 黑名单 ====================

// BlacklistToken 将 Token 加入黑名单
// 登出时调用，使当前 Token 失效
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的哈希值（不存储原始 Token）
//   - expireAt: Token 的原始过期时间
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		// Token 已过期，无需加入黑名单
		return nil
	}
	// TTL 设置为 Token 的剩余有效期，过期后自动删除
	return c.client.Set(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash), "1", ttl).Err()
}

// IsTokenBlacklisted 检查 Token 是否在黑名单中
// JWT 验证中间件调用
func (c *RedisCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	return c.client.Exists(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash)).Val() > 0
}

// ==================== 超时提醒去重 ====================

// MarkPendingNotified 标记等待中的会话已提醒过主管
// key 由调用方决定，一般是会话ID加进入等待的时间
// 返回 true 表示本次是第一次标记，需要发送提醒
func (c *RedisCache) MarkPendingNotified(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, fmt.Sprintf("support:sla_notified:%s", key), time.Now().Unix(), ttl).Result()
}

// ==================== Pub/Sub ====================
// 多服务实例间广播会话事件

// Publish 发布会话事件，实现 events.Publisher
// 参数:
//   - ctx: 上下文
//   - event: 会话事件（JSON 序列化后发布）
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) Publish(ctx context.Context, event *events.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, SessionEventsChannel, data).Err()
}

// SubscribeSessionEvents 订阅会话事件
// 返回 PubSub 对象，调用方负责关闭
func (c *RedisCache) SubscribeSessionEvents(ctx context.Context) *redis.PubSub {
	return c.client.Subscribe(ctx, SessionEventsChannel)
}

// ==================== 通用方法 ====================

// Ping 检查 Redis 连接
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
