// Package sweeper 定时检查等待人工过久的会话并提醒主管
package sweeper

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"dealer-support-server/internal/model"
)

// DefaultPendingSLA 等待人工超过该时长发出提醒
const DefaultPendingSLA = 5 * time.Minute

// 同一个会话在该时间内只提醒一次
const notifyTTL = time.Hour

// PendingLister 查询等待中的会话
type PendingLister interface {
	ListPendingBefore(ctx context.Context, before time.Time) ([]model.Session, error)
}

// SupervisorLister 查询值班主管
type SupervisorLister interface {
	ListByRole(ctx context.Context, role string) ([]model.Operator, error)
}

// Guard 提醒去重
// 返回 true 表示该会话第一次被标记，需要发送提醒
type Guard interface {
	MarkPendingNotified(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Options 巡检配置
type Options struct {
	SLA time.Duration    // <= 0 使用 DefaultPendingSLA
	Now func() time.Time // 为空使用 time.Now
}

// Sweeper 超时巡检
type Sweeper struct {
	sessions    PendingLister
	supervisors SupervisorLister // 可以为 nil
	guard       Guard
	notifier    Notifier
	sla         time.Duration
	now         func() time.Time
	log         *zap.Logger
	cron        *cron.Cron
}

// New 创建 Sweeper
// guard 为 nil 时使用进程内去重
func New(sessions PendingLister, supervisors SupervisorLister, guard Guard, notifier Notifier, opts Options, log *zap.Logger) *Sweeper {
	if guard == nil {
		guard = NewMemoryGuard()
	}
	if opts.SLA <= 0 {
		opts.SLA = DefaultPendingSLA
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &Sweeper{
		sessions:    sessions,
		supervisors: supervisors,
		guard:       guard,
		notifier:    notifier,
		sla:         opts.SLA,
		now:         opts.Now,
		log:         log.Named("sweeper"),
	}
}

// Start 按 cron 表达式启动巡检
// 支持标准 5 段表达式和 @every 1m 这样的写法
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	s.log.Info("pending sweep scheduled", zap.String("schedule", schedule), zap.Duration("sla", s.sla))
	return nil
}

// Stop 停止巡检，等待正在运行的任务结束
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunOnce 执行一次巡检
// 返回本次发出的提醒数
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := s.now()
	sessions, err := s.sessions.ListPendingBefore(ctx, now.Add(-s.sla))
	if err != nil {
		return 0, fmt.Errorf("list pending sessions: %w", err)
	}
	if len(sessions) == 0 {
		return 0, nil
	}

	onDuty := s.onDuty(ctx)

	sent := 0
	for i := range sessions {
		session := &sessions[i]
		since := pendingSince(session)
		// 同一会话再次进入等待时重新提醒
		key := fmt.Sprintf("%s:%d", session.ID, since.Unix())
		first, err := s.guard.MarkPendingNotified(ctx, key, notifyTTL)
		if err != nil {
			s.log.Warn("notify guard failed", zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		if !first {
			continue
		}

		text := formatAlert(session, now.Sub(since), onDuty)
		if err := s.notifier.Notify(ctx, text); err != nil {
			s.log.Error("send pending alert failed", zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		sent++
	}

	if sent > 0 {
		s.log.Info("pending alerts sent", zap.Int("count", sent))
	}
	return sent, nil
}

// pendingSince 进入等待的时间，旧数据没有该字段时退回 updated_at
func pendingSince(session *model.Session) time.Time {
	if session.PendingSince != nil {
		return *session.PendingSince
	}
	return session.UpdatedAt
}

func (s *Sweeper) onDuty(ctx context.Context) []string {
	if s.supervisors == nil {
		return nil
	}
	ops, err := s.supervisors.ListByRole(ctx, model.OperatorRoleSupervisor)
	if err != nil {
		s.log.Warn("list supervisors failed", zap.Error(err))
		return nil
	}
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.DisplayName)
	}
	return names
}

// formatAlert 生成提醒文本
func formatAlert(session *model.Session, waited time.Duration, onDuty []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chat %s has been waiting for an agent for %s", session.ID, waited.Truncate(time.Second))

	visitor := ""
	switch {
	case session.UserName != nil && *session.UserName != "":
		visitor = *session.UserName
	case session.UserEmail != nil && *session.UserEmail != "":
		visitor = *session.UserEmail
	}
	if visitor != "" {
		fmt.Fprintf(&b, " (visitor: %s)", visitor)
	}
	b.WriteString(".")

	if len(onDuty) > 0 {
		fmt.Fprintf(&b, " Supervisors on duty: %s.", strings.Join(onDuty, ", "))
	}
	return b.String()
}

// MemoryGuard 进程内提醒去重
// 单实例部署或没有 Redis 时使用
type MemoryGuard struct {
	seen *gocache.Cache
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{seen: gocache.New(notifyTTL, 10*time.Minute)}
}

func (g *MemoryGuard) MarkPendingNotified(_ context.Context, key string, ttl time.Duration) (bool, error) {
	// Add 在 key 已存在时返回错误
	return g.seen.Add(key, struct{}{}, ttl) == nil, nil
}
