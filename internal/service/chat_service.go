// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dealer-support-server/internal/events"
	"dealer-support-server/internal/model"
	"dealer-support-server/internal/support"
)

const (
	maxSessionIDLength = 64
	maxMessageLength   = 4000
	defaultPageSize    = 20
	maxPageSize        = 100
)

// SessionStore 会话存储
// 所有修改都是部分字段更新或带条件的更新
type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) (int64, error)
	TouchUserMessage(ctx context.Context, id string, at time.Time) error
	IncrementEscalation(ctx context.Context, id string, at time.Time) (int, error)
	MarkPendingAgent(ctx context.Context, id string, at time.Time) (bool, error)
	ClaimIfAvailable(ctx context.Context, id, agentID, agentName string, at time.Time) (bool, error)
	AssignAgent(ctx context.Context, id, agentID, agentName string, at time.Time) (int64, error)
	ReleaseAgent(ctx context.Context, id string, at time.Time) (bool, error)
	Resolve(ctx context.Context, id string, at time.Time) (int64, error)
	Reopen(ctx context.Context, id string, at time.Time) (bool, error)
	EnrichIdentity(ctx context.Context, id string, fields map[string]interface{}) (bool, error)
	ResetUnread(ctx context.Context, id string) (int64, error)
	ListByStatus(ctx context.Context, statuses []model.SessionStatus, page, pageSize int) ([]model.Session, int64, error)
	DeleteWithMessages(ctx context.Context, id string) (int64, error)
}

// MessageStore 消息存储，只追加
type MessageStore interface {
	Create(ctx context.Context, message *model.Message) error
	ListBySessionID(ctx context.Context, sessionID string) ([]model.Message, error)
	ListBySessionIDAfter(ctx context.Context, sessionID string, afterID int64) ([]model.Message, error)
}

// ChatOptions 会话规则配置
type ChatOptions struct {
	InactivityThreshold time.Duration           // <= 0 使用默认 2 分钟
	EscalationThreshold int                     // <= 0 使用默认 3 次
	Classifier          support.IntentClassifier // 为空使用关键词分类
	Now                 func() time.Time        // 为空使用 time.Now
}

// ChatService 客服会话服务
// 负责会话状态机：ai -> pending_agent -> with_agent -> resolved，以及交还自动助手
type ChatService struct {
	sessions   SessionStore
	messages   MessageStore
	publisher  events.Publisher
	classifier support.IntentClassifier
	responder  *support.Responder
	inactivity time.Duration
	now        func() time.Time
	log        *zap.Logger
}

// NewChatService 创建 ChatService 实例
func NewChatService(sessions SessionStore, messages MessageStore, publisher events.Publisher, opts ChatOptions, log *zap.Logger) *ChatService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if opts.Classifier == nil {
		opts.Classifier = support.NewKeywordClassifier()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.InactivityThreshold <= 0 {
		opts.InactivityThreshold = support.DefaultInactivityThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		sessions:   sessions,
		messages:   messages,
		publisher:  publisher,
		classifier: opts.Classifier,
		responder:  support.NewResponder(opts.EscalationThreshold),
		inactivity: opts.InactivityThreshold,
		now:        opts.Now,
		log:        log.Named("chat"),
	}
}

// UserInfo 访客身份
type UserInfo struct {
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name"`
}

// VisitorMessageRequest 访客消息请求
type VisitorMessageRequest struct {
	SessionID string    `json:"session_id" binding:"required"`
	Message   string    `json:"message" binding:"required"`
	Context   string    `json:"context,omitempty"`   // 仅在创建会话时保存
	UserInfo  *UserInfo `json:"user_info,omitempty"` // 用于补全身份
}

// VisitorMessageResult 访客消息处理结果
type VisitorMessageResult struct {
	// Reply 自动助手的回复，人工处理阶段为 nil
	Reply *string `json:"reply"`
	// Notice 转人工时的系统提示
	Notice        *string             `json:"notice,omitempty"`
	Status        model.SessionStatus `json:"status"`
	AgentHandling bool                `json:"agent_handling"`
}

// NewSessionID 为挂件分配新的会话 ID
// 会话记录在第一条消息到达时才创建
func (s *ChatService) NewSessionID() string {
	return uuid.New().String()
}

// SubmitVisitorMessage 处理一条访客消息
// 访客消息总是先落库并计入客服未读，再根据会话状态决定是否自动回复
func (s *ChatService) SubmitVisitorMessage(ctx context.Context, req *VisitorMessageRequest) (*VisitorMessageResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	text := strings.TrimSpace(req.Message)
	if sessionID == "" {
		return nil, validationErr("session_id")
	}
	if len(sessionID) > maxSessionIDLength {
		return nil, validationErr("session_id")
	}
	if text == "" {
		return nil, validationErr("message")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, validationErr("message")
	}

	now := s.now()

	session, isNew, err := s.loadOrCreate(ctx, sessionID, req, now)
	if err != nil {
		return nil, err
	}
	if !isNew && req.UserInfo != nil {
		if err := s.enrichIdentity(ctx, session, req.UserInfo, now); err != nil {
			return nil, err
		}
	}

	// 不活跃判断要用本条消息之前的时间
	lastActive := session.LastMessageAt

	userMsg := &model.Message{
		SessionID: sessionID,
		Role:      model.MessageRoleUser,
		Content:   text,
		Timestamp: now,
	}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		return nil, storeErr("append user message", err)
	}
	if err := s.sessions.TouchUserMessage(ctx, sessionID, now); err != nil {
		return nil, storeErr("touch session", err)
	}
	s.publishMessage(ctx, userMsg)

	// 人工处理阶段只记录不回复
	if session.Status.AgentHandling() {
		return &VisitorMessageResult{Status: session.Status, AgentHandling: true}, nil
	}

	if session.Status == model.SessionStatusResolved {
		if _, err := s.sessions.Reopen(ctx, sessionID, now); err != nil {
			return nil, storeErr("reopen session", err)
		}
		session.Status = model.SessionStatusAI
		s.publishStatus(ctx, sessionID, model.SessionStatusAI, now)
	}

	if support.IsInactive(now, lastActive, isNew, s.inactivity) {
		if _, err := s.appendSystem(ctx, sessionID, support.WelcomeBackMessage, now); err != nil {
			return nil, err
		}
		reply := support.WelcomeBackMessage
		return &VisitorMessageResult{Reply: &reply, Status: model.SessionStatusAI}, nil
	}

	result := s.classifier.Classify(text)
	s.log.Debug("visitor message classified",
		zap.String("session_id", sessionID),
		zap.String("intent", string(result.Intent)),
		zap.Float64("confidence", result.Confidence),
	)

	if result.Intent == support.IntentEscalation {
		return s.escalate(ctx, sessionID, now)
	}

	reply := s.responder.Reply(result.Intent)
	if err := s.appendAssistant(ctx, sessionID, reply, now); err != nil {
		return nil, err
	}
	return &VisitorMessageResult{Reply: &reply, Status: model.SessionStatusAI}, nil
}

// loadOrCreate 读取会话，不存在时以 ai 状态创建
func (s *ChatService) loadOrCreate(ctx context.Context, id string, req *VisitorMessageRequest, now time.Time) (*model.Session, bool, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, false, storeErr("get session", err)
	}
	if session != nil {
		return session, false, nil
	}

	session = &model.Session{
		ID:            id,
		Status:        model.SessionStatusAI,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	}
	if c := strings.TrimSpace(req.Context); c != "" {
		session.Context = &c
	}
	if u := req.UserInfo; u != nil && strings.TrimSpace(u.UserID) != "" {
		session.UserID = strPtr(u.UserID)
		session.UserEmail = strPtr(u.UserEmail)
		session.UserName = strPtr(u.UserName)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		// 并发创建时另一方已经写入，改为读取
		existing, getErr := s.sessions.GetByID(ctx, id)
		if getErr != nil || existing == nil {
			return nil, false, storeErr("create session", err)
		}
		return existing, false, nil
	}

	s.log.Info("support session created", zap.String("session_id", id))
	s.publish(ctx, events.New(events.TypeSessionCreated, id, now))
	return session, true, nil
}

// enrichIdentity 匿名会话补全身份，已有身份不覆盖
func (s *ChatService) enrichIdentity(ctx context.Context, session *model.Session, info *UserInfo, now time.Time) error {
	if session.HasIdentity() || strings.TrimSpace(info.UserID) == "" {
		return nil
	}
	fields := map[string]interface{}{
		"user_id":    info.UserID,
		"updated_at": now,
	}
	if info.UserEmail != "" {
		fields["user_email"] = info.UserEmail
	}
	if info.UserName != "" {
		fields["user_name"] = info.UserName
	}
	updated, err := s.sessions.EnrichIdentity(ctx, session.ID, fields)
	if err != nil {
		return storeErr("enrich identity", err)
	}
	if updated {
		session.UserID = strPtr(info.UserID)
		session.UserEmail = strPtr(info.UserEmail)
		session.UserName = strPtr(info.UserName)
	}
	return nil
}

// escalate 访客请求人工
// 计数未达阈值时回复确认，达到阈值后转为等待人工并追加系统提示
func (s *ChatService) escalate(ctx context.Context, sessionID string, now time.Time) (*VisitorMessageResult, error) {
	count, err := s.sessions.IncrementEscalation(ctx, sessionID, now)
	if err != nil {
		return nil, storeErr("increment escalation", err)
	}
	if count == 0 {
		// 状态已被客服侧改变
		current, err := s.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return nil, storeErr("get session", err)
		}
		if current == nil {
			return nil, ErrSessionNotFound
		}
		return &VisitorMessageResult{Status: current.Status, AgentHandling: current.Status.AgentHandling()}, nil
	}

	if !s.responder.ShouldHandOff(count) {
		ack := s.responder.EscalationAck(count)
		if err := s.appendAssistant(ctx, sessionID, ack, now); err != nil {
			return nil, err
		}
		return &VisitorMessageResult{Reply: &ack, Status: model.SessionStatusAI}, nil
	}

	moved, err := s.sessions.MarkPendingAgent(ctx, sessionID, now)
	if err != nil {
		return nil, storeErr("mark pending", err)
	}
	if moved {
		s.log.Info("session handed off to agents",
			zap.String("session_id", sessionID),
			zap.Int("escalation_count", count),
		)
		s.publishStatus(ctx, sessionID, model.SessionStatusPendingAgent, now)
	}
	if _, err := s.appendSystem(ctx, sessionID, support.HandoffMessage, now); err != nil {
		return nil, err
	}
	notice := support.HandoffMessage
	return &VisitorMessageResult{Notice: &notice, Status: model.SessionStatusPendingAgent, AgentHandling: true}, nil
}

// SubmitAgentMessage 客服发送消息
// 会话不在该客服名下时先接入（包括从其他客服手中接过）
func (s *ChatService) SubmitAgentMessage(ctx context.Context, sessionID, message, agentID, agentName string) error {
	text := strings.TrimSpace(message)
	if strings.TrimSpace(sessionID) == "" {
		return validationErr("session_id")
	}
	if text == "" || utf8.RuneCountInString(text) > maxMessageLength {
		return validationErr("message")
	}
	if agentID == "" {
		return validationErr("agent_id")
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return storeErr("get session", err)
	}
	if session == nil {
		return ErrSessionNotFound
	}

	now := s.now()

	if session.Status != model.SessionStatusWithAgent || derefStr(session.AgentID) != agentID {
		n, err := s.sessions.AssignAgent(ctx, sessionID, agentID, agentName, now)
		if err != nil {
			return storeErr("assign agent", err)
		}
		if n == 0 {
			return ErrSessionNotFound
		}
		s.log.Info("session taken by agent",
			zap.String("session_id", sessionID),
			zap.String("agent_id", agentID),
			zap.String("previous_status", string(session.Status)),
		)
		if _, err := s.appendSystem(ctx, sessionID, support.AgentJoined(agentName), now); err != nil {
			return err
		}
		s.publishAgentStatus(ctx, sessionID, agentID, agentName, now)
	}

	msg := &model.Message{
		SessionID:  sessionID,
		Role:       model.MessageRoleAgent,
		Content:    text,
		SenderName: strPtr(agentName),
		Timestamp:  now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return storeErr("append agent message", err)
	}
	if _, err := s.sessions.UpdateFields(ctx, sessionID, map[string]interface{}{
		"last_message_at": now,
		"updated_at":      now,
	}); err != nil {
		return storeErr("touch session", err)
	}
	s.publishMessage(ctx, msg)
	return nil
}

// ClaimSession 客服显式接入会话
// 已被同一客服接入时直接返回；被其他客服接入时返回 ErrSessionClaimed
func (s *ChatService) ClaimSession(ctx context.Context, sessionID, agentID, agentName string) (*model.Session, error) {
	if agentID == "" {
		return nil, validationErr("agent_id")
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get session", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status == model.SessionStatusWithAgent {
		if derefStr(session.AgentID) == agentID {
			return session, nil
		}
		return nil, ErrSessionClaimed
	}

	now := s.now()
	ok, err := s.sessions.ClaimIfAvailable(ctx, sessionID, agentID, agentName, now)
	if err != nil {
		return nil, storeErr("claim session", err)
	}

	current, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get session", err)
	}
	if current == nil {
		return nil, ErrSessionNotFound
	}
	if !ok {
		// 条件更新失败，说明刚被别人接入
		if current.Status == model.SessionStatusWithAgent && derefStr(current.AgentID) == agentID {
			return current, nil
		}
		return nil, ErrSessionClaimed
	}

	s.log.Info("session claimed", zap.String("session_id", sessionID), zap.String("agent_id", agentID))
	if _, err := s.appendSystem(ctx, sessionID, support.AgentJoined(agentName), now); err != nil {
		return nil, err
	}
	s.publishAgentStatus(ctx, sessionID, agentID, agentName, now)
	return current, nil
}

// ResolveSession 结束会话
// 可重复调用，每次调用都会追加一条结束提示
func (s *ChatService) ResolveSession(ctx context.Context, sessionID string) error {
	now := s.now()
	n, err := s.sessions.Resolve(ctx, sessionID, now)
	if err != nil {
		return storeErr("resolve session", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	if _, err := s.appendSystem(ctx, sessionID, support.ClosingMessage, now); err != nil {
		return err
	}
	s.log.Info("session resolved", zap.String("session_id", sessionID))
	s.publishStatus(ctx, sessionID, model.SessionStatusResolved, now)
	return nil
}

// HandBackToAI 客服把会话交还自动助手
// 会话不在 with_agent 状态时什么也不做，请求人工次数不清零
func (s *ChatService) HandBackToAI(ctx context.Context, sessionID string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return storeErr("get session", err)
	}
	if session == nil {
		return ErrSessionNotFound
	}

	now := s.now()
	released, err := s.sessions.ReleaseAgent(ctx, sessionID, now)
	if err != nil {
		return storeErr("release agent", err)
	}
	if !released {
		return nil
	}
	if _, err := s.appendSystem(ctx, sessionID, support.HandbackMessage, now); err != nil {
		return err
	}
	s.log.Info("session handed back to assistant", zap.String("session_id", sessionID))
	s.publishStatus(ctx, sessionID, model.SessionStatusAI, now)
	return nil
}

// DeleteSession 删除会话及全部消息，不可恢复
func (s *ChatService) DeleteSession(ctx context.Context, sessionID string) error {
	n, err := s.sessions.DeleteWithMessages(ctx, sessionID)
	if err != nil {
		return storeErr("delete session", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	s.log.Info("session deleted", zap.String("session_id", sessionID))
	s.publish(ctx, events.New(events.TypeSessionDeleted, sessionID, s.now()))
	return nil
}

// MarkRead 客服查看会话后清零未读数
// 会话是否存在以查询为准：MySQL 默认按实际变化的行计数，未读已经是 0 时受影响行数也是 0
func (s *ChatService) MarkRead(ctx context.Context, sessionID string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return storeErr("get session", err)
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if _, err := s.sessions.ResetUnread(ctx, sessionID); err != nil {
		return storeErr("reset unread", err)
	}
	s.publish(ctx, events.New(events.TypeSessionRead, sessionID, s.now()))
	return nil
}

// GetSession 获取会话详情
func (s *ChatService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get session", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions 按状态分页列出会话，按最后消息时间倒序
// statuses 为空时返回全部
func (s *ChatService) ListSessions(ctx context.Context, statuses []model.SessionStatus, page, pageSize int) ([]model.Session, int64, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, 0, validationErr("status")
		}
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	sessions, total, err := s.sessions.ListByStatus(ctx, statuses, page, pageSize)
	if err != nil {
		return nil, 0, storeErr("list sessions", err)
	}
	return sessions, total, nil
}

// GetMessages 获取会话消息，按时间正序
// afterID > 0 时只返回该消息之后的新消息
func (s *ChatService) GetMessages(ctx context.Context, sessionID string, afterID int64) ([]model.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	var (
		list []model.Message
		err  error
	)
	if afterID > 0 {
		list, err = s.messages.ListBySessionIDAfter(ctx, sessionID, afterID)
	} else {
		list, err = s.messages.ListBySessionID(ctx, sessionID)
	}
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	return list, nil
}

func (s *ChatService) appendAssistant(ctx context.Context, sessionID, content string, at time.Time) error {
	msg := &model.Message{
		SessionID: sessionID,
		Role:      model.MessageRoleAssistant,
		Content:   content,
		Timestamp: at,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return storeErr("append assistant message", err)
	}
	s.publishMessage(ctx, msg)
	return nil
}

func (s *ChatService) appendSystem(ctx context.Context, sessionID, content string, at time.Time) (*model.Message, error) {
	msg := &model.Message{
		SessionID: sessionID,
		Role:      model.MessageRoleSystem,
		Content:   content,
		Timestamp: at,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, storeErr("append system message", err)
	}
	s.publishMessage(ctx, msg)
	return msg, nil
}

func (s *ChatService) publishMessage(ctx context.Context, msg *model.Message) {
	e := events.New(events.TypeMessageCreated, msg.SessionID, msg.Timestamp)
	e.Message = msg
	s.publish(ctx, e)
}

func (s *ChatService) publishStatus(ctx context.Context, sessionID string, status model.SessionStatus, at time.Time) {
	e := events.New(events.TypeStatusChanged, sessionID, at)
	e.Status = status
	s.publish(ctx, e)
}

func (s *ChatService) publishAgentStatus(ctx context.Context, sessionID, agentID, agentName string, at time.Time) {
	e := events.New(events.TypeStatusChanged, sessionID, at)
	e.Status = model.SessionStatusWithAgent
	e.AgentID = agentID
	e.AgentName = agentName
	s.publish(ctx, e)
}

// publish 推送失败只记日志，不影响已经落库的结果
func (s *ChatService) publish(ctx context.Context, e *events.SessionEvent) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("publish session event failed",
			zap.String("session_id", e.SessionID),
			zap.String("type", string(e.Type)),
			zap.Error(err),
		)
	}
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
