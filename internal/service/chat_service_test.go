package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dealer-support-server/internal/events"
	"dealer-support-server/internal/model"
	"dealer-support-server/internal/repository"
	"dealer-support-server/internal/support"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recorder struct {
	mu     sync.Mutex
	events []*events.SessionEvent
}

func (r *recorder) Publish(_ context.Context, e *events.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// countingClassifier 记录分类器被调用的次数
type countingClassifier struct {
	inner support.IntentClassifier
	calls int
}

func (c *countingClassifier) Classify(text string) support.Classification {
	c.calls++
	return c.inner.Classify(text)
}

type fixture struct {
	svc        *ChatService
	sessions   *repository.SessionRepository
	messages   *repository.MessageRepository
	clock      *fakeClock
	events     *recorder
	classifier *countingClassifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Session{}, &model.Message{}))

	f := &fixture{
		sessions:   repository.NewSessionRepository(db),
		messages:   repository.NewMessageRepository(db),
		clock:      &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		events:     &recorder{},
		classifier: &countingClassifier{inner: support.NewKeywordClassifier()},
	}
	f.svc = NewChatService(f.sessions, f.messages, f.events, ChatOptions{
		Classifier: f.classifier,
		Now:        f.clock.Now,
	}, nil)
	return f
}

// send 发送访客消息，时钟前进 1 秒
func (f *fixture) send(t *testing.T, sessionID, text string) *VisitorMessageResult {
	t.Helper()
	f.clock.Advance(time.Second)
	res, err := f.svc.SubmitVisitorMessage(context.Background(), &VisitorMessageRequest{
		SessionID: sessionID,
		Message:   text,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) session(t *testing.T, id string) *model.Session {
	t.Helper()
	s, err := f.sessions.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func (f *fixture) roles(t *testing.T, id string) []model.MessageRole {
	t.Helper()
	list, err := f.messages.ListBySessionID(context.Background(), id)
	require.NoError(t, err)
	out := make([]model.MessageRole, len(list))
	for i, m := range list {
		out[i] = m.Role
	}
	return out
}

func TestSubmitVisitorMessage_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitVisitorMessage(ctx, &VisitorMessageRequest{SessionID: "", Message: "hi"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SubmitVisitorMessage(ctx, &VisitorMessageRequest{SessionID: "s1", Message: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	s, err := f.sessions.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSubmitVisitorMessage_CreatesSessionAndReplies(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, "s1", "Hello!")
	require.NotNil(t, res.Reply)
	assert.Equal(t, support.NewResponder(0).Reply(support.IntentGreeting), *res.Reply)
	assert.Equal(t, model.SessionStatusAI, res.Status)
	assert.False(t, res.AgentHandling)

	s := f.session(t, "s1")
	assert.Equal(t, model.SessionStatusAI, s.Status)
	assert.Equal(t, 1, s.UnreadByAgent)
	assert.Equal(t, []model.MessageRole{model.MessageRoleUser, model.MessageRoleAssistant}, f.roles(t, "s1"))
	assert.Equal(t, events.TypeSessionCreated, f.events.types()[0])
}

func TestSubmitVisitorMessage_ContextStoredOnCreateOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitVisitorMessage(ctx, &VisitorMessageRequest{SessionID: "s1", Message: "hi", Context: `{"page":"/inventory/42"}`})
	require.NoError(t, err)
	_, err = f.svc.SubmitVisitorMessage(ctx, &VisitorMessageRequest{SessionID: "s1", Message: "hi", Context: `{"page":"/contact"}`})
	require.NoError(t, err)

	s := f.session(t, "s1")
	require.NotNil(t, s.Context)
	assert.Equal(t, `{"page":"/inventory/42"}`, *s.Context)
}

func TestEscalationThreshold(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, "s1", "talk to a human")
	require.NotNil(t, res.Reply)
	assert.Contains(t, *res.Reply, "1 of 3")
	assert.Equal(t, model.SessionStatusAI, res.Status)
	assert.Equal(t, 1, f.session(t, "s1").EscalationCount)

	res = f.send(t, "s1", "talk to a human")
	require.NotNil(t, res.Reply)
	assert.Contains(t, *res.Reply, "2 of 3")
	assert.Equal(t, model.SessionStatusAI, res.Status)
	assert.Equal(t, 2, f.session(t, "s1").EscalationCount)

	res = f.send(t, "s1", "talk to a human")
	assert.Nil(t, res.Reply)
	require.NotNil(t, res.Notice)
	assert.Equal(t, support.HandoffMessage, *res.Notice)
	assert.Equal(t, model.SessionStatusPendingAgent, res.Status)
	assert.True(t, res.AgentHandling)

	s := f.session(t, "s1")
	assert.Equal(t, model.SessionStatusPendingAgent, s.Status)
	assert.Equal(t, 3, s.EscalationCount)
	assert.Equal(t, 3, s.UnreadByAgent)

	roles := f.roles(t, "s1")
	assert.Equal(t, model.MessageRoleSystem, roles[len(roles)-1])
}

func TestEscalation_MixedIntentCountsAsEscalation(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, "s1", "I need help finding a car")
	require.NotNil(t, res.Reply)
	assert.Contains(t, *res.Reply, "1 of 3")
	assert.Equal(t, 1, f.session(t, "s1").EscalationCount)
}

func TestNoDoubleReply(t *testing.T) {
	for _, status := range []model.SessionStatus{model.SessionStatusPendingAgent, model.SessionStatusWithAgent} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.send(t, "s1", "hello")

			fields := map[string]interface{}{"status": string(status)}
			if status == model.SessionStatusWithAgent {
				fields["agent_id"] = "7"
				fields["agent_name"] = "Maria"
			}
			_, err := f.sessions.UpdateFields(ctx, "s1", fields)
			require.NoError(t, err)

			callsBefore := f.classifier.calls
			for _, text := range []string{"hello", "how much is it?", "talk to a human", "anyone there?"} {
				res := f.send(t, "s1", text)
				assert.Nil(t, res.Reply, text)
				assert.True(t, res.AgentHandling)
				assert.Equal(t, status, res.Status)
			}
			assert.Equal(t, callsBefore, f.classifier.calls)

			s := f.session(t, "s1")
			assert.Equal(t, 5, s.UnreadByAgent)
			assert.Equal(t, 0, s.EscalationCount)

			// 只有第一轮的一条 assistant 回复
			assistant := 0
			for _, r := range f.roles(t, "s1") {
				if r == model.MessageRoleAssistant {
					assistant++
				}
			}
			assert.Equal(t, 1, assistant)
		})
	}
}

func TestInactivityWelcomeBack(t *testing.T) {
	f := newFixture(t)
	f.send(t, "s1", "talk to a human")
	calls := f.classifier.calls

	f.clock.Advance(3 * time.Minute)
	res := f.send(t, "s1", "talk to a human")

	require.NotNil(t, res.Reply)
	assert.Equal(t, support.WelcomeBackMessage, *res.Reply)
	assert.Equal(t, model.SessionStatusAI, res.Status)
	assert.Equal(t, calls, f.classifier.calls)
	assert.Equal(t, 1, f.session(t, "s1").EscalationCount)

	roles := f.roles(t, "s1")
	assert.Equal(t, []model.MessageRole{
		model.MessageRoleUser, model.MessageRoleAssistant,
		model.MessageRoleUser, model.MessageRoleSystem,
	}, roles)

	// 紧接着的下一条正常分类
	res = f.send(t, "s1", "talk to a human")
	require.NotNil(t, res.Reply)
	assert.Contains(t, *res.Reply, "2 of 3")
}

func TestNewSessionIsNeverInactive(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(time.Hour)

	res := f.send(t, "fresh", "hello")
	require.NotNil(t, res.Reply)
	assert.NotEqual(t, support.WelcomeBackMessage, *res.Reply)
}

func TestIdentityEnrichment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.send(t, "s1", "hello")
	assert.False(t, f.session(t, "s1").HasIdentity())

	_, err := f.svc.SubmitVisitorMessage(ctx, &VisitorMessageRequest{
		SessionID: "s1",
		Message:   "I just logged in",
		UserInfo:  &UserInfo{UserID: "u-1", UserEmail: "ann@example.com", UserName: "Ann"},
	})
	require.NoError(t, err)

	s := f.session(t, "s1")
	require.True(t, s.HasIdentity())
	assert.Equal(t, "u-1", *s.UserID)
	assert.Equal(t, "ann@example.com", *s.UserEmail)
	assert.Equal(t, "Ann", *s.UserName)

	_, err = f.svc.SubmitVisitorMessage(ctx, &VisitorMessageRequest{
		SessionID: "s1",
		Message:   "switched account",
		UserInfo:  &UserInfo{UserID: "u-2", UserEmail: "bob@example.com", UserName: "Bob"},
	})
	require.NoError(t, err)

	s = f.session(t, "s1")
	assert.Equal(t, "u-1", *s.UserID)
	assert.Equal(t, "ann@example.com", *s.UserEmail)
	assert.Equal(t, "Ann", *s.UserName)
}

func TestMessageOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.send(t, "s1", "hello")
	f.clock.Advance(time.Second)
	require.NoError(t, f.svc.SubmitAgentMessage(ctx, "s1", "Hi, I'm Maria", "7", "Maria"))
	f.send(t, "s1", "do you have SUVs?")
	f.clock.Advance(time.Second)
	require.NoError(t, f.svc.SubmitAgentMessage(ctx, "s1", "Yes, three in stock", "7", "Maria"))

	list, err := f.svc.GetMessages(ctx, "s1", 0)
	require.NoError(t, err)

	var contents []string
	for _, m := range list {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{
		"hello",
		support.NewResponder(0).Reply(support.IntentGreeting),
		support.AgentJoined("Maria"),
		"Hi, I'm Maria",
		"do you have SUVs?",
		"Yes, three in stock",
	}, contents)

	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].Timestamp.Before(list[i-1].Timestamp))
	}

	after, err := f.svc.GetMessages(ctx, "s1", list[3].ID)
	require.NoError(t, err)
	assert.Len(t, after, 2)
}

func TestSubmitAgentMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SubmitAgentMessage(ctx, "missing", "hello", "7", "Maria")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	f.send(t, "s1", "hello")
	err = f.svc.SubmitAgentMessage(ctx, "s1", "  ", "7", "Maria")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.svc.SubmitAgentMessage(ctx, "s1", "How can I help?", "7", "Maria"))
	s := f.session(t, "s1")
	assert.Equal(t, model.SessionStatusWithAgent, s.Status)
	assert.Equal(t, "7", *s.AgentID)
	assert.Equal(t, "Maria", *s.AgentName)

	// 同一客服再次发送不重复接入
	require.NoError(t, f.svc.SubmitAgentMessage(ctx, "s1", "Still there?", "7", "Maria"))
	joined := 0
	list, _ := f.messages.ListBySessionID(ctx, "s1")
	for _, m := range list {
		if m.Role == model.MessageRoleSystem {
			joined++
		}
		if m.Role == model.MessageRoleAgent {
			require.NotNil(t, m.SenderName)
			assert.Equal(t, "Maria", *m.SenderName)
		}
	}
	assert.Equal(t, 1, joined)

	// 另一位客服发送消息接过会话
	require.NoError(t, f.svc.SubmitAgentMessage(ctx, "s1", "Taking over", "8", "John"))
	s = f.session(t, "s1")
	assert.Equal(t, "8", *s.AgentID)
	assert.Equal(t, "John", *s.AgentName)
}

func TestClaimSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ClaimSession(ctx, "missing", "7", "Maria")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	f.send(t, "s1", "talk to a human")
	f.send(t, "s1", "talk to a human")
	f.send(t, "s1", "talk to a human")
	require.Equal(t, model.SessionStatusPendingAgent, f.session(t, "s1").Status)

	s, err := f.svc.ClaimSession(ctx, "s1", "7", "Maria")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusWithAgent, s.Status)
	assert.Equal(t, "7", *s.AgentID)

	// 重复认领
	_, err = f.svc.ClaimSession(ctx, "s1", "7", "Maria")
	require.NoError(t, err)

	_, err = f.svc.ClaimSession(ctx, "s1", "8", "John")
	assert.ErrorIs(t, err, ErrSessionClaimed)

	roles := f.roles(t, "s1")
	assert.Equal(t, model.MessageRoleSystem, roles[len(roles)-1])
	list, _ := f.messages.ListBySessionID(ctx, "s1")
	assert.Equal(t, support.AgentJoined("Maria"), list[len(list)-1].Content)
}

func TestResolveSession_AppendsClosingEachCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.ResolveSession(ctx, "missing"), ErrSessionNotFound)

	f.send(t, "s1", "hello")
	require.NoError(t, f.svc.SubmitAgentMessage(ctx, "s1", "Done?", "7", "Maria"))

	require.NoError(t, f.svc.ResolveSession(ctx, "s1"))
	require.NoError(t, f.svc.ResolveSession(ctx, "s1"))

	s := f.session(t, "s1")
	assert.Equal(t, model.SessionStatusResolved, s.Status)
	assert.True(t, s.Resolved)
	assert.Nil(t, s.AgentID)
	assert.Nil(t, s.AgentName)

	closing := 0
	list, _ := f.messages.ListBySessionID(ctx, "s1")
	for _, m := range list {
		if m.Content == support.ClosingMessage {
			closing++
		}
	}
	assert.Equal(t, 2, closing)
}

func TestResolvedSessionReopensOnVisitorMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.send(t, "s1", "hello")
	require.NoError(t, f.svc.ResolveSession(ctx, "s1"))

	res := f.send(t, "s1", "how much is the Camry?")
	require.NotNil(t, res.Reply)
	assert.Equal(t, support.NewResponder(0).Reply(support.IntentPricing), *res.Reply)
	assert.Equal(t, model.SessionStatusAI, res.Status)

	s := f.session(t, "s1")
	assert.Equal(t, model.SessionStatusAI, s.Status)
	assert.False(t, s.Resolved)
}

func TestHandBackToAI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.HandBackToAI(ctx, "missing"), ErrSessionNotFound)

	f.send(t, "s1", "talk to a human")
	f.send(t, "s1", "talk to a human")
	f.send(t, "s1", "talk to a human")
	_, err := f.svc.ClaimSession(ctx, "s1", "7", "Maria")
	require.NoError(t, err)

	require.NoError(t, f.svc.HandBackToAI(ctx, "s1"))

	s := f.session(t, "s1")
	assert.Equal(t, model.SessionStatusAI, s.Status)
	assert.Nil(t, s.AgentID)
	assert.Nil(t, s.AgentName)
	assert.Equal(t, 3, s.EscalationCount)

	list, _ := f.messages.ListBySessionID(ctx, "s1")
	assert.Equal(t, support.HandbackMessage, list[len(list)-1].Content)

	calls := f.classifier.calls
	res := f.send(t, "s1", "can you deliver to Nairobi?")
	require.NotNil(t, res.Reply)
	assert.Equal(t, support.NewResponder(0).Reply(support.IntentShipping), *res.Reply)
	assert.Equal(t, calls+1, f.classifier.calls)

	// 不在 with_agent 时无操作
	count := len(f.roles(t, "s1"))
	require.NoError(t, f.svc.HandBackToAI(ctx, "s1"))
	assert.Len(t, f.roles(t, "s1"), count)
}

func TestHandBack_ReEscalationNeedsOneRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.send(t, "s1", "talk to a human")
	}
	require.NoError(t, f.svc.SubmitAgentMessage(ctx, "s1", "hi", "7", "Maria"))
	require.NoError(t, f.svc.HandBackToAI(ctx, "s1"))

	res := f.send(t, "s1", "talk to a human")
	assert.Nil(t, res.Reply)
	assert.Equal(t, model.SessionStatusPendingAgent, res.Status)
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.DeleteSession(ctx, "missing"), ErrSessionNotFound)

	f.send(t, "s1", "hello")
	require.NoError(t, f.svc.DeleteSession(ctx, "s1"))

	_, err := f.svc.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.GetMessages(ctx, "s1", 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, f.svc.DeleteSession(ctx, "s1"), ErrSessionNotFound)

	types := f.events.types()
	assert.Equal(t, events.TypeSessionDeleted, types[len(types)-1])
}

func TestPendingWaitNotResetByVisitorMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.send(t, "s1", "talk to a human")
	}
	require.Equal(t, model.SessionStatusPendingAgent, f.session(t, "s1").Status)

	f.clock.Advance(4 * time.Minute)
	res := f.send(t, "s1", "hello? anyone?")
	assert.Nil(t, res.Reply)
	f.clock.Advance(2 * time.Minute)

	stale, err := f.sessions.ListPendingBefore(ctx, f.clock.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "s1", stale[0].ID)

	_, err = f.svc.ClaimSession(ctx, "s1", "7", "Maria")
	require.NoError(t, err)
	assert.Nil(t, f.session(t, "s1").PendingSince)
}

// changedRowsStore 模拟 MySQL 的受影响行数：值没有变化的行不计数
type changedRowsStore struct {
	*repository.SessionRepository
}

func (s changedRowsStore) ResetUnread(ctx context.Context, id string) (int64, error) {
	session, err := s.GetByID(ctx, id)
	if err != nil || session == nil {
		return 0, err
	}
	n, err := s.SessionRepository.ResetUnread(ctx, id)
	if session.UnreadByAgent == 0 {
		n = 0
	}
	return n, err
}

func TestMarkRead_NothingUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewChatService(changedRowsStore{f.sessions}, f.messages, f.events, ChatOptions{Now: f.clock.Now}, nil)

	f.send(t, "s1", "hello")
	require.NoError(t, svc.MarkRead(ctx, "s1"))
	assert.Equal(t, 0, f.session(t, "s1").UnreadByAgent)

	// 第二次没有任何未读，会话仍然存在
	require.NoError(t, svc.MarkRead(ctx, "s1"))
	assert.ErrorIs(t, svc.MarkRead(ctx, "missing"), ErrSessionNotFound)

	types := f.events.types()
	assert.Equal(t, events.TypeSessionRead, types[len(types)-1])
}

func TestMarkReadAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.send(t, "a", "hello")
	f.send(t, "b", "hello")
	f.send(t, "b", "hello again")
	for i := 0; i < 3; i++ {
		f.send(t, "c", "talk to a human")
	}

	assert.Equal(t, 2, f.session(t, "b").UnreadByAgent)
	require.NoError(t, f.svc.MarkRead(ctx, "b"))
	assert.Equal(t, 0, f.session(t, "b").UnreadByAgent)
	assert.ErrorIs(t, f.svc.MarkRead(ctx, "missing"), ErrSessionNotFound)

	all, total, err := f.svc.ListSessions(ctx, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "b", all[1].ID)

	pending, total, err := f.svc.ListSessions(ctx, []model.SessionStatus{model.SessionStatusPendingAgent}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "c", pending[0].ID)

	_, _, err = f.svc.ListSessions(ctx, []model.SessionStatus{"bogus"}, 1, 10)
	assert.ErrorIs(t, err, ErrValidation)
}

// brokenSessions 读取会话时总是失败
type brokenSessions struct {
	*repository.SessionRepository
	err error
}

func (b *brokenSessions) GetByID(context.Context, string) (*model.Session, error) {
	return nil, b.err
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	f := newFixture(t)
	cause := errors.New("connection refused")
	svc := NewChatService(&brokenSessions{SessionRepository: f.sessions, err: cause}, f.messages, nil, ChatOptions{}, nil)

	_, err := svc.SubmitVisitorMessage(context.Background(), &VisitorMessageRequest{SessionID: "s1", Message: "hi"})
	require.Error(t, err)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "get session", storeErr.Op)
	assert.ErrorIs(t, err, cause)
}

func TestEventsPublished(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.send(t, "s1", "talk to a human")
	}

	var statusEvents []model.SessionStatus
	f.events.mu.Lock()
	for _, e := range f.events.events {
		if e.Type == events.TypeStatusChanged {
			statusEvents = append(statusEvents, e.Status)
		}
		if e.Type == events.TypeMessageCreated {
			assert.NotNil(t, e.Message)
		}
	}
	f.events.mu.Unlock()
	assert.Equal(t, []model.SessionStatus{model.SessionStatusPendingAgent}, statusEvents)
}
