package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"dealer-support-server/internal/events"
	"dealer-support-server/internal/model"
)

var (
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed)
	dimColor   = color.New(color.Faint)
	titleColor = color.New(color.FgCyan, color.Bold)
)

// statusLabel 带颜色的状态
func statusLabel(s model.SessionStatus) string {
	switch s {
	case model.SessionStatusPendingAgent:
		return warnColor.Sprint(s)
	case model.SessionStatusWithAgent:
		return okColor.Sprint(s)
	case model.SessionStatusResolved:
		return dimColor.Sprint(s)
	}
	return string(s)
}

// visitorLabel 访客展示名
func visitorLabel(s *model.Session) string {
	switch {
	case s.UserName != nil && *s.UserName != "":
		return *s.UserName
	case s.UserEmail != nil && *s.UserEmail != "":
		return *s.UserEmail
	}
	return "anonymous"
}

// printSessions 输出会话列表
func printSessions(w io.Writer, sessions []model.Session, total int64) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, dimColor.Sprint("没有会话"))
		return
	}
	for i := range sessions {
		s := &sessions[i]
		unread := ""
		if s.UnreadByAgent > 0 {
			unread = errColor.Sprintf(" (%d 未读)", s.UnreadByAgent)
		}
		agent := ""
		if s.AgentName != nil {
			agent = " → " + *s.AgentName
		}
		fmt.Fprintf(w, "%s  %-14s %-24s %s%s%s\n",
			s.ID, statusLabel(s.Status), visitorLabel(s),
			s.LastMessageAt.Local().Format("01-02 15:04"), agent, unread)
	}
	fmt.Fprintln(w, dimColor.Sprintf("共 %d 个会话", total))
}

// printSession 输出会话详情和消息
func printSession(w io.Writer, s *model.Session, messages []model.Message) {
	fmt.Fprintln(w, titleColor.Sprintf("会话 %s", s.ID))
	fmt.Fprintf(w, "  状态: %s\n", statusLabel(s.Status))
	fmt.Fprintf(w, "  访客: %s\n", visitorLabel(s))
	if s.AgentName != nil {
		fmt.Fprintf(w, "  客服: %s\n", *s.AgentName)
	}
	if s.Context != nil && *s.Context != "" {
		fmt.Fprintf(w, "  来源: %s\n", *s.Context)
	}
	fmt.Fprintln(w)
	for i := range messages {
		fmt.Fprintln(w, formatMessage(&messages[i]))
	}
}

// formatMessage 单条消息
func formatMessage(m *model.Message) string {
	ts := dimColor.Sprint(m.Timestamp.Local().Format("15:04:05"))
	switch m.Role {
	case model.MessageRoleUser:
		return fmt.Sprintf("%s %s %s", ts, titleColor.Sprint("visitor:"), m.Content)
	case model.MessageRoleAgent:
		name := "agent"
		if m.SenderName != nil && *m.SenderName != "" {
			name = *m.SenderName
		}
		return fmt.Sprintf("%s %s %s", ts, okColor.Sprint(name+":"), m.Content)
	case model.MessageRoleSystem:
		return fmt.Sprintf("%s %s", ts, warnColor.Sprint("* "+m.Content))
	}
	return fmt.Sprintf("%s %s %s", ts, "assistant:", m.Content)
}

// describeEvent watch 命令输出的一行事件描述
func describeEvent(e *events.SessionEvent) string {
	ts := dimColor.Sprint(e.OccurredAt.Local().Format(time.TimeOnly))
	prefix := fmt.Sprintf("%s [%s]", ts, shortID(e.SessionID))

	switch e.Type {
	case events.TypeSessionCreated:
		return fmt.Sprintf("%s %s", prefix, titleColor.Sprint("新会话"))
	case events.TypeStatusChanged:
		line := fmt.Sprintf("%s 状态 → %s", prefix, statusLabel(e.Status))
		if e.AgentName != "" {
			line += " (" + e.AgentName + ")"
		}
		return line
	case events.TypeMessageCreated:
		if e.Message == nil {
			return prefix + " 新消息"
		}
		return fmt.Sprintf("%s %s", prefix, strings.TrimSpace(formatMessage(e.Message)))
	case events.TypeSessionRead:
		return fmt.Sprintf("%s %s", prefix, dimColor.Sprint("已读"))
	case events.TypeSessionDeleted:
		return fmt.Sprintf("%s %s", prefix, errColor.Sprint("已删除"))
	}
	return fmt.Sprintf("%s %s", prefix, e.Type)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
