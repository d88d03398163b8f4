package sweeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Notifier 发送超时提醒
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// slackClient 只声明用到的 Slack API，方便测试替换
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackNotifier 通过 Slack 机器人发送提醒
type SlackNotifier struct {
	client    slackClient
	channelID string
}

// NewSlackNotifier 创建 Slack 提醒
// 参数:
//   - botToken: xoxb- 开头的机器人 Token
//   - channelID: 主管所在频道
func NewSlackNotifier(botToken, channelID string) *SlackNotifier {
	return &SlackNotifier{
		client:    slackapi.New(botToken),
		channelID: channelID,
	}
}

func (n *SlackNotifier) Notify(_ context.Context, text string) error {
	if _, _, err := n.client.PostMessage(n.channelID, slackapi.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// discordSession 只声明用到的 Discord API
type discordSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier 通过 Discord 机器人发送提醒
// 只使用 REST 接口，不需要建立网关连接
type DiscordNotifier struct {
	sess      discordSession
	channelID string
}

// NewDiscordNotifier 创建 Discord 提醒
func NewDiscordNotifier(botToken, channelID string) (*DiscordNotifier, error) {
	dg, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return &DiscordNotifier{sess: dg, channelID: channelID}, nil
}

func (n *DiscordNotifier) Notify(_ context.Context, text string) error {
	if _, err := n.sess.ChannelMessageSend(n.channelID, text); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// LogNotifier 只写日志
// 没有配置任何通知渠道时使用
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, text string) error {
	n.log.Warn("pending session alert", zap.String("text", text))
	return nil
}

// MultiNotifier 依次发送到所有渠道，某个渠道失败不影响其他渠道
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
