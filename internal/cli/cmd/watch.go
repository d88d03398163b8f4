package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dealer-support-server/internal/cli/config"
	"dealer-support-server/internal/cli/stream"
	"dealer-support-server/internal/events"
	"dealer-support-server/internal/model"
	ws "dealer-support-server/internal/websocket"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "实时查看会话事件",
	Long: `通过 WebSocket 实时接收会话事件（新会话、新消息、状态变化）。

连接期间账号显示为在线，按 Ctrl+C 退出。`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Bool("pending", false, "只显示转人工事件")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// 先验证并续期 Token，WebSocket 握手不支持自动续期
	client, err := authedClient()
	if err != nil {
		return err
	}
	if _, err := client.Me(); err != nil {
		return fmt.Errorf("登录已失效: %w", err)
	}

	pendingOnly, _ := cmd.Flags().GetBool("pending")

	c := stream.NewClient(config.WSURL(), client.AccessToken())
	c.OnEvent(func(e *events.SessionEvent) {
		if pendingOnly && !(e.Type == events.TypeStatusChanged && e.Status == model.SessionStatusPendingAgent) {
			return
		}
		fmt.Println(describeEvent(e))
	})
	c.OnMessage(func(m *ws.Message) {
		if m.Type != ws.TypeError {
			return
		}
		var payload ws.ErrorPayload
		if err := json.Unmarshal(m.Payload, &payload); err == nil {
			fmt.Println(errColor.Sprintf("✗ %d %s", payload.Code, payload.Message))
		}
	})
	c.OnClose(func(err error) {
		if err != nil {
			fmt.Fprintln(os.Stderr, errColor.Sprintf("✗ 连接断开: %v", err))
		}
	})

	if err := c.Connect(); err != nil {
		return err
	}
	okColor.Printf("✓ 已连接 %s，等待会话事件 (Ctrl+C 退出)\n", config.GetServerURL())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		c.Disconnect()
		fmt.Println()
		fmt.Println("已断开连接")
	case <-c.Done():
	}
	return nil
}
