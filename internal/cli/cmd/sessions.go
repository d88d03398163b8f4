package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "查看会话列表",
	Long: `按状态查看会话列表，默认显示等待人工和人工处理中的会话。

示例:
  supportctl sessions
  supportctl sessions --status pending_agent
  supportctl sessions --all`,
	RunE: runSessions,
}

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "查看会话详情和消息",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var claimCmd = &cobra.Command{
	Use:   "claim <session-id>",
	Short: "接入会话",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		session, err := client.Claim(args[0])
		if err != nil {
			return err
		}
		okColor.Printf("✓ 已接入会话 %s (%s)\n", session.ID, visitorLabel(session))
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <session-id> <message...>",
	Short: "以客服身份回复访客",
	Long:  "回复访客。会话还在自动助手或等待人工阶段时，发送消息即接入该会话。",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		if err := client.Send(args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		okColor.Println("✓ 已发送")
		return nil
	},
}

var handbackCmd = &cobra.Command{
	Use:   "handback <session-id>",
	Short: "把会话交还自动助手",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		if err := client.HandBack(args[0]); err != nil {
			return err
		}
		okColor.Println("✓ 已交还自动助手")
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <session-id>",
	Short: "标记会话已解决",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		if err := client.Resolve(args[0]); err != nil {
			return err
		}
		okColor.Println("✓ 会话已解决")
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "删除会话及其全部消息",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var onlineCmd = &cobra.Command{
	Use:   "online",
	Short: "查看在线客服（仅主管）",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		ids, err := client.OnlineOperators()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println(dimColor.Sprint("当前没有在线客服"))
			return nil
		}
		for _, id := range ids {
			fmt.Printf("  %d\n", id)
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().StringSlice("status", []string{"pending_agent", "with_agent"}, "状态过滤，可以多次指定")
	sessionsCmd.Flags().Bool("all", false, "显示全部状态")
	sessionsCmd.Flags().Int("page", 1, "页码")
	sessionsCmd.Flags().Int("page-size", 20, "每页数量")

	showCmd.Flags().Bool("no-read", false, "查看后不清空未读计数")
	deleteCmd.Flags().BoolP("yes", "y", false, "跳过确认")

	rootCmd.AddCommand(sessionsCmd, showCmd, claimCmd, sendCmd, handbackCmd, resolveCmd, deleteCmd, onlineCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}

	statuses, _ := cmd.Flags().GetStringSlice("status")
	if all, _ := cmd.Flags().GetBool("all"); all {
		statuses = nil
	}
	page, _ := cmd.Flags().GetInt("page")
	pageSize, _ := cmd.Flags().GetInt("page-size")

	list, err := client.ListSessions(statuses, page, pageSize)
	if err != nil {
		return err
	}
	printSessions(os.Stdout, list.Sessions, list.Total)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}

	session, err := client.GetSession(args[0])
	if err != nil {
		return err
	}
	messages, err := client.GetMessages(args[0])
	if err != nil {
		return err
	}
	printSession(os.Stdout, session, messages)

	if noRead, _ := cmd.Flags().GetBool("no-read"); !noRead && session.UnreadByAgent > 0 {
		if err := client.MarkRead(session.ID); err != nil {
			warnColor.Printf("! 清空未读失败: %v\n", err)
		}
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		if !askYesNo(fmt.Sprintf("确定删除会话 %s 及其全部消息？", args[0])) {
			fmt.Println("已取消")
			return nil
		}
	}
	if err := client.Delete(args[0]); err != nil {
		return err
	}
	okColor.Println("✓ 已删除")
	return nil
}
