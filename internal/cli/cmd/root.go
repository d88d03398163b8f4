// Package cmd 实现 supportctl 命令
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dealer-support-server/internal/cli/api"
	"dealer-support-server/internal/cli/config"
)

var rootCmd = &cobra.Command{
	Use:   "supportctl",
	Short: "经销商网站客服控制台",
	Long: `supportctl 客服命令行控制台

用于查看等待人工的会话、接入会话并回复访客。
首次使用请运行 'supportctl login' 登录。`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errColor.Sprint("✗ ", err))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// 全局参数
	rootCmd.PersistentFlags().StringP("server", "s", "", "服务器地址 (默认: http://localhost:8080)")
	rootCmd.PersistentFlags().String("config-dir", "", "配置目录 (默认: ~/.dealer-support)")
}

func initConfig() {
	dir, _ := rootCmd.PersistentFlags().GetString("config-dir")
	if err := config.Init(dir); err != nil {
		fmt.Fprintf(os.Stderr, "初始化配置失败: %v\n", err)
		os.Exit(1)
	}

	// 如果指定了服务器地址，更新配置
	if server, _ := rootCmd.PersistentFlags().GetString("server"); server != "" {
		config.SetServerURL(server)
	}
}

// authedClient 返回带登录凭证的客户端
// Token 续期后自动写回配置文件
func authedClient() (*api.Client, error) {
	if !config.IsLoggedIn() {
		return nil, fmt.Errorf("未登录，请先运行 'supportctl login'")
	}
	return api.NewClient(config.GetServerURL()).WithTokens(
		config.GetAccessToken(),
		config.GetRefreshToken(),
		func(token string) { _ = config.SaveAccessToken(token) },
	), nil
}

func askYesNo(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("%s [y/N]: ", prompt)
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}
