package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dealer-support-server/internal/cli/api"
	"dealer-support-server/internal/cli/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "登录客服账号",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "登出并清除本地凭证",
	Long: `登出当前账号并清除本地保存的 token。

服务端会把当前 token 加入黑名单，登出后需要重新运行 'supportctl login'。`,
	RunE: runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "显示当前登录状态",
	RunE:  runStatus,
}

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "修改密码",
	RunE:  runPasswd,
}

func init() {
	loginCmd.Flags().StringP("username", "u", "", "用户名")
	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd, passwdCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	if username == "" {
		fmt.Print("用户名: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return fmt.Errorf("用户名不能为空")
	}

	password, err := readPassword("密码: ")
	if err != nil {
		return err
	}

	client := api.NewClient(config.GetServerURL())
	resp, err := client.Login(username, password)
	if err != nil {
		return fmt.Errorf("登录失败: %w", err)
	}

	account := config.AccountConfig{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Username:     username,
	}
	if resp.Operator != nil {
		account.DisplayName = resp.Operator.DisplayName
		account.Role = resp.Operator.Role
	}
	if err := config.SaveAuth(account); err != nil {
		return fmt.Errorf("保存登录信息失败: %w", err)
	}

	okColor.Printf("✓ 登录成功，欢迎 %s\n", account.DisplayName)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if !config.IsLoggedIn() {
		fmt.Println("当前未登录")
		return nil
	}

	client, err := authedClient()
	if err != nil {
		return err
	}
	// Token 已失效时服务端登出失败，本地仍然清除
	if err := client.Logout(); err != nil {
		warnColor.Printf("! 服务端登出失败: %v\n", err)
	}

	if err := config.ClearAuth(); err != nil {
		return fmt.Errorf("清除凭证失败: %w", err)
	}
	okColor.Println("✓ 已登出并清除本地凭证")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("服务器: %s\n", config.GetServerURL())
	fmt.Printf("配置文件: %s\n", config.Path())

	if !config.IsLoggedIn() {
		fmt.Println("登录状态: " + errColor.Sprint("✗ 未登录"))
		return nil
	}

	client, err := authedClient()
	if err != nil {
		return err
	}
	me, err := client.Me()
	if err != nil {
		fmt.Println("登录状态: " + errColor.Sprint("✗ 登录已失效"))
		return nil
	}
	fmt.Println("登录状态: " + okColor.Sprint("✓ 已登录"))
	fmt.Printf("账号: %s (%s)\n", me.DisplayName, me.Username)
	fmt.Printf("角色: %s\n", me.Role)
	return nil
}

func runPasswd(cmd *cobra.Command, args []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}
	oldPassword, err := readPassword("旧密码: ")
	if err != nil {
		return err
	}
	newPassword, err := readPassword("新密码: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("确认新密码: ")
	if err != nil {
		return err
	}
	if newPassword != confirm {
		return fmt.Errorf("两次输入的密码不一致")
	}

	if err := client.ChangePassword(oldPassword, newPassword); err != nil {
		return err
	}
	okColor.Println("✓ 密码修改成功")
	return nil
}

// readPassword 隐藏输入读取密码
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}
	password := strings.TrimSpace(string(b))
	if password == "" {
		return "", fmt.Errorf("密码不能为空")
	}
	return password, nil
}
