// Package config 管理 supportctl 客户端配置
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config CLI 配置结构
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Account AccountConfig `mapstructure:"account"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	URL string `mapstructure:"url"` // HTTP API 地址
}

// AccountConfig 登录信息
type AccountConfig struct {
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
	Username     string `mapstructure:"username"`
	DisplayName  string `mapstructure:"display_name"`
	Role         string `mapstructure:"role"`
}

const defaultServerURL = "http://localhost:8080"

var (
	cfg        *Config
	v          *viper.Viper
	configPath string
)

// Init 初始化配置
// dir 为空时使用 ~/.dealer-support
func Init(dir string) error {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("获取用户目录失败: %w", err)
		}
		dir = filepath.Join(home, ".dealer-support")
	}

	// 创建配置目录
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}
	configPath = filepath.Join(dir, "config.yaml")

	v = viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量优先，例如 SUPPORTCTL_SERVER_URL
	v.SetEnvPrefix("SUPPORTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.url", defaultServerURL)
	v.SetDefault("account.access_token", "")
	v.SetDefault("account.refresh_token", "")
	v.SetDefault("account.username", "")
	v.SetDefault("account.display_name", "")
	v.SetDefault("account.role", "")

	// 文件不存在时写入默认配置
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
			if err := v.WriteConfigAs(configPath); err != nil {
				return fmt.Errorf("写入默认配置失败: %w", err)
			}
		} else {
			return fmt.Errorf("读取配置失败: %w", err)
		}
	}

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("解析配置失败: %w", err)
	}
	return nil
}

// Get 获取配置
func Get() *Config {
	return cfg
}

// Path 配置文件路径
func Path() string {
	return configPath
}

// SaveAuth 保存登录信息
func SaveAuth(account AccountConfig) error {
	v.Set("account.access_token", account.AccessToken)
	v.Set("account.refresh_token", account.RefreshToken)
	v.Set("account.username", account.Username)
	v.Set("account.display_name", account.DisplayName)
	v.Set("account.role", account.Role)
	if cfg != nil {
		cfg.Account = account
	}
	return v.WriteConfig()
}

// SaveAccessToken 刷新后只更新 Access Token
func SaveAccessToken(token string) error {
	v.Set("account.access_token", token)
	if cfg != nil {
		cfg.Account.AccessToken = token
	}
	return v.WriteConfig()
}

// ClearAuth 清除本地凭证
func ClearAuth() error {
	return SaveAuth(AccountConfig{})
}

// GetAccessToken 获取访问 Token
func GetAccessToken() string {
	if cfg == nil {
		return ""
	}
	return cfg.Account.AccessToken
}

// GetRefreshToken 获取刷新 Token
func GetRefreshToken() string {
	if cfg == nil {
		return ""
	}
	return cfg.Account.RefreshToken
}

// GetServerURL 获取服务器地址
func GetServerURL() string {
	if cfg == nil || cfg.Server.URL == "" {
		return defaultServerURL
	}
	return strings.TrimRight(cfg.Server.URL, "/")
}

// SetServerURL 设置服务器地址
// 下次写入配置时一并保存
func SetServerURL(url string) {
	if v != nil {
		v.Set("server.url", url)
	}
	if cfg != nil {
		cfg.Server.URL = url
	}
}

// WSURL 把 HTTP 地址转换为 WebSocket 地址
// http -> ws, https -> wss
func WSURL() string {
	url := GetServerURL()
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

// IsLoggedIn 检查是否已登录
func IsLoggedIn() bool {
	return GetAccessToken() != ""
}
