// Package api 封装 supportctl 与服务器的 HTTP API 交互
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dealer-support-server/internal/model"
	"dealer-support-server/pkg/response"
)

// Client API 客户端
// Access Token 过期时使用 Refresh Token 自动续期一次
type Client struct {
	baseURL      string
	accessToken  string
	refreshToken string
	httpClient   *http.Client

	// onRefresh 续期成功后回调，用于保存新 Token
	onRefresh func(accessToken string)
}

// NewClient 创建 API 客户端
// baseURL: 例如 http://localhost:8080
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithTokens 设置登录凭证
func (c *Client) WithTokens(accessToken, refreshToken string, onRefresh func(string)) *Client {
	c.accessToken = accessToken
	c.refreshToken = refreshToken
	c.onRefresh = onRefresh
	return c
}

// AccessToken 当前使用的 Access Token
func (c *Client) AccessToken() string {
	return c.accessToken
}

// APIResponse 通用响应
type APIResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Error 服务端返回的业务错误
type Error struct {
	Status  int // HTTP 状态码
	Code    int // 业务状态码
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("API 错误 %d: %s", e.Code, e.Message)
}

// IsCode 判断错误是否为指定业务码
func IsCode(err error, code int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// ==================== 认证 ====================

// LoginResponse 登录结果
type LoginResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int64           `json:"expires_in"`
	Operator     *model.Operator `json:"operator"`
}

// Login 使用用户名密码登录
func (c *Client) Login(username, password string) (*LoginResponse, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}
	var result LoginResponse
	if err := c.call(http.MethodPost, "/api/v1/auth/login", body, &result); err != nil {
		return nil, err
	}
	c.accessToken = result.AccessToken
	c.refreshToken = result.RefreshToken
	return &result, nil
}

// Logout 登出，服务端把当前 Token 加入黑名单
func (c *Client) Logout() error {
	return c.call(http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

// Me 当前登录的客服
func (c *Client) Me() (*model.Operator, error) {
	var op model.Operator
	if err := c.call(http.MethodGet, "/api/v1/operator/me", nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// ChangePassword 修改密码
func (c *Client) ChangePassword(oldPassword, newPassword string) error {
	body := map[string]string{
		"old_password": oldPassword,
		"new_password": newPassword,
	}
	return c.call(http.MethodPut, "/api/v1/operator/me/password", body, nil)
}

// ==================== 会话 ====================

// SessionList 会话列表
type SessionList struct {
	Sessions []model.Session `json:"sessions"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// ListSessions 按状态查询会话，statuses 为空返回全部
func (c *Client) ListSessions(statuses []string, page, pageSize int) (*SessionList, error) {
	q := url.Values{}
	if len(statuses) > 0 {
		q.Set("status", strings.Join(statuses, ","))
	}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if pageSize > 0 {
		q.Set("page_size", fmt.Sprint(pageSize))
	}

	path := "/api/v1/operator/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result SessionList
	if err := c.call(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSession 会话详情
func (c *Client) GetSession(id string) (*model.Session, error) {
	var session model.Session
	if err := c.call(http.MethodGet, sessionPath(id, ""), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetMessages 会话消息
func (c *Client) GetMessages(id string) ([]model.Message, error) {
	var result struct {
		Messages []model.Message `json:"messages"`
	}
	if err := c.call(http.MethodGet, sessionPath(id, "/messages"), nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// Claim 接入会话
func (c *Client) Claim(id string) (*model.Session, error) {
	var session model.Session
	if err := c.call(http.MethodPost, sessionPath(id, "/claim"), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Send 以客服身份发送消息
func (c *Client) Send(id, message string) error {
	return c.call(http.MethodPost, sessionPath(id, "/messages"), map[string]string{"message": message}, nil)
}

// HandBack 交还自动助手
func (c *Client) HandBack(id string) error {
	return c.call(http.MethodPost, sessionPath(id, "/handback"), nil, nil)
}

// Resolve 标记已解决
func (c *Client) Resolve(id string) error {
	return c.call(http.MethodPost, sessionPath(id, "/resolve"), nil, nil)
}

// MarkRead 清空未读
func (c *Client) MarkRead(id string) error {
	return c.call(http.MethodPost, sessionPath(id, "/read"), nil, nil)
}

// Delete 删除会话及其全部消息
func (c *Client) Delete(id string) error {
	return c.call(http.MethodDelete, sessionPath(id, ""), nil, nil)
}

// OnlineOperators 在线客服 ID，仅主管可用
func (c *Client) OnlineOperators() ([]int64, error) {
	var result struct {
		OperatorIDs []int64 `json:"operator_ids"`
	}
	if err := c.call(http.MethodGet, "/api/v1/operator/online", nil, &result); err != nil {
		return nil, err
	}
	return result.OperatorIDs, nil
}

func sessionPath(id, suffix string) string {
	return "/api/v1/operator/sessions/" + url.PathEscape(id) + suffix
}

// ==================== 通用请求封装 ====================

// call 发送请求并把 data 解析到 out
// Token 过期时续期后重试一次
func (c *Client) call(method, path string, body, out interface{}) error {
	resp, err := c.do(method, path, body)
	if err != nil && c.shouldRefresh(err) {
		if refreshErr := c.refresh(); refreshErr != nil {
			return err
		}
		resp, err = c.do(method, path, body)
	}
	if err != nil {
		return err
	}

	if out == nil || len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

func (c *Client) shouldRefresh(err error) bool {
	var apiErr *Error
	return c.refreshToken != "" &&
		errors.As(err, &apiErr) &&
		apiErr.Status == http.StatusUnauthorized &&
		apiErr.Code == response.CodeUnauthorized
}

// refresh 使用 Refresh Token 换取新的 Access Token
func (c *Client) refresh() error {
	resp, err := c.send(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": c.refreshToken}, "")
	if err != nil {
		return err
	}
	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil || result.AccessToken == "" {
		return fmt.Errorf("解析刷新响应失败: %v", err)
	}

	c.accessToken = result.AccessToken
	if c.onRefresh != nil {
		c.onRefresh(result.AccessToken)
	}
	return nil
}

func (c *Client) do(method, path string, body interface{}) (*APIResponse, error) {
	return c.send(method, path, body, c.accessToken)
}

func (c *Client) send(method, path string, body interface{}, accessToken string) (*APIResponse, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("解析响应失败 (HTTP %d): %w", resp.StatusCode, err)
	}

	if apiResp.Code != response.CodeSuccess {
		return nil, &Error{Status: resp.StatusCode, Code: apiResp.Code, Message: apiResp.Message}
	}
	return &apiResp, nil
}
