package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"dealer-support-server/internal/middleware"
	"dealer-support-server/internal/service"
	"dealer-support-server/pkg/jwt"
	"dealer-support-server/pkg/response"
)

// AuthHandler 认证请求处理器
// 处理后台客服的登录、登出和 Token 续期
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Login 客服登录
// @Summary 客服登录
// @Description 使用用户名和密码登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body service.LoginRequest true "登录信息"
// @Success 200 {object} response.Response{data=service.LoginResponse}
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	response.SuccessWithMessage(c, "登录成功", result)
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshToken 刷新 Access Token
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	result, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	response.Success(c, result)
}

// Logout 客服登出
// 需要经过 AuthMiddleware，当前 Token 加入黑名单
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.GetToken(c)
	if token == "" {
		response.Unauthorized(c, "请先登录")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), jwt.HashToken(token), middleware.GetTokenExpire(c)); err != nil {
		_ = c.Error(err)
		response.InternalError(c, "登出失败")
		return
	}

	response.SuccessWithMessage(c, "登出成功", nil)
}

// Me 获取当前客服信息
// @Router /api/v1/operator/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	operator, err := h.authService.GetOperator(c.Request.Context(), middleware.GetOperatorID(c))
	if err != nil {
		writeAuthError(c, err)
		return
	}
	response.Success(c, operator)
}

// ChangePassword 修改密码
// @Router /api/v1/operator/me/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req service.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), middleware.GetOperatorID(c), &req); err != nil {
		writeAuthError(c, err)
		return
	}
	response.SuccessWithMessage(c, "密码修改成功", nil)
}

func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrOperatorNotFound):
		response.OperatorNotFound(c)
	case errors.Is(err, service.ErrPasswordWrong):
		response.PasswordWrong(c)
	case errors.Is(err, service.ErrOperatorDisabled):
		response.OperatorDisabled(c)
	case errors.Is(err, jwt.ErrInvalidToken), errors.Is(err, jwt.ErrExpiredToken):
		response.Unauthorized(c, "Token 无效或已过期")
	default:
		_ = c.Error(err)
		response.InternalError(c, "服务器内部错误")
	}
}
