// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"dealer-support-server/internal/service"
	"dealer-support-server/pkg/response"
)

// writeChatError 将会话服务错误映射为 HTTP 响应
// detail 为 true 时把存储层错误原文返回给调用方（仅限后台客服接口）
func writeChatError(c *gin.Context, err error, detail bool) {
	var storeErr *service.StoreError
	switch {
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		response.SessionNotFound(c)
	case errors.Is(err, service.ErrSessionClaimed):
		response.SessionClaimed(c)
	case errors.As(err, &storeErr) && detail:
		_ = c.Error(err)
		response.InternalError(c, storeErr.Error())
	default:
		_ = c.Error(err)
		response.InternalError(c, "服务暂时不可用，请稍后再试")
	}
}
