package api

import (
	"errors"
	"net/http"

	"MarketSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// statusFor 业务错误 → HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrCapacityExceeded), errors.Is(err, service.ErrConstraintViolation):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAdapterUnreachable), errors.Is(err, service.ErrMalformedPayload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError 统一错误输出，5xx 打 error 日志
func writeError(c *gin.Context, logger *logrus.Logger, op string, err error) {
	status := statusFor(err)
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"op":         op,
		"status":     status,
		"request_id": c.GetString(ctxRequestID),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("请求处理失败")
	} else {
		entry.Debug("请求被拒绝")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
