package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"MarketSync/internal/model"
	"MarketSync/internal/ratelimit"
	"MarketSync/internal/repository"
	"MarketSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	ctxRequestID = "request_id"
	ctxUser      = "user"

	headerRequestID = "X-Request-ID"
)

// RequestID 透传或生成请求 id
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// AccessLog 用 logrus 记录访问日志
func AccessLog(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": c.GetString(ctxRequestID),
		}).Debug("request")
	}
}

// RequireUser 按 Authorization: Bearer <api_token> 识别调用方
func RequireUser(users repository.UserRepository, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			writeError(c, logger, "auth", fmt.Errorf("缺少令牌: %w", service.ErrUnauthorized))
			return
		}
		user, err := users.FindByToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeError(c, logger, "auth", fmt.Errorf("令牌无效: %w", service.ErrUnauthorized))
				return
			}
			writeError(c, logger, "auth", err)
			return
		}
		c.Set(ctxUser, user)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// currentUser RequireUser 之后调用
func currentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil
	}
	u, _ := v.(*model.User)
	return u
}

// RateLimit 以 {prefix}:{client} 为 key 限流，超限返回 429 + Retry-After
func RateLimit(limiter *ratelimit.Limiter, prefix string, logger *logrus.Logger) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(limiter.Window().Seconds())))
	return func(c *gin.Context) {
		client := ratelimit.ClientIdentifier(c.Request)
		if !limiter.Allow(ratelimit.Key(prefix, client)) {
			c.Header("Retry-After", retryAfter)
			logger.WithFields(logrus.Fields{"prefix": prefix, "client": client}).Warn("触发限流")
			writeError(c, logger, prefix, fmt.Errorf("请求过于频繁: %w", service.ErrRateLimited))
			return
		}
		c.Next()
	}
}

// parseIDParam 路径参数转 uint64，非法时写 400
func parseIDParam(c *gin.Context, logger *logrus.Logger, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		writeError(c, logger, name, fmt.Errorf("%s 非法: %w", name, service.ErrInvalidInput))
		return 0, false
	}
	return id, true
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
