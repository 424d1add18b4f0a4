package api

import (
	"MarketSync/internal/ratelimit"
	"MarketSync/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handlers 路由依赖
type Handlers struct {
	Sync    *SyncHandler
	Site    *SiteHandler
	Market  *MarketHandler
	Tracker *TrackerHandler
}

// RegisterRoutes 注册全部业务路由；访问上游的入口（同步、探活）挂限流
func RegisterRoutes(r *gin.Engine, h Handlers, users repository.UserRepository, limiter *ratelimit.Limiter, logger *logrus.Logger) {
	r.Use(RequestID(), AccessLog(logger))
	r.GET("/healthz", healthz)

	apiGroup := r.Group("/api", RequireUser(users, logger))

	apiGroup.GET("/adapters/:adapter/health", RateLimit(limiter, "health", logger), h.Sync.AdapterHealth)
	apiGroup.POST("/sites/:site_id/sync", RateLimit(limiter, "sync", logger), h.Sync.SyncSite)

	apiGroup.GET("/sites", h.Site.ListSites)
	apiGroup.POST("/sites", h.Site.CreateSite)
	apiGroup.DELETE("/sites/:site_id", h.Site.DeleteSite)
	apiGroup.GET("/sites/:site_id/markets", h.Market.ListSiteMarkets)

	apiGroup.GET("/me/followed-events", h.Tracker.FollowedEvents)
	apiGroup.GET("/me/attention", h.Tracker.AttentionLevels)
	apiGroup.GET("/me/flagged", h.Tracker.Flagged)
	apiGroup.POST("/events/:event_id/follow", h.Tracker.FollowEvent)
	apiGroup.DELETE("/events/:event_id/follow", h.Tracker.FollowEvent)
	apiGroup.POST("/markets/:market_id/follow", h.Tracker.FollowMarket)
	apiGroup.DELETE("/markets/:market_id/follow", h.Tracker.FollowMarket)
	apiGroup.PUT("/markets/:market_id/attention", h.Tracker.SetAttention)
	apiGroup.PUT("/markets/:market_id/evaluation", h.Tracker.SetEvaluation)
}
