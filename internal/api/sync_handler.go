package api

import (
	"net/http"

	"MarketSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SyncHandler 站点同步与适配器健康检查
type SyncHandler struct {
	syncService   *service.SyncService
	healthService *service.HealthService
	logger        *logrus.Logger
}

func NewSyncHandler(syncService *service.SyncService, healthService *service.HealthService, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{syncService: syncService, healthService: healthService, logger: logger}
}

// SyncSite 同步站点数据，上游故障体现在报告的 fetch_error 中
// POST /api/sites/:site_id/sync
func (h *SyncHandler) SyncSite(c *gin.Context) {
	siteID, ok := parseIDParam(c, h.logger, "site_id")
	if !ok {
		return
	}
	report, err := h.syncService.SyncSite(c.Request.Context(), currentUser(c).ID, siteID)
	if err != nil {
		writeError(c, h.logger, "sync", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// AdapterHealth 适配器探活
// GET /api/adapters/:adapter/health
func (h *SyncHandler) AdapterHealth(c *gin.Context) {
	result, err := h.healthService.CheckHealth(c.Request.Context(), c.Param("adapter"))
	if err != nil {
		writeError(c, h.logger, "health", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
