package api

import (
	"net/http"

	"MarketSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// MarketHandler 提供给前端的合约查询接口
type MarketHandler struct {
	marketService *service.MarketService
	logger        *logrus.Logger
}

// NewMarketHandler 创建 MarketHandler
func NewMarketHandler(marketService *service.MarketService, logger *logrus.Logger) *MarketHandler {
	return &MarketHandler{marketService: marketService, logger: logger}
}

// ListSiteMarkets 站点合约列表，默认只含 open/active
// GET /api/sites/:site_id/markets?all=1
func (h *MarketHandler) ListSiteMarkets(c *gin.Context) {
	siteID, ok := parseIDParam(c, h.logger, "site_id")
	if !ok {
		return
	}
	all := c.Query("all") == "1" || c.Query("all") == "true"
	result, err := h.marketService.ListSiteMarkets(c.Request.Context(), currentUser(c).ID, siteID, all)
	if err != nil {
		writeError(c, h.logger, "list_markets", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
