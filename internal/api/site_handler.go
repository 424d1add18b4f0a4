package api

import (
	"fmt"
	"net/http"

	"MarketSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SiteHandler 站点管理
type SiteHandler struct {
	siteService    *service.SiteService
	trackerService *service.TrackerService
	logger         *logrus.Logger
}

func NewSiteHandler(siteService *service.SiteService, trackerService *service.TrackerService, logger *logrus.Logger) *SiteHandler {
	return &SiteHandler{siteService: siteService, trackerService: trackerService, logger: logger}
}

// ListSites GET /api/sites
func (h *SiteHandler) ListSites(c *gin.Context) {
	views, err := h.siteService.ListSites(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		writeError(c, h.logger, "list_sites", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": views})
}

// CreateSite POST /api/sites
func (h *SiteHandler) CreateSite(c *gin.Context) {
	var req service.CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, "create_site", fmt.Errorf("%v: %w", err, service.ErrInvalidInput))
		return
	}
	view, err := h.siteService.CreateSite(c.Request.Context(), currentUser(c).ID, req)
	if err != nil {
		writeError(c, h.logger, "create_site", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// DeleteSite 级联删除站点
// DELETE /api/sites/:site_id
func (h *SiteHandler) DeleteSite(c *gin.Context) {
	siteID, ok := parseIDParam(c, h.logger, "site_id")
	if !ok {
		return
	}
	res, err := h.trackerService.DeleteSite(c.Request.Context(), currentUser(c).ID, siteID)
	if err != nil {
		writeError(c, h.logger, "delete_site", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": res})
}
