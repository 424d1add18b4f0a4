package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"MarketSync/internal/adapter"
	"MarketSync/internal/model"
	"MarketSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// CreateSiteRequest 创建站点参数
type CreateSiteRequest struct {
	Name       string `json:"name" binding:"required"`
	AdapterKey string `json:"adapter_key" binding:"required"`
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
}

// SiteService 站点的增查（删除走 TrackerService.DeleteSite 级联）
type SiteService struct {
	sites    repository.SiteRepository
	catalog  repository.CatalogRepository
	registry *adapter.PlatformRegistry
	logger   *logrus.Logger
}

func NewSiteService(sites repository.SiteRepository, catalog repository.CatalogRepository, registry *adapter.PlatformRegistry, logger *logrus.Logger) *SiteService {
	return &SiteService{sites: sites, catalog: catalog, registry: registry, logger: logger}
}

// CreateSite adapter_key 必须是已注册的适配器
func (s *SiteService) CreateSite(ctx context.Context, userID uint64, req CreateSiteRequest) (*model.SiteView, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("name 不能为空: %w", ErrInvalidInput)
	}
	if _, err := s.registry.GetAdapter(req.AdapterKey); err != nil {
		return nil, fmt.Errorf("未知适配器%q: %w", req.AdapterKey, ErrInvalidInput)
	}
	if req.BaseURL != "" {
		u, err := url.Parse(req.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("base_url 格式错误: %w", ErrInvalidInput)
		}
	}
	if (req.APIKey == "") != (req.APISecret == "") {
		return nil, fmt.Errorf("api_key 与 api_secret 需同时提供: %w", ErrInvalidInput)
	}

	site := &model.Site{
		UserID:     userID,
		Name:       req.Name,
		BaseURL:    strings.TrimRight(req.BaseURL, "/"),
		AdapterKey: req.AdapterKey,
		APIKey:     req.APIKey,
		APISecret:  req.APISecret,
	}
	if err := s.sites.Create(ctx, site); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, fmt.Errorf("%w: %v", ErrConstraintViolation, err)
		}
		return nil, fmt.Errorf("创建站点失败: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"site_id": site.ID, "adapter": site.AdapterKey}).Info("站点已创建")
	view := site.View()
	return &view, nil
}

// ListSites 用户名下站点（脱敏），附带缓存的事件/合约数量
func (s *SiteService) ListSites(ctx context.Context, userID uint64) ([]model.SiteView, error) {
	sites, err := s.sites.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询站点失败: %w", err)
	}
	views := make([]model.SiteView, 0, len(sites))
	for _, site := range sites {
		view := site.View()
		view.EventCount, view.MarketCount, err = s.catalog.CountBySite(ctx, site.ID)
		if err != nil {
			return nil, fmt.Errorf("统计站点缓存失败: %w", err)
		}
		views = append(views, view)
	}
	return views, nil
}
