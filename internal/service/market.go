package service

import (
	"context"
	"fmt"
	"time"

	"MarketSync/internal/model"
	"MarketSync/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MarketView 站点合约列表项（叠加当前用户的派生状态）
type MarketView struct {
	ID             uint64             `json:"id"`
	EventID        uint64             `json:"event_id"`
	ExternalID     string             `json:"external_id"`
	Title          string             `json:"title"`
	Status         model.MarketStatus `json:"status"`
	YesPrice       *float64           `json:"yes_price,omitempty"`
	NoPrice        *float64           `json:"no_price,omitempty"`
	Outcomes       model.OutcomeMap   `json:"outcomes,omitempty"`
	Volume         *decimal.Decimal   `json:"volume,omitempty"`
	Liquidity      *decimal.Decimal   `json:"liquidity,omitempty"`
	CloseTime      *time.Time         `json:"close_time,omitempty"`
	LastFetchedAt  time.Time          `json:"last_fetched_at"`
	Followed       bool               `json:"followed"`
	AttentionLevel int                `json:"attention_level"`
	NoProbability  *float64           `json:"no_probability,omitempty"`
	Threshold      *float64           `json:"threshold,omitempty"`
	Flagged        bool               `json:"flagged"`
}

// MarketListResult 列表返回
type MarketListResult struct {
	SiteID     uint64       `json:"site_id"`
	ActiveOnly bool         `json:"active_only"`
	Total      int          `json:"total"`
	Items      []MarketView `json:"items"`
}

// MarketService 面向前端的合约查询
type MarketService struct {
	sites   repository.SiteRepository
	catalog repository.CatalogRepository
	tracker repository.TrackerRepository
	logger  *logrus.Logger
}

// NewMarketService 创建 MarketService
func NewMarketService(sites repository.SiteRepository, catalog repository.CatalogRepository, tracker repository.TrackerRepository, logger *logrus.Logger) *MarketService {
	return &MarketService{sites: sites, catalog: catalog, tracker: tracker, logger: logger}
}

// ListSiteMarkets 默认只返回 ActiveStatuses 内的合约
func (s *MarketService) ListSiteMarkets(ctx context.Context, userID, siteID uint64, includeInactive bool) (*MarketListResult, error) {
	if _, err := s.sites.GetForUser(ctx, userID, siteID); err != nil {
		return nil, mapRepoErr(err, "站点")
	}
	markets, err := s.catalog.ListMarketsBySite(ctx, siteID, !includeInactive)
	if err != nil {
		return nil, fmt.Errorf("查询合约失败: %w", err)
	}

	followed, err := s.tracker.ListFollowedMarkets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询关注合约失败: %w", err)
	}
	levels := make(map[uint64]int, len(followed))
	for _, f := range followed {
		levels[f.MarketID] = f.AttentionLevel
	}
	evals, err := s.tracker.ListEvaluations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询评估失败: %w", err)
	}
	evalByMarket := make(map[uint64]*model.MarketNoEvaluation, len(evals))
	for _, e := range evals {
		evalByMarket[e.MarketID] = e
	}

	items := make([]MarketView, 0, len(markets))
	for _, m := range markets {
		v := MarketView{
			ID:            m.ID,
			EventID:       m.EventID,
			ExternalID:    m.ExternalID,
			Title:         m.Title,
			Status:        m.Status,
			YesPrice:      m.YesPrice,
			NoPrice:       m.NoPrice,
			Outcomes:      model.ParseOutcomes(m.Outcomes),
			Volume:        m.Volume,
			Liquidity:     m.Liquidity,
			CloseTime:     m.CloseTime,
			LastFetchedAt: m.LastFetchedAt,
		}
		if level, ok := levels[m.ID]; ok {
			v.Followed = true
			v.AttentionLevel = level
		}
		if e, ok := evalByMarket[m.ID]; ok {
			p, t := e.NoProbability, e.Threshold
			v.NoProbability = &p
			v.Threshold = &t
			v.Flagged = e.Flagged()
		}
		items = append(items, v)
	}
	return &MarketListResult{SiteID: siteID, ActiveOnly: !includeInactive, Total: len(items), Items: items}, nil
}
