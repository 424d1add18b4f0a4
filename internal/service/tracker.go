package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"MarketSync/internal/model"
	"MarketSync/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	// MaxFollowedEvents 每个用户最多关注的事件数
	MaxFollowedEvents = 50
	// MaxFollowedMarkets 每个用户最多关注的合约数
	MaxFollowedMarkets = 50

	MinAttentionLevel = 0
	MaxAttentionLevel = 5
)

// FlaggedMarket 触发阈值的 No 评估
type FlaggedMarket struct {
	MarketID      uint64  `json:"market_id"`
	Title         string  `json:"title"`
	NoProbability float64 `json:"no_probability"`
	Threshold     float64 `json:"threshold"`
}

// TrackerService 用户派生状态：关注、关注等级、No 评估
type TrackerService struct {
	tracker repository.TrackerRepository
	catalog repository.CatalogRepository
	sites   repository.SiteRepository
	logger  *logrus.Logger
}

// NewTrackerService 创建 TrackerService
func NewTrackerService(tracker repository.TrackerRepository, catalog repository.CatalogRepository, sites repository.SiteRepository, logger *logrus.Logger) *TrackerService {
	return &TrackerService{tracker: tracker, catalog: catalog, sites: sites, logger: logger}
}

// FollowedEventIDs 用户关注的事件 id
func (s *TrackerService) FollowedEventIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	ids, err := s.tracker.ListFollowedEventIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询关注事件失败: %w", err)
	}
	return ids, nil
}

// AttentionLevels 合约 id → 关注等级
func (s *TrackerService) AttentionLevels(ctx context.Context, userID uint64) (map[uint64]int, error) {
	rows, err := s.tracker.ListFollowedMarkets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询关注合约失败: %w", err)
	}
	levels := make(map[uint64]int, len(rows))
	for _, r := range rows {
		levels[r.MarketID] = r.AttentionLevel
	}
	return levels, nil
}

// ToggleFollowEvent follow=true 关注（已关注时幂等），false 取消关注
func (s *TrackerService) ToggleFollowEvent(ctx context.Context, userID, eventID uint64, follow bool) error {
	if !follow {
		return s.tracker.UnfollowEvent(ctx, userID, eventID)
	}
	if _, err := s.catalog.GetEvent(ctx, eventID); err != nil {
		return mapRepoErr(err, "事件")
	}
	err := s.tracker.Transaction(ctx, func(r repository.TrackerRepository) error {
		followed, err := r.IsEventFollowed(ctx, userID, eventID)
		if err != nil {
			return err
		}
		if followed {
			return nil
		}
		n, err := r.CountFollowedEvents(ctx, userID)
		if err != nil {
			return err
		}
		if n >= MaxFollowedEvents {
			return fmt.Errorf("最多关注%d个事件: %w", MaxFollowedEvents, ErrCapacityExceeded)
		}
		return r.FollowEvent(ctx, userID, eventID)
	})
	return parentGone(err, "事件")
}

// ToggleFollowMarket 关注合约时等级为 0
func (s *TrackerService) ToggleFollowMarket(ctx context.Context, userID, marketID uint64, follow bool) error {
	if !follow {
		return s.tracker.UnfollowMarket(ctx, userID, marketID)
	}
	if _, err := s.catalog.GetMarket(ctx, marketID); err != nil {
		return mapRepoErr(err, "合约")
	}
	err := s.tracker.Transaction(ctx, func(r repository.TrackerRepository) error {
		_, err := s.followMarketLocked(ctx, r, userID, marketID, MinAttentionLevel)
		return err
	})
	return parentGone(err, "合约")
}

// SetAttentionLevel 未关注时隐式关注（计入上限）
func (s *TrackerService) SetAttentionLevel(ctx context.Context, userID, marketID uint64, level int) error {
	if level < MinAttentionLevel || level > MaxAttentionLevel {
		return fmt.Errorf("attention level 需在%d..%d之间: %w", MinAttentionLevel, MaxAttentionLevel, ErrInvalidInput)
	}
	if _, err := s.catalog.GetMarket(ctx, marketID); err != nil {
		return mapRepoErr(err, "合约")
	}
	err := s.tracker.Transaction(ctx, func(r repository.TrackerRepository) error {
		created, err := s.followMarketLocked(ctx, r, userID, marketID, level)
		if err != nil || created {
			return err
		}
		return r.SetAttentionLevel(ctx, userID, marketID, level)
	})
	return parentGone(err, "合约")
}

// followMarketLocked 已关注返回 created=false
func (s *TrackerService) followMarketLocked(ctx context.Context, r repository.TrackerRepository, userID, marketID uint64, level int) (bool, error) {
	_, err := r.GetFollowedMarket(ctx, userID, marketID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	n, err := r.CountFollowedMarkets(ctx, userID)
	if err != nil {
		return false, err
	}
	if n >= MaxFollowedMarkets {
		return false, fmt.Errorf("最多关注%d个合约: %w", MaxFollowedMarkets, ErrCapacityExceeded)
	}
	return true, r.FollowMarket(ctx, userID, marketID, level)
}

// UpsertNoEvaluation thresholdPercent 为 0..100，nil 时使用默认 10%
func (s *TrackerService) UpsertNoEvaluation(ctx context.Context, userID, marketID uint64, noProbability float64, thresholdPercent *int) (*model.MarketNoEvaluation, error) {
	if math.IsNaN(noProbability) || noProbability < 0 || noProbability > 1 {
		return nil, fmt.Errorf("no_probability 需在[0,1]之间: %w", ErrInvalidInput)
	}
	threshold := model.DefaultNoThreshold
	if thresholdPercent != nil {
		if *thresholdPercent < 0 || *thresholdPercent > 100 {
			return nil, fmt.Errorf("threshold 需在0..100之间: %w", ErrInvalidInput)
		}
		threshold = float64(*thresholdPercent) / 100
	}
	if _, err := s.catalog.GetMarket(ctx, marketID); err != nil {
		return nil, mapRepoErr(err, "合约")
	}

	eval := &model.MarketNoEvaluation{
		UserID:        userID,
		MarketID:      marketID,
		NoProbability: noProbability,
		Threshold:     threshold,
	}
	if err := s.tracker.UpsertEvaluation(ctx, eval); err != nil {
		if repository.IsForeignKeyViolation(err) {
			return nil, parentGone(err, "合约")
		}
		return nil, fmt.Errorf("保存评估失败: %w", err)
	}
	return s.tracker.GetEvaluation(ctx, userID, marketID)
}

// FlaggedMarkets no_probability >= threshold 的评估
func (s *TrackerService) FlaggedMarkets(ctx context.Context, userID uint64) ([]FlaggedMarket, error) {
	evals, err := s.tracker.ListEvaluations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询评估失败: %w", err)
	}
	flagged := make([]FlaggedMarket, 0)
	for _, e := range evals {
		if !e.Flagged() {
			continue
		}
		item := FlaggedMarket{MarketID: e.MarketID, NoProbability: e.NoProbability, Threshold: e.Threshold}
		if m, err := s.catalog.GetMarket(ctx, e.MarketID); err == nil {
			item.Title = m.Title
		}
		flagged = append(flagged, item)
	}
	return flagged, nil
}

// RefreshNoEvaluations 同步后按合约最新 no_price 重算该站点下的评估
func (s *TrackerService) RefreshNoEvaluations(ctx context.Context, siteID uint64) (int, error) {
	rows, err := s.tracker.ListEvaluationPricesBySite(ctx, siteID)
	if err != nil {
		return 0, fmt.Errorf("查询站点评估失败: %w", err)
	}
	updated := 0
	for _, row := range rows {
		if row.NoPrice == nil || *row.NoPrice < 0 || *row.NoPrice > 1 {
			continue
		}
		if math.Abs(*row.NoPrice-row.NoProbability) < 1e-9 {
			continue
		}
		if err := s.tracker.UpdateEvaluationProbability(ctx, row.EvaluationID, *row.NoPrice); err != nil {
			s.logger.WithError(err).WithField("evaluation_id", row.EvaluationID).Warn("刷新评估失败")
			continue
		}
		updated++
	}
	return updated, nil
}

// OnCatalogSynced 实现 CatalogListener
func (s *TrackerService) OnCatalogSynced(ctx context.Context, siteID uint64) error {
	n, err := s.RefreshNoEvaluations(ctx, siteID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.WithFields(logrus.Fields{"site_id": siteID, "updated": n}).Info("No 评估已按最新价格刷新")
	}
	return nil
}

// DeleteSite 级联删除站点及其全部派生数据（单事务）
func (s *TrackerService) DeleteSite(ctx context.Context, userID, siteID uint64) (*repository.CascadeResult, error) {
	if _, err := s.sites.GetForUser(ctx, userID, siteID); err != nil {
		return nil, mapRepoErr(err, "站点")
	}
	res, err := s.sites.DeleteCascade(ctx, siteID)
	if err != nil {
		return nil, mapRepoErr(err, "站点")
	}
	s.logger.WithFields(logrus.Fields{
		"site_id":          siteID,
		"events":           res.Events,
		"markets":          res.Markets,
		"followed_events":  res.FollowedEvents,
		"followed_markets": res.FollowedMarkets,
		"evaluations":      res.Evaluations,
	}).Info("站点已级联删除")
	return res, nil
}

// parentGone 存在性检查之后、写入之前父记录被删（如站点级联删除），外键拒绝写入
func parentGone(err error, what string) error {
	if repository.IsForeignKeyViolation(err) {
		return fmt.Errorf("%s已被删除: %w", what, ErrNotFound)
	}
	return err
}

func mapRepoErr(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s不存在: %w", what, ErrNotFound)
	}
	return fmt.Errorf("查询%s失败: %w", what, err)
}
