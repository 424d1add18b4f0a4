package repository

import (
	"context"

	"MarketSync/internal/model"

	"gorm.io/gorm"
)

// CascadeResult 级联删除各表删除行数
type CascadeResult struct {
	Evaluations     int64 `json:"evaluations"`
	FollowedMarkets int64 `json:"followed_markets"`
	FollowedEvents  int64 `json:"followed_events"`
	Markets         int64 `json:"markets"`
	Events          int64 `json:"events"`
}

// SiteRepository 站点仓储
type SiteRepository interface {
	Create(ctx context.Context, s *model.Site) error
	ListByUser(ctx context.Context, userID uint64) ([]*model.Site, error)
	ListAll(ctx context.Context) ([]*model.Site, error)
	// GetForUser 只返回属于该用户的站点，否则 ErrNotFound
	GetForUser(ctx context.Context, userID, siteID uint64) (*model.Site, error)
	// DeleteCascade 在一个事务内删除站点及其全部事件、合约与派生状态
	DeleteCascade(ctx context.Context, siteID uint64) (*CascadeResult, error)
}

type siteRepository struct {
	db *gorm.DB
}

func NewSiteRepository(db *gorm.DB) SiteRepository {
	return &siteRepository{db: db}
}

func (r *siteRepository) Create(ctx context.Context, s *model.Site) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *siteRepository) ListByUser(ctx context.Context, userID uint64) ([]*model.Site, error) {
	var sites []*model.Site
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}

func (r *siteRepository) ListAll(ctx context.Context) ([]*model.Site, error) {
	var sites []*model.Site
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}

func (r *siteRepository) GetForUser(ctx context.Context, userID, siteID uint64) (*model.Site, error) {
	var s model.Site
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", siteID, userID).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *siteRepository) DeleteCascade(ctx context.Context, siteID uint64) (*CascadeResult, error) {
	res := &CascadeResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var eventIDs, marketIDs []uint64
		if err := tx.Model(&model.Event{}).Where("site_id = ?", siteID).Pluck("id", &eventIDs).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Market{}).Where("site_id = ?", siteID).Pluck("id", &marketIDs).Error; err != nil {
			return err
		}

		d := tx.Where("market_id IN ?", marketIDs).Delete(&model.MarketNoEvaluation{})
		if d.Error != nil {
			return d.Error
		}
		res.Evaluations = d.RowsAffected

		d = tx.Where("market_id IN ?", marketIDs).Delete(&model.UserFollowedMarket{})
		if d.Error != nil {
			return d.Error
		}
		res.FollowedMarkets = d.RowsAffected

		d = tx.Where("event_id IN ?", eventIDs).Delete(&model.UserFollowedEvent{})
		if d.Error != nil {
			return d.Error
		}
		res.FollowedEvents = d.RowsAffected

		d = tx.Where("site_id = ?", siteID).Delete(&model.Market{})
		if d.Error != nil {
			return d.Error
		}
		res.Markets = d.RowsAffected

		d = tx.Where("site_id = ?", siteID).Delete(&model.Event{})
		if d.Error != nil {
			return d.Error
		}
		res.Events = d.RowsAffected

		d = tx.Where("id = ?", siteID).Delete(&model.Site{})
		if d.Error != nil {
			return d.Error
		}
		if d.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
