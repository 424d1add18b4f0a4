package repository

import (
	"context"
	"time"

	"MarketSync/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogRepository 事件/合约缓存的读写（按自然键定位）
type CatalogRepository interface {
	FindEvent(ctx context.Context, siteID uint64, section, externalID string) (*model.Event, error)
	CreateEvent(ctx context.Context, e *model.Event) error
	// UpdateEvent 全字段覆盖（除 id / created_at）
	UpdateEvent(ctx context.Context, e *model.Event) error
	TouchEvent(ctx context.Context, id uint64, fetchedAt time.Time) error
	GetEvent(ctx context.Context, id uint64) (*model.Event, error)

	FindMarket(ctx context.Context, siteID, eventID uint64, externalID string) (*model.Market, error)
	CreateMarket(ctx context.Context, m *model.Market) error
	UpdateMarket(ctx context.Context, m *model.Market) error
	TouchMarket(ctx context.Context, id uint64, fetchedAt time.Time) error
	GetMarket(ctx context.Context, id uint64) (*model.Market, error)
	// ListMarketsBySite activeOnly 时只返回 ActiveStatuses 内的合约
	ListMarketsBySite(ctx context.Context, siteID uint64, activeOnly bool) ([]*model.Market, error)
	CountBySite(ctx context.Context, siteID uint64) (events int64, markets int64, err error)
}

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository 创建 CatalogRepository 实例
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) FindEvent(ctx context.Context, siteID uint64, section, externalID string) (*model.Event, error) {
	var e model.Event
	err := r.db.WithContext(ctx).
		Where("site_id = ? AND section = ? AND external_id = ?", siteID, section, externalID).
		First(&e).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (r *catalogRepository) CreateEvent(ctx context.Context, e *model.Event) error {
	if e.EventUUID == "" {
		e.EventUUID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *catalogRepository) UpdateEvent(ctx context.Context, e *model.Event) error {
	return r.db.WithContext(ctx).Model(e).Select("*").Omit("id", "created_at").Updates(e).Error
}

func (r *catalogRepository) TouchEvent(ctx context.Context, id uint64, fetchedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Event{}).Where("id = ?", id).
		UpdateColumn("last_fetched_at", fetchedAt).Error
}

func (r *catalogRepository) GetEvent(ctx context.Context, id uint64) (*model.Event, error) {
	var e model.Event
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (r *catalogRepository) FindMarket(ctx context.Context, siteID, eventID uint64, externalID string) (*model.Market, error) {
	var m model.Market
	err := r.db.WithContext(ctx).
		Where("site_id = ? AND event_id = ? AND external_id = ?", siteID, eventID, externalID).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *catalogRepository) CreateMarket(ctx context.Context, m *model.Market) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *catalogRepository) UpdateMarket(ctx context.Context, m *model.Market) error {
	return r.db.WithContext(ctx).Model(m).Select("*").Omit("id", "created_at").Updates(m).Error
}

func (r *catalogRepository) TouchMarket(ctx context.Context, id uint64, fetchedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Market{}).Where("id = ?", id).
		UpdateColumn("last_fetched_at", fetchedAt).Error
}

func (r *catalogRepository) GetMarket(ctx context.Context, id uint64) (*model.Market, error) {
	var m model.Market
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *catalogRepository) ListMarketsBySite(ctx context.Context, siteID uint64, activeOnly bool) ([]*model.Market, error) {
	db := r.db.WithContext(ctx).Where("site_id = ?", siteID)
	if activeOnly {
		db = db.Where("status IN ?", model.ActiveStatusList())
	}
	var markets []*model.Market
	if err := db.Order("close_time ASC, id ASC").Find(&markets).Error; err != nil {
		return nil, err
	}
	return markets, nil
}

func (r *catalogRepository) CountBySite(ctx context.Context, siteID uint64) (int64, int64, error) {
	var events, markets int64
	if err := r.db.WithContext(ctx).Model(&model.Event{}).Where("site_id = ?", siteID).Count(&events).Error; err != nil {
		return 0, 0, err
	}
	if err := r.db.WithContext(ctx).Model(&model.Market{}).Where("site_id = ?", siteID).Count(&markets).Error; err != nil {
		return 0, 0, err
	}
	return events, markets, nil
}
