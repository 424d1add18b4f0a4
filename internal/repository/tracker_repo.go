package repository

import (
	"context"

	"MarketSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EvaluationPrice 评估记录及其合约当前 No 价格
type EvaluationPrice struct {
	EvaluationID  uint64
	NoProbability float64
	NoPrice       *float64
}

// TrackerRepository 用户派生状态（关注/关注等级/No 评估）
type TrackerRepository interface {
	// Transaction 在同一事务内执行 fn（容量校验 + 写入需原子）
	Transaction(ctx context.Context, fn func(r TrackerRepository) error) error

	ListFollowedEventIDs(ctx context.Context, userID uint64) ([]uint64, error)
	IsEventFollowed(ctx context.Context, userID, eventID uint64) (bool, error)
	CountFollowedEvents(ctx context.Context, userID uint64) (int64, error)
	FollowEvent(ctx context.Context, userID, eventID uint64) error
	UnfollowEvent(ctx context.Context, userID, eventID uint64) error

	ListFollowedMarkets(ctx context.Context, userID uint64) ([]*model.UserFollowedMarket, error)
	GetFollowedMarket(ctx context.Context, userID, marketID uint64) (*model.UserFollowedMarket, error)
	CountFollowedMarkets(ctx context.Context, userID uint64) (int64, error)
	FollowMarket(ctx context.Context, userID, marketID uint64, attentionLevel int) error
	SetAttentionLevel(ctx context.Context, userID, marketID uint64, attentionLevel int) error
	UnfollowMarket(ctx context.Context, userID, marketID uint64) error

	UpsertEvaluation(ctx context.Context, e *model.MarketNoEvaluation) error
	GetEvaluation(ctx context.Context, userID, marketID uint64) (*model.MarketNoEvaluation, error)
	ListEvaluations(ctx context.Context, userID uint64) ([]*model.MarketNoEvaluation, error)
	ListEvaluationPricesBySite(ctx context.Context, siteID uint64) ([]EvaluationPrice, error)
	UpdateEvaluationProbability(ctx context.Context, evaluationID uint64, noProbability float64) error
}

type trackerRepository struct {
	db *gorm.DB
}

func NewTrackerRepository(db *gorm.DB) TrackerRepository {
	return &trackerRepository{db: db}
}

func (r *trackerRepository) Transaction(ctx context.Context, fn func(r TrackerRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&trackerRepository{db: tx})
	})
}

func (r *trackerRepository) ListFollowedEventIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	ids := []uint64{}
	if err := r.db.WithContext(ctx).Model(&model.UserFollowedEvent{}).
		Where("user_id = ?", userID).Order("event_id ASC").Pluck("event_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *trackerRepository) IsEventFollowed(ctx context.Context, userID, eventID uint64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.UserFollowedEvent{}).
		Where("user_id = ? AND event_id = ?", userID, eventID).Count(&n).Error
	return n > 0, err
}

func (r *trackerRepository) CountFollowedEvents(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.UserFollowedEvent{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (r *trackerRepository) FollowEvent(ctx context.Context, userID, eventID uint64) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.UserFollowedEvent{UserID: userID, EventID: eventID}).Error
}

func (r *trackerRepository) UnfollowEvent(ctx context.Context, userID, eventID uint64) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND event_id = ?", userID, eventID).
		Delete(&model.UserFollowedEvent{}).Error
}

func (r *trackerRepository) ListFollowedMarkets(ctx context.Context, userID uint64) ([]*model.UserFollowedMarket, error) {
	var rows []*model.UserFollowedMarket
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("market_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *trackerRepository) GetFollowedMarket(ctx context.Context, userID, marketID uint64) (*model.UserFollowedMarket, error) {
	var row model.UserFollowedMarket
	if err := r.db.WithContext(ctx).Where("user_id = ? AND market_id = ?", userID, marketID).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (r *trackerRepository) CountFollowedMarkets(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.UserFollowedMarket{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (r *trackerRepository) FollowMarket(ctx context.Context, userID, marketID uint64, attentionLevel int) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.UserFollowedMarket{UserID: userID, MarketID: marketID, AttentionLevel: attentionLevel}).Error
}

func (r *trackerRepository) SetAttentionLevel(ctx context.Context, userID, marketID uint64, attentionLevel int) error {
	res := r.db.WithContext(ctx).Model(&model.UserFollowedMarket{}).
		Where("user_id = ? AND market_id = ?", userID, marketID).
		Update("attention_level", attentionLevel)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *trackerRepository) UnfollowMarket(ctx context.Context, userID, marketID uint64) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND market_id = ?", userID, marketID).
		Delete(&model.UserFollowedMarket{}).Error
}

func (r *trackerRepository) UpsertEvaluation(ctx context.Context, e *model.MarketNoEvaluation) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "market_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"no_probability", "threshold", "updated_at"}),
	}).Create(e).Error
}

func (r *trackerRepository) GetEvaluation(ctx context.Context, userID, marketID uint64) (*model.MarketNoEvaluation, error) {
	var e model.MarketNoEvaluation
	if err := r.db.WithContext(ctx).Where("user_id = ? AND market_id = ?", userID, marketID).First(&e).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (r *trackerRepository) ListEvaluations(ctx context.Context, userID uint64) ([]*model.MarketNoEvaluation, error) {
	var rows []*model.MarketNoEvaluation
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("market_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *trackerRepository) ListEvaluationPricesBySite(ctx context.Context, siteID uint64) ([]EvaluationPrice, error) {
	var rows []EvaluationPrice
	err := r.db.WithContext(ctx).Table("market_no_evaluations AS e").
		Select("e.id AS evaluation_id, e.no_probability AS no_probability, m.no_price AS no_price").
		Joins("JOIN markets AS m ON m.id = e.market_id").
		Where("m.site_id = ?", siteID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *trackerRepository) UpdateEvaluationProbability(ctx context.Context, evaluationID uint64, noProbability float64) error {
	return r.db.WithContext(ctx).Model(&model.MarketNoEvaluation{}).Where("id = ?", evaluationID).
		Update("no_probability", noProbability).Error
}
