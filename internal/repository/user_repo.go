package repository

import (
	"context"

	"MarketSync/internal/model"

	"gorm.io/gorm"
)

// UserRepository 用户仓储（仅供鉴权中间件按令牌识别调用方）
type UserRepository interface {
	FindByToken(ctx context.Context, token string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByToken(ctx context.Context, token string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("api_token = ?", token).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}
