package interfaces

import (
	"context"

	"MarketSync/internal/config"
	"MarketSync/internal/model"

	"github.com/sirupsen/logrus"
)

// PlatformAdapter 所有外部平台适配器必须实现的能力契约
type PlatformAdapter interface {
	// GetType 适配器标识（与配置 key 一致）
	GetType() string
	// FetchEvents 拉取站点下的事件及其合约
	FetchEvents(ctx context.Context, site *model.Site) ([]*model.EventMarketInput, error)
	// HealthProbe 轻量探活（目录接口），只返回原始结果
	HealthProbe(ctx context.Context) (*model.HealthProbe, error)
}

// Factory 平台适配器工厂函数签名
type Factory func(cfg *config.AdapterConfig, logger *logrus.Logger) PlatformAdapter
