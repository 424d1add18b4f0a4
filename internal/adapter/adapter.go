package adapter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"MarketSync/internal/config"
	"MarketSync/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// PlatformRegistry 适配器实例注册表（配置 key → 实例）
type PlatformRegistry struct {
	logger   *logrus.Logger
	adapters map[string]interfaces.PlatformAdapter
}

// NewPlatformRegistry 按配置从工厂注册表创建适配器实例
func NewPlatformRegistry(cfg *config.Config, logger *logrus.Logger) *PlatformRegistry {
	r := NewEmptyRegistry(logger)
	for key, adapterCfg := range cfg.Adapters {
		factory, ok := GetFactory(key)
		if !ok {
			logger.WithField("adapter", key).Error("未找到对应的工厂函数（init未注册？）")
			continue
		}
		c := adapterCfg
		ins := factory(&c, logger)
		if ins == nil {
			logger.WithField("adapter", key).Error("工厂函数返回nil适配器实例")
			continue
		}
		if ins.GetType() != key {
			logger.WithFields(logrus.Fields{
				"config_adapter":   key,
				"instance_adapter": ins.GetType(),
			}).Error("适配器类型与配置不匹配")
			continue
		}
		r.adapters[key] = ins
	}
	logger.WithField("adapters", r.List()).Info("适配器实例初始化完成")
	return r
}

// NewEmptyRegistry 创建空注册表（测试或手工装配用）
func NewEmptyRegistry(logger *logrus.Logger) *PlatformRegistry {
	return &PlatformRegistry{
		logger:   logger,
		adapters: make(map[string]interfaces.PlatformAdapter),
	}
}

// Add 手工注册实例
func (r *PlatformRegistry) Add(a interfaces.PlatformAdapter) {
	r.adapters[a.GetType()] = a
}

// List 已初始化的适配器标识（有序）
func (r *PlatformRegistry) List() []string {
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetAdapter 获取适配器实例
func (r *PlatformRegistry) GetAdapter(adapterKey string) (interfaces.PlatformAdapter, error) {
	ins, ok := r.adapters[adapterKey]
	if !ok {
		return nil, fmt.Errorf("适配器%s未初始化（已初始化：%v）", adapterKey, r.List())
	}
	return ins, nil
}

// ParseTime 解析平台时间字符串，空值或无法解析返回 nil（视为无信息）
func ParseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// ResolveBaseURL 站点地址优先，其次使用适配器配置
func ResolveBaseURL(siteBaseURL, cfgBaseURL string) string {
	if u := strings.TrimSpace(siteBaseURL); u != "" {
		return strings.TrimRight(u, "/")
	}
	return strings.TrimRight(cfgBaseURL, "/")
}
