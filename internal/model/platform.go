package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ClearMask 适配器显式声明“上游已删除”的可选字段
// 未声明时 nil 字段视为“无信息”，保留库中原值
type ClearMask uint8

const (
	ClearDescription ClearMask = 1 << iota
	ClearVolume
	ClearLiquidity
	ClearOutcomes
	ClearPrices
)

// Has 是否包含指定字段
func (m ClearMask) Has(f ClearMask) bool { return m&f != 0 }

// OutcomeMap 结果标签 → 概率 [0,1]
type OutcomeMap map[string]float64

// JSON 序列化为存储格式；nil 返回 nil
func (o OutcomeMap) JSON() datatypes.JSON {
	if o == nil {
		return nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil
	}
	return b
}

// ParseOutcomes 反序列化库中结果分布，空值或格式错误返回 nil
func ParseOutcomes(raw datatypes.JSON) OutcomeMap {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var o OutcomeMap
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil
	}
	return o
}

// EventMarketInput 适配器统一输出的事件（含其下合约）
type EventMarketInput struct {
	ExternalID  string
	Section     string
	Title       string
	Description *string
	Status      string
	CreatedAt   *time.Time
	EndDate     *time.Time
	Volume      *decimal.Decimal
	Liquidity   *decimal.Decimal
	Outcomes    OutcomeMap
	Clear       ClearMask
	Markets     []*MarketInput
}

// MarketInput 适配器统一输出的合约
type MarketInput struct {
	ExternalID string
	Title      string
	Status     string
	YesPrice   *float64
	NoPrice    *float64
	Outcomes   OutcomeMap
	Volume     *decimal.Decimal
	Liquidity  *decimal.Decimal
	CreatedAt  *time.Time
	CloseTime  *time.Time
	Clear      ClearMask
}

// HealthProbe 适配器探活的原始结果，由 service 层校验结构
// ListKey 为空表示响应体本身就是数组
type HealthProbe struct {
	StatusCode int
	Body       []byte
	ListKey    string
}

// SiteView 站点对外视图，凭证只以布尔值暴露
type SiteView struct {
	ID             uint64    `json:"id"`
	Name           string    `json:"name"`
	BaseURL        string    `json:"base_url"`
	AdapterKey     string    `json:"adapter_key"`
	HasCredentials bool      `json:"has_credentials"`
	EventCount     int64     `json:"event_count"`
	MarketCount    int64     `json:"market_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// View 生成脱敏视图
func (s *Site) View() SiteView {
	return SiteView{
		ID:             s.ID,
		Name:           s.Name,
		BaseURL:        s.BaseURL,
		AdapterKey:     s.AdapterKey,
		HasCredentials: s.HasCredentials(),
		CreatedAt:      s.CreatedAt,
	}
}
