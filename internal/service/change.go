package service

import (
	"math"
	"time"

	"MarketSync/internal/config"
	"MarketSync/internal/model"

	"github.com/shopspring/decimal"
)

// FieldRule 一条参与变更判定的字段规则
type FieldRule[F, S any] struct {
	Name  string
	Equal func(fetched F, stored S) bool
}

// ChangeDetector 按有序规则列表判定“语义变更”。
// 判定字段与写入字段解耦：一旦判定有变更，写入时总是全字段覆盖。
type ChangeDetector[F, S any] struct {
	rules []FieldRule[F, S]
}

// NewChangeDetector 创建判定器
func NewChangeDetector[F, S any](rules ...FieldRule[F, S]) *ChangeDetector[F, S] {
	return &ChangeDetector[F, S]{rules: rules}
}

// HasSemanticChange 任一规则不相等即返回 true
func (d *ChangeDetector[F, S]) HasSemanticChange(fetched F, stored S) bool {
	for _, r := range d.rules {
		if !r.Equal(fetched, stored) {
			return true
		}
	}
	return false
}

// ChangedFields 返回不相等的规则名（日志用）
func (d *ChangeDetector[F, S]) ChangedFields(fetched F, stored S) []string {
	var changed []string
	for _, r := range d.rules {
		if !r.Equal(fetched, stored) {
			changed = append(changed, r.Name)
		}
	}
	return changed
}

// RuleNames 当前规则名
func (d *ChangeDetector[F, S]) RuleNames() []string {
	names := make([]string, 0, len(d.rules))
	for _, r := range d.rules {
		names = append(names, r.Name)
	}
	return names
}

type (
	EventDetector  = ChangeDetector[*model.EventMarketInput, *model.Event]
	MarketDetector = ChangeDetector[*model.MarketInput, *model.Market]
	eventRule      = FieldRule[*model.EventMarketInput, *model.Event]
	marketRule     = FieldRule[*model.MarketInput, *model.Market]
)

// EventTimestampRules 默认事件规则：仅创建时间与结束时间
func EventTimestampRules() []eventRule {
	return []eventRule{
		{Name: "external_created_at", Equal: func(f *model.EventMarketInput, s *model.Event) bool {
			return TimesEqual(f.CreatedAt, s.ExternalCreatedAt)
		}},
		{Name: "end_date", Equal: func(f *model.EventMarketInput, s *model.Event) bool {
			return TimesEqual(f.EndDate, s.EndDate)
		}},
	}
}

// EventBroadRules 默认规则 + 标题、描述、成交量、流动性、结果分布
func EventBroadRules() []eventRule {
	return append(EventTimestampRules(),
		eventRule{Name: "title", Equal: func(f *model.EventMarketInput, s *model.Event) bool {
			return f.Title == s.Title
		}},
		eventRule{Name: "description", Equal: func(f *model.EventMarketInput, s *model.Event) bool {
			return optionalStringEqual(f.Description, s.Description, f.Clear.Has(model.ClearDescription))
		}},
		eventRule{Name: "volume", Equal: func(f *model.EventMarketInput, s *model.Event) bool {
			return optionalDecimalEqual(f.Volume, s.Volume, f.Clear.Has(model.ClearVolume))
		}},
		eventRule{Name: "liquidity", Equal: func(f *model.EventMarketInput, s *model.Event) bool {
			return optionalDecimalEqual(f.Liquidity, s.Liquidity, f.Clear.Has(model.ClearLiquidity))
		}},
		eventRule{Name: "outcomes", Equal: func(f *model.EventMarketInput, s *model.Event) bool {
			return optionalOutcomesEqual(f.Outcomes, model.ParseOutcomes(s.Outcomes), f.Clear.Has(model.ClearOutcomes))
		}},
	)
}

// MarketTimestampRules 默认合约规则：创建时间、收盘时间、状态
func MarketTimestampRules() []marketRule {
	return []marketRule{
		{Name: "external_created_at", Equal: func(f *model.MarketInput, s *model.Market) bool {
			return TimesEqual(f.CreatedAt, s.ExternalCreatedAt)
		}},
		{Name: "close_time", Equal: func(f *model.MarketInput, s *model.Market) bool {
			return TimesEqual(f.CloseTime, s.CloseTime)
		}},
		{Name: "status", Equal: func(f *model.MarketInput, s *model.Market) bool {
			return model.ClassifyStatus(f.Status) == s.Status
		}},
	}
}

// MarketBroadRules 默认规则 + 标题、价格、成交量、流动性、结果分布
func MarketBroadRules() []marketRule {
	return append(MarketTimestampRules(),
		marketRule{Name: "title", Equal: func(f *model.MarketInput, s *model.Market) bool {
			return f.Title == s.Title
		}},
		marketRule{Name: "yes_price", Equal: func(f *model.MarketInput, s *model.Market) bool {
			return optionalFloatEqual(f.YesPrice, s.YesPrice, f.Clear.Has(model.ClearPrices))
		}},
		marketRule{Name: "no_price", Equal: func(f *model.MarketInput, s *model.Market) bool {
			return optionalFloatEqual(f.NoPrice, s.NoPrice, f.Clear.Has(model.ClearPrices))
		}},
		marketRule{Name: "volume", Equal: func(f *model.MarketInput, s *model.Market) bool {
			return optionalDecimalEqual(f.Volume, s.Volume, f.Clear.Has(model.ClearVolume))
		}},
		marketRule{Name: "liquidity", Equal: func(f *model.MarketInput, s *model.Market) bool {
			return optionalDecimalEqual(f.Liquidity, s.Liquidity, f.Clear.Has(model.ClearLiquidity))
		}},
		marketRule{Name: "outcomes", Equal: func(f *model.MarketInput, s *model.Market) bool {
			return optionalOutcomesEqual(f.Outcomes, model.ParseOutcomes(s.Outcomes), f.Clear.Has(model.ClearOutcomes))
		}},
	)
}

// NewDetectors 按配置策略构建事件与合约判定器
func NewDetectors(policy string) (*EventDetector, *MarketDetector) {
	if policy == config.ChangePolicyBroad {
		return NewChangeDetector(EventBroadRules()...), NewChangeDetector(MarketBroadRules()...)
	}
	return NewChangeDetector(EventTimestampRules()...), NewChangeDetector(MarketTimestampRules()...)
}

// TimesEqual nil 与 nil 相等，nil 与非 nil 不等，其余按 UTC 毫秒比较
func TimesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return truncMillis(*a).Equal(truncMillis(*b))
}

func truncMillis(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// 可选字段：抓取值为 nil 表示“无信息”，只有显式清除时才与非空库值不等

func optionalStringEqual(f, s *string, clear bool) bool {
	if f == nil {
		return !clear || s == nil
	}
	return s != nil && *f == *s
}

func optionalDecimalEqual(f, s *decimal.Decimal, clear bool) bool {
	if f == nil {
		return !clear || s == nil
	}
	return s != nil && f.Equal(*s)
}

const floatEpsilon = 1e-9

func optionalFloatEqual(f, s *float64, clear bool) bool {
	if f == nil {
		return !clear || s == nil
	}
	return s != nil && math.Abs(*f-*s) < floatEpsilon
}

func optionalOutcomesEqual(f, s model.OutcomeMap, clear bool) bool {
	if f == nil {
		return !clear || s == nil
	}
	if s == nil || len(f) != len(s) {
		return false
	}
	for k, v := range f {
		sv, ok := s[k]
		if !ok || math.Abs(v-sv) >= floatEpsilon {
			return false
		}
	}
	return true
}
