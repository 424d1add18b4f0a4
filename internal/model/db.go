package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// User 仪表盘用户（仅用于鉴权识别调用方）
type User struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	Email     string    `gorm:"column:email;type:varchar(256);uniqueIndex;not null;comment:邮箱"`
	APIToken  string    `gorm:"column:api_token;type:varchar(128);uniqueIndex;not null;comment:接口令牌"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`
}

// Site 用户配置的外部平台实例（适配器 + 地址 + 可选凭证）
// 凭证字段不参与 JSON 序列化，对外只暴露 SiteView.HasCredentials
type Site struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	UserID     uint64    `gorm:"column:user_id;type:bigint;index;not null;comment:所属用户"`
	Name       string    `gorm:"column:name;type:varchar(128);not null;comment:站点名称"`
	BaseURL    string    `gorm:"column:base_url;type:varchar(256);comment:API基础地址"`
	AdapterKey string    `gorm:"column:adapter_key;type:varchar(32);not null;comment:适配器标识"`
	APIKey     string    `gorm:"column:api_key;type:varchar(256);comment:API Key" json:"-"`
	APISecret  string    `gorm:"column:api_secret;type:text;comment:API Secret" json:"-"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`
}

// HasCredentials 是否配置了凭证（只判断存在性）
func (s *Site) HasCredentials() bool {
	return s.APIKey != "" || s.APISecret != ""
}

// Event 外部平台事件缓存，唯一键 (site_id, section, external_id)
// 外键 site_id → sites，站点删除时级联；关联字段只用于建约束，不做预加载
type Event struct {
	ID                uint64           `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	EventUUID         string           `gorm:"column:event_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一ID"`
	SiteID            uint64           `gorm:"column:site_id;type:bigint;not null;uniqueIndex:uq_event_natural,priority:1;comment:关联站点"`
	Section           string           `gorm:"column:section;type:varchar(64);not null;uniqueIndex:uq_event_natural,priority:2;comment:分区"`
	ExternalID        string           `gorm:"column:external_id;type:varchar(128);not null;uniqueIndex:uq_event_natural,priority:3;comment:平台原生ID"`
	Title             string           `gorm:"column:title;type:varchar(512);not null;comment:事件标题"`
	Description       *string          `gorm:"column:description;type:text;comment:事件描述"`
	Status            MarketStatus     `gorm:"column:status;type:varchar(16);not null;default:unknown;comment:状态"`
	ExternalCreatedAt *time.Time       `gorm:"column:external_created_at;comment:平台创建时间"`
	EndDate           *time.Time       `gorm:"column:end_date;comment:结束时间"`
	Volume            *decimal.Decimal `gorm:"column:volume;type:numeric(30,10);comment:交易量"`
	Liquidity         *decimal.Decimal `gorm:"column:liquidity;type:numeric(30,10);comment:流动性"`
	Outcomes          datatypes.JSON   `gorm:"column:outcomes;comment:结果分布"`
	LastFetchedAt     time.Time        `gorm:"column:last_fetched_at;not null;comment:最近拉取时间"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`

	Site *Site `gorm:"foreignKey:SiteID;constraint:OnDelete:CASCADE" json:"-"`
}

// Market 事件下的单个可交易合约，唯一键 (site_id, event_id, external_id)
type Market struct {
	ID                uint64           `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	SiteID            uint64           `gorm:"column:site_id;type:bigint;not null;uniqueIndex:uq_market_natural,priority:1;comment:关联站点"`
	EventID           uint64           `gorm:"column:event_id;type:bigint;not null;uniqueIndex:uq_market_natural,priority:2;comment:关联事件"`
	ExternalID        string           `gorm:"column:external_id;type:varchar(128);not null;uniqueIndex:uq_market_natural,priority:3;comment:平台原生ID"`
	Title             string           `gorm:"column:title;type:varchar(512);not null;comment:合约标题"`
	Status            MarketStatus     `gorm:"column:status;type:varchar(16);not null;default:unknown;comment:状态"`
	YesPrice          *float64         `gorm:"column:yes_price;comment:Yes价格"`
	NoPrice           *float64         `gorm:"column:no_price;comment:No价格"`
	Outcomes          datatypes.JSON   `gorm:"column:outcomes;comment:结果分布"`
	Volume            *decimal.Decimal `gorm:"column:volume;type:numeric(30,10);comment:交易量"`
	Liquidity         *decimal.Decimal `gorm:"column:liquidity;type:numeric(30,10);comment:流动性"`
	ExternalCreatedAt *time.Time       `gorm:"column:external_created_at;comment:平台创建时间"`
	CloseTime         *time.Time       `gorm:"column:close_time;comment:收盘时间"`
	LastFetchedAt     time.Time        `gorm:"column:last_fetched_at;not null;comment:最近拉取时间"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`

	Site  *Site  `gorm:"foreignKey:SiteID;constraint:OnDelete:CASCADE" json:"-"`
	Event *Event `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"-"`
}

// UserFollowedEvent 用户关注的事件
type UserFollowedEvent struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    uint64    `gorm:"column:user_id;type:bigint;not null;uniqueIndex:uq_user_event,priority:1"`
	EventID   uint64    `gorm:"column:event_id;type:bigint;not null;uniqueIndex:uq_user_event,priority:2;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`

	Event *Event `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"-"`
}

// UserFollowedMarket 用户关注的合约及关注等级
type UserFollowedMarket struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UserID         uint64    `gorm:"column:user_id;type:bigint;not null;uniqueIndex:uq_user_market,priority:1"`
	MarketID       uint64    `gorm:"column:market_id;type:bigint;not null;uniqueIndex:uq_user_market,priority:2;index"`
	AttentionLevel int       `gorm:"column:attention_level;type:int;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Market *Market `gorm:"foreignKey:MarketID;constraint:OnDelete:CASCADE" json:"-"`
}

// DefaultNoThreshold 未指定阈值时的默认值（小数形式）
const DefaultNoThreshold = 0.10

// MarketNoEvaluation 用户对合约 No 概率的评估，threshold 为 [0,1] 小数
type MarketNoEvaluation struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        uint64    `gorm:"column:user_id;type:bigint;not null;uniqueIndex:uq_user_market_eval,priority:1"`
	MarketID      uint64    `gorm:"column:market_id;type:bigint;not null;uniqueIndex:uq_user_market_eval,priority:2;index"`
	NoProbability float64   `gorm:"column:no_probability;not null;default:0"`
	Threshold     float64   `gorm:"column:threshold;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Market *Market `gorm:"foreignKey:MarketID;constraint:OnDelete:CASCADE" json:"-"`
}

// Flagged No 概率达到阈值即需高亮
func (e *MarketNoEvaluation) Flagged() bool {
	return e.NoProbability >= e.Threshold
}

func (User) TableName() string               { return "users" }
func (Site) TableName() string               { return "sites" }
func (Event) TableName() string              { return "events" }
func (Market) TableName() string             { return "markets" }
func (UserFollowedEvent) TableName() string  { return "user_followed_events" }
func (UserFollowedMarket) TableName() string { return "user_followed_markets" }
func (MarketNoEvaluation) TableName() string { return "market_no_evaluations" }

// AllModels 按依赖顺序返回需要迁移的表
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Site{},
		&Event{},
		&Market{},
		&UserFollowedEvent{},
		&UserFollowedMarket{},
		&MarketNoEvaluation{},
	}
}
