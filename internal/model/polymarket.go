package model

// PolymarketEvent gamma API /events 单条事件
type PolymarketEvent struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description *string            `json:"description"`
	Category    string             `json:"category"`
	Active      bool               `json:"active"`
	Closed      bool               `json:"closed"`
	CreatedAt   string             `json:"createdAt"`
	EndDate     string             `json:"endDate"`
	Volume      *float64           `json:"volume"`
	Liquidity   *float64           `json:"liquidity"`
	Markets     []PolymarketMarket `json:"markets"`
}

// PolymarketMarket gamma API 内嵌的盘口
type PolymarketMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Active        bool     `json:"active"`
	Closed        bool     `json:"closed"`
	CreatedAt     string   `json:"createdAt"`
	EndDate       string   `json:"endDate"`
	Outcomes      string   `json:"outcomes"`      // 伪JSON数组字符串，如"[\"Yes\",\"No\"]"
	OutcomePrices string   `json:"outcomePrices"` // 伪JSON数组字符串，如"[\"0.6\",\"0.4\"]"
	VolumeNum     *float64 `json:"volumeNum"`
	LiquidityNum  *float64 `json:"liquidityNum"`
}
