package model

// ========== Kalshi 官方 API 响应结构（GET /events?with_nested_markets=true） ==========

// KalshiEventsResponse GET /events 的根响应
type KalshiEventsResponse struct {
	Events []KalshiEventApi `json:"events"`
	Cursor string           `json:"cursor"`
}

// KalshiEventApi 单条事件的 API 结构
type KalshiEventApi struct {
	EventTicker  string            `json:"event_ticker"`
	SeriesTicker string            `json:"series_ticker"`
	Title        string            `json:"title"`
	SubTitle     string            `json:"sub_title"`
	Category     string            `json:"category"`
	StrikeDate   string            `json:"strike_date"`
	Markets      []KalshiMarketApi `json:"markets,omitempty"`
}

// KalshiMarketApi 单条 market 的 API 结构（binary YES/NO）
type KalshiMarketApi struct {
	Ticker           string `json:"ticker"`
	EventTicker      string `json:"event_ticker"`
	Title            string `json:"title"`
	OpenTime         string `json:"open_time"`
	CloseTime        string `json:"close_time"`
	Status           string `json:"status"`
	YesAskDollars    string `json:"yes_ask_dollars"`
	NoAskDollars     string `json:"no_ask_dollars"`
	LastPriceDollars string `json:"last_price_dollars"`
	Volume           *int64 `json:"volume,omitempty"`
	Liquidity        *int64 `json:"liquidity,omitempty"` // 单位：美分
}
