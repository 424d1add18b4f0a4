package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"MarketSync/internal/adapter"
	"MarketSync/internal/config"
	"MarketSync/internal/interfaces"
	"MarketSync/internal/model"
	"MarketSync/internal/utils/httpclient"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AdapterKey 配置与站点中使用的适配器标识
const AdapterKey = "kalshi"

func init() {
	adapter.Register(AdapterKey, NewKalshiAdapter)
}

type Adapter struct {
	cfg        *config.AdapterConfig
	httpClient *http.Client
	logger     *logrus.Logger
	now        func() time.Time
}

func NewKalshiAdapter(cfg *config.AdapterConfig, logger *logrus.Logger) interfaces.PlatformAdapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
		now:        time.Now,
	}
}

func (k *Adapter) GetType() string {
	return AdapterKey
}

// FetchEvents 分页拉取 open 状态事件（含嵌套 markets）
func (k *Adapter) FetchEvents(ctx context.Context, site *model.Site) ([]*model.EventMarketInput, error) {
	baseURL := adapter.ResolveBaseURL(site.BaseURL, k.cfg.BaseURL)
	pageSize := k.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	maxPages := k.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}

	var inputs []*model.EventMarketInput
	cursor := ""
	for page := 0; ; page++ {
		// 上一页仍有 cursor 且非空，说明上限截断了后续数据
		if page == maxPages {
			k.logger.WithFields(logrus.Fields{"site_id": site.ID, "max_pages": maxPages, "events": len(inputs)}).
				Warn("达到 max_pages 上限，Kalshi 事件列表不完整")
			break
		}
		q := url.Values{}
		q.Set("with_nested_markets", "true")
		q.Set("status", "open")
		q.Set("limit", strconv.Itoa(pageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var resp model.KalshiEventsResponse
		if err := k.getJSON(ctx, site, baseURL+"/events?"+q.Encode(), &resp); err != nil {
			return nil, err
		}
		for i := range resp.Events {
			inputs = append(inputs, k.convertEvent(&resp.Events[i]))
		}
		if resp.Cursor == "" || len(resp.Events) == 0 {
			break
		}
		cursor = resp.Cursor
	}

	k.logger.WithFields(logrus.Fields{"site_id": site.ID, "events": len(inputs)}).Info("成功获取Kalshi事件")
	return inputs, nil
}

// HealthProbe GET /series，期望 {"series": [...]}
func (k *Adapter) HealthProbe(ctx context.Context) (*model.HealthProbe, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(k.cfg.BaseURL, "/")+"/series", nil)
	if err != nil {
		return nil, fmt.Errorf("构建Kalshi探活请求失败: %w", err)
	}
	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := httpclient.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("读取Kalshi探活响应失败: %w", err)
	}
	return &model.HealthProbe{StatusCode: resp.StatusCode, Body: body, ListKey: "series"}, nil
}

func (k *Adapter) getJSON(ctx context.Context, site *model.Site, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("构建Kalshi请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if err := signRequest(req, site, k.now()); err != nil {
		return err
	}
	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("获取Kalshi事件失败: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			k.logger.Errorf("关闭Kalshi响应体失败: %v", err)
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("Kalshi返回非2xx状态码: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析Kalshi事件失败: %w", err)
	}
	return nil
}

func (k *Adapter) convertEvent(e *model.KalshiEventApi) *model.EventMarketInput {
	section := e.Category
	if section == "" {
		section = k.cfg.Section
	}
	if section == "" {
		section = AdapterKey
	}
	in := &model.EventMarketInput{
		ExternalID: e.EventTicker,
		Section:    section,
		Title:      e.Title,
		Status:     "open",
		EndDate:    adapter.ParseTime(e.StrikeDate),
	}
	if e.SubTitle != "" {
		sub := e.SubTitle
		in.Description = &sub
	}

	var volume decimal.Decimal
	var hasVolume bool
	outcomes := model.OutcomeMap{}
	for i := range e.Markets {
		m := k.convertMarket(&e.Markets[i])
		in.Markets = append(in.Markets, m)

		// 事件创建时间取最早的合约开盘时间
		if m.CreatedAt != nil && (in.CreatedAt == nil || m.CreatedAt.Before(*in.CreatedAt)) {
			t := *m.CreatedAt
			in.CreatedAt = &t
		}
		if m.Volume != nil {
			volume = volume.Add(*m.Volume)
			hasVolume = true
		}
		if m.YesPrice != nil {
			outcomes[m.Title] = *m.YesPrice
		}
	}
	if hasVolume {
		in.Volume = &volume
	}
	if len(outcomes) > 0 {
		in.Outcomes = outcomes
	}
	return in
}

func (k *Adapter) convertMarket(m *model.KalshiMarketApi) *model.MarketInput {
	title := m.Title
	if title == "" {
		title = m.Ticker
	}
	in := &model.MarketInput{
		ExternalID: m.Ticker,
		Title:      title,
		Status:     m.Status,
		CreatedAt:  adapter.ParseTime(m.OpenTime),
		CloseTime:  adapter.ParseTime(m.CloseTime),
		YesPrice:   k.parsePrice(m.YesAskDollars, "yes_ask_dollars"),
		NoPrice:    k.parsePrice(m.NoAskDollars, "no_ask_dollars"),
	}
	if in.YesPrice != nil || in.NoPrice != nil {
		in.Outcomes = model.OutcomeMap{}
		if in.YesPrice != nil {
			in.Outcomes["Yes"] = *in.YesPrice
		}
		if in.NoPrice != nil {
			in.Outcomes["No"] = *in.NoPrice
		}
	}
	if m.Volume != nil {
		v := decimal.NewFromInt(*m.Volume)
		in.Volume = &v
	}
	if m.Liquidity != nil {
		l := decimal.NewFromInt(*m.Liquidity).Div(decimal.NewFromInt(100))
		in.Liquidity = &l
	}
	return in
}

// parsePrice 价格字符串转 float，空值视为无信息
func (k *Adapter) parsePrice(s, field string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		k.logger.Warnf("转换Kalshi字段[%s]失败（值：%s）: %v", field, s, err)
		return nil
	}
	return &v
}
