package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"MarketSync/internal/adapter"
	"MarketSync/internal/config"
	"MarketSync/internal/interfaces"
	"MarketSync/internal/model"
	"MarketSync/internal/utils/httpclient"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AdapterKey 配置与站点中使用的适配器标识
const AdapterKey = "polymarket"

func init() {
	adapter.Register(AdapterKey, NewPolymarketAdapter)
}

type Adapter struct {
	cfg        *config.AdapterConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewPolymarketAdapter(cfg *config.AdapterConfig, logger *logrus.Logger) interfaces.PlatformAdapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
	}
}

func (p *Adapter) GetType() string {
	return AdapterKey
}

// FetchEvents 通过 gamma API 按 offset 分页拉取未关闭事件
func (p *Adapter) FetchEvents(ctx context.Context, site *model.Site) ([]*model.EventMarketInput, error) {
	baseURL := adapter.ResolveBaseURL(site.BaseURL, p.cfg.BaseURL)
	limit := p.cfg.PageSize
	if limit <= 0 {
		limit = 100
	}
	maxPages := p.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}

	var inputs []*model.EventMarketInput
	for page := 0; ; page++ {
		// 上一页是满页，可能还有后续数据
		if page == maxPages {
			p.logger.WithFields(logrus.Fields{"site_id": site.ID, "max_pages": maxPages, "events": len(inputs)}).
				Warn("达到 max_pages 上限，Polymarket 事件列表可能不完整")
			break
		}
		q := url.Values{}
		q.Set("closed", "false")
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(page*limit))

		var events []model.PolymarketEvent
		if err := p.getJSON(ctx, baseURL+"/events?"+q.Encode(), &events); err != nil {
			return nil, err
		}
		for i := range events {
			inputs = append(inputs, p.convertEvent(&events[i]))
		}
		if len(events) < limit {
			break
		}
	}

	p.logger.WithFields(logrus.Fields{"site_id": site.ID, "events": len(inputs)}).Info("成功获取Polymarket事件")
	return inputs, nil
}

// HealthProbe GET /series，响应体本身为数组
func (p *Adapter) HealthProbe(ctx context.Context) (*model.HealthProbe, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(p.cfg.BaseURL, "/")+"/series?limit=20", nil)
	if err != nil {
		return nil, fmt.Errorf("构建Polymarket探活请求失败: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := httpclient.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("读取Polymarket探活响应失败: %w", err)
	}
	return &model.HealthProbe{StatusCode: resp.StatusCode, Body: body}, nil
}

func (p *Adapter) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("构建Polymarket请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("获取Polymarket事件失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("Polymarket返回非2xx状态码: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析Polymarket事件失败: %w", err)
	}
	return nil
}

func (p *Adapter) convertEvent(e *model.PolymarketEvent) *model.EventMarketInput {
	section := e.Category
	if section == "" {
		section = p.cfg.Section
	}
	if section == "" {
		section = AdapterKey
	}
	in := &model.EventMarketInput{
		ExternalID:  e.ID,
		Section:     section,
		Title:       e.Title,
		Description: e.Description,
		Status:      mapStatus(e.Active, e.Closed),
		CreatedAt:   adapter.ParseTime(e.CreatedAt),
		EndDate:     adapter.ParseTime(e.EndDate),
		Volume:      decimalPtr(e.Volume),
		Liquidity:   decimalPtr(e.Liquidity),
	}

	outcomes := model.OutcomeMap{}
	for i := range e.Markets {
		m := p.convertMarket(&e.Markets[i])
		in.Markets = append(in.Markets, m)
		if len(e.Markets) == 1 {
			// 单盘口事件：事件分布即盘口分布
			for label, prob := range m.Outcomes {
				outcomes[label] = prob
			}
		} else if m.YesPrice != nil {
			outcomes[m.Title] = *m.YesPrice
		}
	}
	if len(outcomes) > 0 {
		in.Outcomes = outcomes
	}
	return in
}

func (p *Adapter) convertMarket(m *model.PolymarketMarket) *model.MarketInput {
	in := &model.MarketInput{
		ExternalID: m.ID,
		Title:      m.Question,
		Status:     mapStatus(m.Active, m.Closed),
		CreatedAt:  adapter.ParseTime(m.CreatedAt),
		CloseTime:  adapter.ParseTime(m.EndDate),
		Volume:     decimalPtr(m.VolumeNum),
		Liquidity:  decimalPtr(m.LiquidityNum),
	}

	labels, err := parseJSONArrayString(m.Outcomes)
	if err != nil {
		p.logger.Warnf("解析Outcomes失败（market=%s）: %v", m.ID, err)
		return in
	}
	prices, err := parseJSONArrayString(m.OutcomePrices)
	if err != nil {
		p.logger.Warnf("解析OutcomePrices失败（market=%s）: %v", m.ID, err)
		return in
	}
	outcomes := model.OutcomeMap{}
	for i, label := range labels {
		if i >= len(prices) {
			break
		}
		price, err := strconv.ParseFloat(prices[i], 64)
		if err != nil {
			p.logger.Warnf("转换价格失败（market=%s, outcome=%s）: %v", m.ID, label, err)
			continue
		}
		outcomes[label] = price
		switch strings.ToLower(label) {
		case "yes":
			v := price
			in.YesPrice = &v
		case "no":
			v := price
			in.NoPrice = &v
		}
	}
	if len(outcomes) > 0 {
		in.Outcomes = outcomes
	}
	return in
}

func mapStatus(active, closed bool) string {
	switch {
	case closed:
		return "closed"
	case active:
		return "active"
	default:
		return "paused"
	}
}

func decimalPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}

// 解析伪JSON数组字符串
func parseJSONArrayString(s string) ([]string, error) {
	if s == "" || s == "null" {
		return []string{}, nil
	}
	var res []string
	if err := json.Unmarshal([]byte(s), &res); err != nil {
		return nil, err
	}
	return res, nil
}
