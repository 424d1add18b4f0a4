package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"MarketSync/internal/adapter"
	"MarketSync/internal/model"
	"MarketSync/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// 单条记录的同步结果
type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeUnchanged
)

// BatchCounts 一类记录的计数
type BatchCounts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

func (c *BatchCounts) add(o outcome) {
	switch o {
	case outcomeCreated:
		c.Created++
	case outcomeUpdated:
		c.Updated++
	case outcomeUnchanged:
		c.Unchanged++
	}
}

// SyncFailure 单条失败记录
type SyncFailure struct {
	Kind            string `json:"kind"` // event / market
	ExternalID      string `json:"external_id"`
	EventExternalID string `json:"event_external_id,omitempty"`
	Error           string `json:"error"`
}

// SyncReport 一次站点同步的汇总
type SyncReport struct {
	SiteID     uint64        `json:"site_id"`
	Adapter    string        `json:"adapter"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Events     BatchCounts   `json:"events"`
	Markets    BatchCounts   `json:"markets"`
	Failures   []SyncFailure `json:"failures,omitempty"`
	FetchError string        `json:"fetch_error,omitempty"`
}

// OK 拉取成功且无失败记录
func (r *SyncReport) OK() bool {
	return r.FetchError == "" && len(r.Failures) == 0
}

// CatalogListener 目录同步完成后的回调（派生状态刷新）
type CatalogListener interface {
	OnCatalogSynced(ctx context.Context, siteID uint64) error
}

// SyncService 拉取 → 判定 → 入库
type SyncService struct {
	sites     repository.SiteRepository
	catalog   repository.CatalogRepository
	registry  *adapter.PlatformRegistry
	events    *EventDetector
	markets   *MarketDetector
	listeners []CatalogListener
	logger    *logrus.Logger
	group     singleflight.Group
	now       func() time.Time

	flightTimeout time.Duration
}

// DefaultSyncTimeout 单次站点同步的上限
const DefaultSyncTimeout = 5 * time.Minute

// NewSyncService 创建同步服务
func NewSyncService(
	sites repository.SiteRepository,
	catalog repository.CatalogRepository,
	registry *adapter.PlatformRegistry,
	changePolicy string,
	logger *logrus.Logger,
	listeners ...CatalogListener,
) *SyncService {
	ed, md := NewDetectors(changePolicy)
	return &SyncService{
		sites:     sites,
		catalog:   catalog,
		registry:  registry,
		events:    ed,
		markets:   md,
		listeners: listeners,
		logger:    logger,
		now:       time.Now,

		flightTimeout: DefaultSyncTimeout,
	}
}

// SyncSite 同步用户名下的站点；站点不存在或不属于该用户返回 ErrNotFound
func (s *SyncService) SyncSite(ctx context.Context, userID, siteID uint64) (*SyncReport, error) {
	site, err := s.sites.GetForUser(ctx, userID, siteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("站点%d: %w", siteID, ErrNotFound)
		}
		return nil, fmt.Errorf("查询站点失败: %w", err)
	}
	return s.syncShared(ctx, site)
}

// SyncAll 依次同步所有站点（定时任务用），单站点失败不阻塞其余站点
func (s *SyncService) SyncAll(ctx context.Context) ([]*SyncReport, error) {
	sites, err := s.sites.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询站点列表失败: %w", err)
	}
	reports := make([]*SyncReport, 0, len(sites))
	for _, site := range sites {
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
		report, err := s.syncShared(ctx, site)
		if err != nil {
			s.logger.WithError(err).WithField("site_id", site.ID).Warn("站点同步失败，跳过")
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// syncShared 同一站点的并发同步合并为一次执行。
// 共享的执行不继承任何调用方的取消，只受 flightTimeout 约束；
// 单个调用方取消时只是自己提前返回。
func (s *SyncService) syncShared(ctx context.Context, site *model.Site) (*SyncReport, error) {
	ch := s.group.DoChan(strconv.FormatUint(site.ID, 10), func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()
		return s.syncSite(flightCtx, site)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.WithField("site_id", site.ID).Debug("复用进行中的同步结果")
		}
		return res.Val.(*SyncReport), nil
	}
}

func (s *SyncService) syncSite(ctx context.Context, site *model.Site) (*SyncReport, error) {
	report := &SyncReport{SiteID: site.ID, Adapter: site.AdapterKey, StartedAt: s.now()}
	log := s.logger.WithFields(logrus.Fields{"site_id": site.ID, "adapter": site.AdapterKey})

	ad, err := s.registry.GetAdapter(site.AdapterKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	inputs, err := ad.FetchEvents(ctx, site)
	if err != nil {
		// 适配器故障作为数据返回，不向调用方抛出
		report.FetchError = fmt.Sprintf("%v: %v", ErrAdapterUnreachable, err)
		report.FinishedAt = s.now()
		log.WithError(err).Warn("拉取事件失败")
		return report, nil
	}

	s.ApplyBatch(ctx, site, inputs, report)
	report.FinishedAt = s.now()

	for _, l := range s.listeners {
		if err := l.OnCatalogSynced(ctx, site.ID); err != nil {
			log.WithError(err).Warn("派生状态刷新失败")
		}
	}

	log.WithFields(logrus.Fields{
		"events_created":  report.Events.Created,
		"events_updated":  report.Events.Updated,
		"markets_created": report.Markets.Created,
		"markets_updated": report.Markets.Updated,
		"failed":          len(report.Failures),
	}).Info("站点同步完成")
	return report, nil
}

// ApplyBatch 逐条处理一批抓取结果，单条失败只记录不中断
func (s *SyncService) ApplyBatch(ctx context.Context, site *model.Site, inputs []*model.EventMarketInput, report *SyncReport) {
	for _, in := range inputs {
		if in == nil {
			continue
		}
		fetchedAt := s.now()
		ev, o, err := s.syncEvent(ctx, site, in, fetchedAt)
		if err != nil {
			report.Events.Failed++
			report.Failures = append(report.Failures, SyncFailure{Kind: "event", ExternalID: in.ExternalID, Error: err.Error()})
			s.logger.WithError(err).WithFields(logrus.Fields{
				"site_id":     site.ID,
				"external_id": in.ExternalID,
			}).Warn("事件入库失败，跳过")
			for _, m := range in.Markets {
				if m == nil {
					continue
				}
				report.Markets.Failed++
				report.Failures = append(report.Failures, SyncFailure{
					Kind:            "market",
					ExternalID:      m.ExternalID,
					EventExternalID: in.ExternalID,
					Error:           "parent event failed: " + err.Error(),
				})
			}
			continue
		}
		report.Events.add(o)

		for _, mi := range in.Markets {
			if mi == nil {
				continue
			}
			mo, err := s.syncMarket(ctx, site, ev, mi, fetchedAt)
			if err != nil {
				report.Markets.Failed++
				report.Failures = append(report.Failures, SyncFailure{
					Kind:            "market",
					ExternalID:      mi.ExternalID,
					EventExternalID: in.ExternalID,
					Error:           err.Error(),
				})
				s.logger.WithError(err).WithFields(logrus.Fields{
					"site_id":           site.ID,
					"event_external_id": in.ExternalID,
					"external_id":       mi.ExternalID,
				}).Warn("合约入库失败，跳过")
				continue
			}
			report.Markets.add(mo)
		}
	}
}

func (s *SyncService) syncEvent(ctx context.Context, site *model.Site, in *model.EventMarketInput, fetchedAt time.Time) (ev *model.Event, o outcome, err error) {
	defer recoverRecord(&err)
	if in.ExternalID == "" {
		return nil, 0, fmt.Errorf("%w: 事件缺少 external_id", ErrInvalidInput)
	}

	stored, err := s.catalog.FindEvent(ctx, site.ID, in.Section, in.ExternalID)
	if errors.Is(err, repository.ErrNotFound) {
		ev = &model.Event{SiteID: site.ID, Section: in.Section, ExternalID: in.ExternalID}
		applyEventInput(ev, in, fetchedAt)
		cerr := s.catalog.CreateEvent(ctx, ev)
		if cerr == nil {
			return ev, outcomeCreated, nil
		}
		if !repository.IsDuplicateKey(cerr) {
			return nil, 0, fmt.Errorf("%w: %v", ErrConstraintViolation, cerr)
		}
		// 并发同步已插入同一自然键：转为更新
		stored, err = s.catalog.FindEvent(ctx, site.ID, in.Section, in.ExternalID)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("查询事件失败: %w", err)
	}

	if !s.events.HasSemanticChange(in, stored) {
		if err := s.catalog.TouchEvent(ctx, stored.ID, fetchedAt); err != nil {
			return nil, 0, fmt.Errorf("更新拉取时间失败: %w", err)
		}
		stored.LastFetchedAt = fetchedAt
		return stored, outcomeUnchanged, nil
	}

	s.logger.WithFields(logrus.Fields{
		"site_id":     site.ID,
		"external_id": in.ExternalID,
		"fields":      s.events.ChangedFields(in, stored),
	}).Debug("事件有变更，全字段刷新")
	applyEventInput(stored, in, fetchedAt)
	if err := s.catalog.UpdateEvent(ctx, stored); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, 0, fmt.Errorf("%w: %v", ErrConstraintViolation, err)
		}
		return nil, 0, fmt.Errorf("更新事件失败: %w", err)
	}
	return stored, outcomeUpdated, nil
}

func (s *SyncService) syncMarket(ctx context.Context, site *model.Site, ev *model.Event, in *model.MarketInput, fetchedAt time.Time) (o outcome, err error) {
	defer recoverRecord(&err)
	if in.ExternalID == "" {
		return 0, fmt.Errorf("%w: 合约缺少 external_id", ErrInvalidInput)
	}

	stored, err := s.catalog.FindMarket(ctx, site.ID, ev.ID, in.ExternalID)
	if errors.Is(err, repository.ErrNotFound) {
		m := &model.Market{SiteID: site.ID, EventID: ev.ID, ExternalID: in.ExternalID}
		applyMarketInput(m, in, fetchedAt)
		cerr := s.catalog.CreateMarket(ctx, m)
		if cerr == nil {
			return outcomeCreated, nil
		}
		if !repository.IsDuplicateKey(cerr) {
			return 0, fmt.Errorf("%w: %v", ErrConstraintViolation, cerr)
		}
		stored, err = s.catalog.FindMarket(ctx, site.ID, ev.ID, in.ExternalID)
	}
	if err != nil {
		return 0, fmt.Errorf("查询合约失败: %w", err)
	}

	if !s.markets.HasSemanticChange(in, stored) {
		if err := s.catalog.TouchMarket(ctx, stored.ID, fetchedAt); err != nil {
			return 0, fmt.Errorf("更新拉取时间失败: %w", err)
		}
		return outcomeUnchanged, nil
	}

	applyMarketInput(stored, in, fetchedAt)
	if err := s.catalog.UpdateMarket(ctx, stored); err != nil {
		return 0, fmt.Errorf("更新合约失败: %w", err)
	}
	return outcomeUpdated, nil
}

// recoverRecord 单条记录内的 panic 转为该记录的失败
func recoverRecord(err *error) {
	if p := recover(); p != nil {
		*err = fmt.Errorf("panic: %v", p)
	}
}

// applyEventInput 全字段覆盖。时间字段按抓取值原样替换（含 nil）；
// 可选字段 nil 时保留原值，仅在 Clear 声明时清空。
func applyEventInput(e *model.Event, in *model.EventMarketInput, fetchedAt time.Time) {
	e.Title = in.Title
	e.Status = model.ClassifyStatus(in.Status)
	e.ExternalCreatedAt = in.CreatedAt
	e.EndDate = in.EndDate
	switch {
	case in.Description != nil:
		e.Description = in.Description
	case in.Clear.Has(model.ClearDescription):
		e.Description = nil
	}
	switch {
	case in.Volume != nil:
		e.Volume = in.Volume
	case in.Clear.Has(model.ClearVolume):
		e.Volume = nil
	}
	switch {
	case in.Liquidity != nil:
		e.Liquidity = in.Liquidity
	case in.Clear.Has(model.ClearLiquidity):
		e.Liquidity = nil
	}
	switch {
	case in.Outcomes != nil:
		e.Outcomes = in.Outcomes.JSON()
	case in.Clear.Has(model.ClearOutcomes):
		e.Outcomes = nil
	}
	e.LastFetchedAt = fetchedAt
}

func applyMarketInput(m *model.Market, in *model.MarketInput, fetchedAt time.Time) {
	m.Title = in.Title
	m.Status = model.ClassifyStatus(in.Status)
	m.ExternalCreatedAt = in.CreatedAt
	m.CloseTime = in.CloseTime
	if in.Clear.Has(model.ClearPrices) {
		m.YesPrice, m.NoPrice = nil, nil
	}
	if in.YesPrice != nil {
		m.YesPrice = in.YesPrice
	}
	if in.NoPrice != nil {
		m.NoPrice = in.NoPrice
	}
	switch {
	case in.Volume != nil:
		m.Volume = in.Volume
	case in.Clear.Has(model.ClearVolume):
		m.Volume = nil
	}
	switch {
	case in.Liquidity != nil:
		m.Liquidity = in.Liquidity
	case in.Clear.Has(model.ClearLiquidity):
		m.Liquidity = nil
	}
	switch {
	case in.Outcomes != nil:
		m.Outcomes = in.Outcomes.JSON()
	case in.Clear.Has(model.ClearOutcomes):
		m.Outcomes = nil
	}
	m.LastFetchedAt = fetchedAt
}
