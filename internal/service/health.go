package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"MarketSync/internal/adapter"
	"MarketSync/internal/model"

	"github.com/sirupsen/logrus"
)

// HealthResult 适配器探活结果
type HealthResult struct {
	Adapter     string    `json:"adapter"`
	OK          bool      `json:"ok"`
	SeriesCount int       `json:"series_count"`
	Error       string    `json:"error,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
	LatencyMs   int64     `json:"latency_ms"`
}

// HealthService 调用适配器的目录接口判断上游是否可用
type HealthService struct {
	registry *adapter.PlatformRegistry
	timeout  time.Duration
	logger   *logrus.Logger
	now      func() time.Time
}

// NewHealthService timeout<=0 时使用 15s
func NewHealthService(registry *adapter.PlatformRegistry, timeout time.Duration, logger *logrus.Logger) *HealthService {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HealthService{registry: registry, timeout: timeout, logger: logger, now: time.Now}
}

type probeResult struct {
	probe *model.HealthProbe
	err   error
}

// CheckHealth 探活不抛错，上游故障作为结果返回；未知适配器返回 ErrNotFound
func (s *HealthService) CheckHealth(ctx context.Context, adapterKey string) (*HealthResult, error) {
	ad, err := s.registry.GetAdapter(adapterKey)
	if err != nil {
		return nil, fmt.Errorf("适配器%s: %w", adapterKey, ErrNotFound)
	}

	start := s.now()
	result := &HealthResult{Adapter: adapterKey, CheckedAt: start}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ch := make(chan probeResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- probeResult{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		probe, err := ad.HealthProbe(ctx)
		ch <- probeResult{probe: probe, err: err}
	}()

	var res probeResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = probeResult{err: ctx.Err()}
	}
	result.LatencyMs = s.now().Sub(start).Milliseconds()

	count, err := s.evaluate(res)
	if err != nil {
		result.Error = err.Error()
		s.logger.WithError(err).WithField("adapter", adapterKey).Warn("适配器健康检查失败")
		return result, nil
	}
	result.OK = true
	result.SeriesCount = count
	return result, nil
}

func (s *HealthService) evaluate(res probeResult) (int, error) {
	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: timeout after %s", ErrAdapterUnreachable, s.timeout)
		}
		return 0, fmt.Errorf("%w: %v", ErrAdapterUnreachable, res.err)
	}
	p := res.probe
	if p == nil {
		return 0, fmt.Errorf("%w: empty probe", ErrMalformedPayload)
	}
	if p.StatusCode < 200 || p.StatusCode > 299 {
		return 0, fmt.Errorf("%w: unexpected status code %d", ErrAdapterUnreachable, p.StatusCode)
	}
	n, err := countListItems(p.Body, p.ListKey)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: series list is empty", ErrMalformedPayload)
	}
	return n, nil
}

// countListItems listKey 为空时 body 本身应为数组
func countListItems(body []byte, listKey string) (int, error) {
	var raw json.RawMessage = body
	if listKey != "" {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		v, ok := obj[listKey]
		if !ok {
			return 0, fmt.Errorf("%w: missing %q", ErrMalformedPayload, listKey)
		}
		raw = v
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return len(items), nil
}
