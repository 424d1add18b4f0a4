package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"MarketSync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seriesBody(n int) []byte {
	b := []byte(`{"series":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, `{"ticker":"S"}`...)
	}
	return append(b, `]}`...)
}

func TestCheckHealth(t *testing.T) {
	cases := []struct {
		name      string
		fake      *fakeAdapter
		wantOK    bool
		wantCount int
		wantErr   string
	}{
		{
			name:      "keyed list",
			fake:      &fakeAdapter{probe: &model.HealthProbe{StatusCode: 200, Body: seriesBody(12), ListKey: "series"}},
			wantOK:    true,
			wantCount: 12,
		},
		{
			name:      "bare list",
			fake:      &fakeAdapter{probe: &model.HealthProbe{StatusCode: 200, Body: []byte(`[{},{},{}]`)}},
			wantOK:    true,
			wantCount: 3,
		},
		{
			name:    "service unavailable",
			fake:    &fakeAdapter{probe: &model.HealthProbe{StatusCode: 503, Body: []byte("down")}},
			wantErr: "503",
		},
		{
			name:    "missing list key",
			fake:    &fakeAdapter{probe: &model.HealthProbe{StatusCode: 200, Body: []byte(`{"other":[]}`), ListKey: "series"}},
			wantErr: ErrMalformedPayload.Error(),
		},
		{
			name:    "empty list",
			fake:    &fakeAdapter{probe: &model.HealthProbe{StatusCode: 200, Body: []byte(`{"series":[]}`), ListKey: "series"}},
			wantErr: "empty",
		},
		{
			name:    "not json",
			fake:    &fakeAdapter{probe: &model.HealthProbe{StatusCode: 200, Body: []byte(`<html>`), ListKey: "series"}},
			wantErr: ErrMalformedPayload.Error(),
		},
		{
			name:    "network error",
			fake:    &fakeAdapter{probeErr: errors.New("dial tcp: connection refused")},
			wantErr: "connection refused",
		},
		{
			name:    "timeout",
			fake:    &fakeAdapter{probeDelay: time.Second, probe: &model.HealthProbe{StatusCode: 200}},
			wantErr: "timeout",
		},
		{
			name:    "panicking adapter",
			fake:    &fakeAdapter{probePanic: true},
			wantErr: "panic",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			tc.fake.key = "fake"
			e.registry.Add(tc.fake)
			svc := NewHealthService(e.registry, 50*time.Millisecond, e.logger)

			res, err := svc.CheckHealth(context.Background(), "fake")
			require.NoError(t, err)
			assert.Equal(t, "fake", res.Adapter)
			assert.Equal(t, tc.wantOK, res.OK)
			assert.Equal(t, tc.wantCount, res.SeriesCount)
			if tc.wantErr == "" {
				assert.Empty(t, res.Error)
			} else {
				assert.Contains(t, res.Error, tc.wantErr)
			}
		})
	}
}

func TestCheckHealth_UnknownAdapter(t *testing.T) {
	e := newEnv(t)
	_, err := NewHealthService(e.registry, time.Second, e.logger).CheckHealth(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHealthEvaluate_ClassifiesErrors(t *testing.T) {
	svc := NewHealthService(nil, time.Second, quietLogger())

	_, err := svc.evaluate(probeResult{probe: &model.HealthProbe{StatusCode: 503}})
	assert.ErrorIs(t, err, ErrAdapterUnreachable)
	assert.Contains(t, err.Error(), "unexpected status code 503")

	_, err = svc.evaluate(probeResult{err: context.DeadlineExceeded})
	assert.ErrorIs(t, err, ErrAdapterUnreachable)

	_, err = svc.evaluate(probeResult{probe: &model.HealthProbe{StatusCode: 200, Body: []byte(`{}`), ListKey: "series"}})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
