package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"MarketSync/internal/adapter"
	"MarketSync/internal/model"
	"MarketSync/internal/ratelimit"
	"MarketSync/internal/repository"
	"MarketSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testToken = "test-token"

type stubAdapter struct{}

func (stubAdapter) GetType() string { return "stub" }

func (stubAdapter) FetchEvents(ctx context.Context, site *model.Site) ([]*model.EventMarketInput, error) {
	closeTime := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	no := 0.3
	return []*model.EventMarketInput{{
		ExternalID: "E1",
		Section:    "s",
		Title:      "event",
		Status:     "open",
		Markets: []*model.MarketInput{
			{ExternalID: "M1", Title: "market", Status: "active", NoPrice: &no, CloseTime: &closeTime},
		},
	}}, nil
}

func (stubAdapter) HealthProbe(ctx context.Context) (*model.HealthProbe, error) {
	return &model.HealthProbe{StatusCode: http.StatusOK, Body: []byte(`{"series":[{},{}]}`), ListKey: "series"}, nil
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	clock  time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(repository.SQLiteDSN(filepath.Join(t.TempDir(), "api.sqlite"))), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.AllModels()...))

	l := logrus.New()
	l.SetOutput(io.Discard)

	users := repository.NewUserRepository(db)
	require.NoError(t, users.Create(context.Background(), &model.User{Email: "u@example.com", APIToken: testToken}))
	sites := repository.NewSiteRepository(db)
	catalog := repository.NewCatalogRepository(db)
	tracker := repository.NewTrackerRepository(db)

	registry := adapter.NewEmptyRegistry(l)
	registry.Add(stubAdapter{})

	ts := &testServer{db: db, clock: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	limiter := ratelimit.New(time.Minute, 5, ratelimit.WithClock(func() time.Time { return ts.clock }))

	trackerService := service.NewTrackerService(tracker, catalog, sites, l)
	syncService := service.NewSyncService(sites, catalog, registry, "timestamps", l, trackerService)

	r := gin.New()
	RegisterRoutes(r, Handlers{
		Sync:    NewSyncHandler(syncService, service.NewHealthService(registry, time.Second, l), l),
		Site:    NewSiteHandler(service.NewSiteService(sites, catalog, registry, l), trackerService, l),
		Market:  NewMarketHandler(service.NewMarketService(sites, catalog, tracker, l), l),
		Tracker: NewTrackerHandler(trackerService, l),
	}, users, limiter, l)
	ts.router = r
	return ts
}

func (s *testServer) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestHealthz_NoAuth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/sites", nil, map[string]string{"Authorization": ""})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/sites", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/sites", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdapterHealth_RateLimited(t *testing.T) {
	s := newTestServer(t)
	hdr := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}

	for i := 0; i < 5; i++ {
		w := s.do(http.MethodGet, "/api/adapters/stub/health", nil, hdr)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := s.do(http.MethodGet, "/api/adapters/stub/health", nil, hdr)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// 其他客户端与其他前缀互不影响
	w = s.do(http.MethodGet, "/api/adapters/stub/health", nil, map[string]string{"X-Forwarded-For": "198.51.100.1"})
	assert.Equal(t, http.StatusOK, w.Code)

	// 窗口过后恢复
	s.clock = s.clock.Add(time.Minute)
	w = s.do(http.MethodGet, "/api/adapters/stub/health", nil, hdr)
	require.Equal(t, http.StatusOK, w.Code)

	var res service.HealthResult
	decode(t, w, &res)
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.SeriesCount)
}

func TestAdapterHealth_UnknownAdapter(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/api/adapters/nope/health", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSiteLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/sites", map[string]string{"name": "stub", "adapter_key": "stub", "api_key": "k", "api_secret": "s"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), `"api_secret"`)
	var site model.SiteView
	decode(t, w, &site)
	assert.True(t, site.HasCredentials)

	w = s.do(http.MethodPost, "/api/sites", map[string]string{"name": "bad", "adapter_key": "missing"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	base := "/api/sites/" + jsonID(site.ID)
	w = s.do(http.MethodPost, base+"/sync", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report service.SyncReport
	decode(t, w, &report)
	assert.Equal(t, 1, report.Events.Created)
	assert.Equal(t, 1, report.Markets.Created)

	w = s.do(http.MethodGet, base+"/markets", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list service.MarketListResult
	decode(t, w, &list)
	require.Len(t, list.Items, 1)
	marketPath := "/api/markets/" + jsonID(list.Items[0].ID)

	w = s.do(http.MethodPut, marketPath+"/attention", map[string]int{"level": 3}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodPut, marketPath+"/attention", map[string]int{"level": 9}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, marketPath+"/evaluation", map[string]interface{}{"no_probability": 0.12, "threshold": 10}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var eval struct {
		Threshold float64 `json:"threshold"`
		Flagged   bool    `json:"flagged"`
	}
	decode(t, w, &eval)
	assert.InDelta(t, 0.10, eval.Threshold, 1e-9)
	assert.True(t, eval.Flagged)

	w = s.do(http.MethodGet, "/api/me/flagged", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"market_id"`)

	w = s.do(http.MethodDelete, base, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/me/attention", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"levels":{}}`, w.Body.String())

	w = s.do(http.MethodPost, base+"/sync", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFollowEvent_CapacityIs409(t *testing.T) {
	s := newTestServer(t)
	site := &model.Site{UserID: 1, Name: "stub", AdapterKey: "stub"}
	require.NoError(t, s.db.Create(site).Error)
	for i := 0; i < service.MaxFollowedEvents+1; i++ {
		require.NoError(t, s.db.Create(&model.Event{
			SiteID: site.ID, Section: "s", ExternalID: jsonID(uint64(i)), EventUUID: "uuid-" + jsonID(uint64(i)),
			Title: "e", Status: model.StatusOpen, LastFetchedAt: time.Now(),
		}).Error)
	}
	for i := 1; i <= service.MaxFollowedEvents; i++ {
		w := s.do(http.MethodPost, "/api/events/"+jsonID(uint64(i))+"/follow", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := s.do(http.MethodPost, "/api/events/"+jsonID(uint64(service.MaxFollowedEvents+1))+"/follow", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/me/followed-events", nil, nil)
	var body struct {
		EventIDs []uint64 `json:"event_ids"`
	}
	decode(t, w, &body)
	assert.Len(t, body.EventIDs, service.MaxFollowedEvents)

	w = s.do(http.MethodDelete, "/api/events/1/follow", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodPost, "/api/events/abc/follow", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func jsonID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
