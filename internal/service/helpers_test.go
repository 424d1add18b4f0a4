package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"MarketSync/internal/adapter"
	"MarketSync/internal/config"
	"MarketSync/internal/model"
	"MarketSync/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "service.sqlite")
	db, err := gorm.Open(sqlite.Open(repository.SQLiteDSN(dsn)), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

// fakeAdapter 返回预置的事件或错误
type fakeAdapter struct {
	key string

	mu     sync.Mutex
	events []*model.EventMarketInput
	err    error
	calls  int

	probe      *model.HealthProbe
	probeErr   error
	probeDelay time.Duration
	probePanic bool
}

func (f *fakeAdapter) GetType() string { return f.key }

func (f *fakeAdapter) FetchEvents(ctx context.Context, site *model.Site) ([]*model.EventMarketInput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.events, f.err
}

func (f *fakeAdapter) HealthProbe(ctx context.Context) (*model.HealthProbe, error) {
	if f.probePanic {
		panic("probe exploded")
	}
	if f.probeDelay > 0 {
		select {
		case <-time.After(f.probeDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.probe, f.probeErr
}

func (f *fakeAdapter) setEvents(events []*model.EventMarketInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
}

type env struct {
	db       *gorm.DB
	sites    repository.SiteRepository
	catalog  repository.CatalogRepository
	tracker  repository.TrackerRepository
	registry *adapter.PlatformRegistry
	fake     *fakeAdapter
	logger   *logrus.Logger
}

func newEnv(t *testing.T) *env {
	db := setupDB(t)
	l := quietLogger()
	fake := &fakeAdapter{key: "fake"}
	reg := adapter.NewEmptyRegistry(l)
	reg.Add(fake)
	return &env{
		db:       db,
		sites:    repository.NewSiteRepository(db),
		catalog:  repository.NewCatalogRepository(db),
		tracker:  repository.NewTrackerRepository(db),
		registry: reg,
		fake:     fake,
		logger:   l,
	}
}

func (e *env) seedSite(t *testing.T, userID uint64) *model.Site {
	t.Helper()
	s := &model.Site{UserID: userID, Name: "fake site", AdapterKey: "fake"}
	require.NoError(t, e.sites.Create(context.Background(), s))
	return s
}

func (e *env) trackerService() *TrackerService {
	return NewTrackerService(e.tracker, e.catalog, e.sites, e.logger)
}

func (e *env) syncService(policy string, listeners ...CatalogListener) *SyncService {
	if policy == "" {
		policy = config.ChangePolicyTimestamps
	}
	return NewSyncService(e.sites, e.catalog, e.registry, policy, e.logger, listeners...)
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrFloat(f float64) *float64 { return &f }
func ptrString(s string) *string { return &s }
