package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"MarketSync/internal/config"
	"MarketSync/internal/model"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	a := NewKalshiAdapter(&config.AdapterConfig{BaseURL: baseURL, Timeout: 5, PageSize: 2, MaxPages: 5}, logger).(*Adapter)
	a.now = func() time.Time { return time.UnixMilli(1767225600000) }
	return a
}

const page1 = `{
  "cursor": "next-page",
  "events": [
    {
      "event_ticker": "PRES-2028",
      "title": "Presidential election 2028",
      "sub_title": "Who will win?",
      "category": "Politics",
      "strike_date": "2028-11-07T00:00:00Z",
      "markets": [
        {"ticker": "PRES-2028-A", "title": "Candidate A", "status": "active",
         "open_time": "2026-01-02T00:00:00Z", "close_time": "2028-11-07T00:00:00Z",
         "yes_ask_dollars": "0.5500", "no_ask_dollars": "0.4600", "volume": 1200, "liquidity": 250000},
        {"ticker": "PRES-2028-B", "title": "Candidate B", "status": "active",
         "open_time": "2026-01-01T00:00:00Z", "close_time": "2028-11-07T00:00:00Z",
         "yes_ask_dollars": "0.4100", "no_ask_dollars": "", "volume": 300}
      ]
    },
    {"event_ticker": "EMPTY", "title": "No markets"}
  ]
}`

const page2 = `{"cursor": "", "events": [{"event_ticker": "FED-DEC", "title": "Fed", "category": "Economics"}]}`

func TestFetchEvents_PaginatesAndConverts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("with_nested_markets"))
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Empty(t, r.Header.Get(headerAccessKey), "no credentials, no signature")
		if r.URL.Query().Get("cursor") == "next-page" {
			_, _ = w.Write([]byte(page2))
			return
		}
		_, _ = w.Write([]byte(page1))
	}))
	defer srv.Close()

	a := newTestAdapter(t, "https://unused.example")
	inputs, err := a.FetchEvents(context.Background(), &model.Site{ID: 1, BaseURL: srv.URL})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	require.Len(t, inputs, 3)

	ev := inputs[0]
	assert.Equal(t, "PRES-2028", ev.ExternalID)
	assert.Equal(t, "Politics", ev.Section)
	require.NotNil(t, ev.Description)
	assert.Equal(t, "Who will win?", *ev.Description)
	require.NotNil(t, ev.EndDate)
	assert.Equal(t, 2028, ev.EndDate.Year())
	require.NotNil(t, ev.CreatedAt)
	assert.True(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Equal(*ev.CreatedAt), "earliest market open time")
	require.NotNil(t, ev.Volume)
	assert.Equal(t, "1500", ev.Volume.String())
	assert.InDelta(t, 0.55, ev.Outcomes["Candidate A"], 1e-9)

	require.Len(t, ev.Markets, 2)
	m := ev.Markets[0]
	require.NotNil(t, m.YesPrice)
	assert.InDelta(t, 0.55, *m.YesPrice, 1e-9)
	require.NotNil(t, m.Liquidity)
	assert.Equal(t, "2500", m.Liquidity.String())
	assert.Nil(t, ev.Markets[1].NoPrice, "empty price string means no information")

	assert.Equal(t, "kalshi", inputs[1].Section, "falls back to adapter key")
	assert.Nil(t, inputs[1].Volume)
	assert.Equal(t, "Economics", inputs[2].Section)
}

func TestFetchEvents_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestAdapter(t, srv.URL).FetchEvents(context.Background(), &model.Site{ID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func testKeyPEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestFetchEvents_SignsWithSiteCredentials(t *testing.T) {
	key, keyPEM := testKeyPEM(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-id", r.Header.Get(headerAccessKey))
		ts := r.Header.Get(headerAccessTimestamp)
		assert.Equal(t, "1767225600000", ts)

		sig, err := base64.StdEncoding.DecodeString(r.Header.Get(headerAccessSignature))
		if !assert.NoError(t, err) {
			return
		}
		hashed := sha256.Sum256([]byte(ts + r.Method + r.URL.Path))
		assert.NoError(t, rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hashed[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}))
		_, _ = w.Write([]byte(`{"events": []}`))
	}))
	defer srv.Close()

	site := &model.Site{ID: 1, BaseURL: srv.URL, APIKey: "key-id", APISecret: keyPEM}
	inputs, err := newTestAdapter(t, "").FetchEvents(context.Background(), site)
	require.NoError(t, err)
	assert.Empty(t, inputs)
}

func TestSignRequest_Errors(t *testing.T) {
	_, err := SignRequest("not a pem", "1", "GET", "/events")
	assert.Error(t, err)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	err = signRequest(req, &model.Site{APIKey: "only-key"}, time.Now())
	assert.Error(t, err)
}

func TestHealthProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/series", r.URL.Path)
		_, _ = w.Write([]byte(`{"series":[{"ticker":"A"},{"ticker":"B"}]}`))
	}))
	defer srv.Close()

	probe, err := newTestAdapter(t, srv.URL+"/").HealthProbe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, probe.StatusCode)
	assert.Equal(t, "series", probe.ListKey)
	assert.Contains(t, string(probe.Body), `"ticker":"A"`)
}

func TestFetchEvents_WarnsWhenPageCapTruncates(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("cursor") == "" {
			_, _ = w.Write([]byte(page1))
			return
		}
		_, _ = w.Write([]byte(page2))
	}))
	defer srv.Close()

	logger, hook := logtest.NewNullLogger()
	a := NewKalshiAdapter(&config.AdapterConfig{BaseURL: srv.URL, Timeout: 5, PageSize: 2, MaxPages: 1}, logger).(*Adapter)
	inputs, err := a.FetchEvents(context.Background(), &model.Site{ID: 9})
	require.NoError(t, err)
	assert.Len(t, inputs, 2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Data["max_pages"] == 1 {
			warned = true
		}
	}
	assert.True(t, warned, "truncated fetch must be logged")

	// 在上限内拉完不告警
	hook.Reset()
	a.cfg.MaxPages = 5
	_, err = a.FetchEvents(context.Background(), &model.Site{ID: 9})
	require.NoError(t, err)
	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, entry.Level)
	}
}
