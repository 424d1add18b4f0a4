package ratelimit

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestAllow_FiveThenReject(t *testing.T) {
	clock := newClock()
	l := New(time.Minute, 5, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("health:1.2.3.4"), "call %d should pass", i+1)
	}
	assert.False(t, l.Allow("health:1.2.3.4"))
	assert.False(t, l.Allow("health:1.2.3.4"))
}

func TestAllow_ResetsAfterWindow(t *testing.T) {
	clock := newClock()
	l := New(time.Minute, 5, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		l.Allow("k")
	}
	require.False(t, l.Allow("k"))

	clock.Advance(59 * time.Second)
	assert.False(t, l.Allow("k"))

	clock.Advance(time.Second)
	assert.True(t, l.Allow("k"))
	for i := 0; i < 4; i++ {
		assert.True(t, l.Allow("k"))
	}
	assert.False(t, l.Allow("k"))
}

func TestAllow_ExpiredResetTimeInPastResets(t *testing.T) {
	clock := newClock()
	l := New(time.Minute, 1, WithClock(clock.Now))

	require.True(t, l.Allow("k"))
	require.False(t, l.Allow("k"))

	clock.Advance(10 * time.Minute)
	assert.True(t, l.Allow("k"))
}

func TestAllow_KeysIsolated(t *testing.T) {
	clock := newClock()
	l := New(time.Minute, 5, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		l.Allow("sync:a")
	}
	require.False(t, l.Allow("sync:a"))
	assert.True(t, l.Allow("sync:b"))
	assert.True(t, l.Allow("health:a"))
}

func TestAllow_ConcurrentSameKey(t *testing.T) {
	l := New(time.Minute, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("hot") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestNew_Defaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, DefaultWindow, l.Window())
	for i := 0; i < DefaultMax; i++ {
		require.True(t, l.Allow("k"))
	}
	assert.False(t, l.Allow("k"))
}

func TestSweep(t *testing.T) {
	clock := newClock()
	l := New(time.Minute, 5, WithClock(clock.Now))
	l.Allow("a")
	clock.Advance(30 * time.Second)
	l.Allow("b")
	clock.Advance(31 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestClientIdentifier(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded for list", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "10.0.0.1"},
		{"real ip fallback", map[string]string{"X-Real-IP": "10.0.0.9"}, "10.0.0.9"},
		{"forwarded wins", map[string]string{"X-Forwarded-For": "1.1.1.1", "X-Real-IP": "2.2.2.2"}, "1.1.1.1"},
		{"no headers", nil, UnknownClient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIdentifier(r))
		})
	}
	assert.Equal(t, "sync:1.1.1.1", Key("sync", "1.1.1.1"))
}
