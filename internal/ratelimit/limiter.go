// Package ratelimit 提供按 key 计数的固定窗口限流器。
//
// 计数只保存在当前进程内存中：多实例部署时各实例独立计数，
// 需要全局配额时应改用共享存储（如 Redis）实现同样的 Allow 语义。
package ratelimit

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultMax    = 5

	// UnknownClient 无任何转发头时的共享桶
	UnknownClient = "unknown"
)

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter 并发安全的按 key 限流器
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	now     func() time.Time
	entries map[string]entry
}

// Option 限流器可选项
type Option func(*Limiter)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New 创建限流器，非法参数回退为默认值（60s / 5 次）
func New(window time.Duration, max int, opts ...Option) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}
	l := &Limiter{
		window:  window,
		max:     max,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Window 窗口长度
func (l *Limiter) Window() time.Duration { return l.window }

// Allow 记录一次请求并返回是否放行。
// 新 key 或已过期的 key 重置窗口并放行；窗口内计数达到上限后拒绝，直到窗口结束。
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		l.entries[key] = entry{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if e.count >= l.max {
		return false
	}
	e.count++
	l.entries[key] = e
	return true
}

// Sweep 清理已过期的 key，返回清理数量
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Len 当前跟踪的 key 数量
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Key 拼接限流 key：{endpointPrefix}:{clientIdentifier}
func Key(prefix, client string) string {
	return prefix + ":" + client
}

// forwardedHeaders 按优先级检查的转发头
var forwardedHeaders = []string{"X-Forwarded-For", "X-Real-IP"}

// ClientIdentifier 取第一个存在的转发头中的第一个地址，否则归入 "unknown" 桶。
// 同一代理后且未携带转发头的客户端会共享同一个桶。
func ClientIdentifier(r *http.Request) string {
	for _, h := range forwardedHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		first := strings.TrimSpace(strings.Split(v, ",")[0])
		if first != "" {
			return first
		}
	}
	return UnknownClient
}
