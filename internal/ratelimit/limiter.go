// Package ratelimit throttles requests per client key with fixed windows.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnavailable indicates the limiter backend could not be reached.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Limiter decides whether another request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config tunes a fixed-window limiter.
type Config struct {
	Window time.Duration
	Limit  int
	// MaxKeys bounds the number of tracked keys in memory. Zero means unbounded.
	// When full, the window closest to expiry is dropped.
	MaxKeys int
}

type window struct {
	count   int
	resetAt time.Time
}

// Memory keeps counters in process memory.
type Memory struct {
	cfg  Config
	now  func() time.Time
	mu   sync.Mutex
	keys map[string]*window
}

func NewMemory(cfg Config) *Memory {
	return &Memory{
		cfg:  cfg,
		now:  time.Now,
		keys: make(map[string]*window),
	}
}

// WithClock replaces the time source.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.keys[key]
	if !ok || !now.Before(w.resetAt) {
		if !ok && m.cfg.MaxKeys > 0 && len(m.keys) >= m.cfg.MaxKeys {
			m.evictExpired(now)
			if len(m.keys) >= m.cfg.MaxKeys {
				m.evictOldest()
			}
		}
		w = &window{resetAt: now.Add(m.cfg.Window)}
		m.keys[key] = w
	}

	w.count++
	return w.count <= m.cfg.Limit, nil
}

func (m *Memory) evictExpired(now time.Time) {
	for k, w := range m.keys {
		if !now.Before(w.resetAt) {
			delete(m.keys, k)
		}
	}
}

// evictOldest drops the window closest to expiry so a full table never
// locks out new clients.
func (m *Memory) evictOldest() {
	var (
		oldest string
		at     time.Time
	)
	for k, w := range m.keys {
		if oldest == "" || w.resetAt.Before(at) {
			oldest, at = k, w.resetAt
		}
	}
	delete(m.keys, oldest)
}

// Noop allows every request.
type Noop struct{}

func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }
