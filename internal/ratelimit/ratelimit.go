package ratelimit

import (
	"sync"
	"time"

	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

// Config configures the fixed-window limiter.
type Config struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
}

// DefaultConfig allows 100 requests per identity per minute.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		MaxRequests: 100,
		Window:      time.Minute,
	}
}

type counter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// Limiter admits requests per identity on a fixed window. Each identity owns
// its counter and lock, so concurrent callers for different identities never
// contend beyond the map lookup.
type Limiter struct {
	cfg      Config
	logger   logging.Logger
	mu       sync.RWMutex
	counters map[string]*counter

	now func() time.Time
}

func NewLimiter(cfg Config, logger logging.Logger) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultConfig().MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	return &Limiter{
		cfg:      cfg,
		logger:   logger,
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// Allow reports whether a request from the identity is admitted. The window
// resets on the first request after it has elapsed, before the limit check.
func (l *Limiter) Allow(identity string) bool {
	if !l.cfg.Enabled {
		return true
	}

	c := l.counterFor(identity)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := l.now()
	if now.Sub(c.windowStart) > l.cfg.Window {
		c.count = 0
		c.windowStart = now
	}

	if c.count >= l.cfg.MaxRequests {
		l.logger.WithField("identity", identity).Warn("Rate limit exceeded")
		return false
	}

	c.count++
	return true
}

func (l *Limiter) counterFor(identity string) *counter {
	l.mu.RLock()
	c, ok := l.counters[identity]
	l.mu.RUnlock()
	if ok {
		return c
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.counters[identity]; ok {
		return c
	}
	c = &counter{windowStart: l.now()}
	l.counters[identity] = c
	return c
}
