// Package ratelimit throttles per-user retention sweeps so a busy user is swept
// at most once per interval.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Throttle admits a key at most once per interval.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config holds throttle configuration
type Config struct {
	Interval      time.Duration // Minimum gap between two admissions of the same key
	CleanupPeriod time.Duration // How often expired keys are dropped
}

// DefaultSweepConfig returns the defaults used for retention sweeps.
func DefaultSweepConfig(interval time.Duration) *Config {
	cleanup := 2 * interval
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &Config{
		Interval:      interval,
		CleanupPeriod: cleanup,
	}
}

func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.CleanupPeriod <= 0 {
		return fmt.Errorf("cleanup period must be positive")
	}
	return nil
}

// MemoryThrottle is an in-process Throttle. It is enough for a single server instance.
type MemoryThrottle struct {
	config   *Config
	admitted map[string]time.Time
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func NewMemoryThrottle(config *Config) (*MemoryThrottle, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	t := &MemoryThrottle{
		config:   config,
		admitted: make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}

	go t.cleanupLoop()

	return t, nil
}

// Allow admits key if it was not admitted within the interval.
func (t *MemoryThrottle) Allow(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.admitted[key]; ok && now.Sub(last) < t.config.Interval {
		return false, nil
	}
	t.admitted[key] = now
	return true, nil
}

func (t *MemoryThrottle) cleanupLoop() {
	ticker := time.NewTicker(t.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.cleanup()
		case <-t.stopCh:
			return
		}
	}
}

func (t *MemoryThrottle) cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key, last := range t.admitted {
		if now.Sub(last) >= t.config.Interval {
			delete(t.admitted, key)
		}
	}
}

// Close stops the cleanup goroutine
func (t *MemoryThrottle) Close() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}
