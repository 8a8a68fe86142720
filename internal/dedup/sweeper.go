package dedup

import (
	"log/slog"
	"sync"
	"time"
)

// Evictable is anything holding time-bounded entries the sweeper can
// expire, e.g. the dedup store and the rate limiter.
type Evictable interface {
	EvictExpired(now time.Time) int
}

// Sweeper periodically evicts expired entries. It runs off the request
// path and can be stopped independently, so short-lived instances (as
// in tests) do not leak timers.
type Sweeper struct {
	interval time.Duration
	targets  []Evictable

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper creates a sweeper over the given targets.
func NewSweeper(interval time.Duration, targets ...Evictable) *Sweeper {
	return &Sweeper{
		interval: interval,
		targets:  targets,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
	slog.Info("cleanup sweeper started", "interval", s.interval)
}

// Stop terminates the sweep loop and waits for it to exit. Safe to
// call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	now := time.Now()
	evicted := 0
	for _, t := range s.targets {
		evicted += t.EvictExpired(now)
	}
	if evicted > 0 {
		slog.Debug("evicted expired entries", "count", evicted)
	}
}
