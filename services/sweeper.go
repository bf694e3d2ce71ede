package services

import (
	"context"
	"sync"
	"time"

	"roster/presence-server/utils"
)

// Sweeper is the recurring background task that demotes users whose
// last heartbeat is older than the TTL, clearing their online and busy
// flags together. It is the sole authority for the online-to-offline
// transition.
type Sweeper struct {
	store    Store
	logger   *utils.Logger
	ttl      time.Duration
	interval time.Duration

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweeper(store Store, logger *utils.Logger, ttl, interval time.Duration) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		store:    store,
		logger:   logger,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetNowFunc overrides the clock. Intended for tests.
func (s *Sweeper) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Start begins the sweep loop.
func (s *Sweeper) Start() {
	s.logger.Info("Starting staleness sweeper", "ttl", s.ttl, "interval", s.interval)

	s.wg.Add(1)
	go s.run()
}

// Stop cancels the loop and waits for it to finish. An in-flight sweep
// completes; anything it did not reach stays for the next process.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()

	s.logger.Info("Staleness sweeper stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Sweep runs one eviction pass. Errors are logged, never fatal: a
// failed pass must not stop future sweeps.
func (s *Sweeper) Sweep(now time.Time) {
	evicted, err := s.store.EvictStale(s.ctx, now, s.ttl)
	if err != nil {
		s.logger.Error("Presence sweep failed", "error", err)
		return
	}

	if evicted > 0 {
		s.logger.Info("Evicted stale users", "count", evicted)
	}
}
