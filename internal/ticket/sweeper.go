package ticket

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper periodically drops expired tickets in the background as a
// defense-in-depth complement to the sweep Store already performs inline
// on every Issue/Consume call.
type Sweeper struct {
	logger   *logrus.Logger
	store    *Store
	interval time.Duration
	stopChan chan struct{}
}

// NewSweeper creates a background sweeper for store, ticking every interval.
func NewSweeper(logger *logrus.Logger, store *Store, interval time.Duration) *Sweeper {
	return &Sweeper{
		logger:   logger,
		store:    store,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			before := s.store.Len()
			s.store.Sweep()
			after := s.store.Len()
			if before != after {
				s.logger.WithFields(logrus.Fields{
					"swept":     before - after,
					"remaining": after,
				}).Debug("Swept expired tickets")
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the sweep loop.
func (s *Sweeper) Stop() {
	close(s.stopChan)
}
