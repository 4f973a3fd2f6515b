// Package jobs runs the periodic background work: expiring stale exchange
// requests and pruning idle rate limiter buckets.
package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

type Pruner interface {
	Cleanup() int
}

type Scheduler struct {
	cron    *cron.Cron
	expirer Expirer
	pruner  Pruner
}

func NewScheduler(expirer Expirer, pruner Pruner) *Scheduler {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return &Scheduler{cron: c, expirer: expirer, pruner: pruner}
}

// Start registers the jobs; expirySpec is a standard cron spec or descriptor such as "@hourly".
func (s *Scheduler) Start(ctx context.Context, expirySpec string) error {
	if _, err := s.cron.AddFunc(expirySpec, func() { s.ExpireRequests(ctx) }); err != nil {
		return fmt.Errorf("schedule request expiry %q: %w", expirySpec, err)
	}
	if s.pruner != nil {
		if _, err := s.cron.AddFunc("@every 10m", func() {
			if n := s.pruner.Cleanup(); n > 0 {
				log.WithField("removed", n).Debug("[CRON] rate limiter buckets pruned")
			}
		}); err != nil {
			return err
		}
	}
	s.cron.Start()
	log.WithField("expiry_spec", expirySpec).Info("job scheduler started")
	return nil
}

// ExpireRequests runs one expiry pass.
func (s *Scheduler) ExpireRequests(ctx context.Context) {
	n, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] request expiry failed")
		return
	}
	if n > 0 {
		log.WithField("expired", n).Info("[CRON] stale exchange requests refunded")
	}
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info("job scheduler stopped")
}
