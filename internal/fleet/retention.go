package fleet

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/orion-fleet/orion/internal/errors"
)

// StartRetention schedules pruning of samples older than the configured
// keep window. It does nothing when retention is disabled or already
// running.
func (s *Service) StartRetention() error {
	r := s.cfg.Retention
	if !r.Enabled {
		return nil
	}

	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.Schedule, s.pruneJob); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("invalid retention schedule '%s'", r.Schedule),
			"Use a cron expression like '0 * * * *' or a descriptor like '@hourly'")
	}
	c.Start()
	s.cron = c

	s.log.Debug("retention scheduled %s, keeping %s", r.Schedule, r.Keep)
	return nil
}

// StopRetention stops the retention job and waits for a running prune.
func (s *Service) StopRetention() {
	s.cronMu.Lock()
	c := s.cron
	s.cron = nil
	s.cronMu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// PruneNow deletes samples older than the keep window and returns how many
// were removed.
func (s *Service) PruneNow(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	keep := s.cfg.Retention.Keep
	if keep <= 0 {
		return 0, errors.New(errors.ErrConfig, "retention.keep must be positive", "")
	}
	return s.store.PruneSamples(s.clock().Add(-keep))
}

func (s *Service) pruneJob() {
	n, err := s.PruneNow(context.Background())
	if err != nil {
		s.log.Warn("retention prune failed: %v", err)
		return
	}
	if n > 0 {
		s.log.Info("retention pruned %d samples", n)
	}
}
