// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Cleaner removes expired rows and reports how many were deleted.
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Scheduler sweeps expired password-reset codes.
type Scheduler struct {
	cron   *cron.Cron
	resets Cleaner
	log    logrus.FieldLogger
}

// NewScheduler parses schedule (standard five-field expression or a descriptor
// such as "@every 1h") and registers the sweep.
func NewScheduler(schedule string, resets Cleaner, log logrus.FieldLogger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		resets: resets,
		log:    log.WithField("component", "scheduler"),
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.SweepResetCodes(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", schedule, err)
	}
	return s, nil
}

// SweepResetCodes runs one cleanup pass.
func (s *Scheduler) SweepResetCodes(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := s.resets.Cleanup(ctx)
	if err != nil {
		s.log.WithError(err).Error("reset code sweep failed")
		return
	}
	s.log.WithField("deleted", n).Info("reset code sweep completed")
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for a running sweep to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
