// Package maintenance runs periodic housekeeping jobs for the timeline
// service.
package maintenance

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/learning-layers/Timeliner/internal/platform/logging"
)

// Config schedules the housekeeping jobs. Schedules use cron syntax or
// descriptors such as "@every 1h"; an empty schedule disables the job.
type Config struct {
	PurgeSchedule string `env:"TIMELINER_PURGE_SCHEDULE" envDefault:"@every 1h"`
}

// Purger removes registrations whose confirmation key has expired.
type Purger interface {
	PurgeUnconfirmed(ctx context.Context) (int64, error)
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron   *cron.Cron
	purger Purger
	logger logrus.FieldLogger
}

// NewScheduler registers the jobs in cfg. Nothing runs until Start.
func NewScheduler(cfg Config, purger Purger, logger logrus.FieldLogger) (*Scheduler, error) {
	if purger == nil {
		return nil, fmt.Errorf("purger is required")
	}
	logger = logging.Component(logger, "maintenance")
	adapter := cronLogger{logger: logger}
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(adapter), cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter))),
		purger: purger,
		logger: logger,
	}
	if schedule := strings.TrimSpace(cfg.PurgeSchedule); schedule != "" {
		if _, err := s.cron.AddFunc(schedule, func() { s.PurgeUnconfirmed(context.Background()) }); err != nil {
			return nil, fmt.Errorf("schedule purge %q: %w", schedule, err)
		}
	}
	return s, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("jobs", len(s.cron.Entries())).Info("maintenance scheduler started")
}

// Stop prevents new runs and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PurgeUnconfirmed runs one purge and logs the outcome.
func (s *Scheduler) PurgeUnconfirmed(ctx context.Context) {
	removed, err := s.purger.PurgeUnconfirmed(ctx)
	if err != nil {
		s.logger.WithError(err).Error("purge unconfirmed registrations")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("purged unconfirmed registrations")
	}
}

// cronLogger adapts logrus to the cron.Logger interface.
type cronLogger struct {
	logger logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []any) logrus.Fields {
	out := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
