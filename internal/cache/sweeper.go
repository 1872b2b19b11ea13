package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/squadbot/platform_core/pkg/logger"
)

// sweepTimeout bounds one cleanup pass against a remote backend.
const sweepTimeout = 30 * time.Second

// Sweeper periodically evicts expired entries from a Backend. Failures are
// logged and swallowed; the schedule keeps running until Stop.
type Sweeper struct {
	backend  Backend
	interval time.Duration
	log      *logger.Logger
	cron     *cron.Cron
}

// NewSweeper builds a sweeper with the given wake interval.
func NewSweeper(backend Backend, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	s := &Sweeper{
		backend:  backend,
		interval: interval,
		log:      log,
	}
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{log: log})))
	return s
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.sweep); err != nil {
		return fmt.Errorf("schedule cache sweep: %w", err)
	}
	s.cron.Start()
	s.log.WithField("interval", s.interval.String()).Info("cache sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("cache sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	removed, err := s.backend.CleanupExpired(ctx)
	if err != nil {
		s.log.WithError(err).Warn("cache sweep failed")
		return
	}
	if removed > 0 {
		s.log.WithField("removed", removed).Debug("cache sweep evicted expired entries")
	}
}

// cronLogger adapts the structured logger to the cron logging contract.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.WithField("detail", fmt.Sprint(keysAndValues...)).Debug(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithError(err).WithField("detail", fmt.Sprint(keysAndValues...)).Warn(msg)
}
