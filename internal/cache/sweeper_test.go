package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/squadbot/platform_core/pkg/logger"
)

func TestSweepEvictsExpired(t *testing.T) {
	c, now := newTestCache(time.Minute)
	c.Set("dead", 1, time.Second)
	c.Set("live", 2, time.Hour)
	*now = now.Add(2 * time.Second)

	s := NewSweeper(NewMemoryBackend(c), time.Minute, logger.NewDefault("test"))
	s.sweep()

	stats := c.GetStats()
	if stats.Total != 1 || stats.Expired != 0 {
		t.Errorf("expected only live entry after sweep, got %+v", stats)
	}
}

type erroringBackend struct {
	MemoryBackend
}

func (e *erroringBackend) CleanupExpired(context.Context) (int, error) {
	return 0, errors.New("backend unavailable")
}

func TestSweepSwallowsFailure(t *testing.T) {
	log := logger.NewDefault("test")
	var buf bytes.Buffer
	log.SetOutput(&buf)

	s := NewSweeper(&erroringBackend{}, time.Minute, log)

	// Must not panic; the failure is logged and the sweeper stays usable.
	s.sweep()
	s.sweep()

	if !bytes.Contains(buf.Bytes(), []byte("cache sweep failed")) {
		t.Errorf("expected failure log, got %q", buf.String())
	}
}

func TestSweeperStartStop(t *testing.T) {
	s := NewSweeper(NewMemoryBackend(New(time.Minute)), time.Second, logger.NewDefault("test"))
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
}

func TestSweeperDefaultsInterval(t *testing.T) {
	s := NewSweeper(NewMemoryBackend(New(time.Minute)), 0, logger.NewDefault("test"))
	if s.interval != 60*time.Second {
		t.Errorf("expected 60s default interval, got %s", s.interval)
	}
}
