package bench

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/zkbench/internal/coord"
)

// Settler waits, after every worker has stopped, for the service to finish
// committing in-flight creates before the children are counted.
type Settler interface {
	Settle(ctx context.Context, s coord.Session, root string) error
}

// FixedDelay sleeps for Delay.
type FixedDelay struct {
	Delay time.Duration
}

func (f FixedDelay) Settle(ctx context.Context, _ coord.Session, _ string) error {
	if f.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(f.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PollUntilStable samples the child count every Interval and returns once
// two consecutive samples agree. Timeout bounds the wait; when it expires
// the count is taken as is.
type PollUntilStable struct {
	Interval time.Duration
	Timeout  time.Duration
	Logger   *zap.Logger
}

func (p PollUntilStable) Settle(ctx context.Context, s coord.Session, root string) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	giveUp := time.Now().Add(timeout)
	prev := -1
	for samples := 1; ; samples++ {
		children, err := s.Children(root)
		if err != nil {
			return err
		}
		n := len(children)
		if n == prev {
			log.Debug("child count stable", zap.Int("count", n), zap.Int("samples", samples))
			return nil
		}
		prev = n

		if !time.Now().Add(interval).Before(giveUp) {
			log.Warn("child count still changing at settle timeout",
				zap.Int("count", n), zap.Duration("timeout", timeout))
			return nil
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
