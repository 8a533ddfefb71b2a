package agent

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

func (a *Agent) run(ctx context.Context) error {
	// The console may be down at startup; the scheduler owns reconnecting
	// with cooldowns, so a failed first connect never terminates the agent.
	if err := a.session.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		a.logger.Error("initial console connect failed, scheduler keeps retrying", "error", err)
	} else {
		a.health.SetConsoleConnected(true)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.runHealthLoop(gctx)
	})
	g.Go(func() error {
		return a.runProbeListener(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runHealthLoop mirrors scheduler and session state into the health
// snapshot. Reconnecting is the scheduler's job; this loop only observes.
func (a *Agent) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(a.cfg.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			a.health.SetConsoleConnected(a.session.Valid())
			if seq := a.scheduler.Cycle(); seq > 0 {
				a.health.MarkCycle(seq, time.Now().UTC())
			}
			a.health.SetStaleFields(a.agg.Snapshot().StaleCount())
			a.logger.Debug("agent health", "snapshot", a.health.Snapshot())
		}
	}
}

func (a *Agent) shutdown(ctx context.Context) {
	if err := a.sink.Close(ctx); err != nil {
		a.logger.Warn("publish sink close failed", "error", err)
	}
	a.health.SetBrokerConnected(false)
	if err := a.engine.Close(); err != nil {
		a.logger.Warn("ocr engine close failed", "error", err)
	}
	if err := a.session.Close(); err != nil {
		a.logger.Warn("console close failed", "error", err)
	}
	a.health.SetConsoleConnected(false)
}
