package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"heatvision-agent/internal/metrics"
	"heatvision-agent/internal/model"
	"heatvision-agent/internal/screen"
)

// Session is the slice of the session manager the scheduler needs.
type Session interface {
	Valid() bool
	Connect(ctx context.Context) error
}

// Navigator drives the UI to a screen and returns a verified capture.
type Navigator interface {
	Ensure(ctx context.Context, target string) (model.RawCapture, error)
	Reset()
}

// Publisher receives the cycle's events. Failures are the adapter's
// concern; the scheduler only logs them.
type Publisher interface {
	Publish(ctx context.Context, events []model.PublishEvent) error
}

// Scheduler runs the single extraction loop: one rotation over the
// configured screens per interval, aggregation, then publish. Cycle N+1
// never starts before cycle N's publish phase completes.
type Scheduler struct {
	logger    *slog.Logger
	session   Session
	navigator Navigator
	extractor *Extractor
	agg       *Aggregator
	sink      Publisher
	profile   *model.Profile
	interval  time.Duration
	// cooldown is the extended pause after the reconnect budget is
	// exhausted; the service stays alive instead of terminating.
	cooldown time.Duration
	metrics  *metrics.Metrics

	cycle uint64
}

func NewScheduler(
	logger *slog.Logger,
	session Session,
	navigator Navigator,
	extractor *Extractor,
	agg *Aggregator,
	sink Publisher,
	profile *model.Profile,
	interval, cooldown time.Duration,
	m *metrics.Metrics,
) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &Scheduler{
		logger:    logger,
		session:   session,
		navigator: navigator,
		extractor: extractor,
		agg:       agg,
		sink:      sink,
		profile:   profile,
		interval:  interval,
		cooldown:  cooldown,
		metrics:   m,
	}
}

// Cycle returns the last completed cycle sequence number.
func (s *Scheduler) Cycle() uint64 { return s.cycle }

func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if !s.session.Valid() {
			s.metrics.SessionUp.Set(0)
			s.metrics.ReconnectsTotal.Inc()
			if err := s.session.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("reconnect budget exhausted, entering cooldown", "error", err, "cooldown", s.cooldown)
				if err := s.sleep(ctx, s.cooldown); err != nil {
					return nil
				}
				continue
			}
			s.navigator.Reset()
			s.metrics.SessionUp.Set(1)
		}

		s.cycle++
		start := time.Now()
		s.runCycle(ctx)
		s.metrics.CyclesTotal.Inc()
		s.metrics.CycleSeconds.Observe(time.Since(start).Seconds())

		if err := s.sleep(ctx, s.interval); err != nil {
			return nil
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	var all []model.ExtractedValue

	for _, screenID := range s.profile.Rotation {
		cap, err := s.navigator.Ensure(ctx, screenID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("screen unreachable, skipping its fields", "screen", screenID, "error", err)
			if errors.Is(err, screen.ErrLost) {
				// The session is gone; the rest of the rotation cannot be
				// reached either. Untouched fields accrue misses below.
				s.metrics.NavigationLostTotal.Inc()
				break
			}
			continue
		}
		s.metrics.CapturesTotal.Inc()
		all = append(all, s.extractor.Extract(ctx, cap, s.profile.Screens[screenID])...)
	}

	events := s.agg.Aggregate(s.cycle, all)
	if len(events) == 0 {
		return
	}
	if err := s.sink.Publish(ctx, events); err != nil {
		s.logger.Warn("publish failed", "events", len(events), "error", err)
		return
	}
	s.metrics.PublishedTotal.Add(float64(len(events)))
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
