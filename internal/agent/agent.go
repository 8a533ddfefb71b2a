package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heatvision-agent/internal/collector"
	"heatvision-agent/internal/config"
	"heatvision-agent/internal/metrics"
	"heatvision-agent/internal/model"
	"heatvision-agent/internal/ocr"
	"heatvision-agent/internal/publish"
	"heatvision-agent/internal/screen"
	"heatvision-agent/internal/vnc"
)

type Agent struct {
	cfg       config.Config
	logger    *slog.Logger
	session   *vnc.SessionManager
	scheduler *collector.Scheduler
	agg       *collector.Aggregator
	sink      publish.Sink
	engine    ocr.Engine
	metrics   *metrics.Metrics
	health    *HealthStatus
}

func New(cfg config.Config, profile *model.Profile, logger *slog.Logger) (*Agent, error) {
	sink, err := publish.NewSinkFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("publish sink: %w", err)
	}

	m := metrics.New()
	health := NewHealthStatus()
	wrappedSink := &healthSink{sink: sink, health: health}

	session := vnc.NewSessionManager(
		vnc.NewRFBTransport(),
		cfg.ConsoleAddr,
		cfg.ConsolePassword,
		cfg.ConnectTimeout,
		cfg.BackoffPolicy(),
		logger,
	)
	navigator := screen.NewNavigator(session, profile, cfg.MarkerAttempts, cfg.MarkerRecheck, logger)
	engine := ocr.NewTesseractEngine()
	extractor := collector.NewExtractor(engine, cfg.OCRLanguage, cfg.OCRWorkers, logger, m)
	agg := collector.NewAggregator(
		profile.FieldNames(),
		cfg.NumericEpsilon,
		cfg.StaleAfterMisses,
		cfg.FullRefreshEvery,
		logger,
		m,
	)
	scheduler := collector.NewScheduler(
		logger,
		session,
		navigator,
		extractor,
		agg,
		wrappedSink,
		profile,
		cfg.CycleInterval,
		cfg.CooldownInterval,
		m,
	)

	return &Agent{
		cfg:       cfg,
		logger:    logger,
		session:   session,
		scheduler: scheduler,
		agg:       agg,
		sink:      wrappedSink,
		engine:    engine,
		metrics:   m,
		health:    health,
	}, nil
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting heatvision-agent", "agent_id", a.cfg.AgentID, "console_addr", a.cfg.ConsoleAddr)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
		// Agent terminated by itself (startup error/runtime error/parent ctx canceled).
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
			// graceful stop completed in time
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancelShutdown()
	a.shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("heatvision-agent stopped")
	return nil
}

func BuildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hOpts))
}

// healthSink observes broker traffic so the probe endpoint can report the
// publish path state without reaching into the sink.
type healthSink struct {
	sink   publish.Sink
	health *HealthStatus
}

func (s *healthSink) Publish(ctx context.Context, events []model.PublishEvent) error {
	err := s.sink.Publish(ctx, events)
	if err != nil {
		s.health.SetBrokerConnected(false)
		return err
	}
	s.health.SetBrokerConnected(true)
	if len(events) > 0 {
		s.health.MarkPublish(time.Now().UTC())
	}
	return nil
}

func (s *healthSink) Close(ctx context.Context) error {
	return s.sink.Close(ctx)
}
