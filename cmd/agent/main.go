package main

import (
	"context"
	"log"

	"heatvision-agent/internal/agent"
	"heatvision-agent/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := agent.BuildLogger(cfg)
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		logger.Error("device profile load failed", "error", err, "path", cfg.ProfilePath)
		return
	}

	a, err := agent.New(cfg, profile, logger)
	if err != nil {
		logger.Error("agent initialization failed", "error", err)
		return
	}

	if err := a.Run(context.Background()); err != nil {
		logger.Error("agent runtime failed", "error", err)
	}
}
