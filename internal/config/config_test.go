package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HEATVISION_AGENT_ID", "hp-01")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ConsoleAddr != "127.0.0.1:5900" {
		t.Fatalf("unexpected console addr %q", cfg.ConsoleAddr)
	}
	if cfg.CycleInterval != time.Minute {
		t.Fatalf("unexpected cycle interval %v", cfg.CycleInterval)
	}
	if cfg.PublishMode != PublishModeMQTT {
		t.Fatalf("unexpected publish mode %q", cfg.PublishMode)
	}
	if cfg.OCRLanguage != "deu" || cfg.OCRWorkers != 2 {
		t.Fatalf("unexpected ocr defaults: %q/%d", cfg.OCRLanguage, cfg.OCRWorkers)
	}
	if cfg.StaleAfterMisses != 3 || cfg.FullRefreshEvery != 60 {
		t.Fatalf("unexpected aggregation defaults: %d/%d", cfg.StaleAfterMisses, cfg.FullRefreshEvery)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HEATVISION_AGENT_ID", "hp-02")
	t.Setenv("HEATVISION_CONSOLE_ADDR", "10.0.0.7:5901")
	t.Setenv("HEATVISION_CYCLE_INTERVAL", "30s")
	t.Setenv("HEATVISION_PUBLISH_MODE", "grpc")
	t.Setenv("HEATVISION_GRPC_ADDR", "collector:3001")
	t.Setenv("HEATVISION_NUMERIC_EPSILON", "0.01")
	t.Setenv("HEATVISION_LOG_JSON", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ConsoleAddr != "10.0.0.7:5901" {
		t.Fatalf("unexpected console addr %q", cfg.ConsoleAddr)
	}
	if cfg.CycleInterval != 30*time.Second {
		t.Fatalf("unexpected cycle interval %v", cfg.CycleInterval)
	}
	if cfg.PublishMode != PublishModeGRPC {
		t.Fatalf("unexpected publish mode %q", cfg.PublishMode)
	}
	if cfg.NumericEpsilon != 0.01 {
		t.Fatalf("unexpected epsilon %v", cfg.NumericEpsilon)
	}
	if cfg.LogJSON {
		t.Fatalf("expected text logging")
	}
}

func TestValidateRejectsBadQoS(t *testing.T) {
	t.Setenv("HEATVISION_AGENT_ID", "hp-01")
	t.Setenv("HEATVISION_MQTT_QOS", "7")

	if _, err := Load(); err == nil {
		t.Fatalf("expected a QoS validation error")
	}
}

func TestValidateRejectsUnknownPublishMode(t *testing.T) {
	t.Setenv("HEATVISION_AGENT_ID", "hp-01")
	t.Setenv("HEATVISION_PUBLISH_MODE", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatalf("expected a publish mode validation error")
	}
}

func TestValidateRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("HEATVISION_AGENT_ID", "hp-01")
	t.Setenv("HEATVISION_CYCLE_INTERVAL", "-5s")

	if _, err := Load(); err == nil {
		t.Fatalf("expected a cycle interval validation error")
	}
}

func TestBackoffPolicyFromConfig(t *testing.T) {
	t.Setenv("HEATVISION_AGENT_ID", "hp-01")
	t.Setenv("HEATVISION_RECONNECT_BASE", "2s")
	t.Setenv("HEATVISION_RECONNECT_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := cfg.BackoffPolicy()
	if p.Base != 2*time.Second {
		t.Fatalf("unexpected base %v", p.Base)
	}
	if p.MaxAttempts != 5 {
		t.Fatalf("unexpected attempts %d", p.MaxAttempts)
	}
}
