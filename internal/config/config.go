package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"heatvision-agent/internal/backoff"
)

type PublishMode string

const (
	PublishModeMQTT PublishMode = "mqtt"
	PublishModeGRPC PublishMode = "grpc"
)

type Config struct {
	AgentID         string
	ConsoleAddr     string
	ConsolePassword string
	OCRLanguage     string
	OCRWorkers      int
	ProfilePath     string
	ProbeListenAddr string

	CycleInterval    time.Duration
	ConnectTimeout   time.Duration
	CooldownInterval time.Duration
	HealthInterval   time.Duration
	ShutdownTimeout  time.Duration

	ReconnectBase        time.Duration
	ReconnectMultiplier  float64
	ReconnectMax         time.Duration
	ReconnectMaxAttempts int
	ReconnectJitter      time.Duration

	MarkerAttempts   int
	MarkerRecheck    time.Duration
	NumericEpsilon   float64
	StaleAfterMisses int
	FullRefreshEvery int

	PublishMode    PublishMode
	PublishTimeout time.Duration

	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	MQTTStatusTopic string
	MQTTQoS         int
	MQTTRetain      bool

	GRPCAddr        string
	GRPCToken       string
	GRPCEventMethod string

	LogJSON  bool
	LogLevel string
}

func Load() (Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	cfg := Config{
		AgentID:         env("HEATVISION_AGENT_ID", hostname),
		ConsoleAddr:     env("HEATVISION_CONSOLE_ADDR", "127.0.0.1:5900"),
		ConsolePassword: env("HEATVISION_CONSOLE_PASSWORD", ""),
		OCRLanguage:     env("HEATVISION_OCR_LANGUAGE", "deu"),
		OCRWorkers:      envInt("HEATVISION_OCR_WORKERS", 2),
		ProfilePath:     env("HEATVISION_PROFILE_PATH", "./profile.yaml"),
		ProbeListenAddr: env("HEATVISION_PROBE_ADDR", "0.0.0.0:9402"),

		CycleInterval:    envDuration("HEATVISION_CYCLE_INTERVAL", time.Minute),
		ConnectTimeout:   envDuration("HEATVISION_CONNECT_TIMEOUT", 8*time.Second),
		CooldownInterval: envDuration("HEATVISION_COOLDOWN_INTERVAL", 5*time.Minute),
		HealthInterval:   envDuration("HEATVISION_HEALTH_INTERVAL", 30*time.Second),
		ShutdownTimeout:  envDuration("HEATVISION_SHUTDOWN_TIMEOUT", 10*time.Second),

		ReconnectBase:        envDuration("HEATVISION_RECONNECT_BASE", time.Second),
		ReconnectMultiplier:  envFloat("HEATVISION_RECONNECT_MULTIPLIER", 2),
		ReconnectMax:         envDuration("HEATVISION_RECONNECT_MAX", 60*time.Second),
		ReconnectMaxAttempts: envInt("HEATVISION_RECONNECT_MAX_ATTEMPTS", 12),
		ReconnectJitter:      envDuration("HEATVISION_RECONNECT_JITTER", 500*time.Millisecond),

		MarkerAttempts:   envInt("HEATVISION_MARKER_ATTEMPTS", 3),
		MarkerRecheck:    envDuration("HEATVISION_MARKER_RECHECK", 500*time.Millisecond),
		NumericEpsilon:   envFloat("HEATVISION_NUMERIC_EPSILON", 0.001),
		StaleAfterMisses: envInt("HEATVISION_STALE_AFTER_MISSES", 3),
		FullRefreshEvery: envInt("HEATVISION_FULL_REFRESH_EVERY", 60),

		PublishMode:    PublishMode(strings.ToLower(env("HEATVISION_PUBLISH_MODE", string(PublishModeMQTT)))),
		PublishTimeout: envDuration("HEATVISION_PUBLISH_TIMEOUT", 5*time.Second),

		MQTTBrokerURL:   env("HEATVISION_MQTT_BROKER_URL", "tcp://127.0.0.1:1883"),
		MQTTClientID:    env("HEATVISION_MQTT_CLIENT_ID", "heatvision-agent"),
		MQTTUsername:    env("HEATVISION_MQTT_USERNAME", ""),
		MQTTPassword:    env("HEATVISION_MQTT_PASSWORD", ""),
		MQTTTopicPrefix: env("HEATVISION_MQTT_TOPIC_PREFIX", "heatpump"),
		MQTTStatusTopic: env("HEATVISION_MQTT_STATUS_TOPIC", "status"),
		MQTTQoS:         envInt("HEATVISION_MQTT_QOS", 1),
		MQTTRetain:      envBool("HEATVISION_MQTT_RETAIN", true),

		GRPCAddr:        env("HEATVISION_GRPC_ADDR", "127.0.0.1:3001"),
		GRPCToken:       env("HEATVISION_GRPC_TOKEN", ""),
		GRPCEventMethod: env("HEATVISION_GRPC_EVENT_METHOD", "/heatvision.readings.v1.ReadingService/PublishReadings"),

		LogJSON:  envBool("HEATVISION_LOG_JSON", true),
		LogLevel: strings.ToLower(env("HEATVISION_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.AgentID == "" {
		return errors.New("HEATVISION_AGENT_ID is required")
	}
	if c.ConsoleAddr == "" {
		return errors.New("HEATVISION_CONSOLE_ADDR is required")
	}
	if c.ProfilePath == "" {
		return errors.New("HEATVISION_PROFILE_PATH is required")
	}
	if strings.TrimSpace(c.ProbeListenAddr) == "" {
		return errors.New("HEATVISION_PROBE_ADDR is required")
	}
	if c.CycleInterval <= 0 {
		return errors.New("HEATVISION_CYCLE_INTERVAL must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("HEATVISION_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("HEATVISION_CONNECT_TIMEOUT must be > 0")
	}
	if c.MarkerAttempts <= 0 {
		return errors.New("HEATVISION_MARKER_ATTEMPTS must be > 0")
	}
	if c.StaleAfterMisses <= 0 {
		return errors.New("HEATVISION_STALE_AFTER_MISSES must be > 0")
	}
	if c.NumericEpsilon < 0 {
		return errors.New("HEATVISION_NUMERIC_EPSILON must be >= 0")
	}
	switch c.PublishMode {
	case PublishModeMQTT:
		if c.MQTTBrokerURL == "" {
			return errors.New("HEATVISION_MQTT_BROKER_URL is required for mqtt mode")
		}
		if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
			return errors.New("HEATVISION_MQTT_QOS must be 0, 1 or 2")
		}
	case PublishModeGRPC:
		if c.GRPCAddr == "" {
			return errors.New("HEATVISION_GRPC_ADDR is required for grpc mode")
		}
		if strings.TrimSpace(c.GRPCEventMethod) == "" {
			return errors.New("HEATVISION_GRPC_EVENT_METHOD is required for grpc mode")
		}
	default:
		return fmt.Errorf("unsupported publish mode %q", c.PublishMode)
	}
	return nil
}

// BackoffPolicy is the single retry policy shared by connection and
// navigation recovery.
func (c Config) BackoffPolicy() backoff.Policy {
	return backoff.Policy{
		Base:        c.ReconnectBase,
		Multiplier:  c.ReconnectMultiplier,
		Max:         c.ReconnectMax,
		MaxAttempts: c.ReconnectMaxAttempts,
		Jitter:      c.ReconnectJitter,
	}
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
