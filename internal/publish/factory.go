package publish

import (
	"fmt"
	"log/slog"

	"heatvision-agent/internal/config"
)

// NewSinkFromConfig builds the sink selected by the publish mode and wraps
// it in an ordering guard so replayed cycles never reach the broker.
func NewSinkFromConfig(cfg config.Config, logger *slog.Logger) (Sink, error) {
	switch cfg.PublishMode {
	case config.PublishModeMQTT:
		sink, err := NewMQTTSink(MQTTOptions{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
			StatusTopic: cfg.MQTTStatusTopic,
			QoS:         byte(cfg.MQTTQoS),
			Retain:      cfg.MQTTRetain,
			Timeout:     cfg.PublishTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("mqtt sink: %w", err)
		}
		return NewOrderingGuard(sink), nil
	case config.PublishModeGRPC:
		return NewOrderingGuard(NewGRPCSink(cfg.GRPCAddr, cfg.GRPCToken, cfg.GRPCEventMethod, cfg.AgentID, logger)), nil
	default:
		return nil, fmt.Errorf("unsupported publish mode %q", cfg.PublishMode)
	}
}
