package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"heatvision-agent/internal/model"
)

// MQTTOptions carries everything the MQTT sink needs from configuration.
type MQTTOptions struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	StatusTopic string
	QoS         byte
	Retain      bool
	Timeout     time.Duration
}

// MQTTSink publishes each reading to <prefix>/<field path> and maintains an
// online/offline status topic with a last-will fallback. Reconnects are
// delegated to the paho client.
type MQTTSink struct {
	client  mqtt.Client
	opts    MQTTOptions
	logger  *slog.Logger
	status  string
	payload func(model.PublishEvent) ([]byte, error)
}

func NewMQTTSink(o MQTTOptions, logger *slog.Logger) (*MQTTSink, error) {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	s := &MQTTSink{
		opts:    o,
		logger:  logger,
		status:  joinTopic(o.TopicPrefix, o.StatusTopic),
		payload: func(e model.PublishEvent) ([]byte, error) { return json.Marshal(e) },
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(o.BrokerURL)
	co.SetClientID(fmt.Sprintf("%s-%s", o.ClientID, uuid.NewString()[:8]))
	if o.Username != "" {
		co.SetUsername(o.Username)
		co.SetPassword(o.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.SetWill(s.status, "offline", o.QoS, true)

	co.OnConnect = func(c mqtt.Client) {
		logger.Info("mqtt connection established", "broker", o.BrokerURL)
		if tok := c.Publish(s.status, o.QoS, true, "online"); !tok.WaitTimeout(o.Timeout) {
			logger.Warn("status publish timed out")
		}
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, auto-reconnect pending", "error", err)
	}

	s.client = mqtt.NewClient(co)

	token := s.client.Connect()
	if !token.WaitTimeout(o.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", o.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", o.BrokerURL, err)
	}
	return s, nil
}

func (s *MQTTSink) Publish(ctx context.Context, events []model.PublishEvent) error {
	var errs []error
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		data, err := s.payload(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal %s: %w", e.Path, err))
			continue
		}
		topic := joinTopic(s.opts.TopicPrefix, e.Path)
		token := s.client.Publish(topic, s.opts.QoS, s.opts.Retain, data)
		if !token.WaitTimeout(s.opts.Timeout) {
			errs = append(errs, fmt.Errorf("publish %s: timeout", topic))
			continue
		}
		if err := token.Error(); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

func (s *MQTTSink) Close(ctx context.Context) error {
	if tok := s.client.Publish(s.status, s.opts.QoS, true, "offline"); !tok.WaitTimeout(s.opts.Timeout) {
		s.logger.Warn("offline status publish timed out")
	}
	s.client.Disconnect(250)
	return nil
}

func joinTopic(prefix, path string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	path = strings.TrimPrefix(path, "/")
	if prefix == "" {
		return path
	}
	return prefix + "/" + path
}
