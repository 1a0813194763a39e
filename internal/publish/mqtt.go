// Package publish forwards decoded measurements to an MQTT broker.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/niktheblak/ruuvitag-sensor/pkg/ruuvitag"
)

var (
	ErrConnectionFailed = errors.New("MQTT connection failed")
	ErrPublishFailed    = errors.New("MQTT publish failed")
)

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic prefix; measurements are published to <Topic>/<MAC>
	Topic    string
	QoS      byte
	Retained bool
	Timeout  time.Duration
	Logger   *slog.Logger
}

type Publisher struct {
	client   pahomqtt.Client
	topic    string
	qos      byte
	retained bool
	timeout  time.Duration
	logger   *slog.Logger
}

// Connect connects to the configured broker.
func Connect(cfg Config) (*Publisher, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	p := newPublisher(pahomqtt.NewClient(opts), cfg)
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, p.timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	p.logger.LogAttrs(nil, slog.LevelInfo, "Connected to MQTT broker", slog.String("broker", cfg.Broker))
	return p, nil
}

func newPublisher(client pahomqtt.Client, cfg Config) *Publisher {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Topic == "" {
		cfg.Topic = "ruuvitag"
	}
	return &Publisher{
		client:   client,
		topic:    cfg.Topic,
		qos:      cfg.QoS,
		retained: cfg.Retained,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

// Publish sends the values of m as a JSON object.
func (p *Publisher) Publish(addr ruuvitag.Address, m ruuvitag.Measurement) error {
	payload, err := json.Marshal(m.Values())
	if err != nil {
		return err
	}
	topic := p.topic + "/" + addr.String()
	token := p.client.Publish(topic, p.qos, p.retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	p.logger.LogAttrs(nil, slog.LevelDebug, "Published measurement", slog.String("topic", topic))
	return nil
}

func (p *Publisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
