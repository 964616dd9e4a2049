package link

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vst-controls/green-machine/internal/logger"
)

const (
	// publishQoS delivers every frame at least once; the board and the
	// controller both treat duplicates as idempotent.
	publishQoS = 1

	disconnectQuiesceMs = 250
)

// Config holds the connection settings for the board link.
type Config struct {
	BrokerURL   string
	TopicPrefix string
	ClientID    string
	Timeout     time.Duration
}

// Link is the MQTT connection to the relay/sensor board and to remote
// operator tooling. All frames are small JSON documents.
type Link struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
}

// Dial connects to the broker and blocks until the connection is up or the
// timeout expires.
func Dial(ctx context.Context, cfg Config) (*Link, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true).
		SetOrderMatters(false)

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.WarnKV(ctx, "board link lost, reconnecting", "error", err)
	}

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("connect to %s: timeout after %s", cfg.BrokerURL, cfg.Timeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.BrokerURL, err)
	}

	logger.InfoKV(ctx, "board link connected", "broker", cfg.BrokerURL, "prefix", cfg.TopicPrefix)

	return &Link{
		client:  client,
		prefix:  cfg.TopicPrefix,
		timeout: cfg.Timeout,
	}, nil
}

// publishJSON marshals payload and publishes it, waiting for the broker ack.
func (l *Link) publishJSON(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", topic, err)
	}

	token := l.client.Publish(topic, publishQoS, false, data)
	if !token.WaitTimeout(l.timeout) {
		return fmt.Errorf("publish %s: timeout after %s", topic, l.timeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	return nil
}

// subscribe registers a handler, waiting for the broker ack.
func (l *Link) subscribe(topic string, handler mqtt.MessageHandler) error {
	token := l.client.Subscribe(topic, publishQoS, handler)
	if !token.WaitTimeout(l.timeout) {
		return fmt.Errorf("subscribe %s: timeout after %s", topic, l.timeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	return nil
}

func (l *Link) topic(suffix string) string {
	return l.prefix + "/" + suffix
}

// Close disconnects from the broker after letting in-flight frames drain.
func (l *Link) Close() {
	l.client.Disconnect(disconnectQuiesceMs)
}
