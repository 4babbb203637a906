package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/pkg/logger"
)

const (
	defaultQoS            = 1
	defaultPublishTimeout = 2 * time.Second
	defaultConnectTimeout = 5 * time.Second
	disconnectQuiesceMs   = 250
)

// Publisher is the subset of mqtt.Client the notifier uses.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// MQTTStats reports publish counters. Published is keyed by notification type.
type MQTTStats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// MQTT publishes notifications as JSON to
// <prefix>/sessions/<session id>/<type>.
type MQTT struct {
	client  Publisher
	prefix  string
	qos     byte
	timeout time.Duration
	log     logger.Logger

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
}

// NewMQTT wraps an existing client.
func NewMQTT(client Publisher, cfg MQTTConfig, l logger.Logger) *MQTT {
	if l == nil {
		l = logger.Nop()
	}
	prefix := strings.TrimRight(strings.TrimSpace(cfg.TopicPrefix), "/")
	if prefix == "" {
		prefix = "clutch"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	qos := cfg.QoS
	if qos == 0 || qos > 2 {
		qos = defaultQoS
	}
	return &MQTT{
		client:    client,
		prefix:    prefix,
		qos:       qos,
		timeout:   timeout,
		log:       l,
		published: make(map[string]uint64),
	}
}

// DialMQTT connects to cfg.Broker with auto-reconnect and returns the notifier.
func DialMQTT(ctx context.Context, cfg MQTTConfig, l logger.Logger) (*MQTT, error) {
	if l == nil {
		l = logger.Nop()
	}
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "clutch"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		l.Info(context.Background(), "mqtt connection established",
			logger.String("broker", broker), logger.String("client_id", clientID))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		l.Warn(context.Background(), "mqtt connection lost, will auto-reconnect",
			logger.String("broker", broker), logger.Error(err))
	}

	client := mqtt.NewClient(opts)
	l.Info(ctx, "connecting to mqtt broker", logger.String("broker", broker))
	if err := awaitConnect(ctx, client, defaultConnectTimeout); err != nil {
		return nil, fmt.Errorf("%s: %w", broker, err)
	}
	return NewMQTT(client, cfg, l), nil
}

type connector interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
}

// awaitConnect waits for the first connection. With connect retry enabled the
// client keeps dialing in the background, so every failure path disconnects it.
func awaitConnect(ctx context.Context, c connector, timeout time.Duration) error {
	token := c.Connect()
	select {
	case <-token.Done():
	case <-time.After(timeout):
		c.Disconnect(0)
		return ErrConnectTimeout
	case <-ctx.Done():
		c.Disconnect(0)
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		c.Disconnect(0)
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Name implements Named.
func (*MQTT) Name() string { return "mqtt" }

// Topic returns the topic a notification is published on.
func (m *MQTT) Topic(n model.Notification) string { //nolint:gocritic // hugeParam
	return m.prefix + "/sessions/" + n.SessionID + "/" + n.Type
}

// Notify implements Notifier.
func (m *MQTT) Notify(ctx context.Context, n model.Notification) error { //nolint:gocritic // hugeParam
	if !m.client.IsConnected() {
		m.fail()
		return ErrNotConnected
	}
	payload, err := json.Marshal(n)
	if err != nil {
		m.fail()
		return fmt.Errorf("marshal notification: %w", err)
	}
	topic := m.Topic(n)
	token := m.client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(m.timeout) {
		m.fail()
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		m.fail()
		return fmt.Errorf("publish failed: %w", err)
	}

	m.mu.Lock()
	m.published[n.Type]++
	m.mu.Unlock()
	m.log.Debug(ctx, "notification published",
		logger.String("topic", topic), logger.Int("size", len(payload)))
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}

// Stats returns publish statistics.
func (m *MQTT) Stats() MQTTStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	published := make(map[string]uint64, len(m.published))
	for k, v := range m.published {
		published[k] = v
	}
	return MQTTStats{Connected: m.client.IsConnected(), Published: published, Errors: m.errors}
}

func (m *MQTT) fail() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}
