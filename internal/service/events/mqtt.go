package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"agricam/internal/config"
	"agricam/internal/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

var errNotConnected = errors.New("mqtt not connected")

// MQTTPublisher publishes capture events to a broker topic with QoS 0.
type MQTTPublisher struct {
	broker   string
	topic    string
	clientID string
	logger   *logger.Logger

	Client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
}

func NewMQTTPublisher(cfg *config.Config, log *logger.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		broker:   brokerURL(cfg.MQTTBroker),
		topic:    cfg.MQTTTopic,
		clientID: cfg.MQTTClientID,
		logger:   log,
	}
}

// Connect starts the client. The client keeps retrying in the background, so
// a slow broker is logged and not treated as fatal.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.broker)
	opts.SetClientID(p.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		p.setConnected(true)
		p.logger.Info("MQTT connected to %s", p.broker)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warning("MQTT connection lost, reconnecting: %v", err)
	}

	p.Client = mqtt.NewClient(opts)
	p.logger.Info("Connecting to MQTT broker %s", p.broker)

	token := p.Client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		p.logger.Warning("MQTT broker %s not reachable yet, will keep retrying", p.broker)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}
	p.setConnected(true)
	return nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, payload []byte) error {
	if p.Client == nil || !p.isConnected() {
		return errNotConnected
	}

	token := p.Client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	return nil
}

// Disconnect closes the connection with a 250ms grace period.
func (p *MQTTPublisher) Disconnect() {
	if p.Client != nil && p.Client.IsConnected() {
		p.Client.Disconnect(250)
		p.logger.Info("MQTT disconnected")
	}
	p.setConnected(false)
}

func (p *MQTTPublisher) Published() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *MQTTPublisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// brokerURL accepts host:port or a full URL.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
