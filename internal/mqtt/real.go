package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
)

const (
	publishTimeout = 5 * time.Second
	outboxCapacity = 256
)

// RealPublisher publishes to an actual MQTT broker. While the broker is
// unreachable, transition and alert messages queue in a bounded outbox and
// replay on reconnect; system events are best-effort.
type RealPublisher struct {
	client paho.Client
	logger *slog.Logger

	mu     sync.Mutex
	queued *outbox
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, clientID string, logger *slog.Logger) (*RealPublisher, error) {
	p := &RealPublisher{
		logger: logger,
		queued: newOutbox(outboxCapacity),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			p.replay()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// replay drains the outbox after a (re)connect.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs, dropped := p.queued.drain()
	p.mu.Unlock()

	if dropped > 0 {
		p.logger.Warn("mqtt outbox overflowed while offline", "dropped", dropped)
	}
	for _, m := range msgs {
		token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			p.logger.Warn("mqtt replay failed", "topic", m.topic)
		}
	}
	if len(msgs) > 0 {
		p.logger.Info("mqtt outbox replayed", "messages", len(msgs))
	}
}

// publish sends or queues a message depending on connection state.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnected() {
		p.mu.Lock()
		p.queued.enqueue(queuedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		n := p.queued.len()
		p.mu.Unlock()
		return fmt.Errorf("broker offline, queued (%d pending)", n)
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishTransition sends a relay transition. QoS 0, not retained.
func (p *RealPublisher) PublishTransition(tr relay.Transition) error {
	payload, err := FormatTransitionPayload(tr)
	if err != nil {
		return fmt.Errorf("format transition payload: %w", err)
	}
	return p.publish(TopicTransitions, 0, false, payload)
}

// PublishAlert sends a task alert. QoS 1: alerts feed downstream
// notification delivery.
func (p *RealPublisher) PublishAlert(ev AlertEvent) error {
	payload, err := FormatAlertPayload(ev)
	if err != nil {
		return fmt.Errorf("format alert payload: %w", err)
	}
	return p.publish(TopicAlerts, 1, false, payload)
}

// PublishSystem sends a system lifecycle event. QoS 1.
func (p *RealPublisher) PublishSystem(ev SystemEvent) error {
	payload, err := FormatSystemPayload(ev)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(TopicSystem, 1, ev.Retained, payload)
}

// IsConnected reports the broker connection state.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
