package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSource consumes readings published by the board's sensor daemons.
// Each source publishes its current fields as a JSON object to
// <prefix>/<source>, e.g. dpm/readings/relay_1 -> {"volts":12.1,"amps":0.4}.
// Sample returns a copy of the latest retained readings, so every tick sees
// one consistent snapshot regardless of messages arriving mid-tick.
type MQTTSource struct {
	client paho.Client
	prefix string
	logger *slog.Logger

	mu      sync.Mutex
	current Snapshot
}

// NewMQTTSource connects to the broker and subscribes to the readings
// topic tree.
func NewMQTTSource(broker, prefix, clientID string, logger *slog.Logger) (*MQTTSource, error) {
	s := &MQTTSource{
		prefix:  strings.TrimSuffix(prefix, "/"),
		logger:  logger,
		current: Snapshot{},
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c paho.Client) {
			token := c.Subscribe(s.prefix+"/#", 0, s.handle)
			if token.WaitTimeout(5*time.Second) && token.Error() != nil {
				logger.Error("sensor subscribe failed", "error", token.Error())
			}
		})

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("sensor broker connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to sensor broker: %w", err)
	}
	return s, nil
}

func (s *MQTTSource) handle(_ paho.Client, msg paho.Message) {
	source := strings.TrimPrefix(msg.Topic(), s.prefix+"/")
	if source == "" || strings.Contains(source, "/") {
		return
	}

	var fields Fields
	if err := json.Unmarshal(msg.Payload(), &fields); err != nil {
		s.logger.Warn("malformed reading dropped", "source", source, "error", err)
		return
	}

	s.mu.Lock()
	s.current[source] = fields
	s.mu.Unlock()
}

// Sample returns a copy of the most recent readings.
func (s *MQTTSource) Sample(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone(), nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() error {
	s.client.Disconnect(1000)
	return nil
}
