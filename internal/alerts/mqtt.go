package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pranav24547/Ai-Surveillance-System/internal/config"
	"github.com/pranav24547/Ai-Surveillance-System/internal/logger"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// MQTT publishes alerts as JSON to <topic>/<weapon class>.
type MQTT struct {
	counters
	cfg config.MQTTConfig

	mu     sync.RWMutex
	client mqtt.Client
}

func NewMQTT(cfg config.MQTTConfig) *MQTT {
	return &MQTT{cfg: cfg}
}

func (m *MQTT) Kind() string { return KindMQTT }

func (m *MQTT) Init() error {
	if !m.cfg.Enabled || m.cfg.Broker == "" || m.cfg.Topic == "" {
		m.setReady(false)
		return ErrNotConfigured
	}

	log := logger.Component("mqtt")

	broker := m.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(m.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	opts.OnConnect = func(mqtt.Client) {
		m.setReady(true)
		log.Info().Str("broker", broker).Msg("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.setReady(false)
		log.Warn().Err(err).Str("broker", broker).Msg("mqtt connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		client.Disconnect(0)
		m.setReady(false)
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		m.setReady(false)
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
	m.setReady(true)
	return nil
}

func (m *MQTT) Send(_ context.Context, alert models.Alert) error {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return m.record(fmt.Errorf("mqtt not connected"))
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return m.record(fmt.Errorf("marshal alert: %w", err))
	}

	topic := fmt.Sprintf("%s/%s", strings.TrimRight(m.cfg.Topic, "/"), alert.WeaponType)
	token := client.Publish(topic, m.cfg.QoS, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return m.record(fmt.Errorf("publish timeout"))
	}
	if err := token.Error(); err != nil {
		return m.record(fmt.Errorf("publish failed: %w", err))
	}
	return m.record(nil)
}

// Close disconnects with a 250ms grace period.
func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	m.client = nil
	m.setReady(false)
	return nil
}

func (m *MQTT) Status() ChannelStatus {
	return m.status(1, map[string]string{"broker": m.cfg.Broker, "topic": m.cfg.Topic})
}
