package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

const (
	DefaultPrefix = "flair"

	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttKeepAlive      = 60 * time.Second
	mqttQuiesceMillis  = 1000
	mqttQoS            = 1

	statusOnline  = "online"
	statusOffline = "offline"
)

// ErrNotConnected is returned when publishing without a broker connection
var ErrNotConnected = errors.New("not connected to MQTT broker")

type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
}

// MQTT is a hub reached through an MQTT broker.  Node state is published as
// retained messages under <prefix>/nodes/<address>/, commands are received on
// <prefix>/nodes/<address>/cmd/<COMMAND>.
type MQTT struct {
	client pahomqtt.Client
	prefix string

	mu      sync.RWMutex
	handler CommandHandler
}

type driverPayload struct {
	Value float64   `json:"value"`
	UOM   nodes.UOM `json:"uom"`
}

type eventPayload struct {
	Command string `json:"command"`
}

// NewMQTT builds an MQTT hub.  Connect must be called before use.
func NewMQTT(cfg MQTTConfig) *MQTT {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "flair-bridge-" + uuid.New().String()[:8]
	}

	m := &MQTT{prefix: strings.TrimSuffix(cfg.Prefix, "/")}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetKeepAlive(mqttKeepAlive)

	// The broker announces us offline if the connection drops
	opts.SetWill(m.statusTopic(), statusOffline, mqttQoS, true)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		m.onConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logging.Logger(nil).WithError(err).Warn("Lost connection to MQTT broker")
	})

	m.client = pahomqtt.NewClient(opts)

	return m
}

// newMQTTWithClient wraps an existing client, for tests
func newMQTTWithClient(client pahomqtt.Client, prefix string) *MQTT {
	return &MQTT{client: client, prefix: prefix}
}

func (m *MQTT) Connect() error {
	token := m.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return errors.Errorf("connecting to MQTT broker: timeout after %v", mqttConnectTimeout)
	}

	return errors.Wrap(token.Error(), "connecting to MQTT broker")
}

// Close announces the bridge offline and disconnects
func (m *MQTT) Close() {
	if m.client.IsConnected() {
		token := m.client.Publish(m.statusTopic(), mqttQoS, true, statusOffline)
		token.WaitTimeout(mqttPublishTimeout)
	}

	m.client.Disconnect(mqttQuiesceMillis)
}

// runs on the initial connect and every reconnect
func (m *MQTT) onConnect() {
	log := logging.Logger(nil)
	log.Info("Connected to MQTT broker")

	m.client.Publish(m.statusTopic(), mqttQoS, true, statusOnline)

	if err := m.subscribe(); err != nil {
		log.WithError(err).Error("Cannot subscribe to command topics")
	}
}

// Listen delivers commands published to the command topics to handler
func (m *MQTT) Listen(handler CommandHandler) error {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()

	if !m.client.IsConnected() {
		// subscribed from onConnect
		return nil
	}

	return m.subscribe()
}

func (m *MQTT) subscribe() error {
	m.mu.RLock()
	handler := m.handler
	m.mu.RUnlock()

	if handler == nil {
		return nil
	}

	token := m.client.Subscribe(m.commandFilter(), mqttQoS, m.receive)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errors.Errorf("subscribing to %s: timeout", m.commandFilter())
	}

	return errors.Wrapf(token.Error(), "subscribing to %s", m.commandFilter())
}

func (m *MQTT) receive(_ pahomqtt.Client, msg pahomqtt.Message) {
	ctx := logging.WithTxnID(context.Background(), uuid.New().String())
	log := logging.Logger(ctx).WithField("topic", msg.Topic())

	addr, command, ok := m.parseCommandTopic(msg.Topic())
	if !ok {
		log.Warn("Ignoring message on unexpected topic")
		return
	}

	m.mu.RLock()
	handler := m.handler
	m.mu.RUnlock()

	value := strings.TrimSpace(string(msg.Payload()))
	log.WithFields(logrus.Fields{
		"address": addr,
		"command": command,
		"value":   value,
	}).Info("Received command")

	if err := handler(ctx, addr, command, value); err != nil {
		log.WithError(err).Warn("Command failed")
	}
}

func (m *MQTT) AddNode(ctx context.Context, info NodeInfo) error {
	return m.publishJSON(m.nodeTopic(info.Address, "info"), true, info)
}

func (m *MQTT) SetDriver(ctx context.Context, addr address.Address, driver string, value float64, uom nodes.UOM) error {
	return m.publishJSON(m.nodeTopic(addr, driver), true, driverPayload{Value: value, UOM: uom})
}

func (m *MQTT) ReportCommand(ctx context.Context, addr address.Address, command string) error {
	return m.publishJSON(m.nodeTopic(addr, "event"), false, eventPayload{Command: command})
}

func (m *MQTT) publishJSON(topic string, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding payload for %s", topic)
	}

	if !m.client.IsConnected() {
		return ErrNotConnected
	}

	token := m.client.Publish(topic, mqttQoS, retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errors.Errorf("publishing to %s: timeout after %v", topic, mqttPublishTimeout)
	}

	return errors.Wrapf(token.Error(), "publishing to %s", topic)
}

func (m *MQTT) statusTopic() string {
	return m.prefix + "/status"
}

func (m *MQTT) nodeTopic(addr address.Address, leaf string) string {
	return fmt.Sprintf("%s/nodes/%s/%s", m.prefix, addr, leaf)
}

func (m *MQTT) commandFilter() string {
	return m.prefix + "/nodes/+/cmd/+"
}

// <prefix>/nodes/<address>/cmd/<COMMAND>
func (m *MQTT) parseCommandTopic(topic string) (address.Address, string, bool) {
	rest := strings.TrimPrefix(topic, m.prefix+"/nodes/")
	if rest == topic {
		return "", "", false
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "cmd" || parts[0] == "" || parts[2] == "" {
		return "", "", false
	}

	return address.Address(parts[0]), strings.ToUpper(parts[2]), true
}
