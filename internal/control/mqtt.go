package control

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/muexxl/batcontrol-go/internal/core"
)

// Topic layout for the MQTT control surface. Command topics are subscribed
// to; the status topic is published to on every StatusStore update.
const (
	topicStatus               = "batcontrol/status"
	topicSetMode              = "batcontrol/set/mode"
	topicSetDischargeBlocked  = "batcontrol/set/discharge_blocked"
	topicSetLimitPVChargeRate = "batcontrol/set/limit_pv_charge_rate"
)

// outgoingMessage mirrors the teacher's outgoing MQTT envelope.
type outgoingMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

type setModePayload struct {
	Mode             int `json:"mode"`
	ChargeRateW      int `json:"charge_rate_w"`
	LimitChargeRateW int `json:"limit_pv_charge_rate_w"`
}

// MQTTControlSurface bridges a Surface and a StatusStore onto an MQTT
// broker: incoming command-topic messages call into Surface, and every new
// status snapshot is published to topicStatus. Outgoing messages queue
// until a client is available, matching the teacher's sender-worker idiom.
type MQTTControlSurface struct {
	surface *Surface
	status  *StatusStore

	client mqtt.Client
	logger *log.Logger

	outgoing chan outgoingMessage
}

// NewMQTTControlSurface builds a bridge. Connect must be called separately
// once a broker URL and options are known.
func NewMQTTControlSurface(surface *Surface, status *StatusStore, logger *log.Logger) *MQTTControlSurface {
	if logger == nil {
		logger = log.Default()
	}
	return &MQTTControlSurface{
		surface:  surface,
		status:   status,
		logger:   logger,
		outgoing: make(chan outgoingMessage, 64),
	}
}

// Connect dials brokerURL, subscribes the command topics, and starts the
// sender worker and status-polling loop. Run until ctx is cancelled.
func (m *MQTTControlSurface) Connect(ctx context.Context, brokerURL, clientID string) error {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			m.logger.Printf("mqtt control surface connected to %s", brokerURL)
			m.subscribe(c)
		})

	m.client = mqtt.NewClient(opts)
	token := m.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}

	go m.senderWorker(ctx)
	go m.statusPoller(ctx)
	return nil
}

func (m *MQTTControlSurface) subscribe(c mqtt.Client) {
	c.Subscribe(topicSetMode, 1, m.handleSetMode)
	c.Subscribe(topicSetDischargeBlocked, 1, m.handleSetDischargeBlocked)
	c.Subscribe(topicSetLimitPVChargeRate, 1, m.handleSetLimitPVChargeRate)
}

func (m *MQTTControlSurface) handleSetMode(c mqtt.Client, msg mqtt.Message) {
	var payload setModePayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		m.logger.Printf("mqtt: invalid set/mode payload: %v", err)
		return
	}
	if err := m.surface.SetMode(context.Background(), core.ControlMode(payload.Mode), payload.ChargeRateW, payload.LimitChargeRateW); err != nil {
		m.logger.Printf("mqtt: set/mode rejected: %v", err)
	}
}

func (m *MQTTControlSurface) handleSetDischargeBlocked(c mqtt.Client, msg mqtt.Message) {
	blocked, err := strconv.ParseBool(string(msg.Payload()))
	if err != nil {
		m.logger.Printf("mqtt: invalid set/discharge_blocked payload: %v", err)
		return
	}
	m.surface.SetDischargeBlocked(context.Background(), blocked)
}

func (m *MQTTControlSurface) handleSetLimitPVChargeRate(c mqtt.Client, msg mqtt.Message) {
	watts, err := strconv.Atoi(string(msg.Payload()))
	if err != nil {
		m.logger.Printf("mqtt: invalid set/limit_pv_charge_rate payload: %v", err)
		return
	}
	if err := m.surface.SetLimitPVChargeRate(context.Background(), watts); err != nil {
		m.logger.Printf("mqtt: set/limit_pv_charge_rate rejected: %v", err)
	}
}

// statusPoller publishes a new status-topic message whenever StatusStore
// produces a snapshot newer than the last one sent.
func (m *MQTTControlSurface) statusPoller(ctx context.Context) {
	var lastPublished int64
	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, ok := m.status.Snapshot()
			if !ok {
				continue
			}
			ts := snapshot.Timestamp.UnixNano()
			if ts <= lastPublished {
				continue
			}
			lastPublished = ts

			payload, err := json.Marshal(snapshot)
			if err != nil {
				m.logger.Printf("mqtt: failed to marshal status snapshot: %v", err)
				continue
			}
			m.outgoing <- outgoingMessage{Topic: topicStatus, Payload: payload, QoS: 0, Retain: true}
		}
	}
}

func (m *MQTTControlSurface) senderWorker(ctx context.Context) {
	var queue []outgoingMessage

	for {
		select {
		case msg := <-m.outgoing:
			if m.client != nil && m.client.IsConnected() {
				token := m.client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
				token.Wait()
				if err := token.Error(); err != nil {
					m.logger.Printf("mqtt: failed to publish to %s: %v", msg.Topic, err)
				}
			} else {
				queue = append(queue, msg)
			}

		case <-ctx.Done():
			return
		}

		if m.client != nil && m.client.IsConnected() && len(queue) > 0 {
			for _, msg := range queue {
				token := m.client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
				token.Wait()
			}
			queue = nil
		}
	}
}

// Disconnect gracefully tears down the broker connection.
func (m *MQTTControlSurface) Disconnect() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}
