package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/chaz8081/sipsmart/internal/telemetry"
)

// TopicPrefix roots every topic the mirror publishes to.
const TopicPrefix = "sipsmart/users"

// Publisher mirrors persisted data to a message broker.
type Publisher interface {
	PublishRecord(userID string, rec telemetry.Record) error
	PublishFields(userID string, fields map[string]any) error
	Close() error
}

// UserKey derives the topic segment for a user. Topics never carry the raw
// user id.
func UserKey(userID string) string {
	sum := blake2b.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:8])
}

// RecordTopic returns the topic records for userID are published to.
func RecordTopic(userID string) string {
	return fmt.Sprintf("%s/%s/records", TopicPrefix, UserKey(userID))
}

// FieldsTopic returns the retained topic holding the user's fields.
func FieldsTopic(userID string) string {
	return fmt.Sprintf("%s/%s/fields", TopicPrefix, UserKey(userID))
}

// RecordPayload is the JSON body of a record message.
type RecordPayload struct {
	ID string `json:"id"`
	telemetry.Record
}

// FormatRecordPayload encodes rec with a fresh message id.
func FormatRecordPayload(rec telemetry.Record) ([]byte, error) {
	return json.Marshal(RecordPayload{ID: uuid.NewString(), Record: rec})
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// MQTTPublisher publishes to a broker with paho.
type MQTTPublisher struct {
	client  paho.Client
	timeout time.Duration
}

// NewMQTTPublisher creates the client and waits up to o.Timeout for the
// first connection. Paho reconnects on its own afterwards.
func NewMQTTPublisher(ctx context.Context, o MQTTOptions) (*MQTTPublisher, error) {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second).
		SetConnectTimeout(o.Timeout).
		SetKeepAlive(30 * time.Second)
	if o.Username != "" {
		opts.SetUsername(o.Username).SetPassword(o.Password)
	}
	opts.SetOnConnectHandler(func(_ paho.Client) {
		slog.Info("[MQTT] connected", "broker", o.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("[MQTT] connection lost", "error", err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		if ctx.Err() != nil {
			client.Disconnect(250)
			return nil, fmt.Errorf("mqtt: connect to %s: %w", o.Broker, ctx.Err())
		}
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", o.Broker, err)
	}
	return &MQTTPublisher{client: client, timeout: o.Timeout}, nil
}

func (p *MQTTPublisher) PublishRecord(userID string, rec telemetry.Record) error {
	payload, err := FormatRecordPayload(rec)
	if err != nil {
		return fmt.Errorf("mqtt: format record: %w", err)
	}
	return p.publish(RecordTopic(userID), 1, false, payload)
}

func (p *MQTTPublisher) PublishFields(userID string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("mqtt: format fields: %w", err)
	}
	return p.publish(FieldsTopic(userID), 1, true, payload)
}

func (p *MQTTPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt: publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

var _ Publisher = (*MQTTPublisher)(nil)
