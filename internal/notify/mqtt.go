package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/vehicle-recon/internal/models"
)

// eventsTopic is the ingress topic external producers publish domain events
// on. Subtopics identify the producer and are ignored here.
const eventsTopic = "recon/events/#"

// ConnectMQTT connects to the broker named by the MQTT_BROKER environment
// variable.
func ConnectMQTT() (mqtt.Client, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = "tcp://localhost:1883"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("vehicle-recon-server").
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout to %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}
	return client, nil
}

// MQTTPublisher adapts an MQTT client to the Publisher interface the
// outbound channels use.
type MQTTPublisher struct {
	Client mqtt.Client
}

// Publish sends a payload at QoS 1 and waits briefly for the ack.
func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.Client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish timeout on %s", topic)
	}
	return token.Error()
}

// SubscribeEvents feeds externally published domain events into the
// dispatcher. Malformed payloads are logged and dropped.
func SubscribeEvents(client mqtt.Client, dispatcher *Dispatcher) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var ev models.Event
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.WithError(err).WithField("topic", msg.Topic()).Error("Dropping malformed event")
			return
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = time.Now()
		}
		dispatcher.Publish(context.Background(), ev)
	}
	token := client.Subscribe(eventsTopic, 1, handler)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt subscribe timeout on %s", eventsTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe error: %w", err)
	}
	log.WithField("topic", eventsTopic).Info("Subscribed to external domain events")
	return nil
}
