package ioevents

import (
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DifferentialTopicTemplate is the default outbound publish topic template
// (§6); {dataType} is "vehicle-positions" or "trip-updates" and
// {vehicleId} is the vehicle_ref the differential payload concerns.
const DifferentialTopicTemplate = "gtfsrt/{dataType}/{vehicleId}"

// DifferentialPublisher publishes differential GTFS-Realtime payloads over
// MQTT at QoS 0, the one external interface that genuinely requires MQTT
// (§6) even though the inbound bus is carried over NATS in this deployment.
type DifferentialPublisher struct {
	client        mqtt.Client
	topicTemplate string
	logger        *log.Logger
}

// NewDifferentialPublisher connects to an MQTT broker at brokerURL
// (e.g. "tcp://broker:1883") and returns a DifferentialPublisher using
// topicTemplate (DifferentialTopicTemplate if empty).
func NewDifferentialPublisher(brokerURL, clientId, username, password, topicTemplate string, logger *log.Logger) (*DifferentialPublisher, error) {
	if topicTemplate == "" {
		topicTemplate = DifferentialTopicTemplate
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientId).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("ioevents: connect to mqtt broker: %w", err)
		}
		return nil, fmt.Errorf("ioevents: timed out connecting to mqtt broker at %s", brokerURL)
	}

	return &DifferentialPublisher{client: client, topicTemplate: topicTemplate, logger: logger}, nil
}

// Publish sends payload (a serialized differential FeedMessage) for
// vehicleId under dataType at QoS 0, non-retained.
func (p *DifferentialPublisher) Publish(dataType, vehicleId string, payload []byte) error {
	topic := p.topicTemplate
	topic = strings.ReplaceAll(topic, "{dataType}", dataType)
	topic = strings.ReplaceAll(topic, "{vehicleId}", vehicleId)

	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("ioevents: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("ioevents: publish to %s: %w", topic, err)
	}
	p.logger.Printf("ioevents: published differential %s update for vehicle %s", dataType, vehicleId)
	return nil
}

// Close disconnects from the broker, waiting up to 250ms to flush.
func (p *DifferentialPublisher) Close() {
	p.client.Disconnect(250)
}
