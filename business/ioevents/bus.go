package ioevents

import (
	"log"
	"sync"

	"github.com/nats-io/nats.go"
)

// InboundMessage is one payload received on a subscribed topic, generalizing
// the message bus's three topic-level structures into a single shape the
// dispatcher layer consumes.
type InboundMessage struct {
	Topic   string
	Payload []byte
}

// MessageHandler processes one InboundMessage.
type MessageHandler func(InboundMessage)

// Bus subscribes to the inbound event topics over NATS, standing in for the
// IoM-style message bus transport the specification abstracts away (the
// wire MQTT broker itself is out of scope; NATS plays the same role inside
// this deployment). Grounded on the teacher's ChanQueueSubscribe + shutdown
// channel pattern.
type Bus struct {
	conn   *nats.Conn
	logger *log.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewBus wraps an already-connected NATS connection.
func NewBus(conn *nats.Conn, logger *log.Logger) *Bus {
	return &Bus{conn: conn, logger: logger}
}

// Subscribe starts delivering messages on subject (a NATS subject derived
// from a TopicLevelStructure with its wildcards translated to NATS tokens)
// to handler. One goroutine drains the channel and calls handler for each
// message in arrival order. The subscription is tracked for Close.
func (b *Bus) Subscribe(subject, queueGroup string, bufferSize int, handler MessageHandler) error {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	ch := make(chan *nats.Msg, bufferSize)

	var sub *nats.Subscription
	var err error
	if queueGroup != "" {
		sub, err = b.conn.ChanQueueSubscribe(subject, queueGroup, ch)
	} else {
		sub, err = b.conn.ChanSubscribe(subject, ch)
	}
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		for msg := range ch {
			handler(InboundMessage{Topic: msg.Subject, Payload: msg.Data})
		}
	}()
	return nil
}

// Publish sends payload on subject.
func (b *Bus) Publish(subject string, payload []byte) error {
	return b.conn.Publish(subject, payload)
}

// Close unsubscribes every tracked subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.IsValid() {
			if err := sub.Unsubscribe(); err != nil {
				b.logger.Printf("ioevents: unsubscribe failed: %s", err)
			}
		}
	}
}
