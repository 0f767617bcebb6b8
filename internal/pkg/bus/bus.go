// Package bus is the topic-exchange message consumer/publisher every
// long-running component (harvester, stream controller, exporter) is driven
// by. It is a direct port of sfmutils/consumer.py's BaseConsumer onto
// github.com/rabbitmq/amqp091-go - see DESIGN.md for why amqp091-go was
// chosen even though no example repo in the retrieval pack uses it.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gwu-libraries/sfm-go/internal/pkg/log"
)

// Exchange is the single topic exchange every message in the system flows
// through, matching sfmutils/consumer.py's EXCHANGE = "sfm_exchange".
const Exchange = "sfm_exchange"

// RoutingKeyWARCCreated is the fixed routing key every harvest publishes a
// warc_created notification under, regardless of platform/source.
const RoutingKeyWARCCreated = "warc_created"

// Delivery is the decoded envelope handed to a consumer's handler.
type Delivery struct {
	RoutingKey string
	Body       []byte
	delivery   amqp.Delivery
}

// Ack acknowledges the underlying AMQP delivery. The consumer's dispatch
// loop acks immediately on receipt (sfmutils' _callback does the same
// before calling on_message), so Ack is available for symmetry/tests but is
// not required for correctness of at-least-once delivery here.
func (d Delivery) Ack() error {
	return d.delivery.Ack(false)
}

// Consumer binds a durable queue to Exchange with a set of routing-key
// patterns and persists the last delivered message to disk so a crashed
// worker resumes instead of silently re-consuming or losing the in-flight
// message - the Go analogue of the "at most one unacked message in flight"
// discipline the harvester runtime depends on for resume-after-crash.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string

	persistPath string
	mu          sync.Mutex

	logger *log.FieldedLogger
}

// PersistedMessage is the on-disk shape written to <WorkingPath>/last_message.json,
// allowing a restarted worker to recover the message it was processing.
type PersistedMessage struct {
	RoutingKey string          `json:"routing_key"`
	Body       json.RawMessage `json:"body"`
}

// Dial connects to amqpURI, declares Exchange as a durable topic exchange,
// declares queue as durable, binds routingKeys, and sets prefetch=1 on both
// the channel and globally - mirroring consume()'s basic_qos(prefetch_count=1)
// calls on channel and all_channels. Failure of either Qos call fails Dial.
func Dial(amqpURI, queue string, routingKeys []string, persistPath string) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring queue %s: %w", queue, err)
	}

	for _, rk := range routingKeys {
		if err := ch.QueueBind(queue, rk, Exchange, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("binding %s to %s: %w", queue, rk, err)
		}
	}

	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting channel prefetch: %w", err)
	}
	if err := ch.Qos(1, 0, true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting global prefetch: %w", err)
	}

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       queue,
		persistPath: persistPath,
		logger:      log.NewFieldedLogger(&log.Fields{"component": "bus.consumer"}),
	}, nil
}

// Conn exposes the underlying AMQP connection so a Publisher can be opened
// on the same broker connection as this Consumer.
func (c *Consumer) Conn() *amqp.Connection {
	return c.conn
}

// DialPublisher opens a bare connection for publish-only use (no queue
// declarations), for processes that only ever send status/warc_created/
// export messages.
func DialPublisher(amqpURI string) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp broker: %w", err)
	}
	p, err := NewPublisher(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.ownsConn = true
	return p, nil
}

// Close tears down the channel and connection.
func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Resume reads a persisted message left behind by a previous crashed
// process, if any, so the caller can reprocess it before consuming fresh
// deliveries.
func (c *Consumer) Resume() (*Delivery, bool, error) {
	data, err := os.ReadFile(c.persistPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading persisted message: %w", err)
	}

	var pm PersistedMessage
	if err := json.Unmarshal(data, &pm); err != nil {
		return nil, false, fmt.Errorf("parsing persisted message: %w", err)
	}

	return &Delivery{RoutingKey: pm.RoutingKey, Body: pm.Body}, true, nil
}

// ClearPersisted removes the persisted message file, called once a message
// has been fully processed (all the way through the harvester's commit
// ordering).
func (c *Consumer) ClearPersisted() error {
	err := os.Remove(c.persistPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing persisted message: %w", err)
	}
	return nil
}

func (c *Consumer) persist(d Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pm := PersistedMessage{RoutingKey: d.RoutingKey, Body: d.Body}
	data, err := json.Marshal(pm)
	if err != nil {
		return fmt.Errorf("marshaling persisted message: %w", err)
	}
	return os.WriteFile(c.persistPath, data, 0644)
}

// Consume runs handler for every delivery until ctx is canceled. Each
// delivery is persisted to disk before the handler runs and acked
// immediately after receipt - mirroring _callback's ack-then-on_message
// ordering, under the assumption (documented in sfm-utils) that losing a
// message mid-processing is acceptable as long as the persisted copy allows
// a resume on the next start.
func (c *Consumer) Consume(ctx context.Context, handler func(Delivery) error) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("registering consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			msg := Delivery{RoutingKey: d.RoutingKey, Body: d.Body, delivery: d}

			if err := c.persist(msg); err != nil {
				c.logger.Error("failed to persist message", "err", err.Error())
			}

			if err := d.Ack(false); err != nil {
				c.logger.Error("failed to ack message", "err", err.Error())
			}

			if err := handler(msg); err != nil {
				c.logger.Error("handler returned error", "err", err.Error(), "routing_key", d.RoutingKey)
			}

			if err := c.ClearPersisted(); err != nil {
				c.logger.Error("failed to clear persisted message", "err", err.Error())
			}
		}
	}
}
