package bus

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes status/warc_created/export messages onto Exchange,
// the counterpart of sfm-utils's pika-based `channel.basic_publish` calls
// scattered through harvester.py/exporter.py (e.g. _send_status_message).
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	ownsConn bool
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening publisher channel: %w", err)
	}
	return &Publisher{conn: conn, channel: ch}, nil
}

// Publish marshals body as JSON and publishes it to Exchange under
// routingKey, as a persistent message (delivery mode 2) so it survives a
// broker restart.
func (p *Publisher) Publish(routingKey string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling message body: %w", err)
	}

	return p.channel.Publish(Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp.Persistent,
	})
}

func (p *Publisher) Close() error {
	p.channel.Close()
	if p.ownsConn && p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
