package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gwu-libraries/sfm-go/internal/pkg/bus"
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// Serve binds a queue for harvest.start.stream.* and consumes it, plus a
// second, hostname-suffixed queue bound to the corresponding stop routing
// keys - matching stream_consumer.py's StreamConsumer, which rewrites each
// start routing key's "start" segment to "stop" and suffixes the queue name
// with socket.gethostname() so stop messages fan out to every controller
// instance rather than being load-balanced to just one.
func Serve(ctx context.Context, amqpURI, baseQueue string, startRoutingKeys []string, c *Controller, persistDir string) error {
	host, _ := os.Hostname()
	stopQueue := strings.Join([]string{baseQueue, host}, "_")

	stopRoutingKeys := make([]string, 0, len(startRoutingKeys))
	for _, rk := range startRoutingKeys {
		stopRoutingKeys = append(stopRoutingKeys, strings.Replace(rk, ".start.", ".stop.", 1))
	}

	startConsumer, err := bus.Dial(amqpURI, baseQueue, startRoutingKeys, persistDir+"/last_message_start.json")
	if err != nil {
		return fmt.Errorf("dialing start consumer: %w", err)
	}
	defer startConsumer.Close()

	stopConsumer, err := bus.Dial(amqpURI, stopQueue, stopRoutingKeys, persistDir+"/last_message_stop.json")
	if err != nil {
		return fmt.Errorf("dialing stop consumer: %w", err)
	}
	defer stopConsumer.Close()

	errCh := make(chan error, 2)

	go func() {
		errCh <- startConsumer.Consume(ctx, func(d bus.Delivery) error {
			var req models.HarvestRequest
			if err := json.Unmarshal(d.Body, &req); err != nil {
				return fmt.Errorf("decoding start message: %w", err)
			}
			req.RoutingKey = d.RoutingKey
			if err := models.Validate(&req); err != nil {
				return fmt.Errorf("invalid start message: %w", err)
			}
			return c.Start(&req)
		})
	}()

	go func() {
		errCh <- stopConsumer.Consume(ctx, func(d bus.Delivery) error {
			var msg models.ControlMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				return fmt.Errorf("decoding stop message: %w", err)
			}
			if err := models.Validate(&msg); err != nil {
				return fmt.Errorf("invalid stop message: %w", err)
			}
			return c.Stop(ctx, msg.ID, 900*time.Second)
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
