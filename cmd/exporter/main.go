// Command exporter is the thin entrypoint for the export consumer: either a
// long-running bus-driven service, or a one-shot run against a request file
// on disk - mirroring sfmutils/exporter.py's static main(cls) dispatcher.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/gwu-libraries/sfm-go/internal/pkg/bus"
	"github.com/gwu-libraries/sfm-go/internal/pkg/catalog"
	"github.com/gwu-libraries/sfm-go/internal/pkg/config"
	"github.com/gwu-libraries/sfm-go/internal/pkg/exporter"
	"github.com/gwu-libraries/sfm-go/internal/pkg/log"
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

func main() {
	app := &cli.App{
		Name:  "exporter",
		Usage: "export archived items to a tabular/line-oriented file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a JSON config file"},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("config"); path != "" {
				if err := config.InitFromFile(path); err != nil {
					return err
				}
			}
			log.ConfigureFrom(config.Get())
			return nil
		},
		Commands: []*cli.Command{
			serviceCommand(),
			fileCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fileCommand() *cli.Command {
	return &cli.Command{
		Name:  "file",
		Usage: "run a single export from a request JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "request-file", Required: true},
			&cli.StringFlag{Name: "amqp-uri", Required: true},
		},
		Action: func(c *cli.Context) error {
			log.Start()

			data, err := os.ReadFile(c.String("request-file"))
			if err != nil {
				return fmt.Errorf("reading request file: %w", err)
			}

			var req models.ExportRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("parsing request file: %w", err)
			}
			if err := models.Validate(&req); err != nil {
				return fmt.Errorf("invalid export request: %w", err)
			}

			publisher, err := bus.DialPublisher(c.String("amqp-uri"))
			if err != nil {
				return fmt.Errorf("connecting to bus: %w", err)
			}
			defer publisher.Close()

			cat := catalog.New(config.Get().CatalogBaseURL)
			return exporter.Export(&req, cat, publisher)
		},
	}
}

func serviceCommand() *cli.Command {
	return &cli.Command{
		Name:  "service",
		Usage: "consume export.start messages from the bus forever",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "amqp-uri", Required: true},
			&cli.StringFlag{Name: "queue", Value: "export"},
		},
		Action: func(c *cli.Context) error {
			log.Start()
			cfg := config.Get()

			consumer, err := bus.Dial(c.String("amqp-uri"), c.String("queue"), []string{"export.start.*"}, cfg.WorkingPath+"/last_message.json")
			if err != nil {
				return fmt.Errorf("connecting consumer: %w", err)
			}
			defer consumer.Close()

			publisher, err := bus.NewPublisher(consumer.Conn())
			if err != nil {
				return fmt.Errorf("opening publisher: %w", err)
			}
			defer publisher.Close()

			cat := catalog.New(cfg.CatalogBaseURL)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			return consumer.Consume(ctx, func(d bus.Delivery) error {
				var req models.ExportRequest
				if err := json.Unmarshal(d.Body, &req); err != nil {
					return fmt.Errorf("decoding export request: %w", err)
				}
				req.RoutingKey = d.RoutingKey
				if err := models.Validate(&req); err != nil {
					return fmt.Errorf("invalid export request: %w", err)
				}
				return exporter.Export(&req, cat, publisher)
			})
		},
	}
}
