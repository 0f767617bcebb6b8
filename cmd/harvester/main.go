// Command harvester is the thin entrypoint dispatching to either the
// long-running bus-driven service (one process per long-running stream,
// spawned by the controller) or a one-shot run against a seed file on disk -
// mirroring sfmutils/harvester.py's static main(cls) argparse dispatcher,
// built here on the teacher's CLI library instead of argparse.
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
	"github.com/gwu-libraries/sfm-go/internal/pkg/config"
	"github.com/gwu-libraries/sfm-go/internal/pkg/harvester"
	"github.com/gwu-libraries/sfm-go/internal/pkg/log"
	"github.com/gwu-libraries/sfm-go/pkg/models"
	"github.com/gwu-libraries/sfm-go/pkg/testharvester"
)

func main() {
	app := &cli.App{
		Name:  "harvester",
		Usage: "run a social-media harvest worker",
		Commands: []*cli.Command{
			seedCommand(),
		},
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
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// seedCommand runs exactly one harvest request read from a JSON file, the
// shape the stream controller execs per child process.
func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "run a single harvest from a seed JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "seed-file", Required: true},
			&cli.StringFlag{Name: "amqp-uri", Required: true},
		},
		Action: func(c *cli.Context) error {
			log.Start()

			data, err := os.ReadFile(c.String("seed-file"))
			if err != nil {
				return fmt.Errorf("reading seed file: %w", err)
			}

			var req models.HarvestRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("parsing seed file: %w", err)
			}
			if err := models.Validate(&req); err != nil {
				return fmt.Errorf("invalid harvest request: %w", err)
			}

			publisher, err := bus.DialPublisher(c.String("amqp-uri"))
			if err != nil {
				return fmt.Errorf("connecting to bus: %w", err)
			}
			defer publisher.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			return harvester.Run(ctx, &req, testharvester.Harvester{}, publisher)
		},
	}
}
