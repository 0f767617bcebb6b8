// Command controller is the stream supervisor entrypoint: it consumes
// harvest.start.stream.*/harvest.stop.stream.* control messages and spawns
// one "harvester seed" child process per long-running stream harvest.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/gwu-libraries/sfm-go/internal/pkg/config"
	"github.com/gwu-libraries/sfm-go/internal/pkg/controller"
	"github.com/gwu-libraries/sfm-go/internal/pkg/log"
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

func main() {
	app := &cli.App{
		Name:  "controller",
		Usage: "supervise long-running stream harvest processes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a JSON config file"},
			&cli.StringFlag{Name: "amqp-uri", Required: true},
			&cli.StringFlag{Name: "queue", Value: "harvest_stream"},
			&cli.StringFlag{Name: "harvester-binary", Value: "harvester"},
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
		Action: func(c *cli.Context) error {
			log.Start()
			cfg := config.Get()

			specFunc := func(req *models.HarvestRequest) controller.ProcessSpec {
				seedFile := filepath.Join(cfg.WorkingPath, req.ID+".seed.json")
				data, _ := json.Marshal(req)
				_ = os.WriteFile(seedFile, data, 0644)

				return controller.ProcessSpec{
					Command: c.String("harvester-binary"),
					Args:    []string{"seed", "--seed-file", seedFile, "--amqp-uri", c.String("amqp-uri")},
				}
			}

			ctrl := controller.New(specFunc)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			err := controller.Serve(ctx, c.String("amqp-uri"), c.String("queue"), []string{"harvest.start.stream.*"}, ctrl, cfg.WorkingPath)
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("controller stopped: %w", err)
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
