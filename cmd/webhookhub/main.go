package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/webhookhub/webhookhub/internal/app"
	"github.com/webhookhub/webhookhub/internal/config"
	"github.com/webhookhub/webhookhub/internal/pgstore"
	"github.com/webhookhub/webhookhub/internal/version"
)

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to a yaml or .env config file",
	}

	cmd := &cli.Command{
		Name:    "webhookhub",
		Usage:   "Webhook ingestion and delivery hub",
		Version: version.Version(),
		Flags:   []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the API server and delivery consumer",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := config.Parse(c.String("config"))
					if err != nil {
						return err
					}
					return app.New(cfg).Run(ctx)
				},
			},
			{
				Name:  "migrate",
				Usage: "Apply database migrations and exit",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := config.Parse(c.String("config"))
					if err != nil {
						return err
					}
					return pgstore.Migrate(cfg.Postgres.URL)
				},
			},
			{
				Name:  "seed",
				Usage: "Register a demo source, destination and routing rule",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Value: "demo-source", Usage: "source name"},
					&cli.StringFlag{Name: "destination", Value: "demo-destination", Usage: "destination name"},
					&cli.StringFlag{Name: "target-url", Value: "http://localhost:8080/webhook", Usage: "destination target URL"},
					&cli.StringFlag{Name: "event-type", Value: "demo.event", Usage: "event type to route"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := config.Parse(c.String("config"))
					if err != nil {
						return err
					}
					return app.Seed(ctx, cfg, app.SeedInput{
						SourceName:      c.String("source"),
						DestinationName: c.String("destination"),
						TargetURL:       c.String("target-url"),
						EventType:       c.String("event-type"),
					})
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return cli.ShowAppHelp(c)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
