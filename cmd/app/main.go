package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/incidents/internal/app"
)

func main() {
	dbPathFlag := &cli.StringFlag{
		Name:    "db-path",
		Value:   "./incidents.sqlite",
		Sources: cli.EnvVars("INCIDENTS_DB_PATH"),
		Usage:   "SQLite file path",
	}

	cmd := &cli.Command{
		Name:  "incidents",
		Usage: "Incident tracking API with audited partial updates",
		Flags: []cli.Flag{
			dbPathFlag,
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("INCIDENTS_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.BoolFlag{
				Name:    "sql-debug",
				Sources: cli.EnvVars("INCIDENTS_SQL_DEBUG"),
				Usage:   "Log every SQL statement",
			},
			&cli.BoolFlag{
				Name:    "require-api-key",
				Value:   true,
				Sources: cli.EnvVars("INCIDENTS_REQUIRE_API_KEY"),
				Usage:   "Require X-API-Key or bearer token on /v1 routes",
			},
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("INCIDENTS_BOOTSTRAP_API_KEY"),
				Usage:   "Optional API key to upsert at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-key-name",
				Value:   "bootstrap",
				Sources: cli.EnvVars("INCIDENTS_BOOTSTRAP_KEY_NAME"),
				Usage:   "Name (and audit actor) for the bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("INCIDENTS_WEBHOOK_URL"),
				Usage:   "Outbox event webhook target URL",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("INCIDENTS_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
			&cli.DurationFlag{
				Name:    "webhook-timeout",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("INCIDENTS_WEBHOOK_TIMEOUT"),
				Usage:   "Timeout for a single webhook delivery",
			},
			&cli.DurationFlag{
				Name:    "dispatch-interval",
				Value:   2 * time.Second,
				Sources: cli.EnvVars("INCIDENTS_DISPATCH_INTERVAL"),
				Usage:   "How often pending outbox events are delivered",
			},
			&cli.IntFlag{
				Name:    "dispatch-batch",
				Value:   50,
				Sources: cli.EnvVars("INCIDENTS_DISPATCH_BATCH"),
				Usage:   "Maximum outbox events delivered per tick",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP API (default)",
				Action: func(ctx context.Context, c *cli.Command) error {
					return serve(ctx, c.Root())
				},
			},
			{
				Name:  "migrate",
				Usage: "Apply pending schema migrations and exit",
				Action: func(ctx context.Context, c *cli.Command) error {
					db, version, err := app.OpenDB(ctx, c.Root().String("db-path"), c.Root().Bool("sql-debug"))
					if err != nil {
						return err
					}
					defer db.Close()
					log.Printf("schema at version %d", version)
					return nil
				},
			},
			{
				Name:  "create-api-key",
				Usage: "Register an API key and print its token; earlier keys with the same name are revoked",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Required: true,
						Usage:    "Key name, recorded as the actor on audited changes",
					},
					&cli.StringFlag{
						Name:  "token",
						Usage: "Token to register; a random one is generated when empty",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					token, err := app.CreateAPIKey(ctx, c.Root().String("db-path"), c.String("name"), c.String("token"))
					if err != nil {
						return err
					}
					fmt.Println(token)
					return nil
				},
			},
			{
				Name:  "revoke-api-key",
				Usage: "Deactivate every API key registered under a name",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Required: true,
						Usage:    "Key name to revoke",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					n, err := app.RevokeAPIKeys(ctx, c.Root().String("db-path"), c.String("name"))
					if err != nil {
						return err
					}
					log.Printf("revoked %d key(s) for %q", n, c.String("name"))
					return nil
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func serve(ctx context.Context, c *cli.Command) error {
	cfg := app.Config{
		Addr:             c.String("addr"),
		DBPath:           c.String("db-path"),
		SQLDebug:         c.Bool("sql-debug"),
		RequireAPIKey:    c.Bool("require-api-key"),
		BootstrapAPIKey:  c.String("bootstrap-api-key"),
		BootstrapKeyName: c.String("bootstrap-key-name"),
		WebhookURL:       c.String("webhook-url"),
		WebhookSecret:    c.String("webhook-secret"),
		WebhookTimeout:   c.Duration("webhook-timeout"),
		DispatchInterval: c.Duration("dispatch-interval"),
		DispatchBatch:    int(c.Int("dispatch-batch")),
	}

	server, closer, err := app.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			log.Printf("close resources: %v", closeErr)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case sig := <-sigCh:
		log.Printf("received signal %s", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
