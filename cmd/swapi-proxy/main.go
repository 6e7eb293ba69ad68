// Command swapi-proxy serves aggregated SWAPI people and planets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/Sternrassler/swapi-aggregator/internal/config"
	"github.com/Sternrassler/swapi-aggregator/internal/server"
	"github.com/Sternrassler/swapi-aggregator/pkg/client"
	"github.com/Sternrassler/swapi-aggregator/pkg/health"
	"github.com/Sternrassler/swapi-aggregator/pkg/logging"
	"github.com/Sternrassler/swapi-aggregator/pkg/pagination"
	"github.com/Sternrassler/swapi-aggregator/pkg/resolve"
	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "swapi-proxy",
		Short: "Serve aggregated SWAPI people and planets",
		Long: `swapi-proxy fetches every page of the SWAPI people and planets collections
concurrently and serves them as single JSON arrays.

  GET /people?sortBy=name|height|mass
  GET /planets   (resident URLs replaced by names)`,
		Example:       "  swapi-proxy --port 3000 --redis-url redis://localhost:6379/0",
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), cfgPath)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			logging.Setup(cfg.LoggingConfig())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg); err != nil {
				log.Error().Err(err).Msg("Server failed")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a config file (toml, yaml or json)")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	srv, cleanup, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info().
		Str("upstream", cfg.UpstreamURL).
		Str("user_agent", cfg.UserAgent).
		Dur("request_timeout", cfg.RequestTimeout).
		Bool("status_tracking", cfg.RedisURL != "").
		Msg("Starting SWAPI aggregator")

	return srv.Run(ctx)
}

// build wires the upstream client, the aggregation pipeline and the optional
// Redis status tracker into a server. cleanup releases the Redis client.
func build(ctx context.Context, cfg config.Config) (*server.Server, func(), error) {
	cleanup := func() {}

	upstream, err := client.New(client.Config{
		UserAgent:      cfg.UserAgent,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("create upstream client: %w", err)
	}

	peopleURL, err := swapi.SeedURL(cfg.UpstreamURL, swapi.People)
	if err != nil {
		return nil, cleanup, err
	}
	planetsURL, err := swapi.SeedURL(cfg.UpstreamURL, swapi.Planets)
	if err != nil {
		return nil, cleanup, err
	}

	var tracker server.StatusTracker
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return nil, cleanup, err
	}
	if redisOpts != nil {
		redisClient := redis.NewClient(redisOpts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			redisClient.Close()
			return nil, cleanup, fmt.Errorf("connect to redis at %s: %w", redisOpts.Addr, err)
		}
		log.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")

		tracker = health.NewTracker(redisClient, logging.NewLogger("status-tracker"))
		cleanup = func() { redisClient.Close() }
	}

	srv := server.New(server.Config{
		Port:            cfg.Port,
		PeopleURL:       peopleURL,
		PlanetsURL:      planetsURL,
		ShutdownTimeout: cfg.ShutdownTimeout,
	},
		pagination.NewFetcher(upstream, pagination.DefaultConfig()),
		resolve.NewResolver(upstream, resolve.Residents),
		tracker,
	)

	return srv, cleanup, nil
}
