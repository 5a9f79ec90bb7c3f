// Command sangamner-ai serves the Sangamner AI request router over HTTP, or
// its tools over MCP stdio.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/sangamner-ai/sai/config"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/db"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/ai"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness"
	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/tools"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/providers"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/mcpserver"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/metrics"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/server"
)

const searchTimeout = 30 * time.Second

func main() {
	mode := flag.String("mode", "serve", "Mode to run: 'serve' for the HTTP API, 'mcp' for the MCP stdio tool server")
	configPath := flag.String("config", "", "Path to the config file (default: search ./, ../, /etc/sangamner-ai)")
	flag.Parse()

	if *mode != "serve" && *mode != "mcp" {
		fmt.Fprintf(os.Stderr, "Error: invalid mode '%s'. Use 'serve' or 'mcp'.\n", *mode)
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*mode, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(mode, configPath string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	if file := loader.ConfigFileUsed(); file != "" {
		logger.Info().Str("config", file).Msg("configuration loaded")
		loader.Watch(func(updated *config.Config, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("ignoring invalid configuration change")
				return
			}
			zerolog.SetGlobalLevel(parseLevel(updated.Log.Level))
			logger.Info().Str("level", updated.Log.Level).Msg("log level reloaded")
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sqlDB *sql.DB
	if cfg.Database.Enabled {
		sqlDB, err = db.ConnectToDB(ctx, cfg.Database.Path, logger)
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		if err := db.Migrate(ctx, sqlDB, logger); err != nil {
			return err
		}
	}

	factory := harness.NewFactory(&cfg.Harness, sqlDB, logger)
	toolbox, err := newToolbox(ctx, cfg, factory.CreateCache(), logger)
	if err != nil {
		return err
	}

	if mode == "mcp" {
		s, err := mcpserver.New(toolbox.Unbound(), logger)
		if err != nil {
			return err
		}
		logger.Info().Msg("serving tools over MCP stdio")
		return mcpserver.ServeStdio(s)
	}
	return serve(ctx, cfg, factory, toolbox, sqlDB, logger)
}

func serve(ctx context.Context, cfg *config.Config, factory *harness.Factory, toolbox *tools.Toolbox, sqlDB *sql.DB, logger zerolog.Logger) error {
	provider, err := providers.NewProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	orchestrator, err := factory.CreateOrchestrator(provider)
	if err != nil {
		return err
	}

	policy := factory.CreatePolicy()
	policy.Temperature = cfg.Provider.Temperature
	if cfg.Provider.MaxTokens > 0 {
		policy.MaxNewTokens = cfg.Provider.MaxTokens
	}

	collector := metrics.NewCollector()
	serviceOpts := []ai.Option{ai.WithPolicy(policy), ai.WithMetrics(collector)}
	serverOpts := []server.Option{
		server.WithAllowOrigin(cfg.Server.AllowOrigin),
		server.WithMetrics(collector),
		server.WithHealthChecks(healthChecks(provider, toolbox, sqlDB)...),
	}
	if sqlDB != nil {
		store := factory.CreateStore()
		serviceOpts = append(serviceOpts, ai.WithTurnStore(store))
		serverOpts = append(serverOpts, server.WithTurnStore(store))
	}

	service, err := ai.NewService(orchestrator, toolbox, logger, serviceOpts...)
	if err != nil {
		return err
	}
	srv, err := server.New(service, logger, serverOpts...)
	if err != nil {
		return err
	}

	logger.Info().
		Str("provider", provider.Name()).
		Bool("live_mode_available", toolbox.SearchEnabled()).
		Bool("turn_log", sqlDB != nil).
		Msg("sangamner-ai ready")
	return srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
}

func newToolbox(ctx context.Context, cfg *config.Config, cache ports.Cache, logger zerolog.Logger) (*tools.Toolbox, error) {
	nearby := tools.NewNearbyClient(cfg.Nearby.Endpoint, cfg.Nearby.Timeout, logger,
		tools.WithCache(cache, cfg.Harness.CacheTTLSeconds),
		tools.WithRateLimit(cfg.Nearby.RatePerSecond, cfg.Nearby.Burst),
	)

	var search ports.Tool
	gemini, err := tools.NewGeminiSearch(ctx, cfg.SearchAPIKey(), cfg.Google.SearchModel, searchTimeout, logger)
	switch {
	case errors.Is(err, tools.ErrSearchUnavailable):
		logger.Warn().Msg("GOOGLE_API_KEY not set, live mode requests will fail")
	case err != nil:
		return nil, err
	default:
		search = gemini
	}
	return tools.NewToolbox(nearby, search, tools.NewClockTool()), nil
}

func healthChecks(provider ports.Provider, toolbox *tools.Toolbox, sqlDB *sql.DB) []server.HealthCheck {
	checks := []server.HealthCheck{{Name: "nearby", Check: toolbox.Nearby().Ping}}
	if pinger, ok := provider.(ports.Pinger); ok {
		checks = append(checks, server.HealthCheck{Name: "provider", Check: pinger.Ping})
	}
	if sqlDB != nil {
		checks = append(checks, server.HealthCheck{Name: "database", Check: sqlDB.PingContext})
	}
	return checks
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
