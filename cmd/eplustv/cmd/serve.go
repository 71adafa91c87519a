package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leduong/EPlusTV/internal/catalog"
	"github.com/leduong/EPlusTV/internal/config"
	"github.com/leduong/EPlusTV/internal/credentials"
	"github.com/leduong/EPlusTV/internal/database"
	internalhttp "github.com/leduong/EPlusTV/internal/http"
	"github.com/leduong/EPlusTV/internal/http/handlers"
	"github.com/leduong/EPlusTV/internal/observability"
	"github.com/leduong/EPlusTV/internal/output"
	"github.com/leduong/EPlusTV/internal/provider"
	"github.com/leduong/EPlusTV/internal/provider/espnplus"
	"github.com/leduong/EPlusTV/internal/provider/mlbtv"
	"github.com/leduong/EPlusTV/internal/remote"
	"github.com/leduong/EPlusTV/internal/repository"
	"github.com/leduong/EPlusTV/internal/scheduler"
	"github.com/leduong/EPlusTV/internal/tuner"
	"github.com/leduong/EPlusTV/internal/version"
	"github.com/leduong/EPlusTV/pkg/httpclient"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tuner",
	Long: `Start the eplustv tuner.

The server provides:
- HLS channels at /channels/{n}.m3u8
- M3U lineups and XMLTV guides for media servers
- Admin API under /api/v1, health at /health, metrics at /metrics
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8000, "Port to listen on")
	serveCmd.Flags().String("base-url", "", "Public URL players use to reach the tuner")
	serveCmd.Flags().String("database-dsn", "", "Local database DSN")
	serveCmd.Flags().String("tls-cert", "", "TLS certificate file")
	serveCmd.Flags().String("tls-key", "", "TLS private key file")
}

// applyServeFlags overrides config with explicitly set flags.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("base-url") {
		cfg.Server.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("database-dsn") {
		cfg.Database.DSN, _ = flags.GetString("database-dsn")
	}
	if flags.Changed("tls-cert") {
		cfg.Server.TLSCertFile, _ = flags.GetString("tls-cert")
	}
	if flags.Changed("tls-key") {
		cfg.Server.TLSKeyFile, _ = flags.GetString("tls-key")
	}
}

// newHTTPClient builds the shared upstream client from relay settings.
func newHTTPClient(cfg *config.Config, logger *slog.Logger) *httpclient.Client {
	hc := httpclient.DefaultConfig()
	hc.Timeout = cfg.Relay.UpstreamTimeout
	hc.CircuitThreshold = cfg.Relay.CircuitBreakerThreshold
	hc.CircuitTimeout = cfg.Relay.CircuitBreakerTimeout
	hc.UserAgent = version.UserAgent()
	hc.EnableCookies = true
	hc.Logger = logger
	return httpclient.New(hc)
}

// registerProviders adds the adapters named in providers.enabled.
func registerProviders(registry *provider.Registry, enabled []string, client *httpclient.Client, creds credentials.Store, listings remote.Store, logger *slog.Logger) error {
	for _, name := range enabled {
		switch name {
		case "espnplus", espnplus.Key:
			registry.Register(espnplus.New(client, creds, listings, logger))
		case mlbtv.Key:
			registry.Register(mlbtv.New(client, creds, listings, logger))
		default:
			return fmt.Errorf("unknown provider %q in providers.enabled", name)
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	entryRepo := repository.NewEntryRepository(db.DB)
	stateRepo := repository.NewProviderStateRepository(db.DB)
	settingsRepo := repository.NewScheduleSettingsRepository(db.DB)
	runRepo := repository.NewScheduleRunRepository(db.DB)

	client := newHTTPClient(cfg, logger)

	store, err := remote.New(ctx, cfg.Remote, client)
	if err != nil {
		return fmt.Errorf("opening remote store: %w", err)
	}
	defer store.Close()

	creds := credentials.NewMirroredStore(store, stateRepo, logger)

	providers := provider.NewRegistry(cfg.Providers.RateLimit, cfg.Providers.RateBurst)
	if err := registerProviders(providers, cfg.Providers.Enabled, client, creds, store, logger); err != nil {
		return err
	}
	supervisor := provider.NewSupervisor(providers, cfg.Providers.RefreshInterval).WithLogger(logger)

	cat := catalog.New(entryRepo, providers, cfg.Ingestion.ProviderTimeout).WithLogger(logger)
	schedule := scheduler.NewService(entryRepo, settingsRepo, runRepo, cat, cfg.Scheduling).WithLogger(logger)
	runner := scheduler.NewRunner(schedule).
		WithLogger(logger).
		WithConfig(scheduler.RunnerConfig{
			Interval:    cfg.Ingestion.Interval,
			RunOnStart:  cfg.Ingestion.RunOnStart,
			PassTimeout: scheduler.DefaultRunnerConfig().PassTimeout,
		})

	sessions := tuner.NewRegistry(entryRepo, providers, client).
		WithLogger(logger).
		WithConfig(tuner.RegistryConfig{
			IdleTimeout:   cfg.Relay.IdleTimeout,
			ReapInterval:  cfg.Relay.ReapInterval,
			LaunchTimeout: tuner.DefaultRegistryConfig().LaunchTimeout,
		})

	renderer := output.NewRenderer(entryRepo, schedule)

	serverConfig := internalhttp.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	serverConfig.TLSCertFile = cfg.Server.TLSCertFile
	serverConfig.TLSKeyFile = cfg.Server.TLSKeyFile
	serverConfig.CORSOrigins = cfg.Server.CORSOrigins
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	handlers.NewTunerHandler(sessions, cfg.Server.BaseURL).RegisterChiRoutes(server.Router())
	handlers.NewPlaylistHandler(renderer, cfg.Server.BaseURL).RegisterChiRoutes(server.Router())
	handlers.NewHealthHandler(version.Version).WithDB(db.DB).WithSessions(sessions).WithUpstream(client).Register(server.API())
	handlers.NewScheduleHandler(schedule).Register(server.API())
	handlers.NewEntryHandler(entryRepo).Register(server.API())
	handlers.NewSessionHandler(sessions).Register(server.API())
	handlers.NewProviderHandler(providers, supervisor).Register(server.API())

	// credentials must be usable before the first pass resolves anything
	if err := supervisor.Start(ctx); err != nil {
		return err
	}
	defer supervisor.Stop()

	if err := sessions.Start(ctx); err != nil {
		return err
	}
	defer sessions.Stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(ctx)
	}()

	if err := runner.Start(ctx); err != nil {
		stop()
		<-serveErr
		return err
	}
	defer runner.Stop()

	logger.Info("eplustv started",
		slog.String("address", cfg.Server.Address()),
		slog.String("version", version.Version),
		slog.Any("providers", providers.Keys()),
		slog.Int("start_channel", cfg.Scheduling.StartChannel),
		slog.Int("num_channels", cfg.Scheduling.NumChannels),
	)

	err = <-serveErr
	if err != nil {
		observability.WithError(logger, err).Error("server stopped")
	}
	return err
}
