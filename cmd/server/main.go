// Package main is the entry point for the emailer API server.
//
// It loads the configuration, opens the Postgres pool, wires the object store,
// the event bus and the emailer plugin, and serves the HTTP API until SIGINT
// or SIGTERM.
//
// Delivery mode follows MAIL_QUEUE_URL: when set, committed messages are
// published to SQS and sent by the queue worker; otherwise they go straight
// to the configured mail provider.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"emailer/internal/api/handlers"
	"emailer/internal/config"
	"emailer/internal/core"
	"emailer/internal/db"
	"emailer/internal/emailer"
	"emailer/internal/events"
	"emailer/internal/external"
	"emailer/internal/hooks"
	notifcore "emailer/internal/notifications/core"
	"emailer/internal/notifications/email"
	"emailer/internal/types"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if !cfg.Database.URL.IsSet() {
		return fmt.Errorf("DATABASE_URL is required")
	}

	logger := newLogger(cfg.LogLevel)
	typedLogger := &slogAdapter{logger: logger}
	logger.Info("emailer API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"queued_delivery", cfg.QueueEnabled(),
	)

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	var awsCfg aws.Config
	needsAWS := cfg.QueueEnabled() || cfg.Observability.EnableMetrics || cfg.Mail.Provider == config.ProviderSES
	if needsAWS {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
	}

	var metrics *notifcore.CloudWatchDeliveryMetrics
	if cfg.Observability.EnableMetrics {
		cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		metrics = notifcore.NewCloudWatchDeliveryMetrics(cw, cfg.Observability.MetricNamespace, typedLogger)
	}

	regOpts := []external.RegistryOption{}
	if needsAWS {
		regOpts = append(regOpts, external.WithAWSConfig(awsCfg))
	}
	registry, err := external.NewClientRegistry(ctx, cfg, typedLogger, regOpts...)
	if err != nil {
		return fmt.Errorf("creating mail provider: %w", err)
	}

	var publisher notifcore.Publisher
	if cfg.QueueEnabled() {
		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		publisher = notifcore.NewMessagePublisher(sqsClient, cfg.AWS.MailQueueURL, typedLogger)
	}

	var deliveryMetrics notifcore.DeliveryMetrics = notifcore.NopMetrics{}
	if metrics != nil {
		deliveryMetrics = metrics
	}

	dispatcher := email.NewDispatcher(email.DispatcherConfig{
		Provider:      registry.Email,
		Publisher:     publisher,
		Metrics:       deliveryMetrics,
		DefaultSender: cfg.Mail.DefaultSender,
		Logger:        typedLogger,
	})

	bus := events.NewBus(typedLogger)
	plugin := emailer.New(emailer.Config{
		Engine:   hooks.NewEngine(email.NewRenderer()),
		Mailer:   dispatcher,
		UseQueue: cfg.QueueEnabled(),
		Metrics:  deliveryMetrics,
		Logger:   typedLogger,
		DocsURL:  cfg.Emailer.ProjectDocs,
	})
	plugin.Register(bus)

	store := db.NewStore(db.PoolBeginner{Pool: pool}, bus, typedLogger)

	settings, err := cfg.TemplateSettings()
	if err != nil {
		return fmt.Errorf("template settings: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if metrics != nil {
		srv.Metrics = metrics
	}
	if cfg.Security.AdminPasswordHash.IsSet() {
		srv.Authenticator = core.BcryptAuthenticator{
			User:         cfg.Security.AdminUser,
			PasswordHash: cfg.Security.AdminPasswordHash,
		}
	} else {
		logger.Warn("ADMIN_PASSWORD_HASH not set, API authentication disabled")
	}
	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
		ProbeName: "database",
		Fn:        pool.Ping,
	})

	root := handlers.NewRootHandler(cfg.Server.RootURL, settings, map[string]any{
		emailer.CapabilityName: plugin.Capability(),
	})
	resources := handlers.NewResourceHandler(store, srv.Validator, handlers.ResourceConfig{
		RootURL:          cfg.Server.RootURL,
		Settings:         settings,
		MaxBatchRequests: cfg.Server.MaxBatchRequests,
	}, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		root.RegisterRoutes,
		resources.RegisterRoutes,
	)
	srv.MountRoutes()

	return serve(ctx, srv, cfg, logger)
}

func newPool(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = int32(dbCfg.MaxConns)
	poolCfg.MinConns = int32(dbCfg.MinConns)
	poolCfg.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = dbCfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests.
func serve(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger for the given level name.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// slogAdapter wraps *slog.Logger to implement types.Logger, whose With
// returns types.Logger rather than *slog.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var (
	_ types.Logger          = (*slogAdapter)(nil)
	_ core.MetricsCollector = (*notifcore.CloudWatchDeliveryMetrics)(nil)
)
