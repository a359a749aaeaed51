package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/studyforge/internal/config"
	"github.com/jonathan/studyforge/internal/db"
	"github.com/jonathan/studyforge/internal/extraction"
	"github.com/jonathan/studyforge/internal/idempotency"
	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/logger"
	"github.com/jonathan/studyforge/internal/observability"
	"github.com/jonathan/studyforge/internal/server"
	"github.com/jonathan/studyforge/internal/server/ratelimit"
)

// extractionLease bounds both the Redis lock and the stored claim of one
// extraction run.
const extractionLease = 5 * time.Minute

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes course, assessment and extraction endpoints. Pending migrations are applied first.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("an API key is required for provider %s (set GEMINI_API_KEY or ANTHROPIC_API_KEY)", cfg.Provider)
	}
	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, log, observability.TracingConfig{
		ServiceName: "studyforge",
		Version:     version,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    true,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	applied, err := database.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		log.Info("applied migrations", "migrations", applied)
	}

	var locker idempotency.Locker = idempotency.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		rdb, err := idempotency.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = idempotency.NewRedisLocker(rdb, extractionLease)
		log.Info("using redis extraction locks", "redis_addr", cfg.RedisAddr)
	}

	client, err := llm.NewClient(ctx, cfg.LLM(), cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	defer client.Close()

	engine := extraction.NewEngine(extraction.Deps{
		Store:       database,
		Locker:      locker,
		Courses:     database,
		Questions:   database,
		Assessments: database,
		Plans:       database,
		Retry:       cfg.RetryPolicy(),
		MaxTokens:   cfg.MaxTokens,
		ClaimLease:  extractionLease,
		Log:         log,
	})

	var limiter *ratelimit.Limiter
	if rl := ratelimit.LoadConfig(); rl.Enabled {
		limiter = ratelimit.NewLimiter(rl)
		defer limiter.Stop()
	}

	srv := server.New(server.Options{
		Port:    cfg.Port,
		Store:   database,
		Engine:  engine,
		Model:   client,
		JWT:     server.NewJWTService(jwtCfg),
		Limiter: limiter,
		Log:     log,
		Ping:    database.Ping,
	})

	log.Info("starting server", "addr", cfg.Addr(), "provider", cfg.Provider, "version", version)
	return srv.Start(ctx)
}
