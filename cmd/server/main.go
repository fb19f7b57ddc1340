package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kasirpos/backend/internal/config"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/media"
	"kasirpos/backend/internal/sequence"
	"kasirpos/backend/internal/service"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/store/memory"
	pgstore "kasirpos/backend/internal/store/postgres"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kasirpos",
		Short:         "Point-of-sale backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newCounterCmd())
	return root
}

// backends is everything the service needs, opened from configuration.
type backends struct {
	repo     store.Repository
	invoices *sequence.Generator
	media    media.Store
	closers  []func() error
}

func (b *backends) Close(ctx context.Context) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn(ctx, "close failed", "error", err)
		}
	}
}

// openBackends picks postgres when DATABASE_URL is set and the seeded
// in-memory store otherwise. Invoices count in Redis when it is configured
// and reachable, else in the repository.
func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	log := logger.FromContext(ctx)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback: %w", err)
		}
		if err := pg.Migrate(connectCtx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		b.repo = pg
		b.closers = append(b.closers, pg.Close)
		log.Infow("repository ready", "driver", "postgres")
	} else {
		b.repo = memory.NewSeeded()
		log.Infow("repository ready", "driver", "memory")
	}

	var counter sequence.Counter = b.repo
	if cfg.RedisAddr != "" {
		redisCounter := sequence.NewRedisCounter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCounter.Ping(connectCtx); err != nil {
			log.Warnw("redis unavailable, counting invoices in the repository", "error", err)
			_ = redisCounter.Close()
		} else {
			counter = redisCounter
			b.closers = append(b.closers, redisCounter.Close)
			log.Infow("invoice counter ready", "driver", "redis")
		}
	}
	b.invoices = sequence.NewGenerator(counter, b.repo)

	mediaStore, err := media.New(cfg.Media)
	if err != nil {
		b.Close(ctx)
		return nil, fmt.Errorf("media store: %w", err)
	}
	b.media = mediaStore
	log.Infow("media store ready", "driver", cfg.Media.Driver)

	return b, nil
}

func newService(cfg config.Config, b *backends) *service.Service {
	return service.New(b.repo, b.invoices, b.media, service.Options{
		InvoiceFormat:  sequence.Format{Prefix: cfg.InvoicePrefix, Width: cfg.InvoiceWidth},
		StorageTimeout: cfg.StorageTimeout,
	})
}

// setup loads configuration and installs the process logger.
func setup(ctx context.Context) (context.Context, config.Config, error) {
	cfg := config.Load()
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		return ctx, cfg, fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	return logger.WithLogger(ctx, log), cfg, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.BootstrapAdminPass != "" && len(cfg.BootstrapAdminPass) < 8 {
		return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD must be at least 8 characters")
	}
	return nil
}
