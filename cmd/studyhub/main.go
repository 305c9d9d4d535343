package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/studyhub/internal/db"
	"github.com/dmitrymomot/studyhub/pkg/config"
	"github.com/dmitrymomot/studyhub/pkg/email"
	"github.com/dmitrymomot/studyhub/pkg/environment"
	"github.com/dmitrymomot/studyhub/pkg/httpserver"
	"github.com/dmitrymomot/studyhub/pkg/logger"
	"github.com/dmitrymomot/studyhub/pkg/pg"
	"github.com/dmitrymomot/studyhub/pkg/ratelimit"
	"github.com/dmitrymomot/studyhub/pkg/redis"
	"github.com/dmitrymomot/studyhub/pkg/requestid"
	"github.com/dmitrymomot/studyhub/pkg/subscription"
	"github.com/dmitrymomot/studyhub/pkg/subscription/stripe"
	"github.com/dmitrymomot/studyhub/svc/billing"
)

type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"studyhub"`

	RateLimitRulesPath     string        `env:"RATE_LIMIT_RULES"`
	RateLimitBackend       string        `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	RateLimitSweepInterval time.Duration `env:"RATE_LIMIT_SWEEP_INTERVAL" envDefault:"1m"`
	AnonymousIdentifier    string        `env:"RATE_LIMIT_ANONYMOUS_ID" envDefault:"anonymous"`
	TrustUserIDHeader      bool          `env:"RATE_LIMIT_TRUST_USER_HEADER" envDefault:"false"`

	BillingLocker          string        `env:"BILLING_LOCKER" envDefault:"redis"`
	LedgerRetention        time.Duration `env:"BILLING_LEDGER_RETENTION" envDefault:"720h"`
	LedgerPruneInterval    time.Duration `env:"BILLING_LEDGER_PRUNE_INTERVAL" envDefault:"1h"`
	BillingPortalURL       string        `env:"BILLING_PORTAL_URL"`
	StaleEventGuardEnabled bool          `env:"BILLING_STALE_EVENT_GUARD" envDefault:"true"`
}

func (c *appConfig) Validate() error {
	switch c.RateLimitBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be memory or redis, got %q", c.RateLimitBackend)
	}
	switch c.BillingLocker {
	case "memory", "redis":
	default:
		return fmt.Errorf("BILLING_LOCKER must be memory or redis, got %q", c.BillingLocker)
	}
	return nil
}

func (c *appConfig) needsRedis() bool {
	return c.RateLimitBackend == "redis" || c.BillingLocker == "redis"
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("studyhub stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	env := environment.Parse(cfg.Env)
	log := logger.New(
		logger.WithEnvironment(env, cfg.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	slog.SetDefault(log)

	var (
		httpCfg   httpserver.Config
		pgCfg     pg.Config
		stripeCfg stripe.Config
		emailCfg  email.Config
	)
	if err := errors.Join(
		config.Load(&httpCfg),
		config.Load(&pgCfg),
		config.Load(&stripeCfg),
		config.Load(&emailCfg),
	); err != nil {
		return err
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, db.Migrations, db.MigrationsDir, pgCfg, log); err != nil {
		return err
	}
	readiness := []func(context.Context) error{pg.Healthcheck(pool)}

	var redisClient *goredis.Client
	if cfg.needsRedis() {
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return err
		}
		redisClient, err = redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
		readiness = append(readiness, redis.Healthcheck(redisClient))
	}

	// Rate limiting.
	rules, err := ratelimit.LoadRules(cfg.RateLimitRulesPath)
	if err != nil {
		return err
	}
	var store ratelimit.Store
	if cfg.RateLimitBackend == "redis" {
		store = ratelimit.NewRedisStore(redisClient)
	} else {
		mem := ratelimit.NewMemoryStore(ratelimit.WithCleanupInterval(0))
		defer func() { _ = mem.Close() }()
		store = mem
	}
	limiter, err := ratelimit.New(store, rules,
		ratelimit.WithFallbackIdentifier(cfg.AnonymousIdentifier),
		ratelimit.WithLogger(log),
	)
	if err != nil {
		return err
	}

	// Billing.
	provider, err := stripe.NewProvider(stripeCfg)
	if err != nil {
		return err
	}
	sender, err := email.New(emailCfg)
	if err != nil {
		return err
	}
	billingStore := billing.NewPostgresStore(pool)

	var locker subscription.Locker = subscription.NewKeyedMutex()
	if cfg.BillingLocker == "redis" {
		locker = billing.NewRedisLocker(redisClient, billing.WithLockLogger(log))
	}

	reconciler := subscription.NewReconciler(billingStore, provider,
		subscription.WithLogger(log),
		subscription.WithLedger(billingStore),
		subscription.WithLocker(locker),
		subscription.WithNotifier(email.NewPaymentFailedNotifier(sender, cfg.BillingPortalURL, emailCfg.SupportEmail)),
		subscription.WithStaleEventGuard(cfg.StaleEventGuardEnabled),
	)

	router := newRouter(routerDeps{
		log:       log,
		limiter:   limiter,
		identify:  callerIdentifier(cfg.TrustUserIDHeader),
		webhook:   subscription.NewWebhookHandler(reconciler, log),
		readiness: readiness,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.New(httpCfg, httpserver.WithLogger(log)).Run(ctx, router)
	})
	g.Go(func() error {
		ratelimit.RunSweeper(ctx, store, cfg.RateLimitSweepInterval, log)
		return nil
	})
	g.Go(func() error {
		billing.RunLedgerPruner(ctx, billingStore, cfg.LedgerRetention, cfg.LedgerPruneInterval, log)
		return nil
	})

	log.InfoContext(ctx, "studyhub started",
		slog.String("rate_limit_backend", cfg.RateLimitBackend),
		slog.String("billing_locker", cfg.BillingLocker),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
