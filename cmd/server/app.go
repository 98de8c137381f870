package main

import (
	"context"
	"errors"
	"fmt"

	"rewardledger/internal/clock"
	"rewardledger/internal/config"
	"rewardledger/internal/infrastructure/cache"
	"rewardledger/internal/infrastructure/database"
	"rewardledger/internal/infrastructure/lock"
	"rewardledger/internal/infrastructure/mq"
	"rewardledger/internal/logging"
	"rewardledger/internal/repository"
	"rewardledger/internal/service"
	"rewardledger/internal/subscription"
	"rewardledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// app holds every long-lived dependency of one process.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *gorm.DB
	redis  *redis.Client
	store  *repository.GormStore

	closers []func() error
}

// newApp loads config, sets up logging and opens the database and Redis.
// Services are built on demand so migrate and compact stay light.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.Init(logging.Config{
		Format:    cfg.Log.Format,
		Level:     cfg.Log.Level,
		Component: "rewardledger",
	})

	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return nil, err
	}

	db, err := database.Open(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, db: db, store: repository.NewGormStore(db)}
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, &cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
	}

	logger.Info().
		Str("database", cfg.Database.Driver).
		Bool("redis", cfg.Redis.Enabled).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("infrastructure ready")
	return a, nil
}

func (a *app) subscriptionProvider() subscription.Provider {
	var p subscription.Provider = subscription.NewGormProvider(a.db)
	if a.redis != nil && a.cfg.Subscription.CacheTTL > 0 {
		p = subscription.NewCachedProvider(p, a.redis, a.cfg.Subscription.CacheTTL, a.logger)
	}
	return p
}

func (a *app) locker() lock.Locker {
	lc := a.cfg.Ledger.Lock
	if lc.Backend == "redis" {
		return lock.NewRedisLocker(a.redis, lc.TTL, lc.RetryInterval, lc.MaxRetries)
	}
	return lock.NewLocalLocker()
}

func (a *app) deduper() service.Deduper {
	if a.redis != nil {
		return service.NewRedisDeduper(a.redis, a.cfg.Ledger.AdEventTTL)
	}
	return service.NewMemoryDeduper(a.cfg.Ledger.AdEventTTL, clock.System{})
}

func (a *app) publisher() (mq.Publisher, error) {
	if !a.cfg.Kafka.Enabled {
		return mq.NewLogPublisher(a.logger), nil
	}
	producer, err := mq.NewKafkaProducer(&a.cfg.Kafka)
	if err != nil {
		return nil, err
	}
	p := mq.NewKafkaPublisher(producer)
	a.closers = append(a.closers, p.Close)
	return p, nil
}

type services struct {
	ledger *service.Ledger
	gate   *service.Gate
	ads    *service.AdRewardService
}

func (a *app) services() services {
	subs := a.subscriptionProvider()
	ledger := service.NewLedger(a.store, subs,
		service.WithLocker(a.locker()),
		service.WithLogger(a.logger),
		service.WithEventTopic(a.cfg.Kafka.Topic.LedgerEvents),
		service.WithRetry(a.cfg.Ledger.Retry.MaxAttempts, a.cfg.Ledger.Retry.InitialInterval),
	)
	return services{
		ledger: ledger,
		gate:   service.NewGate(a.store, subs, clock.System{}),
		ads:    service.NewAdRewardService(ledger, a.deduper(), a.cfg.Ledger.AdRewardUnits, a.logger),
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close app: %w", err)
	}
	return nil
}
