package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Jobs         JobsConfig         `mapstructure:"jobs"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Port     int   `mapstructure:"port"`
	WorkerID int64 `mapstructure:"worker_id"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres or sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	DSN          string `mapstructure:"dsn"` // overrides the fields above when set
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvents string `mapstructure:"ledger_events"`
}

// LedgerConfig carries the unit economy. Costs and the ad reward are
// configuration, not constants.
type LedgerConfig struct {
	AdRewardUnits     int64            `mapstructure:"ad_reward_units"`
	DefaultGrantHours int              `mapstructure:"default_grant_hours"`
	MaxGrantHours     int              `mapstructure:"max_grant_hours"`
	Features          map[string]int64 `mapstructure:"features"`
	Lock              LockConfig       `mapstructure:"lock"`
	Retry             RetryConfig      `mapstructure:"retry"`
	AdEventTTL        time.Duration    `mapstructure:"ad_event_ttl"`
}

type LockConfig struct {
	Backend       string        `mapstructure:"backend"` // local or redis
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

type RetryConfig struct {
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
}

type SubscriptionConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type JobsConfig struct {
	OutboxInterval     time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize    int           `mapstructure:"outbox_batch_size"`
	MaxRetryCount      int           `mapstructure:"max_retry_count"`
	CompactionInterval time.Duration `mapstructure:"compaction_interval"`
	CompactionGrace    time.Duration `mapstructure:"compaction_grace"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// maxGrantHoursCeiling keeps a configured window far below the
// time.Duration overflow point.
const maxGrantHoursCeiling = 24 * 366

// GrantDuration returns the default unlock window.
func (c LedgerConfig) GrantDuration() time.Duration {
	return time.Duration(c.DefaultGrantHours) * time.Hour
}

// GrantDurationFor converts a requested window in hours, rejecting values
// outside 1..MaxGrantHours before they are multiplied into a Duration.
func (c LedgerConfig) GrantDurationFor(hours int) (time.Duration, error) {
	if hours <= 0 || hours > c.MaxGrantHours {
		return 0, fmt.Errorf("grant_hours must be between 1 and %d, got %d", c.MaxGrantHours, hours)
	}
	return time.Duration(hours) * time.Hour, nil
}

// FeatureKey normalizes a feature name. viper lowercases map keys, so the
// cost table and grant rows are keyed by the lowercase name.
func FeatureKey(feature string) string {
	return strings.ToLower(strings.TrimSpace(feature))
}

// FeatureCost looks up the unit cost of a feature.
func (c LedgerConfig) FeatureCost(feature string) (int64, bool) {
	cost, ok := c.Features[FeatureKey(feature)]
	return cost, ok
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.name", "rewardledger.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.topic.ledger_events", "reward-ledger-events")

	v.SetDefault("ledger.default_grant_hours", 24)
	v.SetDefault("ledger.max_grant_hours", 168)
	v.SetDefault("ledger.ad_event_ttl", 72*time.Hour)
	v.SetDefault("ledger.lock.backend", "local")
	v.SetDefault("ledger.lock.ttl", 30*time.Second)
	v.SetDefault("ledger.lock.retry_interval", 100*time.Millisecond)
	v.SetDefault("ledger.lock.max_retries", 30)
	v.SetDefault("ledger.retry.max_attempts", 3)
	v.SetDefault("ledger.retry.initial_interval", 50*time.Millisecond)

	v.SetDefault("subscription.cache_ttl", 30*time.Second)

	v.SetDefault("jobs.outbox_interval", 500*time.Millisecond)
	v.SetDefault("jobs.outbox_batch_size", 100)
	v.SetDefault("jobs.max_retry_count", 5)
	v.SetDefault("jobs.compaction_interval", time.Hour)
	v.SetDefault("jobs.compaction_grace", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
}

// Load reads configPath (YAML) and REWARDLEDGER_* environment overrides.
// An empty configPath loads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REWARDLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects a unit economy that would make the ledger refuse every call.
func (c *Config) Validate() error {
	var errs []error

	if c.Ledger.AdRewardUnits <= 0 {
		errs = append(errs, errors.New("ledger.ad_reward_units must be positive"))
	}
	if c.Ledger.DefaultGrantHours <= 0 {
		errs = append(errs, errors.New("ledger.default_grant_hours must be positive"))
	}
	if c.Ledger.MaxGrantHours < c.Ledger.DefaultGrantHours || c.Ledger.MaxGrantHours > maxGrantHoursCeiling {
		errs = append(errs, fmt.Errorf("ledger.max_grant_hours must be between default_grant_hours and %d", maxGrantHoursCeiling))
	}
	for name, cost := range c.Ledger.Features {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("ledger.features contains an empty feature name"))
		}
		if cost <= 0 {
			errs = append(errs, fmt.Errorf("ledger.features.%s must cost a positive number of units", name))
		}
	}
	switch c.Ledger.Lock.Backend {
	case "local":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("ledger.lock.backend redis requires redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.lock.backend %q is not one of local, redis", c.Ledger.Lock.Backend))
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of mysql, postgres, sqlite", c.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
