package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Fraud       FraudConfig       `mapstructure:"fraud"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Platform    PlatformConfig    `mapstructure:"platform"`
	Projection  ProjectionConfig  `mapstructure:"projection"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsAuto  bool          `mapstructure:"migrations_auto"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KafkaConfig struct {
	Brokers           string        `mapstructure:"brokers"`
	AlertTopic        string        `mapstructure:"alert_topic"`
	NumPartitions     int           `mapstructure:"num_partitions"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// FraudConfig holds the rolling-window thresholds for the fraud detector.
// Amounts are integer minor units.
type FraudConfig struct {
	HighAmountThreshold int64         `mapstructure:"high_amount_threshold"`
	FrequencyThreshold  int64         `mapstructure:"frequency_threshold"`
	VolumeThreshold     int64         `mapstructure:"volume_threshold"`
	Window              time.Duration `mapstructure:"window"`
}

type IdempotencyConfig struct {
	WindowSeconds int64         `mapstructure:"window_seconds"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// PlatformConfig holds global operation limits.
type PlatformConfig struct {
	MaxAmount       int64  `mapstructure:"max_amount"`
	CASRetries      int    `mapstructure:"cas_retries"`
	DefaultCurrency string `mapstructure:"default_currency"`
}

type ProjectionConfig struct {
	Workers int      `mapstructure:"workers"`
	Roles   []string `mapstructure:"roles"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: WLE_ (Wallet Ledger
// Engine). Nested keys use underscore: WLE_DATABASE_HOST, WLE_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "wallet_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_auto", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.alert_topic", "wallet.operator.alerts")
	v.SetDefault("kafka.num_partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)
	v.SetDefault("kafka.write_timeout", "10s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "wallet-ledger-engine")
	v.SetDefault("fraud.high_amount_threshold", 5_000_000)
	v.SetDefault("fraud.frequency_threshold", 10)
	v.SetDefault("fraud.volume_threshold", 20_000_000)
	v.SetDefault("fraud.window", "24h")
	v.SetDefault("idempotency.window_seconds", 30)
	v.SetDefault("idempotency.ttl", "24h")
	v.SetDefault("platform.max_amount", 100_000_000)
	v.SetDefault("platform.cas_retries", 3)
	v.SetDefault("platform.default_currency", "XAF")
	v.SetDefault("projection.workers", 4)
	v.SetDefault("projection.roles", []string{"agent"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: WLE_DATABASE_HOST -> database.host
	v.SetEnvPrefix("WLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
