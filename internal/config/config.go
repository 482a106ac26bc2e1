package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	base "github.com/vaultsim/vaultd/libs/config"
)

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type KafkaTopics struct {
	Events string
	DLQ    string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topics  KafkaTopics
}

type RedisConfig struct {
	Enabled bool
	Addr    string
	DB      int
}

type SchedulerConfig struct {
	Interval time.Duration
}

type AuthConfig struct {
	JWTSecret string
	JWTTTL    time.Duration
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type Config struct {
	App       base.AppConfig
	DB        DBConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("VAULTD_CONFIG"))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("VAULTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv("VAULTD_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topics.events", "vault.events")
	v.SetDefault("kafka.topics.dlq", "vault.events.dlq")
	v.SetDefault("scheduler.interval", "5s")

	cfg := &Config{
		App: *appCfg,
		DB: DBConfig{
			Host:     envString("POSTGRES_HOST", "localhost"),
			Port:     envInt("POSTGRES_PORT", 5432),
			Name:     envString("POSTGRES_DB", "vaultd"),
			User:     envString("POSTGRES_USER", "vaultd"),
			Password: envString("POSTGRES_PASSWORD", "vaultd"),
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Enabled: envBool("KAFKA_ENABLED", true),
			Brokers: envCSV("KAFKA_BROKERS", v.GetStringSlice("kafka.brokers")),
			Topics: KafkaTopics{
				Events: envString("KAFKA_EVENTS_TOPIC", v.GetString("kafka.topics.events")),
				DLQ:    envString("KAFKA_DLQ_TOPIC", v.GetString("kafka.topics.dlq")),
			},
		},
		Redis: RedisConfig{
			Enabled: envBool("REDIS_ENABLED", false),
			Addr:    envString("REDIS_ADDR", "localhost:6379"),
			DB:      envInt("REDIS_DB", 0),
		},
		Scheduler: SchedulerConfig{
			Interval: envDuration("VAULTD_SCHEDULER_INTERVAL", v.GetDuration("scheduler.interval")),
		},
		Auth: AuthConfig{
			JWTSecret: envString("VAULTD_JWT_SECRET", ""),
			JWTTTL:    envDuration("VAULTD_JWT_TTL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("VAULTD_RATE_LIMIT_RPM", 600),
		},
	}

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if cfg.Kafka.Enabled && cfg.Kafka.Topics.Events == "" {
		return nil, fmt.Errorf("kafka events topic required")
	}
	if cfg.Scheduler.Interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive")
	}
	if cfg.App.Env != "dev" && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("VAULTD_JWT_SECRET required outside dev")
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "dev-only-secret"
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envCSV(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
