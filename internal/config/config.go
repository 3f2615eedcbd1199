package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	Version     string          `mapstructure:"version"`
	Server      ServerConfig    `mapstructure:"server"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Security    SecurityConfig  `mapstructure:"security"`
	Detection   DetectionConfig `mapstructure:"detection"`
	Audit       AuditConfig     `mapstructure:"audit"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type RedisConfig struct {
	// Enabled switches the counter and block stores from in-memory to
	// Redis. Multi-instance deployments need Redis so blocks and windows
	// are shared.
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type SecurityConfig struct {
	JWTSecret   string   `mapstructure:"jwt_secret"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// MaxBodyInspectBytes bounds how much of the request body the
	// fingerprint captures for signature matching.
	MaxBodyInspectBytes int64 `mapstructure:"max_body_inspect_bytes"`
}

type DetectionConfig struct {
	SignatureFile   string        `mapstructure:"signature_file"`
	PatternFile     string        `mapstructure:"pattern_file"`
	RateRuleFile    string        `mapstructure:"rate_rule_file"`
	BufferRetention time.Duration `mapstructure:"buffer_retention"`
	BufferCapacity  int           `mapstructure:"buffer_capacity"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	OracleRebuild   time.Duration `mapstructure:"oracle_rebuild_interval"`
}

type AuditConfig struct {
	KafkaEnabled bool     `mapstructure:"kafka_enabled"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/sentinel")

	viper.SetEnvPrefix("SENTINEL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	defaultCfg := DefaultConfig()
	setDefaults(defaultCfg)

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, continue with defaults
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Version:     "dev",
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
		},
		Security: SecurityConfig{
			JWTSecret:           "default-secret-change-in-production",
			CORSOrigins:         []string{"*"},
			MaxBodyInspectBytes: 1 << 20,
		},
		Detection: DetectionConfig{
			BufferRetention: 24 * time.Hour,
			BufferCapacity:  50000,
			SweepInterval:   5 * time.Minute,
			OracleRebuild:   6 * time.Hour,
		},
		Audit: AuditConfig{
			KafkaEnabled: false,
			KafkaBrokers: []string{"localhost:9092"},
			KafkaTopic:   "sentinel.audit",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func setDefaults(cfg *Config) {
	viper.SetDefault("environment", cfg.Environment)
	viper.SetDefault("version", cfg.Version)
	viper.SetDefault("server.host", cfg.Server.Host)
	viper.SetDefault("server.port", cfg.Server.Port)
	viper.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	viper.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	viper.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	viper.SetDefault("redis.enabled", cfg.Redis.Enabled)
	viper.SetDefault("redis.host", cfg.Redis.Host)
	viper.SetDefault("redis.port", cfg.Redis.Port)
	viper.SetDefault("redis.password", cfg.Redis.Password)
	viper.SetDefault("redis.db", cfg.Redis.DB)
	viper.SetDefault("security.jwt_secret", cfg.Security.JWTSecret)
	viper.SetDefault("security.cors_origins", cfg.Security.CORSOrigins)
	viper.SetDefault("security.max_body_inspect_bytes", cfg.Security.MaxBodyInspectBytes)
	viper.SetDefault("detection.signature_file", cfg.Detection.SignatureFile)
	viper.SetDefault("detection.pattern_file", cfg.Detection.PatternFile)
	viper.SetDefault("detection.rate_rule_file", cfg.Detection.RateRuleFile)
	viper.SetDefault("detection.buffer_retention", cfg.Detection.BufferRetention)
	viper.SetDefault("detection.buffer_capacity", cfg.Detection.BufferCapacity)
	viper.SetDefault("detection.sweep_interval", cfg.Detection.SweepInterval)
	viper.SetDefault("detection.oracle_rebuild_interval", cfg.Detection.OracleRebuild)
	viper.SetDefault("audit.kafka_enabled", cfg.Audit.KafkaEnabled)
	viper.SetDefault("audit.kafka_brokers", cfg.Audit.KafkaBrokers)
	viper.SetDefault("audit.kafka_topic", cfg.Audit.KafkaTopic)
	viper.SetDefault("logging.level", cfg.Logging.Level)
	viper.SetDefault("logging.format", cfg.Logging.Format)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Security.JWTSecret == "" || c.Security.JWTSecret == "default-secret-change-in-production" {
		if c.Environment == "production" {
			return fmt.Errorf("JWT secret must be set in production")
		}
	}

	if c.Detection.BufferCapacity < 0 {
		return fmt.Errorf("invalid buffer capacity: %d", c.Detection.BufferCapacity)
	}

	if c.Audit.KafkaEnabled && len(c.Audit.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka audit enabled but no brokers configured")
	}

	return nil
}
