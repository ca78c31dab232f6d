package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Configuration struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Signing  SigningConfig  `mapstructure:"signing"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host" validate:"required"`
	Port            string `mapstructure:"port" validate:"required"`
	Username        string `mapstructure:"username" validate:"required"`
	Password        string `mapstructure:"password"`
	Name            string `mapstructure:"name" validate:"required"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type SigningConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"required"`
}

type NotifierConfig struct {
	SendTimeout        time.Duration `mapstructure:"send_timeout" validate:"required"`
	SendBuffer         int           `mapstructure:"send_buffer" validate:"min=1"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval" validate:"required"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval" validate:"required"`
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold" validate:"required"`
}

type SweepConfig struct {
	ExpiryInterval time.Duration `mapstructure:"expiry_interval" validate:"required"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Environment string `mapstructure:"environment"`
}

// Load reads the configuration file (optional), applies SIGNFLOW_* environment
// overrides on top of the defaults, and validates the result.
func Load(filePath string) (*Configuration, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SIGNFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Configuration{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "legal_practice")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 300)

	v.SetDefault("auth.jwt_secret", "legal-practice-dev-secret")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("signing.base_url", "http://localhost:9010")
	v.SetDefault("signing.timeout", 10*time.Second)

	v.SetDefault("notifier.send_timeout", 5*time.Second)
	v.SetDefault("notifier.send_buffer", 32)
	v.SetDefault("notifier.heartbeat_interval", 30*time.Second)
	v.SetDefault("notifier.sweep_interval", 30*time.Second)
	v.SetDefault("notifier.staleness_threshold", 90*time.Second)

	v.SetDefault("sweep.expiry_interval", time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.environment", "development")
}

// LogConfig reports the effective configuration with secrets redacted.
func LogConfig(cfg *Configuration, logger *zap.Logger) {
	logger.Info("Application configuration",
		zap.String("port", cfg.Server.Port),
		zap.Duration("read_timeout", cfg.Server.ReadTimeout),
		zap.Duration("write_timeout", cfg.Server.WriteTimeout),
		zap.String("database_host", cfg.Database.Host),
		zap.String("database_name", cfg.Database.Name),
		zap.String("signing_base_url", cfg.Signing.BaseURL),
		zap.Duration("notifier_send_timeout", cfg.Notifier.SendTimeout),
		zap.Duration("notifier_staleness_threshold", cfg.Notifier.StalenessThreshold),
		zap.Duration("expiry_sweep_interval", cfg.Sweep.ExpiryInterval),
	)
}
