package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Engine    EngineConfig    `mapstructure:"engine"`
	Gate      GateConfig      `mapstructure:"gate"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Runtime flags set from the command line, not the config file.
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// EngineConfig points at the external assessment engine.
type EngineConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout_seconds"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// GateConfig tunes the gate core itself.
type GateConfig struct {
	ConfigCacheTTL       time.Duration `mapstructure:"config_cache_ttl_seconds"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval_seconds"`
	NotifyChannel        string        `mapstructure:"notify_channel"`
	LockShards           int           `mapstructure:"lock_shards"`
	LockIdleEvictMinutes int           `mapstructure:"lock_idle_evict_minutes"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("ETHICS_GATE")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Assessment engine
	viper.BindEnv("engine.base_url", "ENGINE_BASE_URL")
	viper.BindEnv("engine.api_key", "ENGINE_API_KEY")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.Engine.RequestTimeout = cfg.Engine.RequestTimeout * time.Second
	cfg.Gate.ConfigCacheTTL = cfg.Gate.ConfigCacheTTL * time.Second
	cfg.Gate.SweepInterval = cfg.Gate.SweepInterval * time.Second

	if cfg.Engine.RequestTimeout <= 0 {
		cfg.Engine.RequestTimeout = 15 * time.Second
	}
	if cfg.Engine.MaxRetries <= 0 {
		cfg.Engine.MaxRetries = 3
	}
	if cfg.Gate.ConfigCacheTTL <= 0 || cfg.Gate.ConfigCacheTTL > 60*time.Second {
		cfg.Gate.ConfigCacheTTL = 60 * time.Second
	}
	if cfg.Gate.SweepInterval <= 0 {
		cfg.Gate.SweepInterval = time.Minute
	}
	if cfg.Gate.NotifyChannel == "" {
		cfg.Gate.NotifyChannel = "gate:notify"
	}
	if cfg.Gate.LockShards <= 0 {
		cfg.Gate.LockShards = 64
	}
	if cfg.Gate.LockIdleEvictMinutes <= 0 {
		cfg.Gate.LockIdleEvictMinutes = 30
	}

	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	return &cfg, nil
}
