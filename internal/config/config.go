package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Alerting      AlertingConfig      `mapstructure:"alerting"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Buffer        BufferConfig        `mapstructure:"buffer"`
	System        SystemConfig        `mapstructure:"system"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AlertingConfig struct {
	DefaultCooldown time.Duration `mapstructure:"default_cooldown"`
	RulesPath       string        `mapstructure:"rules_path"`

	Threshold struct {
		WindowSize     int           `mapstructure:"window_size"`
		MinSamples     int           `mapstructure:"min_samples"`
		AdjustInterval time.Duration `mapstructure:"adjust_interval"`
	} `mapstructure:"threshold"`

	Anomaly struct {
		WindowSize       int     `mapstructure:"window_size"`
		MinSamples       int     `mapstructure:"min_samples"`
		Sensitivity      float64 `mapstructure:"sensitivity"`
		IQRScale         float64 `mapstructure:"iqr_scale"`
		SmoothingAlpha   float64 `mapstructure:"smoothing_alpha"`
		MovingWindow     int     `mapstructure:"moving_window"`
		DefaultAlgorithm string  `mapstructure:"default_algorithm"`
	} `mapstructure:"anomaly"`

	Performance struct {
		WindowSize        int     `mapstructure:"window_size"`
		MinSamples        int     `mapstructure:"min_samples"`
		DegradationFactor float64 `mapstructure:"degradation_factor"`
	} `mapstructure:"performance"`

	Quality struct {
		WindowSize int                `mapstructure:"window_size"`
		MinSamples int                `mapstructure:"min_samples"`
		DropRatio  float64            `mapstructure:"drop_ratio"`
		Floors     map[string]float64 `mapstructure:"floors"`
	} `mapstructure:"quality"`

	Classifier struct {
		WindowSize    int    `mapstructure:"window_size"`
		MinSamples    int    `mapstructure:"min_samples"`
		DefaultMethod string `mapstructure:"default_method"`
	} `mapstructure:"classifier"`

	Lifecycle struct {
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
		MaxHistory    int           `mapstructure:"max_history"`
	} `mapstructure:"lifecycle"`
}

type NotificationsConfig struct {
	ChannelsPath string `mapstructure:"channels_path"`
}

type StorageConfig struct {
	RetentionDays     int    `mapstructure:"retention_days"`
	RetentionSchedule string `mapstructure:"retention_schedule"`
}

type BufferConfig struct {
	Capacity             int           `mapstructure:"capacity"`
	OverflowPolicy       string        `mapstructure:"overflow_policy"`
	DrainInterval        time.Duration `mapstructure:"drain_interval"`
	DrainBatchSize       int           `mapstructure:"drain_batch_size"`
	MaxConcurrentBatches int           `mapstructure:"max_concurrent_batches"`
}

type SystemConfig struct {
	SamplerEnabled bool          `mapstructure:"sampler_enabled"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	SamplerSource  string        `mapstructure:"sampler_source"`
}

// Load reads the configuration from ./configs/config.yaml plus environment
// overrides and validates it.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()

	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("server.mode", "SCRAPEWATCH_MODE")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("alerting.rules_path", "SCRAPEWATCH_RULES_PATH")
	viper.BindEnv("notifications.channels_path", "SCRAPEWATCH_CHANNELS_PATH")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3200)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "production")

	viper.SetDefault("database.path", "./data/scrapewatch.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 4)
	viper.SetDefault("database.auto_migrate", true)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("alerting.default_cooldown", "5m")
	viper.SetDefault("alerting.threshold.window_size", 1000)
	viper.SetDefault("alerting.threshold.min_samples", 10)
	viper.SetDefault("alerting.threshold.adjust_interval", "1h")
	viper.SetDefault("alerting.anomaly.window_size", 1000)
	viper.SetDefault("alerting.anomaly.min_samples", 30)
	viper.SetDefault("alerting.anomaly.sensitivity", 2.5)
	viper.SetDefault("alerting.anomaly.iqr_scale", 1.5)
	viper.SetDefault("alerting.anomaly.smoothing_alpha", 0.3)
	viper.SetDefault("alerting.anomaly.moving_window", 20)
	viper.SetDefault("alerting.anomaly.default_algorithm", "zscore")
	viper.SetDefault("alerting.performance.window_size", 1000)
	viper.SetDefault("alerting.performance.min_samples", 20)
	viper.SetDefault("alerting.performance.degradation_factor", 1.5)
	viper.SetDefault("alerting.quality.window_size", 1000)
	viper.SetDefault("alerting.quality.min_samples", 20)
	viper.SetDefault("alerting.quality.drop_ratio", 0.2)
	viper.SetDefault("alerting.classifier.window_size", 1000)
	viper.SetDefault("alerting.classifier.min_samples", 10)
	viper.SetDefault("alerting.classifier.default_method", "hybrid")
	viper.SetDefault("alerting.lifecycle.sweep_interval", "1m")
	viper.SetDefault("alerting.lifecycle.max_history", 10000)

	viper.SetDefault("storage.retention_days", 30)
	viper.SetDefault("storage.retention_schedule", "0 3 * * *")

	viper.SetDefault("buffer.capacity", 10000)
	viper.SetDefault("buffer.overflow_policy", "drop_oldest")
	viper.SetDefault("buffer.drain_interval", "1s")
	viper.SetDefault("buffer.drain_batch_size", 100)
	viper.SetDefault("buffer.max_concurrent_batches", 4)

	viper.SetDefault("system.sampler_enabled", true)
	viper.SetDefault("system.sample_interval", "30s")
	viper.SetDefault("system.sampler_source", "scrapewatch-host")
}

func validate(config *Config) error {
	var problems []string

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", config.Server.Port))
	}
	if config.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if config.Redis.Enabled && config.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when redis is enabled")
	}
	switch config.Buffer.OverflowPolicy {
	case "drop_oldest", "drop_newest", "block", "error":
	default:
		problems = append(problems, fmt.Sprintf("buffer.overflow_policy %q is invalid", config.Buffer.OverflowPolicy))
	}
	if config.Buffer.Capacity <= 0 {
		problems = append(problems, "buffer.capacity must be positive")
	}
	if config.Storage.RetentionDays <= 0 {
		problems = append(problems, "storage.retention_days must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
