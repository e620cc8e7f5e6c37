package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Shipping ShippingConfig `mapstructure:"shipping"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Senders  SendersConfig  `mapstructure:"senders"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	APIKey       string        `mapstructure:"api_key"` // empty disables auth
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type QueueConfig struct {
	PollInterval  time.Duration     `mapstructure:"poll_interval"`
	Orders        QueueWorkerConfig `mapstructure:"orders"`
	Notifications QueueWorkerConfig `mapstructure:"notifications"`
}

type QueueWorkerConfig struct {
	Workers       int             `mapstructure:"workers"`
	MaxAttempts   int             `mapstructure:"max_attempts"`
	RetrySchedule []time.Duration `mapstructure:"retry_schedule"`
}

type PipelineConfig struct {
	// CouponFailurePolicy is "lenient" (missing/expired coupon applies zero
	// discount) or "strict" (the run fails).
	CouponFailurePolicy string `mapstructure:"coupon_failure_policy"`
}

type ShippingConfig struct {
	FreeOverCents    int64                  `mapstructure:"free_over_cents"` // 0 disables
	AllowedCountries []string               `mapstructure:"allowed_countries"`
	Methods          []ShippingMethodConfig `mapstructure:"methods"`
}

type ShippingMethodConfig struct {
	Name           string `mapstructure:"name"`
	MaxWeightGrams int    `mapstructure:"max_weight_grams"`
	RateCents      int64  `mapstructure:"rate_cents"`
}

type PaymentConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SendersConfig struct {
	Timeout time.Duration  `mapstructure:"timeout"`
	Email   ProviderConfig `mapstructure:"email"`
	SMS     ProviderConfig `mapstructure:"sms"`
	Push    ProviderConfig `mapstructure:"push"`
}

type ProviderConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

type AlertingConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Secret     string        `mapstructure:"secret"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("orderpipe")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/orderpipe")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ORDERPIPE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/orderpipe.db")

	viper.SetDefault("queue.poll_interval", 1*time.Second)

	viper.SetDefault("queue.orders.workers", 4)
	viper.SetDefault("queue.orders.max_attempts", 3)
	viper.SetDefault("queue.orders.retry_schedule", []time.Duration{
		30 * time.Second,
		2 * time.Minute,
		5 * time.Minute,
	})

	viper.SetDefault("queue.notifications.workers", 8)
	viper.SetDefault("queue.notifications.max_attempts", 3)
	viper.SetDefault("queue.notifications.retry_schedule", []time.Duration{
		10 * time.Second,
		30 * time.Second,
		60 * time.Second,
	})

	viper.SetDefault("pipeline.coupon_failure_policy", "lenient")

	viper.SetDefault("shipping.free_over_cents", 0)
	viper.SetDefault("shipping.methods", []map[string]interface{}{
		{"name": "standard", "max_weight_grams": 30000, "rate_cents": 1500},
	})

	viper.SetDefault("payment.timeout", 30*time.Second)
	viper.SetDefault("senders.timeout", 15*time.Second)
	viper.SetDefault("alerting.timeout", 10*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
