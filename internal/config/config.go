package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the API process.
type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	HTTP struct {
		Port           int    `mapstructure:"port"`
		AllowedOrigins string `mapstructure:"allowed_origins"`
	} `mapstructure:"http"`
	DB struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"db"`
	JWT struct {
		Secret string        `mapstructure:"secret"`
		TTL    time.Duration `mapstructure:"ttl"`
	} `mapstructure:"jwt"`
	Wallet struct {
		DefaultCurrency string `mapstructure:"default_currency"`
	} `mapstructure:"wallet"`
	Platform struct {
		FeePercent string `mapstructure:"fee_percent"`
	} `mapstructure:"platform"`
	Settlement struct {
		PaymentTTL    time.Duration `mapstructure:"payment_ttl"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"settlement"`
	Events struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"events"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		Channel  string `mapstructure:"channel"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers string `mapstructure:"brokers"`
		Topic   string `mapstructure:"topic"`
	} `mapstructure:"kafka"`
}

// Load reads .env (if any), an optional config.yaml and the environment.
// Environment variables use upper snake case: DB_DSN, JWT_SECRET, PLATFORM_FEE_PERCENT...
func Load(paths ...string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.allowed_origins", "http://localhost:3000")
	v.SetDefault("db.driver", "mysql")
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("db.dsn", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", time.Hour)
	v.SetDefault("wallet.default_currency", "IRR")
	v.SetDefault("platform.fee_percent", "5")
	v.SetDefault("settlement.payment_ttl", 24*time.Hour)
	v.SetDefault("settlement.sweep_interval", time.Hour)
	v.SetDefault("events.driver", "nop")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.channel", "marketplace_events")
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "marketplace-events")
}

// Validate rejects configurations the process must not start with.
func (c *Config) Validate() error {
	if c.DB.DSN == "" {
		return errors.New("config: db.dsn (DB_DSN) is required")
	}
	switch c.DB.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported db.driver %q", c.DB.Driver)
	}
	if c.JWT.Secret == "changeme" || len(c.JWT.Secret) < 32 {
		return errors.New("config: jwt.secret must be at least 32 characters long and not use the default value")
	}
	if _, err := c.FeePercent(); err != nil {
		return err
	}
	if c.Settlement.PaymentTTL <= 0 {
		return errors.New("config: settlement.payment_ttl must be positive")
	}
	if c.Settlement.SweepInterval < 0 {
		return errors.New("config: settlement.sweep_interval cannot be negative (0 disables the sweeper)")
	}
	switch c.Events.Driver {
	case "nop", "redis", "kafka":
	default:
		return fmt.Errorf("config: unsupported events.driver %q", c.Events.Driver)
	}
	return nil
}

// FeePercent parses platform.fee_percent as a decimal in [0, 100].
func (c *Config) FeePercent() (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(c.Platform.FeePercent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: invalid platform.fee_percent %q: %w", c.Platform.FeePercent, err)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("config: platform.fee_percent %s out of range", pct)
	}
	return pct, nil
}

// Origins splits the comma separated CORS allow list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.HTTP.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// KafkaBrokers splits the comma separated broker list.
func (c *Config) KafkaBrokers() []string {
	var out []string
	for _, b := range strings.Split(c.Kafka.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
