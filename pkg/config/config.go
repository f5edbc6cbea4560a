package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"creatorpay/pkg/hashistack/secretmanager"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	configHolder atomic.Value
	backend      = "consul"
	backendAddr  = "127.0.0.1:8500"
	backendPath  = "development" // e.g., app/<env>/<service_name>
	configType   = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"` // grpc | http
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
		Metrics struct {
			Enable         bool   `mapstructure:"ENABLE"`
			PushAddr       string `mapstructure:"PUSH_ADDR"`
			HTTPServerPort uint32 `mapstructure:"HTTP_SERVER_PORT"`
		} `mapstructure:"METRICS"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Stripe struct {
		SecretKey           string        `mapstructure:"SECRET_KEY"`
		Currency            string        `mapstructure:"CURRENCY"`
		ReadinessCacheTTL   time.Duration `mapstructure:"READINESS_CACHE_TTL"`
		PlatformDescription string        `mapstructure:"PLATFORM_DESCRIPTION"`
	} `mapstructure:"STRIPE"`
	Monetization Monetization `mapstructure:"MONETIZATION"`
	Scheduler    struct {
		Enable     bool   `mapstructure:"ENABLE"`
		Timezone   string `mapstructure:"TIMEZONE"`
		Weekday    string `mapstructure:"WEEKDAY"`
		Hour       int    `mapstructure:"HOUR"`
		Minute     int    `mapstructure:"MINUTE"`
		RetrySweep bool   `mapstructure:"RETRY_SWEEP"`
	} `mapstructure:"SCHEDULER"`
	Worker struct {
		Concurrency int           `mapstructure:"CONCURRENCY"`
		TaskTimeout time.Duration `mapstructure:"TASK_TIMEOUT"`
	} `mapstructure:"WORKER"`
}

// Monetization holds the reward and payout constants. It is read once at
// startup and copied into each service's settings.
type Monetization struct {
	RewardPoolPercentage float64       `mapstructure:"REWARD_POOL_PERCENTAGE"`
	RewardPerView        float64       `mapstructure:"REWARD_PER_VIEW"`
	MinBoostAmount       float64       `mapstructure:"MIN_BOOST_AMOUNT"`
	MaxBoostAmount       float64       `mapstructure:"MAX_BOOST_AMOUNT"`
	BoostScoreMultiplier int64         `mapstructure:"BOOST_SCORE_MULTIPLIER"`
	MinWatchSeconds      int           `mapstructure:"MIN_WATCH_SECONDS"`
	MinWatchPercentage   float64       `mapstructure:"MIN_WATCH_PERCENTAGE"`
	MinimumPayout        float64       `mapstructure:"MINIMUM_PAYOUT"`
	MaxRetries           int           `mapstructure:"MAX_RETRIES"`
	RetryBaseDelay       time.Duration `mapstructure:"RETRY_BASE_DELAY"`
	QueueMaxRetry        int           `mapstructure:"QUEUE_MAX_RETRY"`
	QueueBackoffBase     time.Duration `mapstructure:"QUEUE_BACKOFF_BASE"`
	BatchConcurrency     int           `mapstructure:"BATCH_CONCURRENCY"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

// Options picks the config source for a process: a remote provider (which
// needs Vault), file and environment overlaid with Vault secrets, or file and
// environment alone.
func Options() fx.Option {
	switch {
	case os.Getenv("REMOTE_CONFIG_PROVIDER") != "":
		return fx.Options(secretmanager.Module, RemoteModule)
	case secretmanager.Enabled():
		return fx.Options(secretmanager.Module, Module)
	default:
		return Module
	}
}

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "creatorpay")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 20)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("STRIPE.CURRENCY", "eur")
	v.SetDefault("STRIPE.READINESS_CACHE_TTL", time.Minute)
	v.SetDefault("STRIPE.PLATFORM_DESCRIPTION", "Creator payout")

	v.SetDefault("MONETIZATION.REWARD_POOL_PERCENTAGE", 0.20)
	v.SetDefault("MONETIZATION.REWARD_PER_VIEW", 0.0003)
	v.SetDefault("MONETIZATION.MIN_BOOST_AMOUNT", 1)
	v.SetDefault("MONETIZATION.MAX_BOOST_AMOUNT", 100)
	v.SetDefault("MONETIZATION.BOOST_SCORE_MULTIPLIER", 10)
	v.SetDefault("MONETIZATION.MIN_WATCH_SECONDS", 10)
	v.SetDefault("MONETIZATION.MIN_WATCH_PERCENTAGE", 30)
	v.SetDefault("MONETIZATION.MINIMUM_PAYOUT", 20)
	v.SetDefault("MONETIZATION.MAX_RETRIES", 3)
	v.SetDefault("MONETIZATION.RETRY_BASE_DELAY", 5*time.Minute)
	v.SetDefault("MONETIZATION.QUEUE_MAX_RETRY", 3)
	v.SetDefault("MONETIZATION.QUEUE_BACKOFF_BASE", time.Minute)
	v.SetDefault("MONETIZATION.BATCH_CONCURRENCY", 8)

	v.SetDefault("SCHEDULER.ENABLE", true)
	v.SetDefault("SCHEDULER.TIMEZONE", "Europe/London")
	v.SetDefault("SCHEDULER.WEEKDAY", "monday")
	v.SetDefault("SCHEDULER.HOUR", 9)
	v.SetDefault("SCHEDULER.MINUTE", 0)
	v.SetDefault("SCHEDULER.RETRY_SWEEP", true)

	v.SetDefault("WORKER.CONCURRENCY", 10)
	v.SetDefault("WORKER.TASK_TIMEOUT", 10*time.Minute)
}

// Default returns a Config populated only from defaults. Used by tests and tools.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

func LoadConfig(p Params) *Config {
	config := viper.New()
	setDefaults(config)

	config.SetConfigName("config")
	config.SetConfigType(configType)
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Warn("config file not found, using defaults and environment")
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := applyVaultSecrets(context.Background(), p.Vault, &cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return &cfg
}

func LoadRemote(p Params) *Config {
	if p.Vault == nil {
		zap.L().Error("vault can't provide")
		os.Exit(1)
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	config := viper.New()
	setDefaults(config)

	config.SetConfigType(configType)
	if err := config.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		zap.L().Error("failed to add remote config provider", zap.Error(err))
		os.Exit(1)
	}

	if err := config.ReadRemoteConfig(); err != nil {
		zap.L().Error("failed to read remote config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	if err := applyVaultSecrets(context.Background(), p.Vault, &cfg); err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	configHolder.Store(&cfg)

	return &cfg
}

// Current returns the last config stored by LoadRemote.
func Current() *Config {
	if cfg, ok := configHolder.Load().(*Config); ok {
		return cfg
	}
	return nil
}

func applyVaultSecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Stripe.SecretKey = get("stripe_secret_key", cfg.Stripe.SecretKey)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)

	return nil
}
