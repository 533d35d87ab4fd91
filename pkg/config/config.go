package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string        `mapstructure:"ADDR"`
		Protocol string        `mapstructure:"PROTOCOL"`
		Insecure bool          `mapstructure:"INSECURE"`
		Headers  string        `mapstructure:"HEADERS"`
		Timeout  time.Duration `mapstructure:"TIMEOUT"`
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
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
		Metrics struct {
			Enable          bool   `mapstructure:"ENABLE"`
			RefreshInterval uint32 `mapstructure:"REFRESH_INTERVAL"`
			PushAddr        string `mapstructure:"PUSH_ADDR"`
			HTTPServerPort  uint32 `mapstructure:"HTTP_SERVER_PORT"`
		} `mapstructure:"METRICS"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Vault struct {
		Enable bool   `mapstructure:"ENABLE"`
		Mount  string `mapstructure:"MOUNT"`
		Path   string `mapstructure:"PATH"`
	} `mapstructure:"VAULT"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Ledger      Ledger      `mapstructure:"LEDGER"`
	Rewards     Rewards     `mapstructure:"REWARDS"`
	Idempotency Idempotency `mapstructure:"IDEMPOTENCY"`
}

// Ledger tunes the unit of work that wraps every balance mutation.
type Ledger struct {
	Isolation            string        `mapstructure:"ISOLATION"`
	MaxRetries           uint64        `mapstructure:"MAX_RETRIES"`
	RetryInitialInterval time.Duration `mapstructure:"RETRY_INITIAL_INTERVAL"`
	RetryMaxInterval     time.Duration `mapstructure:"RETRY_MAX_INTERVAL"`
}

type Rewards struct {
	DailyClaimAmount     int64         `mapstructure:"DAILY_CLAIM_AMOUNT"`
	DailyClaimCooldown   time.Duration `mapstructure:"DAILY_CLAIM_COOLDOWN"`
	ReferrerBonus        int64         `mapstructure:"REFERRER_BONUS"`
	ReferredBonus        int64         `mapstructure:"REFERRED_BONUS"`
	MaxSubmissionsPerDay int64         `mapstructure:"MAX_SUBMISSIONS_PER_DAY"`
}

type Idempotency struct {
	TTL time.Duration `mapstructure:"TTL"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "picks-ledger")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("OTEL.PROTOCOL", "http")
	v.SetDefault("OTEL.INSECURE", true)
	v.SetDefault("OTEL.TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "127.0.0.1")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "picks")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 20)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 5*time.Minute)
	v.SetDefault("DATABASE.METRICS.REFRESH_INTERVAL", 15)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 4*time.Second)
	v.SetDefault("VAULT.MOUNT", "secret")
	v.SetDefault("LEDGER.ISOLATION", "serializable")
	v.SetDefault("LEDGER.MAX_RETRIES", 3)
	v.SetDefault("LEDGER.RETRY_INITIAL_INTERVAL", 20*time.Millisecond)
	v.SetDefault("LEDGER.RETRY_MAX_INTERVAL", 250*time.Millisecond)
	v.SetDefault("REWARDS.DAILY_CLAIM_AMOUNT", 50)
	v.SetDefault("REWARDS.DAILY_CLAIM_COOLDOWN", 24*time.Hour)
	v.SetDefault("REWARDS.REFERRER_BONUS", 180)
	v.SetDefault("REWARDS.REFERRED_BONUS", 120)
	v.SetDefault("REWARDS.MAX_SUBMISSIONS_PER_DAY", 5)
	v.SetDefault("IDEMPOTENCY.TTL", 24*time.Hour)
}

// Load reads config.yaml from the working directory (optional) and the
// environment, `.` in keys replaced by `_`.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func LoadConfig(p Params) *Config {
	cfg, err := Load()
	if err != nil {
		zap.L().Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil && cfg.Vault.Enable {
		path := cfg.Vault.Path
		if path == "" {
			path = cfg.AppEnv
		}

		zap.L().Info("Starting Get Secrets", zap.String("path", path))
		secret, err := p.Vault.Secrets.KvV2Read(context.Background(), path, vault.WithMountPath(cfg.Vault.Mount))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}

		get := func(key, fallback string) string {
			if val, ok := secret.Data.Data[key].(string); ok && val != "" {
				return val
			}
			return fallback
		}

		cfg.Database.User = get("database_user", cfg.Database.User)
		cfg.Database.Password = get("database_password", cfg.Database.Password)
		cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
		cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)
	}

	return cfg
}
