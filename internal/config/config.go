package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	EnvDev   = "dev"
	EnvProd  = "prod"
	EnvLocal = "local"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

var globalConfig *Config

func Global() *Config {
	return globalConfig
}

func SetGlobal(cfg *Config) {
	globalConfig = cfg
}

type Config struct {
	Env      string `env:"ENV" env-required:"true"`
	HTTP     HTTPConfig
	JWT      JWTConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Realtime RealtimeConfig
	Identity IdentityConfig
}

type HTTPConfig struct {
	Host            string        `env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port            string        `env:"HTTP_PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type JWTConfig struct {
	Issuer         string        `env:"JWT_ISSUER" env-default:"go-todo-share"`
	SigningKey     string        `env:"JWT_SIGNING_KEY" env-required:"true"`
	AccessTokenTTL time.Duration `env:"JWT_ACCESS_TOKEN_TTL" env-default:"1h"`
}

type StoreConfig struct {
	// Driver is either "postgres" or "memory".
	Driver string `env:"STORE_DRIVER" env-default:"postgres"`
}

type PostgresConfig struct {
	Host           string        `env:"POSTGRES_HOST" env-default:"localhost"`
	Port           int           `env:"POSTGRES_PORT" env-default:"5432"`
	Username       string        `env:"POSTGRES_USERNAME" env-default:"postgres"`
	Password       string        `env:"POSTGRES_PASSWORD"`
	Database       string        `env:"POSTGRES_DATABASE" env-default:"todo"`
	SSLMode        string        `env:"POSTGRES_SSL_MODE" env-default:"disable"`
	ConnectTimeout time.Duration `env:"POSTGRES_CONNECT_TIMEOUT" env-default:"10s"`
	PingTimeout    time.Duration `env:"POSTGRES_PING_TIMEOUT" env-default:"10s"`
	MigrateOnStart bool          `env:"POSTGRES_MIGRATE_ON_START" env-default:"true"`
}

// URL builds a connection URL with the given scheme, "postgres" for pgx
// and "pgx5" for migrations.
func (c PostgresConfig) URL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.Username, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	// Enabled turns on cross-instance fan-out. A single instance can run
	// without redis.
	Enabled     bool          `env:"REDIS_ENABLED" env-default:"false"`
	Addr        string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password    string        `env:"REDIS_PASSWORD"`
	DB          int           `env:"REDIS_DB" env-default:"0"`
	Channel     string        `env:"REDIS_CHANNEL" env-default:"tasks:changes"`
	PingTimeout time.Duration `env:"REDIS_PING_TIMEOUT" env-default:"5s"`
}

type RealtimeConfig struct {
	QueueSize      int           `env:"REALTIME_QUEUE_SIZE" env-default:"64"`
	WriteTimeout   time.Duration `env:"REALTIME_WRITE_TIMEOUT" env-default:"5s"`
	MaxMessageSize int64         `env:"REALTIME_MAX_MESSAGE_SIZE" env-default:"4096"`
	// AllowedOrigins lists WebSocket origin host patterns besides the
	// request host, e.g. "localhost:5173".
	AllowedOrigins []string `env:"REALTIME_ALLOWED_ORIGINS" env-separator:","`
}

type IdentityConfig struct {
	CacheSize int `env:"IDENTITY_CACHE_SIZE" env-default:"1024"`
}
