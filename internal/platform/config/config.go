package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig              `mapstructure:"server"`
	Database    DatabaseConfig            `mapstructure:"database"`
	JWT         JWTConfig                 `mapstructure:"jwt"`
	Vault       VaultConfig               `mapstructure:"vault"`
	Functions   FunctionsConfig           `mapstructure:"functions"`
	Broadcaster BroadcasterConfig         `mapstructure:"broadcaster"`
	Proxy       ProxyConfig               `mapstructure:"proxy"`
	Tenants     TenantsConfig             `mapstructure:"tenants"`
	RateLimit   RateLimitConfig           `mapstructure:"rate_limit"`
	Stats       StatsConfig               `mapstructure:"stats"`
	Logging     LoggingConfig             `mapstructure:"logging"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
	BusyTimeoutMs  int    `mapstructure:"busy_timeout_ms"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type VaultConfig struct {
	MasterKey string `mapstructure:"master_key"`
}

type FunctionsConfig struct {
	// SharedSecret, when set, is required as a bearer token on /functions.
	SharedSecret  string `mapstructure:"shared_secret"`
	SigningSecret string `mapstructure:"signing_secret"`
}

type BroadcasterConfig struct {
	EventTimeout time.Duration `mapstructure:"event_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	MaxInFlight  int64         `mapstructure:"max_in_flight"`
}

type ProxyConfig struct {
	SharedSecret string        `mapstructure:"shared_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type TenantsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type RateLimitConfig struct {
	EventsPerMinute int `mapstructure:"events_per_minute"`
	EventsBurst     int `mapstructure:"events_burst"`
}

type StatsConfig struct {
	MaxBodyBytes int `mapstructure:"max_body_bytes"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ProviderConfig describes how to reach one external provider and where its
// credential goes on the outbound request.
type ProviderConfig struct {
	BaseURL string                  `mapstructure:"base_url"`
	Auth    ProviderAuthConfig      `mapstructure:"auth"`
	Actions map[string]ActionConfig `mapstructure:"actions"`
}

type ProviderAuthConfig struct {
	Scheme        string `mapstructure:"scheme"` // bearer, header, basic, query
	Field         string `mapstructure:"field"`
	Header        string `mapstructure:"header"`
	Param         string `mapstructure:"param"`
	UsernameField string `mapstructure:"username_field"`
	PasswordField string `mapstructure:"password_field"`
}

type ActionConfig struct {
	Method string `mapstructure:"method"`
	Path   string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 45*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 35*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.path", "./data/switchboard.db")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("jwt.issuer", "switchboard")
	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)

	v.SetDefault("broadcaster.event_timeout", 30*time.Second)
	v.SetDefault("broadcaster.max_retries", 2)
	v.SetDefault("broadcaster.retry_backoff", time.Second)
	v.SetDefault("broadcaster.max_in_flight", 256)

	v.SetDefault("proxy.timeout", 30*time.Second)
	v.SetDefault("tenants.cache_ttl", 5*time.Minute)

	v.SetDefault("rate_limit.events_per_minute", 600)
	v.SetDefault("rate_limit.events_burst", 60)

	v.SetDefault("stats.max_body_bytes", 64*1024)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Secrets are usually injected through the environment only.
	for _, key := range []string{"jwt.secret", "vault.master_key", "proxy.shared_secret", "functions.shared_secret", "functions.signing_secret"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
