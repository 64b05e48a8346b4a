// Package config loads the service configuration from .env, an optional YAML
// file and the environment.
//
// Keys are nested (server.port) and map to upper-case environment variables
// with dots replaced by underscores (SERVER_PORT). A few older variable names
// (PORT, DB_USER, SESSION_SECRET, ...) are still honored.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"finlern/internal/auth"
	"finlern/internal/botdetect"
	"finlern/internal/csrf"
	"finlern/internal/notify"
	"finlern/internal/ratelimit"
	"finlern/internal/repo"
	"finlern/internal/validate"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvConfigFile names the variable that points at a config file.
const EnvConfigFile = "FINLERN_CONFIG_FILE"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	CSRF      CSRFConfig      `mapstructure:"csrf" yaml:"csrf"`
	Bot       BotConfig       `mapstructure:"bot" yaml:"bot"`
	Mail      MailConfig      `mapstructure:"mail" yaml:"mail"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	Environment     string        `mapstructure:"environment" yaml:"environment"`
	TrustedHost     string        `mapstructure:"trusted_host" yaml:"trusted_host"`
	AllowedSchemes  []string      `mapstructure:"allowed_schemes" yaml:"allowed_schemes"`
	TrustProxy      bool          `mapstructure:"trust_proxy" yaml:"trust_proxy"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

type DatabaseConfig struct {
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Name     string `mapstructure:"name" yaml:"name"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// TierSpec is one rate-limit tier as written in the config file.
type TierSpec struct {
	Points int           `mapstructure:"points" yaml:"points"`
	Window time.Duration `mapstructure:"window" yaml:"window"`
	Block  time.Duration `mapstructure:"block" yaml:"block"`
}

type RateLimitConfig struct {
	Store     string   `mapstructure:"store" yaml:"store"`
	Capacity  int      `mapstructure:"capacity" yaml:"capacity"`
	Standard  TierSpec `mapstructure:"standard" yaml:"standard"`
	Auth      TierSpec `mapstructure:"auth" yaml:"auth"`
	Sensitive TierSpec `mapstructure:"sensitive" yaml:"sensitive"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

type AuthConfig struct {
	Provider        string `mapstructure:"provider" yaml:"provider"`
	SessionSecret   string `mapstructure:"session_secret" yaml:"session_secret"`
	SecureCookie    bool   `mapstructure:"secure_cookie" yaml:"secure_cookie"`
	JWTSecret       string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer       string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	AdminAPIKey     string `mapstructure:"admin_api_key" yaml:"admin_api_key"`
	AdminAPIKeyHash string `mapstructure:"admin_api_key_hash" yaml:"admin_api_key_hash"`
}

type CSRFConfig struct {
	StrictToken bool `mapstructure:"strict_token" yaml:"strict_token"`
}

type BotConfig struct {
	FormVersion        string        `mapstructure:"form_version" yaml:"form_version"`
	FieldOrder         []string      `mapstructure:"field_order" yaml:"field_order"`
	MinTimeSpent       time.Duration `mapstructure:"min_time_spent" yaml:"min_time_spent"`
	ScriptedFillWindow time.Duration `mapstructure:"scripted_fill_window" yaml:"scripted_fill_window"`
	MinOrderLength     int           `mapstructure:"min_order_length" yaml:"min_order_length"`
}

type MailConfig struct {
	Provider  string        `mapstructure:"provider" yaml:"provider"`
	Endpoint  string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"`
	From      string        `mapstructure:"from" yaml:"from"`
	To        string        `mapstructure:"to" yaml:"to"`
	PerSecond float64       `mapstructure:"per_second" yaml:"per_second"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// legacyEnv lists variable names kept from the earlier .env layout.
var legacyEnv = map[string][]string{
	"server.port":             {"PORT"},
	"database.user":           {"DB_USER"},
	"database.password":       {"DB_PASSWORD"},
	"database.host":           {"DB_HOST"},
	"database.port":           {"DB_PORT"},
	"database.name":           {"DB_NAME"},
	"auth.session_secret":     {"SESSION_SECRET"},
	"auth.admin_api_key":      {"ADMIN_API_KEY"},
	"auth.admin_api_key_hash": {"ADMIN_API_KEY_HASH"},
}

// SetDefaults registers every key with its default so that environment
// overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", EnvProduction)
	v.SetDefault("server.trusted_host", "localhost:8080")
	v.SetDefault("server.allowed_schemes", []string{"https"})
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 64<<10)

	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "finlern")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("rate_limit.store", "memory")
	v.SetDefault("rate_limit.capacity", ratelimit.DefaultMemoryCapacity)
	for tier, tc := range ratelimit.DefaultTiers() {
		prefix := "rate_limit." + string(tier)
		v.SetDefault(prefix+".points", tc.Points)
		v.SetDefault(prefix+".window", tc.Window.String())
		v.SetDefault(prefix+".block", tc.Block.String())
	}

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "finlern:ratelimit")

	v.SetDefault("auth.provider", auth.ProviderNone)
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.secure_cookie", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("auth.admin_api_key", "")
	v.SetDefault("auth.admin_api_key_hash", "")

	v.SetDefault("csrf.strict_token", false)

	bot := botdetect.DefaultConfig()
	v.SetDefault("bot.form_version", "v1")
	v.SetDefault("bot.field_order", validate.FieldOrder)
	v.SetDefault("bot.min_time_spent", bot.MinTimeSpent.String())
	v.SetDefault("bot.scripted_fill_window", bot.ScriptedFillWindow.String())
	v.SetDefault("bot.min_order_length", bot.MinOrderLength)

	v.SetDefault("mail.provider", notify.ProviderLog)
	v.SetDefault("mail.endpoint", "")
	v.SetDefault("mail.api_key", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.to", "")
	v.SetDefault("mail.per_second", 2.0)
	v.SetDefault("mail.timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Prepare wires defaults, environment binding and the config file into v.
// configFile may be empty; then FINLERN_CONFIG_FILE and ./finlern.yml are
// tried in that order. A missing default file is not an error.
func Prepare(v *viper.Viper, configFile string) error {
	// .env is optional, same as a plain environment.
	_ = godotenv.Load()

	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envKey}, names...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	explicit := true
	switch {
	case configFile != "":
		v.SetConfigFile(configFile)
	case os.Getenv(EnvConfigFile) != "":
		v.SetConfigFile(os.Getenv(EnvConfigFile))
	default:
		explicit = false
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("finlern")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Server.Environment = strings.ToLower(strings.TrimSpace(cfg.Server.Environment))
	cfg.Auth.Provider = strings.ToLower(strings.TrimSpace(cfg.Auth.Provider))
	cfg.RateLimit.Store = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Store))
	cfg.Mail.Provider = strings.ToLower(strings.TrimSpace(cfg.Mail.Provider))
	// an empty list from the environment means the default order
	if len(cfg.Bot.FieldOrder) == 0 {
		cfg.Bot.FieldOrder = slices.Clone(validate.FieldOrder)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate reports settings the service cannot start with. Rate-limit tiers
// are not checked here: bad tiers degrade the limiter instead.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	switch c.Server.Environment {
	case EnvDevelopment, EnvProduction, "test":
	default:
		errs = append(errs, fmt.Errorf("server.environment %q is not one of development, production, test", c.Server.Environment))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if _, err := csrf.New(c.CSRFValidator()); err != nil {
		errs = append(errs, fmt.Errorf("server.trusted_host: %w", err))
	}

	switch c.RateLimit.Store {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis rate-limit store"))
		}
	default:
		errs = append(errs, fmt.Errorf("rate_limit.store %q is not one of memory, redis", c.RateLimit.Store))
	}

	switch c.Auth.Provider {
	case auth.ProviderNone, auth.ProviderSession, auth.ProviderJWT:
	default:
		errs = append(errs, fmt.Errorf("auth.provider %q is not one of none, session, jwt", c.Auth.Provider))
	}
	if c.Auth.Provider == auth.ProviderJWT && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	if (c.Auth.Provider == auth.ProviderSession || c.CSRF.StrictToken) && len(c.Auth.SessionSecret) < 32 {
		errs = append(errs, errors.New("auth.session_secret must be at least 32 bytes"))
	}

	if err := c.FormProfile().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bot: %w", err))
	}

	switch c.Mail.Provider {
	case notify.ProviderLog:
	case notify.ProviderHTTP:
		if c.Mail.Endpoint == "" || c.Mail.From == "" || c.Mail.To == "" {
			errs = append(errs, errors.New("mail.endpoint, mail.from and mail.to are required for the http mail provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("mail.provider %q is not one of log, http", c.Mail.Provider))
	}

	return errors.Join(errs...)
}

func (c *Config) Development() bool {
	return c.Server.Environment == EnvDevelopment
}

// Tiers converts the configured tiers. The result may be invalid; see
// ratelimit.ValidateTiers.
func (c *Config) Tiers() map[ratelimit.Tier]ratelimit.TierConfig {
	conv := func(s TierSpec) ratelimit.TierConfig {
		return ratelimit.TierConfig{Points: s.Points, Window: s.Window, Block: s.Block}
	}
	return map[ratelimit.Tier]ratelimit.TierConfig{
		ratelimit.TierStandard:  conv(c.RateLimit.Standard),
		ratelimit.TierAuth:      conv(c.RateLimit.Auth),
		ratelimit.TierSensitive: conv(c.RateLimit.Sensitive),
	}
}

func (c *Config) FormProfile() botdetect.Profile {
	return botdetect.Profile{Version: c.Bot.FormVersion, FieldOrder: slices.Clone(c.Bot.FieldOrder)}
}

func (c *Config) BotDetector() botdetect.Config {
	return botdetect.Config{
		MinTimeSpent:       c.Bot.MinTimeSpent,
		ScriptedFillWindow: c.Bot.ScriptedFillWindow,
		MinOrderLength:     c.Bot.MinOrderLength,
	}
}

func (c *Config) CSRFValidator() csrf.Config {
	return csrf.Config{
		TrustedHost:    c.Server.TrustedHost,
		AllowedSchemes: c.Server.AllowedSchemes,
		Development:    c.Development(),
		StrictToken:    c.CSRF.StrictToken,
	}
}

func (c *Config) DB() repo.Config {
	return repo.Config{
		User:     c.Database.User,
		Password: c.Database.Password,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		Name:     c.Database.Name,
		SSLMode:  c.Database.SSLMode,
		MaxConns: c.Database.MaxConns,
	}
}

func (c *Config) AuthProvider() auth.Config {
	return auth.Config{Provider: c.Auth.Provider, JWTSecret: c.Auth.JWTSecret, JWTIssuer: c.Auth.JWTIssuer}
}

func (c *Config) Notifier() notify.Config {
	return notify.Config{
		Provider:  c.Mail.Provider,
		Endpoint:  c.Mail.Endpoint,
		APIKey:    c.Mail.APIKey,
		From:      c.Mail.From,
		To:        c.Mail.To,
		PerSecond: c.Mail.PerSecond,
		Timeout:   c.Mail.Timeout,
	}
}

func (c *Config) RedisStore() ratelimit.RedisConfig {
	return ratelimit.RedisConfig{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Prefix:   c.Redis.Prefix,
	}
}
