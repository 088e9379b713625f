// Package config loads service configuration from defaults, a YAML file,
// command line flags and the environment, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	auth "github.com/trialbridge/go-auth"
	"github.com/trialbridge/go-auth/notify"
)

type Config struct {
	Server   Server              `koanf:"server"`
	Database Database            `koanf:"database"`
	Auth     Auth                `koanf:"auth"`
	Log      Log                 `koanf:"log"`
	Mail     notify.MailerConfig `koanf:"mail"`
}

type Server struct {
	Address      string        `koanf:"address" env:"AUTH_HTTP_ADDRESS"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	Debug        bool          `koanf:"debug" env:"AUTH_DEBUG"`
}

type Database struct {
	Driver      string        `koanf:"driver" env:"AUTH_DB_DRIVER"`
	DSN         string        `koanf:"dsn" env:"AUTH_DB_DSN"`
	PingTimeout time.Duration `koanf:"ping_timeout"`
	PingRetries uint64        `koanf:"ping_retries"`
	AutoMigrate bool          `koanf:"auto_migrate"`
}

type Auth struct {
	SigningKey      string        `koanf:"signing_key" env:"AUTH_SIGNING_KEY"`
	TokenExpiration time.Duration `koanf:"token_expiration" env:"AUTH_TOKEN_EXPIRATION"`
	Issuer          string        `koanf:"issuer"`
	Audience        []string      `koanf:"audience"`
	ResetCodeTTL    time.Duration `koanf:"reset_code_ttl" env:"AUTH_RESET_CODE_TTL"`
	ResetCodeLength int           `koanf:"reset_code_length"`
	ExposeResetCode bool          `koanf:"expose_reset_code" env:"AUTH_EXPOSE_RESET_CODE"`
	PasswordHasher  string        `koanf:"password_hasher" env:"AUTH_PASSWORD_HASHER"`
	BcryptCost      int           `koanf:"bcrypt_cost"`
	JanitorInterval time.Duration `koanf:"janitor_interval"`
}

type Log struct {
	Level   string `koanf:"level" env:"AUTH_LOG_LEVEL"`
	Console bool   `koanf:"console"`
}

var _ auth.Config = (*Config)(nil)

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: Server{
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: Database{
			Driver:      auth.DriverSQLite,
			DSN:         "file:auth.db?cache=shared",
			PingTimeout: 5 * time.Second,
			PingRetries: 5,
			AutoMigrate: true,
		},
		Auth: Auth{
			TokenExpiration: auth.DefaultTokenExpiration,
			Issuer:          "trialbridge",
			ResetCodeTTL:    auth.DefaultResetCodeTTL,
			ResetCodeLength: auth.DefaultResetCodeLength,
			PasswordHasher:  auth.HasherBcrypt,
			JanitorInterval: auth.DefaultJanitorInterval,
		},
		Log: Log{
			Level: "info",
		},
		Mail: notify.MailerConfig{
			Retries: 2,
			Backoff: 500 * time.Millisecond,
		},
	}
}

// RegisterFlags adds the overridable settings to fs. Flag names match the
// koanf key paths.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("server.address", d.Server.Address, "HTTP listen address")
	fs.Bool("server.debug", d.Server.Debug, "dump auth request payloads")
	fs.String("database.driver", d.Database.Driver, "database driver: sqlite or postgres")
	fs.String("database.dsn", d.Database.DSN, "database connection string")
	fs.Bool("database.auto_migrate", d.Database.AutoMigrate, "apply migrations on start")
	fs.Bool("auth.expose_reset_code", d.Auth.ExposeResetCode, "return reset codes in API responses (development only)")
	fs.String("auth.password_hasher", d.Auth.PasswordHasher, "password hasher: bcrypt or argon2id")
	fs.Duration("auth.token_expiration", d.Auth.TokenExpiration, "session token lifetime")
	fs.Duration("auth.reset_code_ttl", d.Auth.ResetCodeTTL, "reset code lifetime")
	fs.String("log.level", d.Log.Level, "log level")
	fs.Bool("log.console", d.Log.Console, "human readable logs")
}

// Load builds a Config. path may be empty and flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("load config flags: %w", err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config environment: %w", err)
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Auth.PasswordHasher = strings.ToLower(strings.TrimSpace(cfg.Auth.PasswordHasher))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate will run validation rules
func (c Config) Validate() error {
	return validation.Errors{
		"server":   c.Server.Validate(),
		"database": c.Database.Validate(),
		"auth":     c.Auth.Validate(),
	}.Filter()
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Address, validation.Required),
	)
}

func (d Database) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(auth.DriverSQLite, auth.DriverPostgres)),
		validation.Field(&d.DSN, validation.Required),
	)
}

func (a Auth) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.SigningKey,
			validation.Required,
			validation.Length(auth.MinSigningKeyLength, 0),
		),
		validation.Field(&a.TokenExpiration, validation.Min(time.Minute)),
		validation.Field(&a.ResetCodeTTL, validation.Min(time.Minute), validation.Max(time.Hour)),
		validation.Field(&a.ResetCodeLength, validation.Min(4), validation.Max(12)),
		validation.Field(&a.PasswordHasher, validation.In(auth.HasherBcrypt, auth.HasherArgon2id)),
	)
}

func (c *Config) GetSigningKey() string             { return c.Auth.SigningKey }
func (c *Config) GetTokenExpiration() time.Duration { return c.Auth.TokenExpiration }
func (c *Config) GetIssuer() string                 { return c.Auth.Issuer }
func (c *Config) GetAudience() []string             { return c.Auth.Audience }
func (c *Config) GetResetCodeTTL() time.Duration    { return c.Auth.ResetCodeTTL }
func (c *Config) GetResetCodeLength() int           { return c.Auth.ResetCodeLength }
func (c *Config) GetExposeResetCode() bool          { return c.Auth.ExposeResetCode }
func (c *Config) GetPasswordHasher() string         { return c.Auth.PasswordHasher }
func (c *Config) GetBcryptCost() int                { return c.Auth.BcryptCost }
