package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/wfunc/landfluss/persistence"
)

// EnvPrefix prefixes every environment override, e.g. LANDFLUSS_SERVER_HTTP_ADDRESS.
const EnvPrefix = "LANDFLUSS"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Peer     PeerConfig     `mapstructure:"peer"`
	Game     GameConfig     `mapstructure:"game"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress     string        `mapstructure:"http_address"`
	RPCAddress      string        `mapstructure:"rpc_address"`
	PublicURL       string        `mapstructure:"public_url"`
	MaxPlayers      int           `mapstructure:"max_players"`
	TokenSecret     string        `mapstructure:"token_secret"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	Heartbeat       time.Duration `mapstructure:"heartbeat"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	ReapInterval    time.Duration `mapstructure:"reap_interval"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	DSN      string         `mapstructure:"dsn"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type PeerConfig struct {
	URL             string        `mapstructure:"url"`
	Name            string        `mapstructure:"name"`
	Password        string        `mapstructure:"password"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
}

type GameConfig struct {
	Countdown  time.Duration `mapstructure:"countdown"`
	Categories []string      `mapstructure:"categories"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

var defaults = map[string]any{
	"server.http_address":     ":8080",
	"server.rpc_address":      ":9090",
	"server.public_url":       "",
	"server.max_players":      16,
	"server.token_secret":     "",
	"server.token_ttl":        12 * time.Hour,
	"server.heartbeat":        30 * time.Second,
	"server.idle_timeout":     30 * time.Minute,
	"server.delivery_timeout": 10 * time.Second,
	"server.reap_interval":    time.Minute,

	"database.driver":            persistence.DriverMemory,
	"database.dsn":               "",
	"database.postgres.host":     "",
	"database.postgres.port":     5432,
	"database.postgres.user":     "",
	"database.postgres.password": "",
	"database.postgres.dbname":   "landfluss",

	"peer.url":              "ws://localhost:8080",
	"peer.name":             "",
	"peer.password":         "",
	"peer.delivery_timeout": 10 * time.Second,

	"game.countdown":  8 * time.Second,
	"game.categories": []string{},

	"log.level":       "info",
	"log.development": false,
}

// Loader reads a Config from a config file, the environment and bound flags,
// in increasing order of precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader looks for config.yaml in each path.
func NewLoader(paths ...string) *Loader {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// SetConfigFile reads file instead of searching the config paths.
func (l *Loader) SetConfigFile(file string) {
	l.v.SetConfigFile(file)
}

// BindFlags binds flags to config keys, e.g. "addr" to "server.http_address".
// Flags missing from fs are ignored.
func (l *Loader) BindFlags(fs *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads and validates the configuration. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig reads config.yaml from path and the environment.
func LoadConfig(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate rejects settings the relay or a peer cannot run with.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Server.MaxPlayers < 0 {
		return fmt.Errorf("server.max_players must not be negative: %d", c.Server.MaxPlayers)
	}
	for key, d := range map[string]time.Duration{
		"server.token_ttl":        c.Server.TokenTTL,
		"server.heartbeat":        c.Server.Heartbeat,
		"server.idle_timeout":     c.Server.IdleTimeout,
		"server.delivery_timeout": c.Server.DeliveryTimeout,
		"server.reap_interval":    c.Server.ReapInterval,
		"peer.delivery_timeout":   c.Peer.DeliveryTimeout,
		"game.countdown":          c.Game.Countdown,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive: %s", key, d)
		}
	}
	switch c.Database.Driver {
	case persistence.DriverMemory:
	case persistence.DriverSQLite:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for sqlite")
		}
	case persistence.DriverPostgres, persistence.DriverGorm:
		if c.Database.DSN == "" && c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.dsn or database.postgres.host is required for %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("%w: %q", persistence.ErrUnknownDriver, c.Database.Driver)
	}
	return nil
}

// DatabaseDSN is database.dsn, or a connection string built from database.postgres.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	p := c.Database.Postgres
	if p.Host == "" {
		return ""
	}
	return persistence.PostgresDSN(p.Host, p.Port, p.User, p.Password, p.DBName)
}
