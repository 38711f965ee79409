package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Port        string `env:"PORT,         default=8080"`
	Env         string `env:"ENV,          default=development"`
	LogLevel    string `env:"LOG_LEVEL,    default=info"`
	BaseURL     string `env:"BASE_URL,     default=http://localhost:8080"`
	StoreDriver string `env:"STORE_DRIVER, default=mongo"`

	Token    TokenConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Auth0    Auth0Config
	Visits   VisitConfig
	Presence PresenceConfig
	Socket   SocketConfig
}

type TokenConfig struct {
	Secret       string        `env:"JWT_SECRET, required"`
	AccessTTL    time.Duration `env:"ACCESS_TOKEN_EXPIRY,  default=15m"`
	RefreshTTL   time.Duration `env:"REFRESH_TOKEN_EXPIRY, default=168h"`
	BcryptCost   int           `env:"BCRYPT_COST,          default=10"`
	AccessCookie string        `env:"ACCESS_TOKEN_COOKIE,  default=access_token"`
}

type MongoConfig struct {
	URI            string `env:"MONGO_URI,              default=mongodb://localhost:27017"`
	Database       string `env:"MONGO_DB,               default=auth"`
	TenantDBPrefix string `env:"MONGO_TENANT_DB_PREFIX"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	DB       int    `env:"REDIS_DB,       default=0"`
	Password string `env:"REDIS_PASSWORD"`
}

// Auth0Config configures federated login. Federated routes are disabled when
// Domain is empty.
type Auth0Config struct {
	Domain        string        `env:"AUTH0_DOMAIN"`
	ClientID      string        `env:"AUTH0_CLIENT_ID"`
	ClientSecret  string        `env:"AUTH0_CLIENT_SECRET"`
	RedirectPath  string        `env:"AUTH0_CLIENT_REDIRECT_URL, default=/api/v1/auth_0/callback"`
	Scope         string        `env:"AUTH0_SCOPE,               default=openid profile email"`
	VerifyIDToken bool          `env:"AUTH0_VERIFY_ID_TOKEN,     default=false"`
	StateSecret   string        `env:"AUTH0_STATE_SECRET"`
	StateTTL      time.Duration `env:"AUTH0_STATE_TTL,           default=10m"`
}

func (c Auth0Config) Enabled() bool {
	return c.Domain != ""
}

type VisitConfig struct {
	Track              bool `env:"TRACK_SITE_VISIT,    default=false"`
	MaxVisits          int  `env:"MAX_VISIT_LIMIT,     default=100"`
	RestrictionMinutes int  `env:"RESTRICTION_MINUTES, default=10"`
}

func (c VisitConfig) Restriction() time.Duration {
	return time.Duration(c.RestrictionMinutes) * time.Minute
}

// SocketConfig tunes the websocket adapter. An empty origin list only
// accepts same-origin handshakes.
type SocketConfig struct {
	AllowedOrigins []string      `env:"SOCKET_ALLOWED_ORIGINS"`
	ReadLimit      int64         `env:"SOCKET_READ_LIMIT,    default=65536"`
	EventTimeout   time.Duration `env:"SOCKET_EVENT_TIMEOUT, default=10s"`
}

type PresenceConfig struct {
	Workers int `env:"PRESENCE_WORKERS, default=4"`
}

// IsDevelopment reports whether the process runs with development defaults
// (pretty logs, non-Secure cookies).
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadWith reads configuration through an arbitrary lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMongo, StoreMemory, c.StoreDriver)
	}
	if c.Auth0.Enabled() && c.Auth0.StateSecret == "" {
		return fmt.Errorf("AUTH0_STATE_SECRET is required when AUTH0_DOMAIN is set")
	}
	return nil
}
