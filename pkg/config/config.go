package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/clavehr/identity/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("CONFIG")

var (
	CodeMissingSigningKey = ErrRegistry.Register("MISSING_SIGNING_KEY", errx.TypeInternal, http.StatusInternalServerError, "JWT signing key is not configured")
	CodeProviderSecrets   = ErrRegistry.Register("PROVIDER_SECRETS", errx.TypeInternal, http.StatusInternalServerError, "OAuth provider is enabled but has no credentials")
)

// Config is the full application configuration, loaded once at startup.
// Configuration errors are fatal: Validate failing must prevent the process
// from accepting traffic.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	OAuth     OAuthConfig
	MagicLink MagicLinkConfig
	APIKey    APIKeyConfig
	Notifx    NotifxConfig
	Cleanup   CleanupConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        string
	BaseURL     string
	FrontendURL string
	CORSOrigins string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// OAuthProviderConfig holds the credentials of one federated provider.
type OAuthProviderConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (p OAuthProviderConfig) HasCredentials() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type OAuthConfig struct {
	Google    OAuthProviderConfig
	Microsoft OAuthProviderConfig
	LinkedIn  OAuthProviderConfig

	// StateManager selects where CSRF states live: "redis" or "memory".
	StateManager string
	StateTTL     time.Duration

	// HTTPTimeout bounds every call to a provider endpoint.
	HTTPTimeout time.Duration
	MaxRetries  int
}

type MagicLinkConfig struct {
	TTL      time.Duration
	LinkPath string // appended to App.FrontendURL
	FromName string
}

type APIKeyConfig struct {
	MaxKeysPerUser int
}

type NotifxConfig struct {
	Provider    string // "ses" or "console"
	FromAddress string
	FromName    string
	AWSRegion   string
}

type CleanupConfig struct {
	Interval time.Duration
}

// Load reads configuration from the environment with development defaults.
func Load() *Config {
	return &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "clavehr-identity"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("PORT", "8080"),
			BaseURL:     getEnv("API_BASE_URL", "http://localhost:8080"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
			CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "clavehr_identity"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", ""),
			Issuer:          getEnv("JWT_ISSUER", "clavehr-identity"),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TTL", time.Hour),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		OAuth: OAuthConfig{
			Google: OAuthProviderConfig{
				Enabled:      getEnvBool("OAUTH_GOOGLE_ENABLED", false),
				ClientID:     getEnv("OAUTH_GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("OAUTH_GOOGLE_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("OAUTH_GOOGLE_REDIRECT_URL", ""),
			},
			Microsoft: OAuthProviderConfig{
				Enabled:      getEnvBool("OAUTH_MICROSOFT_ENABLED", false),
				ClientID:     getEnv("OAUTH_MICROSOFT_CLIENT_ID", ""),
				ClientSecret: getEnv("OAUTH_MICROSOFT_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("OAUTH_MICROSOFT_REDIRECT_URL", ""),
			},
			LinkedIn: OAuthProviderConfig{
				Enabled:      getEnvBool("OAUTH_LINKEDIN_ENABLED", false),
				ClientID:     getEnv("OAUTH_LINKEDIN_CLIENT_ID", ""),
				ClientSecret: getEnv("OAUTH_LINKEDIN_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("OAUTH_LINKEDIN_REDIRECT_URL", ""),
			},
			StateManager: getEnv("OAUTH_STATE_MANAGER", "memory"),
			StateTTL:     getEnvDuration("OAUTH_STATE_TTL", 10*time.Minute),
			HTTPTimeout:  getEnvDuration("OAUTH_HTTP_TIMEOUT", 10*time.Second),
			MaxRetries:   getEnvInt("OAUTH_MAX_RETRIES", 2),
		},
		MagicLink: MagicLinkConfig{
			TTL:      getEnvDuration("MAGIC_LINK_TTL", 30*time.Minute),
			LinkPath: getEnv("MAGIC_LINK_PATH", "/auth/magic-link"),
			FromName: getEnv("MAGIC_LINK_FROM_NAME", "ClaveHR"),
		},
		APIKey: APIKeyConfig{
			MaxKeysPerUser: getEnvInt("API_KEY_MAX_PER_USER", 5),
		},
		Notifx: NotifxConfig{
			Provider:    getEnv("NOTIFX_PROVIDER", "console"),
			FromAddress: getEnv("NOTIFX_FROM_ADDRESS", "noreply@clavehr.com"),
			FromName:    getEnv("NOTIFX_FROM_NAME", "ClaveHR"),
			AWSRegion:   getEnv("NOTIFX_AWS_REGION", getEnv("AWS_REGION", "us-east-1")),
		},
		Cleanup: CleanupConfig{
			Interval: getEnvDuration("TOKEN_CLEANUP_INTERVAL", time.Hour),
		},
	}
}

// Validate checks the invariants that must hold before the server may accept
// traffic. It returns the first fatal misconfiguration found.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return ErrRegistry.New(CodeMissingSigningKey)
	}
	for name, p := range map[string]OAuthProviderConfig{
		"google":    c.OAuth.Google,
		"microsoft": c.OAuth.Microsoft,
		"linkedin":  c.OAuth.LinkedIn,
	} {
		if p.Enabled && !p.HasCredentials() {
			return ErrRegistry.New(CodeProviderSecrets).WithDetail("provider", name)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
