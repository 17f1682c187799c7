package config

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultAppName         = "TOP 🔥 Users"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultLeaderboardURL  = "https://api.fifire.xyz/v1/user/top"
	defaultPageSize        = 8
	defaultSnapshotCount   = 10
	defaultAuthRateLimit   = 5
	defaultHTTPTimeout     = 10 * time.Second
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 10 * time.Minute
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"

	// BackendMemory keeps credentials in process memory. Development only.
	BackendMemory = "memory"
	// BackendRedis keeps credentials in Redis.
	BackendRedis = "redis"
	// BackendPostgres keeps credentials in PostgreSQL.
	BackendPostgres = "postgres"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName string
	AppEnv  string
	Port    string
	// PublicURL is the externally reachable base URL used in frame button targets.
	PublicURL string
	ShareURL  string
	// AppAuthURL is the page the user opens to approve the delegated key.
	AppAuthURL string
	LogLevel   string

	AppPrivateKey      string
	AuthServiceURL     string
	AuthServiceAddress string
	SaveEndpointURL    string
	FrameStateSecret   string

	LeaderboardURL      string
	LeaderboardPageSize int
	SnapshotCount       int

	StoreBackend      string
	RedisURL          string
	DatabaseURL       string
	CredentialSealKey []byte
	CredentialTTL     time.Duration

	AuthRateLimit  int
	HTTPTimeout    time.Duration
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
}

// Load reads configuration values from the environment (and an optional .env file)
// and populates a Config instance.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("LEADERBOARD_URL", defaultLeaderboardURL)
	v.SetDefault("LEADERBOARD_PAGE_SIZE", defaultPageSize)
	v.SetDefault("SNAPSHOT_COUNT", defaultSnapshotCount)
	v.SetDefault("AUTH_RATE_LIMIT", defaultAuthRateLimit)
	v.SetDefault("HTTP_TIMEOUT", defaultHTTPTimeout.String())
	v.SetDefault("CREDENTIAL_TTL", "0s")

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		AppName:             v.GetString("APP_NAME"),
		AppEnv:              v.GetString("APP_ENV"),
		Port:                v.GetString("PORT"),
		PublicURL:           strings.TrimRight(v.GetString("PUBLIC_URL"), "/"),
		ShareURL:            v.GetString("SHARE_URL"),
		AppAuthURL:          v.GetString("APP_AUTH_URL"),
		LogLevel:            strings.ToLower(v.GetString("LOG_LEVEL")),
		AppPrivateKey:       v.GetString("APP_PRIVATE_KEY"),
		AuthServiceURL:      strings.TrimRight(v.GetString("AUTH_SERVICE_URL"), "/"),
		AuthServiceAddress:  v.GetString("AUTH_SERVICE_ADDRESS"),
		SaveEndpointURL:     v.GetString("SAVE_ENDPOINT_URL"),
		FrameStateSecret:    v.GetString("FRAME_STATE_SECRET"),
		LeaderboardURL:      v.GetString("LEADERBOARD_URL"),
		LeaderboardPageSize: v.GetInt("LEADERBOARD_PAGE_SIZE"),
		SnapshotCount:       v.GetInt("SNAPSHOT_COUNT"),
		StoreBackend:        strings.ToLower(v.GetString("STORE_BACKEND")),
		RedisURL:            v.GetString("REDIS_URL"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		AuthRateLimit:       v.GetInt("AUTH_RATE_LIMIT"),
		ShutdownPeriod:      defaultShutdownDelay,
		IdempotencyTTL:      defaultIdempotencyTTL,
	}

	var err error
	if cfg.HTTPTimeout, err = time.ParseDuration(v.GetString("HTTP_TIMEOUT")); err != nil {
		return Config{}, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	if cfg.CredentialTTL, err = time.ParseDuration(v.GetString("CREDENTIAL_TTL")); err != nil {
		return Config{}, fmt.Errorf("invalid CREDENTIAL_TTL: %w", err)
	}

	if cfg.ShutdownPeriod, err = durationFrom(v, shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFrom(v, idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}

	if key := v.GetString("CREDENTIAL_SEAL_KEY"); key != "" {
		raw, err := hex.DecodeString(strings.TrimPrefix(key, "0x"))
		if err != nil {
			return Config{}, fmt.Errorf("invalid CREDENTIAL_SEAL_KEY: %w", err)
		}
		if len(raw) != 32 {
			return Config{}, fmt.Errorf("CREDENTIAL_SEAL_KEY must be 32 bytes, got %d", len(raw))
		}
		cfg.CredentialSealKey = raw
	}

	if cfg.StoreBackend == "" {
		switch {
		case cfg.RedisURL != "":
			cfg.StoreBackend = BackendRedis
		case cfg.DatabaseURL != "":
			cfg.StoreBackend = BackendPostgres
		default:
			cfg.StoreBackend = BackendMemory
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AppPrivateKey == "" {
		return fmt.Errorf("APP_PRIVATE_KEY must be set")
	}
	if c.AuthServiceURL == "" {
		return fmt.Errorf("AUTH_SERVICE_URL must be set")
	}
	if c.LeaderboardPageSize <= 0 {
		return fmt.Errorf("LEADERBOARD_PAGE_SIZE must be positive")
	}
	switch c.StoreBackend {
	case BackendMemory:
		if !c.IsDev() {
			return fmt.Errorf("STORE_BACKEND=memory is not allowed when APP_ENV=%s", c.AppEnv)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.FrameStateSecret == "" && !c.IsDev() {
		return fmt.Errorf("FRAME_STATE_SECRET must be set")
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func durationFrom(v *viper.Viper, secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if s := v.GetString(secondsKey); s != "" {
		seconds, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if s := v.GetString(durationKey); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}
