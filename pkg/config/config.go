package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "RFLEX_DB_DSN"
	EnvDBHost = "RFLEX_DB_HOST"
	EnvDBUser = "RFLEX_DB_USER"
	EnvDBName = "RFLEX_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Signing      SigningConfig
	DeviceToken  DeviceTokenConfig
	Issuance     IssuanceConfig
	Validation   ValidationConfig
	RateLimit    RateLimitConfig
	Sweep        SweepConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RFLEX_APP_ENV" required:"true"`
	Port         string `envconfig:"RFLEX_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RFLEX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RFLEX_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"RFLEX_DB_DSN"`
	Driver string `envconfig:"RFLEX_DB_DRIVER" default:"mysql"`

	LegacyHost     string `envconfig:"RFLEX_DB_HOST"`
	LegacyPort     int    `envconfig:"RFLEX_DB_PORT" default:"3306"`
	LegacyUser     string `envconfig:"RFLEX_DB_USER"`
	LegacyPassword string `envconfig:"RFLEX_DB_PASSWORD"`
	LegacyName     string `envconfig:"RFLEX_DB_NAME"`

	MaxOpenConns    int           `envconfig:"RFLEX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RFLEX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RFLEX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RFLEX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RFLEX_REDIS_URL"`
	Address      string        `envconfig:"RFLEX_REDIS_ADDR"`
	Password     string        `envconfig:"RFLEX_REDIS_PASSWORD"`
	DB           int           `envconfig:"RFLEX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RFLEX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RFLEX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RFLEX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RFLEX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RFLEX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SigningConfig carries the ed25519 key material. The private seed lives only
// in the issuer's environment; validators run with the public key alone.
type SigningConfig struct {
	PrivateSeedB64 string `envconfig:"RFLEX_SIGNING_PRIVATE_SEED"`
	PublicKeyB64   string `envconfig:"RFLEX_SIGNING_PUBLIC_KEY"`
}

// PrivateKey decodes the configured seed into an ed25519 private key.
func (s SigningConfig) PrivateKey() (ed25519.PrivateKey, error) {
	if s.PrivateSeedB64 == "" {
		return nil, fmt.Errorf("signing private seed is not configured")
	}
	seed, err := base64.StdEncoding.DecodeString(s.PrivateSeedB64)
	if err != nil {
		return nil, fmt.Errorf("decoding signing seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// PublicKey decodes the configured verification key.
func (s SigningConfig) PublicKey() (ed25519.PublicKey, error) {
	if s.PublicKeyB64 == "" {
		return nil, fmt.Errorf("signing public key is not configured")
	}
	raw, err := base64.StdEncoding.DecodeString(s.PublicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decoding signing public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("signing public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

type DeviceTokenConfig struct {
	Secret     string `envconfig:"RFLEX_DEVICE_TOKEN_SECRET"`
	Issuer     string `envconfig:"RFLEX_DEVICE_TOKEN_ISSUER" default:"rflex-license-server"`
	TTLMinutes int    `envconfig:"RFLEX_DEVICE_TOKEN_TTL_MINUTES" default:"10080"`
}

// TTL returns the configured device token lifetime.
func (d DeviceTokenConfig) TTL() time.Duration {
	if d.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(d.TTLMinutes) * time.Minute
}

type IssuanceConfig struct {
	DefaultValidityDays int           `envconfig:"RFLEX_ISSUANCE_DEFAULT_VALIDITY_DAYS" default:"365"`
	IdempotencyTTL      time.Duration `envconfig:"RFLEX_ISSUANCE_IDEMPOTENCY_TTL" default:"24h"`
}

type ValidationConfig struct {
	GracePeriodHours int `envconfig:"RFLEX_VALIDATION_GRACE_PERIOD_HOURS" default:"72"`
}

// GracePeriod returns the offline tolerance window after the last successful
// validation.
func (v ValidationConfig) GracePeriod() time.Duration {
	if v.GracePeriodHours <= 0 {
		return 0
	}
	return time.Duration(v.GracePeriodHours) * time.Hour
}

type RateLimitConfig struct {
	ValidateWindow      time.Duration `envconfig:"RFLEX_RATE_LIMIT_VALIDATE_WINDOW" default:"1m"`
	ValidateIPLimit     int           `envconfig:"RFLEX_RATE_LIMIT_VALIDATE_IP_LIMIT" default:"120"`
	ValidateDeviceLimit int           `envconfig:"RFLEX_RATE_LIMIT_VALIDATE_DEVICE_LIMIT" default:"30"`
}

type SweepConfig struct {
	Interval         time.Duration `envconfig:"RFLEX_SWEEP_INTERVAL" default:"1h"`
	ExpiringSoonDays int           `envconfig:"RFLEX_SWEEP_EXPIRING_SOON_DAYS" default:"7"`
	LogRetentionDays int           `envconfig:"RFLEX_SWEEP_LOG_RETENTION_DAYS" default:"90"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RFLEX_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RFLEX_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	// go-sql-driver DSN: user:pass@tcp(host:port)/name?parseTime=true
	auth := url.QueryEscape(db.LegacyUser)
	if db.LegacyPassword != "" {
		auth = auth + ":" + url.QueryEscape(db.LegacyPassword)
	}
	db.DSN = fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC", auth, db.LegacyHost, db.LegacyPort, db.LegacyName)
	return nil
}
