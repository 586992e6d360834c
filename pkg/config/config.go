package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Abraxas-365/tenantry/pkg/errx"
)

// Config is the full application configuration, built once at startup.
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Keys     KeysConfig
	Tokens   TokensConfig
	OAuth    OAuthConfig
	Billing  BillingConfig
	Razorpay RazorpayConfig
	Tenant   TenantConfig
	Jobx     JobxConfig
	Notifx   NotifxConfig
}

type ServerConfig struct {
	Port          string
	Version       string
	CORSOrigins   string
	PublicBaseURL string
	BodyLimit     int
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

// DSN returns the lib/pq connection string.
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

type StorageConfig struct {
	Mode      string // local | s3
	UploadDir string
	Bucket    string
	Region    string
}

type KeysConfig struct {
	Path            string
	RSABits         int
	Algorithm       string
	RefreshInterval time.Duration
	LockTTL         time.Duration
}

type TokensConfig struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	IDTokenTTL time.Duration
}

type OAuthConfig struct {
	StateStore       string // redis | memory
	PendingTTL       time.Duration
	CodeTTL          time.Duration
	ExpiredRetention time.Duration
	CodeLength       int
	FirstPartyClient string
}

type BillingConfig struct {
	TaxRate        float64
	PriceTolerance float64
	Currency       string
	FreePlanQueue  string
	InvoiceDir     string
	WebhookDedupe  time.Duration
}

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

type TenantConfig struct {
	LinkTTL       time.Duration
	ActivationURL string
}

// Load reads .env.<APP_ENV> and .env (both optional) and builds the Config.
// Variables already present in the environment win over file values.
func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	for _, f := range []string{".env." + env, ".env"} {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, errx.Wrapf(err, errx.TypeInternal, "load %s", f)
			}
		}
	}

	cfg := &Config{
		Env: env,
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			Version:       getEnv("APP_VERSION", "dev"),
			CORSOrigins:   getEnv("CORS_ORIGINS", "*"),
			PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
			BodyLimit:     getEnvInt("BODY_LIMIT_BYTES", 4*1024*1024),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "tenantry"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Mode:      strings.ToLower(getEnv("STORAGE_MODE", "local")),
			UploadDir: getEnv("UPLOAD_DIR", "./data"),
			Bucket:    getEnv("AWS_BUCKET", ""),
			Region:    getEnv("AWS_REGION", "ap-south-1"),
		},
		Keys: KeysConfig{
			Path:            getEnv("KEYS_PATH", "keys/keys.json"),
			RSABits:         getEnvInt("KEYS_RSA_BITS", 2048),
			Algorithm:       getEnv("JWT_ALGORITHM", "RS256"),
			RefreshInterval: getEnvDuration("KEYS_REFRESH_INTERVAL", 30*time.Second),
			LockTTL:         getEnvDuration("KEYS_LOCK_TTL", 10*time.Second),
		},
		Tokens: TokensConfig{
			Issuer:     getEnv("TOKEN_ISSUER", "tenantry"),
			AccessTTL:  getEnvDuration("ACCESS_TOKEN_TTL", time.Hour),
			RefreshTTL: getEnvDuration("REFRESH_TOKEN_TTL", 15*24*time.Hour),
			IDTokenTTL: getEnvDuration("ID_TOKEN_TTL", time.Hour),
		},
		OAuth: OAuthConfig{
			StateStore:       strings.ToLower(getEnv("OAUTH_STATE_STORE", "redis")),
			PendingTTL:       getEnvDuration("OAUTH_PENDING_TTL", 59*time.Second),
			CodeTTL:          getEnvDuration("OAUTH_CODE_TTL", 5*time.Minute),
			ExpiredRetention: getEnvDuration("OAUTH_EXPIRED_RETENTION", 5*time.Minute),
			CodeLength:       getEnvInt("OAUTH_CODE_LENGTH", 32),
			FirstPartyClient: getEnv("OAUTH_FIRST_PARTY_CLIENT", ""),
		},
		Billing: BillingConfig{
			TaxRate:        getEnvFloat("BILLING_TAX_RATE", 0.18),
			PriceTolerance: getEnvFloat("BILLING_PRICE_TOLERANCE", 1.0),
			Currency:       getEnv("BILLING_CURRENCY", "INR"),
			FreePlanQueue:  getEnv("BILLING_FREE_PLAN_QUEUE", "billing"),
			InvoiceDir:     getEnv("BILLING_INVOICE_DIR", "invoices"),
			WebhookDedupe:  getEnvDuration("BILLING_WEBHOOK_DEDUPE_TTL", 72*time.Hour),
		},
		Razorpay: RazorpayConfig{
			KeyID:         getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:     getEnv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
		},
		Tenant: TenantConfig{
			LinkTTL:       getEnvDuration("TENANT_LINK_TTL", 24*time.Hour),
			ActivationURL: getEnv("TENANT_ACTIVATION_URL", "http://localhost:3000/activate"),
		},
		Jobx:   loadJobxConfig(),
		Notifx: loadNotifxConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// Validate rejects configurations the service must not start with.
func (c *Config) Validate() error {
	fields := errx.FieldErrors{}
	if c.Keys.Algorithm != "RS256" {
		fields.Add("JWT_ALGORITHM", fmt.Sprintf("unsupported algorithm %q, only RS256 is allowed", c.Keys.Algorithm))
	}
	if c.Keys.RSABits < 2048 {
		fields.Add("KEYS_RSA_BITS", "must be at least 2048")
	}
	if c.OAuth.CodeLength < 16 {
		fields.Add("OAUTH_CODE_LENGTH", "must be at least 16")
	}
	if c.Storage.Mode == "s3" && c.Storage.Bucket == "" {
		fields.Add("AWS_BUCKET", "required when STORAGE_MODE=s3")
	}
	if c.IsProduction() && c.Razorpay.WebhookSecret == "" {
		fields.Add("RAZORPAY_WEBHOOK_SECRET", "required in production")
	}
	if err := fields.Err("invalid configuration"); err != nil {
		return err
	}
	return nil
}

// ============================================================================
// Env helpers
// ============================================================================

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
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

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Plain integers are seconds.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func getEnvStringSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
