package config

import (
	"os"
	"strconv"
	"time"
)

// Product describes the certificate being sold. A single product is carried
// through the whole checkout; the catalog is deliberately one entry deep.
type Product struct {
	Code  string
	Name  string
	Kind  string
	Price float64
}

// Identity holds the verification gate knobs.
type Identity struct {
	// MinQuerySpacing is the minimum gap between biometric lookups.
	MinQuerySpacing time.Duration
	// MaxDistinctIDs is the per-session cap on distinct national IDs queried;
	// crossing it blocks the gate for the rest of the session.
	MaxDistinctIDs int
}

// Payment holds the payment session knobs.
type Payment struct {
	// GraceDelay is the wait after charge creation before the first status
	// check, giving the provider time to settle the charge.
	GraceDelay   time.Duration
	PollInterval time.Duration
	// MaxElapsed caps the polling loop; reaching it yields TimedOut.
	MaxElapsed time.Duration
}

// Snapshot holds persistence gateway settings.
type Snapshot struct {
	// TTL after which a persisted checkout is treated as absent.
	TTL time.Duration
	// Secret seeds the field cipher key. Derived from BaseSecret+Host when no
	// explicit secret is set — a static, guessable key; deployments wanting
	// real confidentiality must set CHECKOUT_SNAPSHOT_SECRET.
	Secret string
	// RedisURL and PostgresDSN select the backing store; both empty means
	// in-memory.
	RedisURL    string
	PostgresDSN string
}

// Intake points at the document-upload portal that takes over after payment.
type Intake struct {
	// BaseURL is the portal root; upload links are minted under it.
	BaseURL string
	// SigningKey signs the short-lived upload link tokens.
	SigningKey string
}

// RedisConfig tunes the shared redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Config is built once in main and passed by dependency injection; nothing
// reads the environment after startup.
type Config struct {
	Addr          string
	Host          string
	JWTSigningKey string
	Product       Product
	Identity      Identity
	Payment       Payment
	Snapshot      Snapshot
	Intake        Intake
	Redis         RedisConfig
}

const baseSecret = "certflow-checkout-2024"

// FromEnv builds the Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("CHECKOUT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	host := os.Getenv("CHECKOUT_HOST")
	if host == "" {
		host, _ = os.Hostname()
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	secret := os.Getenv("CHECKOUT_SNAPSHOT_SECRET")
	if secret == "" {
		// Matches the original deployment: key material derived from the host
		// name, which is not a secret. Kept for restart-survivable snapshots.
		secret = baseSecret + "-" + host
	}

	return Config{
		Addr:          addr,
		Host:          host,
		JWTSigningKey: jwtSigningKey,
		Product: Product{
			Code:  "ecpf-a1",
			Name:  "e-CPF A1 (1 year)",
			Kind:  "e-CPF",
			Price: envFloat("CHECKOUT_PRODUCT_PRICE", 109.00),
		},
		Identity: Identity{
			MinQuerySpacing: envDuration("IDENTITY_QUERY_SPACING", 2*time.Second),
			MaxDistinctIDs:  envInt("IDENTITY_MAX_DISTINCT_IDS", 5),
		},
		Payment: Payment{
			GraceDelay:   envDuration("PAYMENT_GRACE_DELAY", 5*time.Second),
			PollInterval: envDuration("PAYMENT_POLL_INTERVAL", 3*time.Second),
			MaxElapsed:   envDuration("PAYMENT_MAX_ELAPSED", 30*time.Minute),
		},
		Snapshot: Snapshot{
			TTL:         envDuration("CHECKOUT_SNAPSHOT_TTL", 24*time.Hour),
			Secret:      secret,
			RedisURL:    os.Getenv("CHECKOUT_REDIS_URL"),
			PostgresDSN: os.Getenv("CHECKOUT_POSTGRES_DSN"),
		},
		Intake: Intake{
			BaseURL:    envString("CHECKOUT_INTAKE_URL", "https://upload.certflow.example"),
			SigningKey: envString("CHECKOUT_INTAKE_KEY", jwtSigningKey),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("CHECKOUT_REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
