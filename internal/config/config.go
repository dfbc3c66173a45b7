package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Telemetry TelemetryConfig

	// CacheBackend selects the read-through cache store: memory or redis.
	CacheBackend string
	// TallyStore selects where actor checkpoints live: db or badger.
	TallyStore string
	BadgerDir  string

	VoterKeySalt       string
	CORSAllowedOrigins []string

	Moderation ModerationConfig
	RateLimit  RateLimitConfig
	Rotation   RotationConfig
	SeedOnBoot bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// TelemetryConfig feeds logging and the OTLP exporters.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelEndpoint  string
	OtelProtocol  string
	SamplingRatio float64
}

type ModerationConfig struct {
	Endpoint   string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

type RateLimitConfig struct {
	Enabled    bool
	VoterRate  float64
	VoterBurst int
}

type RotationConfig struct {
	JobTimeout    time.Duration
	LockTTL       time.Duration
	CatchUpOnBoot bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "worldpulse"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "worldpulse"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "worldpulse.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
			OtelProtocol:  otlpProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		CacheBackend: strings.ToLower(getenv("CACHE_BACKEND", "memory")),
		TallyStore:   strings.ToLower(getenv("TALLY_STORE", "db")),
		BadgerDir:    getenv("BADGER_DIR", "data/tally"),

		VoterKeySalt:       getenv("VOTER_KEY_SALT", ""),
		CORSAllowedOrigins: getenvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		Moderation: ModerationConfig{
			Endpoint:   strings.TrimSpace(getenv("MODERATION_ENDPOINT", "")),
			Token:      strings.TrimSpace(getenv("MODERATION_TOKEN", "")),
			Timeout:    getenvDuration("MODERATION_TIMEOUT", 5*time.Second),
			MaxRetries: getenvInt("MODERATION_MAX_RETRIES", 3),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getenvBool("RATE_LIMIT_ENABLED", false),
			VoterRate:  getenvFloat("RATE_LIMIT_VOTER_RATE", 1),
			VoterBurst: getenvInt("RATE_LIMIT_VOTER_BURST", 10),
		},
		Rotation: RotationConfig{
			JobTimeout:    getenvDuration("ROTATION_JOB_TIMEOUT", 30*time.Second),
			LockTTL:       getenvDuration("ROTATION_LOCK_TTL", time.Minute),
			CatchUpOnBoot: getenvBool("ROTATION_CATCH_UP_ON_BOOT", true),
		},
		SeedOnBoot: getenvBool("SEED_ON_BOOT", true),
	}

	if cfg.VoterKeySalt == "" && cfg.IsProduction() {
		log.Println("config: VOTER_KEY_SALT is empty, voter keys are derivable from client addresses")
	}

	return cfg
}

// otlpProtocol prefers the traces-specific protocol variable over the shared one.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return strings.ToLower(strings.TrimSpace(protocol))
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %d", key, value, def)
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvList(key string, def []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
