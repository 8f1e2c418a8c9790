package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration, grouped by concern.
type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Log      LogConfig

	DefaultLanguage string
	AuthzCacheTTL   time.Duration
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig is empty when the service runs on in-memory stores.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers           []string
	NotificationTopic string
	ClientID          string
	// DeliveryTimeout caps how long a produced record may wait for an ack,
	// retries included.
	DeliveryTimeout time.Duration
}

type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
	TokenTTL      time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            getEnv("REGFLOW_ADDR", ":8080"),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLife:  getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           splitList(os.Getenv("KAFKA_BROKERS")),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "registration-notifications"),
			ClientID:          getEnv("KAFKA_CLIENT_ID", "regflow"),
			DeliveryTimeout:   getDuration("KAFKA_DELIVERY_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			// Development default; production deployments must override it.
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     getEnv("JWT_ISSUER", "regflow"),
			TokenTTL:      getDuration("JWT_TOKEN_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "en"),
		AuthzCacheTTL:   getDuration("AUTHZ_CACHE_TTL", time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
