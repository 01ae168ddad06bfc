package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverMemory = "memory"
	StoreDriverRedis  = "redis"
)

type Config struct {
	Env      string
	Server   ServerConfig
	Store    StoreConfig
	Redis    RedisConfig
	Matching MatchingConfig
	Billing  BillingConfig
	JWT      JWTConfig
	Log      LogConfig
	Kafka    KafkaConfig
	CORS     CORSConfig
}

type ServerConfig struct {
	GRpcPort        int
	HTTPPort        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	Driver string
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	SessionTTL   time.Duration
}

type MatchingConfig struct {
	// AssumedAverageSessionMinutes feeds the queue wait estimate only.
	AssumedAverageSessionMinutes int
	DefaultCapacity              int
	QueueEntryTTL                time.Duration
	ResolutionTTL                time.Duration
	ProcessInterval              time.Duration
}

type BillingConfig struct {
	TickInterval            time.Duration
	TickTimeout             time.Duration
	MinStartBalanceCents    int64
	MaxSessionDuration      time.Duration
	TransactionHistoryLimit int
}

type KafkaConfig struct {
	Brokers              []string
	ProducerRetryMax     int
	ProducerRequiredAcks int
	Enabled              bool
	ConsumerGroupID      string
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type LogConfig struct {
	Level    string
	Mode     string
	Encoding string
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			GRpcPort:        getEnvAsInt("SERVER_GRPC_PORT", 50057),
			HTTPPort:        getEnvAsInt("SERVER_HTTP_PORT", 8087),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", StoreDriverRedis),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			SessionTTL:   getEnvAsDuration("REDIS_SESSION_TTL", 72*time.Hour),
		},
		Matching: MatchingConfig{
			AssumedAverageSessionMinutes: getEnvAsInt("MATCHING_ASSUMED_AVERAGE_SESSION_MINUTES", 10),
			DefaultCapacity:              getEnvAsInt("MATCHING_DEFAULT_CAPACITY", 1),
			QueueEntryTTL:                getEnvAsDuration("MATCHING_QUEUE_ENTRY_TTL", 30*time.Minute),
			ResolutionTTL:                getEnvAsDuration("MATCHING_RESOLUTION_TTL", time.Hour),
			ProcessInterval:              getEnvAsDuration("MATCHING_PROCESS_INTERVAL", 5*time.Second),
		},
		Billing: BillingConfig{
			TickInterval:            getEnvAsDuration("BILLING_TICK_INTERVAL", time.Minute),
			TickTimeout:             getEnvAsDuration("BILLING_TICK_TIMEOUT", 5*time.Second),
			MinStartBalanceCents:    int64(getEnvAsInt("BILLING_MIN_START_BALANCE_CENTS", 500)),
			MaxSessionDuration:      getEnvAsDuration("BILLING_MAX_SESSION_DURATION", 0),
			TransactionHistoryLimit: getEnvAsInt("BILLING_TRANSACTION_HISTORY_LIMIT", 50),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "jwt-secret"),
			Expiry: getEnvAsDuration("JWT_EXPIRY", 4*time.Hour),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Mode:     getEnv("LOG_MODE", "development"),
			Encoding: getEnv("LOG_ENCODING", "console"),
		},
		Kafka: KafkaConfig{
			Brokers:              getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ProducerRetryMax:     getEnvAsInt("KAFKA_PRODUCER_RETRY_MAX", 3),
			ProducerRequiredAcks: getEnvAsInt("KAFKA_PRODUCER_REQUIRED_ACKS", 1),
			Enabled:              getEnvAsBool("KAFKA_ENABLED", true),
			ConsumerGroupID:      getEnv("KAFKA_CONSUMER_GROUP_ID", "consultroom-service"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.GRpcPort <= 0 || c.Server.GRpcPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRpcPort)
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.HTTPPort)
	}

	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	if c.Matching.AssumedAverageSessionMinutes <= 0 {
		return fmt.Errorf("assumed average session minutes must be positive")
	}

	if c.Matching.DefaultCapacity < 1 {
		return fmt.Errorf("default capacity must be at least 1")
	}

	if c.Matching.ProcessInterval <= 0 {
		return fmt.Errorf("matching process interval must be positive")
	}

	if c.Billing.TickInterval <= 0 {
		return fmt.Errorf("billing tick interval must be positive")
	}

	if c.Billing.TickTimeout <= 0 || c.Billing.TickTimeout >= c.Billing.TickInterval {
		return fmt.Errorf("billing tick timeout must be positive and shorter than the tick interval")
	}

	if c.Billing.MinStartBalanceCents < 0 {
		return fmt.Errorf("minimum start balance cannot be negative")
	}

	if c.Billing.MaxSessionDuration < 0 {
		return fmt.Errorf("max session duration cannot be negative")
	}

	if c.JWT.Secret == "" || c.JWT.Secret == "jwt-secret" {
		if c.Env == "production" {
			return fmt.Errorf("JWT secret must be set in production")
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	// Split by comma
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
