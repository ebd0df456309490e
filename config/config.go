package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Server      ServerConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Offer       OfferConfig
	Sweeper     SweeperConfig
	Reservation ReservationConfig
	Cache       CacheConfig
	Log         LogConfig
}

type ServerConfig struct {
	HTTPPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

type KafkaConfig struct {
	Brokers              []string
	ProducerRetryMax     int
	ProducerRequiredAcks int
	ConsumerGroupID      string
}

type OfferConfig struct {
	Window      time.Duration
	TokenSecret string
}

type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

type ReservationConfig struct {
	MirrorDelay        time.Duration
	MirrorPollInterval time.Duration
	MirrorBatchSize    int
}

type CacheConfig struct {
	AvailabilityTTL     time.Duration
	EventTTL            time.Duration
	SearchTTL           time.Duration
	CategoryTTL         time.Duration
	PositionTTL         time.Duration
	OpTimeout           time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			HTTPPort:     getEnvAsInt("SERVER_HTTP_PORT", 8084),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGO_DATABASE", "ticketbottle"),
			ConnectTimeout: getEnvAsDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Kafka: KafkaConfig{
			Brokers:              getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ProducerRetryMax:     getEnvAsInt("KAFKA_PRODUCER_RETRY_MAX", 3),
			ProducerRequiredAcks: getEnvAsInt("KAFKA_PRODUCER_REQUIRED_ACKS", 1),
			ConsumerGroupID:      getEnv("KAFKA_CONSUMER_GROUP_ID", "allocation-service"),
		},
		Offer: OfferConfig{
			Window:      getEnvAsDuration("OFFER_WINDOW", 15*time.Minute),
			TokenSecret: getEnv("OFFER_TOKEN_SECRET", "offer-token-secret"),
		},
		Sweeper: SweeperConfig{
			Interval:  getEnvAsDuration("SWEEPER_INTERVAL", 1*time.Minute),
			BatchSize: getEnvAsInt("SWEEPER_BATCH_SIZE", 100),
		},
		Reservation: ReservationConfig{
			MirrorDelay:        getEnvAsDuration("RESERVATION_MIRROR_DELAY", 30*time.Second),
			MirrorPollInterval: getEnvAsDuration("RESERVATION_MIRROR_POLL_INTERVAL", 5*time.Second),
			MirrorBatchSize:    getEnvAsInt("RESERVATION_MIRROR_BATCH_SIZE", 50),
		},
		Cache: CacheConfig{
			AvailabilityTTL:     getEnvAsDuration("CACHE_AVAILABILITY_TTL", 5*time.Second),
			EventTTL:            getEnvAsDuration("CACHE_EVENT_TTL", 5*time.Minute),
			SearchTTL:           getEnvAsDuration("CACHE_SEARCH_TTL", 2*time.Minute),
			CategoryTTL:         getEnvAsDuration("CACHE_CATEGORY_TTL", 30*time.Minute),
			PositionTTL:         getEnvAsDuration("CACHE_POSITION_TTL", 3*time.Second),
			OpTimeout:           getEnvAsDuration("CACHE_OP_TIMEOUT", 2*time.Second),
			BreakerMaxFailures:  getEnvAsInt("CACHE_BREAKER_MAX_FAILURES", 5),
			BreakerResetTimeout: getEnvAsDuration("CACHE_BREAKER_RESET_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.HTTPPort)
	}

	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo URI is required")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Offer.Window <= 0 {
		return fmt.Errorf("offer window must be positive")
	}

	if c.Offer.TokenSecret == "" || c.Offer.TokenSecret == "offer-token-secret" {
		if c.Env == "production" {
			return fmt.Errorf("offer token secret must be set in production")
		}
	}

	if c.Cache.BreakerMaxFailures <= 0 {
		return fmt.Errorf("breaker max failures must be positive")
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
