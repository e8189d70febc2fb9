package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the loaded configuration
type Config struct {
	Port           string
	Env            string
	APIGatewayURL  string
	RequestTimeout time.Duration
	JWTSecret      string

	RedisURL   string
	AttemptTTL time.Duration

	KafkaBrokers string
	KafkaTopic   string

	PollBaseInterval time.Duration
	PollMaxInterval  time.Duration
	PollBudget       time.Duration
	PollFixed        bool
}

// Load reads configuration from the .env file and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Port:           getEnv("PORT", "8000"),
		Env:            getEnv("ENV", "development"),
		APIGatewayURL:  getEnv("API_GATEWAY_URL", ""),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 10*time.Second),
		JWTSecret:      getEnv("JWT_SECRET", ""),

		RedisURL:   os.Getenv("REDIS_URL"),
		AttemptTTL: getDuration("PAYMENT_ATTEMPT_TTL", 24*time.Hour),

		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_PAYMENT_TOPIC", "payment-events"),

		PollBaseInterval: getDuration("PAYMENT_POLL_INTERVAL", 5*time.Second),
		PollMaxInterval:  getDuration("PAYMENT_POLL_MAX_INTERVAL", 30*time.Second),
		PollBudget:       getDuration("PAYMENT_POLL_BUDGET", 3*time.Minute),
		PollFixed:        getBool("PAYMENT_POLL_FIXED", false),
	}
}

// Helper to get an environment variable or return a default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if fallback == "" {
		log.Fatalf("FATAL: Environment variable %s is not set.", key)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("invalid %s=%q, using %t", key, value, fallback)
		return fallback
	}
	return b
}
