package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Outbox   OutboxConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SeedDemo bool
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	Channel  string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// LoadEnv loads the nearest .env file, walking up a couple of levels so
// binaries under cmd/ find the repo root file.
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Warning: cannot determine working directory: %v", err)
		return
	}

	possiblePaths := []string{
		filepath.Join(wd, ".env"),
		filepath.Join(wd, "..", ".env"),
		filepath.Join(wd, "..", "..", ".env"),
	}

	for _, envPath := range possiblePaths {
		if err := godotenv.Load(envPath); err == nil {
			log.Printf("Loaded environment variables from %s", envPath)
			return
		}
	}

	log.Println("No .env file found, relying on process environment")
}

func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "9000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Name:     getEnv("POSTGRES_DB", "tareeqk"),
			SeedDemo: getEnvBool("SEED_DEMO", false),
		},
		Auth: AuthConfig{
			JWTSecret: mustEnv("JWT_SECRET"),
			TokenTTL:  time.Duration(getEnvInt("TOKEN_TTL_HOURS", 20)) * time.Hour,
		},
		Redis: loadRedisConfig(),
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Topic:   getEnv("KAFKA_TOPIC", "towing.requests"),
		},
		Outbox: OutboxConfig{
			PollInterval: time.Duration(getEnvInt("OUTBOX_POLL_INTERVAL_MS", 500)) * time.Millisecond,
			BatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 20),
			MaxAttempts:  getEnvInt("OUTBOX_MAX_ATTEMPTS", 5),
		},
	}

	validate(cfg)
	return cfg
}

func loadRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
		Channel:  getEnv("REDIS_CHANNEL", "towing-requests"),
	}
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

func validate(cfg *Config) {
	if cfg.Outbox.BatchSize <= 0 {
		panic("OUTBOX_BATCH_SIZE must be > 0")
	}
	if cfg.Outbox.PollInterval <= 0 {
		panic("OUTBOX_POLL_INTERVAL_MS must be > 0")
	}
	if cfg.Outbox.MaxAttempts <= 0 {
		panic("OUTBOX_MAX_ATTEMPTS must be > 0")
	}
	if cfg.Auth.TokenTTL <= 0 {
		panic("TOKEN_TTL_HOURS must be > 0")
	}
}

func mustEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("missing required env var: %s", key))
	}
	return val
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid int for env %s: %s", key, v))
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(fmt.Sprintf("invalid bool for env %s: %s", key, v))
	}
	return b
}
