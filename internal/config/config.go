package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string
	AppPort    string
	AppEnv     string

	JWTSecret         string
	InternalSecretKey string
	CORSOrigin        string

	// Optional integrations, disabled when empty.
	RedisAddr       string
	CatalogCacheTTL time.Duration
	AMQPURL         string
	AMQPExchange    string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:            os.Getenv("DB_HOST"),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            os.Getenv("DB_NAME"),
		DBPort:            os.Getenv("DB_PORT"),
		DBSSLMode:         getEnv("DB_SSLMODE", "disable"),
		AppPort:           getEnv("APP_PORT", "8080"),
		AppEnv:            os.Getenv("APP_ENV"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		InternalSecretKey: os.Getenv("INTERNAL_SECRET_KEY"),
		CORSOrigin:        getEnv("CORS_ORIGIN", "http://localhost:3000"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		CatalogCacheTTL:   getDuration("CATALOG_CACHE_TTL", 30*time.Second),
		AMQPURL:           os.Getenv("AMQP_URL"),
		AMQPExchange:      getEnv("AMQP_EXCHANGE", "storefront.events"),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
