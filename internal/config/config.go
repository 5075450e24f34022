package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// Config holds the broker's runtime configuration, assembled once at
// startup and threaded explicitly through every constructor.
type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	MongoURI       string
	RedisAddr      string
	SigningKey     []byte
	AllowedOrigins []string
	LogLevel       string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

// NewConfig validates and assembles a Config. It refuses to start if
// any required field is missing: the process must not boot without a
// database DSN or signing secret.
func NewConfig(serverAddr, databaseDSN, mongoURI, redisAddr, base64Secret string, allowedOrigins []string, logLevel string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if mongoURI == "" {
		return nil, fmt.Errorf("mongo URI cannot be empty")
	}
	if redisAddr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		MongoURI:       mongoURI,
		RedisAddr:      redisAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		LogLevel:       logLevel,
	}, nil
}

// FromEnv builds a Config from the environment: PORT, CORS_ORIGIN,
// DATABASE_URI, AUTH_SECRET, LOG_LEVEL, plus MONGO_URI and REDIS_ADDR
// for the room store and rate limiter backends.
func FromEnv() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	corsOrigin := os.Getenv("CORS_ORIGIN")
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	origins := strings.Split(corsOrigin, ",")

	return NewConfig(
		":"+port,
		os.Getenv("DATABASE_URI"),
		os.Getenv("MONGO_URI"),
		os.Getenv("REDIS_ADDR"),
		os.Getenv("AUTH_SECRET"),
		origins,
		os.Getenv("LOG_LEVEL"),
	)
}
