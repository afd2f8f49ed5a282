package config

import (
	"os"
	"strconv"
	"strings"
)

// Store backends accepted in STORE_TYPE.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds process configuration.
type Config struct {
	LogLevel  string
	LogFormat string

	StoreType     string
	SQLitePath    string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ParamsFile string

	OTelEnabled  bool
	OTelEndpoint string
	OTelInsecure bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	if logFormat == "" {
		logFormat = "text"
	}

	storeType := strings.ToLower(os.Getenv("STORE_TYPE"))
	if storeType == "" {
		storeType = StoreMemory
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "data/trustengine.db"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to local generic postgres
		dbURL = "postgres://trustengine@localhost:5432/trustengine?sslmode=disable"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			redisDB = n
		}
	}

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}

	return &Config{
		LogLevel:      logLevel,
		LogFormat:     logFormat,
		StoreType:     storeType,
		SQLitePath:    sqlitePath,
		DatabaseURL:   dbURL,
		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		ParamsFile:    os.Getenv("PARAMS_FILE"),
		OTelEnabled:   os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint:  otelEndpoint,
		OTelInsecure:  os.Getenv("OTEL_INSECURE") == "true",
	}
}
