package config

import (
	"os"
	"strconv"
)

// Storage backends accepted by STORAGE_BACKEND
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendJSONFile = "jsonfile"
)

type Config struct {
	Port           string
	Environment    string
	StorageBackend string
	CORSOrigins    string
	// Postgres
	DatabaseURL string
	TablePrefix string
	// Badger (empty path = in-memory)
	BadgerPath string
	// JSON file store
	JSONStorePath string
	// Logging
	LogDir      string
	LogMaxFiles int
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    env,
		StorageBackend: getEnv("STORAGE_BACKEND", BackendMemory),
		CORSOrigins:    getEnv("CORS_ORIGINS", "http://localhost:3000"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		TablePrefix:    getTablePrefix(env),
		BadgerPath:     getEnv("BADGER_PATH", ""),
		JSONStorePath:  getEnv("JSON_STORE_PATH", "data/tree.json"),
		LogDir:         getEnv("LOG_DIR", ""),
		LogMaxFiles:    getEnvInt("LOG_MAX_FILES", 10),
	}
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
