package config

import (
	"os"
	"strconv"
)

// Config carries everything the platform reads from the environment.
// A .env file is loaded by main before Load runs.
type Config struct {
	Port string

	// Global Catalog (MySQL) connectivity.
	CatalogHost     string
	CatalogPort     string
	CatalogUser     string
	CatalogPassword string
	CatalogName     string

	// Tenant partitions.
	TenantDBDir      string
	TenantSchemaFile string

	// Viewer resolution.
	JWTKeyFile    string
	BaseHostname  string
	AdminHostname string

	// Bench/test reset seam.
	InitializeScript string

	LogLevel       string
	LogDevelopment bool

	// Operator reconciliation job.
	SnapshotIntervalMinutes int
}

func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func Load() *Config {
	return &Config{
		Port:                    getEnv("PORT", "3000"),
		CatalogHost:             getEnv("ARENA_DB_HOST", "127.0.0.1"),
		CatalogPort:             getEnv("ARENA_DB_PORT", "3306"),
		CatalogUser:             getEnv("ARENA_DB_USER", "arena"),
		CatalogPassword:         getEnv("ARENA_DB_PASSWORD", "arena"),
		CatalogName:             getEnv("ARENA_DB_NAME", "arena_catalog"),
		TenantDBDir:             getEnv("ARENA_TENANT_DB_DIR", "../tenant_db"),
		TenantSchemaFile:        getEnv("ARENA_TENANT_SCHEMA_FILE", "./sql/tenant_schema.sql"),
		JWTKeyFile:              getEnv("ARENA_JWT_KEY_FILE", "./public.pem"),
		BaseHostname:            getEnv("ARENA_BASE_HOSTNAME", ".t.arena.dev"),
		AdminHostname:           getEnv("ARENA_ADMIN_HOSTNAME", "admin.t.arena.dev"),
		InitializeScript:        getEnv("ARENA_INITIALIZE_SCRIPT", "../sql/init.sh"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogDevelopment:          getEnv("LOG_DEV", "") == "true",
		SnapshotIntervalMinutes: getEnvInt("ARENA_SNAPSHOT_INTERVAL_MIN", 60),
	}
}
