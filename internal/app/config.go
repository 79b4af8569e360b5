package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIURL string // Base URL of the to-do API (default: http://localhost:8000/api)

	KeycloakURL      string        // Keycloak server URL (default: http://localhost:8000)
	KeycloakRealm    string        // Realm name (default: todo)
	KeycloakClientID string        // Public client id (default: todo-react)
	Scopes           []string      // Requested scopes (default: openid profile email)
	RedirectPort     int           // Loopback callback port, 0 picks a free one (default: 8765)
	LoginTimeout     time.Duration // How long login waits for the browser (default: 5m)
	VerifyTokens     bool          // Verify received tokens against the realm JWKS (default: false)
	OTPSecret        string        // Optional: TOTP secret for headless password logins

	DataDir       string // Where local state lives (default: $XDG_CONFIG_HOME/todo)
	StorageDriver string // sqlite, file or memory (default: sqlite)
	DatabaseFile  string // SQLite database (default: <data dir>/todo.db)
	StorageFile   string // JSON store for the file driver (default: <data dir>/storage.json)
	MasterKeyFile string // Key sealing the session record (default: <data dir>/master.key)

	HTTPTimeout  time.Duration // Per-request API timeout, 0 disables (default: 0)
	APIRateLimit float64       // Outgoing API requests per second, 0 disables (default: 0)
	APIRateBurst int           // Burst for the limiter (default: 1)
	AutoLogin    bool          // Start a login when the session can't be renewed (default: false)

	Env       string // Environment (dev, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: warn)
	LogFormat string // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	dataDir := getEnvOrDefault("TODO_DATA_DIR", defaultDataDir())

	return Config{
		APIURL: getEnvOrDefault("TODO_API_URL", "http://localhost:8000/api"),

		KeycloakURL:      getEnvOrDefault("KEYCLOAK_URL", "http://localhost:8000"),
		KeycloakRealm:    getEnvOrDefault("KEYCLOAK_REALM", "todo"),
		KeycloakClientID: getEnvOrDefault("KEYCLOAK_CLIENT_ID", "todo-react"),
		Scopes:           strings.Fields(getEnvOrDefault("KEYCLOAK_SCOPES", "openid profile email")),
		RedirectPort:     getEnvIntOrDefault("KEYCLOAK_REDIRECT_PORT", 8765),
		LoginTimeout:     getEnvDurationOrDefault("KEYCLOAK_LOGIN_TIMEOUT", 5*time.Minute),
		VerifyTokens:     getEnvBoolOrDefault("KEYCLOAK_VERIFY_TOKENS", false),
		OTPSecret:        os.Getenv("TODO_OTP_SECRET"),

		DataDir:       dataDir,
		StorageDriver: getEnvOrDefault("TODO_STORAGE_DRIVER", "sqlite"),
		DatabaseFile:  getEnvOrDefault("TODO_DATABASE_FILE", filepath.Join(dataDir, "todo.db")),
		StorageFile:   getEnvOrDefault("TODO_STORAGE_FILE", filepath.Join(dataDir, "storage.json")),
		MasterKeyFile: getEnvOrDefault("TODO_MASTER_KEY_FILE", filepath.Join(dataDir, "master.key")),

		HTTPTimeout:  getEnvDurationOrDefault("TODO_HTTP_TIMEOUT", 0),
		APIRateLimit: getEnvFloatOrDefault("TODO_API_RATE_LIMIT", 0),
		APIRateBurst: getEnvIntOrDefault("TODO_API_RATE_BURST", 1),
		AutoLogin:    getEnvBoolOrDefault("TODO_AUTO_LOGIN", false),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "todo")
	}
	return ".todo"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultValue
}
