package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Backend  BackendConfig
	Agent    AgentConfig
	Auth     AuthConfig
	Otel     OtelConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

func (a AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

type DatabaseConfig struct {
	Connection string
	LogSQL     bool
}

// BackendConfig points at the origin AI service.
type BackendConfig struct {
	BaseURL string
	Token   string
}

type AgentConfig struct {
	LibraryID int

	ViewerReadyTimeout      time.Duration
	ViewerReadyPollInterval time.Duration
	ViewerCallTimeout       time.Duration
	GraceWindow             time.Duration

	AckAutoRetry     bool
	AckMaxTries      int
	AckRetryInterval time.Duration

	WorkspaceIdleTTL time.Duration
}

type AuthConfig struct {
	JwtSecret string
}

type OtelConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/agent.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
			LogSQL:     getEnvAsBool("DB_LOG_SQL", false),
		},
		Backend: BackendConfig{
			BaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:8000"),
			Token:   getEnv("BACKEND_TOKEN", ""),
		},
		Agent: AgentConfig{
			LibraryID:               getEnvAsInt("LIBRARY_ID", 1),
			ViewerReadyTimeout:      getEnvAsDuration("VIEWER_READY_TIMEOUT", 10*time.Second),
			ViewerReadyPollInterval: getEnvAsDuration("VIEWER_READY_POLL_INTERVAL", 250*time.Millisecond),
			ViewerCallTimeout:       getEnvAsDuration("VIEWER_CALL_TIMEOUT", 15*time.Second),
			GraceWindow:             getEnvAsDuration("ANNOTATION_GRACE_WINDOW", 3*time.Second),
			AckAutoRetry:            getEnvAsBool("ACK_AUTO_RETRY", false),
			AckMaxTries:             getEnvAsInt("ACK_MAX_TRIES", 3),
			AckRetryInterval:        getEnvAsDuration("ACK_RETRY_INTERVAL", 500*time.Millisecond),
			WorkspaceIdleTTL:        getEnvAsDuration("WORKSPACE_IDLE_TTL", 2*time.Hour),
		},
		Auth: AuthConfig{
			JwtSecret: getEnv("JWT_SECRET", ""),
		},
		Otel: OtelConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "ai-library-agent"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
