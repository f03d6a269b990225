package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	LiveKit   LiveKitConfig
	Presence  PresenceConfig
	Recording RecordingConfig
	AWS       AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
	ControlAPIKey      string // when set, non-webhook routes require a matching x-api-key header
}

// LiveKitConfig holds LiveKit server and webhook credentials.
type LiveKitConfig struct {
	URL           string // https endpoint of the LiveKit deployment
	APIKey        string
	APISecret     string
	WebhookKey    string // separate key pair used only to verify inbound webhooks
	WebhookSecret string
	TokenTTLHours int
	RoomBaseURL   string // base URL rooms live under; used to derive room keys from room names
}

// PresenceConfig holds admission-guard settings.
type PresenceConfig struct {
	ParticipantCap        int  // max active participant-role entries per room; <=0 disables the cap
	CheckDuplicateSession bool // reject a join when the userId already has an active entry
	EnforceParticipantCap bool
}

// RecordingConfig holds egress lifecycle and finalization settings.
type RecordingConfig struct {
	OutputDir              string // directory egress writes recording files to; empty = os.TempDir()
	Layout                 string // default room-composite layout
	StopMaxAttempts        int
	StopRetryDelay         time.Duration
	StopProbeAttempts      int
	StopProbeDelay         time.Duration
	FileWaitAttempts       int
	FileWaitDelay          time.Duration
	DeleteLocalAfterUpload bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/controller?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AWSConfig holds AWS credentials and the recordings bucket.
type AWSConfig struct {
	Region                string
	AccessKeyID           string
	SecretAccessKey       string
	RecordingsBucket      string
	PresignExpireMinutes  int
	SignedLinkExpireHours int // long-lived signed link used when public-read is denied
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
			ControlAPIKey:      getEnv("CONTROL_API_KEY", ""),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "controller"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		LiveKit: LiveKitConfig{
			URL:           getEnv("LIVEKIT_URL", ""),
			APIKey:        getEnv("LIVEKIT_API_KEY", ""),
			APISecret:     getEnv("LIVEKIT_API_SECRET", ""),
			WebhookKey:    getEnv("LIVEKIT_WEBHOOK_KEY", ""),
			WebhookSecret: getEnv("LIVEKIT_WEBHOOK_SECRET", ""),
			TokenTTLHours: getEnvInt("TOKEN_TTL_HOURS", 6),
			RoomBaseURL:   getEnv("ROOM_BASE_URL", ""),
		},
		Presence: PresenceConfig{
			ParticipantCap:        getEnvInt("PARTICIPANT_CAP", 2),
			CheckDuplicateSession: getEnvBool("CHECK_DUPLICATE_SESSION", true),
			EnforceParticipantCap: getEnvBool("ENFORCE_PARTICIPANT_CAP", true),
		},
		Recording: RecordingConfig{
			OutputDir:              getEnv("RECORDING_OUTPUT_DIR", ""),
			Layout:                 getEnv("RECORDING_LAYOUT", "grid"),
			StopMaxAttempts:        getEnvInt("STOP_MAX_ATTEMPTS", 3),
			StopRetryDelay:         getEnvMillis("STOP_RETRY_DELAY_MS", 2000),
			StopProbeAttempts:      getEnvInt("STOP_PROBE_ATTEMPTS", 2),
			StopProbeDelay:         getEnvMillis("STOP_PROBE_DELAY_MS", 1500),
			FileWaitAttempts:       getEnvInt("FILE_WAIT_ATTEMPTS", 5),
			FileWaitDelay:          getEnvMillis("FILE_WAIT_DELAY_MS", 2000),
			DeleteLocalAfterUpload: getEnvBool("DELETE_LOCAL_AFTER_UPLOAD", true),
		},
		AWS: AWSConfig{
			Region:                getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:           getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:       getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:      getEnv("AWS_S3_RECORDINGS_BUCKET", ""),
			PresignExpireMinutes:  getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
			SignedLinkExpireHours: getEnvInt("AWS_SIGNED_LINK_EXPIRE_HOURS", 168),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
