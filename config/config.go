// Package config loads runtime settings from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Registry backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// Attachment backends.
const (
	AttachmentDisk      = "disk"
	AttachmentJetStream = "jetstream"
)

// Config holds every setting of the application.
type Config struct {
	Port             string
	ShutdownTimeout  time.Duration
	CORSAllowOrigins string

	DBPath  string
	DBDebug bool

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	RegistryBackend string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	NATSURL         string
	ChannelPrefix   string

	AttachmentBackend string
	AttachmentDir     string
	AttachmentBucket  string
	MaxUploadBytes    int

	Session SessionConfig
}

// SessionConfig tunes live socket sessions.
type SessionConfig struct {
	IdleTimeout   time.Duration
	WriteWait     time.Duration
	OpTimeout     time.Duration
	MaxFrameBytes int64
	SendBuffer    int
	FrameRate     float64
	FrameBurst    int
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] Failed to load .env: %v", err)
	}

	return &Config{
		Port:             getEnv("PORT", "3000"),
		ShutdownTimeout:  getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		CORSAllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),

		DBPath:  getEnv("CHAT_DB_PATH", "chat.db"),
		DBDebug: getEnvBool("CHAT_DB_DEBUG", false),

		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
		JWTIssuer: getEnv("JWT_ISSUER", "campus-helpdesk"),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		RegistryBackend: getEnv("CHAT_REGISTRY_BACKEND", BackendMemory),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		NATSURL:         getEnv("NATS_URL", "nats://localhost:4222"),
		ChannelPrefix:   getEnv("CHAT_CHANNEL_PREFIX", "chatgroups"),

		AttachmentBackend: getEnv("ATTACHMENT_BACKEND", AttachmentDisk),
		AttachmentDir:     getEnv("ATTACHMENT_DIR", "media/chat_attachments"),
		AttachmentBucket:  getEnv("ATTACHMENT_BUCKET", "chat-attachments"),
		MaxUploadBytes:    getEnvInt("MAX_UPLOAD_BYTES", 10*1024*1024),

		Session: SessionConfig{
			IdleTimeout:   getEnvDuration("CHAT_IDLE_TIMEOUT", 60*time.Second),
			WriteWait:     getEnvDuration("CHAT_WRITE_WAIT", 10*time.Second),
			OpTimeout:     getEnvDuration("CHAT_OP_TIMEOUT", 5*time.Second),
			MaxFrameBytes: int64(getEnvInt("CHAT_MAX_FRAME_BYTES", 8192)),
			SendBuffer:    getEnvInt("CHAT_SEND_BUFFER", 256),
			FrameRate:     getEnvFloat("CHAT_FRAME_RATE", 20),
			FrameBurst:    getEnvInt("CHAT_FRAME_BURST", 40),
		},
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("[config] Invalid integer for %s: %q, using %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		log.Printf("[config] Invalid number for %s: %q, using %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		log.Printf("[config] Invalid boolean for %s: %q, using %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		log.Printf("[config] Invalid duration for %s: %q, using %s", key, value, defaultValue)
	}
	return defaultValue
}
