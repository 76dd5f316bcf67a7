package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Queue    QueueConfig
	Programs ProgramsConfig
	Database DatabaseConfig
	Server   ServerConfig
	Log      LogConfig
}

// QueueConfig holds the batch-queue settings shared by every backend.
// It is treated as immutable once a drain starts.
type QueueConfig struct {
	Backend           string
	ChunkSize         int
	JobLimit          int
	SleepInt          time.Duration
	Dir               string
	NoDel             bool
	TemplatePath      string
	User              string
	FinishAfterMisses int
}

// ProgramsConfig holds paths to the quantum chemistry binaries.
type ProgramsConfig struct {
	Molpro      string
	Mopac       string
	MopacLibDir string
}

// DatabaseConfig holds job-ledger configuration. An empty DSN disables the ledger.
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HealthAddr string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			Backend:           getEnv("QCQ_BACKEND", "pbs"),
			ChunkSize:         getEnvAsInt("QCQ_CHUNK_SIZE", 128),
			JobLimit:          getEnvAsInt("QCQ_JOB_LIMIT", 1600),
			SleepInt:          getEnvAsDuration("QCQ_SLEEP_INT", 5*time.Second),
			Dir:               getEnv("QCQ_DIR", "."),
			NoDel:             getEnvAsBool("QCQ_NO_DEL", false),
			TemplatePath:      getEnv("QCQ_TEMPLATE", ""),
			User:              getEnv("QCQ_USER", os.Getenv("USER")),
			FinishAfterMisses: getEnvAsInt("QCQ_FINISH_AFTER_MISSES", 1),
		},
		Programs: ProgramsConfig{
			Molpro:      getEnv("QCQ_MOLPRO", "molpro"),
			Mopac:       getEnv("QCQ_MOPAC", "/opt/mopac/mopac"),
			MopacLibDir: getEnv("QCQ_MOPAC_LIB", "/opt/mopac/"),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("QCQ_DB_URL", ""),
			MaxConns:        getEnvAsInt32("QCQ_DB_MAX_CONNS", 4),
			MaxConnLifetime: getEnvAsDuration("QCQ_DB_MAX_CONN_LIFETIME", 30*time.Minute),
			DialTimeout:     getEnvAsDuration("QCQ_DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			HealthAddr: getEnv("QCQ_HEALTH_ADDR", ""),
		},
		Log: LogConfig{
			Level: getEnv("QCQ_LOG_LEVEL", "info"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the invariants a drain needs for forward progress.
func (c *Config) Validate() error {
	v := NewValidator().
		Field("QCQ_BACKEND", c.Queue.Backend, Required).
		Field("QCQ_DIR", c.Queue.Dir, Required).
		Field("QCQ_CHUNK_SIZE", c.Queue.ChunkSize, AtLeast(1)).
		Field("QCQ_JOB_LIMIT", c.Queue.JobLimit, AtLeast(c.Queue.ChunkSize)).
		Field("QCQ_FINISH_AFTER_MISSES", c.Queue.FinishAfterMisses, AtLeast(1))
	if c.Queue.Backend == "pbs" {
		v.Field("QCQ_USER", c.Queue.User, Required)
	}
	if c.Queue.SleepInt < 0 {
		v.errors = append(v.errors, ValidationError{Field: "QCQ_SLEEP_INT", Value: c.Queue.SleepInt, Message: "must not be negative"})
	}
	return ValidateAndReturnError(v)
}
