// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds scheduler, storage, and server settings. Load from environment.
type Config struct {
	// Server
	Host string
	Port int

	// Storage
	DatabasePath        string
	DefaultCapturesPath string
	DefaultVideosPath   string
	DefaultNamingPattern string

	// Timezone. Applies to every timestamp the scheduler and API produce.
	TZ string

	// Capture execution
	FFmpegTimeout   time.Duration
	FFmpegPath      string
	FFprobePath     string
	WorkerCount     int
	TickInterval    time.Duration

	LogLevel string
}

// Load reads Config from the environment. Call LoadEnvFile first if you want
// a .env-style file to seed the process environment.
func Load() *Config {
	return &Config{
		Host:                 getEnv("HOST", "0.0.0.0"),
		Port:                 getEnvInt("PORT", 8080),
		DatabasePath:         getEnv("DATABASE_PATH", "./data/timelapse-manager.db"),
		DefaultCapturesPath:  getEnv("DEFAULT_CAPTURES_PATH", "/captures"),
		DefaultVideosPath:    getEnv("DEFAULT_VIDEOS_PATH", "/timelapses"),
		DefaultNamingPattern: getEnv("DEFAULT_CAPTURE_PATTERN", "{job_name}_{num:06d}_{timestamp}"),
		TZ:                   getEnv("TZ", "UTC"),
		FFmpegTimeout:        getEnvDuration("FFMPEG_TIMEOUT", 30*time.Second),
		FFmpegPath:           getEnv("TIMELAPSE_FFMPEG_PATH", "ffmpeg"),
		FFprobePath:          getEnv("TIMELAPSE_FFPROBE_PATH", "ffprobe"),
		WorkerCount:          getEnvInt("TIMELAPSE_WORKER_COUNT", 5),
		TickInterval:         getEnvDuration("TIMELAPSE_TICK_INTERVAL", 10*time.Second),
		LogLevel:             strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare integers are seconds (matches FFMPEG_TIMEOUT=30 style from the source project).
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return defaultVal
}
