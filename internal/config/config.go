package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Recognition RecognitionConfig
	Attendance  AttendanceConfig
	Extractor   ExtractorConfig
	Database    DatabaseConfig
}

type RecognitionConfig struct {
	Dim       int     `yaml:"dim"`       // embedding vector length, fixed system-wide
	Threshold float64 `yaml:"threshold"` // maximum distance at which a match is accepted
	ANN       bool    `yaml:"-"`         // enable in-memory ANN pre-selection for large rosters
}

type AttendanceConfig struct {
	Timezone string `yaml:"timezone"` // IANA zone for the calendar-day boundary, "Local" for system zone
}

type ExtractorConfig struct {
	URL string // face embedding service base URL (e.g. http://localhost:8000)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// embeddedDefaults mirrors the structure of defaults.yaml.
type embeddedDefaults struct {
	Recognition RecognitionConfig `yaml:"recognition"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString reads an environment variable with a fallback default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean ("true", "1", "yes").
func envBool(key string) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func Load() *Config {
	var defaults embeddedDefaults
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Recognition: RecognitionConfig{
			Dim:       envInt("ATTENDANCE_EMBEDDING_DIM", defaults.Recognition.Dim),
			Threshold: envFloat("ATTENDANCE_MATCH_THRESHOLD", defaults.Recognition.Threshold),
			ANN:       envBool("ATTENDANCE_ANN"),
		},
		Attendance: AttendanceConfig{
			Timezone: envString("ATTENDANCE_TIMEZONE", defaults.Attendance.Timezone),
		},
		Extractor: ExtractorConfig{
			URL: os.Getenv("EXTRACTOR_URL"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
	}
}
