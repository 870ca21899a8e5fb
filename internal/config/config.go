// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the binaries need to wire the pipeline.
type Config struct {
	// HTTP server
	Port string

	// Storage backend: "memory", "bolt" or "bigquery".
	StorageBackend string
	BoltPath       string
	BQProject      string
	BQDataset      string

	// GCS bucket for uploaded documents; when empty uploads land under
	// UploadDir instead.
	GCSBucket string
	UploadDir string

	// Extraction
	GeminiModel       string
	ExtractionTimeout time.Duration
	StorageTimeout    time.Duration

	// Jobs
	JobBuffer  int
	JobWorkers int
}

// Load reads configuration from the environment with defaults.
func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		BoltPath:       getEnv("BOLT_PATH", "./data/receipts.db"),
		BQProject:      getEnv("BQ_PROJECT", ""),
		BQDataset:      getEnv("BQ_DATASET", "receipts"),

		GCSBucket: getEnv("GCS_BUCKET", ""),
		UploadDir: getEnv("UPLOAD_DIR", "./data/uploads"),

		GeminiModel:       getEnv("GEMINI_MODEL", ""),
		ExtractionTimeout: getEnvDuration("EXTRACTION_TIMEOUT", 60*time.Second),
		StorageTimeout:    getEnvDuration("STORAGE_TIMEOUT", 15*time.Second),

		JobBuffer:  getEnvInt("JOB_BUFFER", 100),
		JobWorkers: getEnvInt("JOB_WORKERS", 5),
	}
}

// Validate reports configuration problems in one error.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port %q: must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.StorageBackend {
	case "memory", "bolt", "bigquery":
	default:
		problems = append(problems, fmt.Sprintf("invalid storage backend %q: must be memory, bolt or bigquery", c.StorageBackend))
	}

	if c.StorageBackend == "bigquery" && c.BQProject == "" {
		problems = append(problems, "BQ_PROJECT is required for the bigquery backend")
	}
	if c.StorageBackend == "bolt" && c.BoltPath == "" {
		problems = append(problems, "BOLT_PATH is required for the bolt backend")
	}

	if c.JobWorkers < 1 {
		problems = append(problems, fmt.Sprintf("invalid JOB_WORKERS %d: must be at least 1", c.JobWorkers))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
