package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.StorageBackend != "memory" {
		t.Errorf("StorageBackend = %q, want memory", cfg.StorageBackend)
	}
	if cfg.ExtractionTimeout != 60*time.Second {
		t.Errorf("ExtractionTimeout = %v, want 60s", cfg.ExtractionTimeout)
	}
	if cfg.JobWorkers != 5 {
		t.Errorf("JobWorkers = %d, want 5", cfg.JobWorkers)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "bolt")
	t.Setenv("BOLT_PATH", "/tmp/test.db")
	t.Setenv("EXTRACTION_TIMEOUT", "90s")
	t.Setenv("JOB_WORKERS", "2")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.StorageBackend != "bolt" || cfg.BoltPath != "/tmp/test.db" {
		t.Errorf("storage = %q/%q, want bolt//tmp/test.db", cfg.StorageBackend, cfg.BoltPath)
	}
	if cfg.ExtractionTimeout != 90*time.Second {
		t.Errorf("ExtractionTimeout = %v, want 90s", cfg.ExtractionTimeout)
	}
	if cfg.JobWorkers != 2 {
		t.Errorf("JobWorkers = %d, want 2", cfg.JobWorkers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Port = "nope" }, true},
		{"port out of range", func(c *Config) { c.Port = "70000" }, true},
		{"unknown backend", func(c *Config) { c.StorageBackend = "redis" }, true},
		{"bigquery without project", func(c *Config) { c.StorageBackend = "bigquery"; c.BQProject = "" }, true},
		{"bigquery with project", func(c *Config) { c.StorageBackend = "bigquery"; c.BQProject = "p" }, false},
		{"bolt without path", func(c *Config) { c.StorageBackend = "bolt"; c.BoltPath = "" }, true},
		{"zero workers", func(c *Config) { c.JobWorkers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
