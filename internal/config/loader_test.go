package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "bench.yaml")

	configContent := `
address: "zk1:2181,zk2:2181"
root: /perf/create
prefix: n_
mode: persistent-sequential
sessions: per-worker
workers: 1000
duration: 30s
batch: 50
rate: 200
sessionTimeout: 20
cleanup: true
settle:
  strategy: poll
  interval: 100ms
  timeout: 5s
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Address != "zk1:2181,zk2:2181" {
		t.Errorf("Address = %q", cfg.Address)
	}
	if cfg.Root != "/perf/create" || cfg.Prefix != "n_" {
		t.Errorf("Root, Prefix = %q, %q", cfg.Root, cfg.Prefix)
	}
	if cfg.Mode != "persistent-sequential" || cfg.Sessions != "per-worker" {
		t.Errorf("Mode, Sessions = %q, %q", cfg.Mode, cfg.Sessions)
	}
	if cfg.Workers != 1000 || cfg.Batch != 50 || cfg.Rate != 200 {
		t.Errorf("Workers, Batch, Rate = %d, %d, %g", cfg.Workers, cfg.Batch, cfg.Rate)
	}
	if cfg.Duration.Std() != 30*time.Second {
		t.Errorf("Duration = %v, want 30s", cfg.Duration)
	}
	if cfg.SessionTimeout.Std() != 20*time.Second {
		t.Errorf("SessionTimeout = %v, want 20s", cfg.SessionTimeout)
	}
	if cfg.ConnectTimeout.Std() != 5*time.Second {
		t.Errorf("ConnectTimeout = %v, want default 5s", cfg.ConnectTimeout)
	}
	if !cfg.Cleanup {
		t.Error("Cleanup = false, want true")
	}
	if cfg.Settle.Strategy != SettlePoll || cfg.Settle.Interval.Std() != 100*time.Millisecond || cfg.Settle.Timeout.Std() != 5*time.Second {
		t.Errorf("Settle = %+v", cfg.Settle)
	}
	// Unset nested fields keep their defaults.
	if cfg.Settle.Delay.Std() != time.Second {
		t.Errorf("Settle.Delay = %v, want default 1s", cfg.Settle.Delay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_JSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bench.json")
	content := `{"address": "mem://", "workers": 4, "duration": 2}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IsMemory() || cfg.Workers != 4 || cfg.Duration.Std() != 2*time.Second {
		t.Errorf("Load() = %+v", cfg)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/bench.yaml")
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Expected 'config file not found' error, got: %v", err)
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := Parse([]byte("  \n")); err == nil {
		t.Error("Expected error for empty config")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("workers: [1,\n")); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
		contain string
	}{
		{
			name:    "negative workers",
			content: "workers: -1\n",
			field:   "workers",
		},
		{
			name:    "unknown mode",
			content: "mode: container\n",
			field:   "mode",
		},
		{
			name:    "bad duration",
			content: "duration: soon\n",
			field:   "duration",
		},
		{
			name:    "zero batch",
			content: "batch: 0\n",
			field:   "batch",
		},
		{
			name:    "unknown settle strategy",
			content: "settle:\n  strategy: guess\n",
			field:   "settle/strategy",
		},
		{
			name:    "unknown key",
			content: "threads: 4\n",
			contain: "threads",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if err == nil {
				t.Fatal("Expected schema error but got nil")
			}
			var verrs *ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Expected *ValidationErrors, got %T: %v", err, err)
			}
			if tt.field != "" {
				found := false
				for _, e := range verrs.Errors {
					if e.Field == tt.field {
						found = true
					}
				}
				if !found {
					t.Errorf("Expected an error on field %q, got: %v", tt.field, err)
				}
			}
			if tt.contain != "" && !strings.Contains(err.Error(), tt.contain) {
				t.Errorf("Expected error to contain %q, got: %v", tt.contain, err)
			}
		})
	}
}
