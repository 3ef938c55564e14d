package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%q): %v", path, err)
		}
		if cfg.Port != 8080 {
			t.Errorf("port = %d, want 8080", cfg.Port)
		}
		if want := []int{1, 3, 7, 30}; !reflect.DeepEqual(cfg.Windows, want) {
			t.Errorf("windows = %v, want %v", cfg.Windows, want)
		}
		if want := []string{"*"}; !reflect.DeepEqual(cfg.CORSOrigins, want) {
			t.Errorf("cors = %v, want %v", cfg.CORSOrigins, want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sicost.yaml")
	data := `dsn: postgres://dev@localhost/usage?sslmode=disable
port: 9090
cors_origins:
  - https://dashboard.internal
edition_override: BUSINESS_CRITICAL
windows: [7, 30]
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DSN != "postgres://dev@localhost/usage?sslmode=disable" {
		t.Errorf("dsn = %q", cfg.DSN)
	}
	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Port)
	}
	if cfg.EditionOverride != "BUSINESS_CRITICAL" {
		t.Errorf("edition override = %q", cfg.EditionOverride)
	}
	if want := []int{7, 30}; !reflect.DeepEqual(cfg.Windows, want) {
		t.Errorf("windows = %v, want %v", cfg.Windows, want)
	}
	if want := []string{"https://dashboard.internal"}; !reflect.DeepEqual(cfg.CORSOrigins, want) {
		t.Errorf("cors = %v, want %v", cfg.CORSOrigins, want)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [not a port"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
