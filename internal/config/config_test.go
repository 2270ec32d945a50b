package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{"server": {"port": "8080"}}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q", cfg.Server.Port)
	}
	if cfg.Analysis.Model != "gemini-1.5-flash" {
		t.Errorf("Model = %q", cfg.Analysis.Model)
	}
	if cfg.Analysis.Location != "asia-northeast1" {
		t.Errorf("Location = %q", cfg.Analysis.Location)
	}
	if cfg.Warehouse.Type != "sqlite" {
		t.Errorf("Warehouse.Type = %q", cfg.Warehouse.Type)
	}
	if cfg.Warehouse.Tables.ScanLogs != "scanlogs" {
		t.Errorf("Tables.ScanLogs = %q", cfg.Warehouse.Tables.ScanLogs)
	}
	if cfg.Pipeline.TimeoutSeconds != 300 {
		t.Errorf("TimeoutSeconds = %d", cfg.Pipeline.TimeoutSeconds)
	}
}

func TestLoadConfigRequiresPort(t *testing.T) {
	path := writeConfig(t, `{}`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing port")
	}
}

func TestLoadConfigExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": "9090", "mode": "prod"},
		"storage": {"bucket": "scan-images"},
		"analysis": {"project": "my-project", "model": "gemini-1.5-pro"},
		"warehouse": {"type": "bigquery", "dataset": "prod_data"},
		"pipeline": {"timeout_seconds": 120}
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Bucket != "scan-images" {
		t.Errorf("Bucket = %q", cfg.Storage.Bucket)
	}
	if cfg.Analysis.Model != "gemini-1.5-pro" {
		t.Errorf("Model = %q", cfg.Analysis.Model)
	}
	if cfg.Warehouse.Type != "bigquery" || cfg.Warehouse.Dataset != "prod_data" {
		t.Errorf("Warehouse = %+v", cfg.Warehouse)
	}
	// Warehouse project falls back to the analysis project.
	if cfg.Warehouse.Project != "my-project" {
		t.Errorf("Warehouse.Project = %q", cfg.Warehouse.Project)
	}
	if cfg.Pipeline.TimeoutSeconds != 120 {
		t.Errorf("TimeoutSeconds = %d", cfg.Pipeline.TimeoutSeconds)
	}
}
