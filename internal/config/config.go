package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port string `json:"port"`
		Mode string `json:"mode"` // "dev" or "prod", selects the log encoder
	} `json:"server"`

	Storage struct {
		Bucket string `json:"bucket"`
	} `json:"storage"`

	Analysis struct {
		Project         string `json:"project"`
		Location        string `json:"location"`
		Model           string `json:"model"`
		CredentialsFile string `json:"credentials_file"`
	} `json:"analysis"`

	Warehouse Warehouse `json:"warehouse"`

	Pipeline struct {
		TimeoutSeconds int `json:"timeout_seconds"`
	} `json:"pipeline"`
}

// Warehouse configures the analytical store. Type selects the backend:
// "bigquery" in production, "sqlite" for local runs.
type Warehouse struct {
	Type    string `json:"type"`
	Project string `json:"project"`
	Dataset string `json:"dataset"`
	Tables  struct {
		ScanLogs string `json:"scan_logs"`
		Products string `json:"products"`
		Users    string `json:"users"`
	} `json:"tables"`
	Path string `json:"path"` // sqlite database file
}

// LoadConfig loads configuration from a JSON file, with environment
// variables as fallback for the Google Cloud settings.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Server.Port == "" {
		// Fail if port is not set
		return nil, fmt.Errorf("server port is not set in config file")
	}

	if config.Storage.Bucket == "" {
		config.Storage.Bucket = os.Getenv("STORAGE_BUCKET_NAME")
	}
	if config.Analysis.Project == "" {
		config.Analysis.Project = os.Getenv("GOOGLE_PROJECT_ID")
	}
	if config.Analysis.Location == "" {
		config.Analysis.Location = os.Getenv("GOOGLE_LOCATION")
	}
	if config.Analysis.Location == "" {
		config.Analysis.Location = "asia-northeast1"
	}
	if config.Analysis.Model == "" {
		config.Analysis.Model = "gemini-1.5-flash"
	}
	if config.Analysis.CredentialsFile == "" {
		config.Analysis.CredentialsFile = os.Getenv("GOOGLE_CREDENTIALS_FILE")
	}

	if config.Warehouse.Type == "" {
		config.Warehouse.Type = "sqlite"
	}
	if config.Warehouse.Project == "" {
		config.Warehouse.Project = config.Analysis.Project
	}
	if config.Warehouse.Dataset == "" {
		config.Warehouse.Dataset = "app_data"
	}
	if config.Warehouse.Tables.ScanLogs == "" {
		config.Warehouse.Tables.ScanLogs = "scanlogs"
	}
	if config.Warehouse.Tables.Products == "" {
		config.Warehouse.Tables.Products = "products"
	}
	if config.Warehouse.Tables.Users == "" {
		config.Warehouse.Tables.Users = "users"
	}
	if config.Warehouse.Path == "" {
		config.Warehouse.Path = "cosmescan.db"
	}

	if config.Pipeline.TimeoutSeconds <= 0 {
		config.Pipeline.TimeoutSeconds = 300
	}

	return &config, nil
}

// GetConfigPath returns the path to the configuration file.
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("COSMESCAN_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	configDir := "config"
	if _, err := os.Stat(configDir); err == nil {
		return filepath.Join(configDir, "config.json")
	}

	// Finally, try current directory
	return "config.json"
}
