// Package config holds the on-disk configuration of the reframer service and
// the tuning schema shared by the config file, the CLI and the process API.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cyclopcam/dbh"
)

type Config struct {
	DB      dbh.DBConfig  `json:"db"`
	Results StorageConfig `json:"results"`
	Cache   string        `json:"cache"` // Path to the local result cache directory. Empty disables caching
	Tuning  *Tuning       `json:"tuning"`

	MaxFetchMB int `json:"maxFetchMB"` // Size cap on fetched detection payloads. Zero means the built-in default
}

// One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type StorageConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
	Public bool   `json:"public"` // Whether the bucket is public. This allows us to hand clients direct URLs into GCS, instead of passing the data through our service
}

// Load reads and validates a config file.
func Load(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Failed to read config file %v: %w", filename, err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Failed to parse config file %v: %w", filename, err)
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("Config file %v: %w", filename, err)
	}
	return cfg, nil
}
