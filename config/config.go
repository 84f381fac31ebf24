package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage struct {
		Backend string `yaml:"backend"` // "s3" or "fs"

		S3 struct {
			Bucket   string `yaml:"bucket"`
			Prefix   string `yaml:"prefix"`
			Region   string `yaml:"region"`
			Endpoint string `yaml:"endpoint"`
		} `yaml:"s3"`

		FS struct {
			Path string `yaml:"path"`
		} `yaml:"fs"`
	} `yaml:"storage"`

	Table struct {
		Name     string `yaml:"name"`
		Location string `yaml:"location"`
	} `yaml:"table"`

	Catalog struct {
		// Optional Postgres DSN. When empty the pointer lives in the
		// object store itself as version-numbered metadata files.
		DSN string `yaml:"dsn"`
	} `yaml:"catalog"`

	Commit struct {
		MaxRetries          int   `yaml:"max_retries"`
		ManifestTargetBytes int64 `yaml:"manifest_target_bytes"`
	} `yaml:"commit"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "fs"
	}
	if cfg.Table.Location == "" {
		return nil, fmt.Errorf("table.location is required")
	}
	if cfg.Commit.MaxRetries == 0 {
		cfg.Commit.MaxRetries = 4
	}
	if cfg.Commit.ManifestTargetBytes == 0 {
		cfg.Commit.ManifestTargetBytes = 8 << 20
	}

	return &cfg, nil
}
