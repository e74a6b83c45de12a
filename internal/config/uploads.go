package config

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
)

const (
	// EnvUploadsMaxUploadSize overrides the maximum accepted upload size.
	EnvUploadsMaxUploadSize = "UPLOADS_MAX_UPLOAD_SIZE"

	// EnvUploadsTempDir overrides the temp spool directory for uploads.
	EnvUploadsTempDir = "UPLOADS_TEMP_DIR"
)

// UploadsConfig contains upload intake configuration.
type UploadsConfig struct {
	MaxUploadSize string `toml:"max_upload_size"`
	// TempDir is the spool directory for in-flight uploads.
	// Empty means the system temp directory.
	TempDir string `toml:"temp_dir"`

	maxUploadSizeVal int64
}

// MaxUploadSizeBytes returns the parsed maximum upload size in bytes.
func (c *UploadsConfig) MaxUploadSizeBytes() int64 {
	return c.maxUploadSizeVal
}

// Finalize applies defaults, loads environment overrides, and validates the uploads configuration.
func (c *UploadsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *UploadsConfig) Merge(overlay *UploadsConfig) {
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	if overlay.TempDir != "" {
		c.TempDir = overlay.TempDir
	}
}

func (c *UploadsConfig) loadDefaults() {
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "25MB"
	}
}

func (c *UploadsConfig) loadEnv() {
	if v := os.Getenv(EnvUploadsMaxUploadSize); v != "" {
		c.MaxUploadSize = v
	}
	if v := os.Getenv(EnvUploadsTempDir); v != "" {
		c.TempDir = v
	}
}

func (c *UploadsConfig) validate() error {
	size, err := units.FromHumanSize(c.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("max_upload_size must be positive")
	}
	c.maxUploadSizeVal = size
	return nil
}
