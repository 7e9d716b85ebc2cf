package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/Brownie44l1/plastic-classifier/internal/classifier"
)

type Config struct {
	Port           string `env:"PORT"             envDefault:"8080"`
	ModelPath      string `env:"MODEL_PATH"       envDefault:"models/model_sampah.onnx"`
	MetadataPath   string `env:"METADATA_PATH"    envDefault:"models/model_metadata.json"`
	CatalogPath    string `env:"CATALOG_PATH"`
	OnnxRuntimeLib string `env:"ONNXRUNTIME_LIB"`

	ConfidenceThreshold float32 `env:"CONFIDENCE_THRESHOLD" envDefault:"0.60"`
	MaxUploadBytes      int64   `env:"MAX_UPLOAD_BYTES"     envDefault:"10485760"`
	MaxImagePixels      int     `env:"MAX_IMAGE_PIXELS"     envDefault:"40000000"`
	CameraDevice        int     `env:"CAMERA_DEVICE"        envDefault:"0"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file (or the files named in envFiles) and then
// parses the environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := classifier.ValidateThreshold(c.ConfidenceThreshold); err != nil {
		return errors.Wrap(err, "CONFIDENCE_THRESHOLD")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.MaxImagePixels <= 0 {
		return errors.Errorf("MAX_IMAGE_PIXELS must be positive, got %d", c.MaxImagePixels)
	}
	if c.ModelPath == "" || c.MetadataPath == "" {
		return errors.New("MODEL_PATH and METADATA_PATH are required")
	}
	return nil
}

// loadDotEnv never overrides variables already present in the environment.
// A missing default .env is not an error; missing explicit files are.
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Wrap(err, "load env file")
	}
	return nil
}
