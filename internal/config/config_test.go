package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/plastic-classifier/internal/classifier"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.InDelta(t, 0.60, cfg.ConfidenceThreshold, 1e-6)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 40_000_000, cfg.MaxImagePixels)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.CatalogPath)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIDENCE_THRESHOLD", "0.75")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 0.75, cfg.ConfidenceThreshold, 1e-6)
	assert.Equal(t, "9090", cfg.Port)
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CAMERA_DEVICE=2\nLOG_LEVEL=debug\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("CAMERA_DEVICE")
		os.Unsetenv("LOG_LEVEL")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.CameraDevice)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingEnvFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.env")
	assert.Error(t, err)
}

func TestValidateThreshold(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIDENCE_THRESHOLD", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIDENCE_THRESHOLD")
}

func TestValidateThresholdNaN(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIDENCE_THRESHOLD", "NaN")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIDENCE_THRESHOLD")
	assert.True(t, errors.Is(err, classifier.ErrInvalidThreshold))
}

func TestValidateMaxImagePixels(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MAX_IMAGE_PIXELS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_IMAGE_PIXELS")
}
