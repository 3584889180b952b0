package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scenecut-server/internal/detector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, detector.DefaultConfig(), cfg.Detector)
	assert.Equal(t, 320, cfg.Thumbnails.Width)
	assert.Equal(t, 85, cfg.Thumbnails.Quality)
	assert.Equal(t, 300, cfg.FFmpeg.TimeoutSecs)
	assert.Equal(t, []string{"mp4", "mov", "avi", "mkv", "webm"}, cfg.Server.AllowedExtensions)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
  upload_dir: /srv/uploads
detector:
  adaptive_threshold: 2.5
  window_width: 3
  weights:
    hue: 1
    sat: 1
    luma: 1
    edges: 0.5
redis:
  retention: 1h
thumbnails:
  width: 160
`), 0644))

	t.Setenv("PORT", "")
	t.Setenv("UPLOAD_DIR", "")
	t.Setenv("MIN_SCENE_LEN", "24")
	t.Setenv("WEIGHT_EDGES", "1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "/srv/uploads", cfg.Server.UploadDir)
	assert.Equal(t, 2.5, cfg.Detector.AdaptiveThreshold)
	assert.Equal(t, 3, cfg.Detector.WindowWidth)
	assert.Equal(t, 24, cfg.Detector.MinSceneLen)
	assert.Equal(t, 1.0, cfg.Detector.Weights.Edges)
	assert.Equal(t, 15.0, cfg.Detector.MinContentVal)
	assert.Equal(t, time.Hour, cfg.Redis.Retention)
	assert.Equal(t, 160, cfg.Thumbnails.Width)
	assert.Equal(t, 85, cfg.Thumbnails.Quality)
}

func TestLoadErrors(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("bad env number", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		t.Setenv("ADAPTIVE_THRESHOLD", "high")
		_, err := Load("")
		assert.ErrorContains(t, err, "ADAPTIVE_THRESHOLD")
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Detector.WindowWidth)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errIs  error
	}{
		{"port", func(c *Config) { c.Server.Port = "0" }, nil},
		{"port text", func(c *Config) { c.Server.Port = "http" }, nil},
		{"upload dir", func(c *Config) { c.Server.UploadDir = "" }, nil},
		{"upload size", func(c *Config) { c.Server.MaxUploadMB = 0 }, nil},
		{"quality", func(c *Config) { c.Thumbnails.Quality = 101 }, nil},
		{"timeout", func(c *Config) { c.FFmpeg.TimeoutSecs = 0 }, nil},
		{"detector", func(c *Config) { c.Detector.WindowWidth = 0 }, detector.ErrInvalidConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			}
		})
	}
}

func TestSceneDetectOptions(t *testing.T) {
	cfg := defaultConfig()
	cfg.FFmpeg.TimeoutSecs = 12
	cfg.Thumbnails.Width = 0

	opts := cfg.SceneDetectOptions()
	assert.Equal(t, 12*time.Second, opts.Timeout)
	assert.Equal(t, 0, opts.ThumbnailWidth)
	assert.Equal(t, cfg.Detector, opts.Detector)
}

func TestAllowedExtension(t *testing.T) {
	cfg := defaultConfig()
	assert.True(t, cfg.Server.AllowedExtension("clip.MP4"))
	assert.True(t, cfg.Server.AllowedExtension("a.b.webm"))
	assert.False(t, cfg.Server.AllowedExtension("notes.txt"))
	assert.False(t, cfg.Server.AllowedExtension("mp4"))
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := defaultConfig()
	cfg.Detector.AdaptiveThreshold = 4
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4.0, loaded.Detector.AdaptiveThreshold)
}

func TestContext(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = "7000"
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Equal(t, "8080", FromContext(context.Background()).Server.Port)
}
