package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"scenecut-server/internal/database"
	"scenecut-server/internal/detector"
	"scenecut-server/internal/queue"
	"scenecut-server/internal/scenedetect"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Database   database.Config `yaml:"database"`
	Redis      queue.Config    `yaml:"redis"`
	Detector   detector.Config `yaml:"detector"`
	Thumbnails ThumbnailConfig `yaml:"thumbnails"`
	FFmpeg     FFmpegConfig    `yaml:"ffmpeg"`
}

type ServerConfig struct {
	Port              string   `yaml:"port"`
	UploadDir         string   `yaml:"upload_dir"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxUploadMB       int64    `yaml:"max_upload_mb"`
}

type ThumbnailConfig struct {
	Width   int `yaml:"width"`
	Quality int `yaml:"quality"`
}

type FFmpegConfig struct {
	BinaryPath  string `yaml:"binary_path"`
	ProbePath   string `yaml:"probe_path"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Load builds the defaults, overlays the YAML file at path (or the first
// config file found) and then the environment.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the settings that have no usable fallback
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port %q", c.Server.Port)
	}
	if c.Server.UploadDir == "" {
		return fmt.Errorf("upload dir must be set")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Thumbnails.Width < 0 {
		return fmt.Errorf("thumbnail width must not be negative, got %d", c.Thumbnails.Width)
	}
	if c.Thumbnails.Quality < 1 || c.Thumbnails.Quality > 100 {
		return fmt.Errorf("thumbnail quality must be within 1-100, got %d", c.Thumbnails.Quality)
	}
	if c.FFmpeg.TimeoutSecs <= 0 {
		return fmt.Errorf("scene detection timeout must be positive, got %d", c.FFmpeg.TimeoutSecs)
	}
	return c.Detector.Validate()
}

// SceneDetectOptions returns the options for a detection run
func (c *Config) SceneDetectOptions() scenedetect.Options {
	return scenedetect.Options{
		Detector:         c.Detector,
		ThumbnailWidth:   c.Thumbnails.Width,
		ThumbnailQuality: c.Thumbnails.Quality,
		Timeout:          time.Duration(c.FFmpeg.TimeoutSecs) * time.Second,
	}
}

// AllowedExtension reports whether a filename has an accepted video extension
func (s ServerConfig) AllowedExtension(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range s.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(allowed, "."), ext) {
			return true
		}
	}
	return false
}

func defaultConfig() *Config {
	opts := scenedetect.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Port:              "8080",
			UploadDir:         "./uploads",
			AllowedExtensions: []string{"mp4", "mov", "avi", "mkv", "webm"},
			MaxUploadMB:       2048,
		},
		Database: database.GetDefaultConfig(),
		Redis: queue.Config{
			Addr:      "localhost:6379",
			Retention: 7 * 24 * time.Hour,
		},
		Detector: opts.Detector,
		Thumbnails: ThumbnailConfig{
			Width:   opts.ThumbnailWidth,
			Quality: opts.ThumbnailQuality,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath:  "ffmpeg",
			ProbePath:   "ffprobe",
			TimeoutSecs: int(opts.Timeout / time.Second),
		},
	}
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)
	c.Server.UploadDir = getEnvOrDefault("UPLOAD_DIR", c.Server.UploadDir)

	c.Database.Host = getEnvOrDefault("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvOrDefault("DB_PORT", c.Database.Port)
	c.Database.User = getEnvOrDefault("DB_USER", c.Database.User)
	c.Database.Password = getEnvOrDefault("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnvOrDefault("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", c.Database.SSLMode)
	c.Database.TimeZone = getEnvOrDefault("DB_TIMEZONE", c.Database.TimeZone)

	c.Redis.Addr = getEnvOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)

	c.FFmpeg.BinaryPath = getEnvOrDefault("FFMPEG_PATH", c.FFmpeg.BinaryPath)
	c.FFmpeg.ProbePath = getEnvOrDefault("FFPROBE_PATH", c.FFmpeg.ProbePath)

	ints := []struct {
		key string
		dst *int
	}{
		{"REDIS_DB", &c.Redis.DB},
		{"MIN_SCENE_LEN", &c.Detector.MinSceneLen},
		{"WINDOW_WIDTH", &c.Detector.WindowWidth},
		{"KERNEL_SIZE", &c.Detector.KernelSize},
		{"THUMBNAIL_WIDTH", &c.Thumbnails.Width},
		{"THUMBNAIL_QUALITY", &c.Thumbnails.Quality},
		{"SCENEDETECT_TIMEOUT_SECS", &c.FFmpeg.TimeoutSecs},
	}
	for _, e := range ints {
		if err := envInt(e.key, e.dst); err != nil {
			return err
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"ADAPTIVE_THRESHOLD", &c.Detector.AdaptiveThreshold},
		{"MIN_CONTENT_VAL", &c.Detector.MinContentVal},
		{"WEIGHT_HUE", &c.Detector.Weights.Hue},
		{"WEIGHT_SAT", &c.Detector.Weights.Sat},
		{"WEIGHT_LUMA", &c.Detector.Weights.Luma},
		{"WEIGHT_EDGES", &c.Detector.Weights.Edges},
	}
	for _, e := range floats {
		if err := envFloat(e.key, e.dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_MB %q: %w", v, err)
		}
		c.Server.MaxUploadMB = n
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = f
	return nil
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".scenecut", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
