package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"idcard/internal/card"
)

// Document engines.
const (
	EngineFPDF     = "fpdf"
	EngineChromium = "chromium"
)

// Config aggregates application settings sourced from environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Render   RenderConfig   `mapstructure:"render"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int    `mapstructure:"port"`
	InternalSecret string `mapstructure:"internal_secret"`

	// RenderRateLimit caps render and print requests per client per minute. Zero disables it.
	RenderRateLimit int `mapstructure:"render_rate_limit"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Name         string `mapstructure:"name"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig contains the redis connection used by asynq and job notifications.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig configures bearer-token verification. Tokens are issued elsewhere.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	Disabled      bool   `mapstructure:"disabled"`
}

// RenderConfig tunes the card renderers.
type RenderConfig struct {
	CanvasScale      float64 `mapstructure:"canvas_scale"`
	ThumbnailWidthPx int     `mapstructure:"thumbnail_width_px"`
	// MaxThumbnailPx bounds both sides of a PNG preview. Larger requested widths are rejected.
	MaxThumbnailPx   int           `mapstructure:"max_thumbnail_px"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	MaxImageBytes    int64         `mapstructure:"max_image_bytes"`
	// MaxImagePixels bounds width*height of a fetched image, checked before decoding.
	MaxImagePixels   int64  `mapstructure:"max_image_pixels"`
	FontDir          string `mapstructure:"font_dir"`
	Engine           string `mapstructure:"engine"`
	LocalImageRoot   string `mapstructure:"local_image_root"`
	DefaultTextColor string `mapstructure:"default_text_color"`
}

// WorkerConfig contains asynq server settings.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxRetry    int `mapstructure:"max_retry"`
	// MetricsPort serves /metrics from the worker. Zero disables it.
	MetricsPort int `mapstructure:"metrics_port"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Render.Engine = strings.ToLower(strings.TrimSpace(cfg.Render.Engine))

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.render_rate_limit", 60)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "idcard")
	v.SetDefault("database.user", "idcard")
	v.SetDefault("database.password", "idcard")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "idcards")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.disabled", false)
	v.SetDefault("render.canvas_scale", 3.0)
	v.SetDefault("render.thumbnail_width_px", 340)
	v.SetDefault("render.max_thumbnail_px", 2048)
	v.SetDefault("render.fetch_timeout", 10*time.Second)
	v.SetDefault("render.fetch_concurrency", 8)
	v.SetDefault("render.max_image_bytes", int64(10<<20))
	v.SetDefault("render.max_image_pixels", int64(40_000_000))
	v.SetDefault("render.engine", EngineFPDF)
	v.SetDefault("render.default_text_color", card.DefaultTextColor)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.max_retry", 5)
	v.SetDefault("worker.metrics_port", 9091)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                  "API_PORT",
		"api.internal_secret":       "INTERNAL_API_SECRET",
		"api.render_rate_limit":     "API_RENDER_RATE_LIMIT",
		"database.host":             "DATABASE_HOST",
		"database.port":             "DATABASE_PORT",
		"database.name":             "POSTGRES_DB",
		"database.user":             "POSTGRES_USER",
		"database.password":         "POSTGRES_PASSWORD",
		"database.sslmode":          "DATABASE_SSLMODE",
		"database.max_idle_conns":   "DATABASE_MAX_IDLE_CONNS",
		"database.max_open_conns":   "DATABASE_MAX_OPEN_CONNS",
		"redis.host":                "REDIS_HOST",
		"redis.port":                "REDIS_PORT",
		"minio.endpoint":            "MINIO_ENDPOINT",
		"minio.access_key_id":       "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":   "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":             "MINIO_USE_SSL",
		"minio.bucket":              "MINIO_BUCKET",
		"minio.region":              "MINIO_REGION",
		"minio.bucket_lookup":       "MINIO_BUCKET_LOOKUP",
		"minio.public_endpoint":     "MINIO_PUBLIC_ENDPOINT",
		"minio.auto_create_bucket":  "MINIO_AUTO_CREATE_BUCKET",
		"auth.public_key_path":      "AUTH_PUBLIC_KEY_PATH",
		"auth.disabled":             "AUTH_DISABLED",
		"render.canvas_scale":       "RENDER_CANVAS_SCALE",
		"render.thumbnail_width_px": "RENDER_THUMBNAIL_WIDTH_PX",
		"render.max_thumbnail_px":   "RENDER_MAX_THUMBNAIL_PX",
		"render.fetch_timeout":      "RENDER_FETCH_TIMEOUT",
		"render.fetch_concurrency":  "RENDER_FETCH_CONCURRENCY",
		"render.max_image_bytes":    "RENDER_MAX_IMAGE_BYTES",
		"render.max_image_pixels":   "RENDER_MAX_IMAGE_PIXELS",
		"render.font_dir":           "RENDER_FONT_DIR",
		"render.engine":             "RENDER_ENGINE",
		"render.local_image_root":   "RENDER_LOCAL_IMAGE_ROOT",
		"render.default_text_color": "RENDER_DEFAULT_TEXT_COLOR",
		"worker.concurrency":        "WORKER_CONCURRENCY",
		"worker.max_retry":          "WORKER_MAX_RETRY",
		"worker.metrics_port":       "WORKER_METRICS_PORT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.RenderRateLimit < 0 {
		return errors.New("api render rate limit must not be negative")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.MinIO.PublicEndpoint == "" {
		return errors.New("minio public endpoint is required")
	}
	if !cfg.Auth.Disabled && cfg.Auth.PublicKeyPath == "" {
		return errors.New("auth public key path is required unless auth is disabled")
	}
	if cfg.Render.CanvasScale <= 0 {
		return errors.New("render canvas scale must be positive")
	}
	if cfg.Render.ThumbnailWidthPx <= 0 {
		return errors.New("render thumbnail width must be positive")
	}
	if cfg.Render.MaxThumbnailPx < cfg.Render.ThumbnailWidthPx {
		return errors.New("render max thumbnail size must be at least the thumbnail width")
	}
	if cfg.Render.FetchConcurrency <= 0 {
		return errors.New("render fetch concurrency must be positive")
	}
	if cfg.Render.MaxImageBytes <= 0 {
		return errors.New("render max image bytes must be positive")
	}
	if cfg.Render.MaxImagePixels <= 0 {
		return errors.New("render max image pixels must be positive")
	}
	if cfg.Render.Engine != EngineFPDF && cfg.Render.Engine != EngineChromium {
		return fmt.Errorf("render engine %q must be %q or %q", cfg.Render.Engine, EngineFPDF, EngineChromium)
	}
	if _, err := card.ParseColor(cfg.Render.DefaultTextColor); err != nil {
		return fmt.Errorf("render default text color: %w", err)
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	if cfg.Worker.MaxRetry < 0 {
		return errors.New("worker max retry must not be negative")
	}
	return nil
}
