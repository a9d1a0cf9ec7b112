package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	StorageBackend string
	StoragePath    string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string

	DefaultStorageLimit int64
	MaxUploadBytes      int64
	WorkerPollInterval  time.Duration
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		StorageBackend:       strings.ToLower(getenv("STORAGE_BACKEND", StorageFS)),
		StoragePath:          getenv("STORAGE_PATH", "./storage/media"),
		S3Bucket:             getenv("S3_BUCKET", ""),
		S3Region:             getenv("S3_REGION", "us-east-1"),
		S3Endpoint:           getenv("S3_ENDPOINT", ""),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	var err error
	if cfg.DatabaseURL, err = required("DATABASE_URL"); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret, err = required("JWT_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.DefaultStorageLimit, err = getBytes("DEFAULT_STORAGE_LIMIT", 1<<30); err != nil {
		return Config{}, err
	}
	if cfg.MaxUploadBytes, err = getBytes("MAX_UPLOAD_BYTES", 100<<20); err != nil {
		return Config{}, err
	}
	if cfg.WorkerPollInterval, err = getDuration("WORKER_POLL_INTERVAL", 800*time.Millisecond); err != nil {
		return Config{}, err
	}

	switch cfg.StorageBackend {
	case StorageFS:
	case StorageS3:
		if cfg.S3Bucket == "" {
			return Config{}, fmt.Errorf("missing env: S3_BUCKET (required when STORAGE_BACKEND=s3)")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORAGE_BACKEND %q (want fs or s3)", cfg.StorageBackend)
	}

	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func required(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("missing env: %s", key)
	}
	return v, nil
}

func getBytes(key string, def int64) (int64, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive byte count", key, v)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive duration", key, v)
	}
	return d, nil
}
