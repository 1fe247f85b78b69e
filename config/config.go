package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultGallerySubDir    = "gallery"
	DefaultThumbnailsSubDir = "thumbnails"
)

const (
	defaultThumbnailQueueSize  = 200
	defaultNumThumbnailWorkers = 4
	defaultThumbnailMaxSize    = 600
	defaultMaxUploadMB         = 200
)

type Config struct {
	// storage layout
	DataDir      string // root of the gallery tree and default database location
	GalleryDir   string // {DataDir}/gallery
	DatabasePath string
	FrontendDir  string // compiled front-end bundle

	Port           string
	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxUploadBytes int64

	// auth
	JWTSecret        string
	GalleryJWTSecret string
	TokenTTL         time.Duration
	GalleryTokenTTL  time.Duration
	AdminUsername    string
	AdminPassword    string
	RateLimitRPS     float64
	RateLimitBurst   int

	// logging
	LogLevel  string
	LogFormat string

	// thumbnail generation settings
	ThumbnailMaxSize    int
	ThumbnailQueueSize  int
	NumThumbnailWorkers int
	WatermarkPath       string
	WatermarkOpacity    float64
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %v. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %s. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return value, nil
}

func LoadConfig() (Config, error) {
	dataDir := getEnvOrDefault("DATA_DIR", filepath.Join(".", "data"))
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for data directory '%s': %w", dataDir, err)
	}

	frontendDir := getEnvOrDefault("FRONTEND_DIR", filepath.Join(".", "public"))
	absFrontendDir, err := filepath.Abs(frontendDir)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for frontend directory '%s': %w", frontendDir, err)
	}

	jwtSecret, err := requireEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}
	galleryJWTSecret, err := requireEnv("GALLERY_JWT_SECRET")
	if err != nil {
		return Config{}, err
	}
	if galleryJWTSecret == jwtSecret {
		return Config{}, fmt.Errorf("GALLERY_JWT_SECRET must differ from JWT_SECRET")
	}
	adminPassword, err := requireEnv("ADMIN_PASSWORD")
	if err != nil {
		return Config{}, err
	}

	var origins []string
	for _, o := range strings.Split(getEnvOrDefault("CORS_ORIGINS", "http://localhost:5173"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	cfg := Config{
		DataDir:             absDataDir,
		GalleryDir:          filepath.Join(absDataDir, getEnvOrDefault("GALLERY_SUBDIR", DefaultGallerySubDir)),
		DatabasePath:        getEnvOrDefault("DATABASE_PATH", filepath.Join(absDataDir, "app.db")),
		FrontendDir:         absFrontendDir,
		Port:                getEnvOrDefault("PORT", "8080"),
		CORSOrigins:         origins,
		RequestTimeout:      getEnvDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		MaxUploadBytes:      int64(getEnvIntOrDefault("MAX_UPLOAD_MB", defaultMaxUploadMB)) << 20,
		JWTSecret:           jwtSecret,
		GalleryJWTSecret:    galleryJWTSecret,
		TokenTTL:            getEnvDurationOrDefault("TOKEN_TTL", 24*time.Hour),
		GalleryTokenTTL:     getEnvDurationOrDefault("GALLERY_TOKEN_TTL", 12*time.Hour),
		AdminUsername:       getEnvOrDefault("ADMIN_USERNAME", "admin"),
		AdminPassword:       adminPassword,
		RateLimitRPS:        getEnvFloatOrDefault("RATE_LIMIT_RPS", 1),
		RateLimitBurst:      getEnvIntOrDefault("RATE_LIMIT_BURST", 5),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "text"),
		ThumbnailMaxSize:    getEnvIntOrDefault("THUMBNAIL_MAX_SIZE", defaultThumbnailMaxSize),
		ThumbnailQueueSize:  getEnvIntOrDefault("THUMBNAIL_QUEUE_SIZE", defaultThumbnailQueueSize),
		NumThumbnailWorkers: getEnvIntOrDefault("NUM_THUMBNAIL_WORKERS", defaultNumThumbnailWorkers),
		WatermarkPath:       os.Getenv("WATERMARK_PATH"),
		WatermarkOpacity:    getEnvFloatOrDefault("WATERMARK_OPACITY", 0.5),
	}

	return cfg, nil
}
