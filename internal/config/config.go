package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"

	"rte-image-backend/internal/imagerender"
)

type Config struct {
	// Database
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	DatabaseURL string

	// Redis
	EnableCache bool
	RedisURL    string
	AssetTTL    time.Duration

	// JWT
	JWTSecret string

	// Server
	Port        string
	Environment string
	LogLevel    string

	// CORS
	CORSOrigins []string

	// Rate Limiting
	RateLimitRequests int
	RateLimitWindow   int
	RateLimitBurst    int

	// Uploads
	MaxUploadSize           int64
	UploadRateLimitRequests int
	UploadRateLimitWindow   int

	// Storage
	StorageDir      string
	PublicBaseURL   string
	ProcessedFolder string
	MaxSourceSize   int64

	// Rendering
	ImageMaxWidth     int
	ImageMaxHeight    int
	PopupMaxWidth     int
	PopupMaxHeight    int
	PopupTarget       string
	PopupClass        string
	LightboxRel       string
	AllowedFileTables []string

	// Reference validation
	EnableScheduledValidation bool
	ValidationInterval        time.Duration
	ValidatorWorkers          int
	ScanBatchSize             int

	// Features
	EnableMetrics bool

	// Site Meta
	SiteURL string
}

func New() *Config {
	c := &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "rteuser"),
		DBPassword: getEnv("DB_PASSWORD", "rtepassword"),
		DBName:     getEnv("DB_NAME", "rtedb"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Redis
		EnableCache: getEnvAsBool("ENABLE_CACHE", false),
		RedisURL:    getEnv("REDIS_URL", "localhost:6379"),
		AssetTTL:    getEnvAsDuration("ASSET_CACHE_TTL", 10*time.Minute),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "change-this-secret-in-production"),

		// Server
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "debug"),

		// CORS
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080")),

		// Rate Limiting
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 300),
		RateLimitWindow:   getEnvAsInt("RATE_LIMIT_WINDOW", 60),
		RateLimitBurst:    getEnvAsInt("RATE_LIMIT_BURST", 0),

		// Uploads
		MaxUploadSize:           getEnvAsSize("MAX_UPLOAD_SIZE", 20*units.MiB),
		UploadRateLimitRequests: getEnvAsInt("UPLOAD_RATE_LIMIT_REQUESTS", 10),
		UploadRateLimitWindow:   getEnvAsInt("UPLOAD_RATE_LIMIT_WINDOW", 300),

		// Storage
		StorageDir:      getEnv("STORAGE_DIR", "./fileadmin"),
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", "/fileadmin"), "/"),
		ProcessedFolder: strings.Trim(getEnv("PROCESSED_FOLDER", "_processed_"), "/"),
		MaxSourceSize:   getEnvAsSize("MAX_SOURCE_SIZE", 50*units.MiB),

		// Rendering
		ImageMaxWidth:     getEnvAsInt("IMAGE_MAX_WIDTH", 0),
		ImageMaxHeight:    getEnvAsInt("IMAGE_MAX_HEIGHT", 0),
		PopupMaxWidth:     getEnvAsInt("POPUP_MAX_WIDTH", 1920),
		PopupMaxHeight:    getEnvAsInt("POPUP_MAX_HEIGHT", 1080),
		PopupTarget:       getEnv("POPUP_TARGET", ""),
		PopupClass:        getEnv("POPUP_CLASS", "lightbox"),
		LightboxRel:       getEnv("LIGHTBOX_REL", "lightbox"),
		AllowedFileTables: splitList(getEnv("ALLOWED_FILE_TABLES", imagerender.DefaultFileTable)),

		// Reference validation
		EnableScheduledValidation: getEnvAsBool("ENABLE_SCHEDULED_VALIDATION", false),
		ValidationInterval:        getEnvAsDuration("VALIDATION_INTERVAL", 6*time.Hour),
		ValidatorWorkers:          getEnvAsInt("VALIDATOR_WORKERS", 4),
		ScanBatchSize:             getEnvAsInt("SCAN_BATCH_SIZE", 200),

		// Features
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),

		// Site Meta
		SiteURL: strings.TrimRight(getEnv("SITE_URL", "http://localhost:8080"), "/"),
	}

	// Build DSN
	c.DatabaseURL = fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)

	return c
}

// RenderOptions derives the rendering pipeline options from the configuration.
func (c *Config) RenderOptions() imagerender.Options {
	return imagerender.Options{
		MaxWidth:  c.ImageMaxWidth,
		MaxHeight: c.ImageMaxHeight,
		Popup: imagerender.PopupOptions{
			MaxWidth:  c.PopupMaxWidth,
			MaxHeight: c.PopupMaxHeight,
			Target:    c.PopupTarget,
			Class:     c.PopupClass,
			Rel:       c.LightboxRel,
		},
	}
}

// ProcessedPathPrefix is the public URL prefix under which processed variants
// are served.
func (c *Config) ProcessedPathPrefix() string {
	return c.PublicBaseURL + "/" + c.ProcessedFolder + "/"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return valueStr == "true" || valueStr == "1"
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvAsSize(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := units.RAMInBytes(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
