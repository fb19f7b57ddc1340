package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	BootstrapAdminPass    string
	AccessTokenTTLMinutes int
	LoginRatePerMinute    int
	InvoicePrefix         string
	InvoiceWidth          int
	StorageTimeout        time.Duration
	LogLevel              string
	LogDevelopment        bool
	Media                 MediaConfig
}

type MediaConfig struct {
	Driver          string // s3 or local
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	MaxUploadBytes  int64
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Real environment variables win over .env.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL := getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1)
	width := getEnvInt("INVOICE_WIDTH", 3, 1)
	timeoutMS := getEnvInt("STORAGE_TIMEOUT_MS", 5000, 50)
	loginRate := getEnvInt("LOGIN_RATE_PER_MINUTE", 5, 1)
	maxUpload := getEnvInt("MEDIA_MAX_UPLOAD_MB", 10, 1)

	driver := strings.ToLower(getEnv("MEDIA_DRIVER", ""))
	if driver == "" {
		driver = "local"
		if os.Getenv("AWS_ACCESS_KEY_ID") != "" {
			driver = "s3"
		}
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		BootstrapAdminPass:    os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		AccessTokenTTLMinutes: tokenTTL,
		LoginRatePerMinute:    loginRate,
		InvoicePrefix:         strings.TrimSpace(getEnv("INVOICE_PREFIX", "S")),
		InvoiceWidth:          width,
		StorageTimeout:        time.Duration(timeoutMS) * time.Millisecond,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogDevelopment:        getEnvBool("LOG_DEV", false),
		Media: MediaConfig{
			Driver:          driver,
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "ap-southeast-1"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			PublicBaseURL:   strings.TrimRight(os.Getenv("MEDIA_PUBLIC_BASE_URL"), "/"),
			MaxUploadBytes:  int64(maxUpload) << 20,
		},
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int, min int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < min {
		return fallback
	}
	return val
}

func getEnvBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return val
}
