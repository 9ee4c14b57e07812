package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string. DATABASE_URL wins over the
// individual host settings when it is present.
func (c *DBConfig) GetDSN() string {
	if c.URL != "" {
		return normalizeDatabaseURL(c.URL)
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Env            string
	CORSOrigins    []string
	MaxUploadBytes int64
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey          string
	Algorithm          string
	AccessTokenExpire  time.Duration
	RefreshTokenExpire time.Duration
}

// S3Config holds object storage configuration
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	PresignTTL      time.Duration
}

// AIConfig holds the vendor credentials used for detections
type AIConfig struct {
	GoogleAPIKey     string
	GeminiModel      string
	TogetherAPIKey   string
	TogetherBaseURL  string
	TogetherModel    string
	HyperbolicAPIKey string
	HyperbolicURL    string
	HyperbolicModel  string
	CacheTTL         time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL string
}

// ExtractionConfig holds document text extraction settings
type ExtractionConfig struct {
	ProcessorURL string
	AuthToken    string
	Timeout      time.Duration
	Stream       string
	Group        string
	Consumer     string
	MaxAttempts  int
	Block        time.Duration

	// Pending jobs idle for ReclaimMinIdle are taken over by another worker
	ReclaimMinIdle  time.Duration
	ReclaimInterval time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// Config holds all configuration
type Config struct {
	DB         DBConfig
	Server     ServerConfig
	JWT        JWTConfig
	S3         S3Config
	AI         AIConfig
	Redis      RedisConfig
	Extraction ExtractionConfig
	Log        LogConfig
	Metrics    MetricsConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	hostname, _ := os.Hostname()

	config := &Config{
		DB: DBConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "docvision"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8000"),
			Env:            getEnv("APP_ENV", "development"),
			CORSOrigins:    getEnvAsList("CORS_ORIGINS", []string{"*"}),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 50<<20)),
		},
		JWT: JWTConfig{
			SecretKey:          getEnv("SECRET_KEY", ""),
			Algorithm:          getEnv("ALGORITHM", "HS256"),
			AccessTokenExpire:  time.Duration(getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
			RefreshTokenExpire: time.Duration(getEnvAsInt("REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,
		},
		S3: S3Config{
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        getEnv("AWS_ENDPOINT_URL_S3", ""),
			Bucket:          getEnv("BUCKET_NAME", ""),
			PresignTTL:      getEnvAsDuration("PRESIGN_TTL", 1*time.Hour),
		},
		AI: AIConfig{
			GoogleAPIKey:     getEnv("GOOGLE_API_KEY", ""),
			GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-pro-latest"),
			TogetherAPIKey:   getEnv("TOGETHER_API_KEY", ""),
			TogetherBaseURL:  getEnv("TOGETHER_BASE_URL", "https://api.together.xyz/v1"),
			TogetherModel:    getEnv("TOGETHER_MODEL", "Qwen/Qwen2-VL-72B-Instruct"),
			HyperbolicAPIKey: getEnv("HYPERBOLIC_API_KEY", ""),
			HyperbolicURL:    getEnv("HYPERBOLIC_BASE_URL", "https://api.hyperbolic.xyz/v1"),
			HyperbolicModel:  getEnv("HYPERBOLIC_MODEL", "Qwen/Qwen2-VL-72B-Instruct"),
			CacheTTL:         getEnvAsDuration("DETECTION_CACHE_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Extraction: ExtractionConfig{
			ProcessorURL: getEnv("DOCUMENT_PROCESSOR_URL", ""),
			AuthToken:    getEnv("AUTH_TOKEN", ""),
			Timeout:      getEnvAsDuration("DOCUMENT_PROCESSOR_TIMEOUT", 60*time.Second),
			Stream:       getEnv("EXTRACTION_STREAM", "document_extraction"),
			Group:        getEnv("EXTRACTION_GROUP", "extraction_workers"),
			Consumer:     getEnv("EXTRACTION_CONSUMER", hostname),
			MaxAttempts:  getEnvAsInt("EXTRACTION_MAX_ATTEMPTS", 3),
			Block:        getEnvAsDuration("EXTRACTION_BLOCK", 5*time.Second),

			// Longer than DOCUMENT_PROCESSOR_TIMEOUT so a live worker never loses its job
			ReclaimMinIdle:  getEnvAsDuration("EXTRACTION_RECLAIM_MIN_IDLE", 5*time.Minute),
			ReclaimInterval: getEnvAsDuration("EXTRACTION_RECLAIM_INTERVAL", time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "docvision"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.JWT.Algorithm != "HS256" {
		return fmt.Errorf("unsupported ALGORITHM %q", c.JWT.Algorithm)
	}
	if c.JWT.SecretKey == "" {
		if c.IsProduction() {
			return errors.New("SECRET_KEY is required in production")
		}
		c.JWT.SecretKey = "development-secret-key"
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("database", maskDSN(c.DB.GetDSN())),
		zap.String("server_port", c.Server.Port),
		zap.String("bucket", c.S3.Bucket),
		zap.Bool("redis_enabled", c.Redis.URL != ""),
		zap.Bool("gemini_enabled", c.AI.GoogleAPIKey != ""),
		zap.Bool("together_enabled", c.AI.TogetherAPIKey != ""),
		zap.Bool("hyperbolic_enabled", c.AI.HyperbolicAPIKey != ""),
	}
}

func normalizeDatabaseURL(raw string) string {
	if strings.HasPrefix(raw, "postgres://") {
		return "postgresql://" + strings.TrimPrefix(raw, "postgres://")
	}
	return raw
}

// maskDSN hides credentials before the DSN reaches the logs.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "***MASKED***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get comma separated environment variables
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
