package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	GinMode    string

	DBDriver     string // mysql | postgres | sqlite
	DBHost       string
	DBPort       int
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string
	DBSqlitePath string

	JWTSecret     string
	JWTExpiration time.Duration

	CacheEnabled  bool
	CacheTTLLots  time.Duration
	CacheTTLSpots time.Duration
	CacheTTLChart time.Duration

	ExportDir     string
	ExportWorkers int

	SMTPHost string
	SMTPPort int
	SMTPFrom string

	ReminderCron      string
	MonthlyReportCron string

	AdminEmail    string
	AdminPassword string

	SpotPrefix string
}

// Load 載入 .env 與環境變數，未設定時使用預設值
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load .env file: %v", err)
	}

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		GinMode:    getEnv("GIN_MODE", "release"),

		DBDriver:     strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBHost:       getEnv("DB_HOST", "127.0.0.1"),
		DBPort:       getEnvInt("DB_PORT", 3306),
		DBUser:       getEnv("DB_USER", "parking_user"),
		DBPassword:   getEnv("DB_PASSWORD", "parking1234"),
		DBName:       getEnv("DB_NAME", "parking_db"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		DBSqlitePath: getEnv("DB_SQLITE_PATH", "parking.db"),

		JWTSecret:     getEnv("JWT_SECRET", "change-me-parking-jwt-secret"),
		JWTExpiration: time.Duration(getEnvInt("JWT_EXPIRATION_HOURS", 24)) * time.Hour,

		CacheEnabled:  getEnvBool("CACHE_ENABLED", true),
		CacheTTLLots:  time.Duration(getEnvInt("CACHE_TTL_LOTS", 300)) * time.Second,
		CacheTTLSpots: time.Duration(getEnvInt("CACHE_TTL_SPOTS", 120)) * time.Second,
		CacheTTLChart: time.Duration(getEnvInt("CACHE_TTL_CHARTS", 60)) * time.Second,

		ExportDir:     getEnv("EXPORT_DIR", "exports"),
		ExportWorkers: getEnvInt("EXPORT_WORKERS", 2),

		SMTPHost: getEnv("SMTP_HOST", "localhost"),
		SMTPPort: getEnvInt("SMTP_PORT", 1025),
		SMTPFrom: getEnv("SMTP_FROM", "admin@parking.local"),

		ReminderCron:      getEnv("REMINDER_CRON", "0 18 * * *"),
		MonthlyReportCron: getEnv("MONTHLY_REPORT_CRON", "0 8 1 * *"),

		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@parking.local"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin1234"),

		SpotPrefix: getEnv("SPOT_PREFIX", "S"),
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) bool {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Invalid boolean for %s=%q, using default %t", key, raw, fallback)
		return fallback
	}
	return value
}
