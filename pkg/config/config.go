package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Log          LogConfig
	Redis        RedisConfig
	CORS         CORSConfig
	Invitation   InvitationConfig
	Notification NotificationConfig
	Seed         SeedConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey     string // JWT密钥
	TokenDuration string // 令牌有效期，如 "24h"
}

type LogConfig struct {
	Level      string
	FilePath   string
	MaxSize    int    // MB
	MaxBackups int    // 保留的备份文件数
	MaxAge     int    // 保留天数
	Compress   bool   // 是否压缩
	Format     string // json 或 text
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string // 频道键前缀
}

type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int // 预检请求缓存时间（小时）
}

// InvitationConfig 邀请相关配置
type InvitationConfig struct {
	TTL           time.Duration // 邀请有效期
	ShareLinkBase string        // 分享链接前缀，令牌拼接在后面
	CleanupCron   string        // 过期邀请清理
	CleanupRetain time.Duration // 过期后保留多久再删除
	TrialDuration time.Duration // 新组织试用期
}

// NotificationConfig 通知分发配置
type NotificationConfig struct {
	Workers         int
	BufferSize      int
	RedeliveryCron  string
	RedeliveryAfter time.Duration // outbox事件超过该时间未分发则重投

	SendGridAPIKey  string
	SendGridSandbox bool
	FromEmail       string
	FromName        string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromPhone  string
}

type SeedConfig struct {
	Enabled       bool
	OrgName       string
	OwnerEmail    string
	OwnerPassword string
}

var (
	globalConfig *Config
	once         sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		var err error
		globalConfig, err = LoadConfig()
		if err != nil {
			panic("Failed to load config: " + err.Error())
		}
	})
	return globalConfig
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

// getEnvAsDuration 支持 time.ParseDuration 格式，额外支持 "7d" 这种天数写法
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

// ParseDuration 解析时长，支持天数后缀 d
func ParseDuration(value string) (time.Duration, error) {
	if strings.HasSuffix(value, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(value, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(value)
}

// 逗号分隔
func getEnvAsStringArray(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

func LoadConfig() (*Config, error) {
	// .env 不存在时直接使用环境变量
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Mode: getEnv("SERVER_MODE", "debug"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "gerz"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey:     getEnv("JWT_SECRET_KEY", "default-secret-change-me"),
			TokenDuration: getEnv("JWT_TOKEN_DURATION", "24h"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/app.log"),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 7),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),
			Compress:   getEnvAsBool("LOG_COMPRESS", true),
			Format:     getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "gerz"),
		},
		CORS: CORSConfig{
			AllowOrigins:     getEnvAsStringArray("CORS_ALLOW_ORIGINS", []string{"*"}),
			AllowMethods:     getEnvAsStringArray("CORS_ALLOW_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
			AllowHeaders:     getEnvAsStringArray("CORS_ALLOW_HEADERS", []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", "X-Request-ID"}),
			ExposeHeaders:    getEnvAsStringArray("CORS_EXPOSE_HEADERS", []string{"Content-Length", "Content-Type", "X-Request-ID"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 12),
		},
		Invitation: InvitationConfig{
			TTL:           getEnvAsDuration("INVITATION_TTL", 7*24*time.Hour),
			ShareLinkBase: getEnv("INVITATION_LINK_BASE", "http://localhost:3000/signup?token="),
			CleanupCron:   getEnv("INVITATION_CLEANUP_CRON", "@hourly"),
			CleanupRetain: getEnvAsDuration("INVITATION_CLEANUP_RETAIN", 30*24*time.Hour),
			TrialDuration: getEnvAsDuration("ORG_TRIAL_DURATION", 14*24*time.Hour),
		},
		Notification: NotificationConfig{
			Workers:          getEnvAsInt("NOTIFY_WORKERS", 4),
			BufferSize:       getEnvAsInt("NOTIFY_BUFFER_SIZE", 256),
			RedeliveryCron:   getEnv("NOTIFY_REDELIVERY_CRON", "@every 1m"),
			RedeliveryAfter:  getEnvAsDuration("NOTIFY_REDELIVERY_AFTER", 2*time.Minute),
			SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
			SendGridSandbox:  getEnvAsBool("SENDGRID_SANDBOX", false),
			FromEmail:        getEnv("NOTIFY_FROM_EMAIL", "no-reply@gerz.app"),
			FromName:         getEnv("NOTIFY_FROM_NAME", "Gerz"),
			TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			TwilioFromPhone:  getEnv("TWILIO_FROM_PHONE", ""),
		},
		Seed: SeedConfig{
			Enabled:       getEnvAsBool("SEED_DEMO", false),
			OrgName:       getEnv("SEED_ORG_NAME", "Demo Properties"),
			OwnerEmail:    getEnv("SEED_OWNER_EMAIL", "owner@example.com"),
			OwnerPassword: getEnv("SEED_OWNER_PASSWORD", "changeme123"),
		},
	}

	return config, nil
}
