package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/yourusername/hiring-api/internal/service/verification"
)

// Config хранит все настройки приложения
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Email        EmailConfig
	Verification VerificationConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
	// AllowedOrigins: список origin для CORS. Пустой список разрешает localhost:3000.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL.
// Если Host пуст, сервис работает без БД.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт).
	Addrs []string `mapstructure:"addrs"`

	// Addr: Адрес для режима 'single', если Addrs пустой.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	// MaxRetries: Максимальное количество попыток переподключения (-1 - бесконечно).
	MaxRetries int `mapstructure:"max_retries"`

	// MinRetryBackoff / MaxRetryBackoff в миллисекундах.
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`

	// KeyPrefix: префикс ключей кеша заявок
	KeyPrefix string `mapstructure:"key_prefix"`

	// LookupCacheTTL: время жизни закешированной заявки
	LookupCacheTTL time.Duration `mapstructure:"lookup_cache_ttl"`
}

// Enabled сообщает, настроен ли Redis
func (r RedisConfig) Enabled() bool {
	return len(r.Addrs) > 0 || r.Addr != ""
}

// EmailConfig содержит настройки отправки писем через Resend.
// Без ResendAPIKey письма не отправляются (только логируются).
type EmailConfig struct {
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

// VerificationConfig содержит параметры кодов подтверждения и приватных ссылок
type VerificationConfig struct {
	CodeTTL            time.Duration `mapstructure:"code_ttl"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	ResendCooldown     time.Duration `mapstructure:"resend_cooldown"`
	StatusGrace        time.Duration `mapstructure:"status_grace"`
	TokenTTL           time.Duration `mapstructure:"token_ttl"`
	UsedTokenRetention time.Duration `mapstructure:"used_token_retention"`
	ReapInterval       time.Duration `mapstructure:"reap_interval"`
	CodePepper         string        `mapstructure:"code_pepper"`
	PublicBaseURL      string        `mapstructure:"public_base_url"`
}

// Policy переводит конфигурацию в политику верификации, нулевые значения заменяются умолчаниями
func (v VerificationConfig) Policy() verification.Policy {
	return verification.Policy{
		CodeTTL:            v.CodeTTL,
		MaxAttempts:        v.MaxAttempts,
		ResendCooldown:     v.ResendCooldown,
		StatusGrace:        v.StatusGrace,
		TokenTTL:           v.TokenTTL,
		UsedTokenRetention: v.UsedTokenRetention,
		ReapInterval:       v.ReapInterval,
		CodePepper:         v.CodePepper,
		PublicBaseURL:      v.PublicBaseURL,
	}.WithDefaults()
}

// Enabled сообщает, настроена ли БД
func (d *DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load загружает конфигурацию из файла
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Новый экземпляр Viper, без глобального состояния

	// 1. Значения по умолчанию
	defaults := verification.DefaultPolicy()
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.readtimeout", 10)
	vip.SetDefault("server.writetimeout", 10)
	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("redis.mode", "single")
	vip.SetDefault("redis.key_prefix", "hiring")
	vip.SetDefault("redis.lookup_cache_ttl", 5*time.Minute)
	vip.SetDefault("email.from", "Hiring <no-reply@localhost>")
	vip.SetDefault("verification.code_ttl", defaults.CodeTTL)
	vip.SetDefault("verification.max_attempts", defaults.MaxAttempts)
	vip.SetDefault("verification.resend_cooldown", defaults.ResendCooldown)
	vip.SetDefault("verification.status_grace", defaults.StatusGrace)
	vip.SetDefault("verification.token_ttl", defaults.TokenTTL)
	vip.SetDefault("verification.used_token_retention", defaults.UsedTokenRetention)
	vip.SetDefault("verification.reap_interval", defaults.ReapInterval)
	vip.SetDefault("verification.public_base_url", defaults.PublicBaseURL)

	// 2. Привязываем переменные окружения ЯВНО
	// Database
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	// Redis
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")
	vip.BindEnv("redis.key_prefix", "REDIS_KEY_PREFIX")

	// Email
	vip.BindEnv("email.resend_api_key", "RESEND_API_KEY")
	vip.BindEnv("email.from", "EMAIL_FROM")

	// Verification
	vip.BindEnv("verification.code_ttl", "VERIFICATION_CODE_TTL")
	vip.BindEnv("verification.max_attempts", "VERIFICATION_MAX_ATTEMPTS")
	vip.BindEnv("verification.resend_cooldown", "VERIFICATION_RESEND_COOLDOWN")
	vip.BindEnv("verification.status_grace", "VERIFICATION_STATUS_GRACE")
	vip.BindEnv("verification.token_ttl", "PRIVATE_TOKEN_TTL")
	vip.BindEnv("verification.used_token_retention", "PRIVATE_TOKEN_RETENTION")
	vip.BindEnv("verification.reap_interval", "VERIFICATION_REAP_INTERVAL")
	vip.BindEnv("verification.code_pepper", "VERIFICATION_CODE_PEPPER")
	vip.BindEnv("verification.public_base_url", "PUBLIC_BASE_URL")

	// Server
	vip.BindEnv("server.port", "SERVER_PORT")

	// 3. Файл конфигурации (не страшно, если его нет, т.к. есть BindEnv)
	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else if os.IsNotExist(err) {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	// 4. Анмаршалим конфигурацию (Viper объединит файл и env vars)
	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 5. Логирование конфигурации (только в debug режиме)
	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Enabled: %t", cfg.Database.Enabled())
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Enabled: %t (mode: %s)", cfg.Redis.Enabled(), cfg.Redis.Mode)
		log.Printf("Resend API Key Set: %t", cfg.Email.ResendAPIKey != "")
		log.Printf("Code TTL: %s, Max Attempts: %d, Resend Cooldown: %s", cfg.Verification.CodeTTL, cfg.Verification.MaxAttempts, cfg.Verification.ResendCooldown)
		log.Printf("Private Token TTL: %s", cfg.Verification.TokenTTL)
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	// 6. Проверка параметров
	if cfg.Database.Enabled() && (cfg.Database.DBName == "" || cfg.Database.User == "") {
		return nil, fmt.Errorf("database configuration (dbname, user) is incomplete in config (check DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.Verification.MaxAttempts < 0 {
		return nil, fmt.Errorf("verification.max_attempts must not be negative")
	}
	if os.Getenv("GIN_MODE") == "release" {
		if cfg.Verification.CodePepper == "" {
			return nil, fmt.Errorf("verification code pepper is required in release mode (check VERIFICATION_CODE_PEPPER env var)")
		}
		if cfg.Database.Enabled() && cfg.Database.Password == "" {
			return nil, fmt.Errorf("database password is required in release mode (check DATABASE_PASSWORD env var)")
		}
	}

	return &cfg, nil
}
