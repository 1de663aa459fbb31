package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Хранилища данных
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config структура конфигурации
type Config struct {
	AppEnv           string
	Port             string
	WSAddr           string
	StorageDriver    string
	TelegramBotToken string
	JWTSecret        string
	JWTTTL           time.Duration
	RequestTimeout   time.Duration
	SnippetLength    int
	DatabaseURL      string
	DatabaseConfig   DatabaseConfig
	CloudinaryConfig CloudinaryConfig
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

// CloudinaryConfig содержит конфигурацию для Cloudinary
type CloudinaryConfig struct {
	CloudName    string
	APIKey       string
	APISecret    string
	UploadPreset string
	UploadFolder string
}

// Enabled сообщает, заданы ли ключи Cloudinary
func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// IsDev сообщает, запущен ли сервис локально
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev" || c.AppEnv == "local" || c.AppEnv == "development"
}

// LoadConfig загружает переменные из .env и окружения
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env файл не найден, используем переменные окружения")
	}

	maxConns, err := getEnvInt("PGMAXCONNS", 10)
	if err != nil {
		return nil, err
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("PGHOST", "localhost"),
		Port:     getEnv("PGPORT", "5432"),
		User:     getEnv("PGUSER", "flippy_user"),
		Password: getEnv("PGPASSWORD", "flippy_pass"),
		Name:     getEnv("PGDATABASE", "flippy"),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
		MaxConns: int32(maxConns),
	}

	// Формируем строку подключения к базе данных
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name, dbConfig.SSLMode)

	cloudinaryConfig := CloudinaryConfig{
		CloudName:    getEnv("CLOUDINARY_CLOUD_NAME", ""),
		APIKey:       getEnv("CLOUDINARY_API_KEY", ""),
		APISecret:    getEnv("CLOUDINARY_API_SECRET", ""),
		UploadPreset: getEnv("CLOUDINARY_UPLOAD_PRESET", "flippy_mvp"),
		UploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "flippy/listings"),
	}

	jwtTTL, err := getEnvDuration("JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	timeout, err := getEnvDuration("DB_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	snippetLength, err := getEnvInt("SNIPPET_LENGTH", 80)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "production"),
		Port:             getEnv("PORT", "8080"),
		WSAddr:           getEnv("WS_ADDR", ":8081"),
		StorageDriver:    getEnv("STORAGE_DRIVER", StoragePostgres),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTTTL:           jwtTTL,
		RequestTimeout:   timeout,
		SnippetLength:    snippetLength,
		DatabaseURL:      dbURL,
		DatabaseConfig:   dbConfig,
		CloudinaryConfig: cloudinaryConfig,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	var errs []error
	if c.TelegramBotToken == "" {
		errs = append(errs, errors.New("не задан TELEGRAM_BOT_TOKEN"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("не задан JWT_SECRET"))
	}
	if c.StorageDriver != StorageMemory && c.StorageDriver != StoragePostgres {
		errs = append(errs, fmt.Errorf("неизвестное хранилище %q", c.StorageDriver))
	}
	if c.SnippetLength < 0 {
		errs = append(errs, errors.New("SNIPPET_LENGTH не может быть отрицательным"))
	}
	return errors.Join(errs...)
}

// getEnv получает переменную окружения или использует дефолтное значение
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
