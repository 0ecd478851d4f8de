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
	Mode string

	TelegramToken string
	AdminIDs      []int64

	DBDriver  string
	DBDSN     string
	RedisAddr string

	ReplicateToken      string
	ReplicateOwner      string
	ReplicateTrainer    string
	ReplicateVideoModel string

	YooKassaShopID    string
	YooKassaSecretKey string
	YooKassaReturnURL string

	TranslateAPIKey string

	LlamaAPIURL string
	LlamaAPIKey string
	LlamaModel  string

	HTTPPort       string
	LogLevel       string
	LogFile        string
	JaegerEndpoint string

	PhotoCost         int
	VideoCost         int
	MinTrainingPhotos int
	MaxTrainingPhotos int
	WelcomeBonus      int
	ReferralBonus     int
	BroadcastRate     int // сообщений в секунду

	ImagePollInterval      time.Duration
	VideoPollInterval      time.Duration
	TrainingPollInterval   time.Duration
	BroadcastCheckInterval time.Duration
	PaymentCheckInterval   time.Duration
	PaymentTTL             time.Duration
}

// Load загружает .env (если есть) и собирает конфигурацию
func Load(envFiles ...string) (*Config, error) {
	loadEnv(envFiles)
	cfg := NewConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadForMigrate как Load, но без проверки токенов внешних сервисов
func LoadForMigrate(envFiles ...string) (*Config, error) {
	loadEnv(envFiles)
	cfg := NewConfig()
	if err := cfg.ValidateForMigrate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnv подгружает переменные из файлов; уже заданные в окружении не перезаписываются
func loadEnv(files []string) {
	for _, f := range files {
		if f == "" {
			continue
		}
		_ = godotenv.Load(f)
	}
	if len(files) == 0 {
		_ = godotenv.Load()
	}
}

// NewConfig создает новую конфигурацию на основе переменных окружения
func NewConfig() *Config {
	mode := getenv("MODE", "production")

	cfg := &Config{
		Mode:                mode,
		TelegramToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		AdminIDs:            parseIDs(os.Getenv("ADMIN_TELEGRAM_IDS")),
		DBDriver:            getenv("DB_DRIVER", "sqlite"),
		DBDSN:               getenv("DB_DSN", "pixelpie.db"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		ReplicateToken:      os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateOwner:      os.Getenv("REPLICATE_OWNER"),
		ReplicateTrainer:    getenv("REPLICATE_TRAINER", "ostris/flux-dev-lora-trainer:e440909d3512c31646ee2e0c7d6f6f4923224863a6a10c494606e79fb5844497"),
		ReplicateVideoModel: getenv("REPLICATE_VIDEO_MODEL", "kwaivgi/kling-v1.6-standard"),
		YooKassaShopID:      os.Getenv("YK_SHOP_ID"),
		YooKassaSecretKey:   os.Getenv("YK_SECRET_KEY"),
		YooKassaReturnURL:   getenv("YK_RETURN_URL", "https://t.me/pixelpie_bot"),
		TranslateAPIKey:     os.Getenv("GOOGLE_TRANSLATE_API_KEY"),
		LlamaAPIURL:         os.Getenv("LLAMA_API_URL"),
		LlamaAPIKey:         os.Getenv("LLAMA_API_KEY"),
		LlamaModel:          getenv("LLAMA_MODEL", "meta-llama/Meta-Llama-3.1-70B-Instruct"),
		HTTPPort:            getenv("HTTP_PORT", "8080"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogFile:             os.Getenv("LOG_FILE"),
		JaegerEndpoint:      os.Getenv("JAEGER_ENDPOINT"),
		PhotoCost:           getenvInt("PHOTO_COST", 1),
		VideoCost:           getenvInt("VIDEO_COST", 20),
		MinTrainingPhotos:   getenvInt("MIN_TRAINING_PHOTOS", 10),
		MaxTrainingPhotos:   getenvInt("MAX_TRAINING_PHOTOS", 20),
		WelcomeBonus:        getenvInt("WELCOME_BONUS", 3),
		ReferralBonus:       getenvInt("REFERRAL_BONUS", 10),
		BroadcastRate:       getenvInt("BROADCAST_RATE", 25),
		PaymentTTL:          24 * time.Hour,
	}

	switch mode {
	case "dev", "development":
		cfg.ImagePollInterval = 2 * time.Second
		cfg.VideoPollInterval = 5 * time.Second
		cfg.TrainingPollInterval = 15 * time.Second
		cfg.BroadcastCheckInterval = 10 * time.Second // для разработки
		cfg.PaymentCheckInterval = 30 * time.Second
	default: // production
		cfg.ImagePollInterval = 5 * time.Second
		cfg.VideoPollInterval = 15 * time.Second
		cfg.TrainingPollInterval = time.Minute
		cfg.BroadcastCheckInterval = 30 * time.Second
		cfg.PaymentCheckInterval = 5 * time.Minute
	}

	return cfg
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN не установлен")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER: неизвестный драйвер %q", c.DBDriver)
	}
	if c.PhotoCost < 0 || c.VideoCost < 0 {
		return fmt.Errorf("PHOTO_COST и VIDEO_COST не могут быть отрицательными")
	}
	if c.MinTrainingPhotos < 1 || c.MaxTrainingPhotos < c.MinTrainingPhotos {
		return fmt.Errorf("MIN_TRAINING_PHOTOS/MAX_TRAINING_PHOTOS: некорректный диапазон %d..%d", c.MinTrainingPhotos, c.MaxTrainingPhotos)
	}
	if c.BroadcastRate <= 0 {
		return fmt.Errorf("BROADCAST_RATE должен быть больше нуля")
	}
	return nil
}

// ValidateForMigrate проверяет параметры, нужные только для миграций
func (c *Config) ValidateForMigrate() error {
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN не установлен")
	}
	return nil
}

// IsDevMode проверяет, работает ли приложение в режиме разработки
func (c *Config) IsDevMode() bool {
	return c.Mode == "dev" || c.Mode == "development"
}

// IsAdmin проверяет, входит ли пользователь в список администраторов
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// getenv возвращает значение переменной окружения или значение по умолчанию
func getenv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getenvInt возвращает целочисленное значение переменной окружения
func getenvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
