package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"UTC"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Storage struct {
		Driver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
		PGDSN  string `envconfig:"PG_DSN"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Cache struct {
		Driver     string        `envconfig:"CACHE_DRIVER" default:"memory"`
		MaxEntries int           `envconfig:"CACHE_MAX_ENTRIES" default:"4096"`
		FeedTTL    time.Duration `envconfig:"FEED_CACHE_TTL"`
	} `envconfig:""`

	Feed struct {
		Period   string `envconfig:"RELINK_PERIOD" default:"month"`
		PageSize int    `envconfig:"FEED_PAGE_SIZE" default:"10"`
	} `envconfig:""`

	Auth struct {
		JWTSecret   string `envconfig:"AUTH_JWT_SECRET"`
		JWTIssuer   string `envconfig:"AUTH_JWT_ISSUER"`
		AdminUserID string `envconfig:"ADMIN_USER_ID"`
	} `envconfig:""`

	Metadata struct {
		LinkPreviewKey string        `envconfig:"LINKPREVIEW_API_KEY"`
		LinkPreviewURL string        `envconfig:"LINKPREVIEW_BASE_URL" default:"https://api.linkpreview.net"`
		Timeout        time.Duration `envconfig:"METADATA_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Queue struct {
		Driver    string `envconfig:"QUEUE_DRIVER" default:"none"`
		RabbitURL string `envconfig:"RABBITMQ_URL"`
		NATSURL   string `envconfig:"NATS_URL"`
		Events    string `envconfig:"EVENTS_QUEUE" default:"relink_events"`
	} `envconfig:""`

	Reconcile struct {
		Spec    string        `envconfig:"RECONCILE_SPEC" default:"0 * * * *"`
		Timeout time.Duration `envconfig:"RECONCILE_TIMEOUT" default:"15m"`
	} `envconfig:""`
}

// Location возвращает часовой пояс границ периода.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load загружает конфиг из окружения. Файл .env необязателен.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
