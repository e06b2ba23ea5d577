package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Поддерживаемые хранилища.
const (
	StorageDriverMemory       = "memory"
	StorageDriverPostgres     = "postgres"
	StorageDriverSQLite       = "sqlite"
	StorageDriverGormPostgres = "gorm-postgres"
)

// Config описывает настройки запуска приложения. Списки (origins, brokers)
// хранятся строками через запятую, чтобы Config оставался сравнимым.
type Config struct {
	// Env: окружение запуска (OMS_ENV). От него зависит режим gin.
	Env string

	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	SQLitePath          string
	PostgresAutoMigrate bool

	CORSAllowedOrigins string
	KafkaBrokers       string
	KafkaTopic         string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending: возраст старейшего неотправленного события,
	// после которого /healthz сообщает degraded.
	OutboxMaxPending time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		Env: "production",

		HTTPAddr:    ":5000",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		SQLitePath:          "bulk-oms.db",
		PostgresAutoMigrate: true,

		CORSAllowedOrigins: "http://localhost:5173",
		KafkaTopic:         "oms.order.events",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,
		OutboxMaxPending:   5 * time.Minute,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// Validate проверяет сочетание хранилища и его параметров.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres, StorageDriverGormPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("storage driver %q requires OMS_POSTGRES_DSN", c.StorageDriver)
		}
	case StorageDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("storage driver \"sqlite\" requires OMS_SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.StorageDriver)
	}

	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("http address is required")
	}
	return nil
}

// GinMode выбирает режим gin: debug только для локальной разработки.
func (c Config) GinMode() string {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "development", "dev", "local":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}

// AllowedOrigins разбирает CORSAllowedOrigins.
func (c Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// Brokers разбирает KafkaBrokers; пустой список выключает Kafka.
func (c Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
