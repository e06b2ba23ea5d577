package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bulk-oms/internal/app"
	"github.com/vladislavdragonenkov/bulk-oms/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	if format, _ := lookup(envLogFormat); strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	log.SetLevel(log.InfoLevel)
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		level, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).Warnf("%s ignored", envLogLevel)
			return
		}
		log.SetLevel(level)
	}
}

// loadEnvFiles подхватывает .env.<OMS_ENV> и .env, если они есть.
// Уже заданные переменные окружения не перезаписываются.
func loadEnvFiles() []string {
	files := []string{".env"}
	if env := strings.TrimSpace(os.Getenv(envAppEnv)); env != "" {
		files = append([]string{".env." + env}, files...)
	}

	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			log.WithError(err).WithField("file", file).Warn("failed to load env file")
			continue
		}
		loaded = append(loaded, file)
	}
	return loaded
}

func main() {
	envFiles := loadEnvFiles()
	setupLogger(os.LookupEnv)

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"env":            cfg.Env,
		"gin_mode":       cfg.GinMode(),
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  len(cfg.Brokers()) > 0,
		"env_files":      envFiles,
	}).Info("starting bulk order service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("application stopped with error")
	}

	log.Info("bulk order service stopped")
}
