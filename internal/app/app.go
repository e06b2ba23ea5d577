package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/bulk-oms/internal/health"
	"github.com/vladislavdragonenkov/bulk-oms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bulk-oms/internal/metrics"
	"github.com/vladislavdragonenkov/bulk-oms/internal/realtime"
	"github.com/vladislavdragonenkov/bulk-oms/internal/service/catalog"
	httpsvc "github.com/vladislavdragonenkov/bulk-oms/internal/service/http"
	"github.com/vladislavdragonenkov/bulk-oms/internal/service/idempotency"
	"github.com/vladislavdragonenkov/bulk-oms/internal/service/ordering"
	"github.com/vladislavdragonenkov/bulk-oms/internal/service/outbox"
	"github.com/vladislavdragonenkov/bulk-oms/internal/version"
)

const (
	shutdownTimeout        = 5 * time.Second
	grpcHealthPollInterval = 10 * time.Second
)

// application: собранный сервис: хранилище, HTTP API, воркеры и служебные серверы.
type application struct {
	cfg    Config
	logger *log.Entry

	deps     *runtimeDependencies
	registry *prometheus.Registry
	producer *kafka.Producer

	hub           *realtime.Hub
	outboxWorker  *outbox.Worker
	cleanupWorker *idempotency.CleanupWorker

	api    http.Handler
	health *healthcheck.Handler
}

// Run собирает приложение и обслуживает запросы до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	gin.SetMode(cfg.GinMode())

	a, err := newApplication(ctx, cfg, log.WithField("component", "app"))
	if err != nil {
		return err
	}
	defer a.close()

	return a.serve(ctx)
}

func newApplication(ctx context.Context, cfg Config, logger *log.Entry) (*application, error) {
	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	orderMetrics := metrics.NewOrderMetricsWith(registry)
	httpMetrics := metrics.NewHTTPMetricsWith(registry)

	hub := realtime.NewHub(cfg.AllowedOrigins(), logger.WithField("component", "realtime-hub"), httpMetrics)

	producer, err := initKafkaProducer(cfg.Brokers(), logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		producer = nil
	}

	targets := []outbox.NamedPublisher{{Name: "live-feed", Publisher: hub}}
	workerOptions := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetricsWith(registry)),
	}
	if producer != nil {
		targets = append(targets, outbox.NamedPublisher{Name: "kafka", Publisher: kafka.NewOutboxPublisher(producer, cfg.KafkaTopic)})
		workerOptions = append(workerOptions, outbox.WithDeadLetters(kafka.NewDLQPublisher(producer, cfg.KafkaTopic)))
	}

	orders := ordering.NewService(
		deps.orderRepo,
		ordering.WithLogger(logger.WithField("component", "ordering")),
		ordering.WithMetrics(orderMetrics),
	)
	products := catalog.NewService(deps.productRepo, logger.WithField("component", "catalog"), orderMetrics)

	api := httpsvc.NewRouter(httpsvc.Dependencies{
		Orders:         orders,
		Catalog:        products,
		Idempotency:    deps.idempotencyRepo,
		IdempotencyTTL: cfg.IdempotencyTTL,
		LiveFeed:       hub,
		Metrics:        httpMetrics,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger.WithField("component", "http-api"),
	})

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewPingChecker(deps.driver, deps.pinger))
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPending))

	return &application{
		cfg:      cfg,
		logger:   logger,
		deps:     deps,
		registry: registry,
		producer: producer,
		hub:      hub,
		outboxWorker: outbox.NewWorker(
			deps.outboxRepo,
			outbox.NewFanoutPublisher(targets...),
			outbox.Config{
				PollInterval:   cfg.OutboxPollInterval,
				BatchSize:      cfg.OutboxBatchSize,
				MaxAttempts:    cfg.OutboxMaxAttempts,
				RetryBaseDelay: cfg.OutboxRetryDelay,
				StaleAfter:     cfg.OutboxMaxPending,
			},
			workerOptions...,
		),
		cleanupWorker: idempotency.NewCleanupWorker(
			deps.idempotencyRepo,
			idempotency.CleanupConfig{
				Interval:  cfg.IdempotencyCleanupInterval,
				BatchSize: cfg.IdempotencyCleanupBatchSize,
			},
			idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
			idempotency.WithMetrics(metrics.NewCleanupMetricsWith(registry)),
		),
		api:    api,
		health: healthHandler,
	}, nil
}

// serve запускает серверы и воркеры; возвращает ctx.Err() после штатной остановки
// или первую ошибку listener-а.
func (a *application) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var workers sync.WaitGroup
	// Воркеры останавливаются на любом выходе, в том числе при ошибке listener-а:
	// сначала отмена, потом ожидание.
	defer func() {
		cancel()
		workers.Wait()
	}()

	for _, run := range []func(context.Context){a.hub.Run, a.outboxWorker.Run, a.cleanupWorker.Run} {
		workers.Add(1)
		go func(run func(context.Context)) {
			defer workers.Done()
			run(ctx)
		}(run)
	}

	grpcServer, grpcHealth := a.newGRPCServer()
	grpcLis, err := net.Listen("tcp", a.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", a.cfg.GRPCAddr, err)
	}

	apiSrv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: a.api, ReadHeaderTimeout: 10 * time.Second}
	metricsSrv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: a.metricsMux(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 3)
	go func() {
		a.logger.Infof("HTTP API слушает %s", a.cfg.HTTPAddr)
		errCh <- listenAndServe(apiSrv)
	}()
	go func() {
		a.logger.Infof("метрики доступны по адресу %s/metrics", a.cfg.MetricsAddr)
		a.logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", a.cfg.MetricsAddr, a.cfg.MetricsAddr, a.cfg.MetricsAddr)
		errCh <- listenAndServe(metricsSrv)
	}()
	go func() {
		a.logger.Infof("gRPC health сервер слушает %s", a.cfg.GRPCAddr)
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go a.trackGRPCHealth(ctx, grpcHealth)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}
	cancel()

	grpcHealth.Shutdown()
	shutdownHTTP(apiSrv, a.logger)
	shutdownHTTP(metricsSrv, a.logger)
	stopGRPC(grpcServer, a.logger)

	return runErr
}

func (a *application) newGRPCServer() (*grpc.Server, *grpchealth.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := a.registry.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			a.logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	return server, healthServer
}

// trackGRPCHealth переводит grpc.health.v1 в NOT_SERVING, пока хранилище недоступно.
func (a *application) trackGRPCHealth(ctx context.Context, server *grpchealth.Server) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if a.health.Evaluate(ctx).Status == healthcheck.StatusUnhealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		server.SetServingStatus("", status)
	}

	update()
	ticker := time.NewTicker(grpcHealthPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

func (a *application) metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	mux.Handle("/healthz", a.health)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", a.health.ReadinessHandler)
	return mux
}

// close освобождает внешние ресурсы после остановки воркеров.
func (a *application) close() {
	closeKafka(a.producer, a.logger)
	if a.deps != nil && a.deps.close != nil {
		if err := a.deps.close(); err != nil {
			a.logger.WithError(err).Warn("failed to close storage")
		}
	}
}

func listenAndServe(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}
