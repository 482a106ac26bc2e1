package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"log/slog"

	"github.com/vaultsim/vaultd/internal/config"
	"github.com/vaultsim/vaultd/internal/handlers"
	"github.com/vaultsim/vaultd/internal/notify"
	"github.com/vaultsim/vaultd/internal/rate"
	"github.com/vaultsim/vaultd/internal/realtime"
	"github.com/vaultsim/vaultd/internal/resolver"
	"github.com/vaultsim/vaultd/internal/scheduler"
	"github.com/vaultsim/vaultd/internal/service"
	"github.com/vaultsim/vaultd/internal/storage"
	"github.com/vaultsim/vaultd/libs/events"
	"github.com/vaultsim/vaultd/libs/health"
	"github.com/vaultsim/vaultd/libs/httpmiddleware"
	"github.com/vaultsim/vaultd/libs/logging"
	"github.com/vaultsim/vaultd/libs/metrics"
	"github.com/vaultsim/vaultd/libs/trace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	lifecycleMetrics := service.NewMetrics(registry)
	schedulerMetrics := scheduler.NewMetrics(registry)
	producerMetrics := events.NewProducerMetrics(registry)

	ready := health.NewManager(false)

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := storage.New(pool, logger)

	hub := realtime.NewHub(logger)
	defer hub.Close()

	notifiers := []notify.Notifier{hub}
	if cfg.Kafka.Enabled {
		producer, err := events.NewSyncProducer(cfg.Kafka.Brokers, logger, producerMetrics)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		publisher := events.NewDLQPublisher(producer, producer, cfg.Kafka.Topics.DLQ, logger)
		notifiers = append(notifiers, notify.NewKafkaNotifier(publisher, cfg.Kafka.Topics.Events, logger))
	}
	notifier := notify.NewMulti(notifiers...)

	lifecycle := service.NewLifecycle(store, notifier, logger, lifecycleMetrics)
	accounts := service.NewAccounts(store, logger)
	res := resolver.New(store, logger)

	sched := scheduler.New(store, lifecycle, notifier, cfg.Scheduler.Interval, logger, schedulerMetrics)
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	defer schedulerCancel()
	go sched.Run(schedulerCtx)

	limiter := buildLimiter(cfg, logger)

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	jwtSecret := []byte(cfg.Auth.JWTSecret)

	provider := handlers.NewProvider(lifecycle, res, accounts, logger)
	providerGroup := router.Group("/v1", handlers.WorkspaceAuth(store, jwtSecret), handlers.RateLimit(limiter))
	provider.Register(providerGroup)

	operator := handlers.NewOperator(store, lifecycle, cfg.App.Env, logger)
	operatorGroup := router.Group("/admin/v1", handlers.OperatorAuth(jwtSecret))
	operator.Register(operatorGroup)

	router.GET("/v1/ws", handlers.WorkspaceAuth(store, jwtSecret), func(c *gin.Context) {
		wsID := c.GetString("workspace_id")
		hub.Serve(c.Writer, c.Request, wsID)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	ready.SetReady(true)

	go func() {
		logger.Info("vaultd http starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	waitForShutdown(httpServer, ready, schedulerCancel, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func buildLimiter(cfg *config.Config, logger *slog.Logger) rate.Limiter {
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		logger.Info("rate limiting via redis", "addr", cfg.Redis.Addr)
		return rate.NewRedisLimiter(client, cfg.RateLimit.RequestsPerMinute, time.Minute, "vaultd:rl:")
	}
	return rate.NewMemory(cfg.RateLimit.RequestsPerMinute, time.Minute)
}

func waitForShutdown(httpServer *http.Server, ready *health.Manager, cancel context.CancelFunc, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
