package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcustody "github.com/erp/custody/internal/application/custody"
	"github.com/erp/custody/internal/infrastructure/config"
	"github.com/erp/custody/internal/infrastructure/event"
	"github.com/erp/custody/internal/infrastructure/lock"
	"github.com/erp/custody/internal/infrastructure/logger"
	"github.com/erp/custody/internal/infrastructure/persistence"
	"github.com/erp/custody/internal/infrastructure/telemetry"
	"github.com/erp/custody/internal/infrastructure/treasury"
	"github.com/erp/custody/internal/interfaces/http/handler"
	"github.com/erp/custody/internal/interfaces/http/middleware"
	"github.com/erp/custody/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

//	@title			Custody Engine API
//	@version		1.0
//	@description	Petty-cash advance issuance, settlement and cost-center transfer
//	@BasePath		/api/v1

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server stopped with error", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	log.Info("Starting custody engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = tracerProvider.Shutdown(context.Background())
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = meterProvider.Shutdown(context.Background())
	}()

	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = logsProvider.Shutdown(context.Background())
	}()
	log = logsProvider.Bridge(log)

	custodyMetrics, err := telemetry.NewCustodyMetrics(meterProvider.Meter("custody"))
	if err != nil {
		return err
	}

	db, err := persistence.NewDatabase(&cfg.Database, persistence.DatabaseOptions{
		Logger:   log,
		LogLevel: cfg.Log.Level,
		Tracing: telemetry.DBTracingConfig{
			Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			LogFullSQL: cfg.Telemetry.DBLogFullSQL,
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	locks, err := lock.NewBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := locks.Close(); err != nil {
			log.Error("Error closing lock backend", zap.Error(err))
		}
	}()

	treasuryClient, err := treasury.NewClient(cfg.Treasury, log)
	if err != nil {
		return err
	}

	deps := appcustody.LedgerDeps{
		Advances:    persistence.NewGormAdvanceRepository(db.DB),
		Settlements: persistence.NewGormSettlementRepository(db.DB),
		TxScope:     persistence.NewGormTransactionScope(db.DB, event.NewOutboxPublisher(event.NewCustodySerializer())),
		Locker:      locks.Locker,
		Accounts:    treasuryClient,
		CostCenters: persistence.NewGormCostCenterLookup(db.DB),
		Metrics:     custodyMetrics,
		Logger:      log,
		Options: appcustody.Options{
			TreasuryTimeout:    cfg.Treasury.Timeout,
			MaxConflictRetries: cfg.Custody.MaxConflictRetries,
		},
	}
	services := appcustody.NewServices(deps, appcustody.NewPurchaseOrderLinker(cfg.Custody.DefaultPhoneRegion), treasuryClient)

	engine, err := router.NewEngine(router.EngineConfig{
		Mode:           ginMode(cfg.App.Env),
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Meter:          meterProvider.Meter("http.server"),
	}, log)
	if err != nil {
		return err
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, map[string]handler.HealthCheck{
		"database": func(context.Context) error { return db.Ping() },
		"lock":     locks.Ping,
		"treasury": func(context.Context) error {
			if treasuryClient.State() == gobreaker.StateOpen {
				return errors.New("treasury circuit open")
			}
			return nil
		},
	})
	engine.GET("/health", systemHandler.Health)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(router.NewDomainGroup("custody", "/custody").
		Use(middleware.Scope()).
		Include(handler.NewCustodyHandler(services)))
	r.Register(router.NewDomainGroup("system", "/system").
		Include(routeFunc(func(rg *gin.RouterGroup) {
			rg.GET("/info", systemHandler.GetSystemInfo)
		})))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case sig := <-quit:
		log.Info("Shutting down server...", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// routeFunc adapts a plain function to router.RouteRegistrar
type routeFunc func(rg *gin.RouterGroup)

func (f routeFunc) RegisterRoutes(rg *gin.RouterGroup) { f(rg) }

func ginMode(env string) string {
	switch env {
	case "production", "staging":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
