package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"news-orchestrator/internal/di"
	"news-orchestrator/internal/infra/config"
	"news-orchestrator/internal/infra/logger"
	newsotel "news-orchestrator/internal/infra/otel"
)

func main() {
	// 1. Load Config
	_ = godotenv.Load()
	cfg := config.Load()

	// 2. Initialize Tracing and Logger
	shutdownOTel, err := newsotel.InitProvider(context.Background(), newsotel.Config{
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.OTel.ServiceVersion,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
		ExportLogs:     cfg.Log.OTelEnabled,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init otel: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithOTel(cfg.Log.Level, cfg.OTel.Enabled && cfg.Log.OTelEnabled)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// 3. Connect Backends
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	backends, err := di.ConnectBackends(startupCtx, cfg)
	cancelStartup()
	if err != nil {
		log.Error("failed to connect backends", "error", err)
		os.Exit(1)
	}

	// 4. Wire Components
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app, err := di.NewApplicationComponents(cfg, backends, reg, log)
	if err != nil {
		log.Error("failed to wire application", "error", err)
		_ = backends.Close(context.Background())
		os.Exit(1)
	}
	if app.Reaper != nil {
		app.Reaper.Start()
	}

	// 5. Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.ContextTimeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))

	// 6. Register Handlers
	app.Handler.Register(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// 7. Start Server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Info("server_starting", "addr", addr, "index_backend", cfg.Index.Backend)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 8. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("server_stopping")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	if app.Reaper != nil {
		app.Reaper.Stop()
	}
	if err := backends.Close(ctx); err != nil {
		log.Warn("backend close failed", "error", err)
	}
	if err := shutdownOTel(ctx); err != nil {
		log.Warn("otel shutdown failed", "error", err)
	}
}
