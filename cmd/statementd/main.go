package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/statement-parser/internal/app"
	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/export"
	"github.com/joseph-ayodele/statement-parser/internal/history"
	"github.com/joseph-ayodele/statement-parser/internal/metrics"
	"github.com/joseph-ayodele/statement-parser/internal/server"
)

func main() {
	cfg := common.LoadConfig()
	logger := common.InitLogger(os.Stdout, cfg.Log)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	processor, err := app.NewProcessor(cfg, logger, m)
	if err != nil {
		logger.Error("failed to build processor", "error", err)
		os.Exit(1)
	}

	hist, err := app.OpenHistory(ctx, cfg.History, logger)
	if err != nil {
		logger.Error("failed to open history", "error", err, "driver", cfg.History.Driver)
		os.Exit(1)
	}

	httpOpts := []server.HTTPOption{server.WithHTTPMetrics(m)}
	var pruner history.Pruner
	var grpcHistory server.History
	if hist != nil {
		defer hist.Close()
		pruner = hist
		grpcHistory = hist
		httpOpts = append(httpOpts,
			server.WithHistory(hist),
			server.WithExporter(export.NewService(hist, export.DefaultCurrency, logger)),
		)
	}

	sched := history.NewScheduler(history.SchedulerConfig{
		Schedule:   cfg.History.PruneSchedule,
		Retention:  cfg.History.Retention,
		ScratchDir: cfg.Server.ScratchDir,
	}, pruner, m, logger)
	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	api := server.NewHTTPServer(server.HTTPConfig{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}, processor, logger, httpOpts...)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("statementd listening", "http_addr", cfg.Server.HTTPAddr)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	var grpcServer interface{ GracefulStop() }
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		gs, _ := server.NewGRPCServer(server.NewParseService(processor, grpcHistory, logger), cfg.Server.MaxUploadBytes, logger)
		reflection.Register(gs)
		grpcServer = gs
		logger.Info("statementd grpc listening", "grpc_addr", cfg.Server.GRPCAddr)
		go func() {
			if err := gs.Serve(lis); err != nil {
				logger.Error("gRPC serve error", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	<-sched.Stop().Done()
}
