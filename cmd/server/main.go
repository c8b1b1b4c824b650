package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderbridge/cmd/server/config"
	grpcadapter "orderbridge/internal/adapters/grpc"
	"orderbridge/internal/adapters/httpapi"
	"orderbridge/internal/adapters/kafka"
	"orderbridge/internal/commit"
	"orderbridge/internal/journal"
	"orderbridge/internal/masterdata"
	"orderbridge/internal/observability"
	"orderbridge/internal/realtime"
	"orderbridge/internal/reliability"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context) error {
	logCfg, err := config.LoadLogging()
	if err != nil {
		return err
	}
	logger := newLogger(logCfg)
	slog.SetDefault(logger)

	ledgerCfg, err := config.LoadLedger()
	if err != nil {
		return err
	}
	mdCfg, err := config.LoadMasterData()
	if err != nil {
		return err
	}
	defaults, err := config.LoadDefaults()
	if err != nil {
		return err
	}
	gwCfg, err := config.LoadGateway()
	if err != nil {
		return err
	}
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}
	grpcCfg, err := config.LoadGRPC()
	if err != nil {
		return err
	}
	obsCfg, err := config.LoadObservability()
	if err != nil {
		return err
	}
	kafkaCfg, err := config.LoadKafka()
	if err != nil {
		return err
	}

	dbs := newDatabases()
	defer func() {
		if err := dbs.Close(); err != nil {
			logger.Error("close databases", "err", err)
		}
	}()

	store, err := buildLedger(ctx, ledgerCfg, dbs)
	if err != nil {
		return err
	}
	replayed, err := journal.Recover(ctx, ledgerCfg.JournalPath, store, logger)
	if err != nil {
		return fmt.Errorf("replay ledger journal: %w", err)
	}
	if replayed > 0 {
		logger.Info("ledger journal replayed", "records", replayed)
	}
	jrnl, err := journal.Open(ledgerCfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open ledger journal: %w", err)
	}
	defer jrnl.Close()

	md, cleanupMD, err := buildMasterData(ctx, mdCfg, dbs, logger)
	if err != nil {
		return err
	}
	defer cleanupMD()

	stats := observability.NewStats()
	prom := observability.NewPrometheus()
	hub := realtime.NewHub(logger)

	orchestrator := commit.New(commit.Config{
		Ledger:    store,
		Validator: masterdata.NewChecker(md),
		Committer: buildGateway(gwCfg, stats, logger),
		Defaults:  defaults,
		Journal:   jrnl,
		Observer:  metricsObserver{stats: stats, prom: prom, feed: hub},
		Logger:    logger,
	})

	httpLimiter := reliability.NewRateLimiter(httpCfg.RateLimitInterval, httpCfg.RateLimitBurst)
	httpSrv := &http.Server{
		Addr: httpCfg.Addr,
		Handler: httpapi.NewRouter(httpapi.Config{
			Service:      orchestrator,
			APIKey:       httpCfg.APIKey,
			Limiter:      httpLimiter,
			Stats:        stats,
			Prometheus:   prom,
			Feed:         hub,
			Logger:       logger,
			MaxBodyBytes: httpCfg.MaxBodyBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	obsSrv := &http.Server{
		Addr:              obsCfg.Addr,
		Handler:           observability.NewMux(stats, prom),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcLimiter := reliability.NewRateLimiter(grpcCfg.RateLimitInterval, grpcCfg.RateLimitBurst)
	grpcLimiter.OnWait(stats.AddRateLimitWait)
	interceptors := grpcadapter.InterceptorConfig{
		APIKey:  grpcCfg.APIKey,
		Limiter: grpcLimiter,
		Stats:   stats,
		Logger:  logger,
	}
	grpcSrv := grpcpkg.NewServer(
		grpcpkg.UnaryInterceptor(grpcadapter.UnaryInterceptor(interceptors)),
		grpcpkg.StreamInterceptor(grpcadapter.StreamInterceptor(interceptors)),
	)
	grpcadapter.RegisterOrderIntakeServer(grpcSrv, grpcadapter.NewOrderServer(orchestrator))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthServer)
	setServing(healthServer, healthpb.HealthCheckResponse_SERVING)
	if grpcCfg.EnableReflection {
		reflection.Register(grpcSrv)
		logger.Info("gRPC reflection enabled")
	}

	lis, err := net.Listen("tcp", grpcCfg.Addr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC intake listening", "addr", grpcCfg.Addr)
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("HTTP intake listening", "addr", httpCfg.Addr)
		return listenAndServe(httpSrv)
	})
	g.Go(func() error {
		logger.Info("observability listening", "addr", obsCfg.Addr)
		return listenAndServe(obsSrv)
	})
	if kafkaCfg.Enabled() {
		reader, err := kafka.NewReader(kafkaCfg.Brokers, kafkaCfg.Topic, kafkaCfg.GroupID)
		if err != nil {
			return err
		}
		consumer := kafka.NewConsumer(reader, orchestrator, logger)
		g.Go(func() error {
			defer reader.Close()
			logger.Info("kafka intake consuming", "topic", kafkaCfg.Topic, "group", kafkaCfg.GroupID)
			return consumer.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "in_flight", stats.InFlight())
		stats.MarkShutdown(stats.InFlight())
		setServing(healthServer, healthpb.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		grpcSrv.GracefulStop()
		if err := obsSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func listenAndServe(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func setServing(h *health.Server, st healthpb.HealthCheckResponse_ServingStatus) {
	h.SetServingStatus(grpcadapter.OrdersServiceDesc.ServiceName, st)
	h.SetServingStatus("", st)
}
