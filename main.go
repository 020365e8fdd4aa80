package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appCatalog "github.com/Zhima-Mochi/minishop-checkout/internal/application/catalog"
	appInventory "github.com/Zhima-Mochi/minishop-checkout/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	appPayment "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/config"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	inventoryworker "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/inventory/worker"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/kafkasink"
	infraobs "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/otelsdk"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	orderworker "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/order/worker"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/clock"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/logging"
	grpcpresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/grpc"
	httppresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/worker"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, shutdownOtel, err := otelsdk.Setup(ctx, otelsdk.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: config.ServiceVersion,
		Environment:    cfg.Env,
		Endpoint:       cfg.OtelEndpoint,
		Insecure:       true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "otel setup: %v\n", err)
		os.Exit(1)
	}

	var loggerProvider log.LoggerProvider
	if providers.Logger != nil {
		loggerProvider = providers.Logger
	}
	baseLogger := logging.MustNewLogger(logging.Options{
		Service:        cfg.ServiceName,
		Env:            cfg.Env,
		Level:          cfg.LogLevel,
		LogFile:        cfg.LogFile,
		LoggerProvider: loggerProvider,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)
	appLogger := zaplogger.New(baseLogger)

	counters, histograms := prometrics.Instruments(prometrics.New(prometheus.DefaultRegisterer, "", ""))
	tel := infraobs.New(oteltrace.New(cfg.ServiceName, config.ServiceVersion), appLogger, counters, histograms)

	store, err := openStorage(ctx, cfg, systemLogger)
	if err != nil {
		systemLogger.Fatal("storage_open_failed", zap.Error(err))
	}
	defer store.close()

	// In-memory event bus; handlers get an event-scoped logger under the publisher's span.
	bus := outbox.NewBus(appLogger, outbox.WithHandlerContext(workerpresentation.EventContext(appLogger)))
	inventoryworker.New(bus, cfg.LowStockThreshold, appLogger).Start()
	orderworker.New(bus, tel).Start()

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafkasink.NewWriter(kafkasink.WriterConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			ClientID: cfg.ServiceName,
		}, otel.GetTracerProvider())
		if err != nil {
			systemLogger.Fatal("kafka_writer_failed", zap.Error(err))
		}
		sink := kafkasink.NewSink(producer, cfg.KafkaTopic, tel)
		sink.Register(bus, outbox.AllEvents)
		defer func() {
			if err := sink.Close(); err != nil {
				systemLogger.Warn("kafka_writer_close_failed", zap.Error(err))
			}
		}()
		systemLogger.Info("kafka_sink_enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	bus.Start(context.Background())

	ids := id.NewUUIDGenerator()
	clk := clock.NewSystem()

	finder, invalidator, closeCache := catalogCache(ctx, cfg, store.products, appLogger, systemLogger)
	defer closeCache()

	gateway, err := paymentGateway(cfg)
	if err != nil {
		systemLogger.Fatal("payment_gateway_failed", zap.Error(err))
	}

	ledger := appInventory.NewLedger(store.products, bus, clk, tel, appInventory.Config{
		MaxAttempts: cfg.LedgerMaxAttempts,
		Backoff:     cfg.LedgerBackoff,
	})
	paymentService := appPayment.NewService(store.payments, bus, ids, clk, tel)
	catalogService := appCatalog.NewService(store.products, invalidator, ids, clk, tel)
	coordinator := appOrder.NewCoordinator(finder, ledger, gateway, paymentService, bus, ids, clk, tel, appOrder.Config{
		PaymentTimeout:     cfg.PaymentTimeout,
		LateResponseWindow: cfg.PaymentLateResponseWindow,
	})

	if cfg.SeedProducts {
		if err := seedProducts(ctx, store.products, catalogService); err != nil {
			systemLogger.Warn("seed_products_failed", zap.Error(err))
		}
	}

	handler := httppresentation.NewHandler(catalogService, coordinator, paymentService, appLogger, tel)
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Mount("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcpresentation.NewServer(appLogger)
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		systemLogger.Fatal("grpc_listen_failed", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		systemLogger.Info("http_server_start", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		systemLogger.Info("grpc_server_start", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		grpcServer.SetServing(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})
	grpcServer.SetServing(true)

	if err := g.Wait(); err != nil {
		systemLogger.Error("server_error", zap.Error(err))
	} else {
		systemLogger.Info("servers_stopped")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := coordinator.Wait(drainCtx); err != nil {
		systemLogger.Warn("late_payment_watch_abandoned", zap.Error(err))
	}
	if err := bus.Stop(drainCtx); err != nil {
		systemLogger.Warn("event_bus_drain_incomplete", zap.Error(err))
	}
	if err := shutdownOtel(drainCtx); err != nil {
		systemLogger.Warn("otel_shutdown_failed", zap.Error(err))
	}
}
