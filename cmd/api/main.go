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

	"go.uber.org/zap"

	"github.com/aozora-farm/api/internal/handlers"
	"github.com/aozora-farm/api/internal/platform/config"
	"github.com/aozora-farm/api/internal/platform/observability"
	"github.com/aozora-farm/api/internal/postal"
	"github.com/aozora-farm/api/internal/repositories"
	"github.com/aozora-farm/api/internal/services"
	"github.com/aozora-farm/api/internal/shipping"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	rateTable := shipping.NewRateTable(cfg.Shipping.RateTablePath)
	if err := rateTable.Load(ctx); err != nil {
		// A broken rate source is fatal at startup; serving only
		// fallback prices would silently misprice every order.
		logger.Fatal("failed to load shipping rate table",
			zap.String("path", cfg.Shipping.RateTablePath),
			zap.Error(err),
		)
	}

	resolver, err := shipping.NewResolver(rateTable, nil)
	if err != nil {
		logger.Fatal("failed to initialise location resolver", zap.Error(err))
	}

	shippingLogger := logger.Named("shipping")
	shippingService, err := services.NewShippingService(services.ShippingServiceDeps{
		Rates:         rateTable,
		Resolver:      resolver,
		FallbackPrice: cfg.Shipping.FallbackPrice,
		Logger:        observability.EventLogger(shippingLogger),
	})
	if err != nil {
		logger.Fatal("failed to initialise shipping service", zap.Error(err))
	}

	catalog, err := repositories.LoadCatalogFile(cfg.Catalog.ProductsPath)
	if err != nil {
		logger.Fatal("failed to load product catalog",
			zap.String("path", cfg.Catalog.ProductsPath),
			zap.Error(err),
		)
	}

	draftStore := repositories.NewDraftStore()
	orderStore := repositories.NewMemoryOrders()

	shippingHandlers := handlers.NewShippingHandlers(shippingService, catalog, rateTable)
	orderHandlers := handlers.NewOrderHandlers(catalog, shippingService, draftStore, orderStore, observability.EventLogger(logger.Named("orders")))
	catalogHandlers := handlers.NewCatalogHandlers(catalog)

	var postalHandlers *handlers.PostalHandlers
	if cfg.Features.EnablePostalLookup {
		postalClient := postal.NewClient(cfg.Postal.BaseURL, cfg.Postal.Timeout)
		postalHandlers = handlers.NewPostalHandlers(postalClient)
	} else {
		postalHandlers = handlers.NewPostalHandlers(nil)
		logger.Info("postal lookup disabled; prefill endpoint will return 503")
	}

	projectID := cfg.Observability.TraceProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.ReadinessCheck{Name: "rate_table", Check: rateTable.Load},
	)

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithShippingRoutes(shippingHandlers.Routes))
	opts = append(opts, handlers.WithOrderRoutes(orderHandlers.Routes))
	opts = append(opts, handlers.WithPostalRoutes(postalHandlers.Routes))
	opts = append(opts, handlers.WithCatalogRoutes(catalogHandlers.Routes))

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("aozora-farm api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
