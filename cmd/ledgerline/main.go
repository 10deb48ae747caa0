package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ledgerline/ledgerline/internal/app"
	"github.com/ledgerline/ledgerline/internal/inventory"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/masterdata/banks"
	"github.com/ledgerline/ledgerline/internal/masterdata/items"
	"github.com/ledgerline/ledgerline/internal/masterdata/suppliers"
	"github.com/ledgerline/ledgerline/internal/masterdata/taxes"
	"github.com/ledgerline/ledgerline/internal/masterdata/units"
	"github.com/ledgerline/ledgerline/internal/observability"
	"github.com/ledgerline/ledgerline/internal/platform/cache"
	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/procurement"
	"github.com/ledgerline/ledgerline/internal/shared"
	"github.com/ledgerline/ledgerline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "ledgerline-api")

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, accounts cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	sequences := shared.NewSequences(pool)

	metrics := observability.NewMetrics()

	accountsRepo := ledger.NewAccountsRepository(pool)
	accountsCache := ledger.NewCachedAccounts(accountsRepo, redisClient, cfg.AccountCacheTTL, logger)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	ledgerService.WithMetrics(metrics)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, accountsRepo, accountsCache)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, inventory.ServiceConfig{})
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	itemsService := items.NewService(items.NewRepository(pool))
	unitsService := units.NewService(units.NewRepository(pool), logger)
	taxesService := taxes.NewService(taxes.NewRepository(pool))
	suppliersService := suppliers.NewService(suppliers.NewRepository(pool))
	banksService := banks.NewService(banks.NewRepository(pool))

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(
		procurementRepo,
		itemsService,
		unitsService,
		taxesService,
		accountsCache,
		sequences,
		idempotencyStore,
		auditLogger,
	)
	procurementService.WithMetrics(metrics)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		LedgerHandler:      ledgerHandler,
		InventoryHandler:   inventoryHandler,
		ProcurementHandler: procurementHandler,
		ItemsHandler:       items.NewHandler(logger, itemsService),
		UnitsHandler:       units.NewHandler(logger, unitsService),
		TaxesHandler:       taxes.NewHandler(logger, taxesService),
		SuppliersHandler:   suppliers.NewHandler(logger, suppliersService),
		BanksHandler:       banks.NewHandler(logger, banksService),
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
