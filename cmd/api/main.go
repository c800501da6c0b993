package main

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dropkit/checkout/internal/app"
	"github.com/dropkit/checkout/internal/cache"
	"github.com/dropkit/checkout/internal/clock"
	"github.com/dropkit/checkout/internal/config"
	"github.com/dropkit/checkout/internal/lock"
	"github.com/dropkit/checkout/internal/storage/postgres"
	"github.com/dropkit/checkout/internal/sweeper"
	transporthttp "github.com/dropkit/checkout/internal/transport/http"
	"github.com/dropkit/checkout/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	loadEnvFile(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	// Redis is best-effort: the admission lock fails open and the stock
	// cache reads through to the store, so startup proceeds on a failed
	// ping with a warning.
	if err := rdb.Ping(startupCtx).Err(); err != nil {
		logger.Warn("redis ping failed, cache and admission lock degraded", zap.Error(err))
	}

	db := postgres.NewDB(pool,
		postgres.WithMaxAttempts(cfg.TxnMaxAttempts),
		postgres.WithBackoffWindow(cfg.DeadlockBackoffMin, cfg.DeadlockBackoffMax),
	)
	clk := clock.NewSystem()

	productRepo := postgres.NewProductRepository(db)
	holdRepo := postgres.NewHoldRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	webhookRepo := postgres.NewWebhookRepository(db)

	stockCache := cache.NewStockCache(rdb, productRepo, clk, cfg.StockCacheTTL, logger)
	admission := lock.NewAdmissionLock(rdb, cfg.AdmissionLockTimeout, cfg.AdmissionLockWait, cfg.AdmissionFailOpen, logger)
	lease := lock.NewLease(rdb, logger)

	holdSvc := app.NewHoldService(holdRepo, stockCache, admission, clk, logger,
		app.WithHoldTTL(cfg.HoldDuration),
		app.WithMaxHoldQty(cfg.MaxHoldQty),
	)
	orderSvc := app.NewOrderService(orderRepo, stockCache, clk, logger)
	webhookSvc := app.NewWebhookService(webhookRepo, orderSvc, clk, logger,
		app.WithOrderWait(cfg.OrderWaitAttempts, cfg.OrderWaitSleep),
	)
	productSvc := app.NewProductService(productRepo, stockCache)
	adminSvc := app.NewAdminService(productRepo)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweeper.New(holdSvc, webhookSvc, lease, cfg.SweepPeriod, logger).Run(sweepCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/api/products/", transporthttp.HandleGetProduct(productSvc))
	mux.Handle("/api/holds", transporthttp.HandleCreateHold(holdSvc))
	mux.Handle("/api/holds/", transporthttp.HandleReleaseHold(holdSvc))
	mux.Handle("/api/orders", transporthttp.HandleCreateOrder(orderSvc))
	mux.Handle("/api/payments/webhook", transporthttp.HandlePaymentWebhook(webhookSvc))
	mux.Handle("/api/admin/products", transporthttp.HandleAdminProducts(adminSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, mux), logger)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	logger.Info("api listening", zap.String("addr", cfg.HTTPAddr))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	stopSweep()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func loadEnvFile(logger *zap.Logger) {
	path, err := findEnvFile()
	if err != nil {
		logger.Warn("failed to locate .env", zap.Error(err))
		return
	}
	if path == "" {
		return
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Warn("failed to open env file", zap.String("path", path), zap.Error(err))
		return
	}
	if err := parseEnvFile(file); err != nil {
		logger.Warn("failed to load env file", zap.String("path", path), zap.Error(err))
	} else {
		logger.Info("loaded env file", zap.String("path", path))
	}
	_ = file.Close()
}

func findEnvFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

func parseEnvFile(file *os.File) error {
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = trimQuotes(strings.TrimSpace(value))
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
	return scanner.Err()
}

func trimQuotes(value string) string {
	if len(value) < 2 {
		return value
	}
	if (value[0] == '"' && value[len(value)-1] == '"') ||
		(value[0] == '\'' && value[len(value)-1] == '\'') {
		return value[1 : len(value)-1]
	}
	return value
}
