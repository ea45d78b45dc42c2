package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Blackspectre-tech/u4c-backends/internal/blockchain"
	"github.com/Blackspectre-tech/u4c-backends/internal/config"
	"github.com/Blackspectre-tech/u4c-backends/internal/handler"
	"github.com/Blackspectre-tech/u4c-backends/internal/models"
	"github.com/Blackspectre-tech/u4c-backends/internal/repository"
	"github.com/Blackspectre-tech/u4c-backends/internal/scheduler"
	"github.com/Blackspectre-tech/u4c-backends/internal/service"
	"github.com/Blackspectre-tech/u4c-backends/pkg/errors"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	db, err := initDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}
	defer closeDatabase(db)

	client, err := blockchain.NewClient(&cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to create blockchain client:", err)
	}
	defer client.Close()

	transactor, err := blockchain.NewOwnerTransactor(client)
	if err != nil {
		logger.Fatal("Failed to create owner transactor:", err)
	}

	decoder, err := blockchain.NewDecoderFromABI(client.ABI())
	if err != nil {
		logger.Fatal("Failed to build event decoder:", err)
	}

	store := repository.NewStore(db)
	audit := service.NewAuditSink(store.Audit)
	reconciler := service.NewReconciler(store, decoder, audit, transactor, service.ReconcilerConfig{
		TokenDecimals: cfg.Chain.TokenDecimals,
		AutoFinalize:  cfg.Reconciliation.AutoFinalize,
	})
	pledges := service.NewPledgeService(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := service.NewDriftChecker(store.Projects, client, cfg.Chain.TokenDecimals)
	driftScheduler := scheduler.NewDriftScheduler(checker, cfg.Scheduler.DriftCron)
	if cfg.Scheduler.Enabled {
		if err := driftScheduler.Start(); err != nil {
			logger.Fatal("Failed to start scheduler:", err)
		}
		defer driftScheduler.Stop()
	}

	if cfg.Poller.Enabled {
		poller := blockchain.NewLogPoller(&cfg.Poller, client, store.Cursors,
			func(ctx context.Context, body []byte, d *blockchain.Delivery) error {
				reconciler.ProcessDelivery(ctx, body, d)
				return nil
			})
		defer poller.Stop()
		go poller.Start(ctx)
	}

	router := handler.NewRouter(handler.Handlers{
		Webhook:    handler.NewWebhookHandler(reconciler, audit, cfg.Webhook),
		Admin:      handler.NewAdminHandler(transactor),
		Contract:   handler.NewContractHandler(client),
		Audit:      handler.NewAuditHandler(audit, reconciler),
		Pledges:    handler.NewPledgeHandler(pledges),
		Drift:      handler.NewDriftHandler(driftScheduler),
		AdminToken: cfg.Admin.Token,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.WithFields(map[string]interface{}{
			"port":     cfg.Server.Port,
			"chain":    cfg.Chain.Name,
			"contract": client.ContractAddress().Hex(),
			"owner":    transactor.From().Hex(),
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error:", err)
	}

	logger.Info("Server stopped")
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		dialector = mysql.Open(cfg.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.NewGormLogger(cfg.LogLevel),
	})
	if err != nil {
		return nil, errors.New(errors.ErrDatabaseConnect, "failed to open database", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, errors.New(errors.ErrDatabaseConnect, "failed to migrate schema", err)
	}

	return db, nil
}

func closeDatabase(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get database instance:", err)
		return
	}
	sqlDB.Close()
}
