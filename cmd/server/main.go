package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/provfund/benefits-engine/internal/application/service"
	"github.com/provfund/benefits-engine/internal/config"
	"github.com/provfund/benefits-engine/internal/domain/eligibility"
	"github.com/provfund/benefits-engine/internal/infrastructure/notify"
	"github.com/provfund/benefits-engine/internal/infrastructure/persistence/repository"
	"github.com/provfund/benefits-engine/internal/infrastructure/persistence/sqlite"
	"github.com/provfund/benefits-engine/internal/transport/httpapi"
	"github.com/provfund/benefits-engine/pkg/database"
	"github.com/provfund/benefits-engine/pkg/utils"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	// Load .env before viper reads the environment; a missing file is fine.
	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting benefit request engine",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	sqlDB, err := database.Open(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := database.NewMigrator(sqlDB, logger).Run(); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	db := sqlite.NewDB(sqlDB, logger)

	requestRepo := repository.NewRequestRepository(db, logger)
	stepRepo := repository.NewStepRepository(db, logger)
	historyRepo := repository.NewHistoryRepository(db, logger)
	ledger := repository.NewLedgerRepository(db, logger)
	notifier := notify.NewLogNotifier(logger)

	loanPolicy := eligibility.LoanPolicy{
		MinAmountCents: cfg.Policy.LoanMinAmountCents,
		MaxTermMonths:  cfg.Policy.LoanMaxTermMonths,
	}

	requestService := service.NewRequestService(
		requestRepo, stepRepo, historyRepo, ledger, db, notifier, loanPolicy, logger)
	approvalService := service.NewApprovalService(
		requestRepo, stepRepo, historyRepo, db, notifier, logger)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, requestService, approvalService, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited")
}
