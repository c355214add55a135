package main

import (
	"Kladovka/internal/broadcast"
	"Kladovka/internal/config"
	"Kladovka/internal/handlers"
	"Kladovka/internal/middleware"
	"Kladovka/internal/repo"
	"Kladovka/internal/service"
	"net/http"

	"go.uber.org/zap"
)

func main() {
	cfg := config.NewConfig()

	// создаём предустановленный регистратор zap
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}

	// делаем регистратор SugaredLogger
	sugar := logger.Sugar()
	middleware.SetLogger(sugar) // передаём логгер в middleware
	//сброс буфера логгера
	defer func() {
		if err := logger.Sync(); err != nil {
			sugar.Errorw("Failed to sync logger", "error", err)
		}
	}()

	gormDB, err := repo.InitDB(cfg.DatabaseDSN)
	if err != nil {
		sugar.Fatalw("failed to initialize database", "error", err)
	}

	userRepo := repo.NewUserRepository(gormDB)
	workspaceRepo := repo.NewWorkspaceRepository(gormDB)
	recordRepo := repo.NewRecordRepository(gormDB)

	bus := broadcast.New(cfg.EventBufferSize, sugar)

	userService := service.NewUserService(userRepo)
	workspaceService := service.NewWorkspaceService(workspaceRepo)
	syncService := service.NewSyncService(recordRepo, workspaceRepo, sugar)
	approvalService := service.NewApprovalService(gormDB, workspaceRepo, bus, sugar)
	mutationService := service.NewMutationService(recordRepo, workspaceRepo, approvalService, bus, sugar)

	h := handlers.NewHandler(
		userService,
		workspaceService,
		syncService,
		mutationService,
		approvalService,
		bus,
		sugar,
		cfg,
	)

	addr := cfg.BaseURL

	sugar.Infow(
		"Starting server",
		"addr", addr,
	)

	sugar.Infow("Config",
		"BaseURL", cfg.BaseURL,
		"EnableHTTPS", cfg.EnableHTTPS,
		"DatabaseDSN", cfg.DatabaseDSN,
		"SyncPageLimit", cfg.SyncPageLimit,
	)

	if err := http.ListenAndServe(addr, h.Router); err != nil {
		sugar.Fatalw("Server failed", "error", err)
	}
}
