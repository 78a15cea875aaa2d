// main.go — точка входа QR Module.
// Генерация QR-кодов с идемпотентной публикацией изображений:
// PostgreSQL — реестр записей, QR_CODE_DIR — общее файловое хранилище.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/qr-module/internal/api/generated"
	"github.com/bigkaa/goartstore/qr-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/qr-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/qr-module/internal/config"
	"github.com/bigkaa/goartstore/qr-module/internal/database"
	"github.com/bigkaa/goartstore/qr-module/internal/encoder"
	"github.com/bigkaa/goartstore/qr-module/internal/repository"
	"github.com/bigkaa/goartstore/qr-module/internal/server"
	"github.com/bigkaa/goartstore/qr-module/internal/service"
	"github.com/bigkaa/goartstore/qr-module/internal/storage/imagestore"
)

// serviceID — имя вершины графа зависимостей topologymetrics.
const serviceID = "qr-module"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("QR Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("code_dir", cfg.CodeDir),
	)

	// Встроенный OpenAPI-контракт должен быть валиден до старта сервера
	swagger, err := generated.GetSwagger()
	if err != nil {
		logger.Error("Ошибка OpenAPI-контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Debug("OpenAPI-контракт загружен",
		slog.String("api_version", swagger.Info.Version),
		slog.Int("paths", swagger.Paths.Len()),
	)

	ctx := context.Background()

	// 3. Миграции БД (advisory lock golang-migrate: безопасно при нескольких воркерах)
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Пул подключений PostgreSQL
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// *sql.DB поверх pgxpool для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Хранилище изображений
	store, err := imagestore.New(cfg.CodeDir)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища изображений", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var images service.ImageStore = store
	if cfg.ImageCacheSize > 0 {
		images = imagestore.NewCached(store, cfg.ImageCacheSize, cfg.ImageCacheTTL)
		logger.Info("Кэш изображений включён",
			slog.Int("size", cfg.ImageCacheSize),
			slog.String("ttl", cfg.ImageCacheTTL.String()),
		)
	}

	// 6. Репозиторий и сервис генерации
	recordRepo := repository.NewRecordRepository(pool)
	generationSvc := service.NewGenerationService(
		recordRepo,
		images,
		encoder.New(cfg.MaxContentLength),
		service.GenerationConfig{
			MaxContentLength:    cfg.MaxContentLength,
			GenerationTimeout:   cfg.GenerationTimeout,
			PendingPollInitial:  cfg.PendingPollInitial,
			PendingWaitMax:      cfg.PendingWaitMax,
			StalePendingTimeout: cfg.StalePendingTimeout,
		},
		logger,
	)

	// 7. Фоновые процессы

	// 7.1 Janitor — temp файлы, зависшие pending, целостность ready
	janitorSvc := service.NewJanitorService(recordRepo, store, service.JanitorConfig{
		Interval:            cfg.JanitorInterval,
		TempMaxAge:          cfg.TempMaxAge,
		StalePendingTimeout: cfg.StalePendingTimeout,
		HashLimit:           cfg.JanitorHashLimit,
	}, logger)
	janitorSvc.Start(ctx)

	// 7.2 topologymetrics — мониторинг PostgreSQL
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     serviceID,
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL("postgres"),
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 8. Handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), cfg.CodeDir)
	apiHandler := handlers.NewAPIHandler(generationSvc, healthHandler, cfg.PendingPollInitial, logger)

	// 9. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	runErr := srv.Run()

	// --- Остановка фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	janitorSvc.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		pool.Close()
		os.Exit(1)
	}

	logger.Info("QR Module остановлен")
}
