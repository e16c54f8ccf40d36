// Точка входа Review Gateway — шлюза очереди проверки AetherCore.
// Загружает конфигурацию, создаёт клиент Core API и ядро сервиса
// (session guard, очередь ожидания, канал уведомлений, координатор),
// запускает мониторинг зависимостей (topologymetrics) и HTTP-сервер
// с graceful shutdown. Ядро запускается при входе оператора.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/bigkaa/aethercore/review-gateway/internal/api/handlers"
	"github.com/bigkaa/aethercore/review-gateway/internal/api/middleware"
	"github.com/bigkaa/aethercore/review-gateway/internal/config"
	"github.com/bigkaa/aethercore/review-gateway/internal/coreclient"
	"github.com/bigkaa/aethercore/review-gateway/internal/server"
	"github.com/bigkaa/aethercore/review-gateway/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Review Gateway запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("core_url", cfg.CoreURL),
	)

	if os.Getenv("RG_DEPHEALTH_GROUP") == "" {
		logger.Warn("RG_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Клиент Core API
	client := coreclient.New(cfg.CoreURL, cfg.CoreTimeout, logger)

	// 4. Сервисный слой — ядро шлюза
	svc := service.New(cfg, client, logger)
	defer svc.Stop()

	// 5. topologymetrics — мониторинг зависимостей (Core API)
	ctx := context.Background()
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"review-gateway",
		cfg.DephealthGroup,
		cfg.CoreURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
			defer dephealthSvc.Stop()
		}
	}

	// 6. Health и API handlers
	var readyChecker handlers.ReadinessChecker
	if dephealthErr == nil {
		readyChecker = dephealthSvc
	}
	healthHandler := handlers.NewHealthHandler(readyChecker)
	apiHandler := handlers.NewAPIHandler(svc, healthHandler, logger)

	// 7. HTTP-сервер с middleware метрик и логирования
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// 8. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Review Gateway остановлен")
}
