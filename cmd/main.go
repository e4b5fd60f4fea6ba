package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tts-relay/internal/accesscode"
	"tts-relay/internal/admin"
	"tts-relay/internal/audio"
	"tts-relay/internal/bot"
	"tts-relay/internal/config"
	"tts-relay/internal/metrics"
	"tts-relay/internal/migrations"
	"tts-relay/internal/minimax"
	"tts-relay/internal/quota"
	"tts-relay/internal/scheduler"
	"tts-relay/internal/store"
	"tts-relay/internal/tts"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("запуск TTS Relay")

	// Инициализация базы данных
	st, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("ошибка инициализации базы данных", zap.Error(err))
	}
	defer st.Close()

	// Применение миграций
	if err := migrations.RunMigrations(cfg, logger); err != nil {
		logger.Fatal("ошибка применения миграций", zap.Error(err))
	}

	// Инициализация клиента провайдера и перекодировщика
	providerClient := minimax.NewClient(cfg.Minimax.GroupID, cfg.Minimax.APIKey, cfg.Minimax.BaseURL, logger)
	converter := audio.NewConverter(cfg.TTS.FFmpegPath, logger)

	// Инициализация сервисов
	ttsService := tts.NewService(providerClient, converter, cfg.TTS.Model, cfg.TTS.MaxTextLength, cfg.TTS.Timeout, logger)
	codeService := accesscode.NewService(st.Code(), logger)
	quotaService := quota.NewService(st.User(), st.Usage(), logger)

	// Инициализация метрик
	metricsSystem := metrics.New(logger)
	metricsHandler := metrics.NewHandler(metricsSystem, logger)

	// Инициализация Telegram бота
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Fatal("ошибка инициализации Telegram бота", zap.Error(err))
	}

	botInfo, err := botAPI.GetMe()
	if err != nil {
		logger.Fatal("ошибка получения информации о боте", zap.Error(err))
	}

	logger.Info("Telegram бот инициализирован",
		zap.String("username", botInfo.UserName),
		zap.Int64("id", botInfo.ID))

	// Инициализация обработчика
	handler := bot.NewHandler(botAPI, st, codeService, quotaService, ttsService, metricsSystem, logger)

	// Инициализация административного API
	adminHandler := admin.NewHandler(codeService, st.Voice(), st.Usage(), cfg.Admin.Token, logger)

	// Инициализация планировщика задач
	taskScheduler := scheduler.NewScheduler(logger)
	taskScheduler.AddJob(scheduler.NewStatisticsJob(st.Usage(), metricsSystem, logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Обработка сигналов для graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Запуск HTTP сервера для метрик и административного API
	go startHTTPServer(ctx, cfg.App.Port, metricsHandler, adminHandler, logger)

	// Запуск планировщика задач
	go taskScheduler.Start(ctx, time.Hour)

	// Запуск обработки обновлений
	go handleUpdates(ctx, botAPI, handler, logger)

	logger.Info("приложение запущено и готово к работе",
		zap.String("address", fmt.Sprintf("http://localhost:%d", cfg.App.Port)))

	// Ожидание сигнала завершения
	<-sigChan
	logger.Info("получен сигнал завершения, начинаем graceful shutdown")

	// Останавливаем получение обновлений
	botAPI.StopReceivingUpdates()
	cancel()

	logger.Info("приложение завершено")
}

// initLogger инициализирует логгер по конфигурации приложения
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.App.Env == "production" {
		logConfig := zap.NewProductionConfig()
		logConfig.Level = cfg.App.GetLogLevel()
		return logConfig.Build()
	}

	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level = cfg.App.GetLogLevel()
	return logConfig.Build()
}

// handleUpdates обрабатывает обновления от Telegram
func handleUpdates(ctx context.Context, botAPI *tgbotapi.BotAPI, handler *bot.Handler, logger *zap.Logger) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := botAPI.GetUpdatesChan(updateConfig)

	for {
		select {
		case update := <-updates:
			if update.Message == nil && update.CallbackQuery == nil {
				continue
			}

			// Обрабатываем обновление в горутине
			go func(update tgbotapi.Update) {
				if err := handler.HandleUpdate(ctx, update); err != nil {
					var chatID int64
					if update.Message != nil {
						chatID = update.Message.Chat.ID
					} else if update.CallbackQuery != nil && update.CallbackQuery.Message != nil {
						chatID = update.CallbackQuery.Message.Chat.ID
					}

					logger.Error("ошибка обработки обновления",
						zap.Int64("chat_id", chatID),
						zap.Error(err))
				}
			}(update)

		case <-ctx.Done():
			logger.Info("остановка обработки обновлений")
			return
		}
	}
}

// startHTTPServer запускает HTTP сервер для метрик и административного API
func startHTTPServer(ctx context.Context, port int, metricsHandler *metrics.Handler, adminHandler *admin.Handler, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler.MetricsHandler())
	mux.HandleFunc("/health", metricsHandler.HealthHandler)
	adminHandler.Register(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	logger.Info("HTTP сервер запущен", zap.String("address", server.Addr))

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ошибка HTTP сервера", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка при остановке HTTP сервера", zap.Error(err))
	}

	logger.Info("HTTP сервер остановлен")
}
