package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"tts-relay/internal/accesscode"
	"tts-relay/internal/config"
	"tts-relay/internal/store"
	"tts-relay/pkg/models"

	"go.uber.org/zap"
)

func main() {
	var (
		quota    = flag.Int("quota", 50000, "Квота в символах на каждого активировавшего")
		days     = flag.Int("days", 30, "Срок действия в днях (0 = без ограничения)")
		maxUsers = flag.Int("max-users", 1, "Максимум активаций (0 = без ограничения)")
		count    = flag.Int("count", 1, "Количество кодов для создания")
		notes    = flag.String("notes", "", "Заметка для администратора")
		list     = flag.Bool("list", false, "Показать существующие коды вместо создания")
	)
	flag.Parse()

	// Инициализация логгера
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Ошибка инициализации логгера:", err)
	}
	defer logger.Sync()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Подключение к базе данных
	st, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("Ошибка подключения к базе данных", zap.Error(err))
	}
	defer st.Close()

	codeService := accesscode.NewService(st.Code(), logger)
	ctx := context.Background()

	if *list {
		if err := listCodes(ctx, codeService); err != nil {
			logger.Fatal("Ошибка получения списка кодов", zap.Error(err))
		}
		return
	}

	if *quota <= 0 {
		logger.Fatal("Квота должна быть положительной", zap.Int("quota", *quota))
	}

	for i := 0; i < *count; i++ {
		code, err := codeService.CreateCode(ctx, &models.CreateCodeRequest{
			Quota:    *quota,
			Days:     *days,
			MaxUsers: *maxUsers,
			Notes:    *notes,
		})
		if err != nil {
			logger.Fatal("Ошибка создания кода", zap.Error(err))
		}

		expiry := "без ограничения"
		if code.ExpiryDate != nil {
			expiry = code.ExpiryDate.Format("02.01.2006")
		}
		fmt.Printf("%s\tквота %d\tдо %s\tактиваций %d\n", code.Code, code.QuotaTotal, expiry, code.MaxUsers)
	}

	logger.Info("Коды созданы",
		zap.Int("count", *count),
		zap.Int("quota", *quota),
		zap.Int("days", *days))
}

func listCodes(ctx context.Context, codeService *accesscode.Service) error {
	codes, err := codeService.ListCodes(ctx)
	if err != nil {
		return fmt.Errorf("ошибка получения кодов: %w", err)
	}

	if len(codes) == 0 {
		fmt.Println("Кодов пока нет")
		return nil
	}

	for _, c := range codes {
		status := "активен"
		if !c.IsActive {
			status = "отключен"
		}
		expiry := "-"
		if c.ExpiryDate != nil {
			expiry = c.ExpiryDate.Format("02.01.2006")
		}
		fmt.Printf("%s\t%s\tквота %d\tвыдано %d\tактиваций %d/%d\tдо %s\t%s\n",
			c.Code, status, c.QuotaTotal, c.QuotaUsed, c.CurrentUsers, c.MaxUsers, expiry, c.Notes)
	}
	return nil
}
