package quota

import (
	"context"
	"fmt"

	"tts-relay/internal/store"
	"tts-relay/pkg/models"

	"go.uber.org/zap"
)

// sampleLimit — предел длины образца текста в истории использования
const sampleLimit = 200

// Service представляет охранника квоты: предварительную авторизацию
// и последующее списание
type Service struct {
	users  store.UserRepository
	usage  store.UsageRepository
	logger *zap.Logger
}

// NewService создает новый сервис квоты
func NewService(users store.UserRepository, usage store.UsageRepository, logger *zap.Logger) *Service {
	return &Service{
		users:  users,
		usage:  usage,
		logger: logger,
	}
}

// Authorize проверяет, хватает ли пользователю квоты на charCount символов.
// Возвращает models.ErrNoAccessCode или *models.QuotaExceededError.
// Проверка только предварительная: окончательное решение принимает
// атомарное списание в Commit.
func (s *Service) Authorize(ctx context.Context, telegramID int64, charCount int) (*models.UserQuota, error) {
	if charCount <= 0 {
		return nil, fmt.Errorf("длина текста должна быть положительной: %d", charCount)
	}

	q, err := s.users.GetQuota(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	if q.Remaining < charCount {
		return nil, &models.QuotaExceededError{
			Required:  charCount,
			Available: q.Remaining,
		}
	}

	return q, nil
}

// Commit списывает квоту после успешного синтеза и добавляет запись
// в историю. Списание условное и атомарное: при конкурентных запросах
// одного пользователя баланс мог уйти после Authorize. Проигравший
// гонку запрос получает *models.QuotaExceededError, и вызывающая
// сторона обязана не отдавать уже сгенерированное аудио: потерянный
// синтез ограничен по стоимости, перерасход квоты — нет.
func (s *Service) Commit(ctx context.Context, telegramID int64, text string, voiceID string) (int, error) {
	charCount := CharCount(text)

	applied, err := s.users.DebitQuota(ctx, telegramID, charCount)
	if err != nil {
		return 0, fmt.Errorf("ошибка списания квоты: %w", err)
	}

	if !applied {
		q, qerr := s.users.GetQuota(ctx, telegramID)
		available := 0
		if qerr == nil {
			available = q.Remaining
		}
		s.logger.Warn("списание квоты проиграло гонку, аудио не будет отправлено",
			zap.Int64("telegram_id", telegramID),
			zap.Int("char_count", charCount),
			zap.Int("available", available))
		return 0, &models.QuotaExceededError{Required: charCount, Available: available}
	}

	// История append-only, ее сбой не отменяет состоявшееся списание
	recorded, err := s.usage.Record(ctx, telegramID, TruncateSample(text), charCount, voiceID)
	if err != nil || !recorded {
		s.logger.Warn("не удалось записать историю использования",
			zap.Int64("telegram_id", telegramID),
			zap.Bool("recorded", recorded),
			zap.Error(err))
	}

	return charCount, nil
}

// Remaining возвращает текущее состояние квоты пользователя
func (s *Service) Remaining(ctx context.Context, telegramID int64) (*models.UserQuota, error) {
	return s.users.GetQuota(ctx, telegramID)
}

// CharCount считает тарифицируемую длину текста в символах
func CharCount(text string) int {
	return len([]rune(text))
}

// TruncateSample усекает текст до предела образца для истории
func TruncateSample(text string) string {
	runes := []rune(text)
	if len(runes) <= sampleLimit {
		return text
	}
	return string(runes[:sampleLimit])
}
