package accesscode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"tts-relay/internal/store"
	"tts-relay/pkg/models"

	"go.uber.org/zap"
)

const (
	// CodePrefix — фиксированный префикс токена кода доступа
	CodePrefix = "TTS-"
	// codeLength — длина случайной части токена
	codeLength = 15
	// codeAlphabet — 36 символов, ~77 бит энтропии на токен
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// createAttempts — число попыток при коллизии токена. Коллизии
	// практически исключены, но уникальность все равно проверяется
	// на уровне хранилища, а не предполагается.
	createAttempts = 3

	// symbolLimit — наибольшее кратное размера алфавита в диапазоне
	// байта. Байты начиная с него отбрасываются: взятие остатка от
	// полного диапазона перепредставляло бы первые 256 % 36 символов.
	symbolLimit = 256 / len(codeAlphabet) * len(codeAlphabet)
)

// Service представляет сервис управления кодами доступа
type Service struct {
	codes  store.CodeRepository
	logger *zap.Logger
}

// NewService создает новый сервис кодов доступа
func NewService(codes store.CodeRepository, logger *zap.Logger) *Service {
	return &Service{
		codes:  codes,
		logger: logger,
	}
}

// GenerateToken генерирует новый токен кода доступа. Символы берутся
// равномерно: байты вне symbolLimit отбрасываются и добираются заново.
func GenerateToken() (string, error) {
	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength)

	for len(out) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("ошибка генерации случайных байтов: %w", err)
		}
		for _, b := range buf {
			sym, ok := symbolFor(b)
			if !ok {
				continue
			}
			out = append(out, sym)
			if len(out) == codeLength {
				break
			}
		}
	}

	return CodePrefix + string(out), nil
}

// symbolFor отображает случайный байт в символ алфавита.
// false означает, что байт отброшен и нужен следующий.
func symbolFor(b byte) (byte, bool) {
	if int(b) >= symbolLimit {
		return 0, false
	}
	return codeAlphabet[int(b)%len(codeAlphabet)], true
}

// ValidateForRedeem проверяет, допускает ли код активацию в момент now.
// Порядок проверок фиксирован: отсутствие, отключение, истечение, лимит.
func ValidateForRedeem(code *models.AccessCode, now time.Time) error {
	if code == nil {
		return models.ErrCodeNotFound
	}
	if !code.IsActive {
		return models.ErrCodeDisabled
	}
	if code.ExpiryDate != nil && now.After(*code.ExpiryDate) {
		return models.ErrCodeExpired
	}
	if code.MaxUsers > 0 && code.CurrentUsers >= code.MaxUsers {
		return models.ErrCodeCapacityReached
	}
	return nil
}

// CreateCode создает новый код доступа с вычисленной датой истечения.
// days <= 0 означает бессрочный код.
func (s *Service) CreateCode(ctx context.Context, req *models.CreateCodeRequest) (*models.AccessCode, error) {
	if req.Quota <= 0 {
		return nil, fmt.Errorf("квота кода должна быть положительной: %d", req.Quota)
	}
	if req.MaxUsers < 0 {
		return nil, fmt.Errorf("лимит пользователей не может быть отрицательным: %d", req.MaxUsers)
	}

	var expiry *time.Time
	if req.Days > 0 {
		e := time.Now().AddDate(0, 0, req.Days)
		expiry = &e
	}

	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		token, err := GenerateToken()
		if err != nil {
			return nil, err
		}

		code := &models.AccessCode{
			Code:       token,
			QuotaTotal: req.Quota,
			MaxUsers:   req.MaxUsers,
			ExpiryDate: expiry,
			Notes:      req.Notes,
		}

		err = s.codes.Create(ctx, code)
		if err == nil {
			s.logger.Info("выпущен код доступа",
				zap.String("code", token),
				zap.Int("quota", req.Quota),
				zap.Int("days", req.Days),
				zap.Int("max_users", req.MaxUsers))
			return code, nil
		}

		if !errors.Is(err, models.ErrCodeExists) {
			return nil, err
		}

		// Коллизия токена: пробуем с новым токеном
		s.logger.Warn("коллизия токена кода доступа, повторная генерация",
			zap.Int("attempt", attempt+1))
		lastErr = err
	}

	return nil, fmt.Errorf("не удалось создать уникальный код за %d попыток: %w", createAttempts, lastErr)
}

// Redeem активирует код доступа для пользователя. Активация замещает
// прежний код: quota_total перезаписывается, quota_used обнуляется.
func (s *Service) Redeem(ctx context.Context, telegramID int64, token string) (*models.RedeemResult, error) {
	result, err := s.codes.Redeem(ctx, telegramID, token, time.Now())
	if err != nil {
		s.logger.Info("отказ в активации кода",
			zap.Int64("telegram_id", telegramID),
			zap.String("code", token),
			zap.Error(err))
		return nil, err
	}

	return result, nil
}

// ListCodes возвращает все коды доступа
func (s *Service) ListCodes(ctx context.Context) ([]*models.AccessCode, error) {
	codes, err := s.codes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка кодов: %w", err)
	}
	return codes, nil
}
