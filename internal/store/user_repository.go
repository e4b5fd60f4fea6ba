package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tts-relay/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// userRepository реализует UserRepository
type userRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewUserRepository создает новый репозиторий пользователей
func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) UserRepository {
	return &userRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert создает пользователя или обновляет его профиль.
// Квота и настройки голоса при повторном контакте не сбрасываются.
func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (telegram_id, username, first_name, last_name, voice_id, speed, pitch, volume, emotion, created_at, last_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    last_active = EXCLUDED.last_active
		RETURNING id`

	now := time.Now()
	user.CreatedAt = now
	user.LastActive = now

	// Устанавливаем значения по умолчанию
	if user.VoiceID == "" {
		user.VoiceID = models.DefaultVoiceID
	}
	if user.Speed == 0 {
		user.Speed = models.DefaultSpeed
	}
	if user.Volume == 0 {
		user.Volume = models.DefaultVolume
	}
	if user.Emotion == "" {
		user.Emotion = models.DefaultEmotion
	}

	err := r.db.QueryRow(ctx, query,
		user.TelegramID, user.Username, user.FirstName, user.LastName,
		user.VoiceID, user.Speed, user.Pitch, user.Volume, user.Emotion, now,
	).Scan(&user.ID)

	if err != nil {
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}

	r.logger.Info("пользователь сохранен",
		zap.Int64("user_id", user.ID),
		zap.Int64("telegram_id", user.TelegramID),
		zap.String("username", user.Username))

	return nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (r *userRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `
		SELECT id, telegram_id, username, first_name, last_name, access_code, quota_total, quota_used,
		       voice_id, speed, pitch, volume, emotion, created_at, last_active
		FROM users WHERE telegram_id = $1`

	user := &models.User{}
	err := r.db.QueryRow(ctx, query, telegramID).Scan(
		&user.ID, &user.TelegramID, &user.Username, &user.FirstName, &user.LastName,
		&user.AccessCode, &user.QuotaTotal, &user.QuotaUsed,
		&user.VoiceID, &user.Speed, &user.Pitch, &user.Volume, &user.Emotion,
		&user.CreatedAt, &user.LastActive,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя по Telegram ID: %w", err)
	}

	return user, nil
}

// GetQuota получает состояние квоты пользователя вместе с данными его кода
func (r *userRepository) GetQuota(ctx context.Context, telegramID int64) (*models.UserQuota, error) {
	query := `
		SELECT u.access_code, u.quota_total, u.quota_used,
		       ac.expiry_date, ac.is_active
		FROM users u
		LEFT JOIN access_codes ac ON u.access_code = ac.code
		WHERE u.telegram_id = $1`

	var (
		code     *string
		total    int
		used     int
		expiry   *time.Time
		isActive *bool
	)

	err := r.db.QueryRow(ctx, query, telegramID).Scan(&code, &total, &used, &expiry, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("ошибка получения квоты пользователя: %w", err)
	}

	if code == nil {
		return nil, models.ErrNoAccessCode
	}

	quota := &models.UserQuota{
		Code:      *code,
		Total:     total,
		Used:      used,
		Remaining: total - used,
		Expiry:    expiry,
	}
	if isActive != nil {
		quota.IsActive = *isActive
	}

	return quota, nil
}

// DebitQuota атомарно списывает amount символов квоты.
// Условие остатка проверяется в самом UPDATE, без предварительного чтения.
func (r *userRepository) DebitQuota(ctx context.Context, telegramID int64, amount int) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("сумма списания должна быть положительной: %d", amount)
	}

	query := `
		UPDATE users
		SET quota_used = quota_used + $2, last_active = $3
		WHERE telegram_id = $1 AND quota_used + $2 <= quota_total`

	result, err := r.db.Exec(ctx, query, telegramID, amount, time.Now())
	if err != nil {
		return false, fmt.Errorf("ошибка списания квоты: %w", err)
	}

	applied := result.RowsAffected() > 0

	r.logger.Info("списание квоты",
		zap.Int64("telegram_id", telegramID),
		zap.Int("amount", amount),
		zap.Bool("applied", applied))

	return applied, nil
}

// UpdateSettings обновляет настройки голоса пользователя
func (r *userRepository) UpdateSettings(ctx context.Context, telegramID int64, voiceID string, speed float64, pitch int, volume float64, emotion string) error {
	query := `
		UPDATE users
		SET voice_id = $2, speed = $3, pitch = $4, volume = $5, emotion = $6, last_active = $7
		WHERE telegram_id = $1`

	result, err := r.db.Exec(ctx, query, telegramID, voiceID, speed, pitch, volume, emotion, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка обновления настроек пользователя: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}

	r.logger.Info("настройки пользователя обновлены",
		zap.Int64("telegram_id", telegramID),
		zap.String("voice_id", voiceID))
	return nil
}

// UpdateLastActive обновляет время последней активности
func (r *userRepository) UpdateLastActive(ctx context.Context, telegramID int64) error {
	query := `UPDATE users SET last_active = $2 WHERE telegram_id = $1`

	result, err := r.db.Exec(ctx, query, telegramID, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка обновления времени активности: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}

	return nil
}
