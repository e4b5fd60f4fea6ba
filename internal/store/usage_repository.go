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

// usageRepository реализует UsageRepository
type usageRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewUsageRepository создает новый репозиторий истории использования
func NewUsageRepository(db *pgxpool.Pool, logger *zap.Logger) UsageRepository {
	return &usageRepository{
		db:     db,
		logger: logger,
	}
}

// Record добавляет запись в историю использования. История append-only:
// записи никогда не изменяются и не удаляются. Отсутствие пользователя
// не считается ошибкой.
func (r *usageRepository) Record(ctx context.Context, telegramID int64, textSample string, charCount int, voiceID string) (bool, error) {
	var userID int64
	err := r.db.QueryRow(ctx, `SELECT id FROM users WHERE telegram_id = $1`, telegramID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка поиска пользователя для истории: %w", err)
	}

	query := `
		INSERT INTO usage_history (user_id, text, char_count, voice_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.Exec(ctx, query, userID, textSample, charCount, voiceID, time.Now()); err != nil {
		return false, fmt.Errorf("ошибка записи истории использования: %w", err)
	}

	r.logger.Debug("запись истории добавлена",
		zap.Int64("user_id", userID),
		zap.Int("char_count", charCount),
		zap.String("voice_id", voiceID))

	return true, nil
}

// Statistics собирает агрегированную статистику системы. Окно window
// ограничивает счетчик активных пользователей и суточную сводку;
// суммарные счетчики и топ голосов считаются за все время.
func (r *usageRepository) Statistics(ctx context.Context, window time.Duration) (*models.Statistics, error) {
	stats := &models.Statistics{Timestamp: time.Now()}
	cutoff := time.Now().Add(-window)

	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.TotalUsers); err != nil {
		return nil, fmt.Errorf("ошибка подсчета пользователей: %w", err)
	}

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM usage_history WHERE created_at >= $1`, cutoff,
	).Scan(&stats.ActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчета активных пользователей: %w", err)
	}

	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM access_codes WHERE is_active = true`,
	).Scan(&stats.ActiveCodes)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчета активных кодов: %w", err)
	}

	err = r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(char_count), 0) FROM usage_history`,
	).Scan(&stats.TotalCharacters)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчета символов: %w", err)
	}

	// Суточная сводка за окно статистики
	rows, err := r.db.Query(ctx, `
		SELECT date_trunc('day', created_at) AS date,
		       SUM(char_count) AS chars,
		       COUNT(*) AS requests
		FROM usage_history
		WHERE created_at >= $1
		GROUP BY date
		ORDER BY date DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения суточной статистики: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.DailyUsage
		if err := rows.Scan(&d.Date, &d.Chars, &d.Requests); err != nil {
			return nil, fmt.Errorf("ошибка сканирования суточной статистики: %w", err)
		}
		stats.DailyUsage = append(stats.DailyUsage, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения суточной статистики: %w", err)
	}

	// Топ голосов по количеству символов
	voiceRows, err := r.db.Query(ctx, `
		SELECT voice_id,
		       SUM(char_count) AS chars,
		       COUNT(*) AS requests
		FROM usage_history
		GROUP BY voice_id
		ORDER BY chars DESC
		LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики голосов: %w", err)
	}
	defer voiceRows.Close()

	for voiceRows.Next() {
		var v models.VoiceUsage
		if err := voiceRows.Scan(&v.VoiceID, &v.Chars, &v.Requests); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики голосов: %w", err)
		}
		stats.VoiceUsage = append(stats.VoiceUsage, v)
	}

	return stats, voiceRows.Err()
}
