package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tts-relay/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// voiceRepository реализует VoiceRepository
type voiceRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewVoiceRepository создает новый репозиторий голосовых моделей
func NewVoiceRepository(db *pgxpool.Pool, logger *zap.Logger) VoiceRepository {
	return &voiceRepository{
		db:     db,
		logger: logger,
	}
}

// Add регистрирует новую голосовую модель
func (r *voiceRepository) Add(ctx context.Context, voice *models.Voice) error {
	query := `
		INSERT INTO voice_models (name, voice_id, model, language, gender, preview_url, image_url, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	voice.CreatedAt = time.Now()
	voice.IsActive = true
	if voice.Model == "" {
		voice.Model = models.DefaultModel
	}
	if voice.Language == "" {
		voice.Language = "en"
	}

	err := r.db.QueryRow(ctx, query,
		voice.Name, voice.VoiceID, voice.Model, voice.Language,
		voice.Gender, voice.PreviewURL, voice.ImageURL, voice.IsActive, voice.CreatedAt,
	).Scan(&voice.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("голос %s уже зарегистрирован", voice.VoiceID)
		}
		return fmt.Errorf("ошибка регистрации голоса: %w", err)
	}

	r.logger.Info("голосовая модель зарегистрирована",
		zap.String("voice_id", voice.VoiceID),
		zap.String("name", voice.Name),
		zap.String("model", voice.Model))

	return nil
}

// GetByVoiceID получает голос по идентификатору провайдера
func (r *voiceRepository) GetByVoiceID(ctx context.Context, voiceID string) (*models.Voice, error) {
	query := `
		SELECT id, name, voice_id, model, language, gender, preview_url, image_url, is_active, created_at
		FROM voice_models WHERE voice_id = $1`

	voice := &models.Voice{}
	err := r.db.QueryRow(ctx, query, voiceID).Scan(
		&voice.ID, &voice.Name, &voice.VoiceID, &voice.Model, &voice.Language,
		&voice.Gender, &voice.PreviewURL, &voice.ImageURL, &voice.IsActive, &voice.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("голос %s не найден", voiceID)
		}
		return nil, fmt.Errorf("ошибка получения голоса: %w", err)
	}

	return voice, nil
}

// ListActive получает активные голоса для показа пользователям
func (r *voiceRepository) ListActive(ctx context.Context) ([]*models.Voice, error) {
	return r.list(ctx, `WHERE is_active = true`)
}

// List получает все голоса для административного интерфейса
func (r *voiceRepository) List(ctx context.Context) ([]*models.Voice, error) {
	return r.list(ctx, ``)
}

func (r *voiceRepository) list(ctx context.Context, filter string) ([]*models.Voice, error) {
	query := `
		SELECT id, name, voice_id, model, language, gender, preview_url, image_url, is_active, created_at
		FROM voice_models ` + filter + `
		ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка голосов: %w", err)
	}
	defer rows.Close()

	var voices []*models.Voice
	for rows.Next() {
		voice := &models.Voice{}
		err := rows.Scan(
			&voice.ID, &voice.Name, &voice.VoiceID, &voice.Model, &voice.Language,
			&voice.Gender, &voice.PreviewURL, &voice.ImageURL, &voice.IsActive, &voice.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования голоса: %w", err)
		}
		voices = append(voices, voice)
	}

	return voices, rows.Err()
}
