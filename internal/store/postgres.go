package store

import (
	"context"
	"fmt"
	"time"

	"tts-relay/internal/config"
	"tts-relay/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store представляет интерфейс для работы с базой данных
type Store interface {
	User() UserRepository
	Code() CodeRepository
	Voice() VoiceRepository
	Usage() UsageRepository
	DB() *pgxpool.Pool
	Close() error
}

// store реализует интерфейс Store
type store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
	user   UserRepository
	code   CodeRepository
	voice  VoiceRepository
	usage  UsageRepository
}

// UserRepository интерфейс для работы с пользователями
type UserRepository interface {
	// Upsert создает пользователя или обновляет его профиль.
	// Поля квоты при обновлении не затрагиваются.
	Upsert(ctx context.Context, user *models.User) error
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	// GetQuota возвращает состояние квоты вместе с данными кода.
	// Возвращает models.ErrNoAccessCode, если у пользователя нет кода.
	GetQuota(ctx context.Context, telegramID int64) (*models.UserQuota, error)
	// DebitQuota атомарно списывает amount символов. Возвращает false,
	// если остатка недостаточно. Никогда не выполняется как read-then-write:
	// один и тот же пользователь может списывать квоту конкурентно.
	DebitQuota(ctx context.Context, telegramID int64, amount int) (bool, error)
	UpdateSettings(ctx context.Context, telegramID int64, voiceID string, speed float64, pitch int, volume float64, emotion string) error
	UpdateLastActive(ctx context.Context, telegramID int64) error
}

// CodeRepository интерфейс для работы с кодами доступа
type CodeRepository interface {
	// Create вставляет новый код. Возвращает models.ErrCodeExists
	// при коллизии токена.
	Create(ctx context.Context, code *models.AccessCode) error
	GetByCode(ctx context.Context, code string) (*models.AccessCode, error)
	// Redeem атомарно привязывает код к пользователю: обе строки
	// (пользователь и код) обновляются в одной транзакции.
	Redeem(ctx context.Context, telegramID int64, code string, now time.Time) (*models.RedeemResult, error)
	List(ctx context.Context) ([]*models.AccessCode, error)
}

// VoiceRepository интерфейс для работы с голосовыми моделями
type VoiceRepository interface {
	Add(ctx context.Context, voice *models.Voice) error
	GetByVoiceID(ctx context.Context, voiceID string) (*models.Voice, error)
	ListActive(ctx context.Context) ([]*models.Voice, error)
	List(ctx context.Context) ([]*models.Voice, error)
}

// UsageRepository интерфейс для работы с историей использования
type UsageRepository interface {
	// Record добавляет запись в историю. Возвращает false без ошибки,
	// если пользователь не существует: аудит не должен ронять ответ.
	Record(ctx context.Context, telegramID int64, textSample string, charCount int, voiceID string) (bool, error)
	Statistics(ctx context.Context, window time.Duration) (*models.Statistics, error)
}

// NewStore создает новое подключение к базе данных
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Создание пула подключений
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	// Настройка пула
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	// Создание пула
	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	// Проверка подключения
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ошибка проверки подключения к базе данных: %w", err)
	}

	logger.Info("успешное подключение к базе данных PostgreSQL")

	s := &store{
		db:     db,
		logger: logger,
	}

	// Инициализация репозиториев
	s.user = NewUserRepository(db, logger)
	s.code = NewCodeRepository(db, logger)
	s.voice = NewVoiceRepository(db, logger)
	s.usage = NewUsageRepository(db, logger)

	return s, nil
}

// User возвращает репозиторий пользователей
func (s *store) User() UserRepository {
	return s.user
}

// Code возвращает репозиторий кодов доступа
func (s *store) Code() CodeRepository {
	return s.code
}

// Voice возвращает репозиторий голосовых моделей
func (s *store) Voice() VoiceRepository {
	return s.voice
}

// Usage возвращает репозиторий истории использования
func (s *store) Usage() UsageRepository {
	return s.usage
}

// DB возвращает подключение к базе данных
func (s *store) DB() *pgxpool.Pool {
	return s.db
}

// Close закрывает подключение к базе данных
func (s *store) Close() error {
	s.logger.Info("закрытие подключения к базе данных")
	s.db.Close()
	return nil
}
