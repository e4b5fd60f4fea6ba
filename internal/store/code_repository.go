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

// pgUniqueViolation — код ошибки PostgreSQL для нарушения уникальности
const pgUniqueViolation = "23505"

// codeRepository реализует CodeRepository
type codeRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewCodeRepository создает новый репозиторий кодов доступа
func NewCodeRepository(db *pgxpool.Pool, logger *zap.Logger) CodeRepository {
	return &codeRepository{
		db:     db,
		logger: logger,
	}
}

// Create вставляет новый код доступа
func (r *codeRepository) Create(ctx context.Context, code *models.AccessCode) error {
	query := `
		INSERT INTO access_codes (code, quota_total, max_users, expiry_date, is_active, created_by, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	now := time.Now()
	code.CreatedAt = now
	code.IsActive = true
	if code.CreatedBy == "" {
		code.CreatedBy = "admin"
	}

	err := r.db.QueryRow(ctx, query,
		code.Code, code.QuotaTotal, code.MaxUsers, code.ExpiryDate,
		code.IsActive, code.CreatedBy, code.Notes, code.CreatedAt,
	).Scan(&code.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.ErrCodeExists
		}
		return fmt.Errorf("ошибка создания кода доступа: %w", err)
	}

	r.logger.Info("код доступа создан",
		zap.String("code", code.Code),
		zap.Int("quota_total", code.QuotaTotal),
		zap.Int("max_users", code.MaxUsers))

	return nil
}

// GetByCode получает код доступа по токену
func (r *codeRepository) GetByCode(ctx context.Context, token string) (*models.AccessCode, error) {
	query := `
		SELECT id, code, quota_total, quota_used, max_users, current_users,
		       expiry_date, is_active, created_by, notes, created_at
		FROM access_codes WHERE code = $1`

	code := &models.AccessCode{}
	err := r.db.QueryRow(ctx, query, token).Scan(
		&code.ID, &code.Code, &code.QuotaTotal, &code.QuotaUsed,
		&code.MaxUsers, &code.CurrentUsers, &code.ExpiryDate,
		&code.IsActive, &code.CreatedBy, &code.Notes, &code.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrCodeNotFound
		}
		return nil, fmt.Errorf("ошибка получения кода доступа: %w", err)
	}

	return code, nil
}

// Redeem привязывает код доступа к пользователю. Строка кода блокируется
// через SELECT ... FOR UPDATE, обе строки обновляются в одной транзакции:
// либо видны оба изменения, либо ни одного. Прежний код пользователя
// замещается, израсходованная квота обнуляется.
func (r *codeRepository) Redeem(ctx context.Context, telegramID int64, token string, now time.Time) (*models.RedeemResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT quota_total, max_users, current_users, expiry_date, is_active
		FROM access_codes WHERE code = $1
		FOR UPDATE`

	var (
		quotaTotal   int
		maxUsers     int
		currentUsers int
		expiryDate   *time.Time
		isActive     bool
	)

	err = tx.QueryRow(ctx, query, token).Scan(&quotaTotal, &maxUsers, &currentUsers, &expiryDate, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrCodeNotFound
		}
		return nil, fmt.Errorf("ошибка чтения кода доступа: %w", err)
	}

	// Машина состояний кода: DISABLED, EXPIRED и EXHAUSTED терминальны
	// для активации, строка кода при этом не изменяется.
	if !isActive {
		return nil, models.ErrCodeDisabled
	}
	if expiryDate != nil && now.After(*expiryDate) {
		return nil, models.ErrCodeExpired
	}
	if maxUsers > 0 && currentUsers >= maxUsers {
		return nil, models.ErrCodeCapacityReached
	}

	userQuery := `
		UPDATE users
		SET access_code = $1, quota_total = $2, quota_used = 0
		WHERE telegram_id = $3`

	result, err := tx.Exec(ctx, userQuery, token, quotaTotal, telegramID)
	if err != nil {
		return nil, fmt.Errorf("ошибка привязки кода к пользователю: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, models.ErrUserNotFound
	}

	// quota_used кода учитывает суммарно выданную квоту, не произнесенные
	// символы. Потребление квоты строку кода не затрагивает.
	codeQuery := `
		UPDATE access_codes
		SET current_users = current_users + 1, quota_used = quota_used + $1
		WHERE code = $2`

	if _, err := tx.Exec(ctx, codeQuery, quotaTotal, token); err != nil {
		return nil, fmt.Errorf("ошибка обновления кода доступа: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	r.logger.Info("код доступа активирован",
		zap.Int64("telegram_id", telegramID),
		zap.String("code", token),
		zap.Int("quota", quotaTotal))

	return &models.RedeemResult{Quota: quotaTotal, Expiry: expiryDate}, nil
}

// List получает все коды доступа
func (r *codeRepository) List(ctx context.Context) ([]*models.AccessCode, error) {
	query := `
		SELECT id, code, quota_total, quota_used, max_users, current_users,
		       expiry_date, is_active, created_by, notes, created_at
		FROM access_codes
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка кодов: %w", err)
	}
	defer rows.Close()

	var codes []*models.AccessCode
	for rows.Next() {
		code := &models.AccessCode{}
		err := rows.Scan(
			&code.ID, &code.Code, &code.QuotaTotal, &code.QuotaUsed,
			&code.MaxUsers, &code.CurrentUsers, &code.ExpiryDate,
			&code.IsActive, &code.CreatedBy, &code.Notes, &code.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования кода доступа: %w", err)
		}
		codes = append(codes, code)
	}

	return codes, rows.Err()
}
