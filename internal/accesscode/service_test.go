package accesscode

import (
	"context"
	"regexp"
	"testing"
	"time"

	"tts-relay/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCodeRepository — репозиторий кодов в памяти для тестов
type fakeCodeRepository struct {
	codes     map[string]*models.AccessCode
	createErr error
	failFirst int // сколько первых Create завершить коллизией
}

func newFakeCodeRepository() *fakeCodeRepository {
	return &fakeCodeRepository{codes: make(map[string]*models.AccessCode)}
}

func (f *fakeCodeRepository) Create(ctx context.Context, code *models.AccessCode) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.failFirst > 0 {
		f.failFirst--
		return models.ErrCodeExists
	}
	if _, ok := f.codes[code.Code]; ok {
		return models.ErrCodeExists
	}
	code.IsActive = true
	f.codes[code.Code] = code
	return nil
}

func (f *fakeCodeRepository) GetByCode(ctx context.Context, token string) (*models.AccessCode, error) {
	code, ok := f.codes[token]
	if !ok {
		return nil, models.ErrCodeNotFound
	}
	return code, nil
}

func (f *fakeCodeRepository) Redeem(ctx context.Context, telegramID int64, token string, now time.Time) (*models.RedeemResult, error) {
	code, ok := f.codes[token]
	if !ok {
		return nil, models.ErrCodeNotFound
	}
	if err := ValidateForRedeem(code, now); err != nil {
		return nil, err
	}
	code.CurrentUsers++
	code.QuotaUsed += code.QuotaTotal
	return &models.RedeemResult{Quota: code.QuotaTotal, Expiry: code.ExpiryDate}, nil
}

func (f *fakeCodeRepository) List(ctx context.Context) ([]*models.AccessCode, error) {
	var out []*models.AccessCode
	for _, c := range f.codes {
		out = append(out, c)
	}
	return out, nil
}

func TestGenerateToken(t *testing.T) {
	pattern := regexp.MustCompile(`^TTS-[A-Z0-9]{15}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateToken()
		require.NoError(t, err)
		assert.Regexp(t, pattern, token)
		assert.False(t, seen[token], "токен повторился: %s", token)
		seen[token] = true
	}
}

func TestSymbolForUniform(t *testing.T) {
	// Байты за пределами наибольшего кратного размера алфавита отбрасываются
	for b := symbolLimit; b < 256; b++ {
		_, ok := symbolFor(byte(b))
		assert.False(t, ok, "байт %d должен отбрасываться", b)
	}

	counts := make(map[byte]int)
	for b := 0; b < symbolLimit; b++ {
		sym, ok := symbolFor(byte(b))
		require.True(t, ok, "байт %d должен приниматься", b)
		counts[sym]++
	}

	// Каждый символ алфавита выпадает из принятых байтов одинаково часто
	perSymbol := symbolLimit / len(codeAlphabet)
	for i := 0; i < len(codeAlphabet); i++ {
		assert.Equal(t, perSymbol, counts[codeAlphabet[i]],
			"символ %c представлен неравномерно", codeAlphabet[i])
	}
}

func TestCreateCode(t *testing.T) {
	repo := newFakeCodeRepository()
	svc := NewService(repo, zap.NewNop())

	before := time.Now()
	code, err := svc.CreateCode(context.Background(), &models.CreateCodeRequest{
		Quota:    50000,
		Days:     30,
		MaxUsers: 1,
		Notes:    "тестовый код",
	})
	require.NoError(t, err)

	assert.Regexp(t, `^TTS-[A-Z0-9]{15}$`, code.Code)
	assert.Equal(t, 50000, code.QuotaTotal)
	assert.Equal(t, 1, code.MaxUsers)
	assert.True(t, code.IsActive)

	// Дата истечения примерно через 30 дней
	require.NotNil(t, code.ExpiryDate)
	expected := before.AddDate(0, 0, 30)
	assert.WithinDuration(t, expected, *code.ExpiryDate, time.Minute)
}

func TestCreateCodeWithoutExpiry(t *testing.T) {
	repo := newFakeCodeRepository()
	svc := NewService(repo, zap.NewNop())

	code, err := svc.CreateCode(context.Background(), &models.CreateCodeRequest{Quota: 1000})
	require.NoError(t, err)
	assert.Nil(t, code.ExpiryDate)
	assert.Equal(t, 0, code.MaxUsers)
}

func TestCreateCodeInvalidQuota(t *testing.T) {
	repo := newFakeCodeRepository()
	svc := NewService(repo, zap.NewNop())

	_, err := svc.CreateCode(context.Background(), &models.CreateCodeRequest{Quota: 0})
	assert.Error(t, err)
}

func TestCreateCodeRetriesOnCollision(t *testing.T) {
	repo := newFakeCodeRepository()
	repo.failFirst = 2 // первые две вставки завершаются коллизией
	svc := NewService(repo, zap.NewNop())

	code, err := svc.CreateCode(context.Background(), &models.CreateCodeRequest{Quota: 1000})
	require.NoError(t, err)
	assert.NotEmpty(t, code.Code)
}

func TestCreateCodeCollisionExhausted(t *testing.T) {
	repo := newFakeCodeRepository()
	repo.createErr = models.ErrCodeExists
	svc := NewService(repo, zap.NewNop())

	_, err := svc.CreateCode(context.Background(), &models.CreateCodeRequest{Quota: 1000})
	assert.Error(t, err)
}

func TestValidateForRedeem(t *testing.T) {
	now := time.Now()
	expired := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name    string
		code    *models.AccessCode
		wantErr error
	}{
		{
			name:    "код не найден",
			code:    nil,
			wantErr: models.ErrCodeNotFound,
		},
		{
			name:    "код отключен",
			code:    &models.AccessCode{IsActive: false},
			wantErr: models.ErrCodeDisabled,
		},
		{
			name:    "код истек",
			code:    &models.AccessCode{IsActive: true, ExpiryDate: &expired},
			wantErr: models.ErrCodeExpired,
		},
		{
			name:    "лимит пользователей достигнут",
			code:    &models.AccessCode{IsActive: true, MaxUsers: 3, CurrentUsers: 3},
			wantErr: models.ErrCodeCapacityReached,
		},
		{
			name:    "последнее свободное место",
			code:    &models.AccessCode{IsActive: true, MaxUsers: 3, CurrentUsers: 2},
			wantErr: nil,
		},
		{
			name:    "без ограничения пользователей",
			code:    &models.AccessCode{IsActive: true, MaxUsers: 0, CurrentUsers: 1000},
			wantErr: nil,
		},
		{
			name:    "действующий код с датой в будущем",
			code:    &models.AccessCode{IsActive: true, ExpiryDate: &future},
			wantErr: nil,
		},
		{
			name: "отключение важнее истечения",
			code: &models.AccessCode{IsActive: false, ExpiryDate: &expired},
			// Отключенный код сообщается как отключенный, даже если истек
			wantErr: models.ErrCodeDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateForRedeem(tt.code, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedeemExpiredLeavesCodeUntouched(t *testing.T) {
	repo := newFakeCodeRepository()
	expired := time.Now().Add(-time.Hour)
	repo.codes["TTS-AAAAAAAAAAAAAAA"] = &models.AccessCode{
		Code:       "TTS-AAAAAAAAAAAAAAA",
		QuotaTotal: 1000,
		IsActive:   true,
		ExpiryDate: &expired,
	}
	svc := NewService(repo, zap.NewNop())

	_, err := svc.Redeem(context.Background(), 42, "TTS-AAAAAAAAAAAAAAA")
	assert.ErrorIs(t, err, models.ErrCodeExpired)

	// Счетчики кода не изменились
	code := repo.codes["TTS-AAAAAAAAAAAAAAA"]
	assert.Equal(t, 0, code.CurrentUsers)
	assert.Equal(t, 0, code.QuotaUsed)
}

func TestRedeemAtCapacityBoundary(t *testing.T) {
	repo := newFakeCodeRepository()
	repo.codes["TTS-BBBBBBBBBBBBBBB"] = &models.AccessCode{
		Code:         "TTS-BBBBBBBBBBBBBBB",
		QuotaTotal:   500,
		IsActive:     true,
		MaxUsers:     2,
		CurrentUsers: 1,
	}
	svc := NewService(repo, zap.NewNop())

	// Предпоследнее место: активация проходит и доводит код до лимита
	result, err := svc.Redeem(context.Background(), 1, "TTS-BBBBBBBBBBBBBBB")
	require.NoError(t, err)
	assert.Equal(t, 500, result.Quota)
	assert.Equal(t, 2, repo.codes["TTS-BBBBBBBBBBBBBBB"].CurrentUsers)

	// Лимит достигнут: следующая активация отклоняется
	_, err = svc.Redeem(context.Background(), 2, "TTS-BBBBBBBBBBBBBBB")
	assert.ErrorIs(t, err, models.ErrCodeCapacityReached)
}

func TestRedeemTracksDistributedQuota(t *testing.T) {
	repo := newFakeCodeRepository()
	repo.codes["TTS-CCCCCCCCCCCCCCC"] = &models.AccessCode{
		Code:       "TTS-CCCCCCCCCCCCCCC",
		QuotaTotal: 300,
		IsActive:   true,
	}
	svc := NewService(repo, zap.NewNop())

	for i := int64(1); i <= 3; i++ {
		_, err := svc.Redeem(context.Background(), i, "TTS-CCCCCCCCCCCCCCC")
		require.NoError(t, err)
	}

	// quota_used кода учитывает суммарно выданную квоту
	assert.Equal(t, 900, repo.codes["TTS-CCCCCCCCCCCCCCC"].QuotaUsed)
	assert.Equal(t, 3, repo.codes["TTS-CCCCCCCCCCCCCCC"].CurrentUsers)
}
