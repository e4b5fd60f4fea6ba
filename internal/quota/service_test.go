package quota

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tts-relay/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeUserRepository — хранилище пользователей в памяти с условным
// списанием под мьютексом, как в настоящем атомарном UPDATE
type fakeUserRepository struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{users: make(map[int64]*models.User)}
}

func (f *fakeUserRepository) Upsert(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.TelegramID] = user
	return nil
}

func (f *fakeUserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserRepository) GetQuota(ctx context.Context, telegramID int64) (*models.UserQuota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	if u.AccessCode == nil {
		return nil, models.ErrNoAccessCode
	}
	return &models.UserQuota{
		Code:      *u.AccessCode,
		Total:     u.QuotaTotal,
		Used:      u.QuotaUsed,
		Remaining: u.QuotaTotal - u.QuotaUsed,
		IsActive:  true,
	}, nil
}

func (f *fakeUserRepository) DebitQuota(ctx context.Context, telegramID int64, amount int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return false, nil
	}
	if u.QuotaUsed+amount > u.QuotaTotal {
		return false, nil
	}
	u.QuotaUsed += amount
	return true, nil
}

func (f *fakeUserRepository) UpdateSettings(ctx context.Context, telegramID int64, voiceID string, speed float64, pitch int, volume float64, emotion string) error {
	return nil
}

func (f *fakeUserRepository) UpdateLastActive(ctx context.Context, telegramID int64) error {
	return nil
}

// fakeUsageRepository собирает записи истории в памяти
type fakeUsageRepository struct {
	mu      sync.Mutex
	records []models.UsageRecord
}

func (f *fakeUsageRepository) Record(ctx context.Context, telegramID int64, textSample string, charCount int, voiceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, models.UsageRecord{
		UserID:    telegramID,
		Text:      textSample,
		CharCount: charCount,
		VoiceID:   voiceID,
	})
	return true, nil
}

func (f *fakeUsageRepository) Statistics(ctx context.Context, window time.Duration) (*models.Statistics, error) {
	return &models.Statistics{}, nil
}

func newTestService(users *fakeUserRepository) (*Service, *fakeUsageRepository) {
	usage := &fakeUsageRepository{}
	return NewService(users, usage, zap.NewNop()), usage
}

func userWithQuota(telegramID int64, total, used int) *models.User {
	code := "TTS-TESTTESTTEST123"
	return &models.User{
		TelegramID: telegramID,
		AccessCode: &code,
		QuotaTotal: total,
		QuotaUsed:  used,
	}
}

func TestAuthorizeNoAccessCode(t *testing.T) {
	users := newFakeUserRepository()
	users.users[1] = &models.User{TelegramID: 1}
	svc, _ := newTestService(users)

	_, err := svc.Authorize(context.Background(), 1, 10)
	assert.ErrorIs(t, err, models.ErrNoAccessCode)
}

func TestAuthorizeQuotaExceeded(t *testing.T) {
	users := newFakeUserRepository()
	users.users[1] = userWithQuota(1, 50, 0)
	svc, _ := newTestService(users)

	_, err := svc.Authorize(context.Background(), 1, 100)
	qe, ok := models.IsQuotaExceeded(err)
	require.True(t, ok)
	assert.Equal(t, 100, qe.Required)
	assert.Equal(t, 50, qe.Available)
}

func TestAuthorizeExactBalance(t *testing.T) {
	users := newFakeUserRepository()
	users.users[1] = userWithQuota(1, 50, 0)
	svc, _ := newTestService(users)

	q, err := svc.Authorize(context.Background(), 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, q.Remaining)
}

func TestCommitDebitsAndRecords(t *testing.T) {
	users := newFakeUserRepository()
	users.users[1] = userWithQuota(1, 100, 0)
	svc, usage := newTestService(users)

	charged, err := svc.Commit(context.Background(), 1, "привет мир", "voice-1")
	require.NoError(t, err)
	assert.Equal(t, 10, charged) // 10 символов, не байтов

	assert.Equal(t, 10, users.users[1].QuotaUsed)
	require.Len(t, usage.records, 1)
	assert.Equal(t, "привет мир", usage.records[0].Text)
	assert.Equal(t, "voice-1", usage.records[0].VoiceID)
}

func TestCommitExactBalanceLeavesZero(t *testing.T) {
	users := newFakeUserRepository()
	users.users[1] = userWithQuota(1, 50, 0)
	svc, _ := newTestService(users)

	text := strings.Repeat("a", 50)
	_, err := svc.Commit(context.Background(), 1, text, "voice-1")
	require.NoError(t, err)

	q, err := svc.Remaining(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, q.Remaining)
}

func TestCommitLostRace(t *testing.T) {
	users := newFakeUserRepository()
	users.users[1] = userWithQuota(1, 30, 25)
	svc, usage := newTestService(users)

	// Остатка 5 недостаточно: списание отклоняется, история не пишется
	_, err := svc.Commit(context.Background(), 1, "длинный текст", "voice-1")
	qe, ok := models.IsQuotaExceeded(err)
	require.True(t, ok)
	assert.Equal(t, 5, qe.Available)
	assert.Equal(t, 25, users.users[1].QuotaUsed)
	assert.Empty(t, usage.records)
}

func TestConcurrentDebitInvariant(t *testing.T) {
	users := newFakeUserRepository()
	// Квоты хватает ровно на 7 списаний по 10 символов
	users.users[1] = userWithQuota(1, 75, 0)
	svc, _ := newTestService(users)

	const workers = 20
	text := strings.Repeat("x", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Commit(context.Background(), 1, text, "voice-1"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	u := users.users[1]
	// Инвариант: used никогда не превышает total
	assert.LessOrEqual(t, u.QuotaUsed, u.QuotaTotal)
	// Сумма успешных списаний равна итоговому used: ничего не потеряно
	// и не списано дважды
	assert.Equal(t, successes*10, u.QuotaUsed)
	assert.Equal(t, 7, successes)
}

func TestCharCount(t *testing.T) {
	assert.Equal(t, 5, CharCount("hello"))
	assert.Equal(t, 6, CharCount("привет")) // кириллица: символы, не байты
	assert.Equal(t, 0, CharCount(""))
}

func TestTruncateSample(t *testing.T) {
	short := "короткий текст"
	assert.Equal(t, short, TruncateSample(short))

	long := strings.Repeat("ж", 500)
	sample := TruncateSample(long)
	assert.Equal(t, 200, CharCount(sample))
}
