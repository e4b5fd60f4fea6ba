package admin

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"tts-relay/internal/accesscode"
	"tts-relay/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCodeRepository — репозиторий кодов в памяти для тестов
type fakeCodeRepository struct {
	codes []*models.AccessCode
}

func (f *fakeCodeRepository) Create(ctx context.Context, code *models.AccessCode) error {
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeCodeRepository) GetByCode(ctx context.Context, token string) (*models.AccessCode, error) {
	for _, c := range f.codes {
		if c.Code == token {
			return c, nil
		}
	}
	return nil, models.ErrCodeNotFound
}

func (f *fakeCodeRepository) Redeem(ctx context.Context, telegramID int64, token string, now time.Time) (*models.RedeemResult, error) {
	return nil, models.ErrCodeNotFound
}

func (f *fakeCodeRepository) List(ctx context.Context) ([]*models.AccessCode, error) {
	return f.codes, nil
}

func newTestMux(repo *fakeCodeRepository, token string) *http.ServeMux {
	codes := accesscode.NewService(repo, zap.NewNop())
	h := NewHandler(codes, nil, nil, token, zap.NewNop())

	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func TestCreateCodeJSONWithCharset(t *testing.T) {
	repo := &fakeCodeRepository{}
	mux := newTestMux(repo, "secret")

	// Клиенты часто присылают заголовок с параметром charset,
	// тело при этом все равно должно разбираться как JSON
	body := []byte(`{"quota": 1234, "days": 10, "max_users": 2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/codes/create", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("X-Admin-Token", "secret")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.codes, 1)
	assert.Equal(t, 1234, repo.codes[0].QuotaTotal)
	assert.Equal(t, 2, repo.codes[0].MaxUsers)
}

func TestCreateCodeForm(t *testing.T) {
	repo := &fakeCodeRepository{}
	mux := newTestMux(repo, "secret")

	form := url.Values{"quota": {"500"}, "days": {"0"}, "notes": {"тест"}}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/codes/create", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Admin-Token", "secret")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.codes, 1)
	assert.Equal(t, 500, repo.codes[0].QuotaTotal)
	assert.Nil(t, repo.codes[0].ExpiryDate)
	assert.Equal(t, "тест", repo.codes[0].Notes)
}

func TestAdminRejectsWrongToken(t *testing.T) {
	repo := &fakeCodeRepository{}
	mux := newTestMux(repo, "secret")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/codes", nil)
	req.Header.Set("X-Admin-Token", "wrong")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, repo.codes)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	repo := &fakeCodeRepository{}
	// Пустой токен в конфигурации полностью закрывает API
	mux := newTestMux(repo, "")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/codes", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
