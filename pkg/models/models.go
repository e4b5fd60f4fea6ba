package models

import (
	"time"
)

// User представляет пользователя бота
type User struct {
	ID         int64     `json:"id" db:"id"`
	TelegramID int64     `json:"telegram_id" db:"telegram_id"`
	Username   string    `json:"username" db:"username"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	AccessCode *string   `json:"access_code" db:"access_code"` // Код доступа, nil если не активирован
	QuotaTotal int       `json:"quota_total" db:"quota_total"` // Выданная квота в символах
	QuotaUsed  int       `json:"quota_used" db:"quota_used"`   // Израсходованная квота в символах
	VoiceID    string    `json:"voice_id" db:"voice_id"`
	Speed      float64   `json:"speed" db:"speed"`
	Pitch      int       `json:"pitch" db:"pitch"`
	Volume     float64   `json:"volume" db:"volume"`
	Emotion    string    `json:"emotion" db:"emotion"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	LastActive time.Time `json:"last_active" db:"last_active"`
}

// QuotaRemaining возвращает остаток квоты пользователя.
// Остаток всегда вычисляется, отдельно он нигде не хранится.
func (u *User) QuotaRemaining() int {
	return u.QuotaTotal - u.QuotaUsed
}

// UserQuota представляет состояние квоты пользователя вместе с данными его кода
type UserQuota struct {
	Code      string     `json:"code"`
	Total     int        `json:"total"`
	Used      int        `json:"used"`
	Remaining int        `json:"remaining"`
	Expiry    *time.Time `json:"expiry"`
	IsActive  bool       `json:"is_active"`
}

// AccessCode представляет код доступа с квотой символов
type AccessCode struct {
	ID           int64      `json:"id" db:"id"`
	Code         string     `json:"code" db:"code"`
	QuotaTotal   int        `json:"quota_total" db:"quota_total"` // Квота, выдаваемая каждому активировавшему
	QuotaUsed    int        `json:"quota_used" db:"quota_used"`   // Суммарно выданная квота по всем активациям
	MaxUsers     int        `json:"max_users" db:"max_users"`     // 0 = без ограничения
	CurrentUsers int        `json:"current_users" db:"current_users"`
	ExpiryDate   *time.Time `json:"expiry_date" db:"expiry_date"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	CreatedBy    string     `json:"created_by" db:"created_by"`
	Notes        string     `json:"notes" db:"notes"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Voice представляет голосовую модель провайдера
type Voice struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	VoiceID    string    `json:"voice_id" db:"voice_id"`
	Model      string    `json:"model" db:"model"`
	Language   string    `json:"language" db:"language"`
	Gender     string    `json:"gender" db:"gender"`
	PreviewURL string    `json:"preview_url" db:"preview_url"`
	ImageURL   string    `json:"image_url" db:"image_url"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// UsageRecord представляет запись истории использования
type UsageRecord struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Text      string    `json:"text" db:"text"` // Усеченный образец текста, не полный текст
	CharCount int       `json:"char_count" db:"char_count"`
	VoiceID   string    `json:"voice_id" db:"voice_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RedeemResult представляет результат успешной активации кода
type RedeemResult struct {
	Quota  int        `json:"quota"`
	Expiry *time.Time `json:"expiry"`
}

// CreateCodeRequest представляет запрос на создание кода доступа
type CreateCodeRequest struct {
	Quota    int    `json:"quota" validate:"required,gt=0"`
	Days     int    `json:"days"`
	MaxUsers int    `json:"max_users"`
	Notes    string `json:"notes"`
}

// AddVoiceRequest представляет запрос на регистрацию голоса
type AddVoiceRequest struct {
	Name       string `json:"name" validate:"required"`
	VoiceID    string `json:"voice_id" validate:"required"`
	Model      string `json:"model"`
	Language   string `json:"language"`
	Gender     string `json:"gender"`
	PreviewURL string `json:"preview_url"`
	ImageURL   string `json:"image_url"`
}

// DailyUsage представляет суточную сводку использования
type DailyUsage struct {
	Date     time.Time `json:"date" db:"date"`
	Chars    int64     `json:"chars" db:"chars"`
	Requests int64     `json:"requests" db:"requests"`
}

// VoiceUsage представляет сводку использования по голосу
type VoiceUsage struct {
	VoiceID  string `json:"voice_id" db:"voice_id"`
	Chars    int64  `json:"chars" db:"chars"`
	Requests int64  `json:"requests" db:"requests"`
}

// Statistics представляет агрегированную статистику системы
type Statistics struct {
	TotalUsers      int64        `json:"total_users"`
	ActiveUsers     int64        `json:"active_users"`
	ActiveCodes     int64        `json:"active_codes"`
	TotalCharacters int64        `json:"total_characters"`
	DailyUsage      []DailyUsage `json:"daily_usage"`
	VoiceUsage      []VoiceUsage `json:"voice_usage"`
	Timestamp       time.Time    `json:"timestamp"`
}

// Constants для параметров голоса по умолчанию
const (
	DefaultVoiceID = "moss_audio_4d4208c8-b67d-11f0-afaf-868268514f62"
	DefaultModel   = "speech-2.6-turbo"
	DefaultSpeed   = 0.9
	DefaultPitch   = 0
	DefaultVolume  = 1.6
	DefaultEmotion = "auto"
)

// Constants для границ пользовательских настроек
const (
	MinSpeed  = 0.5
	MaxSpeed  = 2.0
	MinPitch  = -12
	MaxPitch  = 12
	MinVolume = 0.1
	MaxVolume = 10.0
)

// Emotions перечисляет допустимые эмоции синтеза
var Emotions = []string{"auto", "happy", "sad", "angry", "fearful", "disgusted", "surprised", "calm", "neutral"}

// IsValidEmotion проверяет корректность эмоции
func IsValidEmotion(emotion string) bool {
	for _, e := range Emotions {
		if e == emotion {
			return true
		}
	}
	return false
}

// IsValidSpeed проверяет корректность скорости речи
func IsValidSpeed(speed float64) bool {
	return speed >= MinSpeed && speed <= MaxSpeed
}

// IsValidPitch проверяет корректность сдвига тона
func IsValidPitch(pitch int) bool {
	return pitch >= MinPitch && pitch <= MaxPitch
}

// IsValidVolume проверяет корректность громкости
func IsValidVolume(volume float64) bool {
	return volume >= MinVolume && volume <= MaxVolume
}
