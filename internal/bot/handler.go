package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"tts-relay/internal/accesscode"
	"tts-relay/internal/metrics"
	"tts-relay/internal/quota"
	"tts-relay/internal/store"
	"tts-relay/internal/tts"
	"tts-relay/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	// Лимиты безопасности
	MaxUsernameLength = 32 // Максимальная длина username
	MaxNameLength     = 64 // Максимальная длина имени

	// Rate limiting
	MaxRequestsPerMinute = 20 // Максимум запросов в минуту на пользователя
	RateLimitWindow      = time.Minute
)

// RateLimiter простой rate limiter для пользователей
type RateLimiter struct {
	requests map[int64][]time.Time
	mutex    sync.Mutex
}

// NewRateLimiter создает новый rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		requests: make(map[int64][]time.Time),
	}
}

// IsAllowed проверяет, разрешен ли запрос для пользователя
func (rl *RateLimiter) IsAllowed(userID int64) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	userRequests := rl.requests[userID]

	// Удаляем старые запросы
	var validRequests []time.Time
	for _, reqTime := range userRequests {
		if now.Sub(reqTime) < RateLimitWindow {
			validRequests = append(validRequests, reqTime)
		}
	}

	if len(validRequests) >= MaxRequestsPerMinute {
		rl.requests[userID] = validRequests
		return false
	}

	validRequests = append(validRequests, now)
	rl.requests[userID] = validRequests
	return true
}

// Handler представляет обработчик сообщений Telegram
type Handler struct {
	bot          *tgbotapi.BotAPI
	store        store.Store
	codeService  *accesscode.Service
	quotaService *quota.Service
	ttsService   *tts.Service
	messages     *Messages
	metrics      *metrics.Metrics
	rateLimiter  *RateLimiter
	logger       *zap.Logger
}

// NewHandler создает новый обработчик
func NewHandler(
	bot *tgbotapi.BotAPI,
	st store.Store,
	codeService *accesscode.Service,
	quotaService *quota.Service,
	ttsService *tts.Service,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		bot:          bot,
		store:        st,
		codeService:  codeService,
		quotaService: quotaService,
		ttsService:   ttsService,
		messages:     NewMessages(),
		metrics:      m,
		rateLimiter:  NewRateLimiter(),
		logger:       logger,
	}
}

// HandleUpdate обрабатывает входящее обновление
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	var userID int64
	if update.Message != nil {
		userID = update.Message.From.ID
	} else if update.CallbackQuery != nil {
		userID = update.CallbackQuery.From.ID
	}

	if userID != 0 && !h.rateLimiter.IsAllowed(userID) {
		h.logger.Warn("превышен rate limit", zap.Int64("user_id", userID))
		if update.Message != nil {
			return h.sendMessage(update.Message.Chat.ID, h.messages.RateLimited())
		}
		return nil
	}

	if update.CallbackQuery != nil {
		return h.handleCallbackQuery(ctx, update.CallbackQuery)
	}

	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	h.logger.Debug("получено сообщение",
		zap.Int64("chat_id", update.Message.Chat.ID),
		zap.String("username", update.Message.From.UserName))

	user, err := h.upsertUser(ctx, update.Message.From)
	if err != nil {
		h.logger.Error("ошибка получения пользователя", zap.Error(err))
		return h.sendMessage(update.Message.Chat.ID, h.messages.Error("Ошибка обработки запроса"))
	}

	if update.Message.IsCommand() {
		return h.handleCommand(ctx, update.Message, user)
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return h.sendMessage(update.Message.Chat.ID, h.messages.Help())
	}

	// Сообщение с токеном кода доступа активирует код, любой другой
	// текст уходит на озвучку
	if looksLikeAccessCode(text) {
		return h.handleRedeem(ctx, update.Message.Chat.ID, user, normalizeCode(text))
	}

	return h.handleSynthesis(ctx, update.Message.Chat.ID, user, text)
}

// handleCommand обрабатывает команды
func (h *Handler) handleCommand(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	switch message.Command() {
	case "start":
		return h.handleStartCommand(ctx, message, user)
	case "help":
		return h.sendMessage(message.Chat.ID, h.messages.Help())
	case "myquota":
		return h.handleMyQuotaCommand(ctx, message.Chat.ID, user)
	case "mycode":
		return h.handleMyCodeCommand(ctx, message.Chat.ID, user)
	case "voices":
		return h.handleVoicesCommand(ctx, message.Chat.ID, user)
	case "settings":
		return h.handleSettingsCommand(ctx, message.Chat.ID, user)
	case "setvoice":
		return h.handleSetVoiceCommand(ctx, message, user)
	case "setspeed":
		return h.handleSetSpeedCommand(ctx, message, user)
	case "setpitch":
		return h.handleSetPitchCommand(ctx, message, user)
	case "setvolume":
		return h.handleSetVolumeCommand(ctx, message, user)
	case "setemotion":
		return h.handleSetEmotionCommand(ctx, message, user)
	case "tts":
		text := strings.TrimSpace(message.CommandArguments())
		if text == "" {
			return h.sendMessage(message.Chat.ID, h.messages.Error("Добавь текст после команды: /tts привет"))
		}
		return h.handleSynthesis(ctx, message.Chat.ID, user, text)
	default:
		return h.sendMessage(message.Chat.ID, h.messages.UnknownCommand())
	}
}

// handleStartCommand обрабатывает /start, включая deep-link с кодом
func (h *Handler) handleStartCommand(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	// Код может прийти как payload: t.me/bot?start=TTS-XXXX
	payload := strings.TrimSpace(message.CommandArguments())
	if looksLikeAccessCode(payload) {
		return h.handleRedeem(ctx, message.Chat.ID, user, normalizeCode(payload))
	}

	return h.sendMessage(message.Chat.ID, h.messages.Welcome(user.FirstName))
}

// handleRedeem активирует код доступа для пользователя
func (h *Handler) handleRedeem(ctx context.Context, chatID int64, user *models.User, code string) error {
	result, err := h.codeService.Redeem(ctx, user.TelegramID, code)
	if err != nil {
		h.logger.Info("активация кода отклонена",
			zap.Int64("telegram_id", user.TelegramID),
			zap.Error(err))
		h.metrics.RecordRedemption("rejected")
		return h.sendMessage(chatID, h.messages.RedeemFailed(err))
	}

	h.logger.Info("код доступа активирован",
		zap.Int64("telegram_id", user.TelegramID),
		zap.Int("quota", result.Quota))
	h.metrics.RecordRedemption("success")

	return h.sendMessage(chatID, h.messages.RedeemSuccess(result))
}

// handleSynthesis выполняет полный путь озвучки текста
func (h *Handler) handleSynthesis(ctx context.Context, chatID int64, user *models.User, text string) error {
	charCount := quota.CharCount(text)

	// Предварительная проверка, чтобы не гонять провайдера впустую
	if _, err := h.quotaService.Authorize(ctx, user.TelegramID, charCount); err != nil {
		return h.handleQuotaError(chatID, err)
	}

	// Показываем "записывает голосовое..."
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatRecordVoice)
	if _, err := h.bot.Request(action); err != nil {
		h.logger.Debug("ошибка отправки chat action", zap.Error(err))
	}

	start := time.Now()
	result, err := h.ttsService.Synthesize(ctx, text, user.VoiceID, h.ttsService.DefaultParams(user))
	if err != nil {
		h.metrics.RecordSynthesis("error", charCount, time.Since(start).Seconds())
		return h.handleSynthesisError(chatID, err)
	}

	// Списание после синтеза: проигравший гонку запрос не получает аудио
	if _, err := h.quotaService.Commit(ctx, user.TelegramID, text, user.VoiceID); err != nil {
		h.metrics.RecordSynthesis("quota_denied", charCount, time.Since(start).Seconds())
		return h.handleQuotaError(chatID, err)
	}

	h.metrics.RecordSynthesis("success", charCount, time.Since(start).Seconds())

	remaining := 0
	if q, err := h.quotaService.Remaining(ctx, user.TelegramID); err == nil {
		remaining = q.Remaining
	}

	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{
		Name:  "voice.ogg",
		Bytes: result.AudioData,
	})
	voice.Caption = h.messages.VoiceCaption(charCount, remaining)

	if _, err := h.bot.Send(voice); err != nil {
		h.logger.Error("ошибка отправки голосового сообщения",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		return err
	}

	h.logger.Info("голосовое сообщение отправлено",
		zap.Int64("telegram_id", user.TelegramID),
		zap.Int("char_count", charCount),
		zap.Int("audio_size", len(result.AudioData)))

	return nil
}

// handleQuotaError переводит ошибки квоты в ответ пользователю
func (h *Handler) handleQuotaError(chatID int64, err error) error {
	if errors.Is(err, models.ErrNoAccessCode) || errors.Is(err, models.ErrUserNotFound) {
		return h.sendMessage(chatID, h.messages.NoAccessCode())
	}
	if qerr, ok := models.IsQuotaExceeded(err); ok {
		h.metrics.RecordQuotaDenial()
		return h.sendMessage(chatID, h.messages.QuotaExceeded(qerr.Required, qerr.Available))
	}
	h.logger.Error("ошибка проверки квоты", zap.Error(err))
	return h.sendMessage(chatID, h.messages.Error("Ошибка обработки запроса"))
}

// handleSynthesisError переводит ошибки пайплайна в ответ пользователю
func (h *Handler) handleSynthesisError(chatID int64, err error) error {
	var tooLong *tts.ErrTextTooLong
	if errors.As(err, &tooLong) {
		return h.sendMessage(chatID, h.messages.TextTooLong(tooLong.Length, tooLong.Limit))
	}
	if errors.Is(err, tts.ErrTimeout) {
		return h.sendMessage(chatID, h.messages.SynthesisTimeout())
	}
	h.logger.Error("ошибка синтеза речи", zap.Error(err))
	return h.sendMessage(chatID, h.messages.SynthesisFailed())
}

// handleMyQuotaCommand показывает остаток квоты
func (h *Handler) handleMyQuotaCommand(ctx context.Context, chatID int64, user *models.User) error {
	q, err := h.quotaService.Remaining(ctx, user.TelegramID)
	if err != nil {
		if errors.Is(err, models.ErrNoAccessCode) {
			return h.sendMessage(chatID, h.messages.NoAccessCode())
		}
		h.logger.Error("ошибка получения квоты", zap.Error(err))
		return h.sendMessage(chatID, h.messages.Error("Ошибка обработки запроса"))
	}

	text := h.messages.QuotaStatus(q)
	if q.Expiry != nil && time.Until(*q.Expiry) < 7*24*time.Hour {
		text += "\n" + h.messages.CodeExpiresSoon(*q.Expiry)
	}
	return h.sendMessage(chatID, text)
}

// handleMyCodeCommand показывает привязанный код доступа
func (h *Handler) handleMyCodeCommand(ctx context.Context, chatID int64, user *models.User) error {
	q, err := h.quotaService.Remaining(ctx, user.TelegramID)
	if err != nil {
		if errors.Is(err, models.ErrNoAccessCode) {
			return h.sendMessage(chatID, h.messages.NoAccessCode())
		}
		h.logger.Error("ошибка получения кода", zap.Error(err))
		return h.sendMessage(chatID, h.messages.Error("Ошибка обработки запроса"))
	}
	return h.sendMessage(chatID, h.messages.CodeInfo(q))
}

// handleVoicesCommand показывает список голосов
func (h *Handler) handleVoicesCommand(ctx context.Context, chatID int64, user *models.User) error {
	voices, err := h.store.Voice().ListActive(ctx)
	if err != nil {
		h.logger.Error("ошибка получения списка голосов", zap.Error(err))
		return h.sendMessage(chatID, h.messages.Error("Ошибка обработки запроса"))
	}
	return h.sendMessage(chatID, h.messages.VoiceList(voices, user.VoiceID))
}

// handleSettingsCommand показывает текущие настройки озвучки
func (h *Handler) handleSettingsCommand(ctx context.Context, chatID int64, user *models.User) error {
	voiceName := user.VoiceID
	if voice, err := h.store.Voice().GetByVoiceID(ctx, user.VoiceID); err == nil {
		voiceName = voice.Name
	}
	return h.sendMessage(chatID, h.messages.Settings(user, voiceName))
}

// handleSetVoiceCommand показывает inline клавиатуру с голосами
func (h *Handler) handleSetVoiceCommand(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	voices, err := h.store.Voice().ListActive(ctx)
	if err != nil {
		h.logger.Error("ошибка получения списка голосов", zap.Error(err))
		return h.sendMessage(message.Chat.ID, h.messages.Error("Ошибка обработки запроса"))
	}
	if len(voices) == 0 {
		return h.sendMessage(message.Chat.ID, h.messages.VoiceList(voices, user.VoiceID))
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, v := range voices {
		label := v.Name
		if v.VoiceID == user.VoiceID {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "voice_"+v.VoiceID),
		))
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, h.messages.ChooseVoice())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)

	_, err = h.bot.Send(msg)
	return err
}

// handleSetEmotionCommand показывает inline клавиатуру с эмоциями
func (h *Handler) handleSetEmotionCommand(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, emotion := range models.Emotions {
		label := emotion
		if emotion == user.Emotion {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "emotion_"+emotion))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, h.messages.ChooseEmotion())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)

	_, err := h.bot.Send(msg)
	return err
}

// handleSetSpeedCommand меняет скорость речи
func (h *Handler) handleSetSpeedCommand(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	arg := strings.TrimSpace(message.CommandArguments())
	speed, err := strconv.ParseFloat(arg, 64)
	if err != nil || !models.IsValidSpeed(speed) {
		return h.sendMessage(message.Chat.ID, h.messages.InvalidSpeed())
	}

	user.Speed = speed
	if err := h.updateSettings(ctx, user); err != nil {
		return h.sendMessage(message.Chat.ID, h.messages.Error("Не удалось сохранить настройку"))
	}
	return h.sendMessage(message.Chat.ID, h.messages.SettingUpdated("Скорость", arg))
}

// handleSetPitchCommand меняет высоту тона
func (h *Handler) handleSetPitchCommand(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	arg := strings.TrimSpace(message.CommandArguments())
	pitch, err := strconv.Atoi(arg)
	if err != nil || !models.IsValidPitch(pitch) {
		return h.sendMessage(message.Chat.ID, h.messages.InvalidPitch())
	}

	user.Pitch = pitch
	if err := h.updateSettings(ctx, user); err != nil {
		return h.sendMessage(message.Chat.ID, h.messages.Error("Не удалось сохранить настройку"))
	}
	return h.sendMessage(message.Chat.ID, h.messages.SettingUpdated("Высота тона", arg))
}

// handleSetVolumeCommand меняет громкость
func (h *Handler) handleSetVolumeCommand(ctx context.Context, message *tgbotapi.Message, user *models.User) error {
	arg := strings.TrimSpace(message.CommandArguments())
	volume, err := strconv.ParseFloat(arg, 64)
	if err != nil || !models.IsValidVolume(volume) {
		return h.sendMessage(message.Chat.ID, h.messages.InvalidVolume())
	}

	user.Volume = volume
	if err := h.updateSettings(ctx, user); err != nil {
		return h.sendMessage(message.Chat.ID, h.messages.Error("Не удалось сохранить настройку"))
	}
	return h.sendMessage(message.Chat.ID, h.messages.SettingUpdated("Громкость", arg))
}

// handleCallbackQuery обрабатывает inline кнопки
func (h *Handler) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	// Для устаревших и inline callback'ов Telegram не присылает исходное
	// сообщение: без chat_id отвечать некуда, обновление пропускается
	if callback.Message == nil {
		h.logger.Warn("callback без исходного сообщения",
			zap.Int64("user_id", callback.From.ID),
			zap.String("data", callback.Data))
		return nil
	}

	user, err := h.upsertUser(ctx, callback.From)
	if err != nil {
		h.logger.Error("ошибка получения пользователя для callback", zap.Error(err))
		return err
	}

	// Убираем "загрузку" кнопки
	callbackConfig := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.bot.Request(callbackConfig); err != nil {
		h.logger.Error("ошибка ответа на callback", zap.Error(err))
	}

	data := callback.Data
	chatID := callback.Message.Chat.ID

	switch {
	case strings.HasPrefix(data, "voice_"):
		voiceID := strings.TrimPrefix(data, "voice_")
		return h.applyVoiceSelection(ctx, chatID, user, voiceID)

	case strings.HasPrefix(data, "emotion_"):
		emotion := strings.TrimPrefix(data, "emotion_")
		if !models.IsValidEmotion(emotion) {
			return h.sendMessage(chatID, h.messages.Error("Неизвестная эмоция"))
		}
		user.Emotion = emotion
		if err := h.updateSettings(ctx, user); err != nil {
			return h.sendMessage(chatID, h.messages.Error("Не удалось сохранить настройку"))
		}
		return h.sendMessage(chatID, h.messages.SettingUpdated("Эмоция", emotion))

	default:
		h.logger.Warn("неизвестный callback", zap.String("data", data))
		return nil
	}
}

// applyVoiceSelection проверяет и сохраняет выбранный голос
func (h *Handler) applyVoiceSelection(ctx context.Context, chatID int64, user *models.User, voiceID string) error {
	voice, err := h.store.Voice().GetByVoiceID(ctx, voiceID)
	if err != nil || !voice.IsActive {
		return h.sendMessage(chatID, h.messages.VoiceNotFound())
	}

	user.VoiceID = voice.VoiceID
	if err := h.updateSettings(ctx, user); err != nil {
		return h.sendMessage(chatID, h.messages.Error("Не удалось сохранить настройку"))
	}

	h.logger.Info("голос изменен",
		zap.Int64("telegram_id", user.TelegramID),
		zap.String("voice_id", voice.VoiceID))

	return h.sendMessage(chatID, h.messages.SettingUpdated("Голос", voice.Name))
}

// upsertUser создает или обновляет профиль пользователя из данных Telegram
func (h *Handler) upsertUser(ctx context.Context, from *tgbotapi.User) (*models.User, error) {
	user := &models.User{
		TelegramID: from.ID,
		Username:   sanitizeUsername(from.UserName),
		FirstName:  sanitizeName(from.FirstName),
		LastName:   sanitizeName(from.LastName),
	}

	if err := h.store.User().Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("ошибка сохранения пользователя: %w", err)
	}

	return h.store.User().GetByTelegramID(ctx, from.ID)
}

// updateSettings сохраняет настройки озвучки пользователя
func (h *Handler) updateSettings(ctx context.Context, user *models.User) error {
	err := h.store.User().UpdateSettings(ctx, user.TelegramID, user.VoiceID, user.Speed, user.Pitch, user.Volume, user.Emotion)
	if err != nil {
		h.logger.Error("ошибка сохранения настроек",
			zap.Int64("telegram_id", user.TelegramID),
			zap.Error(err))
	}
	return err
}

// sendMessage отправляет HTML сообщение с fallback на обычный текст
func (h *Handler) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if strings.Contains(text, "<") && strings.Contains(text, ">") {
		msg.ParseMode = tgbotapi.ModeHTML
	}

	_, err := h.bot.Send(msg)
	if err != nil {
		h.logger.Error("ошибка отправки сообщения",
			zap.Int64("chat_id", chatID),
			zap.Error(err))

		// Если HTML парсинг не удался, пробуем отправить как обычный текст
		if msg.ParseMode == tgbotapi.ModeHTML {
			fallback := tgbotapi.NewMessage(chatID, stripHTMLTags(text))
			_, fallbackErr := h.bot.Send(fallback)
			return fallbackErr
		}
		return err
	}

	return nil
}

// looksLikeAccessCode определяет, похоже ли сообщение на токен кода доступа
func looksLikeAccessCode(text string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(text)), accesscode.CodePrefix)
}

// normalizeCode приводит токен к каноническому виду
func normalizeCode(text string) string {
	return strings.ToUpper(strings.TrimSpace(text))
}

// sanitizeName очищает имя от управляющих символов
func sanitizeName(name string) string {
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.ReplaceAll(name, "\r", "")
	return strings.TrimSpace(name)
}

// sanitizeUsername очищает username от опасных символов
func sanitizeUsername(username string) string {
	if len(username) > MaxUsernameLength {
		username = username[:MaxUsernameLength]
	}
	reg := regexp.MustCompile(`[^a-zA-Z0-9_]`)
	return reg.ReplaceAllString(username, "")
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// stripHTMLTags удаляет HTML теги для fallback отправки
func stripHTMLTags(text string) string {
	return html.UnescapeString(htmlTagRe.ReplaceAllString(text, ""))
}
