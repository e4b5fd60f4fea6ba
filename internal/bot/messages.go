package bot

import (
	"fmt"
	"strings"
	"time"

	"tts-relay/pkg/models"
)

// Messages содержит все пользовательские тексты бота
type Messages struct{}

// NewMessages создает новый набор сообщений
func NewMessages() *Messages {
	return &Messages{}
}

// Welcome приветствие при первом запуске
func (m *Messages) Welcome(firstName string) string {
	name := firstName
	if name == "" {
		name = "друг"
	}
	return fmt.Sprintf(`👋 Привет, %s!

Я озвучиваю текст голосом. Пришли мне любой текст — верну голосовое сообщение.

Для работы нужен код доступа. Он выглядит так: <code>TTS-XXXXXXXXXXXXXXX</code>. Просто отправь его мне сообщением.

/help — список команд`, name)
}

// Help список команд
func (m *Messages) Help() string {
	return `📖 <b>Команды</b>

Просто отправь текст — я озвучу его и пришлю голосовое сообщение.

/myquota — остаток квоты
/mycode — информация о коде доступа
/voices — доступные голоса
/settings — текущие настройки озвучки
/setvoice — выбрать голос
/setspeed 0.5–2.0 — скорость речи
/setpitch -12…12 — высота тона
/setvolume 0.1–10 — громкость
/setemotion — эмоция голоса

Чтобы активировать код доступа, отправь его сообщением.`
}

// UnknownCommand ответ на неизвестную команду
func (m *Messages) UnknownCommand() string {
	return "🤔 Не знаю такую команду. /help — список команд."
}

// Error форматирует сообщение об ошибке
func (m *Messages) Error(text string) string {
	return "❌ " + text
}

// RedeemSuccess ответ на успешную активацию кода
func (m *Messages) RedeemSuccess(result *models.RedeemResult) string {
	var b strings.Builder
	b.WriteString("✅ <b>Код активирован!</b>\n\n")
	fmt.Fprintf(&b, "Квота: <b>%d</b> символов\n", result.Quota)
	if result.Expiry != nil {
		fmt.Fprintf(&b, "Действует до: %s\n", result.Expiry.Format("02.01.2006"))
	} else {
		b.WriteString("Срок действия: без ограничений\n")
	}
	b.WriteString("\nТеперь просто отправь текст — я его озвучу.")
	return b.String()
}

// RedeemFailed ответ на неудачную активацию кода
func (m *Messages) RedeemFailed(err error) string {
	switch err {
	case models.ErrCodeNotFound:
		return "❌ Такой код не найден. Проверь, что код скопирован целиком."
	case models.ErrCodeDisabled:
		return "❌ Этот код отключен."
	case models.ErrCodeExpired:
		return "❌ Срок действия этого кода истек."
	case models.ErrCodeCapacityReached:
		return "❌ Этот код уже активирован максимальным числом пользователей."
	default:
		return "❌ Не удалось активировать код. Попробуй позже."
	}
}

// NoAccessCode подсказка пользователю без кода
func (m *Messages) NoAccessCode() string {
	return `🔑 У тебя пока нет кода доступа.

Отправь мне код вида <code>TTS-XXXXXXXXXXXXXXX</code>, чтобы начать озвучивать текст.`
}

// QuotaStatus состояние квоты
func (m *Messages) QuotaStatus(q *models.UserQuota) string {
	var b strings.Builder
	b.WriteString("📊 <b>Твоя квота</b>\n\n")
	fmt.Fprintf(&b, "Остаток: <b>%d</b> из %d символов\n", q.Remaining, q.Total)
	fmt.Fprintf(&b, "Использовано: %d\n", q.Used)
	if q.Expiry != nil {
		fmt.Fprintf(&b, "Код действует до: %s\n", q.Expiry.Format("02.01.2006"))
	}
	return b.String()
}

// CodeInfo информация о привязанном коде
func (m *Messages) CodeInfo(q *models.UserQuota) string {
	var b strings.Builder
	b.WriteString("🔑 <b>Твой код доступа</b>\n\n")
	fmt.Fprintf(&b, "Код: <code>%s</code>\n", q.Code)
	fmt.Fprintf(&b, "Квота: %d символов, остаток %d\n", q.Total, q.Remaining)
	if q.Expiry != nil {
		fmt.Fprintf(&b, "Действует до: %s\n", q.Expiry.Format("02.01.2006"))
	} else {
		b.WriteString("Срок действия: без ограничений\n")
	}
	if !q.IsActive {
		b.WriteString("\n⚠️ Код отключен администратором.")
	}
	return b.String()
}

// QuotaExceeded отказ из-за нехватки квоты
func (m *Messages) QuotaExceeded(required, available int) string {
	return fmt.Sprintf(`❌ Не хватает квоты: нужно %d символов, осталось %d.

Сократи текст или активируй новый код доступа.`, required, available)
}

// TextTooLong отказ из-за слишком длинного текста
func (m *Messages) TextTooLong(length, limit int) string {
	return fmt.Sprintf("❌ Текст слишком длинный: %d символов при лимите %d. Разбей его на части.", length, limit)
}

// SynthesisStarted уведомление о начале генерации
func (m *Messages) SynthesisStarted() string {
	return "🎵 Озвучиваю..."
}

// SynthesisFailed ошибка генерации
func (m *Messages) SynthesisFailed() string {
	return "❌ Не удалось озвучить текст. Попробуй еще раз через минуту."
}

// SynthesisTimeout таймаут генерации
func (m *Messages) SynthesisTimeout() string {
	return "⏳ Озвучка заняла слишком много времени и была прервана. Попробуй текст покороче."
}

// VoiceCaption подпись к голосовому сообщению
func (m *Messages) VoiceCaption(charCount int, remaining int) string {
	return fmt.Sprintf("🔊 %d символов · остаток %d", charCount, remaining)
}

// VoiceList список доступных голосов
func (m *Messages) VoiceList(voices []*models.Voice, currentVoiceID string) string {
	if len(voices) == 0 {
		return "🎤 Пока нет доступных голосов."
	}

	var b strings.Builder
	b.WriteString("🎤 <b>Доступные голоса</b>\n\n")
	for _, v := range voices {
		marker := "▫️"
		if v.VoiceID == currentVoiceID {
			marker = "✅"
		}
		fmt.Fprintf(&b, "%s <b>%s</b>", marker, v.Name)
		if v.Language != "" {
			fmt.Fprintf(&b, " (%s)", v.Language)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n/setvoice — выбрать голос")
	return b.String()
}

// Settings текущие настройки озвучки
func (m *Messages) Settings(user *models.User, voiceName string) string {
	var b strings.Builder
	b.WriteString("⚙️ <b>Настройки озвучки</b>\n\n")
	fmt.Fprintf(&b, "Голос: <b>%s</b>\n", voiceName)
	fmt.Fprintf(&b, "Скорость: %.2g\n", user.Speed)
	fmt.Fprintf(&b, "Высота тона: %d\n", user.Pitch)
	fmt.Fprintf(&b, "Громкость: %.2g\n", user.Volume)
	fmt.Fprintf(&b, "Эмоция: %s\n", user.Emotion)
	return b.String()
}

// SettingUpdated подтверждение смены настройки
func (m *Messages) SettingUpdated(name, value string) string {
	return fmt.Sprintf("✅ %s: <b>%s</b>", name, value)
}

// InvalidSpeed подсказка по диапазону скорости
func (m *Messages) InvalidSpeed() string {
	return fmt.Sprintf("❌ Скорость должна быть числом от %.1f до %.1f, например: /setspeed 1.2", models.MinSpeed, models.MaxSpeed)
}

// InvalidPitch подсказка по диапазону высоты тона
func (m *Messages) InvalidPitch() string {
	return fmt.Sprintf("❌ Высота тона должна быть целым числом от %d до %d, например: /setpitch -2", models.MinPitch, models.MaxPitch)
}

// InvalidVolume подсказка по диапазону громкости
func (m *Messages) InvalidVolume() string {
	return fmt.Sprintf("❌ Громкость должна быть числом от %.1f до %.1f, например: /setvolume 1.5", models.MinVolume, models.MaxVolume)
}

// ChooseVoice приглашение выбрать голос
func (m *Messages) ChooseVoice() string {
	return "🎤 Выбери голос:"
}

// ChooseEmotion приглашение выбрать эмоцию
func (m *Messages) ChooseEmotion() string {
	return "🎭 Выбери эмоцию:"
}

// VoiceNotFound голос не найден
func (m *Messages) VoiceNotFound() string {
	return "❌ Такой голос не найден. /voices — список доступных."
}

// RateLimited предупреждение о частых запросах
func (m *Messages) RateLimited() string {
	return "⚠️ Слишком много запросов. Подожди минуту."
}

// CodeExpiresSoon предупреждение о скором истечении кода
func (m *Messages) CodeExpiresSoon(expiry time.Time) string {
	return fmt.Sprintf("⏳ Твой код доступа истекает %s.", expiry.Format("02.01.2006"))
}
