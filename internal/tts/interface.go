package tts

import (
	"context"

	"tts-relay/internal/minimax"
)

// Provider представляет внешний провайдер синтеза речи
type Provider interface {
	// Synthesize запрашивает синтез и возвращает URL исходного аудио
	Synthesize(ctx context.Context, text, voiceID string, params minimax.SynthesisParams) (string, error)
	// Download скачивает аудио по выданному URL
	Download(ctx context.Context, audioURL string) ([]byte, error)
}

// Transcoder перекодирует исходное аудио провайдера в целевой профиль
type Transcoder interface {
	ToVoiceOpus(ctx context.Context, mp3Data []byte) ([]byte, error)
}
