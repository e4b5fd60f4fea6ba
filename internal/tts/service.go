package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tts-relay/internal/audio"
	"tts-relay/internal/minimax"
	"tts-relay/pkg/models"

	"go.uber.org/zap"
)

// ErrTimeout возвращается при истечении общего таймаута пайплайна
var ErrTimeout = errors.New("истек таймаут синтеза речи")

// ErrTextTooLong возвращается, когда текст превышает жесткий потолок
type ErrTextTooLong struct {
	Length int
	Limit  int
}

func (e *ErrTextTooLong) Error() string {
	return fmt.Sprintf("текст слишком длинный: %d символов при лимите %d", e.Length, e.Limit)
}

// Result представляет результат успешного синтеза
type Result struct {
	AudioData  []byte
	Format     string
	Codec      string
	SampleRate int
	Channels   int
}

// Service представляет пайплайн синтеза: запрос к провайдеру,
// скачивание и перекодирование в целевой профиль
type Service struct {
	provider      Provider
	transcoder    Transcoder
	model         string
	maxTextLength int
	timeout       time.Duration
	logger        *zap.Logger
}

// NewService создает новый пайплайн синтеза речи
func NewService(provider Provider, transcoder Transcoder, model string, maxTextLength int, timeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		provider:      provider,
		transcoder:    transcoder,
		model:         model,
		maxTextLength: maxTextLength,
		timeout:       timeout,
		logger:        logger,
	}
}

// Synthesize выполняет полный пайплайн для текста. Длина текста
// перепроверяется, даже если вызывающая сторона уже проверила ее.
// Весь вызов ограничен общим таймаутом; очистка промежуточных
// файлов в перекодировщике безусловна.
func (s *Service) Synthesize(ctx context.Context, text, voiceID string, params minimax.SynthesisParams) (*Result, error) {
	length := len([]rune(text))
	if length == 0 {
		return nil, fmt.Errorf("пустой текст для синтеза")
	}
	if length > s.maxTextLength {
		return nil, &ErrTextTooLong{Length: length, Limit: s.maxTextLength}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if params.Model == "" {
		params.Model = s.model
	}

	start := time.Now()

	audioURL, err := s.provider.Synthesize(ctx, text, voiceID, params)
	if err != nil {
		return nil, s.mapTimeout(ctx, err)
	}

	mp3Data, err := s.provider.Download(ctx, audioURL)
	if err != nil {
		return nil, s.mapTimeout(ctx, err)
	}

	oggData, err := s.transcoder.ToVoiceOpus(ctx, mp3Data)
	if err != nil {
		return nil, s.mapTimeout(ctx, err)
	}

	s.logger.Info("синтез завершен",
		zap.String("voice_id", voiceID),
		zap.Int("text_length", length),
		zap.Int("audio_size", len(oggData)),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		AudioData:  oggData,
		Format:     audio.TargetFormat,
		Codec:      audio.TargetCodec,
		SampleRate: audio.TargetSampleRate,
		Channels:   audio.TargetChannels,
	}, nil
}

// DefaultParams возвращает параметры синтеза из настроек пользователя
func (s *Service) DefaultParams(user *models.User) minimax.SynthesisParams {
	return minimax.SynthesisParams{
		Model:   s.model,
		Speed:   user.Speed,
		Pitch:   user.Pitch,
		Volume:  user.Volume,
		Emotion: user.Emotion,
	}
}

// mapTimeout переводит истечение контекста пайплайна в ErrTimeout
func (s *Service) mapTimeout(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
