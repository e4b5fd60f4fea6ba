package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Целевой профиль голосового сообщения: OGG/Opus, моно, 48 кГц,
// 64 кбит/с VBR, кадр 20 мс, профиль voip. Параметры — внешний
// контракт формата, проигрыватели голосовых сообщений рассчитывают
// именно на него.
const (
	TargetSampleRate = 48000
	TargetChannels   = 1
	TargetBitrate    = "64k"
	TargetFormat     = "ogg"
	TargetCodec      = "libopus"
)

// TranscodeError представляет ошибку перекодирования
type TranscodeError struct {
	Output string
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("ошибка перекодирования ffmpeg: %s", e.Output)
}

// Converter перекодирует аудио провайдера в целевой профиль через ffmpeg
type Converter struct {
	logger     *zap.Logger
	ffmpegPath string
	tempDir    string // "" = системная временная директория
}

// NewConverter создает новый конвертер аудио
func NewConverter(ffmpegPath string, logger *zap.Logger) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Converter{
		logger:     logger,
		ffmpegPath: ffmpegPath,
	}
}

// NewConverterWithTempDir создает конвертер с отдельной временной директорией
func NewConverterWithTempDir(ffmpegPath, tempDir string, logger *zap.Logger) *Converter {
	c := NewConverter(ffmpegPath, logger)
	c.tempDir = tempDir
	return c
}

// ToVoiceOpus перекодирует MP3 в OGG/Opus голосового профиля.
// Промежуточные файлы удаляются на любом пути выхода, включая
// отмену контекста: очистка выполняется в defer, не по условию.
func (c *Converter) ToVoiceOpus(ctx context.Context, mp3Data []byte) ([]byte, error) {
	mp3File, err := os.CreateTemp(c.tempDir, "tts_*.mp3")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	mp3Path := mp3File.Name()
	oggPath := strings.TrimSuffix(mp3Path, ".mp3") + ".ogg"

	defer func() {
		os.Remove(mp3Path)
		os.Remove(oggPath)
	}()

	if _, err := mp3File.Write(mp3Data); err != nil {
		mp3File.Close()
		return nil, fmt.Errorf("ошибка записи временного файла: %w", err)
	}
	if err := mp3File.Close(); err != nil {
		return nil, fmt.Errorf("ошибка закрытия временного файла: %w", err)
	}

	args := []string{
		"-i", mp3Path,
		"-c:a", TargetCodec,
		"-ar", fmt.Sprintf("%d", TargetSampleRate),
		"-ac", fmt.Sprintf("%d", TargetChannels),
		"-b:a", TargetBitrate,
		"-vbr", "on",
		"-compression_level", "10",
		"-application", "voip",
		"-frame_duration", "20",
		"-f", TargetFormat,
		"-y",
		oggPath,
	}

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.logger.Debug("запуск ffmpeg",
		zap.String("input", mp3Path),
		zap.String("output", oggPath))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TranscodeError{Output: tail(stderr.String(), 500)}
	}

	oggData, err := os.ReadFile(oggPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения перекодированного файла: %w", err)
	}

	c.logger.Info("аудио перекодировано",
		zap.Int("input_size", len(mp3Data)),
		zap.Int("output_size", len(oggData)))

	return oggData, nil
}

// tail возвращает последние n символов строки
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
