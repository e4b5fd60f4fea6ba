package minimax

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client представляет клиент Minimax Text-to-Speech API
type Client struct {
	groupID    string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient создает новый клиент Minimax API
func NewClient(groupID, apiKey, baseURL string, logger *zap.Logger) *Client {
	return &Client{
		groupID: groupID,
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

// SynthesisParams содержит параметры синтеза речи
type SynthesisParams struct {
	Model   string  `json:"model"`
	Speed   float64 `json:"speed"`
	Pitch   int     `json:"pitch"`
	Volume  float64 `json:"volume"`
	Emotion string  `json:"emotion"`
}

// voiceSetting — настройки голоса в формате провайдера
type voiceSetting struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Vol     float64 `json:"vol"`
	Pitch   int     `json:"pitch"`
	Emotion string  `json:"emotion,omitempty"`
}

// synthesisRequest — тело запроса t2a_v2
type synthesisRequest struct {
	Model        string       `json:"model"`
	Text         string       `json:"text"`
	OutputFormat string       `json:"output_format"`
	VoiceSetting voiceSetting `json:"voice_setting"`
}

// synthesisResponse — конверт ответа провайдера
type synthesisResponse struct {
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
	Data struct {
		Audio string `json:"audio"`
	} `json:"data"`
}

// ProviderError представляет ошибку, возвращенную провайдером синтеза
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ошибка провайдера синтеза (код %d): %s", e.StatusCode, e.Message)
}

// DownloadError представляет ошибку скачивания аудио
type DownloadError struct {
	Status int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("ошибка скачивания аудио: статус %d", e.Status)
}

// Synthesize запрашивает синтез речи и возвращает URL исходного аудио.
// Эмоция "auto" не передается: провайдер применяет значение по умолчанию.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string, params SynthesisParams) (string, error) {
	payload := synthesisRequest{
		Model:        params.Model,
		Text:         text,
		OutputFormat: "url",
		VoiceSetting: voiceSetting{
			VoiceID: voiceID,
			Speed:   params.Speed,
			Vol:     params.Volume,
			Pitch:   params.Pitch,
		},
	}
	if params.Emotion != "" && params.Emotion != "auto" {
		payload.VoiceSetting.Emotion = params.Emotion
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	url := fmt.Sprintf("%s/v1/t2a_v2?GroupId=%s", c.baseURL, c.groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("отправляем запрос синтеза к Minimax",
		zap.String("voice_id", voiceID),
		zap.String("model", params.Model),
		zap.Int("text_length", len(text)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ошибка выполнения запроса синтеза: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	var response synthesisResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("ошибка парсинга ответа провайдера: %w", err)
	}

	if response.BaseResp.StatusCode != 0 {
		return "", &ProviderError{
			StatusCode: response.BaseResp.StatusCode,
			Message:    response.BaseResp.StatusMsg,
		}
	}

	if response.Data.Audio == "" {
		return "", &ProviderError{
			StatusCode: 0,
			Message:    "в ответе отсутствует URL аудио",
		}
	}

	return response.Data.Audio, nil
}

// Download скачивает аудио по URL, выданному провайдером
func (c *Client) Download(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса скачивания: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка скачивания аудио: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DownloadError{Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения аудио данных: %w", err)
	}

	c.logger.Info("аудио скачано", zap.Int("size", len(data)))
	return data, nil
}
