package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tts-relay/internal/accesscode"
	"tts-relay/internal/store"
	"tts-relay/pkg/models"

	"go.uber.org/zap"
)

// statisticsWindow — окно активности для отчета статистики
const statisticsWindow = 30 * 24 * time.Hour

// Handler обрабатывает административные HTTP запросы
type Handler struct {
	codes  *accesscode.Service
	voices store.VoiceRepository
	usage  store.UsageRepository
	token  string
	logger *zap.Logger
}

// NewHandler создает новый административный обработчик
func NewHandler(codes *accesscode.Service, voices store.VoiceRepository, usage store.UsageRepository, token string, logger *zap.Logger) *Handler {
	return &Handler{
		codes:  codes,
		voices: voices,
		usage:  usage,
		token:  token,
		logger: logger,
	}
}

// Register регистрирует маршруты административного API
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/admin/codes", h.auth(h.handleCodes))
	mux.HandleFunc("/api/admin/codes/create", h.auth(h.handleCreateCode))
	mux.HandleFunc("/api/admin/voices", h.auth(h.handleVoices))
	mux.HandleFunc("/api/admin/voices/add", h.auth(h.handleAddVoice))
	mux.HandleFunc("/api/admin/stats", h.auth(h.handleStats))
}

// auth проверяет административный токен в заголовке
func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" || r.Header.Get("X-Admin-Token") != h.token {
			h.logger.Warn("отклонен административный запрос",
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// handleCodes возвращает все коды доступа
func (h *Handler) handleCodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	codes, err := h.codes.ListCodes(r.Context())
	if err != nil {
		h.logger.Error("ошибка получения списка кодов", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, codes)
}

// handleCreateCode создает новый код доступа
func (h *Handler) handleCreateCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := parseCreateCodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	code, err := h.codes.CreateCode(r.Context(), req)
	if err != nil {
		h.logger.Error("ошибка создания кода доступа", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"code":    code.Code,
		"quota":   code.QuotaTotal,
		"expiry":  code.ExpiryDate,
	})
}

// handleVoices возвращает все голосовые модели
func (h *Handler) handleVoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	voices, err := h.voices.List(r.Context())
	if err != nil {
		h.logger.Error("ошибка получения списка голосов", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, voices)
}

// handleAddVoice регистрирует новую голосовую модель
func (h *Handler) handleAddVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.AddVoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.VoiceID == "" {
		writeError(w, http.StatusBadRequest, "name and voice_id are required")
		return
	}

	voice := &models.Voice{
		Name:       req.Name,
		VoiceID:    req.VoiceID,
		Model:      req.Model,
		Language:   req.Language,
		Gender:     req.Gender,
		PreviewURL: req.PreviewURL,
		ImageURL:   req.ImageURL,
	}

	if err := h.voices.Add(r.Context(), voice); err != nil {
		h.logger.Error("ошибка регистрации голоса", zap.Error(err))
		writeError(w, http.StatusBadRequest, "failed to add voice")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "voice_id": voice.VoiceID})
}

// handleStats возвращает агрегированную статистику
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := h.usage.Statistics(r.Context(), statisticsWindow)
	if err != nil {
		h.logger.Error("ошибка сбора статистики", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// parseCreateCodeRequest разбирает JSON или form-запрос на создание кода
func parseCreateCodeRequest(r *http.Request) (*models.CreateCodeRequest, error) {
	req := &models.CreateCodeRequest{Quota: 50000, Days: 30, MaxUsers: 1}

	// Заголовок может нести параметры вроде charset, сверяемся по префиксу
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			return nil, errors.New("invalid request body")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, errors.New("invalid form data")
		}
		if v := r.FormValue("quota"); v != "" {
			q, err := strconv.Atoi(v)
			if err != nil {
				return nil, errors.New("invalid quota")
			}
			req.Quota = q
		}
		if v := r.FormValue("days"); v != "" {
			d, err := strconv.Atoi(v)
			if err != nil {
				return nil, errors.New("invalid days")
			}
			req.Days = d
		}
		if v := r.FormValue("max_users"); v != "" {
			m, err := strconv.Atoi(v)
			if err != nil {
				return nil, errors.New("invalid max_users")
			}
			req.MaxUsers = m
		}
		req.Notes = r.FormValue("notes")
	}

	if req.Quota <= 0 {
		return nil, errors.New("quota must be positive")
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}
