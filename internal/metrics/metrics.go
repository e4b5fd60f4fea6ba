package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics содержит все метрики приложения
type Metrics struct {
	logger *zap.Logger

	// Счетчики
	synthRequests   *prometheus.CounterVec
	charactersTotal prometheus.Counter
	quotaDenials    prometheus.Counter
	codeRedemptions *prometheus.CounterVec

	// Гистограммы
	synthDuration prometheus.Histogram

	// Gauge метрики
	activeUsers prometheus.Gauge
	activeCodes prometheus.Gauge
}

// New создает новый экземпляр метрик
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		logger: logger,

		// Счетчик запросов синтеза
		synthRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tts_requests_total",
				Help: "Общее количество запросов синтеза речи",
			},
			[]string{"status"}, // success, provider_error, download_error, transcode_error, timeout, quota_denied
		),

		// Счетчик произнесенных символов
		charactersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tts_characters_total",
				Help: "Общее количество тарифицированных символов",
			},
		),

		// Счетчик отказов по квоте
		quotaDenials: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quota_denials_total",
				Help: "Общее количество отказов из-за нехватки квоты",
			},
		),

		// Счетчик активаций кодов
		codeRedemptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "code_redemptions_total",
				Help: "Общее количество попыток активации кодов доступа",
			},
			[]string{"status"}, // success, not_found, disabled, expired, capacity
		),

		// Гистограмма длительности синтеза
		synthDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tts_synthesis_duration_seconds",
				Help:    "Длительность полного пайплайна синтеза в секундах",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
		),

		// Gauge активных пользователей за окно статистики
		activeUsers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_users",
				Help: "Количество активных пользователей",
			},
		),

		// Gauge активных кодов доступа
		activeCodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_codes",
				Help: "Количество активных кодов доступа",
			},
		),
	}

	// Регистрируем все метрики
	prometheus.MustRegister(
		m.synthRequests,
		m.charactersTotal,
		m.quotaDenials,
		m.codeRedemptions,
		m.synthDuration,
		m.activeUsers,
		m.activeCodes,
	)

	return m
}

// RecordSynthesis записывает результат запроса синтеза
func (m *Metrics) RecordSynthesis(status string, charCount int, durationSeconds float64) {
	m.synthRequests.WithLabelValues(status).Inc()
	if status == "success" {
		m.charactersTotal.Add(float64(charCount))
	}
	m.synthDuration.Observe(durationSeconds)

	m.logger.Debug("метрика синтеза записана",
		zap.String("status", status),
		zap.Int("char_count", charCount))
}

// RecordQuotaDenial записывает отказ по квоте. Счетчик запросов синтеза
// не трогается: отказ после синтеза уже учтен через RecordSynthesis,
// а предварительный отказ запросом синтеза не является.
func (m *Metrics) RecordQuotaDenial() {
	m.quotaDenials.Inc()
}

// RecordRedemption записывает попытку активации кода
func (m *Metrics) RecordRedemption(status string) {
	m.codeRedemptions.WithLabelValues(status).Inc()
}

// SetActiveUsers устанавливает число активных пользователей
func (m *Metrics) SetActiveUsers(count int64) {
	m.activeUsers.Set(float64(count))
}

// SetActiveCodes устанавливает число активных кодов
func (m *Metrics) SetActiveCodes(count int64) {
	m.activeCodes.Set(float64(count))
}

// Handler возвращает HTTP handler для метрик
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
