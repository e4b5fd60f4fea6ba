package scheduler

import (
	"context"
	"fmt"
	"time"

	"tts-relay/internal/metrics"
	"tts-relay/internal/store"

	"go.uber.org/zap"
)

// statisticsWindow — окно активности для gauge-метрик
const statisticsWindow = 30 * 24 * time.Hour

// StatisticsJob периодически обновляет gauge-метрики из статистики хранилища
type StatisticsJob struct {
	usage   store.UsageRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewStatisticsJob создает задачу обновления статистики
func NewStatisticsJob(usage store.UsageRepository, m *metrics.Metrics, logger *zap.Logger) *StatisticsJob {
	return &StatisticsJob{
		usage:   usage,
		metrics: m,
		logger:  logger,
	}
}

// Run собирает статистику и обновляет метрики
func (j *StatisticsJob) Run(ctx context.Context) error {
	stats, err := j.usage.Statistics(ctx, statisticsWindow)
	if err != nil {
		return fmt.Errorf("ошибка сбора статистики: %w", err)
	}

	j.metrics.SetActiveUsers(stats.ActiveUsers)
	j.metrics.SetActiveCodes(stats.ActiveCodes)

	j.logger.Info("статистика обновлена",
		zap.Int64("total_users", stats.TotalUsers),
		zap.Int64("active_users", stats.ActiveUsers),
		zap.Int64("active_codes", stats.ActiveCodes),
		zap.Int64("total_characters", stats.TotalCharacters))

	return nil
}
