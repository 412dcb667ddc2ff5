//go:build !prometheus
// +build !prometheus

package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/arzzra/call_session/pkg/call"
)

// MetricsConfig конфигурация системы метрик
type MetricsConfig struct {
	Enabled bool

	// Namespace и Subsystem игнорируются в простой версии
	Namespace string
	Subsystem string

	Logger StructuredLogger
}

// DefaultMetricsConfig возвращает конфигурацию по умолчанию
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:   true,
		Namespace: "call",
		Subsystem: "session",
		Logger:    NewDefaultLogger().WithComponent("metrics"),
	}
}

// MetricsCollector упрощенная версия сборщика метрик без Prometheus
//
// Поддерживает только атомарные performance counters. Используется
// когда экспорт в Prometheus не требуется.
type MetricsCollector struct {
	totalSessions   int64
	activeSessions  int64
	totalPending    int64
	resolvedPending int64
	totalErrors     int64

	sessionStartTimes sync.Map // confID -> time.Time
	enabled           bool
	logger            StructuredLogger
}

// NewMetricsCollector создает простой сборщик метрик без Prometheus
func NewMetricsCollector(config *MetricsConfig) *MetricsCollector {
	if config == nil {
		config = DefaultMetricsConfig()
	}
	if !config.Enabled {
		return &MetricsCollector{enabled: false}
	}
	return &MetricsCollector{
		enabled: true,
		logger:  config.Logger,
	}
}

// SessionStarted уведомляет о начале сессии
func (mc *MetricsCollector) SessionStarted(confID string) {
	if !mc.enabled {
		return
	}

	atomic.AddInt64(&mc.totalSessions, 1)
	atomic.AddInt64(&mc.activeSessions, 1)
	mc.sessionStartTimes.Store(confID, time.Now())

	mc.logger.Debug("сессия начата",
		String("conf_id", confID),
		Int64("active_sessions", atomic.LoadInt64(&mc.activeSessions)),
	)
}

// SessionFinished уведомляет о завершении сессии
func (mc *MetricsCollector) SessionFinished(confID string) {
	if !mc.enabled {
		return
	}

	atomic.AddInt64(&mc.activeSessions, -1)

	if startTime, ok := mc.sessionStartTimes.LoadAndDelete(confID); ok {
		if start, ok := startTime.(time.Time); ok {
			mc.logger.Debug("сессия завершена",
				String("conf_id", confID),
				Duration("duration", time.Since(start)),
			)
		}
	}
}

// StateTransition уведомляет о переходе состояния вызова
func (mc *MetricsCollector) StateTransition(to call.Status) {
	if !mc.enabled {
		return
	}
	mc.logger.Debug("переход состояния", String("to_state", to.String()))
}

// PendingRegistered уведомляет о регистрации отложенного участника
func (mc *MetricsCollector) PendingRegistered() {
	if !mc.enabled {
		return
	}
	atomic.AddInt64(&mc.totalPending, 1)
}

// PendingResolved уведомляет о разрешении отложенного участника
func (mc *MetricsCollector) PendingResolved() {
	if !mc.enabled {
		return
	}
	atomic.AddInt64(&mc.resolvedPending, 1)
}

// SurfaceRebind уведомляет о перепривязке видеоповерхности
func (mc *MetricsCollector) SurfaceRebind() {
	if !mc.enabled {
		return
	}
}

// ErrorOccurred уведомляет об ошибке
func (mc *MetricsCollector) ErrorOccurred(err *SessionError) {
	if !mc.enabled {
		return
	}

	atomic.AddInt64(&mc.totalErrors, 1)

	mc.logger.LogError(err, "ошибка сессии",
		String("error_code", err.Code),
		String("error_category", string(err.Category)),
	)
}

// GetPerformanceCounters возвращает текущие performance counters
func (mc *MetricsCollector) GetPerformanceCounters() map[string]int64 {
	if !mc.enabled {
		return nil
	}
	return map[string]int64{
		"total_sessions":   atomic.LoadInt64(&mc.totalSessions),
		"active_sessions":  atomic.LoadInt64(&mc.activeSessions),
		"total_pending":    atomic.LoadInt64(&mc.totalPending),
		"resolved_pending": atomic.LoadInt64(&mc.resolvedPending),
		"total_errors":     atomic.LoadInt64(&mc.totalErrors),
	}
}

// Reset сбрасывает все счетчики (для тестирования)
func (mc *MetricsCollector) Reset() {
	if !mc.enabled {
		return
	}
	atomic.StoreInt64(&mc.totalSessions, 0)
	atomic.StoreInt64(&mc.activeSessions, 0)
	atomic.StoreInt64(&mc.totalPending, 0)
	atomic.StoreInt64(&mc.resolvedPending, 0)
	atomic.StoreInt64(&mc.totalErrors, 0)
	mc.sessionStartTimes = sync.Map{}
}
