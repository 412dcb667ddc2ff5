//go:build prometheus
// +build prometheus

package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arzzra/call_session/pkg/call"
)

// MetricsCollector собирает метрики сессий вызовов
//
// Экспортирует Prometheus метрики и поддерживает атомарные
// performance counters для внутренней диагностики.
type MetricsCollector struct {
	// Prometheus метрики
	sessionsTotal    prometheus.Counter
	sessionsActive   prometheus.Gauge
	sessionDuration  prometheus.Histogram
	stateTransitions *prometheus.CounterVec
	pendingTotal     prometheus.Counter
	surfaceRebinds   prometheus.Counter
	transportErrors  *prometheus.CounterVec

	// Performance counters (атомарные для fast path)
	totalSessions   int64
	activeSessions  int64
	totalPending    int64
	resolvedPending int64
	totalErrors     int64

	sessionStartTimes sync.Map // confID -> time.Time
	enabled           bool
	logger            StructuredLogger
}

// MetricsConfig конфигурация системы метрик
type MetricsConfig struct {
	Enabled   bool
	Namespace string
	Subsystem string
	Logger    StructuredLogger
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

// NewMetricsCollector создает новый сборщик метрик
func NewMetricsCollector(config *MetricsConfig) *MetricsCollector {
	if config == nil {
		config = DefaultMetricsConfig()
	}
	if !config.Enabled {
		return &MetricsCollector{enabled: false}
	}

	mc := &MetricsCollector{
		enabled: true,
		logger:  config.Logger,
	}
	mc.initPrometheusMetrics(config.Namespace, config.Subsystem)
	return mc
}

func (mc *MetricsCollector) initPrometheusMetrics(namespace, subsystem string) {
	mc.sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sessions_total",
		Help:      "Total number of call sessions started",
	})

	mc.sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sessions_active",
		Help:      "Number of currently active call sessions",
	})

	mc.sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "session_duration_seconds",
		Help:      "Duration of call sessions in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 1800, 3600, 14400},
	})

	mc.stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "state_transitions_total",
		Help:      "Total number of call state transitions",
	}, []string{"to_state"})

	mc.pendingTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pending_participants_total",
		Help:      "Total number of pending conference participants registered",
	})

	mc.surfaceRebinds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "surface_rebinds_total",
		Help:      "Total number of video surface sink ID rebinds",
	})

	mc.transportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "errors_total",
		Help:      "Total number of errors by category",
	}, []string{"category", "severity"})
}

// SessionStarted уведомляет о начале сессии
func (mc *MetricsCollector) SessionStarted(confID string) {
	if !mc.enabled {
		return
	}

	mc.sessionsTotal.Inc()
	mc.sessionsActive.Inc()
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

	mc.sessionsActive.Dec()
	atomic.AddInt64(&mc.activeSessions, -1)

	if startTime, ok := mc.sessionStartTimes.LoadAndDelete(confID); ok {
		if start, ok := startTime.(time.Time); ok {
			duration := time.Since(start)
			mc.sessionDuration.Observe(duration.Seconds())
			mc.logger.Debug("сессия завершена",
				String("conf_id", confID),
				Duration("duration", duration),
			)
		}
	}
}

// StateTransition уведомляет о переходе состояния вызова
func (mc *MetricsCollector) StateTransition(to call.Status) {
	if !mc.enabled {
		return
	}
	mc.stateTransitions.WithLabelValues(to.String()).Inc()
}

// PendingRegistered уведомляет о регистрации отложенного участника
func (mc *MetricsCollector) PendingRegistered() {
	if !mc.enabled {
		return
	}
	mc.pendingTotal.Inc()
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
	mc.surfaceRebinds.Inc()
}

// ErrorOccurred уведомляет об ошибке
func (mc *MetricsCollector) ErrorOccurred(err *SessionError) {
	if !mc.enabled {
		return
	}

	mc.transportErrors.WithLabelValues(
		string(err.Category),
		string(err.Severity),
	).Inc()
	atomic.AddInt64(&mc.totalErrors, 1)
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
