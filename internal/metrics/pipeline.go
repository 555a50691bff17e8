package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TaskDuration длительность расчета SMH по исходу
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smh_task_duration_seconds",
		Help:    "Duration of SMH task runs by outcome",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"outcome"}) // served, reused, rebuilt, error

	// TasksInFlight количество выполняемых задач
	TasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smh_tasks_in_flight",
		Help: "Current number of SMH tasks being computed",
	})

	// CacheDecisions решения по кэшу с причиной пересчета
	CacheDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smh_cache_decisions_total",
		Help: "Cache evaluation outcomes by decision and rebuild reason",
	}, []string{"decision", "reason"})

	// CacheConflicts конфликты оптимистичной блокировки при записи
	CacheConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smh_cache_conflicts_total",
		Help: "Number of cache writes rejected by the update_count check",
	})

	// IHSUpdatesDetected найденные изменения в истории IHS по действию
	IHSUpdatesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smh_ihs_updates_detected_total",
		Help: "Back-filled IHS records detected by resulting action",
	}, []string{"action"}) // rebuild, mark_stale, replace

	// PositionsProcessed количество позиций AIS, прошедших через конвейер
	PositionsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smh_positions_processed_total",
		Help: "Number of AIS positions fed into the pipeline",
	})

	// MMSIRecoveries успешные восстановления MMSI по истории
	MMSIRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smh_mmsi_recoveries_total",
		Help: "MMSI recovery attempts after an empty track",
	}, []string{"result"}) // recovered, failed

	// PortResolutionRetries повторные попытки обращения к сервису портов
	PortResolutionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smh_port_resolution_retries_total",
		Help: "Number of retried port lookup batches",
	})

	// PortResolutionDegraded пакеты, оставленные без портов
	PortResolutionDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smh_port_resolution_degraded_total",
		Help: "Number of port lookup batches that fell back to empty ports",
	})

	// PortCircuitState состояние circuit breaker сервиса портов
	PortCircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smh_port_circuit_state",
		Help: "Port service circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
	})

	// PortCacheLookups обращения к кэшу портов по результату
	PortCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smh_port_cache_lookups_total",
		Help: "Port cache lookups by result",
	}, []string{"result"}) // hit, miss

	// PortCacheSize текущий размер кэша портов
	PortCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smh_port_cache_size",
		Help: "Current number of geohash cells in the port cache",
	})
)
