package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smh_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smh_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smh_http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		},
	)

	// MQTT метрики
	MQTTMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smh_mqtt_messages_received_total",
			Help: "Total number of MQTT task requests received",
		},
		[]string{"topic"},
	)

	MQTTParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smh_mqtt_parse_errors_total",
			Help: "Total number of MQTT task request parse errors",
		},
	)

	MQTTResultsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smh_mqtt_results_published_total",
			Help: "Total number of task results published to MQTT",
		},
		[]string{"status"}, // ok, error
	)

	MQTTConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smh_mqtt_connection_status",
			Help: "MQTT connection status (1 = connected, 0 = disconnected)",
		},
	)

	// Redis метрики
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smh_redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	RedisOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smh_redis_operation_errors_total",
			Help: "Total number of Redis operation errors",
		},
		[]string{"operation"},
	)

	// MySQL метрики
	MySQLOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smh_mysql_operation_duration_seconds",
			Help:    "Duration of MySQL operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"}, // get_latest, insert, update, load_regions
	)

	MySQLOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smh_mysql_operation_errors_total",
			Help: "Total number of MySQL operation errors",
		},
		[]string{"operation"},
	)

	MySQLPayloadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smh_mysql_payload_bytes",
			Help:    "Size of serialized cache columns written to MySQL",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"column", "compressed"},
	)

	// Внешние сервисы (AIS, SIS, порты)
	ClientRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smh_client_request_duration_seconds",
			Help:    "Duration of outbound requests to upstream services",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"client", "operation"},
	)

	ClientRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smh_client_request_errors_total",
			Help: "Total number of failed outbound requests",
		},
		[]string{"client", "operation", "reason"},
	)

	// Общие метрики приложения
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smh_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "build_time"},
	)

	MySQLConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smh_mysql_connection_status",
			Help: "MySQL connection status (1 = connected, 0 = disconnected)",
		},
	)

	RedisConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smh_redis_connection_status",
			Help: "Redis connection status (1 = connected, 0 = disconnected)",
		},
	)
)

// SetAppInfo устанавливает информацию о версии приложения
func SetAppInfo(version, commit, buildTime string) {
	AppInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
