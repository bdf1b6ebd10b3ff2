package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 更新协调结果计数
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "template_updates_total",
			Help: "Total number of template update sagas by action and outcome",
		},
		[]string{"action", "outcome"}, // outcome: success, rejected, conflict, failed, compensation_failed
	)

	// 更新协调耗时
	updateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "template_update_duration_seconds",
			Help:    "Template update saga duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// 对象搬移结果计数
	relocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "object_relocations_total",
			Help: "Total number of object relocations by outcome",
		},
		[]string{"outcome"}, // success, conflict, failed
	)

	// 搬移重试次数
	moveRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "object_move_retries_total",
			Help: "Total number of object move retries",
		},
	)

	// 补偿结果计数
	compensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "record_compensations_total",
			Help: "Total number of record compensations by outcome",
		},
		[]string{"outcome"}, // success, failed
	)

	// 孤儿对象计数
	orphansEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orphan_objects_enqueued_total",
			Help: "Total number of orphan objects queued for cleanup",
		},
	)
	orphansCleanedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orphan_objects_cleaned_total",
			Help: "Total number of orphan objects cleaned",
		},
	)
)

var registerOnce sync.Once

// Register 注册所有指标到默认 registry
// 可重复调用,只注册一次
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			apiRequestsTotal,
			apiRequestDuration,
			updatesTotal,
			updateDuration,
			relocationsTotal,
			moveRetriesTotal,
			compensationsTotal,
			orphansEnqueuedTotal,
			orphansCleanedTotal,
		)
	})
}

// Handler 返回 /metrics 的 HTTP 处理器
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// RecordAPIRequest 记录一次 API 请求
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(method, path, status).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordUpdate 记录一次更新协调结果
func RecordUpdate(action, outcome string, duration time.Duration) {
	updatesTotal.WithLabelValues(action, outcome).Inc()
	updateDuration.Observe(duration.Seconds())
}

// RecordRelocation 记录一次对象搬移结果
func RecordRelocation(outcome string) {
	relocationsTotal.WithLabelValues(outcome).Inc()
}

// RecordMoveRetry 记录一次搬移重试
func RecordMoveRetry() {
	moveRetriesTotal.Inc()
}

// RecordCompensation 记录一次补偿结果
func RecordCompensation(outcome string) {
	compensationsTotal.WithLabelValues(outcome).Inc()
}

// RecordOrphanEnqueued 记录一个孤儿对象入队
func RecordOrphanEnqueued() {
	orphansEnqueuedTotal.Inc()
}

// RecordOrphanCleaned 记录一个孤儿对象被清理
func RecordOrphanCleaned() {
	orphansCleanedTotal.Inc()
}
