package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 内容生成编排指标
	GenerationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_generation_total",
			Help: "Content generation attempts by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: success / failed / placeholder
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_cache_hits_total",
			Help: "Content cache hits by kind",
		},
		[]string{"kind"},
	)

	TombstoneDiscards = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "content_tombstone_discards_total",
			Help: "Generation tasks discarded because the attempt was deleted",
		},
	)

	PoolQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prefetch_pool_queue_depth",
			Help: "Number of tasks waiting in the prefetch worker pool",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(GenerationTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(TombstoneDiscards)
	prometheus.MustRegister(PoolQueueDepth)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
