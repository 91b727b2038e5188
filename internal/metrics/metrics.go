package metrics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/abduss/filemeta/internal/notify"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "filemeta"

// Collectors holds every metric exported by the service.
type Collectors struct {
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
	MetadataWrites       *prometheus.CounterVec
	UnchangedWrites      prometheus.Counter
	ConflictResolutions  *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	CacheLookups         *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		MetadataWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_writes_total",
			Help:      "Committed metadata writes by status.",
		}, []string{"status"}),
		UnchangedWrites: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_unchanged_content_writes_total",
			Help:      "Metadata writes whose checksum matched the previous version.",
		}),
		ConflictResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_resolutions_total",
			Help:      "Recorded conflict resolutions by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		NotificationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Failed notification deliveries by sink and event kind.",
		}, []string{"sink", "kind"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Metadata cache lookups by result.",
		}, []string{"result"}),
	}
}

var (
	defaultOnce       sync.Once
	defaultCollectors *Collectors
)

// InitMetrics registers the collectors on the default registry once.
func InitMetrics() *Collectors {
	defaultOnce.Do(func() {
		defaultCollectors = New(prometheus.DefaultRegisterer)
	})
	return defaultCollectors
}

// Middleware records request counts and latency on the default collectors.
func Middleware() gin.HandlerFunc {
	return InitMetrics().Middleware()
}

// Middleware records request counts and latency.
func (m *Collectors) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// ObserveCacheLookup counts a cache hit or miss.
func (m *Collectors) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// NotificationFailed counts a failed delivery.
func (m *Collectors) NotificationFailed(sink string, kind notify.Kind) {
	m.NotificationFailures.WithLabelValues(sink, string(kind)).Inc()
}

// Sink returns a notification sink that turns domain events into counters.
func (m *Collectors) Sink() *Sink {
	return &Sink{collectors: m}
}

// Sink counts committed writes and resolutions as they are announced.
type Sink struct {
	collectors *Collectors
}

func (s *Sink) Name() string {
	return "metrics"
}

func (s *Sink) Send(_ context.Context, event notify.Event) error {
	switch {
	case event.Kind.IsMetadata():
		s.collectors.MetadataWrites.WithLabelValues(event.Attributes["status"]).Inc()
		if event.Attributes["content_unchanged"] == "true" {
			s.collectors.UnchangedWrites.Inc()
		}
	case event.Kind.IsConflict():
		outcome := "resolved"
		if event.Kind == notify.KindConflictAwaitingManual {
			outcome = "awaiting_manual"
		}
		s.collectors.ConflictResolutions.WithLabelValues(event.Attributes["strategy"], outcome).Inc()
	}
	return nil
}
