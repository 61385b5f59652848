package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "attendance_router"

var (
	// Lifecycle metrics
	TransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Attendance lifecycle transitions by audit action",
		},
		[]string{"action"},
	)

	ClaimConflictsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claim_conflicts_total",
		Help:      "Claims rejected because another agent won the race",
	})

	UrgencyFlipsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urgency_flips_total",
			Help:      "Attendances marked urgent",
		},
		[]string{"source"},
	)

	MirrorRepairsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mirror_repairs_total",
		Help:      "Conversation rows rewritten by reconciliation",
	})

	// Message ingestion metrics
	MessagesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_handled_total",
			Help:      "Channel messages applied to attendances",
		},
		[]string{"direction", "result"},
	)

	// Event metrics
	EventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Lifecycle events handed to publishers",
		},
		[]string{"type", "result"},
	)

	BrokerPublishCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_publishes_total",
			Help:      "Queued events delivered to the broker",
		},
		[]string{"result"},
	)

	StreamDroppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_events_dropped_total",
		Help:      "Events dropped for slow stream subscribers",
	})

	StreamSubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_subscribers",
		Help:      "Connected event stream subscribers",
	})

	// Request metrics
	RequestDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	APIErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Total number of API errors",
		},
		[]string{"method", "path", "status"},
	)
)

// Middleware tracks request duration and error counts by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		RequestDurationHistogram.With(prometheus.Labels{
			"method": c.Request.Method,
			"path":   path,
			"status": status,
		}).Observe(time.Since(start).Seconds())

		if c.Writer.Status() >= 400 {
			APIErrorCounter.With(prometheus.Labels{
				"method": c.Request.Method,
				"path":   path,
				"status": status,
			}).Inc()
		}
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordTransition(action string) {
	TransitionsCounter.WithLabelValues(action).Inc()
}

func RecordMessage(direction string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	MessagesCounter.WithLabelValues(direction, result).Inc()
}

func RecordEvent(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsCounter.WithLabelValues(eventType, result).Inc()
}

func RecordBrokerPublish(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	BrokerPublishCounter.WithLabelValues(result).Inc()
}
