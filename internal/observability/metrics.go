package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Frame results recorded by the channel.
const (
	FrameAdmitted  = "admitted"
	FrameDuplicate = "duplicate"
	FrameMalformed = "malformed"
	FramePing      = "ping"
	// FrameUnknownType is counted alongside FrameAdmitted.
	FrameUnknownType = "unknown_type"
)

var (
	registerOnce sync.Once

	channelConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callassist",
			Subsystem: "channel",
			Name:      "connects_total",
			Help:      "Event channel connection attempts by result.",
		},
		[]string{"result"},
	)
	channelReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "callassist",
			Subsystem: "channel",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect timers scheduled after an unexpected close.",
		},
	)
	channelFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callassist",
			Subsystem: "channel",
			Name:      "frames_total",
			Help:      "Inbound frames by filter result.",
		},
		[]string{"result"},
	)
	channelNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callassist",
			Subsystem: "channel",
			Name:      "notifications_total",
			Help:      "Error notifications raised by the channel.",
		},
		[]string{"kind"},
	)
	sessionEnds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callassist",
			Subsystem: "session",
			Name:      "end_total",
			Help:      "End-session runs by trigger and result.",
		},
		[]string{"trigger", "result"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callassist",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total view server HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "callassist",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "View server HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			channelConnects,
			channelReconnects,
			channelFrames,
			channelNotifications,
			sessionEnds,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordConnect(success bool) {
	RegisterMetrics()
	result := "success"
	if !success {
		result = "failure"
	}
	channelConnects.WithLabelValues(result).Inc()
}

func RecordReconnectScheduled() {
	RegisterMetrics()
	channelReconnects.Inc()
}

func RecordFrame(result string) {
	RegisterMetrics()
	channelFrames.WithLabelValues(result).Inc()
}

func RecordNotification(kind string) {
	RegisterMetrics()
	channelNotifications.WithLabelValues(kind).Inc()
}

func RecordSessionEnd(trigger string, success bool) {
	RegisterMetrics()
	sessionEnds.WithLabelValues(trigger, strconv.FormatBool(success)).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
